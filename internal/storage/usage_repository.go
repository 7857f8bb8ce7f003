package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai_selector/internal/models"
)

// UsageRepository persists aggregated usage rows in usage_records.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Increment adds a delta to the matching row, creating it if needed, in a single
// INSERT ... ON CONFLICT statement so concurrent writers cannot lose updates.
func (r *UsageRepository) Increment(ctx context.Context, delta models.UsageDelta) error {
	query := `
		INSERT INTO usage_records (
			tenant_id, provider, model, capability, usage_date,
			units, cost, requests, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW(), NOW())
		ON CONFLICT (tenant_id, provider, model, capability, usage_date) DO UPDATE SET
			units = usage_records.units + EXCLUDED.units,
			cost = usage_records.cost + EXCLUDED.cost,
			requests = usage_records.requests + 1,
			updated_at = NOW()
	`

	k := delta.Key
	_, err := r.db.q(ctx).ExecContext(ctx, query,
		k.TenantID, string(k.Provider), k.Model, string(k.Capability), models.UsageDate(k.Date),
		delta.Units, delta.Cost,
	)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// usageFilter builds the WHERE clause shared by the read queries.
func usageFilter(tenantID string, provider models.ProviderID, since, until time.Time) (string, []interface{}) {
	conds := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}

	if provider != "" {
		args = append(args, string(provider))
		conds = append(conds, fmt.Sprintf("provider = $%d", len(args)))
	}
	if !since.IsZero() {
		args = append(args, models.UsageDate(since))
		conds = append(conds, fmt.Sprintf("usage_date >= $%d", len(args)))
	}
	if !until.IsZero() {
		args = append(args, models.UsageDate(until))
		conds = append(conds, fmt.Sprintf("usage_date < $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

// Query returns matching rows ordered by day, provider, capability and model.
func (r *UsageRepository) Query(ctx context.Context, q models.UsageQuery) ([]models.UsageRecord, error) {
	where, args := usageFilter(q.TenantID, q.Provider, q.Since, q.Until)
	query := `
		SELECT tenant_id, provider, model, capability, usage_date,
			units, cost, requests, created_at, updated_at
		FROM usage_records
		WHERE ` + where + `
		ORDER BY usage_date, provider, capability, model
	`

	var recs []models.UsageRecord
	if err := r.db.q(ctx).SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	for i := range recs {
		recs[i].Date = models.UsageDate(recs[i].Date)
	}
	return recs, nil
}

// SumCost returns the tenant's cost over [since, until).
func (r *UsageRepository) SumCost(ctx context.Context, tenantID string, since, until time.Time) (float64, error) {
	where, args := usageFilter(tenantID, "", since, until)

	var total float64
	query := `SELECT COALESCE(SUM(cost), 0) FROM usage_records WHERE ` + where
	if err := r.db.q(ctx).GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to sum usage cost: %w", err)
	}
	return total, nil
}

// CountRequests returns the tenant's requests on a provider since a day.
func (r *UsageRepository) CountRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) (int64, error) {
	where, args := usageFilter(tenantID, provider, since, time.Time{})

	var total int64
	query := `SELECT COALESCE(SUM(requests), 0) FROM usage_records WHERE ` + where
	if err := r.db.q(ctx).GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return total, nil
}
