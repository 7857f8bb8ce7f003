// Package ledger defines the persistence boundaries of cost tracking: the
// aggregated usage store, the append-only generation log and the per-tenant
// budget configuration. In-memory and Redis implementations live here; the
// Postgres ones live in the storage package.
//
// Usage dates are UTC calendar days. Range queries treat Since as inclusive and
// Until as exclusive; a zero bound is open.
package ledger

import (
	"context"
	"time"

	"ai_selector/internal/models"
)

// UsageStore aggregates usage per (tenant, provider, model, capability, day).
type UsageStore interface {
	// Increment atomically creates or adds to the matching UsageRecord. Each
	// call counts as one request. Concurrent increments must never be lost.
	Increment(ctx context.Context, delta models.UsageDelta) error

	// Query returns the records of a tenant matching the filter.
	Query(ctx context.Context, q models.UsageQuery) ([]models.UsageRecord, error)

	// SumCost returns the tenant's total cost over [since, until).
	SumCost(ctx context.Context, tenantID string, since, until time.Time) (float64, error)

	// CountRequests returns the tenant's request count on a provider since a day.
	CountRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) (int64, error)
}

// GenerationLog is the append-only audit log of generations.
type GenerationLog interface {
	Append(ctx context.Context, rec *models.GenerationRecord) error
}

// BudgetConfigSource resolves the spend limits of a tenant.
type BudgetConfigSource interface {
	Limits(ctx context.Context, tenantID string) (models.BudgetLimits, error)
}

// inRange reports whether day falls within [since, until).
func inRange(day, since, until time.Time) bool {
	if !since.IsZero() && day.Before(models.UsageDate(since)) {
		return false
	}
	if !until.IsZero() && !day.Before(models.UsageDate(until)) {
		return false
	}
	return true
}
