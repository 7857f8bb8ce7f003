package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ai_selector/internal/models"
)

// BudgetRepository reads per-tenant limits from tenant_budgets, falling back to
// the configured defaults for tenants without a row.
type BudgetRepository struct {
	db       *DB
	defaults models.BudgetLimits
}

// NewBudgetRepository creates a budget repository. defaults must be valid.
func NewBudgetRepository(db *DB, defaults models.BudgetLimits) (*BudgetRepository, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &BudgetRepository{db: db, defaults: defaults}, nil
}

// Get returns the stored limits of a tenant or ErrBudgetNotFound.
func (r *BudgetRepository) Get(ctx context.Context, tenantID string) (models.BudgetLimits, error) {
	var l models.BudgetLimits
	query := `SELECT daily_limit, monthly_limit FROM tenant_budgets WHERE tenant_id = $1`
	if err := r.db.q(ctx).GetContext(ctx, &l, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l, ErrBudgetNotFound
		}
		return l, fmt.Errorf("failed to get tenant budget: %w", err)
	}
	return l, nil
}

// Limits implements ledger.BudgetConfigSource.
func (r *BudgetRepository) Limits(ctx context.Context, tenantID string) (models.BudgetLimits, error) {
	l, err := r.Get(ctx, tenantID)
	if errors.Is(err, ErrBudgetNotFound) {
		return r.defaults, nil
	}
	return l, err
}

// Upsert stores limits for a tenant after validating them.
func (r *BudgetRepository) Upsert(ctx context.Context, tenantID string, l models.BudgetLimits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO tenant_budgets (tenant_id, daily_limit, monthly_limit, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			daily_limit = EXCLUDED.daily_limit,
			monthly_limit = EXCLUDED.monthly_limit,
			updated_at = NOW()
	`
	if _, err := r.db.q(ctx).ExecContext(ctx, query, tenantID, l.Daily, l.Monthly); err != nil {
		return fmt.Errorf("failed to upsert tenant budget: %w", err)
	}
	return nil
}
