package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ai_selector/internal/models"
)

const pqUniqueViolation = "23505"

// GenerationRepository appends to generation_records.
type GenerationRepository struct {
	db *DB
}

// NewGenerationRepository creates a new generation repository
func NewGenerationRepository(db *DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Append inserts a record. Records are never updated.
func (r *GenerationRepository) Append(ctx context.Context, rec *models.GenerationRecord) error {
	query := `
		INSERT INTO generation_records (
			id, tenant_id, user_id, capability, provider, model,
			prompt, result, units, cost, metadata, created_at
		) VALUES (
			:id, :tenant_id, :user_id, :capability, :provider, :model,
			:prompt, :result, :units, :cost, :metadata, :created_at
		)
	`

	_, err := sqlx.NamedExecContext(ctx, r.db.q(ctx), query, rec)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: %s", ErrGenerationExists, rec.ID)
		}
		return fmt.Errorf("failed to insert generation record: %w", err)
	}
	return nil
}

// ListByTenant returns the tenant's records created in [since, until), newest first.
func (r *GenerationRepository) ListByTenant(ctx context.Context, tenantID string, since, until time.Time, limit int) ([]models.GenerationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if until.IsZero() {
		until = time.Now().Add(time.Minute)
	}

	query := `
		SELECT id, tenant_id, user_id, capability, provider, model,
			prompt, result, units, cost, metadata, created_at
		FROM generation_records
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	var recs []models.GenerationRecord
	if err := r.db.q(ctx).SelectContext(ctx, &recs, query, tenantID, since, until, limit); err != nil {
		return nil, fmt.Errorf("failed to list generation records: %w", err)
	}
	return recs, nil
}
