package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationRecord is the append-only audit entry written for every completed
// generation.
type GenerationRecord struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	UserID     string     `db:"user_id" json:"user_id,omitempty"`
	Capability Capability `db:"capability" json:"capability"`
	Provider   ProviderID `db:"provider" json:"provider"`
	Model      string     `db:"model" json:"model"`
	Prompt     string     `db:"prompt" json:"prompt,omitempty"`
	Result     string     `db:"result" json:"result,omitempty"`
	Units      int64      `db:"units" json:"units"`
	Cost       float64    `db:"cost" json:"cost"`
	Metadata   JSONB      `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// UsageDelta returns the ledger increment this record contributes.
func (r *GenerationRecord) UsageDelta() UsageDelta {
	return UsageDelta{
		Key: UsageKey{
			TenantID:   r.TenantID,
			Provider:   r.Provider,
			Model:      r.Model,
			Capability: r.Capability,
			Date:       UsageDate(r.CreatedAt),
		},
		Units: r.Units,
		Cost:  r.Cost,
	}
}
