package storage

import (
	"context"
	"fmt"

	"ai_selector/internal/catalog"
	"ai_selector/internal/models"
)

type profileRow struct {
	Provider           string  `db:"provider"`
	DisplayName        string  `db:"display_name"`
	BaseWeight         float64 `db:"base_weight"`
	PerformanceWeight  float64 `db:"performance_weight"`
	ReliabilityWeight  float64 `db:"reliability_weight"`
	SupportsText       bool    `db:"supports_text"`
	SupportsImage      bool    `db:"supports_image"`
	SupportsModeration bool    `db:"supports_moderation"`
}

type priceRow struct {
	Provider    string  `db:"provider"`
	Capability  string  `db:"capability"`
	Model       string  `db:"model"`
	CostPerUnit float64 `db:"cost_per_unit"`
	Unit        string  `db:"unit"`
}

// CatalogRepository loads the provider catalog from provider_profiles and
// model_prices. It implements catalog.Source; results go through the same
// validation as file-based catalogs.
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) Load(ctx context.Context) (*catalog.Catalog, error) {
	var profiles []profileRow
	err := r.db.q(ctx).SelectContext(ctx, &profiles, `
		SELECT provider, display_name, base_weight, performance_weight, reliability_weight,
			supports_text, supports_image, supports_moderation
		FROM provider_profiles
		WHERE enabled
		ORDER BY position, provider
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, ErrEmptyCatalog
	}

	var prices []priceRow
	err = r.db.q(ctx).SelectContext(ctx, &prices, `
		SELECT mp.provider, mp.capability, mp.model, mp.cost_per_unit, mp.unit
		FROM model_prices mp
		JOIN provider_profiles pp ON pp.provider = mp.provider
		WHERE pp.enabled
		ORDER BY mp.provider, mp.capability, mp.position, mp.model
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load model prices: %w", err)
	}

	return buildCatalog(profiles, prices)
}

func buildCatalog(profiles []profileRow, prices []priceRow) (*catalog.Catalog, error) {
	byProvider := make(map[string]map[models.Capability][]models.ModelPrice, len(profiles))
	for _, p := range prices {
		c := models.Capability(p.Capability)
		if byProvider[p.Provider] == nil {
			byProvider[p.Provider] = make(map[models.Capability][]models.ModelPrice)
		}
		byProvider[p.Provider][c] = append(byProvider[p.Provider][c], models.ModelPrice{
			Model:       p.Model,
			CostPerUnit: p.CostPerUnit,
			Unit:        models.PricingUnit(p.Unit),
		})
	}

	out := make([]models.ProviderProfile, 0, len(profiles))
	for _, row := range profiles {
		out = append(out, models.ProviderProfile{
			ID:                models.ProviderID(row.Provider),
			DisplayName:       row.DisplayName,
			BaseWeight:        row.BaseWeight,
			PerformanceWeight: row.PerformanceWeight,
			ReliabilityWeight: row.ReliabilityWeight,
			Capabilities: models.CapabilitySet{
				Text:       row.SupportsText,
				Image:      row.SupportsImage,
				Moderation: row.SupportsModeration,
			},
			Models: byProvider[row.Provider],
		})
	}
	return catalog.New(out)
}

// Seed writes every profile of c, replacing existing rows for those providers.
// Declaration order is stored in position.
func (r *CatalogRepository) Seed(ctx context.Context, c *catalog.Catalog) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		for i, p := range c.Profiles() {
			_, err := q.ExecContext(ctx, `
				INSERT INTO provider_profiles (
					provider, display_name, base_weight, performance_weight, reliability_weight,
					supports_text, supports_image, supports_moderation, enabled, position
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
				ON CONFLICT (provider) DO UPDATE SET
					display_name = EXCLUDED.display_name,
					base_weight = EXCLUDED.base_weight,
					performance_weight = EXCLUDED.performance_weight,
					reliability_weight = EXCLUDED.reliability_weight,
					supports_text = EXCLUDED.supports_text,
					supports_image = EXCLUDED.supports_image,
					supports_moderation = EXCLUDED.supports_moderation,
					enabled = TRUE,
					position = EXCLUDED.position
			`, string(p.ID), p.DisplayName, p.BaseWeight, p.PerformanceWeight, p.ReliabilityWeight,
				p.Capabilities.Text, p.Capabilities.Image, p.Capabilities.Moderation, i)
			if err != nil {
				return fmt.Errorf("failed to seed provider %s: %w", p.ID, err)
			}

			if _, err := q.ExecContext(ctx, `DELETE FROM model_prices WHERE provider = $1`, string(p.ID)); err != nil {
				return fmt.Errorf("failed to clear prices for %s: %w", p.ID, err)
			}
			for capability, prices := range p.Models {
				for pos, price := range prices {
					_, err := q.ExecContext(ctx, `
						INSERT INTO model_prices (provider, capability, model, cost_per_unit, unit, position)
						VALUES ($1, $2, $3, $4, $5, $6)
					`, string(p.ID), string(capability), price.Model, price.CostPerUnit, string(price.Unit), pos)
					if err != nil {
						return fmt.Errorf("failed to seed price %s/%s: %w", p.ID, price.Model, err)
					}
				}
			}
		}
		return nil
	})
}
