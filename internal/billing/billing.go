// Package billing prices generations against the provider catalog, records
// them in the usage ledger and derives budget and reporting views from it.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai_selector/internal/catalog"
	"ai_selector/internal/ledger"
	"ai_selector/internal/metrics"
	"ai_selector/internal/models"
	"ai_selector/internal/utils"
)

var (
	// ErrPersistence wraps any failure to durably record a generation. Callers
	// must not report the generation as successful.
	ErrPersistence = errors.New("failed to persist generation")

	// ErrInvalidGeneration is returned for malformed RecordGeneration input.
	ErrInvalidGeneration = errors.New("invalid generation")

	// ErrCatalogUnavailable is returned when no catalog snapshot can be loaded.
	ErrCatalogUnavailable = errors.New("provider catalog unavailable")

	// ErrInvalidRange is returned for report ranges whose start is after their end.
	ErrInvalidRange = errors.New("invalid date range")
)

// Archiver receives generations after they were durably recorded.
type Archiver interface {
	Archive(ctx context.Context, rec *models.GenerationRecord) error
}

// TxRunner runs fn inside a transaction carried by ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Calculator is the cost calculator. It is safe for concurrent use.
type Calculator struct {
	catalog     catalog.Source
	usage       ledger.UsageStore
	generations ledger.GenerationLog
	budgets     ledger.BudgetConfigSource
	metrics     metrics.Metrics
	archive     Archiver
	tx          TxRunner
	now         func() time.Time
	logger      *utils.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Calculator) { c.metrics = m }
}

// WithArchiver hands every recorded generation to a.
func WithArchiver(a Archiver) Option {
	return func(c *Calculator) { c.archive = a }
}

// WithTxRunner makes RecordGeneration write the record and the usage increment
// in one transaction.
func WithTxRunner(tx TxRunner) Option {
	return func(c *Calculator) { c.tx = tx }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator creates a calculator over the given catalog and ledger.
func NewCalculator(src catalog.Source, usage ledger.UsageStore, generations ledger.GenerationLog, budgets ledger.BudgetConfigSource, opts ...Option) *Calculator {
	c := &Calculator{
		catalog:     src,
		usage:       usage,
		generations: generations,
		budgets:     budgets,
		metrics:     metrics.NewNoopMetrics(),
		tx:          noTx{},
		now:         time.Now,
		logger:      utils.NewLogger("billing"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := c.catalog.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return cat, nil
}

// CostPerUnit returns the catalog price of one unit. An empty model prices the
// provider's default model. Pairs missing from the catalog cost 0; they are
// logged and counted so catalog drift stays visible.
func (c *Calculator) CostPerUnit(ctx context.Context, provider models.ProviderID, capability models.Capability, model string) (float64, error) {
	cat, err := c.loadCatalog(ctx)
	if err != nil {
		return 0, err
	}
	return c.unitCost(cat, provider, capability, model), nil
}

func (c *Calculator) unitCost(cat *catalog.Catalog, provider models.ProviderID, capability models.Capability, model string) float64 {
	price, ok := cat.Price(provider, capability, model)
	if !ok {
		c.logger.Warn("No price for provider model, treating as free",
			"provider", provider, "model", model, "capability", capability)
		c.metrics.ObserveUnknownPricing(string(provider), model)
		return 0
	}
	return price.CostPerUnit
}

// TextCost prices a number of tokens.
func (c *Calculator) TextCost(ctx context.Context, provider models.ProviderID, model string, tokens int64) (float64, error) {
	return c.cost(ctx, provider, models.CapabilityText, model, tokens)
}

// ImageCost prices a number of generated images.
func (c *Calculator) ImageCost(ctx context.Context, provider models.ProviderID, model string, images int64) (float64, error) {
	return c.cost(ctx, provider, models.CapabilityImage, model, images)
}

// Cost prices a quantity of any capability.
func (c *Calculator) Cost(ctx context.Context, provider models.ProviderID, capability models.Capability, model string, quantity int64) (float64, error) {
	return c.cost(ctx, provider, capability, model, quantity)
}

func (c *Calculator) cost(ctx context.Context, provider models.ProviderID, capability models.Capability, model string, quantity int64) (float64, error) {
	unit, err := c.CostPerUnit(ctx, provider, capability, model)
	if err != nil {
		return 0, err
	}
	if quantity <= 0 {
		return 0, nil
	}
	return unit * float64(quantity), nil
}

// GenerationInput describes a completed generation to record.
type GenerationInput struct {
	TenantID   string
	UserID     string
	Capability models.Capability
	Provider   models.ProviderID
	Model      string
	Prompt     string
	Result     string
	Units      int64
	// Cost overrides the catalog price when set.
	Cost     *float64
	Metadata models.JSONB
}

func (in *GenerationInput) validate() error {
	if strings.TrimSpace(in.TenantID) == "" {
		return fmt.Errorf("%w: tenant is required", ErrInvalidGeneration)
	}
	if _, err := models.ParseCapability(string(in.Capability)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeneration, err)
	}
	if in.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidGeneration)
	}
	if in.Units < 0 {
		return fmt.Errorf("%w: units must be non-negative, got %d", ErrInvalidGeneration, in.Units)
	}
	if in.Cost != nil && *in.Cost < 0 {
		return fmt.Errorf("%w: cost must be non-negative, got %v", ErrInvalidGeneration, *in.Cost)
	}
	return nil
}

// RecordGeneration appends the generation to the log and adds its units and
// cost to today's UsageRecord. Both writes share the configured transaction.
// Any storage failure is returned wrapped in ErrPersistence.
func (c *Calculator) RecordGeneration(ctx context.Context, in GenerationInput) (*models.GenerationRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	model := in.Model
	var cost float64
	if in.Cost != nil {
		cost = *in.Cost
	}

	if in.Cost == nil || model == "" {
		cat, err := c.loadCatalog(ctx)
		switch {
		case err != nil && in.Cost == nil:
			return nil, err
		case err != nil:
			c.logger.Warn("Recording generation without model resolution", "error", err, "provider", in.Provider)
		default:
			// An empty model is billed as, and recorded under, the provider's default.
			if model == "" {
				if price, ok := cat.Price(in.Provider, in.Capability, ""); ok {
					model = price.Model
				}
			}
			if in.Cost == nil && in.Units > 0 {
				cost = c.unitCost(cat, in.Provider, in.Capability, model) * float64(in.Units)
			}
		}
	}

	rec := &models.GenerationRecord{
		ID:         uuid.New(),
		TenantID:   in.TenantID,
		UserID:     in.UserID,
		Capability: in.Capability,
		Provider:   in.Provider,
		Model:      model,
		Prompt:     in.Prompt,
		Result:     in.Result,
		Units:      in.Units,
		Cost:       cost,
		Metadata:   in.Metadata,
		CreatedAt:  c.now().UTC(),
	}

	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := c.generations.Append(ctx, rec); err != nil {
			return fmt.Errorf("append generation: %w", err)
		}
		if err := c.usage.Increment(ctx, rec.UsageDelta()); err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}
		return nil
	})
	if err != nil {
		c.metrics.ObserveRecordFailure(string(in.Capability))
		c.logger.Error("Failed to record generation", "error", err,
			"tenant", rec.TenantID, "provider", rec.Provider, "model", rec.Model)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	c.metrics.ObserveGeneration(string(rec.Capability), string(rec.Provider), rec.Units, rec.Cost)

	if c.archive != nil {
		if err := c.archive.Archive(ctx, rec); err != nil {
			c.logger.Warn("Failed to archive generation", "error", err, "id", rec.ID.String())
		}
	}

	return rec, nil
}
