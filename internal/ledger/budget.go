package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai_selector/internal/cache"
	"ai_selector/internal/models"
)

// ErrReadOnlyBudgets is returned when the budget source cannot store limits.
var ErrReadOnlyBudgets = errors.New("budget configuration is read-only")

// BudgetWriter stores per-tenant limits.
type BudgetWriter interface {
	Upsert(ctx context.Context, tenantID string, l models.BudgetLimits) error
}

// StaticBudgetConfig serves default limits plus per-tenant overrides held in
// memory.
type StaticBudgetConfig struct {
	defaults  models.BudgetLimits
	mu        sync.RWMutex
	overrides map[string]models.BudgetLimits
}

// NewStaticBudgetConfig validates every limit up front.
func NewStaticBudgetConfig(defaults models.BudgetLimits, overrides map[string]models.BudgetLimits) (*StaticBudgetConfig, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default budget: %w", err)
	}
	copied := make(map[string]models.BudgetLimits, len(overrides))
	for tenant, l := range overrides {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("budget for tenant %s: %w", tenant, err)
		}
		copied[tenant] = l
	}
	return &StaticBudgetConfig{defaults: defaults, overrides: copied}, nil
}

func (c *StaticBudgetConfig) Limits(ctx context.Context, tenantID string) (models.BudgetLimits, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if l, ok := c.overrides[tenantID]; ok {
		return l, nil
	}
	return c.defaults, nil
}

// Upsert sets the override of a tenant.
func (c *StaticBudgetConfig) Upsert(ctx context.Context, tenantID string, l models.BudgetLimits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[tenantID] = l
	return nil
}

// CachedBudgetConfig caches another source's answers per tenant.
type CachedBudgetConfig struct {
	source BudgetConfigSource
	cache  *cache.LRU[string, models.BudgetLimits]
}

// NewCachedBudgetConfig wraps source with an LRU cache of the given size and TTL.
func NewCachedBudgetConfig(source BudgetConfigSource, size int, ttl time.Duration) *CachedBudgetConfig {
	return &CachedBudgetConfig{
		source: source,
		cache:  cache.New[string, models.BudgetLimits](size, ttl),
	}
}

func (c *CachedBudgetConfig) Limits(ctx context.Context, tenantID string) (models.BudgetLimits, error) {
	if l, ok := c.cache.Get(tenantID); ok {
		return l, nil
	}
	l, err := c.source.Limits(ctx, tenantID)
	if err != nil {
		return models.BudgetLimits{}, err
	}
	c.cache.Set(tenantID, l)
	return l, nil
}

// Upsert writes through to the wrapped source and drops the cached entry.
func (c *CachedBudgetConfig) Upsert(ctx context.Context, tenantID string, l models.BudgetLimits) error {
	w, ok := c.source.(BudgetWriter)
	if !ok {
		return ErrReadOnlyBudgets
	}
	if err := w.Upsert(ctx, tenantID, l); err != nil {
		return err
	}
	c.Invalidate(tenantID)
	return nil
}

// Invalidate drops the cached limits of a tenant.
func (c *CachedBudgetConfig) Invalidate(tenantID string) {
	c.cache.Delete(tenantID)
}
