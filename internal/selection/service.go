// Package selection scores interchangeable providers for a capability and
// picks one, or orders all of them into a fallback chain.
package selection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ai_selector/internal/catalog"
	"ai_selector/internal/metrics"
	"ai_selector/internal/models"
	"ai_selector/internal/utils"
)

// BudgetChecker reports a tenant's budget state.
type BudgetChecker interface {
	BudgetStatus(ctx context.Context, tenantID string) (models.BudgetStatus, error)
}

// UsageCounter counts a tenant's recent requests on a provider.
type UsageCounter interface {
	CountRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) (int64, error)
}

// Request describes a selection call. Zero Quantity means the nominal quantity.
type Request struct {
	Capability        models.Capability
	TenantID          string
	PreferredProvider models.ProviderID
	PrioritizeFree    bool
	PrioritizeSpeed   bool
	Quantity          int64
}

// Service selects providers from the catalog.
type Service struct {
	catalog catalog.Source
	budgets BudgetChecker
	usage   UsageCounter
	scorer  *Scorer
	metrics metrics.Metrics
	now     func() time.Time
	logger  *utils.Logger
}

// NewService creates a selection service. budgets and usage may be nil, in
// which case no tenant ever counts as over budget or as having usage.
func NewService(src catalog.Source, budgets BudgetChecker, usage UsageCounter, weights Weights, m metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Service{
		catalog: src,
		budgets: budgets,
		usage:   usage,
		scorer:  NewScorer(weights),
		metrics: m,
		now:     time.Now,
		logger:  utils.NewLogger("selection"),
	}
}

// WithClock overrides time.Now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AvailableProviders lists the providers offering the capability in catalog order.
func (s *Service) AvailableProviders(ctx context.Context, capability models.Capability) ([]models.ProviderID, error) {
	cat, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat.ProvidersFor(capability), nil
}

// ScoreProviders scores every available provider, best first. Equal scores
// keep catalog order.
func (s *Service) ScoreProviders(ctx context.Context, req Request) ([]models.ProviderScore, error) {
	cat, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return s.score(ctx, cat, req), nil
}

func (s *Service) score(ctx context.Context, cat *catalog.Catalog, req Request) []models.ProviderScore {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = s.scorer.weights.NominalQuantity
	}
	overBudget := s.budgetExceeded(ctx, req.TenantID)
	since := s.usageSince()

	profiles := cat.CapabilityProfiles(req.Capability)
	scores := make([]models.ProviderScore, 0, len(profiles))
	for _, p := range profiles {
		scores = append(scores, models.ProviderScore{
			Provider: p.Provider,
			Model:    p.Model,
			Score: s.scorer.Score(ScoreInput{
				Profile:         p,
				PrioritizeFree:  req.PrioritizeFree,
				PrioritizeSpeed: req.PrioritizeSpeed,
				BudgetExceeded:  overBudget,
				RecentRequests:  s.recentRequests(ctx, req.TenantID, p.Provider, since),
			}),
			UnitCost: p.CostPerUnit,
			Cost:     p.CostPerUnit * float64(quantity),
			IsFree:   p.IsFree(),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// usageSince is the first day of the trailing usage window, today included.
func (s *Service) usageSince() time.Time {
	return models.UsageDate(s.now().Add(-s.scorer.weights.UsageWindow)).AddDate(0, 0, 1)
}

// budgetExceeded treats lookup failures as no budget pressure.
func (s *Service) budgetExceeded(ctx context.Context, tenantID string) bool {
	if tenantID == "" || s.budgets == nil {
		return false
	}
	status, err := s.budgets.BudgetStatus(ctx, tenantID)
	if err != nil {
		s.logger.Warn("Budget lookup failed, scoring without budget pressure", "tenant", tenantID, "error", err)
		return false
	}
	return status.Exceeded()
}

// recentRequests treats lookup failures as zero usage.
func (s *Service) recentRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) int64 {
	if tenantID == "" || s.usage == nil {
		return 0
	}
	n, err := s.usage.CountRequests(ctx, tenantID, provider, since)
	if err != nil {
		s.logger.Warn("Usage lookup failed, scoring as unused", "tenant", tenantID, "provider", provider, "error", err)
		return 0
	}
	return n
}

// SelectProvider returns the preferred provider when it is available, else the
// best scored one. It returns false when no provider offers the capability or
// the catalog cannot be loaded; that is not a retryable failure.
func (s *Service) SelectProvider(ctx context.Context, req Request) (*models.Selection, bool) {
	cat, err := s.catalog.Load(ctx)
	if err != nil {
		s.logger.Error("Catalog unavailable, no provider selected", "error", err, "capability", req.Capability)
		s.metrics.ObserveSelection(string(req.Capability), "", metrics.OutcomeNone)
		return nil, false
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = s.scorer.weights.NominalQuantity
	}

	if req.PreferredProvider != "" {
		if p, ok := cat.CapabilityProfile(req.PreferredProvider, req.Capability); ok {
			s.metrics.ObserveSelection(string(req.Capability), string(p.Provider), metrics.OutcomePreferred)
			return &models.Selection{
				Provider:  p.Provider,
				Model:     p.Model,
				Cost:      p.CostPerUnit * float64(quantity),
				IsFree:    p.IsFree(),
				Preferred: true,
			}, true
		}
		s.logger.Debug("Preferred provider not available, scoring",
			"provider", req.PreferredProvider, "capability", req.Capability)
	}

	scores := s.score(ctx, cat, req)
	if len(scores) == 0 {
		s.metrics.ObserveSelection(string(req.Capability), "", metrics.OutcomeNone)
		return nil, false
	}

	best := scores[0]
	s.metrics.ObserveSelection(string(req.Capability), string(best.Provider), metrics.OutcomeScored)
	return &models.Selection{
		Provider: best.Provider,
		Model:    best.Model,
		Cost:     best.Cost,
		IsFree:   best.IsFree,
		Score:    best.Score,
	}, true
}

// FallbackChain orders every provider of the capability for retries, free
// providers favored and quoted at the nominal quantity.
func (s *Service) FallbackChain(ctx context.Context, capability models.Capability, tenantID string) ([]models.ProviderScore, error) {
	return s.ScoreProviders(ctx, Request{
		Capability:     capability,
		TenantID:       tenantID,
		PrioritizeFree: true,
		Quantity:       s.scorer.weights.NominalQuantity,
	})
}
