package billing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"ai_selector/internal/catalog"
	"ai_selector/internal/models"
)

const (
	// ReportWindow is the default trailing window of usage summaries and
	// recommendations.
	ReportWindow = 30 * 24 * time.Hour

	// ExpensiveProviderThreshold is the 30 day spend on one paid provider above
	// which a cheaper alternative is suggested.
	ExpensiveProviderThreshold = 10.0

	// NearlyExhaustedRatio is the share of the monthly limit at which a warning
	// is raised.
	NearlyExhaustedRatio = 0.8
)

// UsageSummary aggregates a tenant's usage over the days [start, end], both
// inclusive. Zero bounds default to the trailing 30 days ending today.
func (c *Calculator) UsageSummary(ctx context.Context, tenantID string, start, end time.Time) (*models.UsageSummary, error) {
	if end.IsZero() {
		end = c.now()
	}
	end = models.UsageDate(end)
	if start.IsZero() {
		start = end.Add(-ReportWindow).AddDate(0, 0, 1)
	}
	start = models.UsageDate(start)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange,
			start.Format(models.UsageDateLayout), end.Format(models.UsageDateLayout))
	}

	records, err := c.usage.Query(ctx, models.UsageQuery{
		TenantID: tenantID,
		Since:    start,
		Until:    end.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}

	summary := &models.UsageSummary{
		TenantID:     tenantID,
		Start:        start,
		End:          end,
		ByProvider:   []models.UsageBucket{},
		ByCapability: []models.UsageBucket{},
		ByDay:        []models.UsageBucket{},
	}
	byProvider := map[string]*models.UsageBucket{}
	byCapability := map[string]*models.UsageBucket{}
	byDay := map[string]*models.UsageBucket{}

	for _, r := range records {
		summary.TotalUnits += r.Units
		summary.TotalCost += r.Cost
		summary.TotalRequests += r.Requests

		addToBucket(byProvider, string(r.Provider), r)
		addToBucket(byCapability, string(r.Capability), r)
		addToBucket(byDay, r.Date.UTC().Format(models.UsageDateLayout), r)
	}

	summary.ByProvider = sortedBuckets(byProvider)
	summary.ByCapability = sortedBuckets(byCapability)
	summary.ByDay = sortedBuckets(byDay)
	return summary, nil
}

func addToBucket(buckets map[string]*models.UsageBucket, key string, r models.UsageRecord) {
	b, ok := buckets[key]
	if !ok {
		b = &models.UsageBucket{Key: key}
		buckets[key] = b
	}
	b.Units += r.Units
	b.Cost += r.Cost
	b.Requests += r.Requests
}

func sortedBuckets(buckets map[string]*models.UsageBucket) []models.UsageBucket {
	out := make([]models.UsageBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CostComparison quotes every provider model offering the capability for the
// given quantity, cheapest first. Equal costs keep catalog order.
func (c *Calculator) CostComparison(ctx context.Context, capability models.Capability, quantity int64) ([]models.CostQuote, error) {
	cat, err := c.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return Compare(cat, capability, quantity), nil
}

// Compare is CostComparison over an already loaded catalog.
func Compare(cat *catalog.Catalog, capability models.Capability, quantity int64) []models.CostQuote {
	offers := cat.Offerings(capability)
	quotes := make([]models.CostQuote, 0, len(offers))
	for _, o := range offers {
		quotes = append(quotes, models.CostQuote{
			Provider:   o.Provider,
			Model:      o.Price.Model,
			Capability: capability,
			Quantity:   quantity,
			UnitCost:   o.Price.CostPerUnit,
			TotalCost:  o.Price.Cost(quantity),
			IsFree:     o.Price.IsFree(),
		})
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].TotalCost < quotes[j].TotalCost
	})
	return quotes
}

// BudgetStatus compares today's and this month's spend with the tenant's
// limits. Days and months are UTC.
func (c *Calculator) BudgetStatus(ctx context.Context, tenantID string) (models.BudgetStatus, error) {
	limits, err := c.budgets.Limits(ctx, tenantID)
	if err != nil {
		return models.BudgetStatus{}, fmt.Errorf("failed to load budget limits: %w", err)
	}

	today := models.UsageDate(c.now())
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	daily, err := c.usage.SumCost(ctx, tenantID, today, tomorrow)
	if err != nil {
		return models.BudgetStatus{}, fmt.Errorf("failed to sum daily cost: %w", err)
	}
	monthly, err := c.usage.SumCost(ctx, tenantID, monthStart, tomorrow)
	if err != nil {
		return models.BudgetStatus{}, fmt.Errorf("failed to sum monthly cost: %w", err)
	}

	status := models.NewBudgetStatus(tenantID, limits, daily, monthly)
	if status.DailyExceeded {
		c.metrics.ObserveBudgetExceeded("daily")
	}
	if status.MonthlyExceeded {
		c.metrics.ObserveBudgetExceeded("monthly")
	}
	return status, nil
}

// OptimizationRecommendations returns advisory suggestions for a tenant. It
// reads only and never affects selection.
func (c *Calculator) OptimizationRecommendations(ctx context.Context, tenantID string) ([]models.Recommendation, error) {
	cat, err := c.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	status, err := c.BudgetStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	today := models.UsageDate(c.now())
	records, err := c.usage.Query(ctx, models.UsageQuery{
		TenantID: tenantID,
		Since:    today.Add(-ReportWindow).AddDate(0, 0, 1),
		Until:    today.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}

	recs := budgetRecommendations(status)
	recs = append(recs, expensiveProviderRecommendations(cat, records)...)
	recs = append(recs, unusedFreeRecommendations(cat, records)...)
	return recs, nil
}

func budgetRecommendations(s models.BudgetStatus) []models.Recommendation {
	var recs []models.Recommendation
	if s.DailyExceeded {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationDailyBudgetExceeded,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("Daily budget exceeded: $%.2f spent of $%.2f. Selection now favors free providers.",
				s.DailyUsage, s.DailyLimit),
		})
	}
	if s.MonthlyExceeded {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationMonthlyBudgetExceeded,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("Monthly budget exceeded: $%.2f spent of $%.2f. Selection now favors free providers.",
				s.MonthlyUsage, s.MonthlyLimit),
		})
	} else if s.MonthlyLimit > 0 && s.MonthlyUsage >= s.MonthlyLimit*NearlyExhaustedRatio {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationBudgetNearlyExhausted,
			Severity: models.SeverityWarning,
			Message: fmt.Sprintf("Monthly spend is at %.0f%% of the $%.2f limit.",
				100*s.MonthlyUsage/s.MonthlyLimit, s.MonthlyLimit),
		})
	}
	return recs
}

type providerSpend struct {
	provider models.ProviderID
	cost     float64
	savings  float64
}

// expensiveProviderRecommendations flags paid providers above the spend
// threshold. Savings assume the same units on the cheapest other provider of
// each capability.
func expensiveProviderRecommendations(cat *catalog.Catalog, records []models.UsageRecord) []models.Recommendation {
	spend := map[models.ProviderID]*providerSpend{}
	var order []models.ProviderID
	for _, r := range records {
		s, ok := spend[r.Provider]
		if !ok {
			s = &providerSpend{provider: r.Provider}
			spend[r.Provider] = s
			order = append(order, r.Provider)
		}
		s.cost += r.Cost
		if alt, ok := cheapestAlternative(cat, r.Capability, r.Provider); ok {
			s.savings += math.Max(0, r.Cost-alt.Cost(r.Units))
		}
	}

	var flagged []*providerSpend
	for _, id := range order {
		if s := spend[id]; s.cost > ExpensiveProviderThreshold {
			flagged = append(flagged, s)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].cost > flagged[j].cost })

	recs := make([]models.Recommendation, 0, len(flagged))
	for _, s := range flagged {
		recs = append(recs, models.Recommendation{
			Type:     models.RecommendationExpensiveProvider,
			Severity: models.SeverityWarning,
			Provider: s.provider,
			Message: fmt.Sprintf("%s cost $%.2f over the last 30 days; consider a cheaper provider.",
				s.provider, s.cost),
			EstimatedSavings: s.savings,
		})
	}
	return recs
}

func cheapestAlternative(cat *catalog.Catalog, capability models.Capability, exclude models.ProviderID) (models.ModelPrice, bool) {
	var best models.ModelPrice
	found := false
	for _, cp := range cat.CapabilityProfiles(capability) {
		if cp.Provider == exclude {
			continue
		}
		if !found || cp.CostPerUnit < best.CostPerUnit {
			best = models.ModelPrice{Model: cp.Model, CostPerUnit: cp.CostPerUnit, Unit: cp.Unit}
			found = true
		}
	}
	return best, found
}

// unusedFreeRecommendations suggests free providers for capabilities the tenant
// paid for without trying them.
func unusedFreeRecommendations(cat *catalog.Catalog, records []models.UsageRecord) []models.Recommendation {
	paid := map[models.Capability]float64{}
	used := map[models.Capability]map[models.ProviderID]bool{}
	for _, r := range records {
		if r.Cost > 0 {
			paid[r.Capability] += r.Cost
		}
		if used[r.Capability] == nil {
			used[r.Capability] = map[models.ProviderID]bool{}
		}
		used[r.Capability][r.Provider] = true
	}

	var recs []models.Recommendation
	for _, capability := range models.KnownCapabilities {
		spent, ok := paid[capability]
		if !ok {
			continue
		}
		for _, cp := range cat.CapabilityProfiles(capability) {
			if !cp.IsFree() || used[capability][cp.Provider] {
				continue
			}
			recs = append(recs, models.Recommendation{
				Type:       models.RecommendationUnusedFreeProvider,
				Severity:   models.SeverityInfo,
				Provider:   cp.Provider,
				Capability: capability,
				Message: fmt.Sprintf("%s offers %s for free (%s) and was not used in the last 30 days.",
					cp.Provider, capability, cp.Model),
				EstimatedSavings: spent,
			})
		}
	}
	return recs
}
