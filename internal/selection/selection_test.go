package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_selector/internal/catalog"
	"ai_selector/internal/models"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeBudgets struct {
	status models.BudgetStatus
	err    error
	calls  int
}

func (f *fakeBudgets) BudgetStatus(ctx context.Context, tenantID string) (models.BudgetStatus, error) {
	f.calls++
	return f.status, f.err
}

type fakeUsage struct {
	counts map[models.ProviderID]int64
	err    error
	since  time.Time
}

func (f *fakeUsage) CountRequests(ctx context.Context, tenantID string, provider models.ProviderID, since time.Time) (int64, error) {
	f.since = since
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[provider], nil
}

type errSource struct{}

func (errSource) Load(ctx context.Context) (*catalog.Catalog, error) {
	return nil, errors.New("catalog store down")
}

func newService(budgets BudgetChecker, usage UsageCounter) *Service {
	return NewService(catalog.EmbeddedSource{}, budgets, usage, DefaultWeights(), nil).
		WithClock(func() time.Time { return now })
}

func providers(scores []models.ProviderScore) []models.ProviderID {
	out := make([]models.ProviderID, 0, len(scores))
	for _, s := range scores {
		out = append(out, s.Provider)
	}
	return out
}

func TestScorer_Score(t *testing.T) {
	local := models.ProviderCapabilityProfile{
		Provider: models.ProviderLocal, Model: "llama3", CostPerUnit: 0,
		BaseWeight: 1.0, PerformanceWeight: 0.6, ReliabilityWeight: 0.7,
	}
	openai := models.ProviderCapabilityProfile{
		Provider: models.ProviderOpenAI, Model: "gpt-4", CostPerUnit: 0.00003,
		BaseWeight: 0.6, PerformanceWeight: 0.9, ReliabilityWeight: 0.9,
	}
	pricey := models.ProviderCapabilityProfile{
		Provider: models.ProviderOpenAI, Model: "dall-e-3", CostPerUnit: 0.04,
		BaseWeight: 0, PerformanceWeight: 0.1, ReliabilityWeight: 0.1,
	}

	tests := []struct {
		name string
		in   ScoreInput
		want float64
	}{
		{"free unused", ScoreInput{Profile: local}, 4.8},
		{"paid unused", ScoreInput{Profile: openai}, 3.87},
		{"free prioritized", ScoreInput{Profile: local, PrioritizeFree: true}, 6.3},
		{"paid ignores free priority", ScoreInput{Profile: openai, PrioritizeFree: true}, 3.87},
		{"speed prioritized", ScoreInput{Profile: local, PrioritizeSpeed: true}, 5.1},
		{"free over budget", ScoreInput{Profile: local, BudgetExceeded: true}, 7.8},
		{"paid over budget", ScoreInput{Profile: openai, BudgetExceeded: true}, 1.87},
		{"light usage", ScoreInput{Profile: local, RecentRequests: 9}, 4.5},
		{"heavy usage", ScoreInput{Profile: local, RecentRequests: 10}, 4.2},
		{"cost term floors at zero", ScoreInput{Profile: pricey, RecentRequests: 100}, 0.1},
		{"clamped at zero", ScoreInput{Profile: pricey, BudgetExceeded: true, RecentRequests: 100}, 0},
	}

	scorer := NewScorer(DefaultWeights())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.in)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScorer_CustomWeights(t *testing.T) {
	w := DefaultWeights()
	w.FreeBonus = 0
	w.UnusedBonus = 0
	scorer := NewScorer(w)

	got := scorer.Score(ScoreInput{Profile: models.ProviderCapabilityProfile{BaseWeight: 1, PerformanceWeight: 0.5, ReliabilityWeight: 0.5}})
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestService_ScoreProvidersDefaultCatalog(t *testing.T) {
	svc := newService(nil, nil)

	scores, err := svc.ScoreProviders(context.Background(), Request{Capability: models.CapabilityText})
	require.NoError(t, err)

	assert.Equal(t, []models.ProviderID{
		models.ProviderLocal, models.ProviderAnthropic, models.ProviderOpenAI, models.ProviderGoogle,
	}, providers(scores))
	assert.InDelta(t, 4.8, scores[0].Score, 1e-9)
	assert.InDelta(t, 3.87, scores[2].Score, 1e-9)
	assert.InDelta(t, 0.03, scores[2].Cost, 1e-12, "quoted at the nominal quantity")
	assert.True(t, scores[0].IsFree)
}

func TestService_BudgetPressureFavorsFree(t *testing.T) {
	budgets := &fakeBudgets{status: models.BudgetStatus{MonthlyExceeded: true}}
	svc := newService(budgets, &fakeUsage{})

	sel, ok := svc.SelectProvider(context.Background(), Request{
		Capability: models.CapabilityImage,
		TenantID:   "acme",
	})
	require.True(t, ok)
	assert.Equal(t, models.ProviderLocal, sel.Provider)
	assert.True(t, sel.IsFree)
	assert.Equal(t, 1, budgets.calls)
}

func TestService_UsageBalancing(t *testing.T) {
	usage := &fakeUsage{counts: map[models.ProviderID]int64{
		models.ProviderLocal:     50,
		models.ProviderAnthropic: 3,
	}}
	svc := newService(&fakeBudgets{}, usage)

	scores, err := svc.ScoreProviders(context.Background(), Request{Capability: models.CapabilityText, TenantID: "acme"})
	require.NoError(t, err)

	byProvider := map[models.ProviderID]float64{}
	for _, s := range scores {
		byProvider[s.Provider] = s.Score
	}
	assert.InDelta(t, 4.2, byProvider[models.ProviderLocal], 1e-9)
	assert.InDelta(t, 3.635, byProvider[models.ProviderAnthropic], 1e-9)
	assert.InDelta(t, 3.87, byProvider[models.ProviderOpenAI], 1e-9)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), usage.since, "seven days including today")
}

func TestService_LookupErrorsAreAbsorbed(t *testing.T) {
	svc := newService(
		&fakeBudgets{err: errors.New("budget store down")},
		&fakeUsage{err: errors.New("usage store down")},
	)

	scores, err := svc.ScoreProviders(context.Background(), Request{Capability: models.CapabilityText, TenantID: "acme"})
	require.NoError(t, err)
	require.NotEmpty(t, scores)
	assert.Equal(t, models.ProviderLocal, scores[0].Provider)
	assert.InDelta(t, 4.8, scores[0].Score, 1e-9)
}

func TestService_NoTenantSkipsLookups(t *testing.T) {
	budgets := &fakeBudgets{status: models.BudgetStatus{DailyExceeded: true}}
	svc := newService(budgets, &fakeUsage{})

	scores, err := svc.ScoreProviders(context.Background(), Request{Capability: models.CapabilityText})
	require.NoError(t, err)
	assert.Equal(t, 0, budgets.calls)
	assert.InDelta(t, 4.8, scores[0].Score, 1e-9)
}

func TestService_SelectProvider(t *testing.T) {
	svc := newService(nil, nil)
	ctx := context.Background()

	t.Run("preferred provider wins", func(t *testing.T) {
		sel, ok := svc.SelectProvider(ctx, Request{
			Capability:        models.CapabilityText,
			PreferredProvider: models.ProviderOpenAI,
			Quantity:          2000,
		})
		require.True(t, ok)
		assert.Equal(t, models.ProviderOpenAI, sel.Provider)
		assert.Equal(t, "gpt-4", sel.Model)
		assert.True(t, sel.Preferred)
		assert.InDelta(t, 0.06, sel.Cost, 1e-12)
	})

	t.Run("unavailable preference falls back to scoring", func(t *testing.T) {
		sel, ok := svc.SelectProvider(ctx, Request{
			Capability:        models.CapabilityImage,
			PreferredProvider: models.ProviderAnthropic,
		})
		require.True(t, ok)
		assert.Equal(t, models.ProviderLocal, sel.Provider)
		assert.False(t, sel.Preferred)
		assert.Greater(t, sel.Score, 0.0)
	})

	t.Run("none when no provider offers capability", func(t *testing.T) {
		cat, err := catalog.Parse([]byte(`
providers:
  - id: local
    base_weight: 1
    performance_weight: 1
    reliability_weight: 1
    capabilities: {text: true}
    models:
      text:
        - {model: llama3, cost_per_unit: 0}
`))
		require.NoError(t, err)
		svc := NewService(catalog.StaticSource{Catalog: cat}, nil, nil, DefaultWeights(), nil)

		sel, ok := svc.SelectProvider(ctx, Request{Capability: models.CapabilityImage})
		assert.False(t, ok)
		assert.Nil(t, sel)
	})

	t.Run("none when catalog unavailable", func(t *testing.T) {
		svc := NewService(errSource{}, nil, nil, DefaultWeights(), nil)

		sel, ok := svc.SelectProvider(ctx, Request{Capability: models.CapabilityText})
		assert.False(t, ok)
		assert.Nil(t, sel)

		_, err := svc.AvailableProviders(ctx, models.CapabilityText)
		assert.Error(t, err)
	})
}

func TestService_FallbackChain(t *testing.T) {
	svc := newService(&fakeBudgets{}, &fakeUsage{})
	ctx := context.Background()

	chain, err := svc.FallbackChain(ctx, models.CapabilityText, "acme")
	require.NoError(t, err)

	available, err := svc.AvailableProviders(ctx, models.CapabilityText)
	require.NoError(t, err)
	assert.ElementsMatch(t, available, providers(chain), "every provider exactly once")
	assert.InDelta(t, 6.3, chain[0].Score, 1e-9)

	for i := 1; i < len(chain); i++ {
		assert.GreaterOrEqual(t, chain[i-1].Score, chain[i].Score)
	}

	for i := 0; i < 10; i++ {
		again, err := svc.FallbackChain(ctx, models.CapabilityText, "acme")
		require.NoError(t, err)
		assert.Equal(t, chain, again)
	}
}

func TestService_TiesKeepCatalogOrder(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
providers:
  - id: google
    base_weight: 0.5
    performance_weight: 0.5
    reliability_weight: 0.5
    capabilities: {text: true}
    models:
      text:
        - {model: g, cost_per_unit: 0.00001}
  - id: anthropic
    base_weight: 0.5
    performance_weight: 0.5
    reliability_weight: 0.5
    capabilities: {text: true}
    models:
      text:
        - {model: a, cost_per_unit: 0.00001}
  - id: openai
    base_weight: 0.5
    performance_weight: 0.5
    reliability_weight: 0.5
    capabilities: {text: true}
    models:
      text:
        - {model: o, cost_per_unit: 0.00001}
  - id: local
    base_weight: 0.5
    performance_weight: 0.5
    reliability_weight: 0.5
    capabilities: {text: true}
    models:
      text:
        - {model: l, cost_per_unit: 0.00001}
`))
	require.NoError(t, err)
	svc := NewService(catalog.StaticSource{Catalog: cat}, nil, nil, DefaultWeights(), nil)

	for i := 0; i < 10; i++ {
		chain, err := svc.FallbackChain(context.Background(), models.CapabilityText, "")
		require.NoError(t, err)
		assert.Equal(t, []models.ProviderID{
			models.ProviderGoogle, models.ProviderAnthropic, models.ProviderOpenAI, models.ProviderLocal,
		}, providers(chain))
	}
}
