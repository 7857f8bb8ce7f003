package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_selector/internal/billing"
	"ai_selector/internal/catalog"
	"ai_selector/internal/config"
	"ai_selector/internal/generation"
	"ai_selector/internal/ledger"
	"ai_selector/internal/middleware"
	"ai_selector/internal/models"
	"ai_selector/internal/selection"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Ledger:  config.LedgerConfig{Backend: config.LedgerMemory},
		Catalog: config.CatalogConfig{Source: config.CatalogEmbedded, CacheTTL: time.Minute},
		Budget: config.BudgetConfig{
			DailyLimit:   config.DefaultDailyLimit,
			MonthlyLimit: config.DefaultMonthlyLimit,
			CacheSize:    100,
			CacheTTL:     time.Minute,
		},
		Scoring:    selection.DefaultWeights(),
		Generation: config.GenerationConfig{RequestTimeout: time.Second},
		Archive: config.ArchiveConfig{
			Enabled:      true,
			Backend:      config.ArchiveFile,
			Queue:        config.ArchiveQueueMem,
			BatchSize:    10,
			BatchTimeout: 20 * time.Millisecond,
			MaxRetries:   1,
			RetryBackoff: time.Millisecond,
			FileTemplate: filepath.Join(t.TempDir(), "generations-%s.jsonl"),
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T, executor generation.Executor) (http.Handler, *Dependencies) {
	t.Helper()
	handler, deps, err := NewRouter(context.Background(), testConfig(t), executor)
	require.NoError(t, err)
	t.Cleanup(func() { deps.Close(context.Background()) })
	return handler, deps
}

// newStaticDeps wires the services around src without archive or metrics.
func newStaticDeps(t *testing.T, src catalog.Source) *Dependencies {
	t.Helper()
	mem := ledger.NewMemoryStore()
	static, err := ledger.NewStaticBudgetConfig(models.BudgetLimits{Daily: 100, Monthly: 1000}, nil)
	require.NoError(t, err)
	budgets := ledger.NewCachedBudgetConfig(static, 10, time.Minute)
	calc := billing.NewCalculator(src, mem, mem, budgets)
	return &Dependencies{
		Budgets:   budgets,
		Billing:   calc,
		Selection: selection.NewService(src, calc, mem, selection.DefaultWeights(), nil),
	}
}

func do(t *testing.T, h http.Handler, method, target, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if tenant != "" {
		req.Header.Set(middleware.TenantHeader, tenant)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestSelect(t *testing.T) {
	h, _ := newTestServer(t, nil)

	tests := []struct {
		name          string
		body          any
		wantStatus    int
		wantProvider  models.ProviderID
		wantPreferred bool
	}{
		{"best score", map[string]any{"capability": "text"}, http.StatusOK, models.ProviderLocal, false},
		{"preferred provider", map[string]any{"capability": "text", "preferred_provider": "OpenAI"}, http.StatusOK, models.ProviderOpenAI, true},
		{"preferred without capability", map[string]any{"capability": "image", "preferred_provider": "anthropic"}, http.StatusOK, models.ProviderLocal, false},
		{"unknown capability", map[string]any{"capability": "video"}, http.StatusBadRequest, "", false},
		{"unknown field", `{"capability":"text","speed":true}`, http.StatusBadRequest, "", false},
		{"negative quantity", map[string]any{"capability": "text", "quantity": -1}, http.StatusBadRequest, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/v1/select", "", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			sel := decode[models.Selection](t, w)
			assert.Equal(t, tt.wantProvider, sel.Provider)
			assert.Equal(t, tt.wantPreferred, sel.Preferred)
		})
	}
}

func TestSelect_CatalogUnavailable(t *testing.T) {
	h := NewHandler(newStaticDeps(t, catalog.StaticSource{}))

	w := do(t, h, "POST", "/v1/select", "", map[string]any{"capability": "text"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), errServiceUnavailable)

	w = do(t, h, "GET", "/v1/costs/comparison?capability=text", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, h, "GET", "/v1/fallback?capability=text", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFallbackAndProviders(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "GET", "/v1/fallback?capability=text", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	chain := decode[chainResponse](t, w)
	require.Len(t, chain.Providers, 4)
	assert.Equal(t, models.ProviderLocal, chain.Providers[0].Provider)

	w = do(t, h, "GET", "/v1/providers?capability=image", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	providers := decode[providersResponse](t, w)
	assert.Equal(t, []models.ProviderID{models.ProviderOpenAI, models.ProviderGoogle, models.ProviderLocal}, providers.Providers)

	w = do(t, h, "GET", "/v1/fallback", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCostEndpoints(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "GET", "/v1/costs/comparison?capability=image&quantity=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	quotes := decode[[]models.CostQuote](t, w)
	require.NotEmpty(t, quotes)
	assert.Equal(t, models.ProviderLocal, quotes[0].Provider)
	for i := 1; i < len(quotes); i++ {
		assert.LessOrEqual(t, quotes[i-1].TotalCost, quotes[i].TotalCost)
	}

	w = do(t, h, "GET", "/v1/costs/estimate?provider=openai&capability=image&quantity=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	est := decode[estimateResponse](t, w)
	assert.InDelta(t, 0.04, est.UnitCost, 1e-12)
	assert.InDelta(t, 0.4, est.TotalCost, 1e-12)

	w = do(t, h, "GET", "/v1/costs/estimate?provider=openai&model=unknown&capability=text", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[estimateResponse](t, w).TotalCost)

	w = do(t, h, "GET", "/v1/costs/estimate?capability=text", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "GET", "/v1/costs/comparison?capability=text&quantity=-5", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordGenerationAndReports(t *testing.T) {
	h, deps := newTestServer(t, nil)

	w := do(t, h, "POST", "/v1/generations", "acme", map[string]any{
		"capability": "text",
		"provider":   "openai",
		"model":      "gpt-4",
		"prompt":     "hello",
		"result":     "world",
		"units":      1000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[models.GenerationRecord](t, w)
	assert.Equal(t, "acme", rec.TenantID)
	assert.InDelta(t, 0.03, rec.Cost, 1e-12)

	w = do(t, h, "GET", "/v1/budget", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[models.BudgetStatus](t, w)
	assert.InDelta(t, 0.03, status.DailyUsage, 1e-12)
	assert.False(t, status.DailyExceeded)

	w = do(t, h, "GET", "/v1/usage", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[models.UsageSummary](t, w)
	assert.Equal(t, int64(1000), summary.TotalUnits)
	assert.Equal(t, int64(1), summary.TotalRequests)

	w = do(t, h, "GET", "/v1/recommendations", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[[]models.Recommendation](t, w)
	require.NotEmpty(t, recs)
	assert.Equal(t, models.ProviderLocal, recs[0].Provider, "local text is free and unused")

	// the archive worker writes the record to the file target
	assert.Eventually(t, func() bool {
		n, err := deps.ArchiveWorker.QueueLength(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecordGeneration_Validation(t *testing.T) {
	h, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		tenant string
		body   any
	}{
		{"missing tenant", "", map[string]any{"capability": "text", "provider": "openai", "units": 1}},
		{"bad capability", "acme", map[string]any{"capability": "audio", "provider": "openai", "units": 1}},
		{"missing provider", "acme", map[string]any{"capability": "text", "units": 1}},
		{"negative units", "acme", map[string]any{"capability": "text", "provider": "openai", "units": -1}},
		{"negative cost", "acme", map[string]any{"capability": "text", "provider": "openai", "units": 1, "cost": -0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/v1/generations", tt.tenant, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUsage_DateValidation(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "GET", "/v1/usage?start=2024-13-01", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "GET", "/v1/usage?start=2024-06-10&end=2024-06-01", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, "GET", "/v1/usage?start=2999-01-01", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid date range")

	w = do(t, h, "GET", "/v1/usage?start=2024-06-01&end=2024-06-10", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[models.UsageSummary](t, w)
	assert.Equal(t, "2024-06-01", summary.Start.Format(dateLayout))
	assert.Empty(t, summary.ByDay)
}

func TestUpdateBudget(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "PUT", "/v1/budget", "acme", map[string]any{"daily": 0.01, "monthly": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0.01, decode[models.BudgetStatus](t, w).DailyLimit)

	w = do(t, h, "POST", "/v1/generations", "acme", map[string]any{
		"capability": "text", "provider": "openai", "model": "gpt-4", "units": 1000,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, "GET", "/v1/budget", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.BudgetStatus](t, w).DailyExceeded)

	w = do(t, h, "PUT", "/v1/budget", "acme", map[string]any{"daily": -1, "monthly": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate(t *testing.T) {
	calls := 0
	exec := generation.ExecutorFunc(func(ctx context.Context, call generation.Call) (*generation.Output, error) {
		calls++
		if call.Provider == models.ProviderLocal {
			return nil, errors.New("ollama not running")
		}
		return &generation.Output{Content: fmt.Sprintf("%s says hi", call.Provider), Units: 500}, nil
	})
	h, _ := newTestServer(t, exec)

	w := do(t, h, "POST", "/v1/generate", "acme", map[string]any{"capability": "text", "prompt": "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[generation.Result](t, w)
	assert.True(t, res.FallbackUsed)
	assert.NotEqual(t, models.ProviderLocal, res.Provider)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, models.ProviderLocal, res.Failed[0].Provider)
	assert.Equal(t, 2, calls)

	w = do(t, h, "POST", "/v1/generate", "", map[string]any{"capability": "text", "prompt": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_AllProvidersFail(t *testing.T) {
	exec := generation.ExecutorFunc(func(ctx context.Context, call generation.Call) (*generation.Output, error) {
		return nil, errors.New("down")
	})
	h, _ := newTestServer(t, exec)

	w := do(t, h, "POST", "/v1/generate", "acme", map[string]any{"capability": "image", "prompt": "a cat"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGenerate_NotRegisteredWithoutExecutor(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "POST", "/v1/generate", "acme", map[string]any{"capability": "text"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeadLetters(t *testing.T) {
	h, _ := newTestServer(t, nil)

	w := do(t, h, "GET", "/v1/archive/dead-letters", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[deadLettersResponse](t, w).Items)

	w = do(t, h, "POST", "/v1/archive/dead-letters/missing/retry", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, nil)

	do(t, h, "POST", "/v1/select", "", map[string]any{"capability": "text"})

	w := do(t, h, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "ai_selector_provider_selections_total"), body)
	assert.Contains(t, body, `route="POST /v1/select"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", billing.ErrPersistence), http.StatusInternalServerError},
		{billing.ErrInvalidGeneration, http.StatusBadRequest},
		{fmt.Errorf("%w: start after end", billing.ErrInvalidRange), http.StatusBadRequest},
		{billing.ErrCatalogUnavailable, http.StatusServiceUnavailable},
		{generation.ErrNoProviderAvailable, http.StatusServiceUnavailable},
		{generation.ErrAllProvidersFailed, http.StatusBadGateway},
		{generation.ErrBudgetExceeded, http.StatusPaymentRequired},
		{ledger.ErrReadOnlyBudgets, http.StatusMethodNotAllowed},
		{models.ErrInvalidBudget, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
