// Package generation runs a generation end to end: budget gate, provider
// selection, vendor call with fallback, and cost recording.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai_selector/internal/billing"
	"ai_selector/internal/metrics"
	"ai_selector/internal/models"
	"ai_selector/internal/selection"
	"ai_selector/internal/utils"
)

var (
	// ErrNoProviderAvailable means no provider offers the capability.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrAllProvidersFailed means every provider of the fallback chain failed.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrBudgetExceeded is returned when over-budget requests are rejected.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid generation request")
)

// Selector picks providers.
type Selector interface {
	SelectProvider(ctx context.Context, req selection.Request) (*models.Selection, bool)
	FallbackChain(ctx context.Context, capability models.Capability, tenantID string) ([]models.ProviderScore, error)
}

// Recorder checks budgets and records completed generations.
type Recorder interface {
	BudgetStatus(ctx context.Context, tenantID string) (models.BudgetStatus, error)
	RecordGeneration(ctx context.Context, in billing.GenerationInput) (*models.GenerationRecord, error)
}

// Request is a generation request.
type Request struct {
	TenantID          string
	UserID            string
	Capability        models.Capability
	Prompt            string
	PreferredProvider models.ProviderID
	PrioritizeFree    bool
	PrioritizeSpeed   bool
	// Quantity is the expected number of units, used to quote costs.
	Quantity int64
	Options  map[string]any
	Metadata models.JSONB
}

// Attempt records one failed vendor call.
type Attempt struct {
	Provider models.ProviderID `json:"provider"`
	Model    string            `json:"model"`
	Error    string            `json:"error"`
}

// Result is a completed generation.
type Result struct {
	Record       *models.GenerationRecord `json:"record"`
	Content      string                   `json:"content"`
	Provider     models.ProviderID        `json:"provider"`
	Model        string                   `json:"model"`
	Cost         float64                  `json:"cost"`
	IsFree       bool                     `json:"is_free"`
	FallbackUsed bool                     `json:"fallback_used"`
	BudgetForced bool                     `json:"budget_forced_free"`
	Failed       []Attempt                `json:"failed_attempts,omitempty"`
}

// Options configure a Service.
type Options struct {
	// RejectOverBudget refuses requests of over-budget tenants instead of
	// steering them to free providers.
	RejectOverBudget bool
	// CallTimeout bounds each vendor call. Zero means no bound.
	CallTimeout time.Duration
	Metrics     metrics.Metrics
}

// Service orchestrates generations.
type Service struct {
	selector Selector
	recorder Recorder
	executor Executor
	opts     Options
	logger   *utils.Logger
}

// NewService creates a generation service.
func NewService(selector Selector, recorder Recorder, executor Executor, opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopMetrics()
	}
	return &Service{
		selector: selector,
		recorder: recorder,
		executor: executor,
		opts:     opts,
		logger:   utils.NewLogger("generation"),
	}
}

func (r *Request) validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant is required", ErrInvalidRequest)
	}
	if _, err := models.ParseCapability(string(r.Capability)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be non-negative", ErrInvalidRequest)
	}
	return nil
}

// Generate runs a generation. The selected provider is tried first, then the
// rest of the fallback chain, each provider at most once. A generation whose
// cost cannot be recorded fails with billing.ErrPersistence.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	forced, err := s.budgetGate(ctx, &req)
	if err != nil {
		return nil, err
	}

	sel, ok := s.selector.SelectProvider(ctx, selection.Request{
		Capability:        req.Capability,
		TenantID:          req.TenantID,
		PreferredProvider: req.PreferredProvider,
		PrioritizeFree:    req.PrioritizeFree,
		PrioritizeSpeed:   req.PrioritizeSpeed,
		Quantity:          req.Quantity,
	})
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoProviderAvailable, req.Capability)
	}

	var failed []Attempt
	tried := map[models.ProviderID]bool{}

	out, err := s.execute(ctx, req, sel.Provider, sel.Model)
	tried[sel.Provider] = true
	provider, model, isFree := sel.Provider, sel.Model, sel.IsFree
	if err != nil {
		failed = append(failed, Attempt{Provider: sel.Provider, Model: sel.Model, Error: err.Error()})
		s.logger.Warn("Provider call failed, trying fallback chain",
			"provider", sel.Provider, "model", sel.Model, "error", err)

		out, provider, model, isFree, err = s.fallback(ctx, req, tried, &failed)
		if err != nil {
			return nil, err
		}
		s.opts.Metrics.ObserveSelection(string(req.Capability), string(provider), metrics.OutcomeFallback)
	}

	rec, err := s.recorder.RecordGeneration(ctx, billing.GenerationInput{
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		Capability: req.Capability,
		Provider:   provider,
		Model:      model,
		Prompt:     req.Prompt,
		Result:     out.Content,
		Units:      out.Units,
		Metadata:   mergeMetadata(req.Metadata, out.Metadata),
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Record:       rec,
		Content:      out.Content,
		Provider:     provider,
		Model:        model,
		Cost:         rec.Cost,
		IsFree:       isFree,
		FallbackUsed: len(failed) > 0,
		BudgetForced: forced,
		Failed:       failed,
	}, nil
}

// budgetGate forces free-first selection for over-budget tenants, or rejects
// them when configured to. A failed budget lookup lets the request through.
func (s *Service) budgetGate(ctx context.Context, req *Request) (bool, error) {
	status, err := s.recorder.BudgetStatus(ctx, req.TenantID)
	if err != nil {
		s.logger.Warn("Budget lookup failed, continuing without budget gate", "tenant", req.TenantID, "error", err)
		return false, nil
	}
	if !status.Exceeded() {
		return false, nil
	}
	if s.opts.RejectOverBudget {
		return false, fmt.Errorf("%w for tenant %s", ErrBudgetExceeded, req.TenantID)
	}
	if !req.PrioritizeFree {
		s.logger.Info("Tenant over budget, prioritizing free providers", "tenant", req.TenantID)
	}
	req.PrioritizeFree = true
	return true, nil
}

func (s *Service) fallback(ctx context.Context, req Request, tried map[models.ProviderID]bool, failed *[]Attempt) (*Output, models.ProviderID, string, bool, error) {
	chain, err := s.selector.FallbackChain(ctx, req.Capability, req.TenantID)
	if err != nil {
		return nil, "", "", false, fmt.Errorf("%w: fallback chain unavailable: %w", ErrAllProvidersFailed, err)
	}

	var lastErr error
	for _, p := range chain {
		if tried[p.Provider] {
			continue
		}
		tried[p.Provider] = true

		out, err := s.execute(ctx, req, p.Provider, p.Model)
		if err != nil {
			*failed = append(*failed, Attempt{Provider: p.Provider, Model: p.Model, Error: err.Error()})
			s.logger.Warn("Fallback provider failed", "provider", p.Provider, "model", p.Model, "error", err)
			lastErr = err
			continue
		}
		return out, p.Provider, p.Model, p.IsFree, nil
	}

	if lastErr == nil {
		return nil, "", "", false, fmt.Errorf("%w: no fallback provider left", ErrAllProvidersFailed)
	}
	return nil, "", "", false, fmt.Errorf("%w, last error: %w", ErrAllProvidersFailed, lastErr)
}

func (s *Service) execute(ctx context.Context, req Request, provider models.ProviderID, model string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	out, err := s.executor.Execute(ctx, Call{
		Capability: req.Capability,
		Provider:   provider,
		Model:      model,
		Prompt:     req.Prompt,
		Options:    req.Options,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("executor returned no output")
	}
	return out, nil
}

func mergeMetadata(request, output models.JSONB) models.JSONB {
	if len(request) == 0 && len(output) == 0 {
		return nil
	}
	merged := make(models.JSONB, len(request)+len(output))
	for k, v := range request {
		merged[k] = v
	}
	for k, v := range output {
		merged[k] = v
	}
	return merged
}
