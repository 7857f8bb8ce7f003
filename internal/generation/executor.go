package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ai_selector/internal/models"
)

// ErrNoExecutor is returned by a Registry without an executor for the provider.
var ErrNoExecutor = errors.New("no executor registered for provider")

// Call is one vendor invocation.
type Call struct {
	Capability models.Capability
	Provider   models.ProviderID
	Model      string
	Prompt     string
	Options    map[string]any
}

// Output is what a vendor returned. Units are tokens, images or requests
// depending on the capability.
type Output struct {
	Content  string
	Units    int64
	Metadata models.JSONB
}

// Executor performs the vendor call for a selected provider.
type Executor interface {
	Execute(ctx context.Context, call Call) (*Output, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call Call) (*Output, error)

func (f ExecutorFunc) Execute(ctx context.Context, call Call) (*Output, error) {
	return f(ctx, call)
}

// Registry dispatches calls to per-provider executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.ProviderID]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.ProviderID]Executor)}
}

// Register sets the executor of a provider, replacing any previous one.
func (r *Registry) Register(provider models.ProviderID, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[provider] = e
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

func (r *Registry) Execute(ctx context.Context, call Call) (*Output, error) {
	r.mu.RLock()
	e, ok := r.executors[call.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutor, call.Provider)
	}
	return e.Execute(ctx, call)
}
