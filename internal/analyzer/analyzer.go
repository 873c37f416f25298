// Package analyzer defines the interface and implementations for answer
// providers that run a monitored prompt and extract brand-visibility signals
// from the answer.
package analyzer

import (
	"context"
	"sync"

	"github.com/sells-group/promptwatch/internal/model"
)

// Analyzer runs one monitored prompt against an answer engine and returns a
// recorded run with the extracted signals.
type Analyzer interface {
	// Name returns the provider identifier stored on runs ("openai", "gemini").
	Name() string
	// Analyze asks the engine the prompt text and extracts signals against
	// the company's brand names and domain.
	Analyze(ctx context.Context, prompt *model.MonitoredPrompt, company *model.Company) (*model.MonitoredPromptRun, error)
}

// Registry manages the enabled analyzers, preserving registration order so
// every job queries providers in the same sequence.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	analyzers map[string]Analyzer
}

// NewRegistry creates an empty analyzer registry.
func NewRegistry() *Registry {
	return &Registry{
		analyzers: make(map[string]Analyzer),
	}
}

// Register adds an analyzer to the registry.
func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyzers[a.Name()]; !ok {
		r.order = append(r.order, a.Name())
	}
	r.analyzers[a.Name()] = a
}

// Get returns an analyzer by name, or nil if not registered.
func (r *Registry) Get(name string) Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.analyzers[name]
}

// All returns the registered analyzers in registration order.
func (r *Registry) All() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Analyzer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.analyzers[name])
	}
	return out
}

// Len returns the number of registered analyzers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.analyzers)
}
