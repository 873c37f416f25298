// Package task dispatches named jobs either inline or through the
// database-backed queue consumed by the worker pool.
package task

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/store"
)

// Job names, shared between dispatchers and the worker registry.
const (
	JobAnalyzePrompt  = "analyzers.analyze_prompt"
	JobCompanyCrawl   = "fetchers.company_crawl"
	JobCompanyPrompt  = "fetchers.company_prompt"
	JobRecommendation = "recommendations.generate"
)

// AnalyzeArgs are the arguments for an analyze-prompt job.
type AnalyzeArgs struct {
	PromptID int64 `json:"prompt_id"`
}

// CrawlArgs are the arguments for a company-crawl job.
type CrawlArgs struct {
	CompanyID int64 `json:"company_id"`
}

// SuggestArgs are the arguments for a prompt-suggestion job.
type SuggestArgs struct {
	CompanyID int64 `json:"company_id"`
}

// RecommendArgs are the arguments for a recommendation-generation job.
type RecommendArgs struct {
	RecommendationID int64 `json:"recommendation_id"`
}

// Handler executes one job given its serialized arguments.
type Handler func(ctx context.Context, args []byte) error

// Registry maps job names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for a job name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get returns the handler for a job name, or nil if not registered.
func (r *Registry) Get(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Dispatcher sends a named job for execution. Two implementations exist:
// Inline runs the handler synchronously in-process, Queue enqueues it for a
// worker. Callers do not know which one they hold.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args any) error
}

// Inline executes jobs synchronously at the dispatch call site.
type Inline struct {
	reg *Registry
}

// NewInline creates an inline dispatcher over the registry.
func NewInline(reg *Registry) *Inline {
	return &Inline{reg: reg}
}

func (d *Inline) Dispatch(ctx context.Context, name string, args any) error {
	h := d.reg.Get(name)
	if h == nil {
		return eris.Errorf("task: no handler registered for %q", name)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return eris.Wrap(err, "task: marshal args")
	}
	return h(ctx, payload)
}

// QueueStore is the persistence surface the queued dispatcher and worker use.
type QueueStore interface {
	EnqueueJob(ctx context.Context, name string, args []byte, maxRetries int) (*store.Job, error)
	NextJob(ctx context.Context) (*store.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	RescheduleJob(ctx context.Context, jobID string, errMsg string, runAfter time.Time) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// Queue enqueues jobs for the worker pool.
type Queue struct {
	store      QueueStore
	maxRetries int
}

// NewQueue creates a queue-backed dispatcher.
func NewQueue(st QueueStore, maxRetries int) *Queue {
	return &Queue{store: st, maxRetries: maxRetries}
}

func (d *Queue) Dispatch(ctx context.Context, name string, args any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return eris.Wrap(err, "task: marshal args")
	}
	if _, err := d.store.EnqueueJob(ctx, name, payload, d.maxRetries); err != nil {
		return eris.Wrapf(err, "task: enqueue %s", name)
	}
	return nil
}
