// Package quota bounds per-company resource consumption. Callers follow
// check-then-act-then-increment; the gate does not serialize concurrent
// checks, accepting small race windows under the low per-company concurrency
// this system runs at.
package quota

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/config"
	"github.com/sells-group/promptwatch/internal/model"
)

// Counters is the persistence surface the gate needs.
type Counters interface {
	QuotaUsage(ctx context.Context, companyID int64, kind model.QuotaKind) (int, error)
	IncrementQuota(ctx context.Context, companyID int64, kind model.QuotaKind) error
}

// Gate decides whether a company may consume one more unit of a resource.
type Gate interface {
	// Check reports whether the operation is allowed. It never mutates.
	Check(ctx context.Context, companyID int64, kind model.QuotaKind) (bool, error)
	// Increment records one unit of consumption after the operation succeeds.
	Increment(ctx context.Context, companyID int64, kind model.QuotaKind) error
}

// openGate always permits and never counts. This is the base-tier policy.
type openGate struct{}

func (openGate) Check(context.Context, int64, model.QuotaKind) (bool, error) { return true, nil }
func (openGate) Increment(context.Context, int64, model.QuotaKind) error    { return nil }

// Open returns the non-enforcing gate.
func Open() Gate { return openGate{} }

// planGate enforces per-kind plan limits against stored counters.
type planGate struct {
	counters Counters
	limits   map[model.QuotaKind]int
}

// NewPlanGate returns a gate enforcing the limits from cfg.
func NewPlanGate(counters Counters, cfg config.QuotaConfig) Gate {
	return &planGate{
		counters: counters,
		limits: map[model.QuotaKind]int{
			model.QuotaPrompts:         cfg.Prompts,
			model.QuotaCompanies:       cfg.Companies,
			model.QuotaRecommendations: cfg.Recommendations,
			model.QuotaLLMCalls:        cfg.LLMCalls,
		},
	}
}

// FromConfig returns the gate selected by configuration: enforcing plan
// limits or the always-permit policy.
func FromConfig(counters Counters, cfg config.QuotaConfig) Gate {
	if cfg.Enforce {
		return NewPlanGate(counters, cfg)
	}
	return Open()
}

func (g *planGate) Check(ctx context.Context, companyID int64, kind model.QuotaKind) (bool, error) {
	limit, ok := g.limits[kind]
	if !ok {
		return false, eris.Errorf("quota: unknown kind %q", kind)
	}
	if limit <= 0 {
		return true, nil
	}

	used, err := g.counters.QuotaUsage(ctx, companyID, kind)
	if err != nil {
		return false, eris.Wrap(err, "quota: check")
	}
	return used < limit, nil
}

func (g *planGate) Increment(ctx context.Context, companyID int64, kind model.QuotaKind) error {
	return eris.Wrap(g.counters.IncrementQuota(ctx, companyID, kind), "quota: increment")
}
