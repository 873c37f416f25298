// Package analysis runs the multi-provider analysis job for one monitored
// prompt: re-check eligibility, gate on quota, fan out to the enabled
// analyzers, and commit the terminal reschedule write.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/analyzer"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/quota"
	"github.com/sells-group/promptwatch/internal/store"
)

// Pipeline executes one analyze-prompt job.
type Pipeline struct {
	store store.Store
	reg   *analyzer.Registry
	gate  quota.Gate
	now   func() time.Time
}

// NewPipeline wires the analysis pipeline.
func NewPipeline(st store.Store, reg *analyzer.Registry, gate quota.Gate) *Pipeline {
	return &Pipeline{store: st, reg: reg, gate: gate, now: func() time.Time { return time.Now().UTC() }}
}

// Run re-evaluates one prompt. The job is safe to re-deliver: the leading
// checks re-verify that the prompt still exists, is active, and is due, so a
// duplicate delivery after the terminal write exits without side effects.
// Quota denial leaves the claim marker in place so the scheduler does not
// redispatch the prompt every cycle; the lease expiry frees it later.
func (p *Pipeline) Run(ctx context.Context, promptID int64) error {
	log := zap.L().With(zap.Int64("prompt_id", promptID))

	prompt, err := p.store.GetPrompt(ctx, promptID)
	if err != nil {
		return eris.Wrap(err, "analysis: load prompt")
	}
	if prompt == nil {
		log.Info("analysis: prompt not found")
		return nil
	}
	if !prompt.IsActive {
		log.Info("analysis: prompt inactive")
		return nil
	}
	now := p.now()
	if prompt.NextRunAt.After(now) {
		log.Info("analysis: prompt not due", zap.Time("next_run_at", prompt.NextRunAt))
		return nil
	}

	company, err := p.store.GetCompany(ctx, prompt.CompanyID)
	if err != nil {
		return eris.Wrap(err, "analysis: load company")
	}
	if company == nil {
		log.Info("analysis: company not found", zap.Int64("company_id", prompt.CompanyID))
		return nil
	}

	allowed, err := p.gate.Check(ctx, company.ID, model.QuotaLLMCalls)
	if err != nil {
		return eris.Wrap(err, "analysis: quota check")
	}
	if !allowed {
		log.Warn("analysis: llm call quota exhausted", zap.Int64("company_id", company.ID))
		return nil
	}

	analyzers := p.reg.All()
	if len(analyzers) == 0 {
		log.Info("analysis: no providers enabled")
		return nil
	}

	var runs []*model.MonitoredPromptRun
	var lastErr error
	for _, a := range analyzers {
		run, err := a.Analyze(ctx, prompt, company)
		if err != nil {
			log.Warn("analysis: provider failed", zap.String("provider", a.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		runs = append(runs, run)
	}
	if len(runs) == 0 {
		return eris.Wrap(lastErr, "analysis: all providers failed")
	}

	// FinishAnalysis also counts the job against the llm_calls quota, so a
	// crash cannot separate the run rows from the counter.
	nextRun := prompt.NextRunAt.Add(time.Duration(prompt.RefreshIntervalSeconds) * time.Second)
	if err := p.store.FinishAnalysis(ctx, promptID, now, nextRun, runs); err != nil {
		return eris.Wrap(err, "analysis: commit runs")
	}

	log.Info("analysis: finished",
		zap.Int("runs", len(runs)),
		zap.Time("next_run_at", nextRun),
	)
	return nil
}
