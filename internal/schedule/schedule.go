// Package schedule selects monitored prompts that are due for re-evaluation,
// claims them, and dispatches one analysis job per claimed prompt.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/task"
)

// ClaimStore is the persistence surface the scheduler uses.
type ClaimStore interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]int64, error)
	ClearClaim(ctx context.Context, promptID int64) error
}

// Scheduler claims due prompts and hands them to the dispatcher. The claim is
// a single conditional update whose affected rows are the claimed set, so two
// schedulers running the same cycle cannot dispatch the same prompt. Claims
// older than the lease are treated as abandoned and reclaimed.
type Scheduler struct {
	store      ClaimStore
	dispatcher task.Dispatcher
	batchSize  int
	lease      time.Duration
}

// New creates a scheduler claiming at most batchSize prompts per cycle.
func New(st ClaimStore, dispatcher task.Dispatcher, batchSize int, lease time.Duration) *Scheduler {
	return &Scheduler{store: st, dispatcher: dispatcher, batchSize: batchSize, lease: lease}
}

// RunOnce executes one scheduling cycle and returns how many prompts were
// dispatched. A cycle with nothing due is a no-op. A dispatch failure releases
// that prompt's claim so the next cycle can pick it up again.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ids, err := s.store.ClaimDue(ctx, s.batchSize, s.lease)
	if err != nil {
		return 0, eris.Wrap(err, "schedule: claim due prompts")
	}
	if len(ids) == 0 {
		zap.L().Debug("schedule: nothing due")
		return 0, nil
	}

	dispatched := 0
	for _, id := range ids {
		if err := s.dispatcher.Dispatch(ctx, task.JobAnalyzePrompt, task.AnalyzeArgs{PromptID: id}); err != nil {
			zap.L().Error("schedule: dispatch failed", zap.Int64("prompt_id", id), zap.Error(err))
			if clearErr := s.store.ClearClaim(ctx, id); clearErr != nil {
				zap.L().Error("schedule: release claim", zap.Int64("prompt_id", id), zap.Error(clearErr))
			}
			continue
		}
		dispatched++
	}

	zap.L().Info("schedule: cycle complete",
		zap.Int("claimed", len(ids)),
		zap.Int("dispatched", dispatched),
	)
	return dispatched, nil
}

// StartCron runs RunOnce on the given cron spec until the context is
// cancelled. Cycle errors are logged, not fatal.
func (s *Scheduler) StartCron(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			zap.L().Error("schedule: cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: invalid cron spec %q", spec)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}
