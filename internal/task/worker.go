package task

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/promptwatch/internal/resilience"
	"github.com/sells-group/promptwatch/internal/store"
)

// Worker polls the job queue and executes handlers with bounded retries and
// exponential backoff. Jobs with no registered handler fail immediately.
type Worker struct {
	store   QueueStore
	reg     *Registry
	workers int
	poll    time.Duration
	backoff resilience.BackoffConfig
}

// NewWorker creates a worker pool of the given size.
func NewWorker(st QueueStore, reg *Registry, workers int, poll time.Duration) *Worker {
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		store:   st,
		reg:     reg,
		workers: workers,
		poll:    poll,
		backoff: resilience.DefaultBackoff(),
	}
}

// Run blocks until the context is cancelled, pulling and executing jobs on
// each worker goroutine.
func (w *Worker) Run(ctx context.Context) error {
	zap.L().Info("worker: starting", zap.Int("workers", w.workers))
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		job, err := w.store.NextJob(ctx)
		if err != nil {
			zap.L().Warn("worker: poll failed", zap.Error(err))
			job = nil
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.poll):
			}
			continue
		}
		w.execute(ctx, job)
	}
}

func (w *Worker) execute(ctx context.Context, job *store.Job) {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("job", job.Name))

	handler := w.reg.Get(job.Name)
	if handler == nil {
		log.Error("worker: no handler registered")
		if err := w.store.FailJob(ctx, job.ID, "no handler registered"); err != nil {
			log.Error("worker: fail job", zap.Error(err))
		}
		return
	}

	if err := handler(ctx, job.Args); err != nil {
		w.retry(ctx, job, err)
		return
	}
	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		log.Error("worker: complete job", zap.Error(err))
		return
	}
	log.Info("worker: job done")
}

// retry reschedules a failed job with backoff. Only transient failures are
// worth repeating; anything else fails the job on the first attempt.
func (w *Worker) retry(ctx context.Context, job *store.Job, cause error) {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("job", job.Name))

	if !resilience.IsTransient(cause) {
		log.Error("worker: job failed permanently", zap.Error(cause))
		if err := w.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
			log.Error("worker: fail job", zap.Error(err))
		}
		return
	}

	attempt := job.RetryCount + 1
	if attempt >= job.MaxRetries {
		log.Error("worker: job exhausted retries", zap.Int("attempts", attempt), zap.Error(cause))
		if err := w.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
			log.Error("worker: fail job", zap.Error(err))
		}
		return
	}

	delay := w.backoff.Delay(attempt)
	log.Warn("worker: job failed, rescheduling",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
	if err := w.store.RescheduleJob(ctx, job.ID, cause.Error(), time.Now().Add(delay)); err != nil {
		log.Error("worker: reschedule job", zap.Error(err))
	}
}
