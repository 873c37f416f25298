package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promptwatch/internal/resilience"
	"github.com/sells-group/promptwatch/internal/store"
)

// memQueue is an in-memory QueueStore for dispatcher and worker tests.
type memQueue struct {
	mu          sync.Mutex
	jobs        []*store.Job
	completed   []string
	failed      map[string]string
	rescheduled map[string]time.Time
	nextID      int
}

func newMemQueue() *memQueue {
	return &memQueue{
		failed:      make(map[string]string),
		rescheduled: make(map[string]time.Time),
	}
}

func (q *memQueue) EnqueueJob(_ context.Context, name string, args []byte, maxRetries int) (*store.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	job := &store.Job{
		ID:         string(rune('a' + q.nextID)),
		Name:       name,
		Args:       args,
		Status:     store.JobStatusQueued,
		MaxRetries: maxRetries,
		RunAfter:   time.Now(),
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *memQueue) NextJob(_ context.Context) (*store.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Status == store.JobStatusQueued && !j.RunAfter.After(time.Now()) {
			j.Status = store.JobStatusRunning
			return j, nil
		}
	}
	return nil, nil
}

func (q *memQueue) CompleteJob(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	q.setStatus(jobID, store.JobStatusDone)
	return nil
}

func (q *memQueue) RescheduleJob(_ context.Context, jobID string, errMsg string, runAfter time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rescheduled[jobID] = runAfter
	for _, j := range q.jobs {
		if j.ID == jobID {
			j.Status = store.JobStatusQueued
			j.RetryCount++
			j.LastError = errMsg
			j.RunAfter = runAfter
		}
	}
	return nil
}

func (q *memQueue) FailJob(_ context.Context, jobID string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = errMsg
	q.setStatus(jobID, store.JobStatusFailed)
	return nil
}

func (q *memQueue) setStatus(jobID, status string) {
	for _, j := range q.jobs {
		if j.ID == jobID {
			j.Status = status
		}
	}
}

func TestInlineDispatch(t *testing.T) {
	reg := NewRegistry()
	var got AnalyzeArgs
	reg.Register(JobAnalyzePrompt, func(_ context.Context, args []byte) error {
		return json.Unmarshal(args, &got)
	})

	err := NewInline(reg).Dispatch(context.Background(), JobAnalyzePrompt, AnalyzeArgs{PromptID: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.PromptID)
}

func TestInlineDispatchUnknownJob(t *testing.T) {
	err := NewInline(NewRegistry()).Dispatch(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestQueueDispatchEnqueues(t *testing.T) {
	q := newMemQueue()
	err := NewQueue(q, 5).Dispatch(context.Background(), JobCompanyCrawl, CrawlArgs{CompanyID: 3})
	require.NoError(t, err)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, JobCompanyCrawl, q.jobs[0].Name)
	assert.Equal(t, 5, q.jobs[0].MaxRetries)
	assert.JSONEq(t, `{"company_id": 3}`, string(q.jobs[0].Args))
}

func TestWorkerRunsJobToCompletion(t *testing.T) {
	q := newMemQueue()
	reg := NewRegistry()
	done := make(chan struct{})
	reg.Register(JobAnalyzePrompt, func(_ context.Context, _ []byte) error {
		close(done)
		return nil
	})
	require.NoError(t, NewQueue(q, 3).Dispatch(context.Background(), JobAnalyzePrompt, AnalyzeArgs{PromptID: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(q, reg, 1, 5*time.Millisecond)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	// Allow the completion write to land before stopping.
	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.completed) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
}

func TestWorkerReschedulesTransientFailure(t *testing.T) {
	q := newMemQueue()
	reg := NewRegistry()
	reg.Register(JobAnalyzePrompt, func(_ context.Context, _ []byte) error {
		return resilience.NewTransientError(assert.AnError, 503)
	})

	job, err := q.EnqueueJob(context.Background(), JobAnalyzePrompt, []byte(`{}`), 3)
	require.NoError(t, err)

	w := NewWorker(q, reg, 1, time.Millisecond)
	picked, err := q.NextJob(context.Background())
	require.NoError(t, err)
	w.execute(context.Background(), picked)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Contains(t, q.rescheduled, job.ID)
	assert.Empty(t, q.failed)
	assert.Equal(t, 1, q.jobs[0].RetryCount)
	assert.True(t, q.jobs[0].RunAfter.After(time.Now()))
}

// Retrying a job whose target row is gone cannot succeed, so the worker must
// fail it on the first attempt instead of burning the retry budget.
func TestWorkerFailsPermanentErrorImmediately(t *testing.T) {
	q := newMemQueue()
	reg := NewRegistry()
	reg.Register(JobAnalyzePrompt, func(_ context.Context, _ []byte) error {
		return &resilience.NotFoundError{Entity: "prompt", ID: 4}
	})

	job, err := q.EnqueueJob(context.Background(), JobAnalyzePrompt, []byte(`{}`), 3)
	require.NoError(t, err)

	w := NewWorker(q, reg, 1, time.Millisecond)
	picked, err := q.NextJob(context.Background())
	require.NoError(t, err)
	w.execute(context.Background(), picked)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Empty(t, q.rescheduled)
	assert.Contains(t, q.failed, job.ID)
	assert.Equal(t, store.JobStatusFailed, q.jobs[0].Status)
}

func TestWorkerFailsJobAfterMaxRetries(t *testing.T) {
	q := newMemQueue()
	reg := NewRegistry()
	reg.Register(JobAnalyzePrompt, func(_ context.Context, _ []byte) error {
		return resilience.NewTransientError(assert.AnError, 500)
	})

	job, err := q.EnqueueJob(context.Background(), JobAnalyzePrompt, []byte(`{}`), 1)
	require.NoError(t, err)

	w := NewWorker(q, reg, 1, time.Millisecond)
	picked, err := q.NextJob(context.Background())
	require.NoError(t, err)
	w.execute(context.Background(), picked)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Contains(t, q.failed, job.ID)
	assert.Equal(t, store.JobStatusFailed, q.jobs[0].Status)
}

func TestWorkerFailsUnregisteredJob(t *testing.T) {
	q := newMemQueue()
	job, err := q.EnqueueJob(context.Background(), "unknown.job", []byte(`{}`), 3)
	require.NoError(t, err)

	w := NewWorker(q, NewRegistry(), 1, time.Millisecond)
	picked, err := q.NextJob(context.Background())
	require.NoError(t, err)
	w.execute(context.Background(), picked)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Contains(t, q.failed, job.ID)
}
