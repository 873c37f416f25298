package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/model"
)

func (s *PostgresStore) QuotaUsage(ctx context.Context, companyID int64, kind model.QuotaKind) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`SELECT used FROM quota_counters WHERE company_id = $1 AND kind = $2`,
		companyID, string(kind),
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: quota usage %s", kind)
	}
	return used, nil
}

func (s *PostgresStore) IncrementQuota(ctx context.Context, companyID int64, kind model.QuotaKind) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quota_counters (company_id, kind, used) VALUES ($1, $2, 1)
		 ON CONFLICT (company_id, kind) DO UPDATE SET used = quota_counters.used + 1`,
		companyID, string(kind),
	)
	return eris.Wrapf(err, "postgres: increment quota %s", kind)
}

// AddCost accumulates a usage record into the (model, call_type, hour) bucket.
// The row's Date is rounded down to the hour here so callers pass the raw call
// time.
func (s *PostgresStore) AddCost(ctx context.Context, c model.LLMCost) error {
	date := c.Date
	if date.IsZero() {
		date = time.Now()
	}
	bucket := date.UTC().Truncate(time.Hour)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO llm_costs (model, call_type, date, cost, call_count, tokens_in, tokens_out)
		 VALUES ($1, $2, $3, $4, 1, $5, $6)
		 ON CONFLICT (model, call_type, date) DO UPDATE SET
			cost = llm_costs.cost + EXCLUDED.cost,
			call_count = llm_costs.call_count + 1,
			tokens_in = llm_costs.tokens_in + EXCLUDED.tokens_in,
			tokens_out = llm_costs.tokens_out + EXCLUDED.tokens_out`,
		c.Model, c.CallType, bucket, c.Cost, c.TokensIn, c.TokensOut,
	)
	return eris.Wrap(err, "postgres: add cost")
}

func (s *PostgresStore) EnqueueJob(ctx context.Context, name string, args []byte, maxRetries int) (*Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, name, args, status, max_retries, run_after, created_at) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, name, args, JobStatusQueued, maxRetries, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: enqueue %s", name)
	}

	return &Job{
		ID:         id,
		Name:       name,
		Args:       args,
		Status:     JobStatusQueued,
		MaxRetries: maxRetries,
		RunAfter:   now,
		CreatedAt:  now,
	}, nil
}

// NextJob claims the oldest runnable job, marking it running in the same
// statement so concurrent workers never pull the same job. Returns nil when
// the queue is empty.
func (s *PostgresStore) NextJob(ctx context.Context) (*Job, error) {
	var j Job
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', started_at = now()
		 WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued' AND run_after <= now()
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, name, args, status, retry_count, max_retries, last_error, run_after, created_at`,
	).Scan(&j.ID, &j.Name, &j.Args, &j.Status, &j.RetryCount, &j.MaxRetries, &j.LastError, &j.RunAfter, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next job")
	}
	return &j, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'done', finished_at = now() WHERE id = $1`, jobID,
	)
	return eris.Wrapf(err, "postgres: complete job %s", jobID)
}

// RescheduleJob returns a failed job to the queue with its retry count bumped
// and the next attempt deferred until runAfter.
func (s *PostgresStore) RescheduleJob(ctx context.Context, jobID string, errMsg string, runAfter time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'queued', retry_count = retry_count + 1, last_error = $1, run_after = $2 WHERE id = $3`,
		errMsg, runAfter, jobID,
	)
	return eris.Wrapf(err, "postgres: reschedule job %s", jobID)
}

// FailJob marks a job permanently failed for operator visibility.
func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', last_error = $1, finished_at = now() WHERE id = $2`,
		errMsg, jobID,
	)
	return eris.Wrapf(err, "postgres: fail job %s", jobID)
}
