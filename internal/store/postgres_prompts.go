package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/model"
)

const promptColumns = `id, company_id, prompt, prompt_type, refresh_interval_seconds, target_country, is_active, last_run_at, next_run_at, task_scheduled_at, created_at`

func (s *PostgresStore) CreatePrompt(ctx context.Context, p *model.MonitoredPrompt) (*model.MonitoredPrompt, error) {
	interval := p.RefreshIntervalSeconds
	if interval <= 0 {
		interval = model.DefaultRefreshInterval
	}
	nextRun := p.NextRunAt
	if nextRun.IsZero() {
		nextRun = time.Now().UTC()
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO monitored_prompts (company_id, prompt, prompt_type, refresh_interval_seconds, target_country, is_active, next_run_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.CompanyID, p.Prompt, string(p.PromptType), interval, nullIfEmpty(p.TargetCountry), p.IsActive, nextRun, now,
	)

	out := *p
	if err := row.Scan(&out.ID); err != nil {
		return nil, eris.Wrap(err, "postgres: insert prompt")
	}
	out.RefreshIntervalSeconds = interval
	out.NextRunAt = nextRun
	out.CreatedAt = now
	return &out, nil
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id int64) (*model.MonitoredPrompt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+promptColumns+` FROM monitored_prompts WHERE id = $1`, id)
	p, err := scanPrompt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get prompt %d", id)
	}
	return p, nil
}

func (s *PostgresStore) SetPromptsActive(ctx context.Context, companyID int64, ids []int64, active bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE monitored_prompts SET is_active = $1 WHERE id = ANY($2) AND company_id = $3`,
		active, ids, companyID,
	)
	return eris.Wrap(err, "postgres: set prompts active")
}

func (s *PostgresStore) DeletePrompt(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM monitored_prompts WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete prompt %d", id)
}

// CollectDue lists due prompt ids without claiming them, oldest-due first.
// Used for observability; claiming goes through ClaimDue.
func (s *PostgresStore) CollectDue(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM monitored_prompts
		 WHERE is_active AND next_run_at <= now() AND task_scheduled_at IS NULL
		 ORDER BY next_run_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collect due")
	}
	defer rows.Close()
	return scanIDs(rows, "postgres: collect due")
}

// ClaimDue atomically claims up to limit due prompts by setting their claim
// marker in the same statement that selects them; the affected-row set is the
// claimed set, so concurrent schedulers cannot double-claim. Claims older than
// the lease are treated as abandoned by a crashed worker and reclaimed.
func (s *PostgresStore) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE monitored_prompts SET task_scheduled_at = now()
		 WHERE id IN (
			SELECT id FROM monitored_prompts
			WHERE is_active AND next_run_at <= now()
			  AND (task_scheduled_at IS NULL OR task_scheduled_at < now() - make_interval(secs => $2))
			ORDER BY next_run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id`,
		limit, lease.Seconds(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim due")
	}
	defer rows.Close()
	return scanIDs(rows, "postgres: claim due")
}

// ClearClaim releases a prompt's claim marker without recording a run. Used
// when a job aborts for a reason that should allow prompt rescheduling.
func (s *PostgresStore) ClearClaim(ctx context.Context, promptID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE monitored_prompts SET task_scheduled_at = NULL WHERE id = $1`, promptID)
	return eris.Wrapf(err, "postgres: clear claim %d", promptID)
}

// FinishAnalysis is the analysis job's terminal write: in one transaction it
// clears the claim marker, records the run timestamps, advances next_run_at,
// appends the provider run rows, and counts the job against the company's
// llm_calls quota. next_run_at advancement is computed by the caller from the
// previous scheduled time, keeping the cadence interval-additive regardless of
// processing latency.
func (s *PostgresStore) FinishAnalysis(ctx context.Context, promptID int64, lastRunAt, nextRunAt time.Time, runs []*model.MonitoredPromptRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: finish analysis: begin")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE monitored_prompts SET task_scheduled_at = NULL, last_run_at = $1, next_run_at = $2 WHERE id = $3`,
		lastRunAt, nextRunAt, promptID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish analysis: update prompt %d", promptID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("prompt not found: %d", promptID)
	}

	for _, r := range runs {
		pages, err := marshalPages(r.MentionedPages)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO monitored_prompt_runs (monitored_prompt_id, llm_provider, llm_model, run_at, raw_response, top_domain, brand_mentioned, company_domain_rank, mentioned_pages)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			promptID, r.LLMProvider, r.LLMModel, lastRunAt, r.RawResponse, r.TopDomain, r.BrandMentioned, r.CompanyDomainRank, pages,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: finish analysis: insert %s run", r.LLMProvider)
		}
	}

	if len(runs) > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO quota_counters (company_id, kind, used)
			 SELECT company_id, 'llm_calls', 1 FROM monitored_prompts WHERE id = $1
			 ON CONFLICT (company_id, kind) DO UPDATE SET used = quota_counters.used + 1`,
			promptID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: finish analysis: count llm call for prompt %d", promptID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: finish analysis: commit")
}

func (s *PostgresStore) ListRuns(ctx context.Context, promptID int64, offset, limit int) (int, []model.MonitoredPromptRun, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(id) FROM monitored_prompt_runs WHERE monitored_prompt_id = $1`, promptID,
	).Scan(&total)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: count runs")
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitored_prompt_id, llm_provider, llm_model, run_at, raw_response, top_domain, brand_mentioned, company_domain_rank, mentioned_pages
		 FROM monitored_prompt_runs WHERE monitored_prompt_id = $1
		 ORDER BY run_at DESC, id DESC OFFSET $2 LIMIT $3`,
		promptID, offset, limit,
	)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.MonitoredPromptRun
	for rows.Next() {
		var r model.MonitoredPromptRun
		var pages []byte
		if err := rows.Scan(&r.ID, &r.MonitoredPromptID, &r.LLMProvider, &r.LLMModel, &r.RunAt, &r.RawResponse, &r.TopDomain, &r.BrandMentioned, &r.CompanyDomainRank, &pages); err != nil {
			return 0, nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(pages) > 0 {
			if err := json.Unmarshal(pages, &r.MentionedPages); err != nil {
				return 0, nil, eris.Wrap(err, "postgres: unmarshal mentioned pages")
			}
		}
		runs = append(runs, r)
	}
	return total, runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func scanPrompt(row pgx.Row) (*model.MonitoredPrompt, error) {
	var p model.MonitoredPrompt
	var country *string
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Prompt, &p.PromptType, &p.RefreshIntervalSeconds, &country, &p.IsActive, &p.LastRunAt, &p.NextRunAt, &p.TaskScheduledAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	if country != nil {
		p.TargetCountry = *country
	}
	return &p, nil
}

func scanIDs(rows pgx.Rows, op string) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, op)
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), op)
}

func marshalPages(pages []string) (any, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(pages)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal mentioned pages")
	}
	return b, nil
}
