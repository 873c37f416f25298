package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists queries to prepare on each new connection for the
// hottest store operations (the per-minute scheduler path).
var preparedStatements = map[string]string{
	"get_prompt":   `SELECT id, company_id, prompt, prompt_type, refresh_interval_seconds, target_country, is_active, last_run_at, next_run_at, task_scheduled_at, created_at FROM monitored_prompts WHERE id = $1`,
	"get_company":  `SELECT id, name, description, name_aliases, website, llm_understanding, products, is_placeholder, created_at, updated_at FROM companies WHERE id = $1`,
	"clear_claim":  `UPDATE monitored_prompts SET task_scheduled_at = NULL WHERE id = $1`,
	"complete_job": `UPDATE jobs SET status = 'done', finished_at = now() WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	name_aliases      JSONB,
	website           TEXT NOT NULL,
	llm_understanding TEXT NOT NULL DEFAULT '',
	products          TEXT,
	is_placeholder    BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_is_placeholder ON companies(is_placeholder);

CREATE TABLE IF NOT EXISTS competitors (
	id            BIGSERIAL PRIMARY KEY,
	company_id    BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	competitor_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	weight        DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	UNIQUE (company_id, competitor_id)
);

CREATE INDEX IF NOT EXISTS idx_competitors_company_id ON competitors(company_id);

CREATE TABLE IF NOT EXISTS monitored_prompts (
	id                       BIGSERIAL PRIMARY KEY,
	company_id               BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	prompt                   TEXT NOT NULL,
	prompt_type              TEXT NOT NULL,
	refresh_interval_seconds INTEGER NOT NULL DEFAULT 604800,
	target_country           TEXT,
	is_active                BOOLEAN NOT NULL DEFAULT false,
	last_run_at              TIMESTAMPTZ,
	next_run_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	task_scheduled_at        TIMESTAMPTZ,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_monitored_prompts_company_id ON monitored_prompts(company_id);
CREATE INDEX IF NOT EXISTS idx_monitored_prompts_due ON monitored_prompts(next_run_at) WHERE is_active AND task_scheduled_at IS NULL;

CREATE TABLE IF NOT EXISTS monitored_prompt_runs (
	id                  BIGSERIAL PRIMARY KEY,
	monitored_prompt_id BIGINT NOT NULL REFERENCES monitored_prompts(id) ON DELETE CASCADE,
	llm_provider        TEXT NOT NULL,
	llm_model           TEXT NOT NULL,
	run_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	raw_response        TEXT NOT NULL,
	top_domain          TEXT,
	brand_mentioned     BOOLEAN NOT NULL,
	company_domain_rank INTEGER,
	mentioned_pages     JSONB
);

CREATE INDEX IF NOT EXISTS idx_prompt_runs_prompt_id ON monitored_prompt_runs(monitored_prompt_id);
CREATE INDEX IF NOT EXISTS idx_prompt_runs_prompt_run_at ON monitored_prompt_runs(monitored_prompt_id, run_at DESC);

CREATE TABLE IF NOT EXISTS company_crawls (
	id           BIGSERIAL PRIMARY KEY,
	company_id   BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	url          TEXT NOT NULL,
	crawl_status TEXT NOT NULL,
	raw_response TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_company_crawls_company_id ON company_crawls(company_id, created_at DESC);

-- No foreign key: bucket zero holds account-wide counters with no matching
-- companies row.
CREATE TABLE IF NOT EXISTS quota_counters (
	company_id BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	used       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (company_id, kind)
);

CREATE TABLE IF NOT EXISTS recommendations (
	id                 BIGSERIAL PRIMARY KEY,
	company_id         BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	competitor_domain  TEXT NOT NULL,
	prompts_to_analyze JSONB NOT NULL,
	why_competitor     TEXT NOT NULL DEFAULT '',
	why_not_user       TEXT NOT NULL DEFAULT '',
	what_to_do         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_recommendations_company_id ON recommendations(company_id, created_at DESC);

CREATE TABLE IF NOT EXISTS llm_costs (
	id         BIGSERIAL PRIMARY KEY,
	model      TEXT NOT NULL,
	call_type  TEXT NOT NULL,
	date       TIMESTAMPTZ NOT NULL,
	cost       BIGINT NOT NULL DEFAULT 0,
	call_count INTEGER NOT NULL DEFAULT 0,
	tokens_in  INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	UNIQUE (model, call_type, date)
);

CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	args        JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 5,
	last_error  TEXT NOT NULL DEFAULT '',
	run_after   TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_pollable ON jobs(run_after) WHERE status = 'queued';
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) (*model.Company, error) {
	aliases, err := marshalAliases(c.NameAliases)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, description, name_aliases, website, llm_understanding, products, is_placeholder, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		c.Name, c.Description, aliases, c.Website, c.LLMUnderstanding, nullIfEmpty(c.Products), c.IsPlaceholder, now,
	)

	out := *c
	if err := row.Scan(&out.ID); err != nil {
		return nil, eris.Wrap(err, "postgres: insert company")
	}
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	var aliases []byte
	var products *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, name_aliases, website, llm_understanding, products, is_placeholder, created_at, updated_at FROM companies WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Description, &aliases, &c.Website, &c.LLMUnderstanding, &products, &c.IsPlaceholder, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}

	if len(aliases) > 0 {
		if err := json.Unmarshal(aliases, &c.NameAliases); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal name aliases")
		}
	}
	if products != nil {
		c.Products = *products
	}
	return &c, nil
}

func (s *PostgresStore) UpdateCompanyProfile(ctx context.Context, id int64, name, description, understanding, products string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, description = $2, llm_understanding = $3, products = $4, updated_at = $5 WHERE id = $6`,
		name, description, understanding, nullIfEmpty(products), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company profile %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) DeleteCompany(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: delete company %d", id)
	}
	// quota_counters carries no foreign key, so cascade does not reach it.
	_, err := s.pool.Exec(ctx, `DELETE FROM quota_counters WHERE company_id = $1`, id)
	return eris.Wrapf(err, "postgres: delete quota counters for company %d", id)
}

// ListCompetitors returns the competitor companies linked from companyID,
// excluding links the user zero-weighted.
func (s *PostgresStore) ListCompetitors(ctx context.Context, companyID int64) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.description, c.name_aliases, c.website, c.llm_understanding, c.products, c.is_placeholder, c.created_at, c.updated_at
		 FROM companies c
		 JOIN competitors k ON k.competitor_id = c.id
		 WHERE k.company_id = $1 AND k.weight > 0`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list competitors")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var aliases []byte
		var products *string
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &aliases, &c.Website, &c.LLMUnderstanding, &products, &c.IsPlaceholder, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor")
		}
		if len(aliases) > 0 {
			if err := json.Unmarshal(aliases, &c.NameAliases); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal name aliases")
			}
		}
		if products != nil {
			c.Products = *products
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list competitors")
}

func (s *PostgresStore) GetLatestCrawl(ctx context.Context, companyID int64) (*model.CompanyCrawl, error) {
	var c model.CompanyCrawl
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, url, crawl_status, raw_response, created_at FROM company_crawls WHERE company_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		companyID,
	).Scan(&c.ID, &c.CompanyID, &c.URL, &c.CrawlStatus, &c.RawResponse, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest crawl for company %d", companyID)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCrawl(ctx context.Context, c *model.CompanyCrawl) (*model.CompanyCrawl, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO company_crawls (company_id, url, crawl_status, raw_response, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.CompanyID, c.URL, string(c.CrawlStatus), c.RawResponse, now,
	)

	out := *c
	if err := row.Scan(&out.ID); err != nil {
		return nil, eris.Wrap(err, "postgres: insert crawl")
	}
	out.CreatedAt = now
	return &out, nil
}

func (s *PostgresStore) UpdateCrawl(ctx context.Context, id int64, status model.CrawlStatus, rawResponse string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE company_crawls SET crawl_status = $1, raw_response = $2 WHERE id = $3`,
		string(status), rawResponse, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update crawl %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("crawl not found: %d", id)
	}
	return nil
}

func marshalAliases(aliases []string) (any, error) {
	if len(aliases) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(aliases)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal name aliases")
	}
	return b, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
