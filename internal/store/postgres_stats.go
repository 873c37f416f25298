package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/model"
)

// LatestPromptRuns returns, for each active prompt of a company, all run rows
// recorded at that prompt's most recent run timestamp. Both providers write
// with the same run_at inside one analysis job, so the result carries one row
// per provider per prompt for the latest cycle. This is the qualifying run set
// for the visibility, citation-share, and share-of-voice aggregates.
func (s *PostgresStore) LatestPromptRuns(ctx context.Context, companyID int64) ([]LatestPromptRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.prompt_type, r.brand_mentioned, r.company_domain_rank, r.top_domain, r.mentioned_pages
		 FROM monitored_prompt_runs r
		 JOIN (
			SELECT monitored_prompt_id, max(run_at) AS max_run_at
			FROM monitored_prompt_runs
			GROUP BY monitored_prompt_id
		 ) latest ON latest.monitored_prompt_id = r.monitored_prompt_id AND latest.max_run_at = r.run_at
		 JOIN monitored_prompts p ON p.id = r.monitored_prompt_id
		 WHERE p.company_id = $1 AND p.is_active`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest prompt runs")
	}
	defer rows.Close()

	var out []LatestPromptRun
	for rows.Next() {
		var r LatestPromptRun
		var pages []byte
		if err := rows.Scan(&r.PromptType, &r.BrandMentioned, &r.CompanyDomainRank, &r.TopDomain, &pages); err != nil {
			return nil, eris.Wrap(err, "postgres: scan latest run")
		}
		if len(pages) > 0 {
			if err := json.Unmarshal(pages, &r.MentionedPages); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal mentioned pages")
			}
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: latest prompt runs")
}

// latestProviderResults is a CTE shared by the prompt-stats queries: for each
// (prompt, provider) pair, whether the provider's most recent run counted as
// mentioned-or-ranked.
const latestProviderResults = `
	WITH latest AS (
		SELECT DISTINCT ON (monitored_prompt_id, llm_provider)
			monitored_prompt_id, llm_provider,
			(brand_mentioned OR company_domain_rank IS NOT NULL) AS hit
		FROM monitored_prompt_runs
		ORDER BY monitored_prompt_id, llm_provider, run_at DESC, id DESC
	)`

// CompanyPromptStats returns per-prompt monitoring rows for a company: the
// latest openai/gemini mentioned-or-ranked result plus the mean brand-mention
// rate over all of the prompt's runs. Newest-created prompts first, ties
// broken by highest id.
func (s *PostgresStore) CompanyPromptStats(ctx context.Context, companyID int64, offset, limit int) (int, []model.PromptMonitoringItem, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(id) FROM monitored_prompts WHERE company_id = $1`, companyID,
	).Scan(&total)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: count prompts")
	}

	rows, err := s.pool.Query(ctx,
		latestProviderResults+`
		SELECT p.id, p.prompt, p.prompt_type, p.is_active, p.created_at, lo.hit, lg.hit,
			COALESCE(AVG(CASE WHEN r.brand_mentioned THEN 1.0 ELSE 0.0 END), 0.0) AS visibility
		FROM monitored_prompts p
		LEFT JOIN monitored_prompt_runs r ON r.monitored_prompt_id = p.id
		LEFT JOIN latest lo ON lo.monitored_prompt_id = p.id AND lo.llm_provider = 'openai'
		LEFT JOIN latest lg ON lg.monitored_prompt_id = p.id AND lg.llm_provider = 'gemini'
		WHERE p.company_id = $1
		GROUP BY p.id, p.prompt, p.prompt_type, p.is_active, p.created_at, lo.hit, lg.hit
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $2 LIMIT $3`,
		companyID, offset, limit,
	)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: prompt stats")
	}
	defer rows.Close()

	items, err := scanPromptItems(rows, "postgres: prompt stats")
	return total, items, err
}

// PromptsCitingDomain returns the monitoring rows for prompts whose run
// history cites the given normalized domain anywhere in mentioned_pages
// (case-insensitive substring). Visibility is averaged over the
// domain-filtered runs only; the per-provider annotations still reflect each
// provider's overall latest run.
func (s *PostgresStore) PromptsCitingDomain(ctx context.Context, companyID int64, domain string, offset, limit int) (int, []model.PromptMonitoringItem, error) {
	pattern := "%" + domain + "%"

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(DISTINCT p.id)
		 FROM monitored_prompts p
		 JOIN monitored_prompt_runs r ON r.monitored_prompt_id = p.id
		 WHERE p.company_id = $1 AND r.mentioned_pages::text ILIKE $2`,
		companyID, pattern,
	).Scan(&total)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: count prompts citing domain")
	}

	rows, err := s.pool.Query(ctx,
		latestProviderResults+`
		SELECT p.id, p.prompt, p.prompt_type, p.is_active, p.created_at, lo.hit, lg.hit,
			COALESCE(AVG(CASE WHEN r.brand_mentioned THEN 1.0 ELSE 0.0 END), 0.0) AS visibility
		FROM monitored_prompts p
		JOIN monitored_prompt_runs r ON r.monitored_prompt_id = p.id AND r.mentioned_pages::text ILIKE $2
		LEFT JOIN latest lo ON lo.monitored_prompt_id = p.id AND lo.llm_provider = 'openai'
		LEFT JOIN latest lg ON lg.monitored_prompt_id = p.id AND lg.llm_provider = 'gemini'
		WHERE p.company_id = $1
		GROUP BY p.id, p.prompt, p.prompt_type, p.is_active, p.created_at, lo.hit, lg.hit
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $3 LIMIT $4`,
		companyID, pattern, offset, limit,
	)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: prompts citing domain")
	}
	defer rows.Close()

	items, err := scanPromptItems(rows, "postgres: prompts citing domain")
	return total, items, err
}

func scanPromptItems(rows pgx.Rows, op string) ([]model.PromptMonitoringItem, error) {
	var items []model.PromptMonitoringItem
	for rows.Next() {
		var it model.PromptMonitoringItem
		if err := rows.Scan(&it.ID, &it.Prompt, &it.PromptType, &it.IsActive, &it.CreatedAt, &it.OpenAILastResult, &it.GeminiLastResult, &it.Visibility); err != nil {
			return nil, eris.Wrap(err, op)
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), op)
}
