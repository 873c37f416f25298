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

func (s *PostgresStore) CreateRecommendation(ctx context.Context, r *model.Recommendation) (*model.Recommendation, error) {
	prompts, err := json.Marshal(r.PromptsToAnalyze)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal recommendation prompts")
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO recommendations (company_id, competitor_domain, prompts_to_analyze, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		r.CompanyID, r.CompetitorDomain, prompts, now,
	)

	out := *r
	if err := row.Scan(&out.ID); err != nil {
		return nil, eris.Wrap(err, "postgres: insert recommendation")
	}
	out.CreatedAt = now
	return &out, nil
}

func (s *PostgresStore) GetRecommendation(ctx context.Context, id int64) (*model.Recommendation, error) {
	var r model.Recommendation
	var prompts []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, competitor_domain, prompts_to_analyze, why_competitor, why_not_user, what_to_do, created_at, completed_at
		 FROM recommendations WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.CompanyID, &r.CompetitorDomain, &prompts, &r.WhyCompetitor, &r.WhyNotUser, &r.WhatToDo, &r.CreatedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get recommendation %d", id)
	}

	if len(prompts) > 0 {
		if err := json.Unmarshal(prompts, &r.PromptsToAnalyze); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal recommendation prompts")
		}
	}
	return &r, nil
}

// CompleteRecommendation stores the generated advice and stamps completion.
func (s *PostgresStore) CompleteRecommendation(ctx context.Context, id int64, whyCompetitor, whyNotUser, whatToDo string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET why_competitor = $1, why_not_user = $2, what_to_do = $3, completed_at = $4 WHERE id = $5`,
		whyCompetitor, whyNotUser, whatToDo, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete recommendation %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("recommendation not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, companyID int64, offset, limit int) (int, []model.Recommendation, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(id) FROM recommendations WHERE company_id = $1`, companyID,
	).Scan(&total)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: count recommendations")
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, competitor_domain, prompts_to_analyze, why_competitor, why_not_user, what_to_do, created_at, completed_at
		 FROM recommendations WHERE company_id = $1
		 ORDER BY created_at DESC, id DESC OFFSET $2 LIMIT $3`,
		companyID, offset, limit,
	)
	if err != nil {
		return 0, nil, eris.Wrap(err, "postgres: list recommendations")
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		var prompts []byte
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.CompetitorDomain, &prompts, &r.WhyCompetitor, &r.WhyNotUser, &r.WhatToDo, &r.CreatedAt, &r.CompletedAt); err != nil {
			return 0, nil, eris.Wrap(err, "postgres: scan recommendation")
		}
		if len(prompts) > 0 {
			if err := json.Unmarshal(prompts, &r.PromptsToAnalyze); err != nil {
				return 0, nil, eris.Wrap(err, "postgres: unmarshal recommendation prompts")
			}
		}
		out = append(out, r)
	}
	return total, out, eris.Wrap(rows.Err(), "postgres: list recommendations")
}

// GetPromptTexts returns the prompt text for each id that belongs to the
// company, preserving input order for ids that exist.
func (s *PostgresStore) GetPromptTexts(ctx context.Context, companyID int64, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT prompt FROM monitored_prompts WHERE company_id = $1 AND id = ANY($2) ORDER BY array_position($2, id)`,
		companyID, ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get prompt texts")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt text")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get prompt texts")
}
