package model

import "time"

// Recommendation is a user-requested competitive analysis: why a competitor
// domain wins the selected prompts and what the company can do about it. The
// row is created empty and filled in by the generation job; CompletedAt marks
// it done.
type Recommendation struct {
	ID               int64      `json:"id"`
	CompanyID        int64      `json:"company_id"`
	CompetitorDomain string     `json:"competitor_domain"`
	PromptsToAnalyze []string   `json:"prompts_to_analyze"`
	WhyCompetitor    string     `json:"why_competitor"`
	WhyNotUser       string     `json:"why_not_user"`
	WhatToDo         string     `json:"what_to_do"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}
