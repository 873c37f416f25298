package model

import "time"

// QuotaKind names a per-company countable resource.
type QuotaKind string

const (
	QuotaPrompts         QuotaKind = "prompts"
	QuotaCompanies       QuotaKind = "companies"
	QuotaRecommendations QuotaKind = "recommendations"
	QuotaLLMCalls        QuotaKind = "llm_calls"
)

// LLMCost is an accumulated usage row keyed by (model, call type, hour bucket).
// Cost is stored in tenths of nanodollars (1e-10 USD) as an integer so that
// repeated adds never accumulate floating-point error; the cheapest current
// models run around 1e-8 USD per token, leaving two orders of headroom.
type LLMCost struct {
	ID        int64     `json:"id"`
	Model     string    `json:"model"`
	CallType  string    `json:"call_type"`
	Date      time.Time `json:"date"` // rounded down to the hour
	Cost      int64     `json:"cost"`
	CallCount int       `json:"call_count"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
}
