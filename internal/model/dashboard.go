package model

import "time"

// DomainType classifies a cited domain relative to the tracked company.
type DomainType string

const (
	DomainTypeCompany    DomainType = "company"
	DomainTypeCompetitor DomainType = "competitor"
	DomainTypeOther      DomainType = "other"
)

// ShareOfVoiceItem is one ranked domain in the share-of-voice distribution.
type ShareOfVoiceItem struct {
	Domain string     `json:"domain"`
	Count  int        `json:"count"`
	Type   DomainType `json:"type"`
}

// DashboardStats is the aggregate view over a company's recent prompt runs.
type DashboardStats struct {
	AIVisibilityScore    float64            `json:"ai_visibility_score"`
	WebsiteCitationShare float64            `json:"website_citation_share"`
	TotalRuns            int                `json:"total_runs"`
	ShareOfVoice         []ShareOfVoiceItem `json:"share_of_voice"`
}

// PromptMonitoringItem is one row of the per-prompt monitoring table: the most
// recent result per provider plus the mean brand-mention rate across runs.
type PromptMonitoringItem struct {
	ID               int64      `json:"id"`
	Prompt           string     `json:"prompt"`
	PromptType       PromptType `json:"prompt_type"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	OpenAILastResult *bool      `json:"openai_last_result"`
	GeminiLastResult *bool      `json:"gemini_last_result"`
	Visibility       float64    `json:"visibility"`
}
