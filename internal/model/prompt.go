package model

import "time"

// PromptType categorizes what a monitored prompt asks about.
type PromptType string

const (
	PromptTypeProduct   PromptType = "product"
	PromptTypeExpertise PromptType = "expertise"
)

// MonitoredPrompt is a tracked natural-language question that is periodically
// re-evaluated against the configured answer providers.
type MonitoredPrompt struct {
	ID                     int64      `json:"id"`
	CompanyID              int64      `json:"company_id"`
	Prompt                 string     `json:"prompt"`
	PromptType             PromptType `json:"prompt_type"`
	RefreshIntervalSeconds int        `json:"refresh_interval_seconds"`
	TargetCountry          string     `json:"target_country,omitempty"`
	IsActive               bool       `json:"is_active"`
	LastRunAt              *time.Time `json:"last_run_at,omitempty"`
	NextRunAt              time.Time  `json:"next_run_at"`
	// TaskScheduledAt is set while an analysis dispatch is in flight for this
	// prompt and cleared by the job's terminal write. Treated as a lease: a
	// value older than the configured max job duration is reclaimable.
	TaskScheduledAt *time.Time `json:"task_scheduled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// DefaultRefreshInterval is one week, matching the default cadence for
// newly created prompts.
const DefaultRefreshInterval = 7 * 24 * 3600

// MonitoredPromptRun is one provider's recorded answer for one prompt at one
// point in time. Rows are immutable once written; history is append-only.
type MonitoredPromptRun struct {
	ID                int64     `json:"id"`
	MonitoredPromptID int64     `json:"monitored_prompt_id"`
	LLMProvider       string    `json:"llm_provider"`
	LLMModel          string    `json:"llm_model"`
	RunAt             time.Time `json:"run_at"`
	// RawResponse keeps the full provider payload so runs can be reprocessed
	// if more signals are needed later.
	RawResponse    string  `json:"raw_response"`
	TopDomain      *string `json:"top_domain,omitempty"`
	BrandMentioned bool    `json:"brand_mentioned"`
	// CompanyDomainRank is the 1-based position of the first cited source
	// whose domain suffix-matches the company's domain; nil if not cited.
	CompanyDomainRank *int     `json:"company_domain_rank,omitempty"`
	MentionedPages    []string `json:"mentioned_pages,omitempty"`
}

// MentionedOrRanked reports whether the run counts as a positive monitoring
// result: the brand was named in the answer or the company's domain was cited.
func (r *MonitoredPromptRun) MentionedOrRanked() bool {
	return r.BrandMentioned || r.CompanyDomainRank != nil
}
