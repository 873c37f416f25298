// Package store persists companies, monitored prompts, their run history, and
// the task queue backing the dispatcher.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/promptwatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock implements it,
// which keeps the store unit-testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LatestPromptRun is one row of the latest-run join used by the aggregation
// engine: a run at its prompt's most recent timestamp, for an active prompt.
type LatestPromptRun struct {
	PromptType        model.PromptType
	BrandMentioned    bool
	CompanyDomainRank *int
	TopDomain         *string
	MentionedPages    []string
}

// Job is one queued task dispatch.
type Job struct {
	ID         string
	Name       string
	Args       []byte
	Status     string
	RetryCount int
	MaxRetries int
	LastError  string
	RunAfter   time.Time
	CreatedAt  time.Time
}

// Job statuses.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Store defines the persistence interface for the monitoring pipeline.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, c *model.Company) (*model.Company, error)
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	UpdateCompanyProfile(ctx context.Context, id int64, name, description, understanding, products string) error
	DeleteCompany(ctx context.Context, id int64) error
	ListCompetitors(ctx context.Context, companyID int64) ([]model.Company, error)

	// Prompts
	CreatePrompt(ctx context.Context, p *model.MonitoredPrompt) (*model.MonitoredPrompt, error)
	GetPrompt(ctx context.Context, id int64) (*model.MonitoredPrompt, error)
	GetPromptTexts(ctx context.Context, companyID int64, ids []int64) ([]string, error)
	SetPromptsActive(ctx context.Context, companyID int64, ids []int64, active bool) error
	DeletePrompt(ctx context.Context, id int64) error

	// Scheduling
	CollectDue(ctx context.Context, limit int) ([]int64, error)
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]int64, error)
	ClearClaim(ctx context.Context, promptID int64) error
	FinishAnalysis(ctx context.Context, promptID int64, lastRunAt, nextRunAt time.Time, runs []*model.MonitoredPromptRun) error

	// Runs
	ListRuns(ctx context.Context, promptID int64, offset, limit int) (int, []model.MonitoredPromptRun, error)

	// Crawls
	GetLatestCrawl(ctx context.Context, companyID int64) (*model.CompanyCrawl, error)
	CreateCrawl(ctx context.Context, c *model.CompanyCrawl) (*model.CompanyCrawl, error)
	UpdateCrawl(ctx context.Context, id int64, status model.CrawlStatus, rawResponse string) error

	// Recommendations
	CreateRecommendation(ctx context.Context, r *model.Recommendation) (*model.Recommendation, error)
	GetRecommendation(ctx context.Context, id int64) (*model.Recommendation, error)
	CompleteRecommendation(ctx context.Context, id int64, whyCompetitor, whyNotUser, whatToDo string) error
	ListRecommendations(ctx context.Context, companyID int64, offset, limit int) (int, []model.Recommendation, error)

	// Quota counters
	QuotaUsage(ctx context.Context, companyID int64, kind model.QuotaKind) (int, error)
	IncrementQuota(ctx context.Context, companyID int64, kind model.QuotaKind) error

	// Cost ledger
	AddCost(ctx context.Context, c model.LLMCost) error

	// Aggregation reads
	LatestPromptRuns(ctx context.Context, companyID int64) ([]LatestPromptRun, error)
	CompanyPromptStats(ctx context.Context, companyID int64, offset, limit int) (int, []model.PromptMonitoringItem, error)
	PromptsCitingDomain(ctx context.Context, companyID int64, domain string, offset, limit int) (int, []model.PromptMonitoringItem, error)

	// Task queue
	EnqueueJob(ctx context.Context, name string, args []byte, maxRetries int) (*Job, error)
	NextJob(ctx context.Context) (*Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	RescheduleJob(ctx context.Context, jobID string, errMsg string, runAfter time.Time) error
	FailJob(ctx context.Context, jobID string, errMsg string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
