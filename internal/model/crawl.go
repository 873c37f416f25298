package model

import "time"

// CrawlStatus is the state of one fetch attempt against a company's website.
type CrawlStatus string

const (
	CrawlStatusPending    CrawlStatus = "pending"
	CrawlStatusInProgress CrawlStatus = "in_progress"
	CrawlStatusSuccess    CrawlStatus = "success"
	CrawlStatusFailure    CrawlStatus = "failure"
	// CrawlStatusCloudflareChallenge means the site answered 403 with a
	// Cloudflare challenge marker. Structural; not retried in-process.
	CrawlStatusCloudflareChallenge CrawlStatus = "cloudflare_challenge"
	// CrawlStatusPermissionDenied means a plain 403. Structural as well.
	CrawlStatusPermissionDenied CrawlStatus = "permission_denied"
)

// Terminal reports whether the status is an end state for one invocation.
func (s CrawlStatus) Terminal() bool {
	switch s {
	case CrawlStatusSuccess, CrawlStatusFailure, CrawlStatusCloudflareChallenge, CrawlStatusPermissionDenied:
		return true
	}
	return false
}

// CompanyCrawl records one fetch attempt. Multiple rows may exist per company;
// the newest row wins for "current" queries.
type CompanyCrawl struct {
	ID          int64       `json:"id"`
	CompanyID   int64       `json:"company_id"`
	URL         string      `json:"url"`
	CrawlStatus CrawlStatus `json:"crawl_status"`
	RawResponse string      `json:"raw_response"`
	CreatedAt   time.Time   `json:"created_at"`
}
