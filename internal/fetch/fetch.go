// Package fetch retrieves a company website and classifies the outcome for
// the crawl pipeline.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/config"
	"github.com/sells-group/promptwatch/internal/model"
)

// challengeHeader is how Cloudflare marks a 403 that is a browser challenge
// rather than a real denial.
const challengeHeader = "cf-mitigated"

// Fetcher fetches a URL and returns a classified status with the body, if any.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (model.CrawlStatus, string, error)
}

// Classify maps an HTTP response to a crawl status. 403 splits on the
// Cloudflare challenge marker; any other non-200, and a 200 with an empty
// body, classify as failure.
func Classify(statusCode int, header http.Header, body string) model.CrawlStatus {
	if statusCode == http.StatusForbidden {
		if header.Get(challengeHeader) == "challenge" {
			return model.CrawlStatusCloudflareChallenge
		}
		return model.CrawlStatusPermissionDenied
	}
	if statusCode != http.StatusOK {
		return model.CrawlStatusFailure
	}
	if body == "" {
		return model.CrawlStatusFailure
	}
	return model.CrawlStatusSuccess
}

// HTTPFetcher fetches directly over HTTP with a bounded in-process retry
// budget. Only plain failures are retried; challenge and permission-denied
// outcomes are structural and surface immediately.
type HTTPFetcher struct {
	client     *http.Client
	attempts   int
	retryDelay time.Duration
}

// New creates an HTTPFetcher from config.
func New(cfg config.FetchConfig) *HTTPFetcher {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client:     &http.Client{Timeout: timeout},
		attempts:   attempts,
		retryDelay: cfg.RetryDelay(),
	}
}

// Fetch issues the request and classifies the outcome. The returned error is
// non-nil only for context cancellation; network failures classify as
// failure like any other bad response, since the caller persists the status
// rather than retrying the job.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (model.CrawlStatus, string, error) {
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(f.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return model.CrawlStatusFailure, "", eris.Wrap(ctx.Err(), "fetch: canceled")
			case <-timer.C:
			}
		}

		status, body := f.fetchOnce(ctx, url)
		switch status {
		case model.CrawlStatusSuccess:
			return model.CrawlStatusSuccess, body, nil
		case model.CrawlStatusCloudflareChallenge, model.CrawlStatusPermissionDenied:
			return status, "", nil
		}
		if ctx.Err() != nil {
			return model.CrawlStatusFailure, "", eris.Wrap(ctx.Err(), "fetch: canceled")
		}
		zap.L().Debug("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.attempts),
		)
	}
	return model.CrawlStatusFailure, "", nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (model.CrawlStatus, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.CrawlStatusFailure, ""
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return model.CrawlStatusFailure, ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CrawlStatusFailure, ""
	}

	return Classify(resp.StatusCode, resp.Header, string(body)), string(body)
}
