// Package crawl runs the website-crawl pipeline: fetch the company site,
// classify the outcome, and extract a structured profile from the content.
package crawl

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/fetch"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/store"
	"github.com/sells-group/promptwatch/internal/task"
)

// Pipeline executes one crawl job for a company.
type Pipeline struct {
	store      store.Store
	fetcher    fetch.Fetcher
	summarizer Summarizer
	dispatcher task.Dispatcher
}

// NewPipeline wires the crawl pipeline. A nil dispatcher skips the follow-up
// prompt-suggestion dispatch.
func NewPipeline(st store.Store, fetcher fetch.Fetcher, summarizer Summarizer, dispatcher task.Dispatcher) *Pipeline {
	return &Pipeline{store: st, fetcher: fetcher, summarizer: summarizer, dispatcher: dispatcher}
}

// Run crawls the company's website and, on success, persists the extracted
// profile. Missing company or website ends the job without error. A pending
// crawl row left by the enqueueing request is reused instead of inserting a
// second row. Fetch outcomes, including structural failures, are recorded on
// the crawl row; only summarization errors propagate so the dispatcher can
// retry them.
func (p *Pipeline) Run(ctx context.Context, companyID int64) error {
	log := zap.L().With(zap.Int64("company_id", companyID))

	company, err := p.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrap(err, "crawl: load company")
	}
	if company == nil {
		log.Error("crawl: company not found")
		return nil
	}
	if company.Website == "" {
		log.Error("crawl: company has no website")
		return nil
	}

	crawl, err := p.claimCrawlRow(ctx, companyID, company.Website)
	if err != nil {
		return err
	}

	status, content, fetchErr := p.fetcher.Fetch(ctx, company.Website)
	if status != model.CrawlStatusSuccess {
		if err := p.store.UpdateCrawl(ctx, crawl.ID, status, content); err != nil {
			return eris.Wrap(err, "crawl: record fetch outcome")
		}
		log.Error("crawl: fetch did not succeed",
			zap.String("url", company.Website),
			zap.String("status", string(status)),
			zap.Error(fetchErr),
		)
		return nil
	}

	summary, err := p.summarizer.Summarize(ctx, content)
	if err != nil {
		return err
	}

	understanding, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "crawl: marshal summary")
	}
	err = p.store.UpdateCompanyProfile(ctx, companyID,
		summary.CompanyName, summary.CompanyDescription, string(understanding), summary.ProductsText())
	if err != nil {
		return eris.Wrap(err, "crawl: save company profile")
	}
	if err := p.store.UpdateCrawl(ctx, crawl.ID, model.CrawlStatusSuccess, content); err != nil {
		return eris.Wrap(err, "crawl: finalize crawl")
	}

	// The fresh profile feeds the prompt-suggestion step. A dispatch failure
	// does not fail the crawl; suggestions can be requested again later.
	if p.dispatcher != nil {
		if err := p.dispatcher.Dispatch(ctx, task.JobCompanyPrompt, task.SuggestArgs{CompanyID: companyID}); err != nil {
			log.Error("crawl: dispatch prompt suggestions", zap.Error(err))
		}
	}

	log.Info("crawl: finished", zap.String("url", company.Website))
	return nil
}

// claimCrawlRow reuses a pending crawl row when one exists, otherwise inserts
// a fresh one, and marks it in progress either way.
func (p *Pipeline) claimCrawlRow(ctx context.Context, companyID int64, url string) (*model.CompanyCrawl, error) {
	latest, err := p.store.GetLatestCrawl(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: load latest crawl")
	}
	if latest != nil && latest.CrawlStatus == model.CrawlStatusPending {
		if err := p.store.UpdateCrawl(ctx, latest.ID, model.CrawlStatusInProgress, ""); err != nil {
			return nil, eris.Wrap(err, "crawl: mark crawl in progress")
		}
		latest.CrawlStatus = model.CrawlStatusInProgress
		return latest, nil
	}

	crawl, err := p.store.CreateCrawl(ctx, &model.CompanyCrawl{
		CompanyID:   companyID,
		URL:         url,
		CrawlStatus: model.CrawlStatusInProgress,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create crawl row")
	}
	return crawl, nil
}
