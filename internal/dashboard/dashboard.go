// Package dashboard turns raw run history into the visibility metrics shown
// to users: visibility score, citation share, and share of voice.
package dashboard

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/resilience"
	"github.com/sells-group/promptwatch/internal/store"
	"github.com/sells-group/promptwatch/internal/urlnorm"
)

// Service computes aggregation reads for one company.
type Service struct {
	store store.Store
}

// New creates the dashboard service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Stats computes the dashboard metrics over the latest run per active prompt
// per provider. Visibility score counts brand mentions among product-type
// runs; citation share counts ranked citations among all qualifying runs;
// share of voice counts each cited domain at most once per run and classifies
// it against the company's and its competitors' domains.
func (s *Service) Stats(ctx context.Context, companyID int64) (*model.DashboardStats, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: load company")
	}
	if company == nil {
		return nil, &resilience.NotFoundError{Entity: "company", ID: companyID}
	}

	companyDomain := urlnorm.Domain(company.Website)
	competitors, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: load competitors")
	}
	var competitorDomains []string
	for _, c := range competitors {
		if d := urlnorm.Domain(c.Website); d != "" {
			competitorDomains = append(competitorDomains, d)
		}
	}

	runs, err := s.store.LatestPromptRuns(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: load latest runs")
	}

	stats := &model.DashboardStats{TotalRuns: len(runs)}

	var productTotal, productMentions, citations int
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for _, run := range runs {
		if run.PromptType == model.PromptTypeProduct {
			productTotal++
			if run.BrandMentioned {
				productMentions++
			}
		}
		if run.CompanyDomainRank != nil {
			citations++
		}

		seenInRun := make(map[string]struct{})
		for _, page := range run.MentionedPages {
			domain := urlnorm.Domain(page)
			if domain == "" {
				continue
			}
			if _, ok := seenInRun[domain]; ok {
				continue
			}
			seenInRun[domain] = struct{}{}
			if _, ok := counts[domain]; !ok {
				firstSeen[domain] = len(firstSeen)
			}
			counts[domain]++
		}
	}

	if productTotal > 0 {
		stats.AIVisibilityScore = float64(productMentions) / float64(productTotal)
	}
	if len(runs) > 0 {
		stats.WebsiteCitationShare = float64(citations) / float64(len(runs))
	}
	stats.ShareOfVoice = rankDomains(counts, firstSeen, companyDomain, competitorDomains)

	return stats, nil
}

// rankDomains orders domains by count descending, breaking ties by first
// appearance, and classifies each one.
func rankDomains(counts, firstSeen map[string]int, companyDomain string, competitorDomains []string) []model.ShareOfVoiceItem {
	items := make([]model.ShareOfVoiceItem, 0, len(counts))
	for domain, count := range counts {
		items = append(items, model.ShareOfVoiceItem{
			Domain: domain,
			Count:  count,
			Type:   classifyDomain(domain, companyDomain, competitorDomains),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return firstSeen[items[i].Domain] < firstSeen[items[j].Domain]
	})
	return items
}

func classifyDomain(domain, companyDomain string, competitorDomains []string) model.DomainType {
	if urlnorm.IsSuffixMatch(domain, companyDomain) {
		return model.DomainTypeCompany
	}
	for _, d := range competitorDomains {
		if urlnorm.IsSuffixMatch(domain, d) {
			return model.DomainTypeCompetitor
		}
	}
	return model.DomainTypeOther
}

// PromptStats lists the company's prompts with their latest per-provider
// results and average visibility, newest first.
func (s *Service) PromptStats(ctx context.Context, companyID int64, offset, limit int) (int, []model.PromptMonitoringItem, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return 0, nil, eris.Wrap(err, "dashboard: load company")
	}
	if company == nil {
		return 0, nil, &resilience.NotFoundError{Entity: "company", ID: companyID}
	}
	return s.store.CompanyPromptStats(ctx, companyID, offset, limit)
}

// PromptsCitingDomain lists prompts whose run history cites the given domain,
// annotated the same way as PromptStats.
func (s *Service) PromptsCitingDomain(ctx context.Context, companyID int64, domain string, offset, limit int) (int, []model.PromptMonitoringItem, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return 0, nil, eris.Wrap(err, "dashboard: load company")
	}
	if company == nil {
		return 0, nil, &resilience.NotFoundError{Entity: "company", ID: companyID}
	}
	return s.store.PromptsCitingDomain(ctx, companyID, urlnorm.Domain(domain), offset, limit)
}
