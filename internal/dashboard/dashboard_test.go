package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/resilience"
	"github.com/sells-group/promptwatch/internal/store"
)

type stubStore struct {
	store.Store

	company     *model.Company
	competitors []model.Company
	latestRuns  []store.LatestPromptRun

	statsTotal int
	statsItems []model.PromptMonitoringItem
	gotDomain  string
}

func (s *stubStore) GetCompany(_ context.Context, _ int64) (*model.Company, error) {
	return s.company, nil
}

func (s *stubStore) ListCompetitors(_ context.Context, _ int64) ([]model.Company, error) {
	return s.competitors, nil
}

func (s *stubStore) LatestPromptRuns(_ context.Context, _ int64) ([]store.LatestPromptRun, error) {
	return s.latestRuns, nil
}

func (s *stubStore) CompanyPromptStats(_ context.Context, _ int64, _, _ int) (int, []model.PromptMonitoringItem, error) {
	return s.statsTotal, s.statsItems, nil
}

func (s *stubStore) PromptsCitingDomain(_ context.Context, _ int64, domain string, _, _ int) (int, []model.PromptMonitoringItem, error) {
	s.gotDomain = domain
	return s.statsTotal, s.statsItems, nil
}

func intPtr(i int) *int { return &i }

func TestStatsCompanyNotFound(t *testing.T) {
	svc := New(&stubStore{})
	_, err := svc.Stats(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
}

func TestStatsVisibilityAndCitationShare(t *testing.T) {
	st := &stubStore{
		company: &model.Company{ID: 1, Website: "https://acme.com"},
		latestRuns: []store.LatestPromptRun{
			{PromptType: model.PromptTypeProduct, BrandMentioned: true, CompanyDomainRank: intPtr(1)},
			{PromptType: model.PromptTypeProduct, BrandMentioned: true},
			{PromptType: model.PromptTypeProduct, BrandMentioned: false},
			// Expertise runs count toward citation share but not visibility.
			{PromptType: model.PromptTypeExpertise, BrandMentioned: true, CompanyDomainRank: intPtr(3)},
		},
	}

	stats, err := New(st).Stats(context.Background(), 1)
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, stats.AIVisibilityScore, 1e-9)
	assert.InDelta(t, 2.0/4.0, stats.WebsiteCitationShare, 1e-9)
	assert.Equal(t, 4, stats.TotalRuns)
}

func TestStatsShareOfVoice(t *testing.T) {
	st := &stubStore{
		company:     &model.Company{ID: 1, Website: "https://acme.com"},
		competitors: []model.Company{{Website: "https://rival.com"}},
		latestRuns: []store.LatestPromptRun{
			{
				PromptType: model.PromptTypeProduct,
				MentionedPages: []string{
					// Both acme pages are one run, so the domain counts once.
					"https://acme.com/a",
					"https://blog.acme.com/b",
					"https://acme.com/c",
					"https://rival.com/review",
				},
			},
			{
				PromptType: model.PromptTypeProduct,
				MentionedPages: []string{
					"https://rival.com/top10",
					"https://neutral.org/list",
				},
			},
		},
	}

	stats, err := New(st).Stats(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, stats.ShareOfVoice, 4)
	assert.Equal(t, model.ShareOfVoiceItem{Domain: "rival.com", Count: 2, Type: model.DomainTypeCompetitor}, stats.ShareOfVoice[0])
	// Ties keep first-appearance order.
	assert.Equal(t, model.ShareOfVoiceItem{Domain: "acme.com", Count: 1, Type: model.DomainTypeCompany}, stats.ShareOfVoice[1])
	assert.Equal(t, model.ShareOfVoiceItem{Domain: "blog.acme.com", Count: 1, Type: model.DomainTypeCompany}, stats.ShareOfVoice[2])
	assert.Equal(t, model.ShareOfVoiceItem{Domain: "neutral.org", Count: 1, Type: model.DomainTypeOther}, stats.ShareOfVoice[3])
}

func TestStatsEmptyHistory(t *testing.T) {
	st := &stubStore{company: &model.Company{ID: 1, Website: "https://acme.com"}}

	stats, err := New(st).Stats(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, stats.AIVisibilityScore)
	assert.Zero(t, stats.WebsiteCitationShare)
	assert.Zero(t, stats.TotalRuns)
	assert.Empty(t, stats.ShareOfVoice)
}

func TestPromptStatsNotFound(t *testing.T) {
	_, _, err := New(&stubStore{}).PromptStats(context.Background(), 9, 0, 10)
	assert.True(t, resilience.IsNotFound(err))
}

func TestPromptsCitingDomainNormalizesInput(t *testing.T) {
	st := &stubStore{
		company:    &model.Company{ID: 1},
		statsTotal: 2,
		statsItems: []model.PromptMonitoringItem{{ID: 1}, {ID: 2}},
	}

	total, items, err := New(st).PromptsCitingDomain(context.Background(), 1, "https://www.Rival.com", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)
	assert.Equal(t, "rival.com", st.gotDomain)
}
