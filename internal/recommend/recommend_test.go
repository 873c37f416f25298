package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/quota"
	"github.com/sells-group/promptwatch/internal/store"
)

type stubStore struct {
	store.Store

	rec     *model.Recommendation
	company *model.Company

	completed *completion
}

type completion struct {
	id                                  int64
	whyCompetitor, whyNotUser, whatToDo string
}

func (s *stubStore) GetRecommendation(_ context.Context, _ int64) (*model.Recommendation, error) {
	return s.rec, nil
}

func (s *stubStore) GetCompany(_ context.Context, _ int64) (*model.Company, error) {
	return s.company, nil
}

func (s *stubStore) CompleteRecommendation(_ context.Context, id int64, whyCompetitor, whyNotUser, whatToDo string) error {
	s.completed = &completion{id, whyCompetitor, whyNotUser, whatToDo}
	return nil
}

type stubGenerator struct {
	advice *Advice
	err    error
	called int

	gotDomain  string
	gotPrompts []string
}

func (g *stubGenerator) Generate(_ context.Context, _ *model.Company, domain string, prompts []string) (*Advice, error) {
	g.called++
	g.gotDomain = domain
	g.gotPrompts = prompts
	return g.advice, g.err
}

type stubGate struct {
	allowed    bool
	increments []model.QuotaKind
}

func (g *stubGate) Check(_ context.Context, _ int64, _ model.QuotaKind) (bool, error) {
	return g.allowed, nil
}

func (g *stubGate) Increment(_ context.Context, _ int64, kind model.QuotaKind) error {
	g.increments = append(g.increments, kind)
	return nil
}

func pendingRec() *model.Recommendation {
	return &model.Recommendation{
		ID:               8,
		CompanyID:        5,
		CompetitorDomain: "rival.com",
		PromptsToAnalyze: []string{"best widget vendor?"},
	}
}

func TestRunGeneratesAndCompletes(t *testing.T) {
	st := &stubStore{rec: pendingRec(), company: &model.Company{ID: 5, Name: "Acme"}}
	gen := &stubGenerator{advice: &Advice{
		WhyCompetitor: "better content",
		WhyNotUser:    "thin pages",
		WhatToDo:      "publish comparisons",
	}}
	gate := &stubGate{allowed: true}

	p := NewPipeline(st, gen, gate)
	require.NoError(t, p.Run(context.Background(), 8))

	assert.Equal(t, "rival.com", gen.gotDomain)
	assert.Equal(t, []string{"best widget vendor?"}, gen.gotPrompts)
	require.NotNil(t, st.completed)
	assert.Equal(t, int64(8), st.completed.id)
	assert.Equal(t, "publish comparisons", st.completed.whatToDo)
	assert.Equal(t, []model.QuotaKind{model.QuotaRecommendations}, gate.increments)
}

func TestRunMissingRecommendation(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{}

	p := NewPipeline(st, gen, quota.Open())
	require.NoError(t, p.Run(context.Background(), 8))
	assert.Zero(t, gen.called)
}

func TestRunAlreadyCompleted(t *testing.T) {
	done := time.Now()
	rec := pendingRec()
	rec.CompletedAt = &done
	st := &stubStore{rec: rec, company: &model.Company{ID: 5}}
	gen := &stubGenerator{}

	p := NewPipeline(st, gen, quota.Open())
	require.NoError(t, p.Run(context.Background(), 8))
	assert.Zero(t, gen.called)
	assert.Nil(t, st.completed)
}

func TestRunQuotaDenied(t *testing.T) {
	st := &stubStore{rec: pendingRec(), company: &model.Company{ID: 5}}
	gen := &stubGenerator{}
	gate := &stubGate{allowed: false}

	p := NewPipeline(st, gen, gate)
	require.NoError(t, p.Run(context.Background(), 8))
	// Row stays pending for a later request.
	assert.Zero(t, gen.called)
	assert.Nil(t, st.completed)
	assert.Empty(t, gate.increments)
}

func TestRunGeneratorErrorPropagates(t *testing.T) {
	st := &stubStore{rec: pendingRec(), company: &model.Company{ID: 5}}
	gen := &stubGenerator{err: assert.AnError}

	p := NewPipeline(st, gen, quota.Open())
	require.Error(t, p.Run(context.Background(), 8))
	assert.Nil(t, st.completed)
}

func TestParseAdvice(t *testing.T) {
	raw := "```json\n{\"analysis_steps\": [\"checked serps\"], \"why_competitor\": \"a\", \"why_not_user\": \"b\", \"what_to_do\": \"c\"}\n```"

	advice, err := parseAdvice(raw)
	require.NoError(t, err)
	assert.Equal(t, "a", advice.WhyCompetitor)
	assert.Equal(t, "c", advice.WhatToDo)
}

func TestParseAdviceRejectsEmptyActions(t *testing.T) {
	_, err := parseAdvice("not json")
	require.Error(t, err)

	_, err = parseAdvice(`{"why_competitor": "a"}`)
	require.Error(t, err)
}
