package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promptwatch/internal/analyzer"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/quota"
	"github.com/sells-group/promptwatch/internal/store"
)

type stubStore struct {
	store.Store

	prompt  *model.MonitoredPrompt
	company *model.Company

	finished *finishCall
}

type finishCall struct {
	promptID  int64
	lastRunAt time.Time
	nextRunAt time.Time
	runs      []*model.MonitoredPromptRun
}

func (s *stubStore) GetPrompt(_ context.Context, _ int64) (*model.MonitoredPrompt, error) {
	return s.prompt, nil
}

func (s *stubStore) GetCompany(_ context.Context, _ int64) (*model.Company, error) {
	return s.company, nil
}

func (s *stubStore) FinishAnalysis(_ context.Context, promptID int64, lastRunAt, nextRunAt time.Time, runs []*model.MonitoredPromptRun) error {
	s.finished = &finishCall{promptID, lastRunAt, nextRunAt, runs}
	return nil
}

type stubGate struct {
	allowed    bool
	checked    int
	increments []model.QuotaKind
}

func (g *stubGate) Check(_ context.Context, _ int64, _ model.QuotaKind) (bool, error) {
	g.checked++
	return g.allowed, nil
}

func (g *stubGate) Increment(_ context.Context, _ int64, kind model.QuotaKind) error {
	g.increments = append(g.increments, kind)
	return nil
}

type stubAnalyzer struct {
	name   string
	run    *model.MonitoredPromptRun
	err    error
	called int
}

func (a *stubAnalyzer) Name() string { return a.name }

func (a *stubAnalyzer) Analyze(_ context.Context, _ *model.MonitoredPrompt, _ *model.Company) (*model.MonitoredPromptRun, error) {
	a.called++
	return a.run, a.err
}

func duePrompt() *model.MonitoredPrompt {
	scheduled := time.Now().Add(-time.Minute)
	return &model.MonitoredPrompt{
		ID:                     3,
		CompanyID:              5,
		Prompt:                 "best widget vendor?",
		PromptType:             model.PromptTypeProduct,
		RefreshIntervalSeconds: 3600,
		IsActive:               true,
		NextRunAt:              time.Now().Add(-10 * time.Minute),
		TaskScheduledAt:        &scheduled,
	}
}

func registryOf(analyzers ...analyzer.Analyzer) *analyzer.Registry {
	reg := analyzer.NewRegistry()
	for _, a := range analyzers {
		reg.Register(a)
	}
	return reg
}

func TestRunHappyPath(t *testing.T) {
	prompt := duePrompt()
	st := &stubStore{prompt: prompt, company: &model.Company{ID: 5, Name: "Acme"}}
	gate := &stubGate{allowed: true}
	gem := &stubAnalyzer{name: "gemini", run: &model.MonitoredPromptRun{LLMProvider: "gemini"}}
	oai := &stubAnalyzer{name: "openai", run: &model.MonitoredPromptRun{LLMProvider: "openai"}}

	p := NewPipeline(st, registryOf(gem, oai), gate)
	now := time.Date(2100, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Run(context.Background(), 3))

	require.NotNil(t, st.finished)
	assert.Equal(t, int64(3), st.finished.promptID)
	assert.Equal(t, now, st.finished.lastRunAt)
	// Reschedule is additive from the previous scheduled time, not from now.
	assert.Equal(t, prompt.NextRunAt.Add(time.Hour), st.finished.nextRunAt)
	require.Len(t, st.finished.runs, 2)
	assert.Equal(t, "gemini", st.finished.runs[0].LLMProvider)
	assert.Equal(t, "openai", st.finished.runs[1].LLMProvider)

	// The llm_calls counter moves inside FinishAnalysis, never via the gate.
	assert.Empty(t, gate.increments)
}

func TestRunPromptNotFound(t *testing.T) {
	st := &stubStore{}
	a := &stubAnalyzer{name: "openai"}
	p := NewPipeline(st, registryOf(a), quota.Open())

	require.NoError(t, p.Run(context.Background(), 3))
	assert.Zero(t, a.called)
	assert.Nil(t, st.finished)
}

func TestRunInactivePrompt(t *testing.T) {
	prompt := duePrompt()
	prompt.IsActive = false
	st := &stubStore{prompt: prompt}
	a := &stubAnalyzer{name: "openai"}
	p := NewPipeline(st, registryOf(a), quota.Open())

	require.NoError(t, p.Run(context.Background(), 3))
	assert.Zero(t, a.called)
	assert.Nil(t, st.finished)
}

func TestRunNotDueYet(t *testing.T) {
	prompt := duePrompt()
	prompt.NextRunAt = time.Now().Add(time.Hour)
	st := &stubStore{prompt: prompt, company: &model.Company{ID: 5}}
	a := &stubAnalyzer{name: "openai"}
	p := NewPipeline(st, registryOf(a), quota.Open())

	require.NoError(t, p.Run(context.Background(), 3))
	assert.Zero(t, a.called)
	assert.Nil(t, st.finished)
}

func TestRunCompanyNotFound(t *testing.T) {
	st := &stubStore{prompt: duePrompt()}
	a := &stubAnalyzer{name: "openai"}
	p := NewPipeline(st, registryOf(a), quota.Open())

	require.NoError(t, p.Run(context.Background(), 3))
	assert.Zero(t, a.called)
	assert.Nil(t, st.finished)
}

func TestRunQuotaDenied(t *testing.T) {
	st := &stubStore{prompt: duePrompt(), company: &model.Company{ID: 5}}
	gate := &stubGate{allowed: false}
	a := &stubAnalyzer{name: "openai"}
	p := NewPipeline(st, registryOf(a), gate)

	require.NoError(t, p.Run(context.Background(), 3))
	assert.Equal(t, 1, gate.checked)
	assert.Zero(t, a.called)
	// Claim stays set and nothing is written.
	assert.Nil(t, st.finished)
	assert.Empty(t, gate.increments)
}

func TestRunNoProvidersEnabled(t *testing.T) {
	st := &stubStore{prompt: duePrompt(), company: &model.Company{ID: 5}}
	gate := &stubGate{allowed: true}
	p := NewPipeline(st, registryOf(), gate)

	require.NoError(t, p.Run(context.Background(), 3))
	assert.Nil(t, st.finished)
	assert.Empty(t, gate.increments)
}

func TestRunPartialProviderFailure(t *testing.T) {
	st := &stubStore{prompt: duePrompt(), company: &model.Company{ID: 5}}
	gate := &stubGate{allowed: true}
	broken := &stubAnalyzer{name: "gemini", err: assert.AnError}
	ok := &stubAnalyzer{name: "openai", run: &model.MonitoredPromptRun{LLMProvider: "openai"}}
	p := NewPipeline(st, registryOf(broken, ok), gate)

	require.NoError(t, p.Run(context.Background(), 3))
	require.NotNil(t, st.finished)
	require.Len(t, st.finished.runs, 1)
	assert.Equal(t, "openai", st.finished.runs[0].LLMProvider)
	assert.Empty(t, gate.increments)
}

func TestRunAllProvidersFail(t *testing.T) {
	st := &stubStore{prompt: duePrompt(), company: &model.Company{ID: 5}}
	gate := &stubGate{allowed: true}
	broken := &stubAnalyzer{name: "openai", err: assert.AnError}
	p := NewPipeline(st, registryOf(broken), gate)

	err := p.Run(context.Background(), 3)
	require.Error(t, err)
	assert.Nil(t, st.finished)
	assert.Empty(t, gate.increments)
}
