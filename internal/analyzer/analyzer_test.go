package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/pkg/gemini"
	"github.com/sells-group/promptwatch/pkg/openai"
)

type fakeOpenAI struct {
	resp *openai.ChatCompletionResponse
	err  error
}

func (f *fakeOpenAI) ChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	return f.resp, f.err
}

type fakeGemini struct {
	resp     *gemini.GenerateResponse
	err      error
	resolved map[string]string
}

func (f *fakeGemini) GenerateGrounded(_ context.Context, _ string) (*gemini.GenerateResponse, error) {
	return f.resp, f.err
}

func (f *fakeGemini) ResolveRedirect(_ context.Context, uri string) string {
	if dest, ok := f.resolved[uri]; ok {
		return dest
	}
	return uri
}

type recordedCost struct {
	model     string
	callType  string
	tokensIn  int
	tokensOut int
}

type fakeRecorder struct {
	calls []recordedCost
}

func (f *fakeRecorder) Record(_ context.Context, llmModel, callType string, tokensIn, tokensOut int) {
	f.calls = append(f.calls, recordedCost{llmModel, callType, tokensIn, tokensOut})
}

func TestOpenAIAnalyze(t *testing.T) {
	client := &fakeOpenAI{
		resp: &openai.ChatCompletionResponse{
			Model: "gpt-4o-search-preview",
			Choices: []openai.Choice{{
				Message: openai.Message{
					Role:    "assistant",
					Content: "Acme Corp is a leading option.",
					Annotations: []openai.Annotation{
						{Type: "url_citation", URLCitation: openai.URLCitation{URL: "https://rival.com/review"}},
						{Type: "url_citation", URLCitation: openai.URLCitation{URL: "https://www.acme.com/pricing"}},
					},
				},
			}},
			Usage: openai.Usage{PromptTokens: 100, CompletionTokens: 250},
		},
	}
	costs := &fakeRecorder{}
	a := NewOpenAI(client, "gpt-4o-search-preview", costs)

	run, err := a.Analyze(context.Background(), &model.MonitoredPrompt{ID: 7, Prompt: "best tools?"}, testCompany())
	require.NoError(t, err)

	assert.Equal(t, "openai", run.LLMProvider)
	assert.Equal(t, "gpt-4o-search-preview", run.LLMModel)
	assert.Equal(t, int64(7), run.MonitoredPromptID)
	assert.True(t, run.BrandMentioned)
	require.NotNil(t, run.CompanyDomainRank)
	assert.Equal(t, 2, *run.CompanyDomainRank)
	require.NotNil(t, run.TopDomain)
	assert.Equal(t, "rival.com", *run.TopDomain)
	assert.Equal(t, []string{"https://rival.com/review", "https://acme.com/pricing"}, run.MentionedPages)
	assert.NotEmpty(t, run.RawResponse)

	require.Len(t, costs.calls, 1)
	assert.Equal(t, recordedCost{"gpt-4o-search-preview", "prompt_monitoring", 100, 250}, costs.calls[0])
}

func TestOpenAIAnalyzeError(t *testing.T) {
	a := NewOpenAI(&fakeOpenAI{err: assert.AnError}, "m", nil)

	_, err := a.Analyze(context.Background(), &model.MonitoredPrompt{ID: 1, Prompt: "q"}, testCompany())
	require.Error(t, err)
}

func TestOpenAIAnalyzeNoChoices(t *testing.T) {
	a := NewOpenAI(&fakeOpenAI{resp: &openai.ChatCompletionResponse{}}, "m", nil)

	_, err := a.Analyze(context.Background(), &model.MonitoredPrompt{ID: 1, Prompt: "q"}, testCompany())
	require.Error(t, err)
}

func TestGeminiAnalyze(t *testing.T) {
	redirect := "https://vertexaisearch.cloud.google.com/grounding-api-redirect/abc"
	client := &fakeGemini{
		resp: &gemini.GenerateResponse{
			Candidates: []gemini.Candidate{{
				Content: gemini.Content{Parts: []gemini.Part{{Text: "Consider "}, {Text: "AcmeSoft."}}},
				GroundingMetadata: &gemini.GroundingMetadata{
					GroundingChunks: []gemini.GroundingChunk{
						{Web: &gemini.WebSource{URI: redirect, Title: "Acme", Domain: "acme.com"}},
						{Web: &gemini.WebSource{URI: "https://unresolvable.example/xyz", Domain: "rival.com"}},
					},
				},
			}},
			UsageMetadata: gemini.UsageMetadata{PromptTokenCount: 40, CandidatesTokenCount: 90},
		},
		resolved: map[string]string{redirect: "https://www.acme.com/features"},
	}
	costs := &fakeRecorder{}
	a := NewGemini(client, "gemini-2.5-flash", costs)

	run, err := a.Analyze(context.Background(), &model.MonitoredPrompt{ID: 9, Prompt: "best tools?"}, testCompany())
	require.NoError(t, err)

	assert.Equal(t, "gemini", run.LLMProvider)
	assert.True(t, run.BrandMentioned)
	require.NotNil(t, run.CompanyDomainRank)
	assert.Equal(t, 1, *run.CompanyDomainRank)
	require.NotNil(t, run.TopDomain)
	assert.Equal(t, "acme.com", *run.TopDomain)
	// Only the resolved redirect becomes a mentioned page.
	assert.Equal(t, []string{"https://acme.com/features"}, run.MentionedPages)

	require.Len(t, costs.calls, 1)
	assert.Equal(t, recordedCost{"gemini-2.5-flash", "prompt_monitoring", 40, 90}, costs.calls[0])
}

func TestGeminiAnalyzeNoCandidates(t *testing.T) {
	a := NewGemini(&fakeGemini{resp: &gemini.GenerateResponse{}}, "m", nil)

	_, err := a.Analyze(context.Background(), &model.MonitoredPrompt{ID: 1, Prompt: "q"}, testCompany())
	require.Error(t, err)
}

func TestRegistryOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewOpenAI(&fakeOpenAI{}, "m1", nil))
	reg.Register(NewGemini(&fakeGemini{}, "m2", nil))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "openai", all[0].Name())
	assert.Equal(t, "gemini", all[1].Name())
	assert.Equal(t, 2, reg.Len())
	assert.NotNil(t, reg.Get("openai"))
	assert.Nil(t, reg.Get("perplexity"))
}
