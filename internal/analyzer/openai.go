package analyzer

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/cost"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/pkg/openai"
)

const defaultCountry = "US"

// OpenAIAnalyzer runs prompts through OpenAI web-search chat completions and
// extracts signals from the answer's URL citation annotations.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
	costs  cost.Recorder
}

// NewOpenAI creates an analyzer backed by the given OpenAI client.
func NewOpenAI(client openai.Client, llmModel string, costs cost.Recorder) *OpenAIAnalyzer {
	if costs == nil {
		costs = cost.Discard{}
	}
	return &OpenAIAnalyzer{client: client, model: llmModel, costs: costs}
}

func (a *OpenAIAnalyzer) Name() string { return "openai" }

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, prompt *model.MonitoredPrompt, company *model.Company) (*model.MonitoredPromptRun, error) {
	country := prompt.TargetCountry
	if country == "" {
		country = defaultCountry
	}

	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: []openai.Message{{Role: "user", Content: prompt.Prompt}},
		WebSearchOptions: &openai.WebSearchOptions{
			UserLocation: &openai.UserLocation{
				Type:        "approximate",
				Approximate: openai.Approximate{Country: country},
			},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: openai completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("analyzer: openai returned no choices")
	}
	a.costs.Record(ctx, a.model, cost.CallTypePromptMonitoring, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	msg := resp.Choices[0].Message
	citations := make([]citation, 0, len(msg.Annotations))
	for _, ann := range msg.Annotations {
		citations = append(citations, citation{
			Domain: ann.URLCitation.URL,
			Page:   ann.URLCitation.URL,
		})
	}
	sig := extract(msg.Content, citations, company)

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: marshal openai response")
	}

	return &model.MonitoredPromptRun{
		MonitoredPromptID: prompt.ID,
		LLMProvider:       a.Name(),
		LLMModel:          a.model,
		RawResponse:       string(raw),
		TopDomain:         sig.TopDomain,
		BrandMentioned:    sig.BrandMentioned,
		CompanyDomainRank: sig.CompanyDomainRank,
		MentionedPages:    sig.MentionedPages,
	}, nil
}
