package crawl

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/cost"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/pkg/anthropic"
)

// Summarizer turns raw website content into a structured company profile.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (*model.SiteSummary, error)
}

const summarizeSystem = `You are given the raw HTML content of a company website.
Extract information about the company and respond with only a JSON object matching this schema:
{"company_name": string, "company_description": string, "main_products": [string]}
company_description focuses on what they do and who they are.
Each main product is formatted as "<product_name>: <product_description>".`

const summarizeMaxTokens = 2048

// maxContentChars bounds the HTML sent to the model so oversized pages do not
// blow the context window.
const maxContentChars = 400_000

// AnthropicSummarizer implements Summarizer on the Anthropic messages API.
type AnthropicSummarizer struct {
	client anthropic.Client
	model  string
	costs  cost.Recorder
}

// NewAnthropicSummarizer creates a summarizer using the given model.
func NewAnthropicSummarizer(client anthropic.Client, llmModel string, costs cost.Recorder) *AnthropicSummarizer {
	if costs == nil {
		costs = cost.Discard{}
	}
	return &AnthropicSummarizer{client: client, model: llmModel, costs: costs}
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, content string) (*model.SiteSummary, error) {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: summarizeMaxTokens,
		System:    summarizeSystem,
		Messages: []anthropic.Message{
			{Role: "user", Content: "<website_content>\n" + content + "\n</website_content>"},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "crawl: summarize site")
	}
	s.costs.Record(ctx, s.model, cost.CallTypeSiteSummary, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	summary, err := parseSummary(resp.Text())
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// parseSummary decodes the model's JSON answer, tolerating markdown fences
// around the object.
func parseSummary(text string) (*model.SiteSummary, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var summary model.SiteSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, eris.Wrap(err, "crawl: parse site summary")
	}
	if summary.CompanyName == "" {
		return nil, eris.New("crawl: site summary missing company name")
	}
	return &summary, nil
}
