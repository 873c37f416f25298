// Package suggest generates monitored-prompt suggestions for a company from
// its extracted profile and saves them as inactive prompts for the user to
// review.
package suggest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/cost"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/quota"
	"github.com/sells-group/promptwatch/internal/store"
	"github.com/sells-group/promptwatch/pkg/anthropic"
)

// Suggestions is the structured answer of the suggestion model.
type Suggestions struct {
	TargetAudiences  []string `json:"target_audiences"`
	ProductPrompts   []string `json:"prompts_leading_to_product"`
	ExpertisePrompts []string `json:"prompts_expertise"`
}

// Suggester produces prompt suggestions for a company.
type Suggester interface {
	Suggest(ctx context.Context, company *model.Company) (*Suggestions, error)
}

const suggestSystem = `You are given information about a company, based on their website's main page.
Your goal is to think in what cases an LLM can recommend a product or expertise of the company.
Respond with only a JSON object matching this schema:
{"target_audiences": [string], "prompts_leading_to_product": [string], "prompts_expertise": [string]}
target_audiences are the company's potential customers and decision makers.
prompts_leading_to_product are 5-7 questions target audiences can ask an LLM where the company's product can be the answer. One of the questions should include the company name.
prompts_expertise are 5-7 questions where the company's expertise (blog posts, papers) can be the answer.`

const suggestMaxTokens = 2048

// AnthropicSuggester implements Suggester on the Anthropic messages API.
type AnthropicSuggester struct {
	client anthropic.Client
	model  string
	costs  cost.Recorder
}

// NewAnthropicSuggester creates a suggester using the given model.
func NewAnthropicSuggester(client anthropic.Client, llmModel string, costs cost.Recorder) *AnthropicSuggester {
	if costs == nil {
		costs = cost.Discard{}
	}
	return &AnthropicSuggester{client: client, model: llmModel, costs: costs}
}

func (s *AnthropicSuggester) Suggest(ctx context.Context, company *model.Company) (*Suggestions, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: suggestMaxTokens,
		System:    suggestSystem,
		Messages: []anthropic.Message{
			{Role: "user", Content: "<company-data>\n" + company.PromptBlock() + "\n</company-data>"},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "suggest: generate prompts")
	}
	s.costs.Record(ctx, s.model, cost.CallTypePromptSuggestion, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	return parseSuggestions(resp.Text())
}

// parseSuggestions decodes the model's JSON answer, tolerating markdown
// fences around the object.
func parseSuggestions(text string) (*Suggestions, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var out Suggestions
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, eris.Wrap(err, "suggest: parse suggestions")
	}
	if len(out.ProductPrompts) == 0 && len(out.ExpertisePrompts) == 0 {
		return nil, eris.New("suggest: model returned no prompts")
	}
	return &out, nil
}

// suggestedTargetCountry is applied to every suggested prompt; users adjust
// it when activating.
const suggestedTargetCountry = "US"

// Pipeline executes one prompt-suggestion job.
type Pipeline struct {
	store     store.Store
	suggester Suggester
	gate      quota.Gate
}

// NewPipeline wires the suggestion pipeline.
func NewPipeline(st store.Store, suggester Suggester, gate quota.Gate) *Pipeline {
	return &Pipeline{store: st, suggester: suggester, gate: gate}
}

// Run generates prompt suggestions for the company and saves them inactive.
// A missing company ends the job without error. Creation stops early when the
// prompt quota runs out; the prompts saved so far are kept.
func (p *Pipeline) Run(ctx context.Context, companyID int64) error {
	log := zap.L().With(zap.Int64("company_id", companyID))

	company, err := p.store.GetCompany(ctx, companyID)
	if err != nil {
		return eris.Wrap(err, "suggest: load company")
	}
	if company == nil {
		log.Error("suggest: company not found")
		return nil
	}

	suggestions, err := p.suggester.Suggest(ctx, company)
	if err != nil {
		return err
	}

	created := 0
	for _, group := range []struct {
		promptType model.PromptType
		prompts    []string
	}{
		{model.PromptTypeProduct, suggestions.ProductPrompts},
		{model.PromptTypeExpertise, suggestions.ExpertisePrompts},
	} {
		for _, text := range group.prompts {
			allowed, err := p.gate.Check(ctx, companyID, model.QuotaPrompts)
			if err != nil {
				return eris.Wrap(err, "suggest: quota check")
			}
			if !allowed {
				log.Warn("suggest: prompt quota exhausted", zap.Int("created", created))
				return nil
			}
			_, err = p.store.CreatePrompt(ctx, &model.MonitoredPrompt{
				CompanyID:     companyID,
				Prompt:        text,
				PromptType:    group.promptType,
				TargetCountry: suggestedTargetCountry,
			})
			if err != nil {
				return eris.Wrap(err, "suggest: save prompt")
			}
			if err := p.gate.Increment(ctx, companyID, model.QuotaPrompts); err != nil {
				log.Error("suggest: quota increment", zap.Error(err))
			}
			created++
		}
	}

	log.Info("suggest: finished", zap.Int("created", created))
	return nil
}
