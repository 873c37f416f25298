// Package recommend fills user-requested competitive recommendations: given
// a company and a competitor domain winning selected prompts, explain the gap
// and what to do about it.
package recommend

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

// Advice is the structured answer of the recommendation model.
type Advice struct {
	AnalysisSteps []string `json:"analysis_steps"`
	WhyCompetitor string   `json:"why_competitor"`
	WhyNotUser    string   `json:"why_not_user"`
	WhatToDo      string   `json:"what_to_do"`
}

// Generator produces competitive advice.
type Generator interface {
	Generate(ctx context.Context, company *model.Company, competitorDomain string, prompts []string) (*Advice, error)
}

const generateSystem = `You are provided a company brief and a website the company wants to compete with
in being recommended by AI chats like ChatGPT, Claude, Gemini.
It can be either a business competitor or an attention eater.
You are provided with prompts the user is interested in.
Explain why the competitor is succeeding, why the company is not, and
actionable steps that can be taken within 1 month for improvement.
Respond with only a JSON object matching this schema:
{"analysis_steps": [string], "why_competitor": string, "why_not_user": string, "what_to_do": string}`

const generateMaxTokens = 4096

// AnthropicGenerator implements Generator on the Anthropic messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	model  string
	costs  cost.Recorder
}

// NewAnthropicGenerator creates a generator using the given model.
func NewAnthropicGenerator(client anthropic.Client, llmModel string, costs cost.Recorder) *AnthropicGenerator {
	if costs == nil {
		costs = cost.Discard{}
	}
	return &AnthropicGenerator{client: client, model: llmModel, costs: costs}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, company *model.Company, competitorDomain string, prompts []string) (*Advice, error) {
	var b strings.Builder
	b.WriteString("<company>\n" + company.PromptBlock() + "\n</company>\n")
	b.WriteString("<competitor>" + competitorDomain + "</competitor>\n<prompts>\n")
	for _, p := range prompts {
		b.WriteString("<prompt>" + p + "</prompt>\n")
	}
	b.WriteString("</prompts>")

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: generateMaxTokens,
		System:    generateSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "recommend: generate advice")
	}
	g.costs.Record(ctx, g.model, cost.CallTypeRecommendation, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	return parseAdvice(resp.Text())
}

func parseAdvice(text string) (*Advice, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var advice Advice
	if err := json.Unmarshal([]byte(text), &advice); err != nil {
		return nil, eris.Wrap(err, "recommend: parse advice")
	}
	if advice.WhatToDo == "" {
		return nil, eris.New("recommend: advice missing actions")
	}
	return &advice, nil
}

// Pipeline executes one recommendation-generation job.
type Pipeline struct {
	store     store.Store
	generator Generator
	gate      quota.Gate
}

// NewPipeline wires the recommendation pipeline.
func NewPipeline(st store.Store, generator Generator, gate quota.Gate) *Pipeline {
	return &Pipeline{store: st, generator: generator, gate: gate}
}

// Run generates the advice for one recommendation row. The job is safe to
// re-deliver: a missing or already completed row ends it without error, and
// quota denial leaves the row pending for a later request.
func (p *Pipeline) Run(ctx context.Context, recommendationID int64) error {
	log := zap.L().With(zap.Int64("recommendation_id", recommendationID))

	rec, err := p.store.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return eris.Wrap(err, "recommend: load recommendation")
	}
	if rec == nil {
		log.Info("recommend: recommendation not found")
		return nil
	}
	if rec.CompletedAt != nil {
		log.Info("recommend: already completed")
		return nil
	}

	company, err := p.store.GetCompany(ctx, rec.CompanyID)
	if err != nil {
		return eris.Wrap(err, "recommend: load company")
	}
	if company == nil {
		log.Info("recommend: company not found", zap.Int64("company_id", rec.CompanyID))
		return nil
	}

	allowed, err := p.gate.Check(ctx, rec.CompanyID, model.QuotaRecommendations)
	if err != nil {
		return eris.Wrap(err, "recommend: quota check")
	}
	if !allowed {
		log.Warn("recommend: recommendation quota exhausted", zap.Int64("company_id", rec.CompanyID))
		return nil
	}

	advice, err := p.generator.Generate(ctx, company, rec.CompetitorDomain, rec.PromptsToAnalyze)
	if err != nil {
		return err
	}

	if err := p.store.CompleteRecommendation(ctx, recommendationID, advice.WhyCompetitor, advice.WhyNotUser, advice.WhatToDo); err != nil {
		return eris.Wrap(err, "recommend: save advice")
	}
	if err := p.gate.Increment(ctx, rec.CompanyID, model.QuotaRecommendations); err != nil {
		log.Error("recommend: quota increment", zap.Error(err))
	}

	log.Info("recommend: finished", zap.String("competitor_domain", rec.CompetitorDomain))
	return nil
}
