package analyzer

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promptwatch/internal/cost"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/pkg/gemini"
)

// GeminiAnalyzer runs prompts through Gemini grounded generation and extracts
// signals from the answer's grounding chunks. Cited URIs arrive as
// vertexaisearch redirects; only ones that resolve to a destination page are
// kept as mentioned pages, while domain-based signals use the chunk's domain
// field directly.
type GeminiAnalyzer struct {
	client gemini.Client
	model  string
	costs  cost.Recorder
}

// NewGemini creates an analyzer backed by the given Gemini client.
func NewGemini(client gemini.Client, llmModel string, costs cost.Recorder) *GeminiAnalyzer {
	if costs == nil {
		costs = cost.Discard{}
	}
	return &GeminiAnalyzer{client: client, model: llmModel, costs: costs}
}

func (a *GeminiAnalyzer) Name() string { return "gemini" }

func (a *GeminiAnalyzer) Analyze(ctx context.Context, prompt *model.MonitoredPrompt, company *model.Company) (*model.MonitoredPromptRun, error) {
	resp, err := a.client.GenerateGrounded(ctx, prompt.Prompt)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: gemini generate")
	}
	if len(resp.Candidates) == 0 {
		return nil, eris.New("analyzer: gemini returned no candidates")
	}
	a.costs.Record(ctx, a.model, cost.CallTypePromptMonitoring, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)

	cand := resp.Candidates[0]
	var citations []citation
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			c := citation{Domain: chunk.Web.Domain}
			if resolved := a.client.ResolveRedirect(ctx, chunk.Web.URI); resolved != chunk.Web.URI {
				c.Page = resolved
			}
			citations = append(citations, c)
		}
	}
	sig := extract(cand.Text(), citations, company)

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: marshal gemini response")
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
