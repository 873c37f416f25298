// Package cost accumulates LLM usage into the hour-bucketed cost ledger.
package cost

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/model"
)

// Call types recorded in the ledger.
const (
	CallTypePromptMonitoring = "prompt_monitoring"
	CallTypeSiteSummary      = "site_summary"
	CallTypePromptSuggestion = "prompt_suggestion"
	CallTypeRecommendation   = "recommendation"
)

// Rate holds per-model token pricing in USD per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// DefaultRates returns pricing for the models the monitor calls.
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"gpt-4o-search-preview":     {Input: 2.50, Output: 10.00},
		"gemini-2.5-flash":          {Input: 0.30, Output: 2.50},
		"claude-haiku-4-5-20251001": {Input: 0.80, Output: 4.00},
	}
}

// unitsPerUSD converts dollars to ledger units (tenths of nanodollars).
const unitsPerUSD = 1e10

// Units computes the ledger cost for a call in integer tenth-nanodollar
// units. Unknown models record zero cost but still count calls and tokens.
func Units(rates map[string]Rate, llmModel string, tokensIn, tokensOut int) int64 {
	rate, ok := rates[llmModel]
	if !ok {
		return 0
	}
	usd := (float64(tokensIn)/1e6)*rate.Input + (float64(tokensOut)/1e6)*rate.Output
	return int64(usd * unitsPerUSD)
}

// Recorder accepts usage reports from provider calls.
type Recorder interface {
	Record(ctx context.Context, llmModel, callType string, tokensIn, tokensOut int)
}

// Sink is the persistence surface the ledger needs.
type Sink interface {
	AddCost(ctx context.Context, c model.LLMCost) error
}

// Ledger records usage into the store. Write failures are logged, not
// returned: cost tracking must never fail the job that spent the tokens.
type Ledger struct {
	sink  Sink
	rates map[string]Rate
}

// NewLedger creates a Ledger with the given rates; nil rates use defaults.
func NewLedger(sink Sink, rates map[string]Rate) *Ledger {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Ledger{sink: sink, rates: rates}
}

func (l *Ledger) Record(ctx context.Context, llmModel, callType string, tokensIn, tokensOut int) {
	c := model.LLMCost{
		Model:     llmModel,
		CallType:  callType,
		Date:      time.Now().UTC(),
		Cost:      Units(l.rates, llmModel, tokensIn, tokensOut),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}
	if err := l.sink.AddCost(ctx, c); err != nil {
		zap.L().Warn("cost: record failed",
			zap.String("model", llmModel),
			zap.String("call_type", callType),
			zap.Error(err),
		)
	}
}

// Discard is a Recorder that drops usage reports. Used when no store is wired.
type Discard struct{}

func (Discard) Record(context.Context, string, string, int, int) {}
