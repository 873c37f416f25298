package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/analysis"
	"github.com/sells-group/promptwatch/internal/analyzer"
	"github.com/sells-group/promptwatch/internal/cost"
	"github.com/sells-group/promptwatch/internal/crawl"
	"github.com/sells-group/promptwatch/internal/dashboard"
	"github.com/sells-group/promptwatch/internal/fetch"
	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/quota"
	"github.com/sells-group/promptwatch/internal/recommend"
	"github.com/sells-group/promptwatch/internal/schedule"
	"github.com/sells-group/promptwatch/internal/store"
	"github.com/sells-group/promptwatch/internal/suggest"
	"github.com/sells-group/promptwatch/internal/task"
	"github.com/sells-group/promptwatch/pkg/anthropic"
	"github.com/sells-group/promptwatch/pkg/gemini"
	"github.com/sells-group/promptwatch/pkg/openai"
)

// appEnv holds the wired application components shared by the commands.
type appEnv struct {
	Store      store.Store
	Gate       quota.Gate
	Analyzers  *analyzer.Registry
	Analysis   *analysis.Pipeline
	Crawl      *crawl.Pipeline
	Suggest    *suggest.Pipeline
	Recommend  *recommend.Pipeline
	Tasks      *task.Registry
	Dispatcher task.Dispatcher
	Scheduler  *schedule.Scheduler
	Dashboard  *dashboard.Service
}

// initApp connects the store and wires every component from configuration.
func initApp(ctx context.Context) (*appEnv, error) {
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect store")
	}

	ledger := cost.NewLedger(st, nil)
	gate := quota.FromConfig(st, cfg.Quota)

	analyzers := analyzer.NewRegistry()
	if cfg.Gemini.Key != "" {
		opts := []gemini.Option{gemini.WithModel(cfg.Gemini.Model)}
		if cfg.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
		}
		if cfg.Gemini.RPS > 0 {
			opts = append(opts, gemini.WithRateLimit(cfg.Gemini.RPS))
		}
		analyzers.Register(analyzer.NewGemini(gemini.NewClient(cfg.Gemini.Key, opts...), cfg.Gemini.Model, ledger))
	}
	if cfg.OpenAI.Key != "" {
		opts := []openai.Option{openai.WithModel(cfg.OpenAI.Model)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if cfg.OpenAI.RPS > 0 {
			opts = append(opts, openai.WithRateLimit(cfg.OpenAI.RPS))
		}
		analyzers.Register(analyzer.NewOpenAI(openai.NewClient(cfg.OpenAI.Key, opts...), cfg.OpenAI.Model, ledger))
	}
	if analyzers.Len() == 0 {
		zap.L().Warn("no monitoring channels configured")
	}

	var summarizer crawl.Summarizer = unavailableSummarizer{}
	var suggester suggest.Suggester = unavailableSuggester{}
	var generator recommend.Generator = unavailableGenerator{}
	if cfg.Anthropic.Key != "" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		summarizer = crawl.NewAnthropicSummarizer(client, cfg.Anthropic.Model, ledger)
		suggester = suggest.NewAnthropicSuggester(client, cfg.Anthropic.Model, ledger)
		generator = recommend.NewAnthropicGenerator(client, cfg.Anthropic.Model, ledger)
	}

	env := &appEnv{
		Store:     st,
		Gate:      gate,
		Analyzers: analyzers,
		Analysis:  analysis.NewPipeline(st, analyzers, gate),
		Tasks:     task.NewRegistry(),
		Dashboard: dashboard.New(st),
	}

	if cfg.Task.Mode == "inline" {
		env.Dispatcher = task.NewInline(env.Tasks)
	} else {
		env.Dispatcher = task.NewQueue(st, cfg.Task.MaxRetries)
	}
	env.Crawl = crawl.NewPipeline(st, fetch.New(cfg.Fetch), summarizer, env.Dispatcher)
	env.Suggest = suggest.NewPipeline(st, suggester, gate)
	env.Recommend = recommend.NewPipeline(st, generator, gate)

	env.Tasks.Register(task.JobAnalyzePrompt, func(ctx context.Context, args []byte) error {
		var a task.AnalyzeArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return eris.Wrap(err, "decode analyze args")
		}
		return env.Analysis.Run(ctx, a.PromptID)
	})
	env.Tasks.Register(task.JobCompanyCrawl, func(ctx context.Context, args []byte) error {
		var a task.CrawlArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return eris.Wrap(err, "decode crawl args")
		}
		return env.Crawl.Run(ctx, a.CompanyID)
	})
	env.Tasks.Register(task.JobCompanyPrompt, func(ctx context.Context, args []byte) error {
		var a task.SuggestArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return eris.Wrap(err, "decode suggest args")
		}
		return env.Suggest.Run(ctx, a.CompanyID)
	})
	env.Tasks.Register(task.JobRecommendation, func(ctx context.Context, args []byte) error {
		var a task.RecommendArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return eris.Wrap(err, "decode recommend args")
		}
		return env.Recommend.Run(ctx, a.RecommendationID)
	})

	env.Scheduler = schedule.New(st, env.Dispatcher, cfg.Scheduler.ClaimBatchSize, cfg.Scheduler.ClaimLease())

	return env, nil
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// Worker builds the queue consumer for this environment.
func (e *appEnv) Worker() *task.Worker {
	return task.NewWorker(e.Store, e.Tasks, cfg.Task.Workers, time.Duration(cfg.Task.PollSecs)*time.Second)
}

// unavailableSummarizer fails crawl jobs when no summarization key is set,
// leaving them to the queue's retry policy rather than silently skipping the
// profile extraction.
type unavailableSummarizer struct{}

func (unavailableSummarizer) Summarize(context.Context, string) (*model.SiteSummary, error) {
	return nil, eris.New("site summarization is not configured")
}

type unavailableSuggester struct{}

func (unavailableSuggester) Suggest(context.Context, *model.Company) (*suggest.Suggestions, error) {
	return nil, eris.New("prompt suggestion is not configured")
}

type unavailableGenerator struct{}

func (unavailableGenerator) Generate(context.Context, *model.Company, string, []string) (*recommend.Advice, error) {
	return nil, eris.New("recommendation generation is not configured")
}
