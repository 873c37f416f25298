// Package server exposes the HTTP API: the cron trigger endpoint, company and
// prompt management, and the dashboard reads.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/config"
	"github.com/sells-group/promptwatch/internal/dashboard"
	"github.com/sells-group/promptwatch/internal/quota"
	"github.com/sells-group/promptwatch/internal/resilience"
	"github.com/sells-group/promptwatch/internal/schedule"
	"github.com/sells-group/promptwatch/internal/store"
	"github.com/sells-group/promptwatch/internal/task"
)

// Server hosts the API over the monitoring system's services.
type Server struct {
	store      store.Store
	dashboard  *dashboard.Service
	scheduler  *schedule.Scheduler
	dispatcher task.Dispatcher
	gate       quota.Gate
	cronSecret string
	cfg        config.ServerConfig

	http *http.Server
}

// New wires the API server.
func New(cfg config.ServerConfig, cronSecret string, st store.Store, dash *dashboard.Service, sched *schedule.Scheduler, dispatcher task.Dispatcher, gate quota.Gate) *Server {
	s := &Server{
		store:      st,
		dashboard:  dash,
		scheduler:  sched,
		dispatcher: dispatcher,
		gate:       gate,
		cronSecret: cronSecret,
		cfg:        cfg,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(s.cfg.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CRON-SECRET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.Post("/", s.handleCreateCompany)
			r.Get("/{companyID}", s.handleGetCompany)
			r.Delete("/{companyID}", s.handleDeleteCompany)
			r.Get("/{companyID}/competitors", s.handleListCompetitors)
			r.Post("/{companyID}/recrawl", s.handleRecrawl)
			r.Get("/{companyID}/crawl-status", s.handleCrawlStatus)
			r.Post("/{companyID}/suggestions/prompts", s.handleSuggestPrompts)
		})
		r.Route("/prompts", func(r chi.Router) {
			r.Get("/scheduled/trigger", s.handleTrigger)
			r.Post("/scheduled/trigger", s.handleTrigger)
			r.Get("/{companyID}/stats", s.handlePromptStats)
			r.Post("/{companyID}", s.handleCreatePrompt)
			r.Post("/{companyID}/activation", s.handleSetPromptsActive)
			r.Get("/{companyID}/{promptID}/runs", s.handleListRuns)
			r.Delete("/{companyID}/{promptID}", s.handleDeletePrompt)
		})
		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/{companyID}", s.handleListRecommendations)
			r.Post("/{companyID}", s.handleCreateRecommendation)
			r.Get("/{companyID}/{recommendationID}", s.handleGetRecommendation)
		})
		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/{companyID}", s.handleDashboard)
			r.Get("/{companyID}/share_of_voice/{domain}", s.handlePromptsCitingDomain)
		})
	})

	return r
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// corsOrigins splits the configured comma-separated origin list.
func corsOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

// writeError maps service errors onto API statuses: absent parents are 404,
// everything else is an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	if resilience.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	zap.L().Error("server: request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
}
