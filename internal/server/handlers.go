package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/task"
)

const defaultPageSize = 50

// pagedResponse is the envelope for paginated list endpoints.
type pagedResponse struct {
	Total int `json:"total"`
	Items any `json:"items"`
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func pagination(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("skip"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	return offset, limit
}

// handleTrigger runs one scheduling cycle. It accepts the shared secret as
// the X-CRON-SECRET header, a bearer token, or a token query parameter; when
// no secret is configured every caller is permitted.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.cronSecret != "" && !hasValidSecret(r, s.cronSecret) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
		return
	}
	if _, err := s.scheduler.RunOnce(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func hasValidSecret(r *http.Request, secret string) bool {
	if r.Header.Get("X-CRON-SECRET") == secret {
		return true
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") && auth[7:] == secret {
		return true
	}
	return r.URL.Query().Get("token") == secret
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var in model.Company
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	if in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "name is required"})
		return
	}

	// The companies counter is account-wide; bucket zero holds it.
	allowed, err := s.gate.Check(r.Context(), 0, model.QuotaCompanies)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "company limit reached"})
		return
	}

	company, err := s.store.CreateCompany(r.Context(), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.gate.Increment(r.Context(), 0, model.QuotaCompanies); err != nil {
		zap.L().Error("server: company quota increment", zap.Error(err))
	}

	if company.Website != "" {
		if err := s.dispatcher.Dispatch(r.Context(), task.JobCompanyCrawl, task.CrawlArgs{CompanyID: company.ID}); err != nil {
			zap.L().Error("server: dispatch initial crawl", zap.Int64("company_id", company.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	if err := s.store.DeleteCompany(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleListCompetitors(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	competitors, err := s.store.ListCompetitors(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, competitors)
}

// handleRecrawl enqueues a fresh crawl. The pending row is written first so
// crawl-status reads show progress even before a worker picks the job up; the
// pipeline reuses it instead of inserting a second row.
func (s *Server) handleRecrawl(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}

	_, err = s.store.CreateCrawl(r.Context(), &model.CompanyCrawl{
		CompanyID:   id,
		URL:         company.Website,
		CrawlStatus: model.CrawlStatusPending,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), task.JobCompanyCrawl, task.CrawlArgs{CompanyID: id}); err != nil {
		zap.L().Error("server: dispatch recrawl", zap.Int64("company_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	crawl, err := s.store.GetLatestCrawl(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	status := model.CrawlStatusPending
	if crawl != nil {
		status = crawl.CrawlStatus
	}
	writeJSON(w, http.StatusOK, map[string]model.CrawlStatus{"status": status})
}

type promptIn struct {
	Prompt        string `json:"prompt"`
	PromptType    string `json:"prompt_type"`
	TargetCountry string `json:"target_country"`
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	var in promptIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	if in.TargetCountry == "" {
		in.TargetCountry = "US"
	}

	company, err := s.store.GetCompany(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}

	allowed, err := s.gate.Check(r.Context(), companyID, model.QuotaPrompts)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "prompt limit reached"})
		return
	}

	prompt, err := s.store.CreatePrompt(r.Context(), &model.MonitoredPrompt{
		CompanyID:     companyID,
		Prompt:        in.Prompt,
		PromptType:    model.PromptType(in.PromptType),
		TargetCountry: in.TargetCountry,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.gate.Increment(r.Context(), companyID, model.QuotaPrompts); err != nil {
		zap.L().Error("server: prompt quota increment", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (s *Server) handlePromptStats(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	offset, limit := pagination(r)
	total, items, err := s.dashboard.PromptStats(r.Context(), companyID, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Total: total, Items: items})
}

type activationIn struct {
	IDs    []int64 `json:"ids"`
	Active bool    `json:"active"`
}

func (s *Server) handleSetPromptsActive(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	var in activationIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	company, err := s.store.GetCompany(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if company == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	if err := s.store.SetPromptsActive(r.Context(), companyID, in.IDs, in.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	promptID, ok := pathID(r, "promptID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid prompt id"})
		return
	}
	prompt, err := s.promptOfCompany(r, companyID, promptID)
	if err != nil {
		writeError(w, err)
		return
	}
	if prompt == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}

	offset, limit := pagination(r)
	total, items, err := s.store.ListRuns(r.Context(), promptID, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Total: total, Items: items})
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	promptID, ok := pathID(r, "promptID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid prompt id"})
		return
	}
	prompt, err := s.promptOfCompany(r, companyID, promptID)
	if err != nil {
		writeError(w, err)
		return
	}
	if prompt == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	if err := s.store.DeletePrompt(r.Context(), promptID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// promptOfCompany loads a prompt and verifies it belongs to the company.
func (s *Server) promptOfCompany(r *http.Request, companyID, promptID int64) (*model.MonitoredPrompt, error) {
	prompt, err := s.store.GetPrompt(r.Context(), promptID)
	if err != nil {
		return nil, err
	}
	if prompt == nil || prompt.CompanyID != companyID {
		return nil, nil
	}
	return prompt, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	stats, err := s.dashboard.Stats(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePromptsCitingDomain(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	domain := chi.URLParam(r, "domain")
	if domain == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "domain is required"})
		return
	}
	offset, limit := pagination(r)
	total, items, err := s.dashboard.PromptsCitingDomain(r.Context(), companyID, domain, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Total: total, Items: items})
}
