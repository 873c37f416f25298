package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/promptwatch/internal/model"
	"github.com/sells-group/promptwatch/internal/task"
)

// handleSuggestPrompts enqueues the prompt-suggestion job for a company. The
// generated prompts arrive asynchronously as inactive rows.
func (s *Server) handleSuggestPrompts(w http.ResponseWriter, r *http.Request) {
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
	if err := s.dispatcher.Dispatch(r.Context(), task.JobCompanyPrompt, task.SuggestArgs{CompanyID: id}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type recommendationIn struct {
	CompetitorDomain string  `json:"competitor_domain"`
	PromptIDs        []int64 `json:"prompt_ids"`
}

func (s *Server) handleCreateRecommendation(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	var in recommendationIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.CompetitorDomain == "" {
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

	allowed, err := s.gate.Check(r.Context(), companyID, model.QuotaRecommendations)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "recommendation limit reached"})
		return
	}

	prompts, err := s.store.GetPromptTexts(r.Context(), companyID, in.PromptIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.store.CreateRecommendation(r.Context(), &model.Recommendation{
		CompanyID:        companyID,
		CompetitorDomain: in.CompetitorDomain,
		PromptsToAnalyze: prompts,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), task.JobRecommendation, task.RecommendArgs{RecommendationID: rec.ID}); err != nil {
		zap.L().Error("server: dispatch recommendation", zap.Int64("recommendation_id", rec.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
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
	offset, limit := pagination(r)
	total, items, err := s.store.ListRecommendations(r.Context(), companyID, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Total: total, Items: items})
}

func (s *Server) handleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid company id"})
		return
	}
	recID, ok := pathID(r, "recommendationID")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid recommendation id"})
		return
	}
	rec, err := s.store.GetRecommendation(r.Context(), recID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil || rec.CompanyID != companyID {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
