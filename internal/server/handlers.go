package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"memberlens/internal/metrics"
	"memberlens/internal/signal"
	"memberlens/internal/warehouse"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleAsk runs one analyst query. The analyst never fails: fatal
// conditions come back as fixed messages inside the payload, so the
// only error statuses here are for malformed requests.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "question is required", nil)
		return
	}

	respondJSON(w, http.StatusOK, s.analyst.Run(r.Context(), question))
}

func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.store.Organizations(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list organizations", err)
		return
	}
	if orgs == nil {
		orgs = []warehouse.OrgSummary{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"organizations": orgs,
		"count":         len(orgs),
	})
}

func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	orgCode := chi.URLParam(r, "orgCode")

	row, err := s.store.Membership(r.Context(), orgCode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "membership lookup failed", err)
		return
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "organization not found", nil)
		return
	}

	changes, err := s.store.ProviderChanges(r.Context(), orgCode)
	if err != nil {
		s.log.Warn("provider change lookup failed",
			zap.String("org_cd", orgCode),
			zap.Error(err))
		changes = nil
	}
	if changes == nil {
		changes = []metrics.ProviderChange{}
	}

	m := metrics.FromRow(orgCode, row)
	respondJSON(w, http.StatusOK, map[string]any{
		"org_cd":           orgCode,
		"membership":       m,
		"signals":          signal.Compute(m, changes, s.thresholds),
		"provider_changes": changes,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
