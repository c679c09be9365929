package api

import (
	"net/http"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/evaluation"
)

// handleEvaluations returns raw evaluation records, newest first.
func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	records, err := s.evalLog.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read evaluations: "+err.Error())
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), len(records))
	recent := evaluation.Recent(records, limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(recent),
		"records": recent,
	})
}

// handleEvaluationSummary aggregates the evaluation log overall and per
// model.
func (s *Server) handleEvaluationSummary(w http.ResponseWriter, r *http.Request) {
	records, err := s.evalLog.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read evaluations: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"overall":       evaluation.Summarize(records),
		"by_chat_model": evaluation.ByChatModel(records),
		"by_code_model": evaluation.ByCodeModel(records),
	})
}
