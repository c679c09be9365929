package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/feedback"
)

// feedbackRequest is the body of POST /api/feedback.
type feedbackRequest struct {
	CodeID  string `json:"code_id"`
	Rating  int    `json:"rating"` // 1..5
	Comment string `json:"comment,omitempty"`
}

// handleFeedbackSubmit records feedback for a generated artifact.
// Resubmitting for the same code_id is a no-op success; the first
// submission wins.
func (s *Server) handleFeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.CodeID == "" {
		s.writeError(w, http.StatusBadRequest, "code_id is required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		s.writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	entry, err := s.artifacts.Get(r.Context(), req.CodeID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to look up artifact: "+err.Error())
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no artifact with code_id %q", req.CodeID))
		return
	}

	stored, err := s.feedback.Record(feedback.Entry{
		Timestamp:   time.Now(),
		CodeID:      req.CodeID,
		Rating:      req.Rating,
		Comment:     req.Comment,
		ChatModel:   entry.ChatModel,
		CodeModel:   entry.CodeModel,
		Code:        entry.Code,
		Prompt:      entry.Prompt,
		Description: entry.Description,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to record feedback: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"recorded":  true,
		"duplicate": !stored,
	})
}

// handleFeedbackList returns all stored feedback entries.
func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.feedback.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read feedback: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleFeedbackInsights runs theme analysis over stored feedback.
// With ?format=html the summary is rendered to HTML via markdown.
func (s *Server) handleFeedbackInsights(w http.ResponseWriter, r *http.Request) {
	entries, err := s.feedback.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read feedback: "+err.Error())
		return
	}

	summary, err := s.analyzer.Analyze(r.Context(), entries)
	if err != nil {
		if err == feedback.ErrNoEntries {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(summaryMarkdown(summary)), &buf); err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to render insights: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// summaryMarkdown renders a theme summary as a markdown document.
func summaryMarkdown(s *feedback.ThemeSummary) string {
	var b strings.Builder
	b.WriteString("# Feedback Insights\n\n")
	section := func(title string, items []string) {
		b.WriteString("## " + title + "\n\n")
		if len(items) == 0 {
			b.WriteString("_none_\n\n")
			return
		}
		for _, item := range items {
			b.WriteString("- " + item + "\n")
		}
		b.WriteString("\n")
	}
	section("Common Themes", s.CommonThemes)
	section("Areas for Improvement", s.AreasForImprovement)
	section("What Users Like", s.WhatUsersLike)
	section("Suggestions", s.Suggestions)
	return b.String()
}

// handleFeedbackCategories groups commented feedback under
// model-assigned category labels.
func (s *Server) handleFeedbackCategories(w http.ResponseWriter, r *http.Request) {
	entries, err := s.feedback.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read feedback: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.analyzer.Categorize(r.Context(), entries))
}

// suggestionsRequest is the body of POST /api/feedback/suggestions.
type suggestionsRequest struct {
	CodeID string `json:"code_id"`
}

// handleFeedbackSuggestions asks the model for improvement suggestions
// on one artifact, using the feedback recorded for it.
func (s *Server) handleFeedbackSuggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.CodeID == "" {
		s.writeError(w, http.StatusBadRequest, "code_id is required")
		return
	}

	artifact, err := s.artifacts.Get(r.Context(), req.CodeID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to look up artifact: "+err.Error())
		return
	}
	if artifact == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no artifact with code_id %q", req.CodeID))
		return
	}

	var comment string
	entries, err := s.feedback.All()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read feedback: "+err.Error())
		return
	}
	for _, e := range entries {
		if e.CodeID == req.CodeID {
			comment = e.Comment
			break
		}
	}

	suggestions := s.analyzer.SuggestImprovements(r.Context(), artifact.Code, comment, artifact.Prompt)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"code_id":     req.CodeID,
		"suggestions": suggestions,
	})
}
