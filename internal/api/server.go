// Package api implements the JSON HTTP API that fronts the generation
// core: generation requests (plain and websocket-streamed), artifact
// history, evaluation telemetry, and feedback collection/analysis.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/buildinfo"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/config"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/evaluation"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/feedback"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/gateway"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/history"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/llm"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/output"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/retrieval"
)

// Server is the HTTP API server.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	gw        *gateway.Gateway
	ollama    *llm.OllamaClient
	index     *retrieval.Index
	evalLog   *evaluation.Log
	recorder  *evaluation.Recorder
	feedback  *feedback.Store
	analyzer  *feedback.Analyzer
	artifacts *history.Store
	writer    *output.Writer

	// genMu serializes generation: one controller run in flight per
	// process.
	genMu sync.Mutex

	server *http.Server
}

// Deps bundles the collaborators the server fronts.
type Deps struct {
	Gateway   *gateway.Gateway
	Ollama    *llm.OllamaClient
	Index     *retrieval.Index
	EvalLog   *evaluation.Log
	Recorder  *evaluation.Recorder
	Feedback  *feedback.Store
	Analyzer  *feedback.Analyzer
	Artifacts *history.Store
	Writer    *output.Writer
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger.With("component", "api"),
		gw:        deps.Gateway,
		ollama:    deps.Ollama,
		index:     deps.Index,
		evalLog:   deps.EvalLog,
		recorder:  deps.Recorder,
		feedback:  deps.Feedback,
		analyzer:  deps.Analyzer,
		artifacts: deps.Artifacts,
		writer:    deps.Writer,
	}
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Generation
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/generate/ws", s.handleGenerateWS)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/models", s.handleModels)

	// Feedback
	mux.HandleFunc("POST /api/feedback", s.handleFeedbackSubmit)
	mux.HandleFunc("GET /api/feedback", s.handleFeedbackList)
	mux.HandleFunc("GET /api/feedback/insights", s.handleFeedbackInsights)
	mux.HandleFunc("GET /api/feedback/categories", s.handleFeedbackCategories)
	mux.HandleFunc("POST /api/feedback/suggestions", s.handleFeedbackSuggestions)

	// Evaluation telemetry
	mux.HandleFunc("GET /api/evaluations", s.handleEvaluations)
	mux.HandleFunc("GET /api/evaluations/summary", s.handleEvaluationSummary)

	// Health
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Listen.Address, s.cfg.Listen.Port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // generation runs are slow on local models
	}

	addr := s.cfg.Listen.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.cfg.Listen.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withLogging wraps a handler with per-request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// writeJSON encodes v as JSON to w. Encode errors typically mean the
// client disconnected mid-response, which is not actionable.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

// writeError sends a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.ollama.Ping(ctx); err != nil {
		status = "degraded: " + err.Error()
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"uptime": buildinfo.Uptime().String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildinfo.Info())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"chat":         s.cfg.Models.Chat,
		"code":         s.cfg.Models.Code,
		"default_chat": s.cfg.Models.DefaultChat,
		"default_code": s.cfg.Models.DefaultCode,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if available, err := s.ollama.ListModels(ctx); err == nil {
		resp["available"] = available
	}

	s.writeJSON(w, http.StatusOK, resp)
}
