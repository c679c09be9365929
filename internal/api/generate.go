package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/codegen"
)

// generateRequest is the body of POST /api/generate.
type generateRequest struct {
	Prompt    string `json:"prompt"`
	ChatModel string `json:"chat_model,omitempty"`
	CodeModel string `json:"code_model,omitempty"`
}

// generateResponse is the terminal result of a generation run.
type generateResponse struct {
	Status         string            `json:"status"` // success, fallback, failure
	CodeID         string            `json:"code_id,omitempty"`
	Artifact       *codegen.Artifact `json:"artifact,omitempty"`
	RawOutput      string            `json:"raw_output,omitempty"`
	Error          string            `json:"error,omitempty"`
	RetryCount     int               `json:"retry_count"`
	CompletionTime float64           `json:"completion_time"`
	OutputPath     string            `json:"output_path,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// resolve fills model defaults and validates against the configured
// allowlists.
func (s *Server) resolve(req *generateRequest) error {
	if req.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if req.ChatModel == "" {
		req.ChatModel = s.cfg.Models.DefaultChat
	}
	if req.CodeModel == "" {
		req.CodeModel = s.cfg.Models.DefaultCode
	}
	if !s.cfg.ChatModelAllowed(req.ChatModel) {
		return fmt.Errorf("unknown chat model %q", req.ChatModel)
	}
	if !s.cfg.CodeModelAllowed(req.CodeModel) {
		return fmt.Errorf("unknown code model %q", req.CodeModel)
	}
	return nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.resolve(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.runGeneration(r.Context(), req, nil)
	s.writeJSON(w, http.StatusOK, resp)
}

// runGeneration drives one request through the retry controller and
// performs the side effects the controller itself stays clear of:
// evaluation recording, artifact persistence, and file output. Runs are
// serialized; concurrent callers queue on genMu.
func (s *Server) runGeneration(ctx context.Context, req generateRequest, progress codegen.Progress) generateResponse {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	var timeout time.Duration
	if s.cfg.Generation.TimeoutSec > 0 {
		timeout = time.Duration(s.cfg.Generation.TimeoutSec) * time.Second
	}

	agent := codegen.NewPipeline(s.gw, s.retriever(), req.ChatModel, req.CodeModel, timeout, s.logger)
	opts := []codegen.Option{codegen.WithMaxAttempts(s.cfg.Generation.MaxAttempts)}
	if progress != nil {
		opts = append(opts, codegen.WithProgress(progress))
	}
	ctrl := codegen.NewController(agent, s.logger, opts...)

	s.recorder.Start(req.ChatModel, req.CodeModel, req.Prompt)
	outcome := ctrl.Run(ctx, codegen.Request{
		Prompt:    req.Prompt,
		ChatModel: req.ChatModel,
		CodeModel: req.CodeModel,
	})

	// Every attempt after the first was preceded by a failed one.
	for _, att := range outcome.Attempts {
		if att.Index == len(outcome.Attempts)-1 {
			break
		}
		if err := s.recorder.RecordRetry(att.Err); err != nil {
			s.logger.Warn("failed to record retry", "error", err)
		}
	}

	resp := generateResponse{
		Status:     outcome.Kind.String(),
		RetryCount: outcome.Retries(),
	}

	switch outcome.Kind {
	case codegen.OutcomeSuccess:
		elapsed, err := s.recorder.RecordSuccess(outcome.Artifact)
		if err != nil {
			resp.Warnings = append(resp.Warnings, "evaluation not persisted: "+err.Error())
		}
		resp.CompletionTime = elapsed.Seconds()
		resp.Artifact = outcome.Artifact

		if path, err := s.writer.Write(outcome.Artifact); err != nil {
			resp.Warnings = append(resp.Warnings, "output file not written: "+err.Error())
		} else {
			resp.OutputPath = path
		}

		entry, err := s.artifacts.Add(ctx, codegen.Request{
			Prompt:    req.Prompt,
			ChatModel: req.ChatModel,
			CodeModel: req.CodeModel,
		}, outcome.Artifact)
		if err != nil {
			resp.Warnings = append(resp.Warnings, "history not persisted: "+err.Error())
		} else {
			resp.CodeID = entry.CodeID
		}

	case codegen.OutcomeFallback:
		// Degraded success: show the raw text, but the run never produced
		// a parseable artifact, so the evaluation log marks it failed.
		elapsed, err := s.recorder.RecordFailure(outcome.Err)
		if err != nil {
			resp.Warnings = append(resp.Warnings, "evaluation not persisted: "+err.Error())
		}
		resp.CompletionTime = elapsed.Seconds()
		resp.RawOutput = outcome.RawOutput
		resp.Error = outcome.Err

	case codegen.OutcomeFailure:
		elapsed, err := s.recorder.RecordFailure(outcome.Err)
		if err != nil {
			resp.Warnings = append(resp.Warnings, "evaluation not persisted: "+err.Error())
		}
		resp.CompletionTime = elapsed.Seconds()
		resp.Error = outcome.Err
	}

	return resp
}

// retriever returns the search index, or nil when retrieval is not
// configured. A typed nil would defeat the pipeline's nil check.
func (s *Server) retriever() codegen.Retriever {
	if s.index == nil {
		return nil
	}
	return s.index
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Local tool, same-origin policy not enforced.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressEvent is streamed over the websocket while a run is in
// flight, followed by a single result event.
type progressEvent struct {
	Type    string `json:"type"` // progress, result, error
	Phase   string `json:"phase,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Detail  string `json:"detail,omitempty"`

	Result *generateResponse `json:"result,omitempty"`
}

// handleGenerateWS runs a generation request over a websocket,
// streaming per-attempt phase events before the final result. The
// client sends one generateRequest frame and reads events until a
// result or error frame arrives.
func (s *Server) handleGenerateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req generateRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.wsError(conn, "invalid request frame: "+err.Error())
		return
	}
	if err := s.resolve(&req); err != nil {
		s.wsError(conn, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Progress callbacks arrive from the run goroutine; gorilla permits
	// one concurrent writer, and nothing else writes until the run
	// returns.
	progress := func(phase string, attempt int, detail string) {
		ev := progressEvent{Type: "progress", Phase: phase, Attempt: attempt, Detail: detail}
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			cancel()
		}
	}

	resp := s.runGeneration(ctx, req, progress)
	if err := conn.WriteJSON(progressEvent{Type: "result", Result: &resp}); err != nil {
		s.logger.Debug("websocket result write failed", "error", err)
	}
}

func (s *Server) wsError(conn *websocket.Conn, msg string) {
	if err := conn.WriteJSON(progressEvent{Type: "error", Detail: msg}); err != nil {
		s.logger.Debug("websocket error write failed", "error", err)
	}
}

// handleHistory returns stored artifacts, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	entries, err := s.artifacts.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read history: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}
