// Package gateway provides a uniform query surface over named local
// models. It owns a registry of per-model handles, created lazily on
// first use and reused for the life of the gateway, and it converts
// transport and decode faults into error-shaped values so callers can
// branch on data instead of catching errors.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/llm"
)

// Handle is a live binding of a model name to its client. At most one
// handle exists per distinct model name.
type Handle struct {
	model  string
	client llm.Client
}

// Model returns the model name this handle is bound to.
func (h *Handle) Model() string { return h.model }

// Complete sends a single-turn prompt to the handle's model.
func (h *Handle) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := h.client.Chat(ctx, h.model, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Gateway routes prompts to named models through a process-lifetime
// handle registry. All methods are safe for concurrent use.
type Gateway struct {
	mu      sync.Mutex
	handles map[string]*Handle

	client llm.Client
	logger *slog.Logger
}

// New creates a gateway over the given client. The handle registry
// starts empty; entries are added lazily and live until Close.
func New(client llm.Client, logger *slog.Logger) *Gateway {
	return &Gateway{
		handles: make(map[string]*Handle),
		client:  client,
		logger:  logger.With("component", "gateway"),
	}
}

// Handle returns the cached handle for a model, creating it on first use.
func (g *Gateway) Handle(model string) *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.handles[model]; ok {
		return h
	}

	g.logger.Debug("creating model handle", "model", model)
	h := &Handle{model: model, client: g.client}
	g.handles[model] = h
	return h
}

// HandleCount returns the number of live handles in the registry.
func (g *Gateway) HandleCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// Close tears down the handle registry. The gateway must not be used
// after Close.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handles = nil
}

// Complete sends a raw prompt to a model and returns its text. Unlike
// the Query* methods, transport failures are returned as errors; this
// is the path for callers (the agent pipeline) that implement their
// own failure policy.
func (g *Gateway) Complete(ctx context.Context, model, prompt string) (string, error) {
	return g.Handle(model).Complete(ctx, prompt)
}

// QueryJSON sends a prompt expecting a JSON object back. It never
// returns an error: transport failures and undecodable output both
// come back as {"error": message}, so callers branch on the map.
func (g *Gateway) QueryJSON(ctx context.Context, model, prompt string) map[string]any {
	text, err := g.Handle(model).Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("model query failed", "model", model, "error", err)
		return map[string]any{"error": err.Error()}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &obj); err != nil {
		g.logger.Warn("model returned non-JSON object", "model", model, "error", err)
		return map[string]any{"error": "model did not return a JSON object: " + err.Error()}
	}
	return obj
}

// QueryJSONArray sends a prompt expecting a JSON array back. It never
// returns an error: failures come back as a single-element array
// holding the message.
func (g *Gateway) QueryJSONArray(ctx context.Context, model, prompt string) []any {
	text, err := g.Handle(model).Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("model query failed", "model", model, "error", err)
		return []any{err.Error()}
	}

	var list []any
	if err := json.Unmarshal([]byte(extractJSON(text)), &list); err != nil {
		g.logger.Warn("model returned non-JSON array", "model", model, "error", err)
		return []any{"model did not return a JSON array: " + err.Error()}
	}
	return list
}

// extractJSON strips markdown code fences and chat-role prefixes that
// local models commonly wrap around JSON output.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "assistant:")
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	return text
}
