package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/gateway"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/prompts"
)

// Retriever serves semantically relevant reference passages for a
// query. The pipeline treats it as an opaque document-search tool.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// defaultCallTimeout bounds each individual model call when the
// pipeline is constructed without one.
const defaultCallTimeout = 5 * time.Minute

// retrievedPassages is how many reference passages are handed to the
// reasoning model per request.
const retrievedPassages = 4

// Pipeline is the two-model agent behind a generation request: the
// chat model reasons over the prompt and retrieved documents, then the
// code model reshapes that answer into the artifact JSON. It satisfies
// the controller's Agent interface.
type Pipeline struct {
	gw        *gateway.Gateway
	retriever Retriever
	chatModel string
	codeModel string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewPipeline creates a generation pipeline. retriever may be nil, in
// which case the chat model answers from the prompt alone. A zero
// timeout uses the default.
func NewPipeline(gw *gateway.Gateway, retriever Retriever, chatModel, codeModel string, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Pipeline{
		gw:        gw,
		retriever: retriever,
		chatModel: chatModel,
		codeModel: codeModel,
		timeout:   timeout,
		logger:    logger.With("component", "pipeline"),
	}
}

// Query runs one agent pass: retrieve, reason, reformat. The returned
// text is the code model's structured-output attempt; parsing it is
// the controller's job.
func (p *Pipeline) Query(ctx context.Context, prompt string) (string, error) {
	var passages []string
	if p.retriever != nil {
		found, err := p.retriever.Search(ctx, prompt, retrievedPassages)
		if err != nil {
			// Retrieval is an enrichment, not a prerequisite.
			p.logger.Warn("document search failed", "error", err)
		} else {
			passages = found
		}
	}

	chatCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	chatPrompt := prompts.AgentContext() + "\n\n" + prompts.AgentQuery(prompt, passages)
	answer, err := p.gw.Complete(chatCtx, p.chatModel, chatPrompt)
	if err != nil {
		return "", fmt.Errorf("agent query (%s): %w", p.chatModel, err)
	}

	fmtCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	formatted, err := p.gw.Complete(fmtCtx, p.codeModel, prompts.CodeParser(answer))
	if err != nil {
		return "", fmt.Errorf("format response (%s): %w", p.codeModel, err)
	}

	p.logger.Debug("pipeline pass complete",
		"passages", len(passages),
		"answer_bytes", len(answer),
		"formatted_bytes", len(formatted),
	)
	return formatted, nil
}
