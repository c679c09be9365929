package codegen

import (
	"context"
	"log/slog"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/prompts"
)

// DefaultMaxAttempts is the total attempt budget per request: one
// initial try plus two retries.
const DefaultMaxAttempts = 3

// errContextBudget bounds how much of a prior error is embedded in a
// retry prompt. Fixed so retry prompts are reproducible in tests.
const errContextBudget = 300

// Agent is the reasoning collaborator the controller queries. It may
// fail; the controller owns the retry policy around it.
type Agent interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// Request describes one generation run. Immutable for the duration of
// the run.
type Request struct {
	Prompt    string
	ChatModel string
	CodeModel string
}

// OutcomeKind tags the terminal state of a controller run.
type OutcomeKind int

const (
	// OutcomeSuccess carries a fully parsed artifact.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeFallback is a degraded success: the agent produced output
	// on the final attempt but it never parsed. RawOutput carries the
	// best-effort text.
	OutcomeFallback

	// OutcomeFailure means the agent call itself failed on the final
	// attempt. Err carries the last error.
	OutcomeFailure
)

// String returns the outcome kind as a short label.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFallback:
		return "fallback"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Attempt records what happened in one retry iteration. Attempts exist
// only within the run's Outcome; they are never persisted individually.
type Attempt struct {
	Index     int
	RawOutput string
	Artifact  *Artifact
	ParseOK   bool
	Err       string
}

// Outcome is the terminal result of a controller run.
type Outcome struct {
	Kind      OutcomeKind
	Artifact  *Artifact
	RawOutput string
	Err       string
	Attempts  []Attempt
}

// Retries returns the number of retries performed (attempts beyond the
// first).
func (o *Outcome) Retries() int {
	if len(o.Attempts) == 0 {
		return 0
	}
	return len(o.Attempts) - 1
}

// Progress receives phase notifications during a run. attempt is
// zero-based. Used by the API layer to stream per-attempt status; nil
// means no reporting.
type Progress func(phase string, attempt int, detail string)

// Phases reported to the Progress callback.
const (
	PhaseQuerying = "querying"
	PhaseParsing  = "parsing"
	PhaseRetrying = "retrying"
)

// Controller drives a generation request through the bounded
// query/parse/retry state machine. It has no side effects beyond the
// returned Outcome: file writes and evaluation records belong to the
// caller.
type Controller struct {
	agent       Agent
	maxAttempts int
	logger      *slog.Logger
	progress    Progress
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAttempts overrides the total attempt budget. Values below 1
// are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithProgress installs a phase notification callback.
func WithProgress(p Progress) Option {
	return func(c *Controller) { c.progress = p }
}

// NewController creates a retry controller around an agent.
func NewController(agent Agent, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		agent:       agent,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger.With("component", "controller"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MaxAttempts returns the configured attempt budget.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// Run executes one generation request to a terminal outcome. The
// attempt log always holds one entry per attempt made, so callers can
// replay retries into the evaluation recorder.
func (c *Controller) Run(ctx context.Context, req Request) Outcome {
	prompt := req.Prompt
	attempts := make([]Attempt, 0, c.maxAttempts)

	for i := 0; i < c.maxAttempts; i++ {
		final := i == c.maxAttempts-1

		c.notify(PhaseQuerying, i, "")
		raw, err := c.agent.Query(ctx, prompt)
		if err != nil {
			c.logger.Warn("agent query failed",
				"attempt", i,
				"error", err,
			)
			attempts = append(attempts, Attempt{Index: i, Err: err.Error()})
			if final {
				return Outcome{
					Kind:     OutcomeFailure,
					Err:      err.Error(),
					Attempts: attempts,
				}
			}
			prompt = c.retryPrompt(req.Prompt, err.Error())
			c.notify(PhaseRetrying, i+1, err.Error())
			continue
		}

		c.notify(PhaseParsing, i, "")
		artifact, fail := Parse(raw)
		if fail == nil {
			attempts = append(attempts, Attempt{
				Index:     i,
				RawOutput: raw,
				Artifact:  artifact,
				ParseOK:   true,
			})
			c.logger.Info("generation succeeded",
				"attempts", i+1,
				"filename", artifact.Filename,
			)
			return Outcome{
				Kind:      OutcomeSuccess,
				Artifact:  artifact,
				RawOutput: raw,
				Attempts:  attempts,
			}
		}

		c.logger.Warn("parse failed",
			"attempt", i,
			"reason", fail.Reason,
		)
		attempts = append(attempts, Attempt{
			Index:     i,
			RawOutput: raw,
			Err:       fail.String(),
		})
		if final {
			// The agent answered every time; surface the raw text as a
			// degraded success rather than failing the whole request.
			return Outcome{
				Kind:      OutcomeFallback,
				RawOutput: raw,
				Err:       fail.String(),
				Attempts:  attempts,
			}
		}
		prompt = c.retryPrompt(req.Prompt, fail.String())
		c.notify(PhaseRetrying, i+1, fail.String())
	}

	// Unreachable: the loop always returns on its final iteration.
	return Outcome{Kind: OutcomeFailure, Err: "no attempts made", Attempts: attempts}
}

// retryPrompt embeds the verbatim original prompt plus a truncated
// excerpt of the previous error.
func (c *Controller) retryPrompt(originalPrompt, errText string) string {
	return prompts.Retry(originalPrompt, Truncate(errText, errContextBudget))
}

func (c *Controller) notify(phase string, attempt int, detail string) {
	if c.progress != nil {
		c.progress(phase, attempt, detail)
	}
}

// Truncate bounds s to max bytes, marking elision. Exported so the
// evaluation and API layers truncate error text the same way.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
