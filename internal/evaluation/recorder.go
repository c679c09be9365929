package evaluation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/codegen"
)

// Sentinel errors for recorder misuse and terminal-state guards.
var (
	// ErrNotStarted is returned when a Record* call arrives before Start.
	ErrNotStarted = errors.New("evaluation not started")

	// ErrAlreadyFinalized is returned when a run is finalized twice.
	// The duplicate call writes nothing, so the log grows by exactly
	// one record per run.
	ErrAlreadyFinalized = errors.New("evaluation already finalized")
)

// Recorder tracks one generation run at a time and persists a single
// evaluation record when the run terminates. Start resets all per-run
// state; RecordSuccess and RecordFailure are mutually exclusive
// terminal calls.
type Recorder struct {
	log    *Log
	logger *slog.Logger

	mu  sync.Mutex
	run *run
}

// run is the in-memory state between Start and finalization.
type run struct {
	startedAt time.Time // wall clock, for the record timestamp
	start     time.Time // carries Go's monotonic reading for elapsed time
	chatModel string
	codeModel string
	prompt    string
	retries   int
	lastErr   string
	finalized bool
}

// NewRecorder creates a recorder that appends to the given log.
func NewRecorder(log *Log, logger *slog.Logger) *Recorder {
	return &Recorder{
		log:    log,
		logger: logger.With("component", "evaluation"),
	}
}

// Start begins tracking a new run, discarding any unfinalized previous
// one. Must be called exactly once before any Record* call.
func (r *Recorder) Start(chatModel, codeModel, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.run = &run{
		startedAt: now,
		start:     now,
		chatModel: chatModel,
		codeModel: codeModel,
		prompt:    prompt,
	}
}

// RecordRetry increments the retry counter and remembers the latest
// error text. It only updates in-memory state; nothing is persisted
// until the run terminates.
func (r *Recorder) RecordRetry(errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return ErrNotStarted
	}
	if r.run.finalized {
		return ErrAlreadyFinalized
	}
	r.run.retries++
	r.run.lastErr = errText
	return nil
}

// RecordSuccess finalizes the run as successful, computing code
// metrics from the artifact and appending one record to the log. It
// returns the elapsed run time. A persistence failure is returned for
// the caller to report as a warning; the elapsed time is still valid.
func (r *Recorder) RecordSuccess(artifact *codegen.Artifact) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return 0, ErrNotStarted
	}
	if r.run.finalized {
		return 0, ErrAlreadyFinalized
	}
	r.run.finalized = true
	elapsed := time.Since(r.run.start)

	metrics := ComputeMetrics(artifact.Code)
	rec := Record{
		Timestamp:      r.run.startedAt,
		ChatModel:      r.run.chatModel,
		CodeModel:      r.run.codeModel,
		Prompt:         r.run.prompt,
		CompletionTime: elapsed.Seconds(),
		TokensEstimate: EstimateTokens(artifact.Code),
		RetryCount:     r.run.retries,
		Success:        true,
		CodeMetrics:    &metrics,
	}

	if err := r.log.Append(rec); err != nil {
		r.logger.Warn("failed to persist evaluation", "error", err)
		return elapsed, err
	}

	r.logger.Info("evaluation recorded",
		"success", true,
		"retries", r.run.retries,
		"completion_time", elapsed.Seconds(),
	)
	return elapsed, nil
}

// RecordFailure finalizes the run as a terminal failure and appends
// one record to the log. It returns the elapsed run time; persistence
// failures are returned for the caller to report as a warning.
func (r *Recorder) RecordFailure(errText string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return 0, ErrNotStarted
	}
	if r.run.finalized {
		return 0, ErrAlreadyFinalized
	}
	r.run.finalized = true
	elapsed := time.Since(r.run.start)

	rec := Record{
		Timestamp:      r.run.startedAt,
		ChatModel:      r.run.chatModel,
		CodeModel:      r.run.codeModel,
		Prompt:         r.run.prompt,
		CompletionTime: elapsed.Seconds(),
		RetryCount:     r.run.retries,
		Success:        false,
		Error:          errText,
	}

	if err := r.log.Append(rec); err != nil {
		r.logger.Warn("failed to persist evaluation", "error", err)
		return elapsed, err
	}

	r.logger.Info("evaluation recorded",
		"success", false,
		"retries", r.run.retries,
		"completion_time", elapsed.Seconds(),
	)
	return elapsed, nil
}

// Retries returns the retry count of the current run. Zero when no run
// is active.
func (r *Recorder) Retries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return 0
	}
	return r.run.retries
}
