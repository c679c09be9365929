package codegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

const validOutput = `{"code": "print('ok')", "description": "prints ok", "filename": "ok.py"}`

// scriptedAgent replays a fixed sequence of responses and records the
// prompts it was asked.
type scriptedAgent struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (a *scriptedAgent) Query(ctx context.Context, prompt string) (string, error) {
	i := a.calls
	a.calls++
	a.prompts = append(a.prompts, prompt)
	if i >= len(a.responses) {
		return "", fmt.Errorf("unexpected call %d", i)
	}
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	return a.responses[i], err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFirstAttemptSuccess(t *testing.T) {
	agent := &scriptedAgent{responses: []string{validOutput}}
	ctrl := NewController(agent, testLogger())

	outcome := ctrl.Run(context.Background(), Request{Prompt: "write ok"})

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, want success", outcome.Kind)
	}
	if outcome.Artifact == nil || outcome.Artifact.Filename != "ok.py" {
		t.Errorf("Artifact = %+v", outcome.Artifact)
	}
	if outcome.Retries() != 0 {
		t.Errorf("Retries() = %d, want 0", outcome.Retries())
	}
	if agent.calls != 1 {
		t.Errorf("agent called %d times, want 1", agent.calls)
	}
	if agent.prompts[0] != "write ok" {
		t.Errorf("first prompt = %q, want the original", agent.prompts[0])
	}
}

func TestRunRetryAfterParseFailure(t *testing.T) {
	agent := &scriptedAgent{responses: []string{"not json", validOutput}}
	ctrl := NewController(agent, testLogger())

	outcome := ctrl.Run(context.Background(), Request{Prompt: "write ok"})

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, want success", outcome.Kind)
	}
	if outcome.Retries() != 1 {
		t.Errorf("Retries() = %d, want 1", outcome.Retries())
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("len(Attempts) = %d, want 2", len(outcome.Attempts))
	}
	if outcome.Attempts[0].ParseOK {
		t.Error("first attempt marked ParseOK")
	}

	// The retry prompt carries the verbatim original prompt plus the
	// prior failure description.
	retry := agent.prompts[1]
	if !strings.Contains(retry, "write ok") {
		t.Errorf("retry prompt missing original prompt: %q", retry)
	}
	if !strings.Contains(retry, string(ReasonMalformed)) {
		t.Errorf("retry prompt missing failure reason: %q", retry)
	}
}

func TestRunRetryAfterAgentError(t *testing.T) {
	agent := &scriptedAgent{
		responses: []string{"", validOutput},
		errs:      []error{errors.New("ollama timed out")},
	}
	ctrl := NewController(agent, testLogger())

	outcome := ctrl.Run(context.Background(), Request{Prompt: "write ok"})

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, want success", outcome.Kind)
	}
	if outcome.Retries() != 1 {
		t.Errorf("Retries() = %d, want 1", outcome.Retries())
	}
	if !strings.Contains(agent.prompts[1], "ollama timed out") {
		t.Errorf("retry prompt missing prior error: %q", agent.prompts[1])
	}
}

func TestRunFallbackWhenParsingNeverSucceeds(t *testing.T) {
	agent := &scriptedAgent{responses: []string{"junk one", "junk two", "junk three"}}
	ctrl := NewController(agent, testLogger())

	outcome := ctrl.Run(context.Background(), Request{Prompt: "write ok"})

	if outcome.Kind != OutcomeFallback {
		t.Fatalf("Kind = %v, want fallback", outcome.Kind)
	}
	if outcome.Artifact != nil {
		t.Error("fallback outcome carries an artifact")
	}
	if outcome.RawOutput != "junk three" {
		t.Errorf("RawOutput = %q, want the final attempt's text", outcome.RawOutput)
	}
	if agent.calls != DefaultMaxAttempts {
		t.Errorf("agent called %d times, want %d", agent.calls, DefaultMaxAttempts)
	}
	if outcome.Retries() != DefaultMaxAttempts-1 {
		t.Errorf("Retries() = %d, want %d", outcome.Retries(), DefaultMaxAttempts-1)
	}
}

func TestRunFailureWhenAgentAlwaysErrors(t *testing.T) {
	boom := errors.New("connection refused")
	agent := &scriptedAgent{
		responses: []string{"", "", ""},
		errs:      []error{boom, boom, boom},
	}
	ctrl := NewController(agent, testLogger())

	outcome := ctrl.Run(context.Background(), Request{Prompt: "write ok"})

	if outcome.Kind != OutcomeFailure {
		t.Fatalf("Kind = %v, want failure", outcome.Kind)
	}
	if outcome.Err != "connection refused" {
		t.Errorf("Err = %q", outcome.Err)
	}
	if len(outcome.Attempts) != DefaultMaxAttempts {
		t.Errorf("len(Attempts) = %d, want %d", len(outcome.Attempts), DefaultMaxAttempts)
	}
}

func TestRunHonorsMaxAttempts(t *testing.T) {
	agent := &scriptedAgent{responses: []string{"junk", "junk", "junk", "junk", "junk"}}
	ctrl := NewController(agent, testLogger(), WithMaxAttempts(5))

	outcome := ctrl.Run(context.Background(), Request{Prompt: "p"})

	if agent.calls != 5 {
		t.Errorf("agent called %d times, want 5", agent.calls)
	}
	if outcome.Kind != OutcomeFallback {
		t.Errorf("Kind = %v, want fallback", outcome.Kind)
	}
}

func TestRunSingleAttemptNoRetry(t *testing.T) {
	agent := &scriptedAgent{responses: []string{"junk"}}
	ctrl := NewController(agent, testLogger(), WithMaxAttempts(1))

	outcome := ctrl.Run(context.Background(), Request{Prompt: "p"})

	if agent.calls != 1 {
		t.Errorf("agent called %d times, want 1", agent.calls)
	}
	if outcome.Kind != OutcomeFallback {
		t.Errorf("Kind = %v, want fallback", outcome.Kind)
	}
}

func TestRunProgressPhases(t *testing.T) {
	agent := &scriptedAgent{responses: []string{"junk", validOutput}}
	var phases []string
	ctrl := NewController(agent, testLogger(), WithProgress(func(phase string, attempt int, detail string) {
		phases = append(phases, phase)
	}))

	ctrl.Run(context.Background(), Request{Prompt: "p"})

	want := []string{PhaseQuerying, PhaseParsing, PhaseRetrying, PhaseQuerying, PhaseParsing}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase[%d] = %q, want %q", i, phases[i], want[i])
		}
	}
}

func TestRetryPromptTruncatesLongErrors(t *testing.T) {
	longErr := strings.Repeat("x", 1000)
	agent := &scriptedAgent{
		responses: []string{"", validOutput},
		errs:      []error{errors.New(longErr)},
	}
	ctrl := NewController(agent, testLogger())

	ctrl.Run(context.Background(), Request{Prompt: "p"})

	retry := agent.prompts[1]
	if strings.Contains(retry, longErr) {
		t.Error("retry prompt embeds the untruncated error")
	}
	if !strings.Contains(retry, strings.Repeat("x", errContextBudget)+"...") {
		t.Error("retry prompt missing the truncated excerpt")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"toolong", 4, "tool..."},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
