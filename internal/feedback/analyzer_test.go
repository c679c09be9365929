package feedback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/gateway"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/llm"
)

// fakeLLM returns canned responses in order.
type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []llm.Message) (*llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp := ""
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: resp}}, nil
}

func (f *fakeLLM) Ping(ctx context.Context) error { return nil }

func newTestAnalyzer(client llm.Client) *Analyzer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAnalyzer(gateway.New(client, logger), "mistral", logger)
}

func commented(codeID, comment string) Entry {
	return Entry{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CodeID:    codeID,
		Rating:    3,
		Comment:   comment,
		Prompt:    "write something",
		Code:      "pass",
	}
}

func TestAnalyze(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`{"common_themes": ["clarity"], "areas_for_improvement": ["speed"], "what_users_like": ["style"], "suggestions": ["add caching"]}`,
	}}
	a := newTestAnalyzer(client)

	summary, err := a.Analyze(context.Background(), []Entry{commented("id-1", "nice")})
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(summary.CommonThemes) != 1 || summary.CommonThemes[0] != "clarity" {
		t.Errorf("CommonThemes = %v", summary.CommonThemes)
	}
	if len(summary.Suggestions) != 1 {
		t.Errorf("Suggestions = %v", summary.Suggestions)
	}
}

func TestAnalyzeSkipsCommentlessEntries(t *testing.T) {
	a := newTestAnalyzer(&fakeLLM{})

	// Rating-only entries carry nothing to analyze.
	_, err := a.Analyze(context.Background(), []Entry{commented("id-1", "")})
	if !errors.Is(err, ErrNoEntries) {
		t.Errorf("error = %v, want ErrNoEntries", err)
	}
}

func TestAnalyzeNoEntries(t *testing.T) {
	a := newTestAnalyzer(&fakeLLM{})

	if _, err := a.Analyze(context.Background(), nil); !errors.Is(err, ErrNoEntries) {
		t.Errorf("error = %v, want ErrNoEntries", err)
	}
}

func TestAnalyzeModelFailure(t *testing.T) {
	a := newTestAnalyzer(&fakeLLM{err: errors.New("model offline")})

	_, err := a.Analyze(context.Background(), []Entry{commented("id-1", "nice")})
	if err == nil {
		t.Fatal("Analyze() succeeded, want error")
	}
}

func TestCategorize(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`["Code Quality", "Readability"]`,
		`["Not A Real Category"]`,
	}}
	a := newTestAnalyzer(client)

	entries := []Entry{
		commented("id-1", "clean code"),
		commented("id-2", "weird output"),
	}
	result := a.Categorize(context.Background(), entries)

	if len(result["Code Quality"]) != 1 || result["Code Quality"][0].CodeID != "id-1" {
		t.Errorf("Code Quality = %v", result["Code Quality"])
	}
	if len(result["Readability"]) != 1 {
		t.Errorf("Readability = %v", result["Readability"])
	}

	// Unknown labels never create buckets; the entry falls back to
	// Uncategorized instead of being dropped.
	if _, ok := result["Not A Real Category"]; ok {
		t.Error("unknown category label became a bucket")
	}
	if len(result[Uncategorized]) != 1 || result[Uncategorized][0].CodeID != "id-2" {
		t.Errorf("Uncategorized = %v", result[Uncategorized])
	}
}

func TestCategorizeModelFailure(t *testing.T) {
	a := newTestAnalyzer(&fakeLLM{err: errors.New("down")})

	result := a.Categorize(context.Background(), []Entry{commented("id-1", "hm")})
	if len(result[Uncategorized]) != 1 {
		t.Errorf("Uncategorized = %v, want the entry", result[Uncategorized])
	}
}

func TestCategorizeTimestampFormat(t *testing.T) {
	a := newTestAnalyzer(&fakeLLM{responses: []string{`["Performance"]`}})

	result := a.Categorize(context.Background(), []Entry{commented("id-1", "slow")})
	got := result["Performance"][0].Timestamp
	if got != "2025-06-01 12:00" {
		t.Errorf("Timestamp = %q, want minute precision", got)
	}
}

func TestSuggestImprovements(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`{"suggestions": [
			{"category": "Performance", "suggestion": "memoize", "reason": "called in a loop", "priority": "High"},
			{"category": "Wrong", "suggestion": "rename f", "reason": "unclear", "priority": "Whenever"},
			{"category": "Quality", "suggestion": "", "reason": "dropped"}
		]}`,
	}}
	a := newTestAnalyzer(client)

	got := a.SuggestImprovements(context.Background(), "def f(): pass", "too slow", "write f")

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (invalid record dropped)", len(got))
	}
	if got[0].Category != "Performance" || got[0].Priority != "High" {
		t.Errorf("first suggestion = %+v", got[0])
	}

	// Out-of-enum values are coerced, not rejected.
	if got[1].Category != "Quality" {
		t.Errorf("Category = %q, want coerced default", got[1].Category)
	}
	if got[1].Priority != "Medium" {
		t.Errorf("Priority = %q, want coerced default", got[1].Priority)
	}
}

func TestSuggestImprovementsPlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeLLM
	}{
		{"model failure", &fakeLLM{err: errors.New("down")}},
		{"empty suggestions", &fakeLLM{responses: []string{`{"suggestions": []}`}}},
		{"all invalid", &fakeLLM{responses: []string{`{"suggestions": [{"category": "Quality"}]}`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(tt.client)
			got := a.SuggestImprovements(context.Background(), "code", "fb", "prompt")
			if len(got) != 1 {
				t.Fatalf("len = %d, want 1 placeholder", len(got))
			}
			if got[0].Category != "Quality" || got[0].Priority != "Medium" {
				t.Errorf("placeholder = %+v", got[0])
			}
			if got[0].Suggestion == "" || got[0].Reason == "" {
				t.Error("placeholder is missing text")
			}
		})
	}
}
