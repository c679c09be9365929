package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/gateway"
	"github.com/mfatir-y/mutimodal-ai-agent/internal/prompts"
)

// Uncategorized is the bucket for entries whose categorization call
// failed or returned nothing usable.
const Uncategorized = "Uncategorized"

// Categories the model may assign to a feedback entry.
var Categories = []string{
	"Code Quality",
	"Performance",
	"Readability",
	"Documentation",
	"Functionality",
	"Best Practices",
}

// Suggestion field enums and their safe defaults.
var (
	suggestionCategories = map[string]bool{
		"Quality": true, "Readability": true, "Performance": true, "BestPractices": true,
	}
	suggestionPriorities = map[string]bool{
		"High": true, "Medium": true, "Low": true,
	}
)

const (
	defaultCategory = "Quality"
	defaultPriority = "Medium"
)

// ErrNoEntries is returned when analysis is requested over zero
// feedback entries.
var ErrNoEntries = errors.New("no feedback entries to analyze")

// ThemeSummary is the analyzer's aggregate view of stored feedback.
type ThemeSummary struct {
	CommonThemes        []string `json:"common_themes"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	WhatUsersLike       []string `json:"what_users_like"`
	Suggestions         []string `json:"suggestions"`
}

// CategorizedEntry is the slim projection grouped under a category.
type CategorizedEntry struct {
	Comment   string `json:"comment"`
	Rating    int    `json:"rating"`
	CodeID    string `json:"code_id"`
	Timestamp string `json:"timestamp"`
}

// Suggestion is one validated improvement suggestion.
type Suggestion struct {
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
	Priority   string `json:"priority"`
}

// Analyzer produces LLM-assisted insights over feedback entries via
// the model gateway.
type Analyzer struct {
	gw     *gateway.Gateway
	model  string
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer that queries the given model.
func NewAnalyzer(gw *gateway.Gateway, model string, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		gw:     gw,
		model:  model,
		logger: logger.With("component", "feedback-analyzer"),
	}
}

// Analyze summarizes commented entries into themes. Entries without a
// comment carry no analyzable signal and are skipped.
func (a *Analyzer) Analyze(ctx context.Context, entries []Entry) (*ThemeSummary, error) {
	var lines []string
	i := 1
	for _, e := range entries {
		if e.Comment == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf(
			"Prompt %d: %s, Response Generated: %s, Code Generated: %s, Rating: %d, Comment: %s, Models Used: %s, %s",
			i, e.Prompt, e.Description, e.Code, e.Rating, e.Comment, e.CodeModel, e.ChatModel,
		))
		i++
	}
	if len(lines) == 0 {
		return nil, ErrNoEntries
	}

	obj := a.gw.QueryJSON(ctx, a.model, prompts.FeedbackAnalysis(lines))
	if msg, ok := obj["error"].(string); ok {
		return nil, fmt.Errorf("feedback analysis failed: %s", msg)
	}

	// Round-trip through JSON to map the loose object onto the typed
	// summary.
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	var summary ThemeSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &summary, nil
}

// Categorize maps each commented entry to one or more model-assigned
// category labels. Entries whose categorization call fails, or whose
// result contains no known category, land under Uncategorized rather
// than being dropped.
func (a *Analyzer) Categorize(ctx context.Context, entries []Entry) map[string][]CategorizedEntry {
	result := make(map[string][]CategorizedEntry)

	for _, e := range entries {
		if e.Comment == "" {
			continue
		}

		projected := CategorizedEntry{
			Comment:   e.Comment,
			Rating:    e.Rating,
			CodeID:    e.CodeID,
			Timestamp: e.Timestamp.Format("2006-01-02 15:04"),
		}

		list := a.gw.QueryJSONArray(ctx, a.model, prompts.Categorization(e.Comment, e.Prompt, e.Code))

		assigned := false
		for _, item := range list {
			label, ok := item.(string)
			if !ok || !knownCategory(label) {
				continue
			}
			result[label] = append(result[label], projected)
			assigned = true
		}
		if !assigned {
			a.logger.Debug("feedback entry not categorized", "code_id", e.CodeID)
			result[Uncategorized] = append(result[Uncategorized], projected)
		}
	}

	return result
}

// SuggestImprovements asks the model for categorized improvement
// suggestions. Every returned suggestion is validated: records missing
// suggestion or reason text are dropped, out-of-enum category/priority
// values are coerced to defaults, and a placeholder is substituted
// when nothing valid remains so callers never receive an empty list.
func (a *Analyzer) SuggestImprovements(ctx context.Context, code, fb, userPrompt string) []Suggestion {
	obj := a.gw.QueryJSON(ctx, a.model, prompts.Improvement(code, userPrompt, fb))

	var out []Suggestion
	if msg, ok := obj["error"].(string); ok {
		a.logger.Warn("improvement suggestions failed", "error", msg)
	} else if raw, ok := obj["suggestions"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			s := Suggestion{
				Category:   stringField(m, "category"),
				Suggestion: stringField(m, "suggestion"),
				Reason:     stringField(m, "reason"),
				Priority:   stringField(m, "priority"),
			}
			if s.Suggestion == "" || s.Reason == "" {
				continue
			}
			if !suggestionCategories[s.Category] {
				s.Category = defaultCategory
			}
			if !suggestionPriorities[s.Priority] {
				s.Priority = defaultPriority
			}
			out = append(out, s)
		}
	}

	if len(out) == 0 {
		out = []Suggestion{{
			Category:   defaultCategory,
			Suggestion: "No usable suggestions were produced for this code.",
			Reason:     "The model output could not be validated into suggestions.",
			Priority:   defaultPriority,
		}}
	}
	return out
}

func knownCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
