// Package codegen implements the generation core: the structured output
// parser and the bounded retry controller that drives a generation
// request from prompt to artifact.
package codegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Artifact is the structured record produced per successful generation.
type Artifact struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
}

// FailureReason classifies why raw model output could not become an
// artifact.
type FailureReason string

const (
	// ReasonMalformed means the output was not valid JSON at all.
	ReasonMalformed FailureReason = "malformed output"

	// ReasonPartial means the output was valid JSON but required
	// artifact fields were missing or empty.
	ReasonPartial FailureReason = "partial artifact"
)

// ParseFailure carries the offending text alongside the reason, so the
// retry path and the final fallback display have one typed source of
// truth instead of cascading rescue blocks.
type ParseFailure struct {
	Reason FailureReason
	Raw    string
	Detail string
}

// String renders the failure for logs and retry-prompt excerpts.
func (f *ParseFailure) String() string {
	if f.Detail == "" {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
}

// Parse extracts an Artifact from raw model output. Exactly one of the
// return values is non-nil. Retry policy lives in the Controller, never
// here.
func Parse(raw string) (*Artifact, *ParseFailure) {
	cleaned := CleanModelText(raw)

	var a Artifact
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, &ParseFailure{
			Reason: ReasonMalformed,
			Raw:    raw,
			Detail: err.Error(),
		}
	}

	var missing []string
	if strings.TrimSpace(a.Code) == "" {
		missing = append(missing, "code")
	}
	if strings.TrimSpace(a.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(a.Filename) == "" {
		missing = append(missing, "filename")
	}
	if len(missing) > 0 {
		return nil, &ParseFailure{
			Reason: ReasonPartial,
			Raw:    raw,
			Detail: "missing fields: " + strings.Join(missing, ", "),
		}
	}

	return &a, nil
}

// CleanModelText strips the wrapper artifacts local models put around
// JSON: a leading "assistant:" role marker, surrounding whitespace,
// markdown code fences, and chatter lines before the first brace.
func CleanModelText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "assistant:")
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	// Models sometimes preface the object with a sentence of chatter.
	// If a brace opens on a later line and nothing brace-like precedes
	// it, cut the preamble.
	if !strings.HasPrefix(text, "{") {
		if idx := strings.Index(text, "\n{"); idx >= 0 && !strings.ContainsAny(text[:idx], "{[") {
			text = text[idx+1:]
		}
	}

	return text
}
