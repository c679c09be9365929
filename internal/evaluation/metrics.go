// Package evaluation tracks model performance for code generation
// runs: per-run timing and retry telemetry, simple code-quality
// metrics, and an append-only JSON evaluation log with aggregation
// helpers for the dashboard.
package evaluation

import "strings"

// Metrics holds basic shape metrics about generated code. Always
// recomputed from the code text, never cached.
type Metrics struct {
	TotalLines     int     `json:"total_lines"`
	NonEmptyLines  int     `json:"non_empty_lines"`
	CharacterCount int     `json:"character_count"`
	HasDocstrings  bool    `json:"has_docstrings"`
	HasComments    bool    `json:"has_comments"`
	AvgLineLength  float64 `json:"avg_line_length"`
}

// ComputeMetrics derives Metrics from a code string.
func ComputeMetrics(code string) Metrics {
	lines := strings.Split(code, "\n")

	nonEmpty := 0
	lengthSum := 0
	hasComments := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			nonEmpty++
			lengthSum += len(line)
		}
		if strings.HasPrefix(trimmed, "#") {
			hasComments = true
		}
	}

	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(lengthSum) / float64(nonEmpty)
	}

	return Metrics{
		TotalLines:     len(lines),
		NonEmptyLines:  nonEmpty,
		CharacterCount: len(code),
		HasDocstrings:  strings.Contains(code, `"""`) || strings.Contains(code, "'''"),
		HasComments:    hasComments,
		AvgLineLength:  avg,
	}
}

// EstimateTokens is a coarse token-count heuristic (characters / 4).
// It is an approximation for dashboard trends, not a tokenizer count.
func EstimateTokens(code string) int {
	return len(code) / 4
}
