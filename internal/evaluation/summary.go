package evaluation

import "sort"

// Summary holds aggregated evaluation totals for the dashboard.
type Summary struct {
	TotalRuns         int     `json:"total_runs"`
	Successes         int     `json:"successes"`
	SuccessRate       float64 `json:"success_rate"` // 0..1
	AvgCompletionTime float64 `json:"avg_completion_time"`
	AvgRetries        float64 `json:"avg_retries"`
	TotalTokens       int     `json:"total_tokens_estimate"`
}

// Summarize aggregates a slice of records.
func Summarize(records []Record) Summary {
	var s Summary
	s.TotalRuns = len(records)
	if s.TotalRuns == 0 {
		return s
	}

	var timeSum float64
	var retrySum int
	for _, rec := range records {
		if rec.Success {
			s.Successes++
		}
		timeSum += rec.CompletionTime
		retrySum += rec.RetryCount
		s.TotalTokens += rec.TokensEstimate
	}
	s.SuccessRate = float64(s.Successes) / float64(s.TotalRuns)
	s.AvgCompletionTime = timeSum / float64(s.TotalRuns)
	s.AvgRetries = float64(retrySum) / float64(s.TotalRuns)
	return s
}

// ByChatModel groups records by chat model and summarizes each group.
func ByChatModel(records []Record) map[string]Summary {
	return groupBy(records, func(r Record) string { return r.ChatModel })
}

// ByCodeModel groups records by code model and summarizes each group.
func ByCodeModel(records []Record) map[string]Summary {
	return groupBy(records, func(r Record) string { return r.CodeModel })
}

func groupBy(records []Record, key func(Record) string) map[string]Summary {
	grouped := make(map[string][]Record)
	for _, rec := range records {
		k := key(rec)
		grouped[k] = append(grouped[k], rec)
	}

	out := make(map[string]Summary, len(grouped))
	for k, recs := range grouped {
		out[k] = Summarize(recs)
	}
	return out
}

// Recent returns the n newest records, newest first.
func Recent(records []Record, n int) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
