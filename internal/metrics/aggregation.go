package metrics

import (
	"sort"
	"time"
)

// Summary provides a summary of metrics for a filter.
type Summary struct {
	Count          int           `json:"count" yaml:"count"`
	TotalTime      time.Duration `json:"total_time" yaml:"total_time"`
	SuccessCount   int           `json:"success_count" yaml:"success_count"`
	ErrorCount     int           `json:"error_count" yaml:"error_count"`
	TotalWords     int           `json:"total_words" yaml:"total_words"`
	AcceptedWords  int           `json:"accepted_words" yaml:"accepted_words"`
	AvgTimeSeconds float64       `json:"avg_time_seconds" yaml:"avg_time_seconds"`
}

// Summarize returns a summary of metrics matching the filter.
func (r *Recorder) Summarize(f Filter) *Summary {
	metrics := r.List(f)

	s := &Summary{Count: len(metrics)}
	for _, m := range metrics {
		s.TotalTime += m.Duration()
		s.TotalWords += m.Words
		s.AcceptedWords += m.Accepted
		if m.Success {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
	}

	if s.Count > 0 {
		s.AvgTimeSeconds = s.TotalTime.Seconds() / float64(s.Count)
	}
	return s
}

// DetailedStats adds latency percentiles to a Summary.
type DetailedStats struct {
	Summary `yaml:",inline"`

	// Latency percentiles (seconds)
	LatencyP50 float64 `json:"latency_p50" yaml:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95" yaml:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99" yaml:"latency_p99"`
	LatencyMin float64 `json:"latency_min" yaml:"latency_min"`
	LatencyMax float64 `json:"latency_max" yaml:"latency_max"`
}

// Detailed returns detailed statistics for metrics matching the filter.
func (r *Recorder) Detailed(f Filter) *DetailedStats {
	stats := &DetailedStats{Summary: *r.Summarize(f)}

	var latencies []float64
	for _, m := range r.List(f) {
		if m.ExecutionSeconds > 0 {
			latencies = append(latencies, m.ExecutionSeconds)
		}
	}
	if len(latencies) == 0 {
		return stats
	}

	sort.Float64s(latencies)
	stats.LatencyMin = latencies[0]
	stats.LatencyMax = latencies[len(latencies)-1]
	stats.LatencyP50 = percentile(latencies, 50)
	stats.LatencyP95 = percentile(latencies, 95)
	stats.LatencyP99 = percentile(latencies, 99)
	return stats
}

// ByStage returns detailed stats grouped by stage.
func (r *Recorder) ByStage() map[string]*DetailedStats {
	stages := make(map[string]bool)
	for _, m := range r.List(Filter{}) {
		stages[m.Stage] = true
	}
	out := make(map[string]*DetailedStats, len(stages))
	for stage := range stages {
		out[stage] = r.Detailed(Filter{Stage: stage})
	}
	return out
}

// percentile calculates the p-th percentile from a sorted slice of values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	n := float64(len(sorted))
	idx := (p / 100.0) * (n - 1)

	// Interpolate between floor and ceil indices
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
