package metrics

import (
	"sync"
	"time"
)

// Recorder keeps metrics in memory for the life of a run.
// Safe for concurrent use.
type Recorder struct {
	runID string

	mu      sync.Mutex
	metrics []Metric
}

// NewRecorder creates a recorder that stamps every metric with runID.
func NewRecorder(runID string) *Recorder {
	return &Recorder{runID: runID}
}

// RecordOpts provides context for a metric recording.
type RecordOpts struct {
	Stage string
	Page  int
}

// Record stores a single metric.
func (r *Recorder) Record(m Metric) {
	if r == nil {
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.RunID == "" {
		m.RunID = r.runID
	}
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// RecordStage records a timed stage outcome. errType is empty on success.
func (r *Recorder) RecordStage(opts RecordOpts, elapsed time.Duration, errType string) {
	r.Record(Metric{
		Stage:            opts.Stage,
		Page:             opts.Page,
		ExecutionSeconds: elapsed.Seconds(),
		Success:          errType == "",
		ErrorType:        errType,
	})
}

// RecordOCR records a successful OCR call with its word counts.
func (r *Recorder) RecordOCR(page int, elapsed time.Duration, words, accepted int) {
	r.Record(Metric{
		Stage:            StageOCR,
		Page:             page,
		Words:            words,
		Accepted:         accepted,
		ExecutionSeconds: elapsed.Seconds(),
		Success:          true,
	})
}

// List returns metrics matching the filter in recording order.
func (r *Recorder) List(f Filter) []Metric {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Metric
	for _, m := range r.metrics {
		if f.match(m) {
			out = append(out, m)
		}
	}
	return out
}

// Filter selects metrics. Zero fields match everything.
type Filter struct {
	Stage string
	Page  int
}

func (f Filter) match(m Metric) bool {
	if f.Stage != "" && m.Stage != f.Stage {
		return false
	}
	if f.Page != 0 && m.Page != f.Page {
		return false
	}
	return true
}
