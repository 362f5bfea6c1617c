// Package metrics records per-page timing and outcomes for a run.
package metrics

import "time"

// Stages a page passes through.
const (
	StageRender  = "render"
	StageOCR     = "ocr"
	StageCompose = "compose"
)

// Metric is one recorded stage of one page.
type Metric struct {
	RunID string `json:"run_id,omitempty"`
	Stage string `json:"stage"`
	Page  int    `json:"page"`

	// Words seen and words kept after confidence filtering. OCR only.
	Words    int `json:"words,omitempty"`
	Accepted int `json:"accepted,omitempty"`

	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`

	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Duration returns ExecutionSeconds as a time.Duration.
func (m Metric) Duration() time.Duration {
	return time.Duration(m.ExecutionSeconds * float64(time.Second))
}
