package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/kaidoku/internal/compose"
	"github.com/jackzampolin/kaidoku/internal/metrics"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

// ErrorCode classifies a recoverable per-page failure.
type ErrorCode string

const (
	CodeOCRFailed       ErrorCode = "OCR_FAILED"
	CodeRenderFailed    ErrorCode = "RENDER_FAILED"
	CodeImageTooLarge   ErrorCode = "IMAGE_TOO_LARGE"
	CodeFontUnavailable ErrorCode = "FONT_UNAVAILABLE"
)

// PageError is a failure confined to one page.
type PageError struct {
	Page int
	Code ErrorCode
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Code, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// newPageError classifies err for page. The code follows the first matching
// sentinel; anything unrecognized is an OCR failure.
func newPageError(page int, err error) *PageError {
	code := CodeOCRFailed
	switch {
	case errors.Is(err, raster.ErrImageTooLarge):
		code = CodeImageTooLarge
	case errors.Is(err, raster.ErrRender), errors.Is(err, raster.ErrRasterizerNotFound):
		code = CodeRenderFailed
	case errors.Is(err, compose.ErrFontUnavailable):
		code = CodeFontUnavailable
	}
	return &PageError{Page: page, Code: code, Err: err}
}

// PageFailure is the report entry for a PageError.
type PageFailure struct {
	Page   int       `json:"page" yaml:"page"`
	Code   ErrorCode `json:"code" yaml:"code"`
	Reason string    `json:"reason" yaml:"reason"`
}

// Report summarizes one run. Degraded pages are listed, never fatal.
type Report struct {
	RunID  string   `json:"run_id" yaml:"run_id"`
	Mode   string   `json:"mode" yaml:"mode"`
	Inputs []string `json:"inputs" yaml:"inputs"`
	Output string   `json:"output,omitempty" yaml:"output,omitempty"`

	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	Pages         int `json:"pages" yaml:"pages"`
	PagesWithText int `json:"pages_with_text" yaml:"pages_with_text"`

	Failures []PageFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Textless []int         `json:"textless,omitempty" yaml:"textless,omitempty"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	ElapsedSeconds float64                           `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Stages         map[string]*metrics.DetailedStats `json:"stages,omitempty" yaml:"stages,omitempty"`
}

func newReport(runID, mode string, inputs []string, output string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		Mode:      mode,
		Inputs:    inputs,
		Output:    output,
		StartedAt: started,
	}
}

func (r *Report) addFailure(pe *PageError) {
	r.Failures = append(r.Failures, PageFailure{
		Page:   pe.Page,
		Code:   pe.Code,
		Reason: pe.Err.Error(),
	})
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// finish sorts the page lists and stamps timing.
func (r *Report) finish(start time.Time, rec *metrics.Recorder) {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		return r.Failures[i].Page < r.Failures[j].Page
	})
	sort.Ints(r.Textless)
	r.ElapsedSeconds = time.Since(start).Seconds()
	if stages := rec.ByStage(); len(stages) > 0 {
		r.Stages = stages
	}
}

// Degraded reports whether any page lost its text or image.
func (r *Report) Degraded() bool {
	return len(r.Failures) > 0
}

// Text is the one-line summary printed after a run.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d pages, %d with text", r.Pages, r.PagesWithText)
	if r.Output != "" {
		fmt.Fprintf(&b, " -> %s", r.Output)
	}
	if pages := r.FailedPages(); len(pages) > 0 {
		fmt.Fprintf(&b, " (degraded pages: %v)", pages)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", w)
	}
	return b.String()
}

// FailedPages lists the pages with failures, ascending and without duplicates.
func (r *Report) FailedPages() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, f := range r.Failures {
		if !seen[f.Page] {
			seen[f.Page] = true
			pages = append(pages, f.Page)
		}
	}
	sort.Ints(pages)
	return pages
}
