package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/kaidoku/internal/compose"
	"github.com/jackzampolin/kaidoku/internal/metrics"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

func TestNewPageError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("page 1: %w", raster.ErrImageTooLarge), CodeImageTooLarge},
		{fmt.Errorf("%w: exit 1", raster.ErrRender), CodeRenderFailed},
		{raster.ErrRasterizerNotFound, CodeRenderFailed},
		{errors.Join(compose.ErrFontUnavailable, errors.New("no fonts")), CodeFontUnavailable},
		{errors.New("tesseract exited 1"), CodeOCRFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			pe := newPageError(4, tt.err)
			if pe.Code != tt.want {
				t.Errorf("code = %s, want %s", pe.Code, tt.want)
			}
			if !errors.Is(pe, tt.err) {
				t.Error("PageError should unwrap to the cause")
			}
		})
	}
}

func TestReport(t *testing.T) {
	r := newReport("run", ModePDF, []string{"in.pdf"}, "out.pdf", time.Now())
	r.Pages = 3
	r.PagesWithText = 2
	r.addFailure(&PageError{Page: 3, Code: CodeOCRFailed, Err: errors.New("boom")})
	r.addFailure(&PageError{Page: 1, Code: CodeRenderFailed, Err: errors.New("bad")})
	r.addFailure(&PageError{Page: 3, Code: CodeFontUnavailable, Err: errors.New("font")})
	r.Textless = []int{2}
	r.warn("%d words uncovered", 5)
	r.finish(r.StartedAt, metrics.NewRecorder("run"))

	if !r.Degraded() {
		t.Error("report with failures should be degraded")
	}
	if got := r.FailedPages(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("FailedPages() = %v, want [1 3]", got)
	}
	if r.Failures[0].Page != 1 {
		t.Errorf("failures not sorted: %+v", r.Failures)
	}
	if r.Stages != nil {
		t.Errorf("empty recorder should leave Stages nil, got %v", r.Stages)
	}

	text := r.Text()
	for _, want := range []string{"3 pages, 2 with text", "-> out.pdf", "[1 3]", "warning: 5 words uncovered"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() = %q, missing %q", text, want)
		}
	}
}
