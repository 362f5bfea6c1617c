package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	noPagesMessage      = "ページが存在しないPDFです。処理を終了します。"
	unknownTotalMessage = "進捗: ページ数が不明です"
	unknownDuration     = "不明"
)

// ProgressFunc receives human-readable progress lines. Nil is allowed.
type ProgressFunc func(msg string)

func (f ProgressFunc) emit(msg string) {
	if f != nil {
		f(msg)
	}
}

// FormatDuration renders seconds as mm:ss, or hh:mm:ss past an hour.
// Non-finite input renders as unknown.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return unknownDuration
	}
	total := int64(math.Max(0, math.Round(seconds)))
	minutes, sec := total/60, total%60
	hours, minutes := minutes/60, minutes%60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, sec)
	}
	return fmt.Sprintf("%02d:%02d", minutes, sec)
}

// ProgressMessage builds the line reported after done of total pages,
// estimating the remainder from the average time per finished page.
func ProgressMessage(done, total int, elapsed time.Duration) string {
	if total <= 0 {
		return unknownTotalMessage
	}
	perPage := math.Inf(1)
	if done > 0 {
		perPage = elapsed.Seconds() / float64(done)
	}
	remaining := float64(max(total-done, 0))
	eta := math.Inf(1)
	if remaining == 0 {
		eta = 0
	} else if !math.IsInf(perPage, 1) {
		eta = perPage * remaining
	}
	return fmt.Sprintf("%d/%dページ完了　残り推定時間: %s", done, total, FormatDuration(eta))
}

// progress tracks completed pages for one run.
type progress struct {
	fn    ProgressFunc
	total int
	start time.Time
	now   func() time.Time

	mu   sync.Mutex
	done int
}

func newProgress(fn ProgressFunc, total int) *progress {
	return &progress{fn: fn, total: total, start: time.Now(), now: time.Now}
}

func (p *progress) pageDone() {
	p.mu.Lock()
	p.done++
	msg := ProgressMessage(p.done, p.total, p.now().Sub(p.start))
	p.mu.Unlock()
	p.fn.emit(msg)
}
