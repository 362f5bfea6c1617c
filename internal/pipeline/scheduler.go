package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/jackzampolin/kaidoku/internal/jobs"
	"github.com/jackzampolin/kaidoku/internal/metrics"
	"github.com/jackzampolin/kaidoku/internal/ocr"
	"github.com/jackzampolin/kaidoku/internal/raster"
)

// TaskOCRPage renders, recognizes and filters one page.
const TaskOCRPage = "ocr-page"

// PageResult is the outcome for one source page.
type PageResult struct {
	Ref raster.PageRef

	// Image is nil when the page could not be rendered.
	Image *raster.PageImage

	// Tokens passed the confidence filter. Words counts them before.
	Tokens []ocr.WordToken
	Words  int

	Err *PageError
}

// emitFunc receives results in page order while their images are live.
type emitFunc func(ctx context.Context, res PageResult) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Engine    ocr.Engine
	Threshold float64
	Workers   int  // default: jobs.DefaultWorkerCount()
	Parallel  bool // false runs a single worker
	RunID     string
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// Scheduler feeds pages to a worker pool one chunk at a time. A chunk holds
// as many pages as there are workers, and every raster of a chunk is
// released before the next chunk starts.
type Scheduler struct {
	engine  ocr.Engine
	filter  ocr.Filter
	workers int
	runID   string
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = jobs.DefaultWorkerCount()
	}
	if !cfg.Parallel {
		workers = 1
	}
	return &Scheduler{
		engine:  cfg.Engine,
		filter:  ocr.NewFilter(cfg.Threshold),
		workers: workers,
		runID:   cfg.RunID,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "scheduler"),
	}
}

// ChunkSize returns the number of pages in flight at once.
func (s *Scheduler) ChunkSize() int {
	return s.workers
}

// Run processes every page of doc and hands results to emit in page order.
// Cancellation is honored between chunks; a started chunk always finishes.
// An error from emit stops the run.
func (s *Scheduler) Run(ctx context.Context, doc raster.Document, emit emitFunc) error {
	refs := doc.Pages()
	if len(refs) == 0 {
		return nil
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	pool := jobs.NewCPUWorkerPool(jobs.CPUWorkerPoolConfig{
		Name:        "ocr",
		Logger:      s.logger,
		WorkerCount: s.workers,
		QueueSize:   s.workers,
	})
	pool.RegisterHandler(TaskOCRPage, s.pageHandler(doc))
	go pool.Start(workCtx)

	for start := 0; start < len(refs); start += s.workers {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.workers, len(refs))
		chunk := refs[start:end]

		s.logger.Debug("chunk started", "first_page", chunk[0].Page, "pages", len(chunk))

		results, err := s.runChunk(pool, chunk)
		if err != nil {
			return err
		}

		err = s.drain(ctx, results, emit)
		releaseAll(results)
		if err != nil {
			return err
		}
	}
	return nil
}

// runChunk submits one unit per page and waits for all of them.
func (s *Scheduler) runChunk(pool *jobs.CPUWorkerPool, chunk []raster.PageRef) ([]PageResult, error) {
	refs := make(map[string]raster.PageRef, len(chunk))
	for _, ref := range chunk {
		id := unitID(ref.Page)
		refs[id] = ref
		err := pool.Submit(&jobs.WorkUnit{
			ID:    id,
			JobID: s.runID,
			Type:  jobs.WorkUnitTypeCPU,
			CPURequest: &jobs.CPUWorkRequest{
				Task: TaskOCRPage,
				Data: ref,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("submit page %d: %w", ref.Page, err)
		}
	}

	results := make([]PageResult, 0, len(chunk))
	for range chunk {
		r := <-pool.Results()
		results = append(results, s.toPageResult(r, refs))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Ref.Page < results[j].Ref.Page
	})
	return results, nil
}

func (s *Scheduler) drain(ctx context.Context, results []PageResult, emit emitFunc) error {
	for _, res := range results {
		if err := emit(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) toPageResult(r jobs.WorkResult, refs map[string]raster.PageRef) PageResult {
	if r.Success && r.CPUResult != nil {
		if res, ok := r.CPUResult.Data.(PageResult); ok {
			return res
		}
	}
	ref := refs[r.WorkUnitID]
	err := r.Error
	if err == nil {
		err = fmt.Errorf("no result for %s", r.WorkUnitID)
	}
	s.logger.Error("page task failed", "page", ref.Page, "error", err)
	return PageResult{Ref: ref, Err: newPageError(ref.Page, err)}
}

func (s *Scheduler) pageHandler(doc raster.Document) jobs.CPUTaskHandler {
	return func(ctx context.Context, req *jobs.CPUWorkRequest) (*jobs.CPUWorkResult, error) {
		ref, ok := req.Data.(raster.PageRef)
		if !ok {
			return nil, fmt.Errorf("unexpected request data %T", req.Data)
		}
		return &jobs.CPUWorkResult{Data: s.processPage(ctx, doc, ref)}, nil
	}
}

// processPage renders ref, runs the engine once and filters the result.
// A panic after rendering keeps the raster so the page stays image-only.
func (s *Scheduler) processPage(ctx context.Context, doc raster.Document, ref raster.PageRef) (res PageResult) {
	res = PageResult{Ref: ref}
	defer func() {
		if r := recover(); r != nil {
			code := CodeOCRFailed
			if res.Image == nil {
				code = CodeRenderFailed
			}
			res.Tokens, res.Words = nil, 0
			res.Err = &PageError{Page: ref.Page, Code: code, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error("page task panicked", "page", ref.Page, "code", code, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	img, err := doc.Render(ctx, ref)
	if err != nil {
		res.Err = newPageError(ref.Page, err)
		s.metrics.RecordStage(metrics.RecordOpts{Stage: metrics.StageRender, Page: ref.Page}, time.Since(start), string(res.Err.Code))
		s.logger.Warn("page render failed", "page", ref.Page, "code", res.Err.Code, "error", err)
		return res
	}
	s.metrics.RecordStage(metrics.RecordOpts{Stage: metrics.StageRender, Page: ref.Page}, time.Since(start), "")
	res.Image = img
	res.Ref = img.PageRef

	start = time.Now()
	tokens, err := s.engine.Recognize(ctx, ocr.Image{Page: ref.Page, Data: img.PNG, DPI: int(img.DPI)})
	if err != nil {
		res.Err = &PageError{Page: ref.Page, Code: CodeOCRFailed, Err: err}
		s.metrics.RecordStage(metrics.RecordOpts{Stage: metrics.StageOCR, Page: ref.Page}, time.Since(start), string(CodeOCRFailed))
		s.logger.Warn("page ocr failed", "page", ref.Page, "error", err)
		return res
	}

	res.Words = len(tokens)
	res.Tokens = s.filter.Apply(tokens)
	s.metrics.RecordOCR(ref.Page, time.Since(start), res.Words, len(res.Tokens))
	s.logger.Debug("page recognized", "page", ref.Page, "words", res.Words, "accepted", len(res.Tokens))
	return res
}

func releaseAll(results []PageResult) {
	for _, r := range results {
		if r.Image != nil {
			r.Image.Release()
		}
	}
}

func unitID(page int) string {
	return fmt.Sprintf("page-%04d", page)
}
