package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jackzampolin/kaidoku/internal/api"
	"github.com/jackzampolin/kaidoku/internal/config"
	"github.com/jackzampolin/kaidoku/internal/fonts"
	"github.com/jackzampolin/kaidoku/internal/home"
	"github.com/jackzampolin/kaidoku/internal/ocr"
	"github.com/jackzampolin/kaidoku/internal/pipeline"
	"github.com/jackzampolin/kaidoku/internal/svcctx"
)

// configFinder locates the font from the current config on every lookup,
// so a reloaded font section takes effect after the cache is reset.
type configFinder struct {
	cm     *config.Manager
	home   *home.Dir
	logger *slog.Logger
}

func (f *configFinder) Locate() (*fonts.Font, error) {
	c := f.cm.Get().Font
	l := &fonts.Locator{
		Path:             c.Path,
		Dirs:             append([]string{f.home.FontsDir()}, c.Dirs...),
		EmbeddedFallback: c.EmbeddedFallback,
		Logger:           f.logger,
	}
	return l.Locate()
}

// runFlags are per-invocation overrides of the loaded config.
type runFlags struct {
	engine     string
	language   string
	threshold  float64
	workers    int
	sequential bool
	dpi        int
	showText   bool
	validate   bool
	quiet      bool

	// set records which flags were given explicitly.
	set map[string]bool
}

// apply returns a copy of cfg with the explicit flags applied.
func (f *runFlags) apply(cfg config.Config) config.Config {
	if f.set["engine"] {
		cfg.OCR.Engine = f.engine
	}
	if f.set["lang"] {
		cfg.OCR.Language = f.language
	}
	if f.set["threshold"] {
		cfg.OCR.ConfidenceThreshold = ocr.ClampThreshold(f.threshold)
	}
	if f.set["workers"] {
		cfg.Pipeline.Workers = f.workers
	}
	if f.set["sequential"] {
		cfg.Pipeline.Parallel = !f.sequential
	}
	if f.set["dpi"] {
		cfg.Render.DPI = f.dpi
	}
	if f.set["show-text"] {
		cfg.Output.ShowText = f.showText
	}
	if f.set["validate"] {
		cfg.Output.Validate = f.validate
	}
	return cfg
}

// newDriver builds a pipeline driver from the services in ctx.
func newDriver(ctx context.Context, flags *runFlags) (*pipeline.Driver, config.Config, error) {
	svc := svcctx.ServicesFrom(ctx)
	if svc == nil {
		return nil, config.Config{}, fmt.Errorf("services not initialized")
	}
	cfg := flags.apply(*svc.Config.Get())
	logger := svc.Logger

	engine, err := ocr.New(cfg.OCR.Engine, ocr.Options{
		Language:    cfg.OCR.Language,
		Binary:      cfg.OCR.TesseractPath,
		Args:        cfg.OCR.Args,
		TessdataDir: cfg.OCR.TessdataDir,
		Logger:      logger,
	})
	if err != nil {
		return nil, cfg, err
	}

	var progress pipeline.ProgressFunc
	if !flags.quiet && !api.IsStructuredOutput() {
		progress = func(msg string) { fmt.Fprintln(os.Stderr, msg) }
	}

	d, err := pipeline.New(pipeline.Config{
		Engine:        engine,
		Threshold:     cfg.OCR.ConfidenceThreshold,
		Workers:       cfg.Pipeline.Workers,
		Parallel:      cfg.Pipeline.Parallel,
		DPI:           cfg.Render.DPI,
		MaxPixels:     cfg.Render.MaxPixels,
		Pdftoppm:      cfg.Render.PdftoppmPath,
		RenderRetries: cfg.Render.Retries,
		Fonts:         svc.Fonts,
		Validate:      cfg.Output.Validate,
		ShowText:      cfg.Output.ShowText,
		Progress:      progress,
		Logger:        logger,
	})
	if err != nil {
		return nil, cfg, err
	}
	return d, cfg, nil
}

// addRunFlags registers the shared override flags on cmd.
func addRunFlags(cmd *cobra.Command, f *runFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.engine, "engine", "", "OCR engine (default from config)")
	fl.StringVar(&f.language, "lang", "", "OCR language, e.g. jpn+eng")
	fl.Float64Var(&f.threshold, "threshold", ocr.DefaultConfidenceThreshold, "minimum word confidence 0-100")
	fl.IntVar(&f.workers, "workers", 0, "pages processed at once (0: half the CPUs)")
	fl.BoolVar(&f.sequential, "sequential", false, "process one page at a time")
	fl.IntVar(&f.dpi, "dpi", 0, "render resolution")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress progress lines")
}

// collect records which override flags were set on this invocation.
func (f *runFlags) collect(cmd *cobra.Command) {
	f.set = make(map[string]bool)
	cmd.Flags().Visit(func(fl *pflag.Flag) {
		f.set[fl.Name] = true
	})
}

// saveReport writes report under the home reports directory. Failures are
// logged and otherwise ignored.
func saveReport(ctx context.Context, report *pipeline.Report) {
	h := svcctx.HomeFrom(ctx)
	logger := svcctx.LoggerFrom(ctx)
	if h == nil || report == nil {
		return
	}
	if err := h.EnsureExists(); err != nil {
		logger.Warn("could not create home directory", "error", err)
		return
	}

	var buf bytes.Buffer
	if err := api.OutputTo(&buf, api.OutputFormatYAML, report); err != nil {
		logger.Warn("could not encode report", "error", err)
		return
	}
	path := h.ReportPath(report.RunID, report.StartedAt)
	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		logger.Warn("could not save report", "path", path, "error", err)
		return
	}
	logger.Debug("report saved", "path", path)
}
