package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/kaidoku/internal/api"
	"github.com/jackzampolin/kaidoku/internal/pipeline"
	"github.com/jackzampolin/kaidoku/internal/svcctx"
)

var (
	watchFlags  = &runFlags{}
	watchOutDir string
	watchSettle time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Convert PDFs and images as they appear in a directory",
	Long: `Watch a hot folder and convert every PDF or image dropped into it.

A file is picked up once it has stopped changing for --settle. Output goes
to --out-dir (default: the watched directory) as <name><suffix>.pdf. Files
that already carry the suffix are ignored, so the watched directory can
also be the output directory.

The config file is watched too; changes apply to the next file.

Examples:
  kaidoku watch ~/scans
  kaidoku watch ~/scans --out-dir ~/searchable --settle 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		watchFlags.collect(cmd)
		svc := svcctx.ServicesFrom(ctx)
		logger := svc.Logger.With("component", "watch")

		dir := args[0]
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", pipeline.ErrInputNotFound, dir)
		}
		outDir := watchOutDir
		if outDir == "" {
			outDir = dir
		}

		if svc.Config.ConfigFile() != "" {
			svc.Config.WatchConfig()
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}

		logger.Info("watching", "dir", dir, "out_dir", outDir, "settle", watchSettle)

		queue := make(chan string, 64)
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(queue)
			pending := newSettleSet(watchSettle)
			tick := time.NewTicker(max(watchSettle/2, 50*time.Millisecond))
			defer tick.Stop()

			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					suffix := svc.Config.Get().Output.Suffix
					if ev.Has(fsnotify.Create|fsnotify.Write) && watchEligible(ev.Name, suffix) {
						pending.touch(ev.Name, time.Now())
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Warn("watcher error", "error", err)
				case now := <-tick.C:
					for _, p := range pending.ready(now) {
						select {
						case queue <- p:
						case <-gctx.Done():
							return nil
						}
					}
				}
			}
		})

		g.Go(func() error {
			for path := range queue {
				if err := convertDropped(gctx, path, outDir); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					logger.Error("conversion failed", "file", path, "error", err)
				}
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	addRunFlags(watchCmd, watchFlags)
	watchCmd.Flags().StringVar(&watchOutDir, "out-dir", "", "directory for converted files (default: the watched directory)")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 2*time.Second, "how long a file must stay unchanged before conversion")
}

// convertDropped converts one file picked up from the hot folder. The driver
// is rebuilt each time so reloaded config applies.
func convertDropped(ctx context.Context, path, outDir string) error {
	d, cfg, err := newDriver(ctx, watchFlags)
	if err != nil {
		return err
	}
	out := filepath.Join(outDir, filepath.Base(derivedOutput(path, cfg.Output.Suffix)))

	var report *pipeline.Report
	if pipeline.IsImagePath(path) {
		report, err = d.ConvertImages(ctx, []string{path}, out)
	} else {
		report, err = d.Convert(ctx, path, out)
	}
	if err != nil {
		return err
	}
	saveReport(ctx, report)
	return api.Output(report)
}

// watchEligible reports whether a hot-folder file should be converted.
// Hidden and temporary files and previous outputs are skipped.
func watchEligible(path, suffix string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if suffix != "" && strings.HasSuffix(strings.ToLower(base), strings.ToLower(suffix)+".pdf") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".pdf") || pipeline.IsImagePath(base)
}

// settleSet tracks files until they have been quiet for a while.
type settleSet struct {
	quiet time.Duration
	last  map[string]time.Time
}

func newSettleSet(quiet time.Duration) *settleSet {
	return &settleSet{quiet: quiet, last: make(map[string]time.Time)}
}

func (s *settleSet) touch(path string, at time.Time) {
	s.last[path] = at
}

// ready removes and returns, sorted, the files untouched since now-quiet.
func (s *settleSet) ready(now time.Time) []string {
	var out []string
	for p, at := range s.last {
		if now.Sub(at) >= s.quiet {
			out = append(out, p)
			delete(s.last, p)
		}
	}
	slices.Sort(out)
	return out
}
