package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/kaidoku/internal/api"
	"github.com/jackzampolin/kaidoku/internal/config"
	"github.com/jackzampolin/kaidoku/internal/fonts"
	"github.com/jackzampolin/kaidoku/internal/home"
	"github.com/jackzampolin/kaidoku/internal/svcctx"
	"github.com/jackzampolin/kaidoku/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "kaidoku",
	Short: "Make scanned PDFs and images searchable with an invisible OCR text layer",
	Long: `Kaidoku turns image-only PDFs and page images into searchable PDFs.

Each page is rendered, recognized once by the OCR engine, and written back
with its original image plus an invisible text layer positioned over the
recognized words. Pages run in bounded parallel chunks, so memory stays flat
on long documents.

Pages that fail are kept image-only and listed in the run report; only
problems with the input, the output path or the OCR engine stop a run.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.kaidoku/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "kaidoku home directory (default: $KAIDOKU_HOME or ~/.kaidoku)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Build shared services before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := api.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}
		api.SetOutputFormat(format)

		logger, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		cm.SetLogger(logger.With("component", "config"))

		cache := fonts.NewCache(&configFinder{
			cm:     cm,
			home:   h,
			logger: logger.With("component", "fonts"),
		})
		// A changed font section invalidates the cached font.
		cm.OnChange(func(*config.Config) { cache.Reset() })

		cmd.SetContext(svcctx.WithServices(cmd.Context(), &svcctx.Services{
			Config: cm,
			Fonts:  cache,
			Logger: logger,
			Home:   h,
		}))
		return nil
	}

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the stderr text logger. Stdout is reserved for results.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}
