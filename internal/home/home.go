// Package home manages the kaidoku home directory.
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirName is the default name for the kaidoku home directory.
	DefaultDirName = ".kaidoku"

	// EnvHome overrides the default home location.
	EnvHome = "KAIDOKU_HOME"

	// FontsDirName holds user-supplied fonts searched before system fonts.
	FontsDirName = "fonts"

	// ReportsDirName holds one report per conversion run.
	ReportsDirName = "reports"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the kaidoku home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses KAIDOKU_HOME or else ~/.kaidoku.
func New(path string) (*Dir, error) {
	if path == "" {
		path = os.Getenv(EnvHome)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// FontsDir returns the user font directory.
func (d *Dir) FontsDir() string {
	return filepath.Join(d.path, FontsDirName)
}

// ReportsDir returns the directory run reports are written to.
func (d *Dir) ReportsDir() string {
	return filepath.Join(d.path, ReportsDirName)
}

// ReportPath returns the report file for a run started at the given time.
// Names sort chronologically.
func (d *Dir) ReportPath(runID string, started time.Time) string {
	return filepath.Join(d.ReportsDir(), fmt.Sprintf("%s_%s.yaml", started.UTC().Format("20060102T150405Z"), runID))
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.FontsDir(), d.ReportsDir()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
