package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OCR.Engine != "tesseract" {
		t.Errorf("expected tesseract engine, got %s", cfg.OCR.Engine)
	}
	if cfg.OCR.ConfidenceThreshold != 65 {
		t.Errorf("expected threshold 65, got %v", cfg.OCR.ConfidenceThreshold)
	}
	if !cfg.Pipeline.Parallel {
		t.Error("expected parallel by default")
	}
	if cfg.Render.DPI != 300 {
		t.Errorf("expected 300 dpi, got %d", cfg.Render.DPI)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_FONT_DIR", "/opt/fonts")

		result := ResolveEnvVars("${TEST_FONT_DIR}/ipag.ttf")
		if result != "/opt/fonts/ipag.ttf" {
			t.Errorf("expected /opt/fonts/ipag.ttf, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("/usr/bin/tesseract")
		if result != "/usr/bin/tesseract" {
			t.Errorf("expected literal path, got %s", result)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
ocr:
  language: "jpn+eng"
  confidence_threshold: 40
pipeline:
  workers: 3
render:
  dpi: 200
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.OCR.Language != "jpn+eng" {
			t.Errorf("expected jpn+eng, got %s", cfg.OCR.Language)
		}
		if cfg.OCR.ConfidenceThreshold != 40 {
			t.Errorf("expected 40, got %v", cfg.OCR.ConfidenceThreshold)
		}
		if cfg.Pipeline.Workers != 3 {
			t.Errorf("expected 3 workers, got %d", cfg.Pipeline.Workers)
		}
		if cfg.Render.DPI != 200 {
			t.Errorf("expected 200 dpi, got %d", cfg.Render.DPI)
		}
		// Unset keys keep their defaults.
		if cfg.Output.Suffix != "_searchable" {
			t.Errorf("expected default suffix, got %s", cfg.Output.Suffix)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("ConfigFile() = %s", mgr.ConfigFile())
		}
	})

	t.Run("no config file uses defaults", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.OCR.ConfidenceThreshold != 65 || cfg.Render.Retries != 2 {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("finds config in search path", func(t *testing.T) {
		configFile := writeConfig(t, "output:\n  suffix: \"_ocr\"\n")
		mgr, err := NewManager("", filepath.Dir(configFile))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Output.Suffix; got != "_ocr" {
			t.Errorf("expected _ocr, got %s", got)
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		configFile := writeConfig(t, "ocr: [unclosed\n")
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for malformed config")
		}
	})

	t.Run("clamps threshold", func(t *testing.T) {
		configFile := writeConfig(t, "ocr:\n  confidence_threshold: 150\n")
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().OCR.ConfidenceThreshold; got != 100 {
			t.Errorf("expected 100, got %v", got)
		}
	})

	t.Run("resolves env references in paths", func(t *testing.T) {
		t.Setenv("TEST_KAIDOKU_FONTS", "/srv/fonts")
		configFile := writeConfig(t, "font:\n  path: \"${TEST_KAIDOKU_FONTS}/a.ttf\"\n")
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Font.Path; got != "/srv/fonts/a.ttf" {
			t.Errorf("expected /srv/fonts/a.ttf, got %s", got)
		}
	})
}

func TestManager_Env(t *testing.T) {
	t.Run("prefixed variable overrides file", func(t *testing.T) {
		t.Setenv("KAIDOKU_RENDER_DPI", "150")
		configFile := writeConfig(t, "render:\n  dpi: 200\n")
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Render.DPI; got != 150 {
			t.Errorf("expected 150, got %d", got)
		}
	})

	t.Run("legacy variables fill unset keys", func(t *testing.T) {
		t.Setenv(EnvLegacyWorkers, "5")
		t.Setenv(EnvLegacyParallel, "0")
		t.Setenv(EnvLegacyThreshold, "80")
		t.Setenv(EnvLegacyArgs, "--oem 1  --psm 6")

		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Pipeline.Workers != 5 {
			t.Errorf("expected 5 workers, got %d", cfg.Pipeline.Workers)
		}
		if cfg.Pipeline.Parallel {
			t.Error("expected parallel disabled")
		}
		if cfg.OCR.ConfidenceThreshold != 80 {
			t.Errorf("expected 80, got %v", cfg.OCR.ConfidenceThreshold)
		}
		want := []string{"--oem", "1", "--psm", "6"}
		if len(cfg.OCR.Args) != len(want) {
			t.Fatalf("expected %v, got %v", want, cfg.OCR.Args)
		}
		for i := range want {
			if cfg.OCR.Args[i] != want[i] {
				t.Errorf("args[%d] = %s, want %s", i, cfg.OCR.Args[i], want[i])
			}
		}
	})

	t.Run("explicit keys win over legacy variables", func(t *testing.T) {
		t.Setenv(EnvLegacyThreshold, "80")
		t.Setenv(EnvLegacyWorkers, "5")
		t.Setenv("KAIDOKU_PIPELINE_WORKERS", "2")
		configFile := writeConfig(t, "ocr:\n  confidence_threshold: 30\n")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.OCR.ConfidenceThreshold != 30 {
			t.Errorf("expected 30, got %v", cfg.OCR.ConfidenceThreshold)
		}
		if cfg.Pipeline.Workers != 2 {
			t.Errorf("expected 2 workers, got %d", cfg.Pipeline.Workers)
		}
	})

	t.Run("invalid legacy threshold is ignored", func(t *testing.T) {
		t.Setenv(EnvLegacyThreshold, "high")
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().OCR.ConfidenceThreshold; got != 65 {
			t.Errorf("expected default 65, got %v", got)
		}
	})
}

func TestManager_Value(t *testing.T) {
	configFile := writeConfig(t, "output:\n  suffix: \"_x\"\n")
	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	v, err := mgr.Value("output.suffix")
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "_x" {
		t.Errorf("expected _x, got %v", v)
	}

	if _, err := mgr.Value("output.nope"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := mgr.Value("bad key"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "ocr:\n  language: jpn\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "ocr:\n  language: jpn\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.OCR.Language
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "ocr:\n  language: \"jpn\"\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if got := mgr.Get().OCR.Language; got != "jpn" {
		t.Errorf("initial value mismatch: expected jpn, got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.OCR.Language)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("ocr:\n  language: \"eng\"\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := lastValue.Load().(string); v == "eng" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if v, _ := lastValue.Load().(string); v != "eng" {
		t.Errorf("callback received wrong value: expected eng, got %v", v)
	}
	if got := mgr.Get().OCR.Language; got != "eng" {
		t.Errorf("Get() returned stale config: expected eng, got %s", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) == 0 || data[0] != '#' {
		t.Error("expected header comment")
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written defaults: %v", err)
	}
	got, want := mgr.Get(), DefaultConfig()
	if got.OCR.Engine != want.OCR.Engine || got.OCR.Language != want.OCR.Language ||
		got.OCR.ConfidenceThreshold != want.OCR.ConfidenceThreshold ||
		got.Pipeline != want.Pipeline || got.Render != want.Render ||
		got.Output != want.Output || got.Font.EmbeddedFallback != want.Font.EmbeddedFallback {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}
