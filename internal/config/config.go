// Package config loads kaidoku configuration from file, environment and
// defaults, and reloads it when the file changes.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. KAIDOKU_RENDER_DPI.
const EnvPrefix = "KAIDOKU"

// Legacy environment variables honored when the matching key is not set
// explicitly.
const (
	EnvLegacyWorkers   = "KAIDOKU_OCR_WORKERS"
	EnvLegacyParallel  = "KAIDOKU_PARALLEL"
	EnvLegacyThreshold = "OCR_CONFIDENCE_THRESHOLD"
	EnvLegacyArgs      = "OCR_TESSERACT_CONFIG"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v      *viper.Viper
	logger *slog.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// With cfgFile empty, config.yaml is looked up in the working directory and
// then in each of searchPaths.
func NewManager(cfgFile string, searchPaths ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		logger:    slog.Default(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, searchPaths); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchPaths []string) error {
	v := cm.v
	for _, e := range DefaultEntries() {
		v.SetDefault(e.Key, e.Value)
	}

	// Environment variables with KAIDOKU_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cm.applyLegacyEnv(&cfg)
	cfg.normalize()
	return &cfg, nil
}

// applyLegacyEnv fills keys from the older environment names unless the key
// was set in the config file or through its KAIDOKU_ variable.
func (cm *Manager) applyLegacyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvLegacyWorkers); ok && !cm.explicit("pipeline.workers") {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Pipeline.Workers = n
		}
	}
	if v, ok := os.LookupEnv(EnvLegacyParallel); ok && !cm.explicit("pipeline.parallel") {
		cfg.Pipeline.Parallel = strings.TrimSpace(v) != "0"
	}
	if v, ok := os.LookupEnv(EnvLegacyThreshold); ok && !cm.explicit("ocr.confidence_threshold") {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.OCR.ConfidenceThreshold = f
		}
	}
	if v, ok := os.LookupEnv(EnvLegacyArgs); ok && !cm.explicit("ocr.args") {
		cfg.OCR.Args = strings.Fields(v)
	}
}

func (cm *Manager) explicit(key string) bool {
	if cm.v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok
}

// normalize clamps values into their valid ranges and expands ${ENV_VAR}
// references in paths.
func (c *Config) normalize() {
	switch {
	case math.IsNaN(c.OCR.ConfidenceThreshold):
		c.OCR.ConfidenceThreshold = 65
	case c.OCR.ConfidenceThreshold < 0:
		c.OCR.ConfidenceThreshold = 0
	case c.OCR.ConfidenceThreshold > 100:
		c.OCR.ConfidenceThreshold = 100
	}
	if c.Pipeline.Workers < 0 {
		c.Pipeline.Workers = 0
	}
	if c.Render.DPI <= 0 {
		c.Render.DPI = 300
	}
	if c.Render.Retries <= 0 {
		c.Render.Retries = 1
	}

	c.OCR.TesseractPath = ResolveEnvVars(c.OCR.TesseractPath)
	c.OCR.TessdataDir = ResolveEnvVars(c.OCR.TessdataDir)
	c.Render.PdftoppmPath = ResolveEnvVars(c.Render.PdftoppmPath)
	c.Font.Path = ResolveEnvVars(c.Font.Path)
	for i, d := range c.Font.Dirs {
		c.Font.Dirs[i] = ResolveEnvVars(d)
	}
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Value returns the effective value for a single key.
func (cm *Manager) Value(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if GetDefault(key) == nil {
		return nil, fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return cm.v.Get(key), nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# kaidoku configuration
# Every key can be overridden with KAIDOKU_<SECTION>_<KEY>, e.g. KAIDOKU_RENDER_DPI=400
# Paths accept ${ENV_VAR} references

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
