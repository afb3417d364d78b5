package workletrunner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-worklet-runner/core"
)

// Config is the runtime configuration, usually loaded from YAML.
type Config struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`

	Metrics MetricsConfig `yaml:"metrics"`
	Scripts ScriptsConfig `yaml:"scripts"`
}

// MetricsConfig configures the Prometheus exporter and /metrics endpoint.
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScriptsConfig lists script files evaluated at startup.
type ScriptsConfig struct {
	// Worklets are evaluated on the UI (worklet) runtime.
	Worklets []string `yaml:"worklets"`
	// JS are evaluated on the JS runtime, after the worklets.
	JS []string `yaml:"js"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		FrameInterval: core.DefaultFrameInterval,
		LogLevel:      "info",
		LogFormat:     "json",
		Metrics: MetricsConfig{
			Enabled:      false,
			Addr:         ":9090",
			Namespace:    "worklet",
			PollInterval: time.Second,
		},
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig. Relative script
// paths are resolved against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	dir := filepath.Dir(path)
	cfg.Scripts.Worklets = resolvePaths(dir, cfg.Scripts.Worklets)
	cfg.Scripts.JS = resolvePaths(dir, cfg.Scripts.JS)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame_interval must be positive, got %s", c.FrameInterval))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
		}
		if c.Metrics.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("metrics.poll_interval must be positive, got %s", c.Metrics.PollInterval))
		}
	}
	return errors.Join(errs...)
}

func resolvePaths(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
		} else {
			out[i] = filepath.Join(dir, p)
		}
	}
	return out
}
