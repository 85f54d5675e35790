// Package config loads resolver settings from an optional YAML file, .env
// files and IOC_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds resolver settings.
type Config struct {
	// Include keeps only modules whose name starts with one of these
	// prefixes. Empty means every module.
	Include []string `yaml:"include"`

	// Exclude drops modules whose name starts with one of these prefixes.
	Exclude []string `yaml:"exclude"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the zap logger used by the resolver.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	Encoding    string `yaml:"encoding"` // json | console
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Namespace: "ioc",
		},
	}
}

// Load reads path (if non-empty and present), then .env files (if present),
// then IOC_* environment overrides.
// Call once at bootstrap: cfg, err := config.Load("ioc.yaml")
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := cfg.decode(data); err != nil {
				return nil, fmt.Errorf("config: %s: %w", path, err)
			}
		}
	}

	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env files are optional.
	_ = godotenv.Load(files...)

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes a YAML payload on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := lookup("IOC_INCLUDE"); ok {
		c.Include = splitList(v)
	}
	if v, ok := lookup("IOC_EXCLUDE"); ok {
		c.Exclude = splitList(v)
	}
	if v, ok := lookup("IOC_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("IOC_LOG_ENCODING"); ok {
		c.Log.Encoding = v
	}
	c.Log.Development = envBool("IOC_LOG_DEVELOPMENT", c.Log.Development)
	c.Metrics.Enabled = envBool("IOC_METRICS_ENABLED", c.Metrics.Enabled)
	if v, ok := lookup("IOC_METRICS_NAMESPACE"); ok {
		c.Metrics.Namespace = v
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.encoding must be json or console, got %q", c.Log.Encoding)
	}
	return nil
}

// Build creates the zap logger described by l.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if l.Encoding != "" {
		zc.Encoding = l.Encoding
	}
	return zc.Build()
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envBool(key string, fallback bool) bool {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
