// Package config loads coordinator settings from a YAML file, with .env
// and environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full coordinator configuration.
type Config struct {
	Executor  ExecutorConfig  `yaml:"executor"`
	Storage   StorageConfig   `yaml:"storage"`
	Autosave  AutosaveConfig  `yaml:"autosave"`
	HTTP      HTTPConfig      `yaml:"http"`
	Staleness StalenessConfig `yaml:"staleness"`
	LogLevel  string          `yaml:"log_level"`
}

// ExecutorConfig points at the remote executor and tunes reconnection.
type ExecutorConfig struct {
	URL             string        `yaml:"url"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BackoffCeiling  time.Duration `yaml:"backoff_ceiling"`
	BackoffAttempts int           `yaml:"backoff_attempts"`
	RESTBaseURL     string        `yaml:"rest_base_url"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	// Backend is "file", "redis" or "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// AutosaveConfig tunes the debounce window.
type AutosaveConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig is the observability listener.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// StalenessConfig bounds how long a silent Running node goes unflagged.
type StalenessConfig struct {
	Limit time.Duration `yaml:"limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Executor: ExecutorConfig{
			URL:             "ws://localhost:8500/ws",
			BackoffBase:     500 * time.Millisecond,
			BackoffCeiling:  30 * time.Second,
			BackoffAttempts: 10,
			RESTBaseURL:     "http://localhost:8500",
		},
		Storage: StorageConfig{
			Backend:     "file",
			Path:        "",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "atelier:",
		},
		Autosave:  AutosaveConfig{Interval: 2 * time.Second},
		HTTP:      HTTPConfig{Listen: "localhost:9090"},
		Staleness: StalenessConfig{Limit: 5 * time.Minute},
		LogLevel:  "info",
	}
}

// Load reads configuration: defaults, then the YAML file (if present),
// then .env, then environment variables, each layer overriding the last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("error reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing YAML: %w", err)
		}
	}

	// .env is optional developer convenience; missing is not an error.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ATELIER_EXECUTOR_URL"); v != "" {
		cfg.Executor.URL = v
	}
	if v := os.Getenv("ATELIER_EXECUTOR_REST_URL"); v != "" {
		cfg.Executor.RESTBaseURL = v
	}
	if v := os.Getenv("ATELIER_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ATELIER_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ATELIER_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("ATELIER_REDIS_PASSWORD"); v != "" {
		cfg.Storage.RedisPassword = v
	}
	if v := os.Getenv("ATELIER_HTTP_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := os.Getenv("ATELIER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Executor.URL == "" {
		return fmt.Errorf("executor url must be set")
	}
	if c.Executor.BackoffAttempts < 1 {
		return fmt.Errorf("backoff attempts must be at least 1")
	}
	return nil
}
