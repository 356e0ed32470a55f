// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads controller configuration from defaults, an optional
// YAML file and ZENTHIA_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uptimizeai/zenthia/internal/controller/agent"
	"github.com/uptimizeai/zenthia/pkg/errors"
)

// Config is the controller configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Auth          AuthConfig          `yaml:"auth"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is host:port or unix:///path (default "127.0.0.1:9880").
	Addr string `yaml:"addr"`

	// AllowRemote permits binding beyond loopback.
	AllowRemote bool `yaml:"allow_remote"`

	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	CORS CORSConfig `yaml:"cors"`

	// PIDFile, when set, is locked for the life of the process.
	PIDFile string `yaml:"pid_file"`
}

// CORSConfig lets browser portals on other origins call the API.
type CORSConfig struct {
	// AllowedOrigins lists permitted origins; empty disables CORS.
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`
}

// PipelineConfig configures run tracking and execution.
type PipelineConfig struct {
	// EvictionDelay is how long a finished run stays queryable (default 60s).
	EvictionDelay time.Duration `yaml:"eviction_delay"`

	// StaleAfter is the age past which a running run is reaped (default 30m).
	StaleAfter time.Duration `yaml:"stale_after"`

	// ReapInterval is how often the reaper sweeps (default 5m).
	ReapInterval time.Duration `yaml:"reap_interval"`

	// StageTimeout bounds each agent call (default 5m).
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// CancelOnTimeout cancels the whole run when a stage times out.
	// When false the run is marked failed and its signal is left alone.
	CancelOnTimeout bool `yaml:"cancel_on_timeout"`

	// Agents are the pipeline stages, in order.
	Agents []agent.Config `yaml:"agents"`
}

// AuthConfig configures API authentication and rate limiting.
// Authentication is disabled when neither APIToken nor JWTSecret is set.
type AuthConfig struct {
	APIToken    string          `yaml:"api_token"`
	JWTSecret   string          `yaml:"jwt_secret"`
	JWTIssuer   string          `yaml:"jwt_issuer"`
	JWTAudience string          `yaml:"jwt_audience"`
	CookieName  string          `yaml:"cookie_name"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// History backends.
const (
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
)

// HistoryConfig configures the archive of finished runs.
type HistoryConfig struct {
	// Backend is memory or sqlite.
	Backend string `yaml:"backend"`

	// Path is the sqlite database file. Defaults to history.db in the data dir.
	Path string `yaml:"path"`

	// Retention is how long finished runs are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`

	// Buffer is how many finished runs may wait to be written.
	Buffer int `yaml:"buffer"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:9880",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: PipelineConfig{
			EvictionDelay: 60 * time.Second,
			StaleAfter:    30 * time.Minute,
			ReapInterval:  5 * time.Minute,
			StageTimeout:  5 * time.Minute,
		},
		Auth: AuthConfig{
			CookieName: "zenthia_session",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		History: HistoryConfig{
			Backend:   HistoryMemory,
			Retention: 7 * 24 * time.Hour,
			Buffer:    256,
		},
		Observability: ObservabilityConfig{
			ServiceName: "zenthia",
			Exporter:    "none",
			SampleRate:  1.0,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at
// configPath (if non-empty) and the environment, then validates it.
// Errors are *errors.ConfigError.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &errors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HistoryPath returns the sqlite path, falling back to the data directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(DataDir(), "history.db")
}

// applyDefaults fills zero values left by a partial YAML file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.Pipeline.EvictionDelay == 0 {
		c.Pipeline.EvictionDelay = d.Pipeline.EvictionDelay
	}
	if c.Pipeline.StaleAfter == 0 {
		c.Pipeline.StaleAfter = d.Pipeline.StaleAfter
	}
	if c.Pipeline.ReapInterval == 0 {
		c.Pipeline.ReapInterval = d.Pipeline.ReapInterval
	}
	if c.Pipeline.StageTimeout == 0 {
		c.Pipeline.StageTimeout = d.Pipeline.StageTimeout
	}

	if c.Auth.CookieName == "" {
		c.Auth.CookieName = d.Auth.CookieName
	}
	if c.Auth.RateLimit.RequestsPerSecond == 0 {
		c.Auth.RateLimit.RequestsPerSecond = d.Auth.RateLimit.RequestsPerSecond
	}
	if c.Auth.RateLimit.Burst == 0 {
		c.Auth.RateLimit.Burst = d.Auth.RateLimit.Burst
	}

	if c.History.Backend == "" {
		c.History.Backend = d.History.Backend
	}
	if c.History.Buffer == 0 {
		c.History.Buffer = d.History.Buffer
	}

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = d.Observability.ServiceName
	}
	if c.Observability.Exporter == "" {
		c.Observability.Exporter = d.Observability.Exporter
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies environment overrides. Unparseable values are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("ZENTHIA_ADDR"); val != "" {
		c.Server.Addr = val
	}
	envBool("ZENTHIA_ALLOW_REMOTE", &c.Server.AllowRemote)
	envDuration("ZENTHIA_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("ZENTHIA_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	envBool("LOG_SOURCE", &c.Log.AddSource)
	if val := os.Getenv("ZENTHIA_DEBUG"); isTrue(val) {
		c.Log.Level = "debug"
	}

	envDuration("ZENTHIA_EVICTION_DELAY", &c.Pipeline.EvictionDelay)
	envDuration("ZENTHIA_STALE_AFTER", &c.Pipeline.StaleAfter)
	envDuration("ZENTHIA_REAP_INTERVAL", &c.Pipeline.ReapInterval)
	envDuration("ZENTHIA_STAGE_TIMEOUT", &c.Pipeline.StageTimeout)
	envBool("ZENTHIA_CANCEL_ON_TIMEOUT", &c.Pipeline.CancelOnTimeout)

	if val := os.Getenv("ZENTHIA_CORS_ORIGINS"); val != "" {
		c.Server.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.CORS.AllowedOrigins = append(c.Server.CORS.AllowedOrigins, o)
			}
		}
	}
	if val := os.Getenv("ZENTHIA_API_TOKEN"); val != "" {
		c.Auth.APIToken = val
	}
	if val := os.Getenv("ZENTHIA_JWT_SECRET"); val != "" {
		c.Auth.JWTSecret = val
	}
	envBool("ZENTHIA_RATE_LIMIT_ENABLED", &c.Auth.RateLimit.Enabled)

	if val := os.Getenv("ZENTHIA_HISTORY_BACKEND"); val != "" {
		c.History.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("ZENTHIA_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}
	envDuration("ZENTHIA_HISTORY_RETENTION", &c.History.Retention)

	envBool("ZENTHIA_TRACING_ENABLED", &c.Observability.Enabled)
	if val := os.Getenv("ZENTHIA_TRACING_EXPORTER"); val != "" {
		c.Observability.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Observability.Endpoint = val
	}
	if val := os.Getenv("OTEL_SERVICE_NAME"); val != "" {
		c.Observability.ServiceName = val
	}
}

// Validate checks the configuration. The returned error is an
// *errors.ConfigError naming the first offending key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return invalid("server.addr", "must not be empty")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return invalid("server.tls_cert", "tls_cert and tls_key must be set together")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", fmt.Sprintf("must be positive, got %v", c.Server.ShutdownTimeout))
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level", fmt.Sprintf("must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", fmt.Sprintf("must be one of [json, text], got %q", c.Log.Format))
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"pipeline.eviction_delay", c.Pipeline.EvictionDelay},
		{"pipeline.stale_after", c.Pipeline.StaleAfter},
		{"pipeline.reap_interval", c.Pipeline.ReapInterval},
		{"pipeline.stage_timeout", c.Pipeline.StageTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return invalid(d.key, fmt.Sprintf("must be positive, got %v", d.val))
		}
	}

	seen := make(map[string]bool, len(c.Pipeline.Agents))
	for i, a := range c.Pipeline.Agents {
		if err := a.Validate(); err != nil {
			return &errors.ConfigError{
				Key:    fmt.Sprintf("pipeline.agents[%d]", i),
				Reason: err.Error(),
				Cause:  err,
			}
		}
		if seen[a.Name] {
			return invalid(fmt.Sprintf("pipeline.agents[%d].name", i), fmt.Sprintf("duplicate agent name %q", a.Name))
		}
		seen[a.Name] = true
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return invalid("auth.jwt_secret", "must be at least 32 characters")
	}
	if c.Auth.RateLimit.Enabled {
		if c.Auth.RateLimit.RequestsPerSecond <= 0 {
			return invalid("auth.rate_limit.requests_per_second", "must be positive")
		}
		if c.Auth.RateLimit.Burst <= 0 {
			return invalid("auth.rate_limit.burst", "must be positive")
		}
	}

	switch c.History.Backend {
	case HistoryMemory, HistorySQLite:
	default:
		return invalid("history.backend", fmt.Sprintf("must be one of [memory, sqlite], got %q", c.History.Backend))
	}
	if c.History.Retention < 0 {
		return invalid("history.retention", "must not be negative")
	}

	switch c.Observability.Exporter {
	case "none", "stdout", "otlp-http", "otlp-grpc":
	default:
		return invalid("observability.exporter",
			fmt.Sprintf("must be one of [none, stdout, otlp-http, otlp-grpc], got %q", c.Observability.Exporter))
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return invalid("observability.sample_rate", fmt.Sprintf("must be between 0 and 1, got %v", c.Observability.SampleRate))
	}

	return nil
}

// DataDir returns the directory for persistent controller state.
func DataDir() string {
	if dir := os.Getenv("ZENTHIA_DATA_DIR"); dir != "" {
		return dir
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "zenthia")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "zenthia-data")
	}
	return filepath.Join(home, ".zenthia", "data")
}

func invalid(key, reason string) error {
	return &errors.ConfigError{Key: key, Reason: reason}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func isTrue(val string) bool {
	b, err := strconv.ParseBool(val)
	return err == nil && b
}
