// Package config loads browtool configuration from YAML files and
// environment overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation.
const (
	DefaultBind             = "127.0.0.1:8077"
	DefaultPythonBin        = "python3"
	DefaultSlowMoMillis     = 1000
	DefaultMaxArtifactBytes = 2_000_000
	DefaultExcerptBytes     = 2000
	DefaultMaxTextChars     = 20000
	DefaultMaxLinks         = 50
	DefaultMaxLinkTextChars = 200
	DefaultRunRate          = 1.0
	DefaultRunBurst         = 3
)

// Config is the complete browtool configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Runner    RunnerConfig    `yaml:"runner"`
	Digest    DigestConfig    `yaml:"digest"`
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP/WebSocket API server.
type ServerConfig struct {
	Bind           string   `yaml:"bind"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	PublicMetrics  bool     `yaml:"public_metrics"`

	// RunRate and RunBurst shape the token bucket throttling the blocking
	// run endpoint.
	RunRate  float64 `yaml:"run_rate"`
	RunBurst int     `yaml:"run_burst"`
}

// StorageConfig locates the tool database.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// RunnerConfig shapes script execution.
type RunnerConfig struct {
	PythonBin    string        `yaml:"python_bin"`
	Headless     bool          `yaml:"headless"`
	SlowMoMillis int           `yaml:"slow_mo_ms"`
	Capture      CaptureConfig `yaml:"capture"`

	// TimeoutSecs is an optional wall-clock budget for a run. Zero keeps
	// the historical behavior: a hung script blocks indefinitely.
	TimeoutSecs int `yaml:"timeout_secs"`
}

// CaptureConfig bounds the HTML capture pipeline.
type CaptureConfig struct {
	MaxArtifactBytes int64 `yaml:"max_artifact_bytes"`
	ExcerptBytes     int   `yaml:"excerpt_bytes"`
	LoadTimeoutSecs  int   `yaml:"load_timeout_secs"`
	IdleTimeoutSecs  int   `yaml:"idle_timeout_secs"`
	SettleSecs       int   `yaml:"settle_secs"`
}

// DigestConfig bounds HTML digest extraction.
type DigestConfig struct {
	MaxTextChars     int `yaml:"max_text_chars"`
	MaxLinks         int `yaml:"max_links"`
	MaxLinkTextChars int `yaml:"max_link_text_chars"`
}

// BusConfig selects and configures the event bus.
type BusConfig struct {
	Driver string     `yaml:"driver"`
	NATS   NATSConfig `yaml:"nats"`
}

// NATSConfig configures the NATS bus driver.
type NATSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// TelemetryConfig toggles instrumentation.
type TelemetryConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	LogPath        string `yaml:"log_path"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	baseDir := filepath.Join(home, ".browtool")

	return &Config{
		Server: ServerConfig{
			Bind:     DefaultBind,
			RunRate:  DefaultRunRate,
			RunBurst: DefaultRunBurst,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(baseDir, "browtool.db"),
		},
		Runner: RunnerConfig{
			PythonBin:    DefaultPythonBin,
			Headless:     false,
			SlowMoMillis: DefaultSlowMoMillis,
			Capture: CaptureConfig{
				MaxArtifactBytes: DefaultMaxArtifactBytes,
				ExcerptBytes:     DefaultExcerptBytes,
				LoadTimeoutSecs:  15,
				IdleTimeoutSecs:  10,
				SettleSecs:       3,
			},
		},
		Digest: DigestConfig{
			MaxTextChars:     DefaultMaxTextChars,
			MaxLinks:         DefaultMaxLinks,
			MaxLinkTextChars: DefaultMaxLinkTextChars,
		},
		Bus: BusConfig{
			Driver: "memory",
			NATS: NATSConfig{
				URL:  "nats://localhost:4222",
				Name: "browtool",
			},
		},
		Telemetry: TelemetryConfig{
			LogPath: filepath.Join(baseDir, "logs"),
		},
	}
}

// Load builds the effective configuration: defaults, then the user config
// file, then the project config file, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".browtool", "config.yaml"),
		filepath.Join(".browtool", "config.yaml"),
	}
	for _, path := range paths {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads exactly one config file over the defaults, then
// applies environment overrides. Unlike the implicit search paths in Load,
// the named file must exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BROWTOOL_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("BROWTOOL_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("BROWTOOL_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("BROWTOOL_PYTHON"); v != "" {
		c.Runner.PythonBin = v
	}
	if v := os.Getenv("BROWTOOL_HEADLESS"); v != "" {
		c.Runner.Headless = parseBool(v, c.Runner.Headless)
	}
	if v := os.Getenv("BROWTOOL_SLOW_MO_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Runner.SlowMoMillis = n
		}
	}
	if v := os.Getenv("BROWTOOL_HTML_CAPTURE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Runner.Capture.MaxArtifactBytes = n
		}
	}
	if v := os.Getenv("BROWTOOL_HTML_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Digest.MaxTextChars = n
		}
	}
	if v := os.Getenv("BROWTOOL_NATS_URL"); v != "" {
		c.Bus.Driver = "nats"
		c.Bus.NATS.URL = v
	}
	if v := os.Getenv("BROWTOOL_TRACING"); v != "" {
		c.Telemetry.TracingEnabled = parseBool(v, c.Telemetry.TracingEnabled)
	}
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("storage.db_path cannot be empty")
	}
	if strings.TrimSpace(c.Runner.PythonBin) == "" {
		return fmt.Errorf("runner.python_bin cannot be empty")
	}
	if c.Runner.SlowMoMillis < 0 {
		return fmt.Errorf("runner.slow_mo_ms cannot be negative")
	}
	if c.Runner.Capture.MaxArtifactBytes <= 0 {
		return fmt.Errorf("runner.capture.max_artifact_bytes must be positive")
	}
	if c.Server.RunRate <= 0 {
		return fmt.Errorf("server.run_rate must be positive")
	}
	if c.Server.RunBurst <= 0 {
		return fmt.Errorf("server.run_burst must be positive")
	}
	if bindErr := validateBind(c.Server.Bind, c.Server.AuthToken); bindErr != nil {
		return bindErr
	}
	switch c.Bus.Driver {
	case "", "memory", "nats":
	default:
		return fmt.Errorf("bus.driver must be memory or nats, got %q", c.Bus.Driver)
	}
	return nil
}

// validateBind refuses non-loopback binds without an auth token: the run
// endpoint executes arbitrary scripts.
func validateBind(bind, authToken string) error {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return fmt.Errorf("server.bind %q is not host:port: %w", bind, err)
	}
	if authToken != "" {
		return nil
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("server.bind %q is not loopback; set server.auth_token to expose browtool beyond localhost", bind)
}
