// Package config loads the onerpc server configuration.
//
// Values are layered: built-in defaults, then an optional YAML or TOML file,
// then ONERPC_* environment variables. A .env file in the working directory
// is loaded into the environment first and never overrides variables that
// are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvListen      = "ONERPC_LISTEN"
	EnvLogLevel    = "ONERPC_LOG_LEVEL"
	EnvLogFormat   = "ONERPC_LOG_FORMAT"
	EnvDebugErrors = "ONERPC_DEBUG_ERRORS"
)

type Config struct {
	Listen string `yaml:"listen" toml:"listen"`
	// DebugErrors adds handler stacks to error replies. Development only.
	DebugErrors bool `yaml:"debug_errors" toml:"debug_errors"`
	// Compression gzips HTTP replies for clients that accept it.
	Compression bool `yaml:"compression" toml:"compression"`
	// MaxMessageSize bounds one HTTP body or WebSocket message, in bytes.
	// Zero means no limit.
	MaxMessageSize int64 `yaml:"max_message_size" toml:"max_message_size"`

	Log       LogConfig       `yaml:"log" toml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security" toml:"security"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn or error
	Format string `yaml:"format" toml:"format"` // text or json
}

// TelemetryConfig turns on OpenTelemetry traces and metrics written to
// stdout.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// MetricInterval is the metric export period in seconds.
	MetricInterval int `yaml:"metric_interval" toml:"metric_interval"`
}

// RateLimitConfig is a token bucket shared by all RPC traffic. A zero RPS
// disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

type SecurityConfig struct {
	HSTS bool `yaml:"hsts" toml:"hsts"`
	// AllowedOrigins enables CORS for these browser origins. They are also
	// accepted as WebSocket origins.
	AllowedOrigins   []string `yaml:"allowed_origins" toml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials" toml:"allow_credentials"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Listen:      ":8085",
		Compression: true,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			MetricInterval: 60,
		},
		Security: SecurityConfig{
			HSTS: true,
		},
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("config: %s: unsupported file type %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv(EnvListen); ok {
		c.Listen = v
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookupEnv(EnvLogFormat); ok {
		c.Log.Format = v
	}
	if v, ok := lookupEnv(EnvDebugErrors); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDebugErrors, err)
		}
		c.DebugErrors = b
	}
	return nil
}

// lookupEnv treats an empty variable as unset.
func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("config: listen address required")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.MaxMessageSize < 0 {
		return errors.New("config: max_message_size must be >= 0")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit values must be >= 0")
	}
	if c.Telemetry.Enabled && c.Telemetry.MetricInterval <= 0 {
		return errors.New("config: telemetry.metric_interval must be > 0")
	}
	for _, origin := range c.Security.AllowedOrigins {
		if origin == "*" && c.Security.AllowCredentials {
			return errors.New("config: allow_credentials cannot be combined with origin \"*\"")
		}
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", l.Level)
	}
	return level, nil
}
