package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with the ONERPC_* variables
// unset, restoring both afterwards.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{EnvListen, EnvLogLevel, EnvLogFormat, EnvDebugErrors} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8085", cfg.Listen)
	assert.True(t, cfg.Compression)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.Zero(t, cfg.MaxMessageSize)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadYAML(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "onerpc.yaml", `
listen: "127.0.0.1:9000"
compression: false
log:
  level: debug
rate_limit:
  rps: 50
  burst: 10
security:
  allowed_origins: ["https://app.example"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.False(t, cfg.Compression)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep their defaults")
	assert.Equal(t, RateLimitConfig{RPS: 50, Burst: 10}, cfg.RateLimit)
	assert.Equal(t, []string{"https://app.example"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Security.HSTS)
}

func TestLoadTOML(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "onerpc.toml", `
listen = ":7000"
debug_errors = true

[log]
format = "json"

[telemetry]
enabled = true
metric_interval = 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.True(t, cfg.DebugErrors)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, TelemetryConfig{Enabled: true, MetricInterval: 5}, cfg.Telemetry)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "onerpc.yml", "listen: \":9000\"\nlog:\n  level: debug\n")
	t.Setenv(EnvListen, ":9100")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvDebugErrors, "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.DebugErrors)
}

func TestDotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, ".env", "ONERPC_LOG_LEVEL=warn\nONERPC_LISTEN=:9200\n")
	// Variables already in the environment win over .env.
	t.Setenv(EnvListen, ":9300")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":9300", cfg.Listen)
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	tests := map[string]struct {
		file string
		body string
		env  string
	}{
		"missing file":       {file: "absent.yaml"},
		"unknown extension":  {file: "onerpc.ini", body: "listen=:1"},
		"bad yaml":           {file: "bad.yaml", body: "listen: [\n"},
		"bad toml":           {file: "bad.toml", body: "listen = \n"},
		"unknown level":      {file: "level.yaml", body: "log:\n  level: loud\n"},
		"unknown format":     {file: "format.yaml", body: "log:\n  format: xml\n"},
		"negative rate":      {file: "rate.yaml", body: "rate_limit:\n  rps: -1\n"},
		"wildcard and creds": {file: "cors.yaml", body: "security:\n  allowed_origins: [\"*\"]\n  allow_credentials: true\n"},
		"bad debug env":      {env: "maybe"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var path string
			if tt.file != "" {
				path = filepath.Join(dir, tt.file)
				if tt.body != "" {
					writeFile(t, dir, tt.file, tt.body)
				}
			}
			if tt.env != "" {
				t.Setenv(EnvDebugErrors, tt.env)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Listen = " "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.MetricInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxMessageSize = -1
	assert.Error(t, cfg.Validate())
}
