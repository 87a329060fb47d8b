// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, overrides and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "console.yaml", `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

upstream:
  base_url: "https://billing.example.com"
  admin_key: "admin-123"
  app_id: "app-main"
  timeout: "45s"

flowstarter:
  api_url: "https://flows.example.com"

console:
  base_url: "https://console.example.com"
  session_duration: "12h"
  locale: "it"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Upstream.BaseURL != "https://billing.example.com" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.AdminKey != "admin-123" {
		t.Errorf("Upstream.AdminKey = %q", cfg.Upstream.AdminKey)
	}
	if cfg.Upstream.AppID != "app-main" {
		t.Errorf("Upstream.AppID = %q", cfg.Upstream.AppID)
	}
	if cfg.Upstream.Timeout != 45*time.Second {
		t.Errorf("Upstream.Timeout = %v, want %v", cfg.Upstream.Timeout, 45*time.Second)
	}
	if cfg.Flowstarter.APIURL != "https://flows.example.com" {
		t.Errorf("Flowstarter.APIURL = %q", cfg.Flowstarter.APIURL)
	}
	if cfg.Console.SessionDuration != 12*time.Hour {
		t.Errorf("Console.SessionDuration = %v, want %v", cfg.Console.SessionDuration, 12*time.Hour)
	}
	if cfg.Console.Locale != "it" {
		t.Errorf("Console.Locale = %q, want %q", cfg.Console.Locale, "it")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_FLOW_STARTER_API", "")
	os.Unsetenv("NEXT_PUBLIC_FLOW_STARTER_API")

	configPath := writeConfig(t, "console.yaml", `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Flowstarter.APIURL != DefaultFlowStarterAPI {
		t.Errorf("Flowstarter.APIURL = %q, want %q", cfg.Flowstarter.APIURL, DefaultFlowStarterAPI)
	}
	if cfg.Console.SessionDuration != DefaultSessionDuration {
		t.Errorf("Console.SessionDuration = %v, want %v", cfg.Console.SessionDuration, DefaultSessionDuration)
	}
	if cfg.Console.Locale != DefaultLocale {
		t.Errorf("Console.Locale = %q, want %q", cfg.Console.Locale, DefaultLocale)
	}
	if cfg.Upstream.Timeout != 0 {
		t.Errorf("Upstream.Timeout = %v, want 0", cfg.Upstream.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "console.toml", `
[server]
http_addr = "0.0.0.0:9090"

[database]
path = "./console.db"

[upstream]
base_url = "http://localhost:9000/"
timeout = "10s"

[console]
session_duration = "1h"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}
	if cfg.Upstream.BaseURL != "http://localhost:9000/" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.Timeout != 10*time.Second {
		t.Errorf("Upstream.Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Console.SessionDuration != time.Hour {
		t.Errorf("Console.SessionDuration = %v", cfg.Console.SessionDuration)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ADMIN_KEY", "key-from-env")
	t.Setenv("TEST_SESSION_SECRET", strings.Repeat("s", 32))

	configPath := writeConfig(t, "console.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
upstream:
  admin_key: "${TEST_ADMIN_KEY}"
console:
  session_secret: "${TEST_SESSION_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.AdminKey != "key-from-env" {
		t.Errorf("Upstream.AdminKey = %q, want %q", cfg.Upstream.AdminKey, "key-from-env")
	}
	if cfg.Console.SessionSecret != strings.Repeat("s", 32) {
		t.Errorf("Console.SessionSecret = %q", cfg.Console.SessionSecret)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FLOWSTARTER_UPSTREAM_BASE_URL", "https://override.example.com")
	t.Setenv("FLOWSTARTER_LOG_LEVEL", "warn")
	t.Setenv("FLOWSTARTER_SESSION_DURATION", "30m")

	configPath := writeConfig(t, "console.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
upstream:
  base_url: "https://file.example.com"
logging:
  level: "debug"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.BaseURL != "https://override.example.com" {
		t.Errorf("Upstream.BaseURL = %q, want override", cfg.Upstream.BaseURL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Console.SessionDuration != 30*time.Minute {
		t.Errorf("Console.SessionDuration = %v, want %v", cfg.Console.SessionDuration, 30*time.Minute)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_DOTENV_APP_ID", "")
	os.Unsetenv("TEST_DOTENV_APP_ID")
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_APP_ID") })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TEST_DOTENV_APP_ID=app-from-dotenv\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	configPath := filepath.Join(dir, "console.yaml")
	content := `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
upstream:
  app_id: "${TEST_DOTENV_APP_ID}"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.AppID != "app-from-dotenv" {
		t.Errorf("Upstream.AppID = %q, want %q", cfg.Upstream.AppID, "app-from-dotenv")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/console.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "console.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  invalid yaml here
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "console.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
upstream:
  timeout: "not-a-duration"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing http_addr",
			configContent: `
server:
  http_addr: ""
database:
  path: "./test.db"
`,
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "missing database path",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: ""
`,
			wantErrSubstr: "database.path is required",
		},
		{
			name: "bad upstream url",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
upstream:
  base_url: "ftp://billing"
`,
			wantErrSubstr: "upstream.base_url",
		},
		{
			name: "short session secret",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
console:
  session_secret: "short"
`,
			wantErrSubstr: "console.session_secret must be at least 32 bytes",
		},
		{
			name: "unknown log format",
			configContent: `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
logging:
  format: "xml"
`,
			wantErrSubstr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "console.yaml", tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single env var", "${FOO}", "bar"},
		{"env var with surrounding text", "prefix-${FOO}-suffix", "prefix-bar-suffix"},
		{"multiple env vars", "${FOO}/${BAZ}", "bar/qux"},
		{"no env vars", "no-vars-here", "no-vars-here"},
		{"unset env var", "${UNSET_VAR}", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidate_TailscaleConfig(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		wantErr       bool
		wantErrSubstr string
	}{
		{
			name: "tailscale enabled allows empty server address",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true, Hostname: "flowstarter-console"},
				Database:  DatabaseConfig{Path: "./test.db"},
			},
		},
		{
			name: "tailscale enabled requires hostname",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true},
				Database:  DatabaseConfig{Path: "./test.db"},
			},
			wantErr:       true,
			wantErrSubstr: "tailscale.hostname is required",
		},
		{
			name: "tailscale disabled requires server address",
			cfg: Config{
				Tailscale: TailscaleConfig{Hostname: "flowstarter-console"},
				Database:  DatabaseConfig{Path: "./test.db"},
			},
			wantErr:       true,
			wantErrSubstr: "server.http_addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
				}
				if !strings.Contains(err.Error(), tt.wantErrSubstr) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/flowstarter/console.yaml")
	if got := DefaultPath(); got != "/etc/flowstarter/console.yaml" {
		t.Errorf("DefaultPath() = %q, want explicit path", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "flowstarter", "console.yaml") {
		t.Errorf("DefaultPath() = %q, want XDG path", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/op")
	if got := DefaultPath(); got != filepath.Join("/home/op", ".config", "flowstarter", "console.yaml") {
		t.Errorf("DefaultPath() = %q, want home path", got)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultDataDir(); got != filepath.Join("/data", "flowstarter") {
		t.Errorf("DefaultDataDir() = %q", got)
	}
}
