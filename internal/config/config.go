// ABOUTME: Configuration loading and parsing for flowstarter-console
// ABOUTME: Supports YAML or TOML files with env var expansion, FLOWSTARTER_* overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "FLOWSTARTER_CONFIG"

// Defaults applied when a section leaves a value empty.
const (
	DefaultFlowStarterAPI  = "http://localhost:8000"
	DefaultSessionDuration = 7 * 24 * time.Hour
	DefaultMetricsPath     = "/metrics"
	DefaultLocale          = "en"
)

// Config represents the complete flowstarter-console configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Upstream    UpstreamConfig    `yaml:"upstream" toml:"upstream"`
	Flowstarter FlowstarterConfig `yaml:"flowstarter" toml:"flowstarter"`
	Console     ConsoleConfig     `yaml:"console" toml:"console"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"FLOWSTARTER_TAILSCALE_ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" env:"FLOWSTARTER_TAILSCALE_HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"TS_AUTHKEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	CertFile  string `yaml:"cert_file" toml:"cert_file"` // TLS cert file (generate via: tailscale cert <hostname>)
	KeyFile   string `yaml:"key_file" toml:"key_file"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"FLOWSTARTER_HTTP_ADDR"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"FLOWSTARTER_DATABASE_PATH"`
}

// UpstreamConfig holds the defaults for the remote billing API. Operators
// can override every value from the console's settings page.
type UpstreamConfig struct {
	BaseURL  string        `yaml:"base_url" toml:"base_url" env:"FLOWSTARTER_UPSTREAM_BASE_URL"`
	AdminKey string        `yaml:"admin_key" toml:"admin_key" env:"FLOWSTARTER_UPSTREAM_ADMIN_KEY"`
	AppID    string        `yaml:"app_id" toml:"app_id" env:"FLOWSTARTER_UPSTREAM_APP_ID"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling; empty means no client timeout
	TimeoutRaw string `yaml:"timeout" toml:"timeout" env:"FLOWSTARTER_UPSTREAM_TIMEOUT"`
}

// FlowstarterConfig points at the flow-starter deployment used by the
// testing page.
type FlowstarterConfig struct {
	APIURL string `yaml:"api_url" toml:"api_url" env:"NEXT_PUBLIC_FLOW_STARTER_API"`
}

// ConsoleConfig holds web console configuration
type ConsoleConfig struct {
	// BaseURL is the external URL of the console (used for invite links and
	// the passkey relying party). Auto-detected when empty.
	BaseURL string `yaml:"base_url" toml:"base_url" env:"FLOWSTARTER_CONSOLE_BASE_URL"`

	// SessionSecret signs the flash/tab cookie. Generated per process when empty.
	SessionSecret string `yaml:"session_secret" toml:"session_secret" env:"FLOWSTARTER_SESSION_SECRET"`

	Locale string `yaml:"locale" toml:"locale" env:"FLOWSTARTER_LOCALE"`

	SessionDuration    time.Duration `yaml:"-" toml:"-"`
	SessionDurationRaw string        `yaml:"session_duration" toml:"session_duration" env:"FLOWSTARTER_SESSION_DURATION"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"FLOWSTARTER_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FLOWSTARTER_LOG_FORMAT"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"FLOWSTARTER_METRICS_ENABLED"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config (and in the working directory) is loaded
// first. Environment variables in the format ${VAR_NAME} are expanded, then
// FLOWSTARTER_* variables override file values.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config bytes. The format is chosen by the extension of
// name: .toml selects TOML, anything else YAML.
func Parse(name string, data []byte) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads each .env file that exists. Variables already present in
// the environment win.
func loadDotEnv(paths ...string) {
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		_ = godotenv.Load(abs)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Flowstarter.APIURL == "" {
		c.Flowstarter.APIURL = DefaultFlowStarterAPI
	}
	if c.Console.SessionDuration == 0 {
		c.Console.SessionDuration = DefaultSessionDuration
	}
	if c.Console.Locale == "" {
		c.Console.Locale = DefaultLocale
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Upstream.BaseURL != "" {
		if err := validateHTTPURL(c.Upstream.BaseURL); err != nil {
			return fmt.Errorf("upstream.base_url: %w", err)
		}
	}
	if c.Flowstarter.APIURL != "" {
		if err := validateHTTPURL(c.Flowstarter.APIURL); err != nil {
			return fmt.Errorf("flowstarter.api_url: %w", err)
		}
	}
	if c.Console.BaseURL != "" {
		if err := validateHTTPURL(c.Console.BaseURL); err != nil {
			return fmt.Errorf("console.base_url: %w", err)
		}
	}

	if s := c.Console.SessionSecret; s != "" && len(s) < 32 {
		return fmt.Errorf("console.session_secret must be at least 32 bytes")
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Upstream.TimeoutRaw != "" {
		cfg.Upstream.Timeout, err = time.ParseDuration(cfg.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream.timeout %q: %w", cfg.Upstream.TimeoutRaw, err)
		}
	}

	if cfg.Console.SessionDurationRaw != "" {
		cfg.Console.SessionDuration, err = time.ParseDuration(cfg.Console.SessionDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing console.session_duration %q: %w", cfg.Console.SessionDurationRaw, err)
		}
		if cfg.Console.SessionDuration <= 0 {
			return fmt.Errorf("console.session_duration must be positive")
		}
	}

	return nil
}

// DefaultPath returns the config file location: $FLOWSTARTER_CONFIG, then
// $XDG_CONFIG_HOME/flowstarter/console.yaml, then ~/.config/flowstarter/console.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flowstarter", "console.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "flowstarter", "console.yaml")
	}
	return filepath.Join(home, ".config", "flowstarter", "console.yaml")
}

// DefaultDataDir returns the directory for the console database:
// $XDG_DATA_HOME/flowstarter, else ~/.local/share/flowstarter.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "flowstarter")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "flowstarter")
	}
	return filepath.Join(home, ".local", "share", "flowstarter")
}
