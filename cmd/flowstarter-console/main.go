// ABOUTME: Entry point for the flowstarter-console admin server
// ABOUTME: Commands: serve, init, bootstrap, health and version

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/flowstarter/flowstarter-console/internal/config"
	"github.com/flowstarter/flowstarter-console/internal/console"
	"github.com/flowstarter/flowstarter-console/internal/server"
	"github.com/flowstarter/flowstarter-console/internal/store"
)

// version is set at build time.
var version = "dev"

const banner = `
  __ _                   _             _
 / _| | _____      _____| |_ __ _ _ __| |_ ___ _ __
| |_| |/ _ \ \ /\ / / __| __/ _' | '__| __/ _ \ '__|
|  _| | (_) \ V  V /\__ \ || (_| | |  | ||  __/ |
|_| |_|\___/ \_/\_/ |___/\__\__,_|_|   \__\___|_|   console
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	case "version", "--version", "-v":
		fmt.Printf("flowstarter-console %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: flowstarter-console <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve       Start the console server")
	fmt.Println("  init        Create a new config file interactively")
	fmt.Println("  bootstrap   Create the config if missing and print the first operator invite")
	fmt.Println("  health      Check console readiness")
	fmt.Println("  version     Print the version")
	fmt.Println()
	fmt.Printf("Config: %s (override with %s)\n", config.DefaultPath(), config.EnvConfigPath)
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Upstream.BaseURL != "" {
		fmt.Printf("Upstream:  %s\n", cfg.Upstream.BaseURL)
	} else {
		fmt.Print("Upstream:  ")
		yellow.Println("not set, operators configure it per session")
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting flowstarter-console",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	color.Green("ready")
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// newSessionSecret returns a random secret long enough for console.session_secret.
func newSessionSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// renderConfig writes a YAML config document.
func renderConfig(httpAddr, dbPath, upstreamURL, appID, secret, logLevel, logFormat string) string {
	var b strings.Builder
	b.WriteString("# flowstarter-console configuration\n\n")
	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n\n", httpAddr)
	b.WriteString("database:\n")
	fmt.Fprintf(&b, "  path: %q\n\n", dbPath)
	b.WriteString("upstream:\n")
	fmt.Fprintf(&b, "  base_url: %q\n", upstreamURL)
	b.WriteString("  admin_key: \"${FLOWSTARTER_ADMIN_KEY}\"\n")
	fmt.Fprintf(&b, "  app_id: %q\n\n", appID)
	b.WriteString("flowstarter:\n")
	fmt.Fprintf(&b, "  api_url: %q\n\n", config.DefaultFlowStarterAPI)
	b.WriteString("console:\n")
	fmt.Fprintf(&b, "  session_secret: %q\n", secret)
	b.WriteString("  session_duration: \"168h\"\n\n")
	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", logLevel)
	fmt.Fprintf(&b, "  format: %q\n\n", logFormat)
	b.WriteString("metrics:\n")
	b.WriteString("  enabled: false\n")
	fmt.Fprintf(&b, "  path: %q\n", config.DefaultMetricsPath)
	return b.String()
}

// runBootstrap performs first-time setup:
// 1. Creates the config file with a random session secret (if missing)
// 2. Creates the database
// 3. Prints a one-time invite link for the first operator
func runBootstrap(ctx context.Context) error {
	configPath := config.DefaultPath()
	dbPath := filepath.Join(config.DefaultDataDir(), "console.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		secret, err := newSessionSecret()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		content := renderConfig("localhost:8080", dbPath, "", "", secret, "info", "text")
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	count, err := s.CountOperators(ctx)
	if err != nil {
		return fmt.Errorf("checking operators: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d operator(s) exist", count)
	}

	token, err := console.NewInvite(ctx, s, "", time.Now().UTC())
	if err != nil {
		return fmt.Errorf("creating invite: %w", err)
	}
	baseURL := cfg.Console.BaseURL
	if baseURL == "" {
		baseURL = "http://" + cfg.Server.HTTPAddr
	}

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  First operator invite (valid 24 hours)")
	cyan.Println("  --------------------------------------")
	fmt.Printf("  %s\n", console.InviteURL(baseURL, token))
	fmt.Println()
	yellow.Println("  Ready to go:")
	fmt.Println("    flowstarter-console serve    # start the console, then open the invite link")
	fmt.Println()
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("flowstarter-console configuration setup")
	fmt.Println("=======================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := strings.ToLower(prompt(reader, "File exists. Overwrite?", "no"))
		if overwrite != "yes" && overwrite != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	dbPath := prompt(reader, "SQLite database path", filepath.Join(config.DefaultDataDir(), "console.db"))

	fmt.Println("\n--- Flowstarter API ---")
	upstreamURL := prompt(reader, "API base URL (empty to set per session)", "")
	appID := prompt(reader, "Default app ID", "")

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := newSessionSecret()
	if err != nil {
		return err
	}
	content := renderConfig(httpAddr, dbPath, upstreamURL, appID, secret, logLevel, logFormat)

	if _, err := config.Parse(outputFile, []byte(content)); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext steps:")
	fmt.Println("  flowstarter-console bootstrap   # print the first operator invite")
	fmt.Println("  flowstarter-console serve")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
