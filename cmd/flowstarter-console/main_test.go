// ABOUTME: Tests for the console command helpers: generated configs and the color log handler

package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/flowstarter/flowstarter-console/internal/config"
)

func TestRenderConfigParses(t *testing.T) {
	secret, err := newSessionSecret()
	if err != nil {
		t.Fatalf("newSessionSecret: %v", err)
	}
	content := renderConfig("localhost:9090", "/tmp/console.db", "https://billing.example.com", "app-1", secret, "debug", "json")

	cfg, err := config.Parse("console.yaml", []byte(content))
	if err != nil {
		t.Fatalf("generated config does not parse: %v\n%s", err, content)
	}
	if cfg.Server.HTTPAddr != "localhost:9090" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Upstream.BaseURL != "https://billing.example.com" || cfg.Upstream.AppID != "app-1" {
		t.Errorf("upstream = %+v", cfg.Upstream)
	}
	if cfg.Console.SessionSecret != secret {
		t.Error("session secret should round-trip")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestRenderConfigWithoutUpstream(t *testing.T) {
	secret, _ := newSessionSecret()
	content := renderConfig("localhost:8080", "/tmp/console.db", "", "", secret, "info", "text")
	if _, err := config.Parse("console.yaml", []byte(content)); err != nil {
		t.Fatalf("config without upstream should be valid: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "server").WithGroup("req").Info("served", "status", 200)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug records should be filtered at info level")
	}
	for _, want := range []string{"INF served", "component=server", "req.status=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q should contain %q", out, want)
		}
	}
}
