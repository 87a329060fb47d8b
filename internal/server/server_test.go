// ABOUTME: Tests for the server orchestrator, its health endpoints and middleware
// ABOUTME: Uses an in-memory store and a fake upstream API over httptest

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/config"
	"github.com/flowstarter/flowstarter-console/internal/console"
	"github.com/flowstarter/flowstarter-console/internal/store"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := ln.Addr().String()
	ln.Close()

	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: httpAddr},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Console:  config.ConsoleConfig{SessionDuration: time.Hour, Locale: "en"},
		Metrics:  config.MetricsConfig{Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServerNew(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)

	if srv.config != cfg {
		t.Error("server config mismatch")
	}
	if srv.console == nil {
		t.Error("console should not be nil")
	}
	if srv.metrics != nil {
		t.Error("metrics should be nil when disabled")
	}
	if got, want := srv.BaseURL(), "http://"+cfg.Server.HTTPAddr; got != want {
		t.Errorf("BaseURL() = %q, want %q", got, want)
	}
}

func TestDetermineBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "explicit",
			cfg:  config.Config{Console: config.ConsoleConfig{BaseURL: "https://ops.example.com"}},
			want: "https://ops.example.com",
		},
		{
			name: "http address",
			cfg:  config.Config{Server: config.ServerConfig{HTTPAddr: "localhost:8080"}},
			want: "http://localhost:8080",
		},
		{
			name: "tailnet",
			cfg:  config.Config{Tailscale: config.TailscaleConfig{Enabled: true, Hostname: "console"}},
			want: "http://console",
		},
		{
			name: "funnel",
			cfg:  config.Config{Tailscale: config.TailscaleConfig{Enabled: true, Hostname: "console", Funnel: true}},
			want: "https://console",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLOWSTARTER_CONSOLE_URL", "")
			if got := determineBaseURL(&tt.cfg, testLogger()); got != tt.want {
				t.Errorf("determineBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	rec := serve(srv, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func decodeReadiness(t *testing.T, rec *httptest.ResponseRecorder) readiness {
	t.Helper()
	var res readiness
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decoding readiness: %v", err)
	}
	return res
}

func TestHandleReady(t *testing.T) {
	t.Run("upstream not configured", func(t *testing.T) {
		srv := newTestServer(t, testConfig(t))

		rec := serve(srv, http.MethodGet, "/health/ready")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		res := decodeReadiness(t, rec)
		if res.Upstream != "not configured" || res.Store != "ok" {
			t.Errorf("unexpected readiness %+v", res)
		}
	})

	t.Run("upstream reports setup status", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/core/v1/setup/status" {
				http.NotFound(w, r)
				return
			}
			if r.Header.Get("X-Admin-Key") != "admin-key" {
				t.Errorf("admin key header = %q", r.Header.Get("X-Admin-Key"))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"completed":true}`)
		}))
		defer upstream.Close()

		cfg := testConfig(t)
		cfg.Upstream = config.UpstreamConfig{BaseURL: upstream.URL, AdminKey: "admin-key"}
		srv := newTestServer(t, cfg)

		rec := serve(srv, http.MethodGet, "/health/ready")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		res := decodeReadiness(t, rec)
		if res.Setup == nil || !*res.Setup {
			t.Errorf("setup_completed should be true, got %+v", res)
		}
	})

	t.Run("upstream failing", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"database unavailable"}`)
		}))
		defer upstream.Close()

		cfg := testConfig(t)
		cfg.Upstream = config.UpstreamConfig{BaseURL: upstream.URL}
		srv := newTestServer(t, cfg)

		rec := serve(srv, http.MethodGet, "/health/ready")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if res := decodeReadiness(t, rec); res.Upstream != "database unavailable" {
			t.Errorf("upstream = %q, want the server's detail", res.Upstream)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	srv := newTestServer(t, cfg)

	serve(srv, http.MethodGet, "/health")

	rec := serve(srv, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "flowstarter_console_http_requests_total") {
		t.Error("metrics should include the request counter")
	}
	if !strings.Contains(body, `route="/health"`) {
		t.Error("requests should be labeled by route pattern")
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	if rec := serve(srv, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRootRedirectsToConsole(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	rec := serve(srv, http.MethodGet, "/")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != console.Prefix+"/" {
		t.Errorf("Location = %q", loc)
	}
}

func TestConsoleIsMounted(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	rec := serve(srv, http.MethodGet, console.Prefix+"/login")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("responses should carry a request ID")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("incoming request ID should be echoed, got %q", got)
	}
	if seen != "req-123" {
		t.Errorf("handler saw %q", seen)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("generated request ID should be a UUID, got %q", got)
	}
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestSweepSessions(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	ctx := context.Background()

	op := &store.Operator{ID: "op-1", Username: "ops", CreatedAt: time.Now()}
	if err := srv.store.CreateOperator(ctx, op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	expired := &store.OperatorSession{
		ID:         "expired",
		OperatorID: op.ID,
		CreatedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
	}
	if err := srv.store.CreateSession(ctx, expired); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		srv.sweepSessions(sweepCtx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := srv.store.GetSession(ctx, "expired"); err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if _, err := srv.store.GetSession(ctx, "expired"); err == nil {
		t.Error("expired session should have been swept")
	}
}

func TestRunGracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	url := "http://" + cfg.Server.HTTPAddr + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server never became reachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
