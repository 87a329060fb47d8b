// ABOUTME: Server orchestrator that wires the store, API clients and console behind one HTTP listener
// ABOUTME: Manages health endpoints, metrics, the optional tailnet node and graceful shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/assets"
	"github.com/flowstarter/flowstarter-console/internal/config"
	"github.com/flowstarter/flowstarter-console/internal/console"
	"github.com/flowstarter/flowstarter-console/internal/flowclient"
	"github.com/flowstarter/flowstarter-console/internal/metrics"
	"github.com/flowstarter/flowstarter-console/internal/session"
	"github.com/flowstarter/flowstarter-console/internal/store"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// sessionSweepInterval is how often expired operator sessions are removed.
const sessionSweepInterval = time.Hour

// Server runs the console and its supporting endpoints.
type Server struct {
	config      *config.Config
	store       store.Store
	sessions    *session.Manager
	api         *apiclient.Client
	console     *console.Console
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// baseURL is the console's external URL, used for invite links and passkeys
	baseURL string
}

// determineBaseURL resolves the console's external URL from config or environment.
func determineBaseURL(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Console.BaseURL != "" {
		return cfg.Console.BaseURL
	}
	if envURL := os.Getenv("FLOWSTARTER_CONSOLE_URL"); envURL != "" {
		return envURL
	}
	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr
	}
	if cfg.Tailscale.Funnel || cfg.Tailscale.CertFile != "" {
		logger.Warn("console.base_url not set, passkeys may fail until it names the full tailnet URL")
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// initStore opens the SQLite store, honoring FLOWSTARTER_DB_PATH.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("FLOWSTARTER_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newAPIClient builds the upstream client from the upstream section.
func newAPIClient(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *apiclient.Client {
	opts := []apiclient.Option{
		apiclient.WithLogger(logger.With("component", "apiclient")),
		apiclient.WithMetrics(m),
	}
	if cfg.Upstream.Timeout > 0 {
		opts = append(opts, apiclient.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}))
	}
	return apiclient.New(opts...)
}

// New creates a Server from cfg. The store is opened here and closed by Shutdown.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	srv, err := NewWithStore(cfg, sqlStore, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}
	return srv, nil
}

// NewWithStore creates a Server over an already opened store.
func NewWithStore(cfg *config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	api := newAPIClient(cfg, m, logger)
	sessions := session.NewManager(st, session.Snapshot{
		BaseURL:  cfg.Upstream.BaseURL,
		AdminKey: cfg.Upstream.AdminKey,
		AppID:    cfg.Upstream.AppID,
	})

	validator, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("compiling payload schemas: %w", err)
	}

	s := &Server{
		config:   cfg,
		store:    st,
		sessions: sessions,
		api:      api,
		metrics:  m,
		logger:   logger.With("component", "server"),
		baseURL:  determineBaseURL(cfg, logger),
	}

	s.console, err = console.New(console.Deps{
		Store:     st,
		Sessions:  sessions,
		API:       api,
		Flows:     flowclient.New(flowclient.Config{APIURL: cfg.Flowstarter.APIURL}, api),
		Validator: validator,
		Logger:    logger.With("component", "console"),
	}, console.Config{
		BaseURL:         s.baseURL,
		SessionSecret:   []byte(cfg.Console.SessionSecret),
		SessionDuration: cfg.Console.SessionDuration,
		Locale:          cfg.Console.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("creating console: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler builds the root router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(s.logger, s.metrics))
	r.Use(Recoverer(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.config.Metrics.Path, s.metrics.Handler())
	}
	r.Handle(assets.Prefix+"*", http.StripPrefix(strings.TrimSuffix(assets.Prefix, "/"), assets.FileServer()))
	r.Mount(console.Prefix, s.console.Routes())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, console.Prefix+"/", http.StatusFound)
	})
	return r
}

// BaseURL returns the console's external URL.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// setupTCPListener creates a standard TCP listener.
func (s *Server) setupTCPListener() (net.Listener, error) {
	s.logger.Info("starting console", "http_addr", s.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener for the configured mode (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}
	return s.setupTCPListener()
}

// Run serves until ctx is canceled, then shuts down gracefully.
// Returns nil on graceful shutdown, or the error that stopped the server.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "base_url", s.baseURL)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepSessions(sweepCtx, sessionSweepInterval)

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}
	stopSweep()

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// sweepSessions removes expired operator sessions every interval until ctx ends.
func (s *Server) sweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredSessions(ctx)
			if err != nil {
				s.logger.Warn("sweeping expired sessions", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

// gracefulShutdown uses a fresh context because the serving context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "flowstarter", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY in the environment")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens on it.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	return s.createTailscaleListener(tsCfg)
}

// logTailscaleStatus logs the node's address and DNS name.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleListener picks funnel, TLS from cert files, or plain HTTP.
func (s *Server) createTailscaleListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.CertFile != "" && tsCfg.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(tsCfg.CertFile, tsCfg.KeyFile)
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("loading tailscale TLS certificate: %w", err)
		}
		s.logger.Info("enabling HTTPS on :443", "cert_file", tsCfg.CertFile)
		ln, err := s.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}), nil
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the node, console and store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down console")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	s.console.Close()
	errs = appendCloseError(errs, "store close", s.store.Close())

	return errors.Join(errs...)
}
