// ABOUTME: Operator web console for the Flowstarter billing API
// ABOUTME: Provides authentication, CSRF protection, per-request sessions and route wiring

package console

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gorilla/sessions"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/dedupe"
	"github.com/flowstarter/flowstarter-console/internal/flowclient"
	"github.com/flowstarter/flowstarter-console/internal/format"
	"github.com/flowstarter/flowstarter-console/internal/session"
	"github.com/flowstarter/flowstarter-console/internal/store"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// Username validation regex: alphanumeric + underscores, 3-32 characters
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

const (
	// SessionCookieName is the name of the operator session cookie
	SessionCookieName = "flowstarter_console_session"

	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "flowstarter_console_csrf"

	// DefaultSessionDuration is how long operator sessions last
	DefaultSessionDuration = 7 * 24 * time.Hour

	// InviteDuration is how long invite links are valid
	InviteDuration = 24 * time.Hour

	// Prefix is where the console is mounted.
	Prefix = "/console"
)

// Typed confirmations for destructive actions. The comparison is exact.
const (
	ConfirmDeleteUser = "ELIMINA"
	ConfirmResetSetup = "RESET"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	operatorContextKey contextKey = "operator"
	snapshotContextKey contextKey = "snapshot"
	csrfContextKey     contextKey = "csrf_token"
)

// Config holds console configuration
type Config struct {
	// BaseURL is the external URL for invite links and the passkey relying party
	BaseURL string

	// SessionSecret signs the flash/tab cookie. A random key is used when empty.
	SessionSecret []byte

	// SessionDuration overrides DefaultSessionDuration when positive.
	SessionDuration time.Duration

	// Locale selects number and currency formatting.
	Locale string
}

// Deps are the collaborators the console calls into.
type Deps struct {
	Store     store.Store
	Sessions  *session.Manager
	API       *apiclient.Client
	Flows     *flowclient.Client
	Validator *validate.Validator
	Logger    *slog.Logger
}

// Console handles console routes and authentication
type Console struct {
	store            store.Store
	sessions         *session.Manager
	api              *apiclient.Client
	flows            *flowclient.Client
	validator        *validate.Validator
	cookies          *sessions.CookieStore
	formatter        *format.Formatter
	templates        map[string]*template.Template
	config           Config
	logger           *slog.Logger
	webauthn         *webauthn.WebAuthn
	webauthnSessions *webAuthnSessionStore
	submissions      *dedupe.Window
	now              func() time.Time
}

// New creates a new Console handler
func New(deps Deps, cfg Config) (*Console, error) {
	if deps.Store == nil || deps.Sessions == nil || deps.API == nil {
		return nil, errors.New("console: store, sessions and api are required")
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = DefaultSessionDuration
	}
	if len(cfg.SessionSecret) == 0 {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	validator := deps.Validator
	if validator == nil {
		v, err := validate.New()
		if err != nil {
			return nil, err
		}
		validator = v
	}

	c := &Console{
		store:     deps.Store,
		sessions:  deps.Sessions,
		api:       deps.API,
		flows:     deps.Flows,
		validator: validator,
		formatter: format.New(cfg.Locale),
		config:    cfg,
		logger:    logger.With("component", "console"),
		now:       time.Now,

		submissions: dedupe.New(dedupe.DefaultWindow, dedupe.DefaultMaxKeys),
	}
	c.cookies = newCookieStore(cfg.SessionSecret, cfg.SessionDuration)

	tmpls, err := c.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	c.templates = tmpls

	// Initialize WebAuthn (errors are logged but don't prevent startup)
	if err := c.initWebAuthn(); err != nil {
		c.logger.Warn("failed to initialize WebAuthn, passkey login disabled", "error", err)
	}

	return c, nil
}

// Close cleans up console resources
func (c *Console) Close() {
	c.submissions.Close()
	if c.webauthnSessions != nil {
		c.webauthnSessions.Close()
	}
}

// Routes returns the console router, to be mounted at Prefix.
func (c *Console) Routes() http.Handler {
	r := chi.NewRouter()

	// Public routes (no auth required)
	r.Get("/login", c.handleLoginPage)
	r.Post("/login", c.handleLogin)
	r.Get("/invite/{token}", c.handleInvitePage)
	r.Post("/invite/{token}", c.handleInviteSignup)
	r.Post("/webauthn/login/begin", c.handleWebAuthnLoginBegin)
	r.Post("/webauthn/login/finish", c.handleWebAuthnLoginFinish)

	// Protected routes (auth required)
	r.Group(func(r chi.Router) {
		r.Use(c.requireAuth)

		r.Get("/", c.handleIndex)
		r.Post("/logout", c.handleLogout)

		r.Get("/user/{id}", c.handleUserDetail)
		r.Get("/configuration/credentials/export", c.handleExportCredentials)

		r.Get("/{page}", c.handlePage)
		r.Get("/{page}/body", c.handlePageBody)

		// Mutations (CSRF required)
		r.Group(func(r chi.Router) {
			r.Use(c.requireCSRF)

			r.Post("/billing/config", c.handleSaveBillingConfig)
			r.Post("/billing/plans/draft", c.handleSavePlanDraft)
			r.Post("/billing/plans/draft/{id}/delete", c.handleDeletePlanDraft)
			r.Post("/billing/plans/publish", c.handlePublishPlans)
			r.Post("/billing/rollout/preview", c.handleRolloutPreview)
			r.Post("/billing/rollout/run", c.handleRolloutRun)

			r.Post("/pricing/simulate", c.handlePricingSimulate)
			r.Post("/pricing/config", c.handleSavePricingConfig)

			r.Post("/user/{id}/credits", c.handleAdjustCredits)
			r.Post("/user/{id}/delete", c.handleDeleteUser)

			r.Post("/configuration/session", c.handleSaveSession)
			r.Post("/configuration/session/clear", c.handleClearSession)
			r.Post("/configuration/setup/complete", c.handleCompleteSetup)
			r.Post("/configuration/setup/reset", c.handleResetSetup)
			r.Post("/configuration/credentials/rotate", c.handleRotateCredential)
			r.Post("/configuration/credentials/test", c.handleTestCredentials)
			r.Post("/configuration/flows", c.handleSaveFlowMapping)
			r.Post("/configuration/flows/{key}/delete", c.handleDeleteFlowMapping)

			r.Post("/testing/execute", c.handleExecuteFlow)
			r.Post("/testing/affordability", c.handleCheckAffordability)
			r.Post("/testing/auth", c.handleAuthProbe)

			r.Post("/invites", c.handleCreateInvite)
			r.Post("/account/password", c.handleChangePassword)
			r.Post("/passkeys/{id}/delete", c.handleDeletePasskey)
			r.Post("/webauthn/register/begin", c.handleWebAuthnRegisterBegin)
			r.Post("/webauthn/register/finish", c.handleWebAuthnRegisterFinish)
		})
	})

	c.logger.Info("console routes registered")
	return r
}

// requireAuth resolves the operator from the session cookie and loads their
// API session snapshot for the rest of the request.
func (c *Console) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, err := c.getOperatorFromSession(r)
		if err != nil {
			c.redirect(w, r, Prefix+"/login")
			return
		}

		snap, err := c.sessions.Load(r.Context(), op.ID)
		if err != nil {
			c.logger.Error("failed to load operator session", "operator_id", op.ID, "error", err)
			snap = c.sessions.Defaults()
		}

		r, _ = c.ensureCSRFToken(w, r)
		ctx := context.WithValue(r.Context(), operatorContextKey, op)
		ctx = context.WithValue(ctx, snapshotContextKey, snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCSRF rejects mutations without a matching CSRF token.
func (c *Console) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.validateCSRF(r) {
			c.logger.Warn("rejected request with invalid CSRF token", "path", r.URL.Path)
			http.Error(w, "Invalid request", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getOperatorFromSession retrieves the authenticated operator from the session cookie
func (c *Console) getOperatorFromSession(r *http.Request) (*store.Operator, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}

	sess, err := c.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}

	return c.store.GetOperator(r.Context(), sess.OperatorID)
}

// operatorFrom retrieves the authenticated operator from the request context
func operatorFrom(r *http.Request) *store.Operator {
	op, _ := r.Context().Value(operatorContextKey).(*store.Operator)
	return op
}

// claimSubmission guards an action against an identical resubmission by the
// same operator. It returns the key to release on failure, or "" when the
// action was just submitted and has been rejected with a toast.
func (c *Console) claimSubmission(r *http.Request, action string, params ...any) string {
	opID := ""
	if op := operatorFrom(r); op != nil {
		opID = op.ID
	}
	key := dedupe.Key(action, append([]any{opID}, params...)...)
	if !c.submissions.Claim(key) {
		c.logger.Info("duplicate submission ignored", "action", action, "operator_id", opID)
		c.toast(r, toastInfo, "That was just submitted. Wait a few seconds before repeating it.")
		return ""
	}
	return key
}

// snapshotFrom returns the session snapshot loaded for this request.
func snapshotFrom(r *http.Request) session.Snapshot {
	snap, _ := r.Context().Value(snapshotContextKey).(session.Snapshot)
	return snap
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (c *Console) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		c.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     Prefix,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form or header against the cookie
func (c *Console) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	token := r.Header.Get("X-CSRF-Token")
	if token == "" {
		token = r.FormValue("csrf_token")
	}

	return token != "" && token == cookie.Value
}

// createSession creates a new session for an operator and sets the cookie
func (c *Console) createSession(w http.ResponseWriter, r *http.Request, operatorID string) error {
	sessionID, err := generateSecureToken(32)
	if err != nil {
		return err
	}

	now := c.now()
	sess := &store.OperatorSession{
		ID:         sessionID,
		OperatorID: operatorID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.config.SessionDuration),
	}

	if err := c.store.CreateSession(r.Context(), sess); err != nil {
		return err
	}
	if err := c.store.TouchOperatorLogin(r.Context(), operatorID, now); err != nil {
		c.logger.Warn("failed to record login time", "operator_id", operatorID, "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     Prefix,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// audit appends an entry to the audit log. Failures are logged, never returned.
func (c *Console) audit(r *http.Request, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	actor := ""
	if op := operatorFrom(r); op != nil {
		actor = op.ID
	}
	entry := &store.AuditEntry{
		ActorOperatorID: actor,
		Action:          action,
		TargetType:      targetType,
		TargetID:        targetID,
		Detail:          detail,
	}
	if err := c.store.AppendAuditLog(r.Context(), entry); err != nil {
		c.logger.Error("failed to append audit log", "action", action, "error", err)
	}
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the browser to target, using HX-Redirect for htmx requests.
func (c *Console) redirect(w http.ResponseWriter, r *http.Request, target string) {
	c.saveUI(w, r)
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validateUsername(username string) string {
	if len(username) < 3 {
		return "Username must be at least 3 characters"
	}
	if len(username) > 32 {
		return "Username must be at most 32 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "Username must start with a letter and contain only letters, numbers, and underscores"
	}
	return ""
}
