// ABOUTME: Operator login, logout, invite signup and password handlers
// ABOUTME: Passwords are bcrypt hashes; failed lookups still pay the bcrypt cost

package console

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowstarter/flowstarter-console/internal/store"
)

// dummyHash keeps login timing constant when the operator does not exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// MinPasswordLength is enforced on signup and password changes.
const MinPasswordLength = 8

// NewOperatorID returns a sortable operator ID.
func NewOperatorID() string {
	return ulid.Make().String()
}

// handleIndex redirects to the dashboard.
func (c *Console) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, Prefix+"/dashboard", http.StatusSeeOther)
}

// handleLoginPage renders the login page
func (c *Console) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := c.getOperatorFromSession(r); err == nil {
		http.Redirect(w, r, Prefix+"/dashboard", http.StatusSeeOther)
		return
	}

	r, csrfToken := c.ensureCSRFToken(w, r)
	c.renderAuthPage(w, r, "login", authData{Title: "Login", CSRFToken: csrfToken, Passkeys: c.webauthn != nil})
}

// handleLogin processes login form submission
func (c *Console) handleLogin(w http.ResponseWriter, r *http.Request) {
	fail := func(msg string) {
		r, csrfToken := c.ensureCSRFToken(w, r)
		c.renderAuthPage(w, r, "login", authData{Title: "Login", Error: msg, CSRFToken: csrfToken, Passkeys: c.webauthn != nil})
	}

	if err := r.ParseForm(); err != nil {
		fail("Invalid form data")
		return
	}
	if !c.validateCSRF(r) {
		fail("Invalid request, please try again")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		fail("Username and password required")
		return
	}

	op, err := c.store.GetOperatorByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrOperatorNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			fail("Invalid username or password")
			return
		}
		c.logger.Error("failed to get operator", "error", err)
		fail("An error occurred")
		return
	}

	if op.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		fail("Password login not enabled for this account")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		fail("Invalid username or password")
		return
	}

	if err := c.createSession(w, r, op.ID); err != nil {
		c.logger.Error("failed to create session", "error", err)
		fail("An error occurred")
		return
	}

	c.logger.Info("operator login successful", "username", username)
	http.Redirect(w, r, Prefix+"/dashboard", http.StatusSeeOther)
}

// handleLogout logs out the current operator
func (c *Console) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		// Logout proceeds even with a bad token; it only ends the caller's own session.
		if !c.validateCSRF(r) {
			c.logger.Warn("logout request with invalid CSRF token")
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		_ = c.store.DeleteSession(r.Context(), cookie.Value)
	}

	for _, name := range []string{SessionCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     Prefix,
			MaxAge:   -1,
			HttpOnly: true,
		})
	}

	c.redirect(w, r, Prefix+"/login")
}

// inviteProblem returns a user-facing reason the invite cannot be used.
func (c *Console) inviteProblem(r *http.Request, token string) string {
	invite, err := c.store.GetInvite(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return "Invalid invite link"
		}
		c.logger.Error("failed to get invite", "error", err)
		return "An error occurred"
	}
	if invite.UsedAt != nil {
		return "This invite has already been used"
	}
	if c.now().After(invite.ExpiresAt) {
		return "This invite has expired"
	}
	return ""
}

// handleInvitePage renders the invite/signup page
func (c *Console) handleInvitePage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	r, csrfToken := c.ensureCSRFToken(w, r)

	c.renderAuthPage(w, r, "invite", authData{
		Title:     "Create Account",
		Token:     token,
		Error:     c.inviteProblem(r, token),
		CSRFToken: csrfToken,
	})
}

// handleInviteSignup processes the invite signup form
func (c *Console) handleInviteSignup(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	fail := func(msg string) {
		r, csrfToken := c.ensureCSRFToken(w, r)
		c.renderAuthPage(w, r, "invite", authData{Title: "Create Account", Token: token, Error: msg, CSRFToken: csrfToken})
	}

	if err := r.ParseForm(); err != nil {
		fail("Invalid form data")
		return
	}
	if !c.validateCSRF(r) {
		fail("Invalid request, please try again")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	displayName := r.FormValue("display_name")

	if username == "" || password == "" {
		fail("Username and password required")
		return
	}
	if msg := validateUsername(username); msg != "" {
		fail(msg)
		return
	}
	if len(password) < MinPasswordLength {
		fail("Password must be at least 8 characters")
		return
	}
	if displayName == "" {
		displayName = username
	}

	if msg := c.inviteProblem(r, token); msg != "" {
		fail(msg)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		c.logger.Error("failed to hash password", "error", err)
		fail("An error occurred")
		return
	}

	op := &store.Operator{
		ID:           NewOperatorID(),
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    c.now(),
	}

	if err := c.store.CreateOperator(r.Context(), op); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			fail("Username already taken")
			return
		}
		c.logger.Error("failed to create operator", "error", err)
		fail("An error occurred")
		return
	}

	if err := c.store.UseInvite(r.Context(), token, op.ID); err != nil {
		c.logger.Error("failed to mark invite as used", "error", err)
	}

	entry := &store.AuditEntry{
		ActorOperatorID: op.ID,
		Action:          store.AuditCreateOperator,
		TargetType:      "operator",
		TargetID:        op.ID,
		Detail:          map[string]any{"username": username, "via": "invite"},
	}
	if err := c.store.AppendAuditLog(r.Context(), entry); err != nil {
		c.logger.Error("failed to append audit log", "error", err)
	}

	if err := c.createSession(w, r, op.ID); err != nil {
		c.logger.Error("failed to create session", "error", err)
		http.Redirect(w, r, Prefix+"/login", http.StatusSeeOther)
		return
	}

	c.logger.Info("operator created via invite", "username", username)
	http.Redirect(w, r, Prefix+"/dashboard", http.StatusSeeOther)
}

// NewInvite stores an invite valid for InviteDuration and returns its token.
func NewInvite(ctx context.Context, s store.OperatorStore, createdBy string, now time.Time) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", err
	}
	invite := &store.Invite{
		ID:        token,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(InviteDuration),
	}
	if err := s.CreateInvite(ctx, invite); err != nil {
		return "", err
	}
	return token, nil
}

// InviteURL builds the signup link for an invite token.
func InviteURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + Prefix + "/invite/" + token
}

// baseURL returns the configured external URL or one derived from the request.
func (c *Console) baseURL(r *http.Request) string {
	if c.config.BaseURL != "" {
		return c.config.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// handleCreateInvite creates an invite link (htmx partial response)
func (c *Console) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	op := operatorFrom(r)

	token, err := NewInvite(r.Context(), c.store, op.ID, c.now())
	if err != nil {
		c.logger.Error("failed to create invite", "error", err)
		c.toastError(r, "Failed to create invite", err)
		c.renderBody(w, r, "configuration", "operators", nil)
		return
	}

	inviteURL := InviteURL(c.baseURL(r), token)
	c.audit(r, store.AuditCreateInvite, "invite", token[:8], map[string]any{"expires_in": InviteDuration.String()})
	c.logger.Info("created operator invite", "created_by", op.Username)
	c.toast(r, toastSuccess, "Invite link created, valid for 24 hours")
	c.renderBody(w, r, "configuration", "operators", map[string]any{"InviteURL": inviteURL})
}

// handleChangePassword updates the current operator's password.
func (c *Console) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	op := operatorFrom(r)
	current := r.FormValue("current_password")
	next := r.FormValue("new_password")

	done := func() { c.renderBody(w, r, "configuration", "operators", nil) }

	if len(next) < MinPasswordLength {
		c.toast(r, toastError, "New password must be at least 8 characters")
		done()
		return
	}
	if next != r.FormValue("confirm_password") {
		c.toast(r, toastError, "Passwords do not match")
		done()
		return
	}
	if op.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(current)); err != nil {
			c.toast(r, toastError, "Current password is incorrect")
			done()
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		c.toastError(r, "Failed to change password", err)
		done()
		return
	}
	if err := c.store.UpdateOperatorPassword(r.Context(), op.ID, string(hash)); err != nil {
		c.toastError(r, "Failed to change password", err)
		done()
		return
	}

	c.audit(r, store.AuditChangePassword, "operator", op.ID, nil)
	c.toast(r, toastSuccess, "Password updated")
	done()
}
