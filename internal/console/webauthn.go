// ABOUTME: Passkey registration and login for console operators
// ABOUTME: Challenges live in a short-lived in-memory store; credentials live in SQLite

package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/flowstarter/flowstarter-console/internal/store"
)

// challengeTTL bounds how long a begun ceremony can be finished.
const challengeTTL = 5 * time.Minute

// passkeyOperator adapts an operator and their passkeys to webauthn.User.
type passkeyOperator struct {
	op       *store.Operator
	passkeys []*store.PasskeyCredential
}

func (u *passkeyOperator) WebAuthnID() []byte {
	return []byte(u.op.ID)
}

func (u *passkeyOperator) WebAuthnName() string {
	return u.op.Username
}

func (u *passkeyOperator) WebAuthnDisplayName() string {
	if u.op.DisplayName != "" {
		return u.op.DisplayName
	}
	return u.op.Username
}

func (u *passkeyOperator) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.passkeys))
	for _, pk := range u.passkeys {
		cred := webauthn.Credential{
			ID:              pk.CredentialID,
			PublicKey:       pk.PublicKey,
			AttestationType: pk.AttestationType,
			Authenticator:   webauthn.Authenticator{SignCount: pk.SignCount},
		}
		if pk.Transports != "" {
			var transports []protocol.AuthenticatorTransport
			_ = json.Unmarshal([]byte(pk.Transports), &transports)
			cred.Transport = transports
		}
		creds = append(creds, cred)
	}
	return creds
}

// pendingCeremony is a begun registration or login.
type pendingCeremony struct {
	data       *webauthn.SessionData
	operatorID string
	expiresAt  time.Time
}

// webAuthnSessionStore keeps ceremony state between begin and finish.
type webAuthnSessionStore struct {
	mu      sync.Mutex
	pending map[string]pendingCeremony
	now     func() time.Time
	cancel  context.CancelFunc
}

func newWebAuthnSessionStore() *webAuthnSessionStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &webAuthnSessionStore{
		pending: make(map[string]pendingCeremony),
		now:     time.Now,
		cancel:  cancel,
	}
	go s.cleanupLoop(ctx)
	return s
}

// Close stops the cleanup goroutine.
func (s *webAuthnSessionStore) Close() {
	s.cancel()
}

func (s *webAuthnSessionStore) put(token string, data *webauthn.SessionData, operatorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[token] = pendingCeremony{data: data, operatorID: operatorID, expiresAt: s.now().Add(challengeTTL)}
}

// take returns and removes a ceremony. Each challenge can be answered once.
func (s *webAuthnSessionStore) take(token string) (*webauthn.SessionData, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[token]
	if !ok {
		return nil, "", false
	}
	delete(s.pending, token)
	if s.now().After(p.expiresAt) {
		return nil, "", false
	}
	return p.data, p.operatorID, true
}

func (s *webAuthnSessionStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, k)
		}
	}
}

func (s *webAuthnSessionStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// relyingParty derives the relying party ID and allowed origins from the
// console's external URL, defaulting to localhost.
func relyingParty(baseURL string) (string, []string) {
	id := "localhost"
	origins := []string{"http://localhost", "https://localhost"}

	parsed, err := url.Parse(baseURL)
	if baseURL == "" || err != nil || parsed.Hostname() == "" {
		return id, origins
	}

	origin := strings.TrimRight(baseURL, "/")
	if parsed.Path != "" {
		origin = parsed.Scheme + "://" + parsed.Host
	}
	other := "https://" + parsed.Host
	if parsed.Scheme == "https" {
		other = "http://" + parsed.Host
	}
	return parsed.Hostname(), []string{origin, other}
}

func (c *Console) initWebAuthn() error {
	id, origins := relyingParty(c.config.BaseURL)
	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Flowstarter console",
		RPID:          id,
		RPOrigins:     origins,
	})
	if err != nil {
		return err
	}
	c.webauthn = w
	c.webauthnSessions = newWebAuthnSessionStore()
	return nil
}

// ceremonyRequest is the body of both finish endpoints.
type ceremonyRequest struct {
	SessionToken string          `json:"sessionToken"`
	Response     json.RawMessage `json:"response"`
	Name         string          `json:"name,omitempty"`
}

func decodeCeremony(w http.ResponseWriter, r *http.Request) (ceremonyRequest, error) {
	var req ceremonyRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req)
	return req, err
}

func (c *Console) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Debug("failed to encode response", "error", err)
	}
}

// beginCeremony stores the ceremony state and returns its options to the browser.
func (c *Console) beginCeremony(w http.ResponseWriter, options any, data *webauthn.SessionData, operatorID string) {
	token, err := generateSecureToken(32)
	if err != nil {
		http.Error(w, "Failed to start ceremony", http.StatusInternalServerError)
		return
	}
	c.webauthnSessions.put(token, data, operatorID)
	c.writeJSON(w, http.StatusOK, map[string]any{"options": options, "sessionToken": token})
}

func (c *Console) passkeyUser(ctx context.Context, op *store.Operator) *passkeyOperator {
	passkeys, err := c.store.GetPasskeysByOperator(ctx, op.ID)
	if err != nil {
		c.logger.Error("failed to load passkeys", "operator_id", op.ID, "error", err)
	}
	return &passkeyOperator{op: op, passkeys: passkeys}
}

// handleWebAuthnRegisterBegin starts registering a passkey for the signed-in operator.
func (c *Console) handleWebAuthnRegisterBegin(w http.ResponseWriter, r *http.Request) {
	if c.webauthn == nil {
		http.Error(w, "Passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	op := operatorFrom(r)

	options, data, err := c.webauthn.BeginRegistration(c.passkeyUser(r.Context(), op))
	if err != nil {
		c.logger.Error("failed to begin passkey registration", "error", err)
		http.Error(w, "Failed to start registration", http.StatusInternalServerError)
		return
	}
	c.beginCeremony(w, options, data, op.ID)
}

// handleWebAuthnRegisterFinish verifies the attestation and stores the passkey.
func (c *Console) handleWebAuthnRegisterFinish(w http.ResponseWriter, r *http.Request) {
	if c.webauthn == nil {
		http.Error(w, "Passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	op := operatorFrom(r)

	req, err := decodeCeremony(w, r)
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	data, operatorID, ok := c.webauthnSessions.take(req.SessionToken)
	if !ok || operatorID != op.ID {
		http.Error(w, "Invalid or expired session", http.StatusBadRequest)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		c.logger.Warn("failed to parse registration response", "error", err)
		http.Error(w, "Invalid response", http.StatusBadRequest)
		return
	}

	cred, err := c.webauthn.CreateCredential(c.passkeyUser(r.Context(), op), *data, parsed)
	if err != nil {
		c.logger.Warn("failed to verify passkey", "error", err)
		http.Error(w, "Failed to verify credential", http.StatusBadRequest)
		return
	}

	id, err := c.savePasskey(r.Context(), op.ID, req.Name, cred)
	if err != nil {
		c.logger.Error("failed to store passkey", "error", err)
		http.Error(w, "Failed to save credential", http.StatusInternalServerError)
		return
	}

	c.audit(r, store.AuditRegisterPasskey, "passkey", id, map[string]any{"name": req.Name})
	c.logger.Info("passkey registered", "operator_id", op.ID, "passkey_id", id)
	c.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *Console) savePasskey(ctx context.Context, operatorID, name string, cred *webauthn.Credential) (string, error) {
	id, err := generateSecureToken(16)
	if err != nil {
		return "", err
	}
	transports, err := json.Marshal(cred.Transport)
	if err != nil {
		return "", err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Passkey " + c.now().Format("2006-01-02")
	}
	pk := &store.PasskeyCredential{
		ID:              id,
		OperatorID:      operatorID,
		Name:            name,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      string(transports),
		SignCount:       cred.Authenticator.SignCount,
		CreatedAt:       c.now(),
	}
	if err := c.store.CreatePasskey(ctx, pk); err != nil {
		return "", err
	}
	return id, nil
}

// handleWebAuthnLoginBegin starts a discoverable-credential login.
func (c *Console) handleWebAuthnLoginBegin(w http.ResponseWriter, r *http.Request) {
	if c.webauthn == nil {
		http.Error(w, "Passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	options, data, err := c.webauthn.BeginDiscoverableLogin()
	if err != nil {
		c.logger.Error("failed to begin passkey login", "error", err)
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}
	c.beginCeremony(w, options, data, "")
}

// handleWebAuthnLoginFinish validates the assertion and signs the operator in.
func (c *Console) handleWebAuthnLoginFinish(w http.ResponseWriter, r *http.Request) {
	if c.webauthn == nil {
		http.Error(w, "Passkeys are not configured", http.StatusServiceUnavailable)
		return
	}

	req, err := decodeCeremony(w, r)
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	data, _, ok := c.webauthnSessions.take(req.SessionToken)
	if !ok {
		http.Error(w, "Invalid or expired session", http.StatusBadRequest)
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		c.logger.Warn("failed to parse login response", "error", err)
		http.Error(w, "Invalid response", http.StatusBadRequest)
		return
	}

	stored, err := c.store.GetPasskeyByCredentialID(r.Context(), parsed.RawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Unknown credential", http.StatusUnauthorized)
			return
		}
		c.logger.Error("failed to look up passkey", "error", err)
		http.Error(w, "Failed to verify credential", http.StatusInternalServerError)
		return
	}
	op, err := c.store.GetOperator(r.Context(), stored.OperatorID)
	if err != nil {
		c.logger.Error("failed to load passkey owner", "error", err)
		http.Error(w, "Failed to verify credential", http.StatusInternalServerError)
		return
	}

	user := c.passkeyUser(r.Context(), op)
	cred, err := c.webauthn.ValidateDiscoverableLogin(userHandleFinder(user), *data, parsed)
	if err != nil {
		c.logger.Warn("passkey login rejected", "operator_id", op.ID, "error", err)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	if err := c.store.UpdatePasskeySignCount(r.Context(), stored.ID, cred.Authenticator.SignCount); err != nil {
		c.logger.Warn("failed to update sign count", "error", err)
	}
	if err := c.createSession(w, r, op.ID); err != nil {
		c.logger.Error("failed to create session", "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	c.logger.Info("passkey login successful", "operator_id", op.ID)
	c.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "redirect": Prefix + "/dashboard"})
}

// userHandleFinder resolves the discoverable login user, rejecting a
// user handle that belongs to someone else.
func userHandleFinder(user *passkeyOperator) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) > 0 && string(userHandle) != user.op.ID {
			return nil, errors.New("user handle mismatch")
		}
		return user, nil
	}
}

// handleDeletePasskey removes one of the operator's passkeys.
func (c *Console) handleDeletePasskey(w http.ResponseWriter, r *http.Request) {
	op := operatorFrom(r)
	id := chi.URLParam(r, "id")

	if err := c.store.DeletePasskey(r.Context(), op.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.toast(r, toastError, "Passkey not found")
		} else {
			c.toastError(r, "Failed to delete passkey", err)
		}
	} else {
		c.audit(r, store.AuditDeletePasskey, "passkey", id, nil)
		c.toast(r, toastSuccess, "Passkey removed")
	}
	c.renderBody(w, r, "configuration", "operators", nil)
}
