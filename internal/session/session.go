// ABOUTME: Immutable per-request snapshot of the operator's Flowstarter API session
// ABOUTME: Derives the base URL and auth headers attached to every upstream call

package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Settings keys under which the session is persisted per operator.
const (
	KeyToken             = "flowstarter_token"
	KeyAdminKey          = "flowstarter_admin_key"
	KeyBaseURL           = "flowstarter_base_url"
	KeyAppID             = "flowstarter_app_id"
	KeyConfigurablePlans = "flowstarter_configurable_plans"
)

// HeaderAdminKey carries the admin key on upstream requests.
const HeaderAdminKey = "X-Admin-Key"

// ErrNotJWT is returned by TokenInfo when the token is not a three-segment JWT.
var ErrNotJWT = errors.New("token is not a JWT")

// Snapshot is the session state seen by a single request. It is never
// mutated after loading; saving settings produces a new Snapshot.
type Snapshot struct {
	Token    string
	AdminKey string
	BaseURL  string
	AppID    string
}

// Base returns BaseURL with every trailing slash removed.
func (s Snapshot) Base() string {
	return strings.TrimRight(s.BaseURL, "/")
}

// HasJWT reports whether the token has the three-segment shape of a JWT.
func (s Snapshot) HasJWT() bool {
	return s.Token != "" && strings.Count(s.Token, ".") == 2
}

// Configured reports whether the snapshot has enough to reach the API.
func (s Snapshot) Configured() bool {
	return s.Base() != "" && (s.HasJWT() || s.AdminKey != "")
}

// AuthHeaders returns the authentication headers for an upstream call.
// The bearer token is only sent when it looks like a JWT.
func (s Snapshot) AuthHeaders() http.Header {
	h := http.Header{}
	if s.HasJWT() {
		h.Set("Authorization", "Bearer "+s.Token)
	}
	if s.AdminKey != "" {
		h.Set(HeaderAdminKey, s.AdminKey)
	}
	return h
}

// TokenInfo holds the claims shown on the settings page.
type TokenInfo struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
	Expired   bool
}

// TokenInfo decodes the token's claims without verifying its signature.
// The console never trusts these values; they are for display only.
func (s Snapshot) TokenInfo(now time.Time) (*TokenInfo, error) {
	if !s.HasJWT() {
		return nil, ErrNotJWT
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return nil, err
	}

	info := &TokenInfo{}
	info.Subject, _ = claims.GetSubject()
	if email, ok := claims["email"].(string); ok {
		info.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		info.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		info.Expired = now.After(exp.Time)
	}
	return info, nil
}

// MaskedToken returns a shortened token suitable for display.
func (s Snapshot) MaskedToken() string {
	return Mask(s.Token)
}

// MaskedAdminKey returns a shortened admin key suitable for display.
func (s Snapshot) MaskedAdminKey() string {
	return Mask(s.AdminKey)
}

// Mask keeps the first and last four characters of a secret.
func Mask(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return strings.Repeat("•", len(v))
	default:
		return v[:4] + "…" + v[len(v)-4:]
	}
}
