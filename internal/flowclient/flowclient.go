// ABOUTME: Client for a flow-starter deployment: flow execution and end-user auth
// ABOUTME: Maps HTTP 402 to a CREDITS_NEEDED error carrying the credit shortage

package flowclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/caarlos0/env/v10"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/session"
)

// Config locates the flow-starter API.
type Config struct {
	APIURL string `env:"NEXT_PUBLIC_FLOW_STARTER_API" envDefault:"http://localhost:8000"`
}

// ConfigFromEnv reads Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing flow-starter env: %w", err)
	}
	return cfg, nil
}

// CreditsNeededError is returned when the backend answers 402.
type CreditsNeededError struct {
	Shortage float64
}

func (e *CreditsNeededError) Error() string {
	return "CREDITS_NEEDED:" + strconv.FormatFloat(e.Shortage, 'f', -1, 64)
}

// IsCreditsNeeded reports whether err is a *CreditsNeededError.
func IsCreditsNeeded(err error) bool {
	var cn *CreditsNeededError
	return errors.As(err, &cn)
}

// Client calls one flow-starter deployment.
type Client struct {
	baseURL string
	api     *apiclient.Client
}

// New creates a Client for cfg.APIURL using api for transport.
func New(cfg Config, api *apiclient.Client) *Client {
	return &Client{baseURL: cfg.APIURL, api: api}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) snapshot(token string) session.Snapshot {
	return session.Snapshot{BaseURL: c.baseURL, Token: token}
}

// call wraps apiclient.Call and translates 402 responses.
func (c *Client) call(ctx context.Context, token, method, endpoint string, body, out any) error {
	resp, err := c.api.Call(ctx, c.snapshot(token), method, endpoint, body)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusPaymentRequired {
			return &CreditsNeededError{Shortage: shortage([]byte(apiErr.Body))}
		}
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// shortage reads the missing credits from a 402 body: "shortage",
// "detail.shortage", or required minus balance at either level.
func shortage(body []byte) float64 {
	type amounts struct {
		Shortage *float64 `json:"shortage"`
		Required *float64 `json:"required"`
		Balance  *float64 `json:"balance"`
	}
	var doc struct {
		amounts
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0
	}

	levels := []amounts{doc.amounts}
	var detail amounts
	if len(doc.Detail) > 0 && doc.Detail[0] == '{' && json.Unmarshal(doc.Detail, &detail) == nil {
		levels = []amounts{doc.amounts, detail}
	}

	for _, a := range levels {
		if a.Shortage != nil {
			return *a.Shortage
		}
	}
	for _, a := range levels {
		if a.Required != nil && a.Balance != nil {
			return *a.Required - *a.Balance
		}
	}
	return 0
}

// ExecuteRequest runs a flow for a question.
type ExecuteRequest struct {
	FlowID         string         `json:"flow_id"`
	AppID          string         `json:"app_id,omitempty"`
	Question       string         `json:"question"`
	OverrideConfig map[string]any `json:"override_config,omitempty"`
}

// ExecuteResponse is the flow output and the resulting balance.
type ExecuteResponse struct {
	Text        string          `json:"text"`
	CreditsUsed float64         `json:"credits_used"`
	Balance     float64         `json:"balance"`
	Raw         json.RawMessage `json:"-"`
}

// ExecuteFlow runs a flow with the end user's token.
func (c *Client) ExecuteFlow(ctx context.Context, token string, req ExecuteRequest) (*ExecuteResponse, error) {
	var raw json.RawMessage
	if err := c.call(ctx, token, http.MethodPost, "/providers/flowise/execute", req, &raw); err != nil {
		return nil, err
	}
	out := &ExecuteResponse{Raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decoding execute response: %w", err)
		}
	}
	return out, nil
}

// Tokens is the token pair returned by the auth endpoints.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// SignupRequest registers an end user.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Signup registers a user and returns their tokens.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*Tokens, error) {
	var t Tokens
	if err := c.call(ctx, "", http.MethodPost, "/auth/signup", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, email, password string) (*Tokens, error) {
	var t Tokens
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, "", http.MethodPost, "/auth/login", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var t Tokens
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.call(ctx, "", http.MethodPost, "/auth/refresh", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Logout revokes the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, token, http.MethodPost, "/auth/logout", nil, nil)
}

// User is the authenticated end user.
type User struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	Name    string  `json:"name,omitempty"`
	Credits float64 `json:"credits"`
	PlanID  string  `json:"plan_id,omitempty"`
}

// User returns the user the token belongs to.
func (c *Client) User(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.call(ctx, token, http.MethodGet, "/auth/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
