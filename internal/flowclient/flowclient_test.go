// ABOUTME: Tests for the flow-starter client against a fake deployment
// ABOUTME: Covers CREDITS_NEEDED mapping, auth calls and env configuration

package flowclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
)

const jwtShaped = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1MSJ9.sig"

func newFake(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIURL: srv.URL + "/"}, apiclient.New())
}

func TestCreditsNeededError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"top level", `{"shortage":12}`, "CREDITS_NEEDED:12"},
		{"detail", `{"detail":{"shortage":3.5}}`, "CREDITS_NEEDED:3.5"},
		{"required minus balance", `{"detail":{"required":10,"balance":4}}`, "CREDITS_NEEDED:6"},
		{"unknown", `{"detail":"Payment required"}`, "CREDITS_NEEDED:0"},
		{"not json", `pay up`, "CREDITS_NEEDED:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFake(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.ExecuteFlow(context.Background(), jwtShaped, ExecuteRequest{FlowID: "f", Question: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, IsCreditsNeeded(err))
		})
	}
}

func TestExecuteFlow(t *testing.T) {
	var auth, path string
	var sent map[string]any
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&sent)
		_, _ = io.WriteString(w, `{"text":"42","credits_used":3,"balance":97,"sourceDocuments":[]}`)
	})

	resp, err := c.ExecuteFlow(context.Background(), jwtShaped, ExecuteRequest{FlowID: "f-1", Question: "meaning?"})
	require.NoError(t, err)
	assert.Equal(t, "/providers/flowise/execute", path)
	assert.Equal(t, "Bearer "+jwtShaped, auth)
	assert.Equal(t, "f-1", sent["flow_id"])
	assert.Equal(t, "42", resp.Text)
	assert.Equal(t, 97.0, resp.Balance)
	assert.Contains(t, string(resp.Raw), "sourceDocuments")
}

func TestOtherErrorsPassThrough(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Invalid credentials"}`)
	})
	_, err := c.Login(context.Background(), "a@example.com", "bad")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.False(t, IsCreditsNeeded(err))

	var apiErr *apiclient.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestAuthEndpoints(t *testing.T) {
	var paths []string
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/auth/user":
			_, _ = io.WriteString(w, `{"id":"u1","email":"a@example.com","credits":10}`)
		case "/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			_, _ = io.WriteString(w, `{"access_token":"`+jwtShaped+`","refresh_token":"r1","token_type":"bearer"}`)
		}
	})

	ctx := context.Background()
	tokens, err := c.Signup(ctx, SignupRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "r1", tokens.RefreshToken)

	_, err = c.Login(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	_, err = c.Refresh(ctx, "r1")
	require.NoError(t, err)

	u, err := c.User(ctx, jwtShaped)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	require.NoError(t, c.Logout(ctx, jwtShaped))

	assert.Equal(t, []string{
		"POST /auth/signup",
		"POST /auth/login",
		"POST /auth/refresh",
		"GET /auth/user",
		"POST /auth/logout",
	}, paths)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_FLOW_STARTER_API", "https://flows.example.com")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://flows.example.com", cfg.APIURL)
}

func TestConfigFromEnvDefault(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_FLOW_STARTER_API", "")
	require.NoError(t, os.Unsetenv("NEXT_PUBLIC_FLOW_STARTER_API"))
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
}
