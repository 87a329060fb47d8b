// ABOUTME: Tests for session snapshots and the settings-backed Manager
// ABOUTME: Covers base URL trimming, auth header shaping and persistence

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com", "https://api.example.com"},
		{"https://api.example.com/", "https://api.example.com"},
		{"https://api.example.com///", "https://api.example.com"},
		{"https://api.example.com/core/", "https://api.example.com/core"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Snapshot{BaseURL: tt.in}.Base(), "input %q", tt.in)
	}
}

func TestSnapshotAuthHeaders(t *testing.T) {
	t.Run("jwt token and admin key", func(t *testing.T) {
		h := Snapshot{Token: "aaa.bbb.ccc", AdminKey: "adm"}.AuthHeaders()
		assert.Equal(t, "Bearer aaa.bbb.ccc", h.Get("Authorization"))
		assert.Equal(t, "adm", h.Get(HeaderAdminKey))
	})

	t.Run("opaque token is not sent", func(t *testing.T) {
		h := Snapshot{Token: "not-a-jwt"}.AuthHeaders()
		assert.Empty(t, h.Get("Authorization"))
	})

	t.Run("four segments is not a jwt", func(t *testing.T) {
		h := Snapshot{Token: "a.b.c.d"}.AuthHeaders()
		assert.Empty(t, h.Get("Authorization"))
	})

	t.Run("no admin key header when empty", func(t *testing.T) {
		h := Snapshot{Token: "a.b.c"}.AuthHeaders()
		_, ok := h[HeaderAdminKey]
		assert.False(t, ok)
	})
}

func TestSnapshotTokenInfo(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "ops@example.com",
		"exp":   exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	info, err := Snapshot{Token: signed}.TokenInfo(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.Subject)
	assert.Equal(t, "ops@example.com", info.Email)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired)

	info, err = Snapshot{Token: signed}.TokenInfo(exp.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, info.Expired)

	_, err = Snapshot{Token: "opaque"}.TokenInfo(time.Now())
	assert.ErrorIs(t, err, ErrNotJWT)
}

func TestMaskedToken(t *testing.T) {
	assert.Equal(t, "", Snapshot{}.MaskedToken())
	assert.Equal(t, "••••", Snapshot{Token: "abcd"}.MaskedToken())
	assert.Equal(t, "abcd…wxyz", Snapshot{Token: "abcdefghijklmnopqrstuvwxyz"}.MaskedToken())
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{rows: make(map[string]map[string]string)}
}

func (m *memSettings) GetSettings(_ context.Context, operatorID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.rows[operatorID] {
		out[k] = v
	}
	return out, nil
}

func (m *memSettings) PutSetting(_ context.Context, operatorID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[operatorID] == nil {
		m.rows[operatorID] = make(map[string]string)
	}
	m.rows[operatorID][key] = value
	return nil
}

func (m *memSettings) DeleteSettings(_ context.Context, operatorID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.rows[operatorID], k)
	}
	return nil
}

func TestManagerLoadFallsBackToDefaults(t *testing.T) {
	m := NewManager(newMemSettings(), Snapshot{BaseURL: "https://default.example.com", AppID: "app-0"})

	snap, err := m.Load(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, "https://default.example.com", snap.BaseURL)
	assert.Equal(t, "app-0", snap.AppID)
	assert.Empty(t, snap.Token)
}

func TestManagerSaveTrimsAndClears(t *testing.T) {
	ctx := context.Background()
	store := newMemSettings()
	m := NewManager(store, Snapshot{BaseURL: "https://default.example.com"})

	snap, err := m.Save(ctx, "op-1", Snapshot{
		Token:    "  a.b.c ",
		AdminKey: "key",
		BaseURL:  "https://custom.example.com/",
		AppID:    " app-1 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", snap.Token)
	assert.Equal(t, "https://custom.example.com/", snap.BaseURL)
	assert.Equal(t, "app-1", snap.AppID)

	// An empty base URL removes the override.
	snap, err = m.Save(ctx, "op-1", Snapshot{Token: "a.b.c"})
	require.NoError(t, err)
	assert.Equal(t, "https://default.example.com", snap.BaseURL)
	assert.Empty(t, snap.AdminKey)

	// Other operators are unaffected.
	other, err := m.Load(ctx, "op-2")
	require.NoError(t, err)
	assert.Empty(t, other.Token)
}

func TestManagerStoredOmitsDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemSettings(), Snapshot{BaseURL: "https://default.example.com", AdminKey: "k", AppID: "app-0"})

	stored, err := m.Stored(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, stored)

	stored.Token = "a.b.c"
	_, err = m.Save(ctx, "op-1", stored)
	require.NoError(t, err)

	stored, err = m.Stored(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Token: "a.b.c"}, stored)

	// Changing the defaults still reaches the operator.
	m = NewManager(m.store, Snapshot{BaseURL: "https://moved.example.com"})
	snap, err := m.Load(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "https://moved.example.com", snap.BaseURL)
	assert.Equal(t, "a.b.c", snap.Token)
}

func TestManagerClearRemovesDrafts(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemSettings(), Snapshot{})

	_, err := m.Save(ctx, "op-1", Snapshot{Token: "a.b.c", BaseURL: "https://x"})
	require.NoError(t, err)
	require.NoError(t, m.SavePlanDrafts(ctx, "op-1", []map[string]string{{"id": "starter"}}))

	require.NoError(t, m.Clear(ctx, "op-1"))

	snap, err := m.Load(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, snap)

	var drafts []map[string]string
	found, err := m.LoadPlanDrafts(ctx, "op-1", &drafts)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManagerPlanDraftsRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemSettings(), Snapshot{})

	type draft struct {
		ID      string `json:"id"`
		Credits int64  `json:"monthly_credits"`
	}
	require.NoError(t, m.SavePlanDrafts(ctx, "op-1", []draft{{ID: "pro", Credits: 5000}}))

	var got []draft
	found, err := m.LoadPlanDrafts(ctx, "op-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []draft{{ID: "pro", Credits: 5000}}, got)
}
