// ABOUTME: Tests for per-operator settings persistence
// ABOUTME: Covers upsert, scoped reads and multi-key deletes

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestOperator(t, s, "alice")
	bob := createTestOperator(t, s, "bob")

	require.NoError(t, s.PutSetting(ctx, alice.ID, "flowstarter_base_url", "https://a"))
	require.NoError(t, s.PutSetting(ctx, alice.ID, "flowstarter_token", "t1"))
	require.NoError(t, s.PutSetting(ctx, alice.ID, "flowstarter_token", "t2"))
	require.NoError(t, s.PutSetting(ctx, bob.ID, "flowstarter_token", "bob-token"))

	got, err := s.GetSettings(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"flowstarter_base_url": "https://a",
		"flowstarter_token":    "t2",
	}, got)

	require.NoError(t, s.DeleteSettings(ctx, alice.ID, "flowstarter_token", "flowstarter_base_url", "missing"))
	got, err = s.GetSettings(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.GetSettings(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob-token", got["flowstarter_token"])

	require.NoError(t, s.DeleteSettings(ctx, bob.ID))
}

func TestSettingsRequireOperator(t *testing.T) {
	s := newTestStore(t)
	err := s.PutSetting(context.Background(), "ghost", "k", "v")
	assert.Error(t, err)
}
