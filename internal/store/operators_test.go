// ABOUTME: Tests for operator, session, invite and passkey persistence
// ABOUTME: Uses a real SQLite database in a temp directory

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := &Operator{
		ID:           "op-1",
		Username:     "alice",
		PasswordHash: "hash",
		DisplayName:  "Alice",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateOperator(ctx, op))

	got, err := s.GetOperator(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.True(t, got.CreatedAt.Equal(op.CreatedAt))
	assert.Nil(t, got.LastLoginAt)

	byName, err := s.GetOperatorByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "op-1", byName.ID)

	require.NoError(t, s.UpdateOperatorPassword(ctx, "op-1", "new-hash"))
	got, err = s.GetOperator(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	login := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchOperatorLogin(ctx, "op-1", login))
	got, err = s.GetOperator(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(login))
}

func TestOperatorErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetOperator(ctx, "missing")
	assert.ErrorIs(t, err, ErrOperatorNotFound)

	_, err = s.GetOperatorByUsername(ctx, "missing")
	assert.ErrorIs(t, err, ErrOperatorNotFound)

	assert.ErrorIs(t, s.UpdateOperatorPassword(ctx, "missing", "x"), ErrOperatorNotFound)

	createTestOperator(t, s, "bob")
	err = s.CreateOperator(ctx, &Operator{ID: "other", Username: "bob", DisplayName: "Bob", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestListAndCountOperators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	createTestOperator(t, s, "a")
	createTestOperator(t, s, "b")

	ops, err := s.ListOperators(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	count, err = s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	op := createTestOperator(t, s, "alice")
	now := time.Now().UTC()

	require.NoError(t, s.CreateSession(ctx, &OperatorSession{
		ID: "live", OperatorID: op.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.CreateSession(ctx, &OperatorSession{
		ID: "stale", OperatorID: op.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	got, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.OperatorID)

	_, err = s.GetSession(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.DeleteSession(ctx, "live"))
	_, err = s.GetSession(ctx, "live")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInvites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	creator := createTestOperator(t, s, "creator")
	joiner := createTestOperator(t, s, "joiner")
	now := time.Now().UTC()

	require.NoError(t, s.CreateInvite(ctx, &Invite{ID: "inv-1", CreatedBy: creator.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateInvite(ctx, &Invite{ID: "inv-old", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))

	inv, err := s.GetInvite(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, creator.ID, inv.CreatedBy)
	assert.Nil(t, inv.UsedAt)

	require.NoError(t, s.UseInvite(ctx, "inv-1", joiner.ID))
	assert.ErrorIs(t, s.UseInvite(ctx, "inv-1", joiner.ID), ErrInviteUsed)
	assert.ErrorIs(t, s.UseInvite(ctx, "inv-old", joiner.ID), ErrInviteExpired)
	assert.ErrorIs(t, s.UseInvite(ctx, "nope", joiner.ID), ErrInviteNotFound)

	inv, err = s.GetInvite(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, inv.UsedAt)
	assert.Equal(t, joiner.ID, inv.UsedBy)
}

func TestPasskeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	op := createTestOperator(t, s, "alice")

	cred := &PasskeyCredential{
		ID:              "pk-1",
		OperatorID:      op.ID,
		Name:            "laptop",
		CredentialID:    []byte{1, 2, 3},
		PublicKey:       []byte{4, 5, 6},
		AttestationType: "none",
		Transports:      `["internal"]`,
		SignCount:       1,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.CreatePasskey(ctx, cred))

	list, err := s.GetPasskeysByOperator(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "laptop", list[0].Name)

	found, err := s.GetPasskeyByCredentialID(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "pk-1", found.ID)

	require.NoError(t, s.UpdatePasskeySignCount(ctx, "pk-1", 7))
	found, err = s.GetPasskeyByCredentialID(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), found.SignCount)

	assert.ErrorIs(t, s.DeletePasskey(ctx, "someone-else", "pk-1"), ErrNotFound)
	require.NoError(t, s.DeletePasskey(ctx, op.ID, "pk-1"))

	_, err = s.GetPasskeyByCredentialID(ctx, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotFound)
}
