// ABOUTME: Store interface and shared errors for the console's own persistence
// ABOUTME: Operators, their sessions and passkeys, per-operator settings, and the audit log

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Store is everything the console persists locally.
type Store interface {
	OperatorStore
	SettingsStore
	AuditStore

	Ping(ctx context.Context) error
	Close() error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
