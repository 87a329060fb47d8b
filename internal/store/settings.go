// ABOUTME: Per-operator key/value settings backing the console's API session
// ABOUTME: Implements session.SettingsStore on the operator_settings table

package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SettingsStore persists string settings per operator.
type SettingsStore interface {
	GetSettings(ctx context.Context, operatorID string) (map[string]string, error)
	PutSetting(ctx context.Context, operatorID, key, value string) error
	DeleteSettings(ctx context.Context, operatorID string, keys ...string) error
}

// GetSettings returns every setting stored for the operator.
func (s *SQLiteStore) GetSettings(ctx context.Context, operatorID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM operator_settings WHERE operator_id = ?`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return settings, nil
}

// PutSetting inserts or replaces one setting.
func (s *SQLiteStore) PutSetting(ctx context.Context, operatorID, key, value string) error {
	query := `
		INSERT INTO operator_settings (operator_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(operator_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, operatorID, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// DeleteSettings removes the given keys. Missing keys are ignored.
func (s *SQLiteStore) DeleteSettings(ctx context.Context, operatorID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	args = append(args, operatorID)
	for _, k := range keys {
		args = append(args, k)
	}

	query := `DELETE FROM operator_settings WHERE operator_id = ? AND key IN (` + placeholders + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	return nil
}
