// ABOUTME: Loads, saves and clears operator session settings through the settings store
// ABOUTME: Also persists the configurable plan drafts as a JSON document

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SettingsStore is the persistence the Manager needs. internal/store
// implements it on SQLite.
type SettingsStore interface {
	GetSettings(ctx context.Context, operatorID string) (map[string]string, error)
	PutSetting(ctx context.Context, operatorID, key, value string) error
	DeleteSettings(ctx context.Context, operatorID string, keys ...string) error
}

// Manager produces Snapshots for operators. Values missing from the store
// fall back to the configured defaults.
type Manager struct {
	store    SettingsStore
	defaults Snapshot
}

// NewManager creates a Manager backed by store.
func NewManager(store SettingsStore, defaults Snapshot) *Manager {
	return &Manager{store: store, defaults: defaults}
}

// Defaults returns the snapshot used when an operator has saved nothing.
func (m *Manager) Defaults() Snapshot {
	return m.defaults
}

// Load returns the operator's current snapshot.
func (m *Manager) Load(ctx context.Context, operatorID string) (Snapshot, error) {
	settings, err := m.store.GetSettings(ctx, operatorID)
	if err != nil {
		return m.defaults, fmt.Errorf("loading session settings: %w", err)
	}
	return merge(m.defaults, settings), nil
}

// Stored returns only what the operator saved, without config defaults.
// Forms that write back through Save must start from this so a default
// never turns into a stored override.
func (m *Manager) Stored(ctx context.Context, operatorID string) (Snapshot, error) {
	settings, err := m.store.GetSettings(ctx, operatorID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading session settings: %w", err)
	}
	return merge(Snapshot{}, settings), nil
}

func merge(snap Snapshot, settings map[string]string) Snapshot {
	if v, ok := settings[KeyToken]; ok {
		snap.Token = v
	}
	if v, ok := settings[KeyAdminKey]; ok {
		snap.AdminKey = v
	}
	if v, ok := settings[KeyBaseURL]; ok {
		snap.BaseURL = v
	}
	if v, ok := settings[KeyAppID]; ok {
		snap.AppID = v
	}
	return snap
}

// Save persists snap for the operator. Values are trimmed and empty values
// remove the key so the default applies again.
func (m *Manager) Save(ctx context.Context, operatorID string, snap Snapshot) (Snapshot, error) {
	values := map[string]string{
		KeyToken:    strings.TrimSpace(snap.Token),
		KeyAdminKey: strings.TrimSpace(snap.AdminKey),
		KeyBaseURL:  strings.TrimSpace(snap.BaseURL),
		KeyAppID:    strings.TrimSpace(snap.AppID),
	}

	for _, key := range []string{KeyToken, KeyAdminKey, KeyBaseURL, KeyAppID} {
		v := values[key]
		if v == "" {
			if err := m.store.DeleteSettings(ctx, operatorID, key); err != nil {
				return Snapshot{}, fmt.Errorf("clearing %s: %w", key, err)
			}
			continue
		}
		if err := m.store.PutSetting(ctx, operatorID, key, v); err != nil {
			return Snapshot{}, fmt.Errorf("saving %s: %w", key, err)
		}
	}

	return m.Load(ctx, operatorID)
}

// Clear wipes every stored key for the operator, plan drafts included.
func (m *Manager) Clear(ctx context.Context, operatorID string) error {
	err := m.store.DeleteSettings(ctx, operatorID,
		KeyToken, KeyAdminKey, KeyBaseURL, KeyAppID, KeyConfigurablePlans)
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// LoadPlanDrafts decodes the stored plan drafts into v. It reports false
// when nothing has been stored yet.
func (m *Manager) LoadPlanDrafts(ctx context.Context, operatorID string, v any) (bool, error) {
	settings, err := m.store.GetSettings(ctx, operatorID)
	if err != nil {
		return false, fmt.Errorf("loading plan drafts: %w", err)
	}
	raw, ok := settings[KeyConfigurablePlans]
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding plan drafts: %w", err)
	}
	return true, nil
}

// SavePlanDrafts stores v as the operator's plan drafts.
func (m *Manager) SavePlanDrafts(ctx context.Context, operatorID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding plan drafts: %w", err)
	}
	if err := m.store.PutSetting(ctx, operatorID, KeyConfigurablePlans, string(data)); err != nil {
		return fmt.Errorf("saving plan drafts: %w", err)
	}
	return nil
}
