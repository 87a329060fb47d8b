// ABOUTME: Credential management endpoints: rotate, test and export
// ABOUTME: Export returns the raw JSON document for download

package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// Credential kinds accepted by RotateCredentials.
const (
	CredentialAdminKey      = "admin_key"
	CredentialWebhookSecret = "webhook_secret"
	CredentialJWTSecret     = "jwt_secret"
)

// CredentialKinds lists the rotatable credentials.
var CredentialKinds = []string{CredentialAdminKey, CredentialWebhookSecret, CredentialJWTSecret}

// CredentialRotation is the result of a rotation. Value is only returned
// once; the console shows it and never stores it.
type CredentialRotation struct {
	Kind      string    `json:"kind"`
	Value     string    `json:"value,omitempty"`
	RotatedAt time.Time `json:"rotated_at"`
}

// RotateCredentials rotates one credential.
func (c *Client) RotateCredentials(ctx context.Context, snap session.Snapshot, kind string) (*CredentialRotation, error) {
	var r CredentialRotation
	if err := c.PostJSON(ctx, snap, APIPrefix+"/credentials/rotate", map[string]string{"kind": kind}, &r); err != nil {
		return nil, err
	}
	if r.Kind == "" {
		r.Kind = kind
	}
	return &r, nil
}

// CredentialCheck is one provider credential check.
type CredentialCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// CredentialTest is the result of TestCredentials.
type CredentialTest struct {
	OK     bool              `json:"ok"`
	Checks []CredentialCheck `json:"checks"`
}

// TestCredentials asks the backend to verify its provider credentials.
func (c *Client) TestCredentials(ctx context.Context, snap session.Snapshot) (*CredentialTest, error) {
	var t CredentialTest
	if err := c.PostJSON(ctx, snap, APIPrefix+"/credentials/test", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ErrEmptyExport is returned when the export body is empty.
var ErrEmptyExport = errors.New("credential export was empty")

// ErrExportNotJSON is returned when the export body is not JSON.
var ErrExportNotJSON = errors.New("credential export was not JSON")

// ExportCredentials returns the credential export document.
func (c *Client) ExportCredentials(ctx context.Context, snap session.Snapshot) (json.RawMessage, error) {
	resp, err := c.Get(ctx, snap, APIPrefix+"/credentials/export")
	if err != nil {
		return nil, err
	}
	if resp.IsJSON() {
		return resp.Data, nil
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyExport
	}
	// The body may hold secrets, so only its size is reported.
	return nil, fmt.Errorf("%w (%d bytes of %s)", ErrExportNotJSON, len(resp.Text), contentType(resp.Header))
}

func contentType(h http.Header) string {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil || mt == "" {
		return "unknown type"
	}
	return mt
}
