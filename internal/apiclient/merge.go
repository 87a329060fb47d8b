// ABOUTME: Read-modify-write of remote configuration documents using JSON merge patch
// ABOUTME: Fetches the current document, applies an RFC 7386 patch and PUTs the result

package apiclient

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// MergeConfig fetches the document at endpoint, merges patch onto it and
// writes the result back. A missing or empty remote document merges onto
// an empty object. The merged document is returned.
func (c *Client) MergeConfig(ctx context.Context, snap session.Snapshot, endpoint string, patch any) (json.RawMessage, error) {
	current := json.RawMessage(`{}`)
	resp, err := c.Get(ctx, snap, endpoint)
	switch {
	case IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("loading current config: %w", err)
	case resp.IsJSON() && resp.Data[0] == '{':
		current = resp.Data
	}

	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encoding patch: %w", err)
	}

	merged, err := jsonpatch.MergePatch(current, patchJSON)
	if err != nil {
		return nil, fmt.Errorf("merging config: %w", err)
	}

	if _, err := c.Put(ctx, snap, endpoint, json.RawMessage(merged)); err != nil {
		return nil, err
	}
	return merged, nil
}
