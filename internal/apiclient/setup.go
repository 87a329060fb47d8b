// ABOUTME: Setup wizard endpoints: status with a five second deadline, complete and reset
// ABOUTME: The deadline applies to the status check only

package apiclient

import (
	"context"
	"errors"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// SetupStatusTimeout bounds SetupStatus.
const SetupStatusTimeout = 5 * time.Second

// ErrSetupStatusTimeout is returned when the setup status does not arrive in time.
var ErrSetupStatusTimeout = errors.New("setup status request timed out")

// SetupStep is one item of the setup checklist.
type SetupStep struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// SetupStatus reports how far the backend setup has progressed.
type SetupStatus struct {
	Completed   bool        `json:"completed"`
	Version     string      `json:"version,omitempty"`
	Steps       []SetupStep `json:"steps,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Pending returns the steps that are not done.
func (s SetupStatus) Pending() []SetupStep {
	var out []SetupStep
	for _, step := range s.Steps {
		if !step.Done {
			out = append(out, step)
		}
	}
	return out
}

// SetupStatus fetches the setup status, giving up after SetupStatusTimeout.
func (c *Client) SetupStatus(ctx context.Context, snap session.Snapshot) (*SetupStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.setupStatusTimeout)
	defer cancel()

	var s SetupStatus
	err := c.GetJSON(ctx, snap, APIPrefix+"/setup/status", &s)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSetupStatusTimeout
		}
		return nil, err
	}
	return &s, nil
}

// SetupCompletion is sent when finishing setup.
type SetupCompletion struct {
	AdminEmail string `json:"admin_email,omitempty"`
	AppID      string `json:"app_id,omitempty"`
}

// CompleteSetup marks setup as finished.
func (c *Client) CompleteSetup(ctx context.Context, snap session.Snapshot, req SetupCompletion) (*SetupStatus, error) {
	var s SetupStatus
	if err := c.PostJSON(ctx, snap, APIPrefix+"/setup/complete", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResetSetup returns the backend to its unconfigured state.
func (c *Client) ResetSetup(ctx context.Context, snap session.Snapshot) error {
	_, err := c.Post(ctx, snap, APIPrefix+"/setup/reset", map[string]bool{"confirm": true})
	return err
}
