// ABOUTME: Plan rollout endpoints: preview and run the monthly credit grant
// ABOUTME: Preview is side-effect free; run grants credits to every matching user

package apiclient

import (
	"context"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// RolloutRequest scopes a rollout. Empty fields mean "all".
type RolloutRequest struct {
	PlanID     string `json:"plan_id,omitempty"`
	AppID      string `json:"app_id,omitempty"`
	OnlyActive bool   `json:"only_active"`
}

// RolloutGrant is one user's share of a rollout.
type RolloutGrant struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	PlanID  string `json:"plan_id"`
	Credits int64  `json:"credits"`
}

// RolloutPreview is what a run would do.
type RolloutPreview struct {
	Users        int            `json:"users"`
	TotalCredits int64          `json:"total_credits"`
	Grants       []RolloutGrant `json:"grants"`
}

// RolloutResult is the outcome of a run.
type RolloutResult struct {
	RunID        string `json:"run_id"`
	Granted      int    `json:"granted"`
	Skipped      int    `json:"skipped"`
	TotalCredits int64  `json:"total_credits"`
}

// PreviewRollout computes a rollout without applying it.
func (c *Client) PreviewRollout(ctx context.Context, snap session.Snapshot, req RolloutRequest) (*RolloutPreview, error) {
	var p RolloutPreview
	if err := c.PostJSON(ctx, snap, APIPrefix+"/rollout/preview", req, &p); err != nil {
		return nil, err
	}
	if p.Users == 0 {
		p.Users = len(p.Grants)
	}
	return &p, nil
}

// RunRollout applies a rollout.
func (c *Client) RunRollout(ctx context.Context, snap session.Snapshot, req RolloutRequest) (*RolloutResult, error) {
	var r RolloutResult
	if err := c.PostJSON(ctx, snap, APIPrefix+"/rollout/run", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
