// ABOUTME: Billing configuration and plan endpoints
// ABOUTME: Builds the ordered plan sources used by billing.Resolve

package apiclient

import (
	"context"
	"encoding/json"

	"github.com/flowstarter/flowstarter-console/internal/billing"
	"github.com/flowstarter/flowstarter-console/internal/session"
)

// Billing endpoint paths.
const (
	BillingConfigPath = APIPrefix + "/billing/config"
	BillingPlansPath  = APIPrefix + "/billing/plans"
)

// BillingConfig fetches the billing provider configuration.
func (c *Client) BillingConfig(ctx context.Context, snap session.Snapshot) (*billing.Config, error) {
	var cfg billing.Config
	if err := c.GetJSON(ctx, snap, BillingConfigPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BillingConfigPatch is the subset of the billing config the console
// edits. Empty secrets are omitted so they are not overwritten.
type BillingConfigPatch struct {
	Provider       string `json:"provider"`
	Currency       string `json:"currency,omitempty"`
	PublishableKey string `json:"publishable_key,omitempty"`
	SecretKey      string `json:"secret_key,omitempty"`
	WebhookSecret  string `json:"webhook_secret,omitempty"`
	TrialCredits   int64  `json:"trial_credits"`
}

// SaveBillingConfig merges patch onto the remote billing configuration.
func (c *Client) SaveBillingConfig(ctx context.Context, snap session.Snapshot, patch BillingConfigPatch) (json.RawMessage, error) {
	return c.MergeConfig(ctx, snap, BillingConfigPath, patch)
}

// Plans fetches the published plan list.
func (c *Client) Plans(ctx context.Context, snap session.Snapshot) ([]billing.Plan, error) {
	resp, err := c.Get(ctx, snap, BillingPlansPath)
	if err != nil {
		return nil, err
	}
	return decodeList[billing.Plan](resp, "plans")
}

// PublishPlans replaces the published plan list.
func (c *Client) PublishPlans(ctx context.Context, snap session.Snapshot, plans []billing.Plan) error {
	_, err := c.Put(ctx, snap, BillingPlansPath, map[string]any{"plans": plans})
	return err
}

// PlanSources returns the ordered sources for billing.Resolve: the plans
// endpoint, then the plans embedded in the billing config. cfg may be nil,
// in which case the config is fetched when the first source is empty.
func (c *Client) PlanSources(snap session.Snapshot, cfg *billing.Config) []billing.Source {
	return []billing.Source{
		{
			Name: "billing/plans",
			Fetch: func(ctx context.Context) ([]billing.Plan, error) {
				return c.Plans(ctx, snap)
			},
		},
		{
			Name: "billing/config",
			Fetch: func(ctx context.Context) ([]billing.Plan, error) {
				if cfg != nil {
					return cfg.Plans, nil
				}
				fetched, err := c.BillingConfig(ctx, snap)
				if err != nil {
					return nil, err
				}
				return fetched.Plans, nil
			},
		},
	}
}

// ResolvePlans resolves the effective plan list for snap.
func (c *Client) ResolvePlans(ctx context.Context, snap session.Snapshot, cfg *billing.Config) billing.Resolution {
	return billing.Resolve(ctx, c.PlanSources(snap, cfg)...)
}
