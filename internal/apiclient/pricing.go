// ABOUTME: Pricing configuration endpoints
// ABOUTME: Reads the pricing model and writes it back as a merged document

package apiclient

import (
	"context"
	"encoding/json"

	"github.com/flowstarter/flowstarter-console/internal/pricing"
	"github.com/flowstarter/flowstarter-console/internal/session"
)

// PricingConfigPath is the pricing configuration endpoint.
const PricingConfigPath = APIPrefix + "/pricing/config"

// PricingConfig fetches the pricing configuration.
func (c *Client) PricingConfig(ctx context.Context, snap session.Snapshot) (*pricing.Config, error) {
	var cfg pricing.Config
	if err := c.GetJSON(ctx, snap, PricingConfigPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SavePricingConfig merges cfg onto the remote pricing configuration,
// keeping fields the console does not edit.
func (c *Client) SavePricingConfig(ctx context.Context, snap session.Snapshot, cfg pricing.Config) (json.RawMessage, error) {
	return c.MergeConfig(ctx, snap, PricingConfigPath, cfg)
}
