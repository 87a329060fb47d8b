// ABOUTME: Flow-to-app mapping endpoints and the per-app affordability check
// ABOUTME: Mappings bind a flow key to a Flowise flow and the app that pays for it

package apiclient

import (
	"context"
	"net/url"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// FlowMappingsPath is the flow mapping collection endpoint.
const FlowMappingsPath = APIPrefix + "/admin/flows/mappings"

// FlowMapping binds a flow key to a flow and app.
type FlowMapping struct {
	FlowKey     string `json:"flow_key"`
	FlowID      string `json:"flow_id"`
	AppID       string `json:"app_id"`
	MinCredits  int64  `json:"min_credits"`
	Description string `json:"description,omitempty"`
}

// FlowMappings lists every mapping.
func (c *Client) FlowMappings(ctx context.Context, snap session.Snapshot) ([]FlowMapping, error) {
	resp, err := c.Get(ctx, snap, FlowMappingsPath)
	if err != nil {
		return nil, err
	}
	return decodeList[FlowMapping](resp, "mappings")
}

// SaveFlowMapping creates or replaces the mapping for m.FlowKey.
func (c *Client) SaveFlowMapping(ctx context.Context, snap session.Snapshot, m FlowMapping) error {
	_, err := c.Put(ctx, snap, FlowMappingsPath, m)
	return err
}

// DeleteFlowMapping removes the mapping for flowKey.
func (c *Client) DeleteFlowMapping(ctx context.Context, snap session.Snapshot, flowKey string) error {
	_, err := c.Delete(ctx, snap, FlowMappingsPath+"/"+url.PathEscape(flowKey))
	return err
}

// Affordability reports whether an app can pay for one run of a flow.
type Affordability struct {
	AppID      string `json:"app_id"`
	FlowKey    string `json:"flow_key"`
	Affordable bool   `json:"affordable"`
	Balance    int64  `json:"balance"`
	Required   int64  `json:"required"`
	Shortage   int64  `json:"shortage"`
}

// CheckAffordability asks whether appID can run flowKey.
func (c *Client) CheckAffordability(ctx context.Context, snap session.Snapshot, appID, flowKey string) (*Affordability, error) {
	endpoint := APIPrefix + "/admin/apps/" + url.PathEscape(appID) + "/affordability?flow_key=" + url.QueryEscape(flowKey)
	var a Affordability
	if err := c.GetJSON(ctx, snap, endpoint, &a); err != nil {
		return nil, err
	}
	if a.AppID == "" {
		a.AppID = appID
	}
	if a.FlowKey == "" {
		a.FlowKey = flowKey
	}
	if !a.Affordable && a.Shortage == 0 && a.Required > a.Balance {
		a.Shortage = a.Required - a.Balance
	}
	return &a, nil
}
