// ABOUTME: Observability endpoints: recent logs, usage snapshots and the credit ledger
// ABOUTME: All three are read-only lists rendered on the observability page

package apiclient

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// LogEntry is one backend log line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Source    string         `json:"source,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	FlowKey   string         `json:"flow_key,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogQuery filters Logs.
type LogQuery struct {
	Level string
	Limit int
}

// Logs fetches recent backend logs.
func (c *Client) Logs(ctx context.Context, snap session.Snapshot, q LogQuery) ([]LogEntry, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	params := url.Values{}
	if q.Level != "" {
		params.Set("level", q.Level)
	}
	params.Set("limit", strconv.Itoa(q.Limit))

	resp, err := c.Get(ctx, snap, APIPrefix+"/observability/logs?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return decodeList[LogEntry](resp, "logs")
}

// UsageSnapshot is a periodic aggregate of platform usage.
type UsageSnapshot struct {
	TakenAt         time.Time `json:"taken_at"`
	ActiveUsers     int64     `json:"active_users"`
	Executions      int64     `json:"executions"`
	Failures        int64     `json:"failures"`
	CreditsIssued   int64     `json:"credits_issued"`
	CreditsConsumed int64     `json:"credits_consumed"`
	RevenueUSD      float64   `json:"revenue_usd"`
	ProviderCostUSD float64   `json:"provider_cost_usd"`
}

// FailureRate returns failures over executions.
func (s UsageSnapshot) FailureRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Executions)
}

// Snapshots fetches usage snapshots, newest first as returned by the API.
func (c *Client) Snapshots(ctx context.Context, snap session.Snapshot) ([]UsageSnapshot, error) {
	resp, err := c.Get(ctx, snap, APIPrefix+"/observability/snapshots")
	if err != nil {
		return nil, err
	}
	return decodeList[UsageSnapshot](resp, "snapshots")
}

// LedgerEntry is one credit movement.
type LedgerEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Delta     int64     `json:"delta"`
	Balance   int64     `json:"balance"`
	Reason    string    `json:"reason"`
	FlowKey   string    `json:"flow_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerQuery filters Ledger.
type LedgerQuery struct {
	UserID string
	Limit  int
}

// Ledger fetches credit ledger entries.
func (c *Client) Ledger(ctx context.Context, snap session.Snapshot, q LedgerQuery) ([]LedgerEntry, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	params := url.Values{}
	if q.UserID != "" {
		params.Set("user_id", q.UserID)
	}
	params.Set("limit", strconv.Itoa(q.Limit))

	resp, err := c.Get(ctx, snap, APIPrefix+"/observability/ledger?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return decodeList[LedgerEntry](resp, "entries")
}
