// ABOUTME: Observability page: recent backend logs, usage snapshots and the credit ledger
// ABOUTME: All three tabs are read-only

package console

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
)

// logLevels are offered in the level filter.
var logLevels = []string{"debug", "info", "warning", "error"}

type logsView struct {
	Entries []apiclient.LogEntry
	Level   string
	Levels  []string
	Limit   int
}

type snapshotsView struct {
	Snapshots []apiclient.UsageSnapshot
}

type ledgerView struct {
	Entries []apiclient.LedgerEntry
	UserID  string
	Limit   int
}

func queryLimit(r *http.Request, def, maxLimit int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxLimit)
}

func loadObservability(c *Console, r *http.Request, tab string) (any, error) {
	ctx := r.Context()
	snap := snapshotFrom(r)

	switch tab {
	case "snapshots":
		view := &snapshotsView{}
		snaps, err := c.api.Snapshots(ctx, snap)
		view.Snapshots = snaps
		return view, err

	case "ledger":
		view := &ledgerView{
			UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
			Limit:  queryLimit(r, 50, 500),
		}
		entries, err := c.api.Ledger(ctx, snap, apiclient.LedgerQuery{UserID: view.UserID, Limit: view.Limit})
		view.Entries = entries
		return view, err
	}

	view := &logsView{Levels: logLevels, Limit: queryLimit(r, 100, 1000)}
	if lvl := strings.ToLower(r.URL.Query().Get("level")); lvl != "" {
		for _, l := range logLevels {
			if l == lvl {
				view.Level = lvl
			}
		}
	}
	entries, err := c.api.Logs(ctx, snap, apiclient.LogQuery{Level: view.Level, Limit: view.Limit})
	view.Entries = entries
	return view, err
}
