// ABOUTME: logs, snapshots and ledger commands over the backend observability endpoints

package commands

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/format"
)

func levelColor(level string) string {
	switch level {
	case "error":
		return color.RedString(level)
	case "warn", "warning":
		return color.YellowString(level)
	case "debug":
		return color.HiBlackString(level)
	default:
		return level
	}
}

func logsCmd(a *app) *cobra.Command {
	var q apiclient.LogQuery
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent backend logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			entries, err := a.api.Logs(ctx(cmd), a.snap, q)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(entries)
			}
			t := newTable(a.out, "TIME", "LEVEL", "SOURCE", "MESSAGE")
			for _, e := range entries {
				t.row(format.Timestamp(e.Timestamp), levelColor(e.Level), orDash(e.Source), truncate(e.Message, 80))
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVar(&q.Level, "level", "", "only this level")
	cmd.Flags().IntVar(&q.Limit, "limit", 100, "maximum entries")
	return cmd
}

func snapshotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "Show usage snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			snaps, err := a.api.Snapshots(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(snaps)
			}
			t := newTable(a.out, "TAKEN", "ACTIVE", "RUNS", "FAIL %", "ISSUED", "CONSUMED", "REVENUE", "COST")
			for _, s := range snaps {
				t.row(
					format.Timestamp(s.TakenAt),
					numbers.Integer(s.ActiveUsers),
					numbers.Integer(s.Executions),
					numbers.Percent(s.FailureRate()),
					numbers.Credits(s.CreditsIssued),
					numbers.Credits(s.CreditsConsumed),
					numbers.Currency(s.RevenueUSD, "USD"),
					numbers.Currency(s.ProviderCostUSD, "USD"),
				)
			}
			return t.flush()
		},
	}
}

func ledgerCmd(a *app) *cobra.Command {
	var q apiclient.LedgerQuery
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show credit ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			entries, err := a.api.Ledger(ctx(cmd), a.snap, q)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(entries)
			}
			now := time.Now()
			t := newTable(a.out, "WHEN", "USER", "DELTA", "BALANCE", "REASON")
			for _, e := range entries {
				delta := numbers.Credits(e.Delta)
				if e.Delta < 0 {
					delta = color.RedString(delta)
				} else {
					delta = color.GreenString("+" + delta)
				}
				t.row(format.Ago(e.CreatedAt, now), e.UserID, delta, numbers.Credits(e.Balance), truncate(orDash(e.Reason), 40))
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVar(&q.UserID, "user", "", "only this user")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum entries")
	return cmd
}
