// ABOUTME: users commands: search, inspect, adjust credits and delete end users
// ABOUTME: Deleting requires --confirm with the exact confirmation word the console uses

package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/console"
	"github.com/flowstarter/flowstarter-console/internal/format"
)

func usersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage end users and their credit balances",
	}

	var q apiclient.UserQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "Search users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			res, err := a.api.ListUsers(ctx(cmd), a.snap, q)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			now := time.Now()
			t := newTable(a.out, "ID", "EMAIL", "CREDITS", "PLAN", "STATUS", "LAST ACTIVE")
			for _, u := range res.Users {
				last := "-"
				if u.LastActiveAt != nil {
					last = format.Ago(*u.LastActiveAt, now)
				}
				t.row(u.ID, truncate(u.Email, 40), numbers.Credits(u.Credits), orDash(u.PlanID), orDash(u.SubscriptionStatus), last)
			}
			if err := t.flush(); err != nil {
				return err
			}
			if res.TotalKnown {
				fmt.Fprintf(a.out, "%d of %d users\n", len(res.Users), res.Total)
			} else {
				fmt.Fprintf(a.out, "%d users\n", len(res.Users))
			}
			if res.HasNext(q.Offset, q.Limit) {
				fmt.Fprintf(a.out, "more: --offset %d\n", q.Offset+q.Limit)
			}
			return nil
		},
	}
	list.Flags().StringVar(&q.Search, "search", "", "filter by email or name")
	list.Flags().IntVar(&q.Limit, "limit", apiclient.DefaultUserPageSize, "page size")
	list.Flags().IntVar(&q.Offset, "offset", 0, "rows to skip")

	show := &cobra.Command{
		Use:   "show USER_ID",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			u, err := a.api.GetUser(ctx(cmd), a.snap, args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(u)
			}
			field(a.out, "ID", u.ID)
			field(a.out, "Email", u.Email)
			field(a.out, "Name", orDash(u.Name))
			field(a.out, "Credits", numbers.Credits(u.Credits))
			field(a.out, "Plan", orDash(u.PlanID))
			field(a.out, "Subscription", orDash(u.SubscriptionStatus))
			field(a.out, "App", orDash(u.AppID))
			if !u.CreatedAt.IsZero() {
				field(a.out, "Created", format.Timestamp(u.CreatedAt))
			}
			return nil
		},
	}

	var adj apiclient.CreditAdjustment
	credits := &cobra.Command{
		Use:   "credits USER_ID",
		Short: "Add or remove credits (negative --amount removes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if adj.Amount == 0 {
				return errors.New("--amount must not be zero")
			}
			if err := a.requireBase(); err != nil {
				return err
			}
			res, err := a.api.AdjustCredits(ctx(cmd), a.snap, args[0], adj)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "%s new balance %s\n", color.GreenString("Credits adjusted:"), numbers.Credits(res.Balance))
			return nil
		},
	}
	credits.Flags().Int64Var(&adj.Amount, "amount", 0, "credits to add, negative to remove")
	credits.Flags().StringVar(&adj.Reason, "reason", "manual adjustment", "ledger reason")

	var confirm string
	del := &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete a user permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm != console.ConfirmDeleteUser {
				return errors.New("deletion cancelled: pass --confirm " + console.ConfirmDeleteUser)
			}
			if err := a.requireBase(); err != nil {
				return err
			}
			if err := a.api.DeleteUser(ctx(cmd), a.snap, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, color.YellowString("User %s deleted", args[0]))
			return nil
		},
	}
	del.Flags().StringVar(&confirm, "confirm", "", "type "+console.ConfirmDeleteUser+" to confirm")

	cmd.AddCommand(list, show, credits, del)
	return cmd
}
