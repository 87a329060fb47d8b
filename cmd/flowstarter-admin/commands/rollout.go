// ABOUTME: rollout commands: preview and run a plan credit grant across users

package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
)

func rolloutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Grant plan credits to users in bulk",
	}

	var req apiclient.RolloutRequest
	var yes bool
	addFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&req.PlanID, "plan", "", "only users on this plan")
		c.Flags().StringVar(&req.AppID, "app", "", "only users of this app (defaults to --app-id)")
		c.Flags().BoolVar(&req.OnlyActive, "only-active", false, "skip users without an active subscription")
	}
	scoped := func() apiclient.RolloutRequest {
		r := req
		r.AppID = a.appID(r.AppID)
		return r
	}

	preview := &cobra.Command{
		Use:   "preview",
		Short: "Show what a rollout would grant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			p, err := a.api.PreviewRollout(ctx(cmd), a.snap, scoped())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(p)
			}
			t := newTable(a.out, "USER", "EMAIL", "PLAN", "CREDITS")
			for _, g := range p.Grants {
				t.row(g.UserID, truncate(g.Email, 40), orDash(g.PlanID), numbers.Credits(g.Credits))
			}
			if err := t.flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d users, %s credits total\n", p.Users, numbers.Credits(p.TotalCredits))
			return nil
		},
	}
	addFlags(preview)

	run := &cobra.Command{
		Use:   "run",
		Short: "Apply a rollout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("rollout not started: preview first, then pass --yes")
			}
			if err := a.requireBase(); err != nil {
				return err
			}
			r, err := a.api.RunRollout(ctx(cmd), a.snap, scoped())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(r)
			}
			fmt.Fprintln(a.out, color.GreenString("Rollout %s finished", orDash(r.RunID)))
			field(a.out, "Granted", r.Granted)
			field(a.out, "Skipped", r.Skipped)
			field(a.out, "Credits", numbers.Credits(r.TotalCredits))
			return nil
		},
	}
	addFlags(run)
	run.Flags().BoolVar(&yes, "yes", false, "apply without prompting")

	cmd.AddCommand(preview, run)
	return cmd
}
