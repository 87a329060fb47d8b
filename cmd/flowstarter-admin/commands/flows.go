// ABOUTME: flows commands: flow-key mappings, affordability checks and one-off flow executions

package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/flowclient"
)

func flowsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Manage flow mappings and probe flow execution",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List flow mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			ms, err := a.api.FlowMappings(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(ms)
			}
			t := newTable(a.out, "KEY", "FLOW", "APP", "MIN CREDITS", "DESCRIPTION")
			for _, m := range ms {
				t.row(m.FlowKey, m.FlowID, orDash(m.AppID), numbers.Credits(m.MinCredits), truncate(orDash(m.Description), 40))
			}
			return t.flush()
		},
	}

	var m apiclient.FlowMapping
	set := &cobra.Command{
		Use:   "set FLOW_KEY",
		Short: "Create or replace a flow mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if m.FlowID == "" {
				return errors.New("--flow-id is required")
			}
			if m.MinCredits < 0 {
				return errors.New("--min-credits cannot be negative")
			}
			if err := a.requireBase(); err != nil {
				return err
			}
			mapping := m
			mapping.FlowKey = args[0]
			mapping.AppID = a.appID(m.AppID)
			if err := a.api.SaveFlowMapping(ctx(cmd), a.snap, mapping); err != nil {
				return err
			}
			fmt.Fprintln(a.out, color.GreenString("Mapping %s saved", mapping.FlowKey))
			return nil
		},
	}
	set.Flags().StringVar(&m.FlowID, "flow-id", "", "flow to run for this key")
	set.Flags().StringVar(&m.AppID, "app", "", "app ID (defaults to --app-id)")
	set.Flags().Int64Var(&m.MinCredits, "min-credits", 0, "credits required to start a run")
	set.Flags().StringVar(&m.Description, "description", "", "free-form description")

	del := &cobra.Command{
		Use:   "delete FLOW_KEY",
		Short: "Remove a flow mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			if err := a.api.DeleteFlowMapping(ctx(cmd), a.snap, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, color.YellowString("Mapping %s deleted", args[0]))
			return nil
		},
	}

	var affordApp string
	afford := &cobra.Command{
		Use:   "afford FLOW_KEY",
		Short: "Check whether an app can pay for one run of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			appID := a.appID(affordApp)
			if appID == "" {
				return errors.New("an app ID is required: pass --app or --app-id")
			}
			res, err := a.api.CheckAffordability(ctx(cmd), a.snap, appID, args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			if res.Affordable {
				fmt.Fprintln(a.out, color.GreenString("Affordable"))
			} else {
				fmt.Fprintln(a.out, color.RedString("Not affordable"))
			}
			field(a.out, "Balance", numbers.Credits(res.Balance))
			field(a.out, "Required", numbers.Credits(res.Required))
			if res.Shortage > 0 {
				field(a.out, "Shortage", numbers.Credits(res.Shortage))
			}
			return nil
		},
	}
	afford.Flags().StringVar(&affordApp, "app", "", "app ID (defaults to --app-id)")

	var exec flowclient.ExecuteRequest
	var override string
	run := &cobra.Command{
		Use:   "run FLOW_ID QUESTION",
		Short: "Execute a flow as the end user behind --token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.snap.Token == "" {
				return errors.New("an end-user token is required: pass --token or run auth login")
			}
			req := exec
			req.FlowID = args[0]
			req.Question = args[1]
			req.AppID = a.appID(exec.AppID)
			if override != "" {
				if err := json.Unmarshal([]byte(override), &req.OverrideConfig); err != nil {
					return errors.New("--override must be a JSON object")
				}
			}
			res, err := a.flows.ExecuteFlow(ctx(cmd), a.snap.Token, req)
			if err != nil {
				var need *flowclient.CreditsNeededError
				if errors.As(err, &need) {
					return fmt.Errorf("not enough credits: %w", err)
				}
				return err
			}
			if a.jsonOut {
				return a.printJSON(res.Raw)
			}
			fmt.Fprintln(a.out, res.Text)
			field(a.out, "Credits used", numbers.Number(res.CreditsUsed, 2))
			field(a.out, "Balance", numbers.Number(res.Balance, 2))
			return nil
		},
	}
	run.Flags().StringVar(&exec.AppID, "app", "", "app ID (defaults to --app-id)")
	run.Flags().StringVar(&override, "override", "", "override config as a JSON object")

	cmd.AddCommand(list, set, del, afford, run)
	return cmd
}
