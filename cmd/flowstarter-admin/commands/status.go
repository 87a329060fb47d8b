// ABOUTME: status and setup commands: connection summary, setup status, completion and reset

package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/format"
)

// confirmResetSetup must be typed exactly to reset setup.
const confirmResetSetup = "RESET"

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connection settings and the backend setup status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			field(a.out, "API", orDash(a.snap.Base()))
			field(a.out, "App", orDash(a.snap.AppID))
			field(a.out, "Admin key", orDash(a.snap.MaskedAdminKey()))
			field(a.out, "Token", orDash(a.snap.MaskedToken()))
			if info, err := a.snap.TokenInfo(time.Now()); err == nil {
				field(a.out, "Subject", orDash(info.Subject))
				if !info.ExpiresAt.IsZero() {
					exp := format.Timestamp(info.ExpiresAt)
					if info.Expired {
						exp += " " + color.RedString("(expired)")
					}
					field(a.out, "Expires", exp)
				}
			}

			if err := a.requireBase(); err != nil {
				return err
			}
			st, err := a.api.SetupStatus(ctx(cmd), a.snap)
			if err != nil {
				return fmt.Errorf("setup status: %w", err)
			}
			field(a.out, "Setup", yesNo(st.Completed))
			if st.Version != "" {
				field(a.out, "Version", st.Version)
			}
			for _, step := range st.Pending() {
				fmt.Fprintf(a.out, "  %s %s\n", color.YellowString("pending"), step.Key)
			}
			return nil
		},
	}
}

func setupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Inspect, complete or reset the backend's first-run setup",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show setup progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			st, err := a.api.SetupStatus(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(st)
			}
			field(a.out, "Completed", yesNo(st.Completed))
			t := newTable(a.out, "STEP", "DONE")
			for _, s := range st.Steps {
				label := s.Label
				if label == "" {
					label = s.Key
				}
				t.row(label, yesNo(s.Done))
			}
			return t.flush()
		},
	}

	var email, appID string
	complete := &cobra.Command{
		Use:   "complete",
		Short: "Mark setup as finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			st, err := a.api.CompleteSetup(ctx(cmd), a.snap, apiclient.SetupCompletion{
				AdminEmail: email,
				AppID:      a.appID(appID),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, color.GreenString("Setup completed: %v", st.Completed))
			return nil
		},
	}
	complete.Flags().StringVar(&email, "admin-email", "", "administrator email")
	complete.Flags().StringVar(&appID, "app", "", "app ID (defaults to --app-id)")

	var confirm string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Return the backend to its first-run state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm != confirmResetSetup {
				return errors.New("reset cancelled: pass --confirm " + confirmResetSetup)
			}
			if err := a.requireBase(); err != nil {
				return err
			}
			if err := a.api.ResetSetup(ctx(cmd), a.snap); err != nil {
				return err
			}
			fmt.Fprintln(a.out, color.YellowString("Setup reset"))
			return nil
		},
	}
	reset.Flags().StringVar(&confirm, "confirm", "", "type "+confirmResetSetup+" to confirm")

	cmd.AddCommand(status, complete, reset)
	return cmd
}
