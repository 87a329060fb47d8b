// ABOUTME: credentials commands: rotate one credential kind, test provider credentials, export

package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/format"
)

func credentialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Rotate, test and export backend credentials",
	}

	rotate := &cobra.Command{
		Use:       "rotate KIND",
		Short:     "Rotate a credential (" + strings.Join(apiclient.CredentialKinds, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: apiclient.CredentialKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if !slices.Contains(apiclient.CredentialKinds, kind) {
				return fmt.Errorf("unknown credential kind %q (want one of %s)", kind, strings.Join(apiclient.CredentialKinds, ", "))
			}
			if err := a.requireBase(); err != nil {
				return err
			}
			r, err := a.api.RotateCredentials(ctx(cmd), a.snap, kind)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(r)
			}
			fmt.Fprintln(a.out, color.GreenString("Rotated %s", r.Kind))
			if !r.RotatedAt.IsZero() {
				field(a.out, "At", format.Timestamp(r.RotatedAt))
			}
			if r.Value != "" {
				field(a.out, "New value", r.Value)
				fmt.Fprintln(a.out, color.YellowString("Store it now, it will not be shown again."))
			}
			return nil
		},
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Verify the provider credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			res, err := a.api.TestCredentials(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			t := newTable(a.out, "CHECK", "RESULT", "MESSAGE")
			for _, c := range res.Checks {
				t.row(c.Name, okWord(c.OK), orDash(c.Message))
			}
			if err := t.flush(); err != nil {
				return err
			}
			if !res.OK {
				return errors.New("credential checks failed")
			}
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the credential export as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			raw, err := a.api.ExportCredentials(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			return a.printJSON(raw)
		},
	}

	cmd.AddCommand(rotate, test, export)
	return cmd
}
