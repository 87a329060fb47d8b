// ABOUTME: auth commands: log in as an end user against the flow API and inspect the token's user

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func authCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "End-user authentication against the flow API",
	}

	var email, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Log in and print an access token",
		Long: "Log in and print an access token. Export it as FLOWSTARTER_TOKEN to use it\n" +
			"with other commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			tok, err := a.flows.Login(ctx(cmd), email, password)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(tok)
			}
			fmt.Fprintln(a.out, tok.AccessToken)
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", "", "account email")
	login.Flags().StringVar(&password, "password", "", "account password")

	user := &cobra.Command{
		Use:   "user",
		Short: "Show the user behind --token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.snap.Token == "" {
				return errors.New("no token: pass --token or set FLOWSTARTER_TOKEN")
			}
			u, err := a.flows.User(ctx(cmd), a.snap.Token)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(u)
			}
			field(a.out, "ID", u.ID)
			field(a.out, "Email", u.Email)
			field(a.out, "Name", orDash(u.Name))
			field(a.out, "Credits", numbers.Number(u.Credits, 2))
			field(a.out, "Plan", orDash(u.PlanID))
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.snap.Token == "" {
				return errors.New("no token: pass --token or set FLOWSTARTER_TOKEN")
			}
			if err := a.flows.Logout(ctx(cmd), a.snap.Token); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}

	cmd.AddCommand(login, user, logout)
	return cmd
}
