// ABOUTME: Root cobra command for flowstarter-admin and the shared session/client setup
// ABOUTME: Connection settings come from FLOWSTARTER_* variables, a .env file, and flags

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/flowclient"
	"github.com/flowstarter/flowstarter-console/internal/session"
)

// connEnv is the connection configuration read from the environment.
type connEnv struct {
	BaseURL  string `env:"FLOWSTARTER_BASE_URL"`
	Token    string `env:"FLOWSTARTER_TOKEN"`
	AdminKey string `env:"FLOWSTARTER_ADMIN_KEY"`
	AppID    string `env:"FLOWSTARTER_APP_ID"`
	// Timeout applies to every call when set; zero means no client timeout.
	Timeout time.Duration `env:"FLOWSTARTER_TIMEOUT"`
}

// app is the state shared by every command.
type app struct {
	conn     connEnv
	jsonOut  bool
	snap     session.Snapshot
	api      *apiclient.Client
	flows    *flowclient.Client
	out      io.Writer
	envFiles []string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{envFiles: []string{".env"}}

	root := &cobra.Command{
		Use:           "flowstarter-admin",
		Short:         "Operate a Flowstarter billing deployment from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.conn.BaseURL, "base-url", "", "API base URL (env FLOWSTARTER_BASE_URL)")
	flags.StringVar(&a.conn.Token, "token", "", "bearer JWT (env FLOWSTARTER_TOKEN)")
	flags.StringVar(&a.conn.AdminKey, "admin-key", "", "admin key (env FLOWSTARTER_ADMIN_KEY)")
	flags.StringVar(&a.conn.AppID, "app-id", "", "default app ID (env FLOWSTARTER_APP_ID)")
	flags.BoolVar(&a.jsonOut, "json", false, "print raw JSON")

	root.AddCommand(
		statusCmd(a),
		usersCmd(a),
		pricingCmd(a),
		billingCmd(a),
		setupCmd(a),
		credentialsCmd(a),
		rolloutCmd(a),
		flowsCmd(a),
		authCmd(a),
		logsCmd(a),
		snapshotsCmd(a),
		ledgerCmd(a),
	)
	return root
}

// setup merges env and flags into a snapshot and builds the clients.
// Flags win over the environment.
func (a *app) setup(cmd *cobra.Command) error {
	for _, f := range a.envFiles {
		_ = godotenv.Load(f)
	}

	var fromEnv connEnv
	if err := env.Parse(&fromEnv); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("base-url") {
		a.conn.BaseURL = fromEnv.BaseURL
	}
	if !flags.Changed("token") {
		a.conn.Token = fromEnv.Token
	}
	if !flags.Changed("admin-key") {
		a.conn.AdminKey = fromEnv.AdminKey
	}
	if !flags.Changed("app-id") {
		a.conn.AppID = fromEnv.AppID
	}
	a.conn.Timeout = fromEnv.Timeout

	flowsCfg, err := flowclient.ConfigFromEnv()
	if err != nil {
		return err
	}

	a.snap = session.Snapshot{
		BaseURL:  a.conn.BaseURL,
		Token:    a.conn.Token,
		AdminKey: a.conn.AdminKey,
		AppID:    a.conn.AppID,
	}
	a.api = apiclient.New(
		apiclient.WithHTTPClient(&http.Client{Timeout: a.conn.Timeout}),
		apiclient.WithLogger(slog.New(slog.DiscardHandler)),
		apiclient.WithUserAgent("flowstarter-admin"),
	)
	a.flows = flowclient.New(flowsCfg, a.api)
	a.out = cmd.OutOrStdout()
	return nil
}

// requireBase fails early when no API base URL is configured.
func (a *app) requireBase() error {
	if a.snap.Base() == "" {
		return apiclient.ErrNoBaseURL
	}
	return nil
}

// appID returns the flag value or the session default.
func (a *app) appID(flag string) string {
	if flag != "" {
		return flag
	}
	return a.snap.AppID
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ctx returns the command's context.
func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}
