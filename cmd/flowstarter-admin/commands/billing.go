// ABOUTME: billing commands: provider configuration with masked secrets and the resolved plan list

package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

func billingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Inspect the billing provider and plans",
	}

	config := &cobra.Command{
		Use:   "config",
		Short: "Show the billing provider configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			cfg, err := a.api.BillingConfig(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			cfg.SecretKey = session.Mask(cfg.SecretKey)
			cfg.WebhookSecret = session.Mask(cfg.WebhookSecret)
			if a.jsonOut {
				return a.printJSON(cfg)
			}
			field(a.out, "Provider", orDash(cfg.Provider))
			field(a.out, "Currency", orDash(cfg.Currency))
			field(a.out, "Publishable", orDash(cfg.PublishableKey))
			field(a.out, "Secret key", orDash(cfg.SecretKey))
			field(a.out, "Webhook", orDash(cfg.WebhookSecret))
			field(a.out, "Trial", numbers.Credits(cfg.TrialCredits))
			return nil
		},
	}

	plans := &cobra.Command{
		Use:   "plans",
		Short: "List plans, falling back from the plans endpoint to the billing config to defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			c := ctx(cmd)
			// A failed config fetch is retried and recorded by the resolver.
			cfg, _ := a.api.BillingConfig(c, a.snap)
			res := a.api.ResolvePlans(c, a.snap, cfg)
			if a.jsonOut {
				return a.printJSON(res.Plans)
			}
			for _, e := range res.Errors {
				fmt.Fprintln(a.out, color.YellowString("source %s failed: %v", e.Source, e.Err))
			}
			field(a.out, "Source", res.Source)
			t := newTable(a.out, "ID", "NAME", "PRICE", "CREDITS", "ACTIVE", "FEATURES")
			for _, p := range res.Plans {
				cur := p.Currency
				if cur == "" {
					cur = "USD"
				}
				t.row(p.ID, p.Name, numbers.Currency(p.PriceMonthly, cur), numbers.Credits(p.MonthlyCredits), yesNo(p.Active), truncate(strings.Join(p.Features, ", "), 48))
			}
			return t.flush()
		},
	}

	cmd.AddCommand(config, plans)
	return cmd
}
