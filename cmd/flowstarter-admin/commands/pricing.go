// ABOUTME: pricing commands: show the remote pricing config and run the credit simulator locally

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowstarter/flowstarter-console/internal/pricing"
)

func pricingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect pricing and simulate credit conversion",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the pricing config and its derived multipliers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireBase(); err != nil {
				return err
			}
			cfg, err := a.api.PricingConfig(ctx(cmd), a.snap)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cfg)
			}
			return a.printSimulation(cfg.WithDefaults())
		},
	}

	var in pricing.Config
	var costNames []string
	var costAmounts []string
	var fromRemote bool
	simulate := &cobra.Command{
		Use:   "simulate",
		Short: "Compute the credit multiplier for a pricing config",
		Long: "Compute the credit multiplier for a pricing config. Flags override the\n" +
			"remote config when --remote is set, otherwise they stand alone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := pricing.Config{}
			if fromRemote {
				if err := a.requireBase(); err != nil {
					return err
				}
				remote, err := a.api.PricingConfig(ctx(cmd), a.snap)
				if err != nil {
					return err
				}
				cfg = *remote
			}
			flags := cmd.Flags()
			if flags.Changed("revenue-target") {
				cfg.RevenueTarget = in.RevenueTarget
			}
			if flags.Changed("margin") {
				cfg.MarginMultiplier = in.MarginMultiplier
			}
			if flags.Changed("usd-to-credits") {
				cfg.USDToCredits = in.USDToCredits
			}
			if len(costNames) > 0 || len(costAmounts) > 0 {
				costs, err := pricing.ParseFixedCosts(costNames, costAmounts)
				if err != nil {
					return err
				}
				cfg.FixedCosts = costs
			}
			return a.printSimulation(cfg.WithDefaults())
		},
	}
	f := simulate.Flags()
	f.Float64Var(&in.RevenueTarget, "revenue-target", 0, "monthly revenue target in USD")
	f.Float64Var(&in.MarginMultiplier, "margin", pricing.DefaultMarginMultiplier, "margin multiplier")
	f.Float64Var(&in.USDToCredits, "usd-to-credits", pricing.DefaultUSDToCredits, "credits per USD")
	f.StringArrayVar(&costNames, "cost-name", nil, "fixed cost name (repeatable, pairs with --cost-usd)")
	f.StringArrayVar(&costAmounts, "cost-usd", nil, "fixed cost monthly USD (repeatable)")
	f.BoolVar(&fromRemote, "remote", false, "start from the remote pricing config")

	cmd.AddCommand(show, simulate)
	return cmd
}

func (a *app) printSimulation(cfg pricing.Config) error {
	sim, err := pricing.Simulate(cfg)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return a.printJSON(sim)
	}
	field(a.out, "Revenue", numbers.Currency(cfg.RevenueTarget, "USD"))
	field(a.out, "Fixed costs", numbers.Currency(sim.TotalFixedCosts, "USD"))
	field(a.out, "Overhead", numbers.Multiplier(sim.OverheadMultiplier))
	field(a.out, "Margin", numbers.Multiplier(sim.MarginMultiplier))
	field(a.out, "USD->credits", numbers.Number(sim.USDToCredits, 0))
	field(a.out, "Credit mult.", numbers.Multiplier(sim.CreditMultiplier))
	fmt.Fprintln(a.out)

	t := newTable(a.out, "PROVIDER COST", "CREDITS")
	for _, s := range sim.Samples {
		t.row(numbers.Currency(s.ProviderCostUSD, "USD"), numbers.Credits(s.Credits))
	}
	return t.flush()
}
