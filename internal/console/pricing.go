// ABOUTME: Pricing page: credit pricing configuration, fixed-cost rows and the live simulator
// ABOUTME: Saves merge the form onto the remote configuration together with the computed multiplier

package console

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/flowstarter/flowstarter-console/internal/pricing"
	"github.com/flowstarter/flowstarter-console/internal/store"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// pricingView is the pricing form and its simulation.
type pricingView struct {
	Config     pricing.Config
	Rows       []pricing.FixedCost
	Simulation *pricing.Simulation
	SimError   string
}

func newPricingView(cfg pricing.Config) *pricingView {
	v := &pricingView{Config: cfg, Rows: append([]pricing.FixedCost(nil), cfg.FixedCosts...)}
	if len(v.Rows) == 0 {
		v.Rows = []pricing.FixedCost{{}}
	}
	sim, err := pricing.Simulate(cfg)
	if err != nil {
		v.SimError = err.Error()
	} else {
		v.Simulation = &sim
	}
	return v
}

func loadPricing(c *Console, r *http.Request, _ string) (any, error) {
	cfg, err := c.api.PricingConfig(r.Context(), snapshotFrom(r))
	if err != nil {
		return newPricingView(pricing.Config{}.WithDefaults()), err
	}
	return newPricingView(cfg.WithDefaults()), nil
}

// pricingFromForm reads the pricing form. Blank fixed-cost rows are dropped.
func pricingFromForm(r *http.Request) (pricing.Config, error) {
	if err := r.ParseForm(); err != nil {
		return pricing.Config{}, err
	}
	num := func(field, label string) (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(r.PostFormValue(field)), 64)
		if err != nil || !pricing.IsFinite(v) {
			return 0, fmt.Errorf("%s must be a number", label)
		}
		return v, nil
	}

	var (
		cfg pricing.Config
		err error
	)
	if cfg.RevenueTarget, err = num("revenue_target", "revenue target"); err != nil {
		return cfg, err
	}
	if cfg.MarginMultiplier, err = num("margin_multiplier", "margin multiplier"); err != nil {
		return cfg, err
	}
	if cfg.USDToCredits, err = num("usd_to_credits", "USD to credits"); err != nil {
		return cfg, err
	}
	if cfg.MinimumCredits, err = parseInt64(r.PostFormValue("minimum_credits"), 0); err != nil {
		return cfg, fmt.Errorf("minimum credits must be a whole number")
	}
	costs, err := pricing.ParseFixedCosts(r.PostForm["fixed_cost_name"], r.PostForm["fixed_cost_usd"])
	if err != nil {
		return cfg, err
	}
	cfg.FixedCosts = costs
	if cfg.FixedCosts == nil {
		cfg.FixedCosts = []pricing.FixedCost{}
	}
	return cfg, nil
}

// formRows returns the fixed-cost rows exactly as typed, so a row being
// edited survives a preview even while it is incomplete.
func formRows(r *http.Request) []pricing.FixedCost {
	names := r.PostForm["fixed_cost_name"]
	amounts := r.PostForm["fixed_cost_usd"]
	rows := make([]pricing.FixedCost, 0, len(names))
	for i, name := range names {
		row := pricing.FixedCost{Name: name}
		if i < len(amounts) {
			row.MonthlyUSD, _ = strconv.ParseFloat(strings.TrimSpace(amounts[i]), 64)
		}
		rows = append(rows, row)
	}
	return rows
}

// handlePricingSimulate recomputes the preview and applies row edits
// (op=add_row, op=remove_row with row=<index>).
func (c *Console) handlePricingSimulate(w http.ResponseWriter, r *http.Request) {
	cfg, err := pricingFromForm(r)
	view := newPricingView(cfg)
	if err != nil {
		view.Simulation = nil
		view.SimError = err.Error()
	}
	view.Rows = formRows(r)

	switch r.PostFormValue("op") {
	case "add_row":
		view.Rows = append(view.Rows, pricing.FixedCost{})
	case "remove_row":
		if i, err := strconv.Atoi(r.PostFormValue("row")); err == nil && i >= 0 && i < len(view.Rows) {
			view.Rows = append(view.Rows[:i], view.Rows[i+1:]...)
		}
	}
	if len(view.Rows) == 0 {
		view.Rows = []pricing.FixedCost{{}}
	}

	tab := r.PostFormValue("tab")
	if tab != "simulator" {
		tab = "config"
	}
	c.renderBody(w, r, "pricing", tab, map[string]any{"Form": view})
}

func (c *Console) handleSavePricingConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := pricingFromForm(r)
	if err == nil {
		err = c.validator.Validate(validate.PricingConfig, cfg)
	}
	if err != nil {
		c.toastError(r, "Pricing not saved", err)
		view := newPricingView(cfg)
		view.Rows = formRows(r)
		c.renderBody(w, r, "pricing", "config", map[string]any{"Form": view})
		return
	}

	sim, err := pricing.Simulate(cfg)
	if err != nil {
		c.toastError(r, "Pricing not saved", err)
		c.renderBody(w, r, "pricing", "config", map[string]any{"Form": newPricingView(cfg)})
		return
	}
	cfg.CreditMultiplier = sim.CreditMultiplier

	if _, err := c.api.SavePricingConfig(r.Context(), snapshotFrom(r), cfg); err != nil {
		c.toastError(r, "Failed to save pricing", err)
		c.renderBody(w, r, "pricing", "config", map[string]any{"Form": newPricingView(cfg)})
		return
	}

	c.audit(r, store.AuditSavePricingConfig, "config", "pricing", map[string]any{
		"revenue_target":    cfg.RevenueTarget,
		"credit_multiplier": cfg.CreditMultiplier,
		"fixed_costs":       len(cfg.FixedCosts),
	})
	c.toast(r, toastSuccess, "Pricing saved, credit multiplier "+c.formatter.Multiplier(sim.CreditMultiplier))
	c.renderBody(w, r, "pricing", "config", nil)
}
