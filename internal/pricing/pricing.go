// ABOUTME: Credit pricing model: fixed-cost overhead, margin and USD-to-credit conversion
// ABOUTME: Computes the credit multiplier and sample conversions shown in the simulator

package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRevenueTarget is returned when the revenue target is not positive.
var ErrInvalidRevenueTarget = errors.New("revenue target must be greater than zero")

// ErrNotFinite is returned for NaN or infinite inputs.
var ErrNotFinite = errors.New("must be a finite number")

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FixedCost is a recurring monthly platform cost.
type FixedCost struct {
	Name       string  `json:"name"`
	MonthlyUSD float64 `json:"monthly_usd"`
}

// Config is the remote pricing configuration.
type Config struct {
	RevenueTarget    float64     `json:"revenue_target"`
	MarginMultiplier float64     `json:"margin_multiplier"`
	USDToCredits     float64     `json:"usd_to_credits"`
	MinimumCredits   int64       `json:"minimum_credits"`
	FixedCosts       []FixedCost `json:"fixed_costs"`
	CreditMultiplier float64     `json:"credit_multiplier,omitempty"`
}

// Defaults used when the remote config is empty.
const (
	DefaultMarginMultiplier = 1.5
	DefaultUSDToCredits     = 100
)

// WithDefaults fills zero-valued multipliers.
func (c Config) WithDefaults() Config {
	if c.MarginMultiplier == 0 {
		c.MarginMultiplier = DefaultMarginMultiplier
	}
	if c.USDToCredits == 0 {
		c.USDToCredits = DefaultUSDToCredits
	}
	return c
}

// TotalFixedCosts sums the monthly fixed costs.
func (c Config) TotalFixedCosts() float64 {
	var total float64
	for _, fc := range c.FixedCosts {
		total += fc.MonthlyUSD
	}
	return total
}

// Sample is one provider-cost to credits conversion.
type Sample struct {
	ProviderCostUSD float64
	Credits         int64
}

// Simulation is the result of evaluating a Config.
type Simulation struct {
	TotalFixedCosts    float64
	OverheadMultiplier float64
	MarginMultiplier   float64
	USDToCredits       float64
	CreditMultiplier   float64
	Samples            []Sample
}

// SampleCosts are the provider costs shown in the simulator.
var SampleCosts = []float64{0.001, 0.01, 0.05, 0.25, 1}

// Simulate computes the overhead and credit multipliers:
//
//	overhead = 1 + sum(fixed costs) / revenue target
//	credit multiplier = overhead * margin * usd-to-credits
func Simulate(c Config) (Simulation, error) {
	for name, v := range map[string]float64{
		"revenue target":    c.RevenueTarget,
		"margin multiplier": c.MarginMultiplier,
		"USD to credits":    c.USDToCredits,
	} {
		if !IsFinite(v) {
			return Simulation{}, fmt.Errorf("%s %w", name, ErrNotFinite)
		}
	}
	for _, fc := range c.FixedCosts {
		if !IsFinite(fc.MonthlyUSD) {
			return Simulation{}, fmt.Errorf("fixed cost %q %w", fc.Name, ErrNotFinite)
		}
	}
	if c.RevenueTarget <= 0 {
		return Simulation{}, ErrInvalidRevenueTarget
	}
	if c.MarginMultiplier < 0 || c.USDToCredits < 0 {
		return Simulation{}, errors.New("multipliers cannot be negative")
	}

	total := c.TotalFixedCosts()
	overhead := 1 + total/c.RevenueTarget

	sim := Simulation{
		TotalFixedCosts:    total,
		OverheadMultiplier: overhead,
		MarginMultiplier:   c.MarginMultiplier,
		USDToCredits:       c.USDToCredits,
		CreditMultiplier:   overhead * c.MarginMultiplier * c.USDToCredits,
	}
	for _, cost := range SampleCosts {
		sim.Samples = append(sim.Samples, Sample{
			ProviderCostUSD: cost,
			Credits:         sim.CreditsFor(cost),
		})
	}
	return sim, nil
}

// CreditsFor converts a provider cost to credits, rounding up.
func (s Simulation) CreditsFor(costUSD float64) int64 {
	return int64(math.Ceil(costUSD*s.CreditMultiplier - 1e-9))
}

// ParseFixedCosts builds fixed-cost rows from parallel form fields. Rows
// with both fields blank are skipped.
func ParseFixedCosts(names, amounts []string) ([]FixedCost, error) {
	var out []FixedCost
	for i := range names {
		name := strings.TrimSpace(names[i])
		amount := ""
		if i < len(amounts) {
			amount = strings.TrimSpace(amounts[i])
		}
		if name == "" && amount == "" {
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("fixed cost %d: name is required", i+1)
		}
		v, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return nil, fmt.Errorf("fixed cost %q: invalid amount %q", name, amount)
		}
		if !IsFinite(v) {
			return nil, fmt.Errorf("fixed cost %q: amount %w", name, ErrNotFinite)
		}
		if v < 0 {
			return nil, fmt.Errorf("fixed cost %q: amount cannot be negative", name)
		}
		out = append(out, FixedCost{Name: name, MonthlyUSD: v})
	}
	return out, nil
}
