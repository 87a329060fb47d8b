// ABOUTME: Tests for the pricing simulator and fixed-cost form parsing
// ABOUTME: Checks the overhead and credit multiplier formulas

package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateMultipliers(t *testing.T) {
	cfg := Config{
		RevenueTarget:    10000,
		MarginMultiplier: 1.5,
		USDToCredits:     100,
		FixedCosts: []FixedCost{
			{Name: "hosting", MonthlyUSD: 1500},
			{Name: "support", MonthlyUSD: 500},
		},
	}

	sim, err := Simulate(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 2000, sim.TotalFixedCosts, 1e-9)
	assert.InDelta(t, 1.2, sim.OverheadMultiplier, 1e-9)
	assert.InDelta(t, 1.2*1.5*100, sim.CreditMultiplier, 1e-9)
	require.Len(t, sim.Samples, len(SampleCosts))
	// 0.01 USD * 180 = 1.8 credits, rounded up.
	assert.Equal(t, int64(2), sim.Samples[1].Credits)
	assert.Equal(t, int64(180), sim.Samples[4].Credits)
}

func TestSimulateWithoutFixedCosts(t *testing.T) {
	sim, err := Simulate(Config{RevenueTarget: 500, MarginMultiplier: 2, USDToCredits: 10})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim.OverheadMultiplier, 1e-9)
	assert.InDelta(t, 20.0, sim.CreditMultiplier, 1e-9)
}

func TestSimulateRejectsZeroRevenueTarget(t *testing.T) {
	_, err := Simulate(Config{MarginMultiplier: 1, USDToCredits: 1})
	assert.ErrorIs(t, err, ErrInvalidRevenueTarget)
}

func TestWithDefaults(t *testing.T) {
	c := Config{RevenueTarget: 1}.WithDefaults()
	assert.Equal(t, DefaultMarginMultiplier, c.MarginMultiplier)
	assert.Equal(t, float64(DefaultUSDToCredits), c.USDToCredits)
}

func TestParseFixedCosts(t *testing.T) {
	costs, err := ParseFixedCosts(
		[]string{"hosting", "", " llm keys "},
		[]string{"120.5", "", "80"},
	)
	require.NoError(t, err)
	assert.Equal(t, []FixedCost{
		{Name: "hosting", MonthlyUSD: 120.5},
		{Name: "llm keys", MonthlyUSD: 80},
	}, costs)

	_, err = ParseFixedCosts([]string{"hosting"}, []string{"lots"})
	assert.Error(t, err)

	_, err = ParseFixedCosts([]string{""}, []string{"10"})
	assert.Error(t, err)

	_, err = ParseFixedCosts([]string{"refund"}, []string{"-1"})
	assert.Error(t, err)
}

func TestSimulateRejectsNonFiniteInputs(t *testing.T) {
	base := Config{RevenueTarget: 1000, MarginMultiplier: 1.5, USDToCredits: 100}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nan revenue", func(c *Config) { c.RevenueTarget = math.NaN() }},
		{"inf revenue", func(c *Config) { c.RevenueTarget = math.Inf(1) }},
		{"nan margin", func(c *Config) { c.MarginMultiplier = math.NaN() }},
		{"inf usd to credits", func(c *Config) { c.USDToCredits = math.Inf(1) }},
		{"nan fixed cost", func(c *Config) { c.FixedCosts = []FixedCost{{Name: "infra", MonthlyUSD: math.NaN()}} }},
		{"negative inf fixed cost", func(c *Config) { c.FixedCosts = []FixedCost{{Name: "infra", MonthlyUSD: math.Inf(-1)}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := Simulate(cfg)
			assert.ErrorIs(t, err, ErrNotFinite)
		})
	}
}

func TestParseFixedCostsRejectsNonFinite(t *testing.T) {
	for _, amount := range []string{"NaN", "Inf", "-Inf", "+Infinity"} {
		_, err := ParseFixedCosts([]string{"infra"}, []string{amount})
		assert.ErrorIs(t, err, ErrNotFinite, "amount %q", amount)
	}
}
