// ABOUTME: Billing plans, provider configuration and plan-list resolution
// ABOUTME: Resolves plans from ordered sources with built-in defaults as the last resort

package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Plan is a subscription plan offered to end users.
type Plan struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	PriceMonthly    float64  `json:"price_monthly"`
	Currency        string   `json:"currency,omitempty"`
	MonthlyCredits  int64    `json:"monthly_credits"`
	Features        []string `json:"features,omitempty"`
	ProviderPriceID string   `json:"provider_price_id,omitempty"`
	Active          bool     `json:"active"`
}

// Config is the remote billing provider configuration.
type Config struct {
	Provider       string `json:"provider"`
	Currency       string `json:"currency,omitempty"`
	PublishableKey string `json:"publishable_key,omitempty"`
	SecretKey      string `json:"secret_key,omitempty"`
	WebhookSecret  string `json:"webhook_secret,omitempty"`
	TrialCredits   int64  `json:"trial_credits"`
	Plans          []Plan `json:"plans,omitempty"`
}

// Providers the console offers in the provider select.
var Providers = []string{"stripe", "paddle", "lemonsqueezy", "manual"}

// DefaultPlans are shown when no source yields a plan.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "starter", Name: "Starter", PriceMonthly: 9, Currency: "USD", MonthlyCredits: 1000, Active: true},
		{ID: "pro", Name: "Pro", PriceMonthly: 29, Currency: "USD", MonthlyCredits: 5000, Active: true},
		{ID: "enterprise", Name: "Enterprise", PriceMonthly: 99, Currency: "USD", MonthlyCredits: 25000, Active: true},
	}
}

// SourceDefaults names the built-in fallback in a Resolution.
const SourceDefaults = "defaults"

// Source is one place plans can come from.
type Source struct {
	Name  string
	Fetch func(ctx context.Context) ([]Plan, error)
}

// SourceError records a source that failed during resolution.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Plans  []Plan
	Source string
	Errors []SourceError
}

// Resolve returns the plans of the first source that yields a non-empty
// list. Failing sources are skipped and recorded. When every source is
// empty or fails, the result is DefaultPlans.
func Resolve(ctx context.Context, sources ...Source) Resolution {
	var res Resolution
	for _, src := range sources {
		plans, err := src.Fetch(ctx)
		if err != nil {
			res.Errors = append(res.Errors, SourceError{Source: src.Name, Err: err})
			continue
		}
		if len(plans) > 0 {
			res.Plans = plans
			res.Source = src.Name
			return res
		}
	}
	res.Plans = DefaultPlans()
	res.Source = SourceDefaults
	return res
}

// Static wraps a fixed plan list as a Source.
func Static(name string, plans []Plan) Source {
	return Source{Name: name, Fetch: func(context.Context) ([]Plan, error) { return plans, nil }}
}

var planIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ErrInvalidPlan is wrapped by Validate failures.
var ErrInvalidPlan = errors.New("invalid plan")

// Validate checks the fields a plan needs before it can be published.
func (p Plan) Validate() error {
	if !planIDPattern.MatchString(p.ID) {
		return fmt.Errorf("%w: id must be lowercase letters, digits, - or _", ErrInvalidPlan)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if p.PriceMonthly < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidPlan)
	}
	if p.MonthlyCredits < 0 {
		return fmt.Errorf("%w: monthly credits cannot be negative", ErrInvalidPlan)
	}
	return nil
}

// UpsertPlan replaces the plan with the same ID or appends it.
func UpsertPlan(plans []Plan, p Plan) []Plan {
	out := make([]Plan, 0, len(plans)+1)
	replaced := false
	for _, existing := range plans {
		if existing.ID == p.ID {
			out = append(out, p)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, p)
	}
	return out
}

// RemovePlan drops the plan with the given ID.
func RemovePlan(plans []Plan, id string) []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// FindPlan returns the plan with the given ID.
func FindPlan(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// ParseFeatures splits a textarea of features into trimmed lines.
func ParseFeatures(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
