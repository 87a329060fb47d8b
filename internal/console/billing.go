// ABOUTME: Billing page: provider configuration, configurable plan drafts, publishing and rollout
// ABOUTME: Plan drafts are kept per operator until they are published upstream

package console

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/billing"
	"github.com/flowstarter/flowstarter-console/internal/store"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// billingView is shown on every billing tab. Secrets are never rendered,
// only whether they are set.
type billingView struct {
	Config           billing.Config
	HasSecretKey     bool
	HasWebhookSecret bool
	Providers        []string
	Plans            billing.Resolution
	Drafts           []billing.Plan
	DraftsStored     bool
	Edit             *billing.Plan
}

func loadBilling(c *Console, r *http.Request, tab string) (any, error) {
	ctx := r.Context()
	snap := snapshotFrom(r)
	view := &billingView{Providers: billing.Providers}

	cfg, cfgErr := c.api.BillingConfig(ctx, snap)
	if cfgErr == nil {
		view.Config = *cfg
		view.HasSecretKey = cfg.SecretKey != ""
		view.HasWebhookSecret = cfg.WebhookSecret != ""
		view.Config.SecretKey = ""
		view.Config.WebhookSecret = ""
	} else {
		cfg = &billing.Config{}
	}

	if tab == "plans" || tab == "rollout" {
		view.Plans = c.api.ResolvePlans(ctx, snap, cfg)
	}
	if tab == "plans" {
		drafts, stored, err := c.planDrafts(r, view.Plans.Plans)
		if err != nil {
			return view, err
		}
		view.Drafts, view.DraftsStored = drafts, stored
		if id := r.URL.Query().Get("edit"); id != "" {
			if p, ok := billing.FindPlan(drafts, id); ok {
				view.Edit = &p
			}
		}
	}
	return view, cfgErr
}

// planDrafts returns the operator's drafts, seeded from fallback when
// nothing has been stored yet.
func (c *Console) planDrafts(r *http.Request, fallback []billing.Plan) ([]billing.Plan, bool, error) {
	var drafts []billing.Plan
	stored, err := c.sessions.LoadPlanDrafts(r.Context(), operatorFrom(r).ID, &drafts)
	if err != nil {
		return nil, false, err
	}
	if !stored {
		drafts = append([]billing.Plan(nil), fallback...)
	}
	return drafts, stored, nil
}

// storedDrafts loads drafts for a mutation, resolving the published plans
// as the seed only when needed.
func (c *Console) storedDrafts(r *http.Request) ([]billing.Plan, error) {
	var drafts []billing.Plan
	stored, err := c.sessions.LoadPlanDrafts(r.Context(), operatorFrom(r).ID, &drafts)
	if err != nil {
		return nil, err
	}
	if stored {
		return drafts, nil
	}
	res := c.api.ResolvePlans(r.Context(), snapshotFrom(r), nil)
	return res.Plans, nil
}

func (c *Console) handleSaveBillingConfig(w http.ResponseWriter, r *http.Request) {
	done := func() { c.renderBody(w, r, "billing", "config", nil) }

	trial, err := parseInt64(r.FormValue("trial_credits"), 0)
	if err != nil {
		c.toast(r, toastError, "Trial credits must be a whole number")
		done()
		return
	}
	patch := apiclient.BillingConfigPatch{
		Provider:       strings.TrimSpace(r.FormValue("provider")),
		Currency:       strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		PublishableKey: strings.TrimSpace(r.FormValue("publishable_key")),
		SecretKey:      strings.TrimSpace(r.FormValue("secret_key")),
		WebhookSecret:  strings.TrimSpace(r.FormValue("webhook_secret")),
		TrialCredits:   trial,
	}
	if err := c.validator.Validate(validate.BillingConfig, patch); err != nil {
		c.toastError(r, "Billing configuration not saved", err)
		done()
		return
	}

	if _, err := c.api.SaveBillingConfig(r.Context(), snapshotFrom(r), patch); err != nil {
		c.toastError(r, "Failed to save billing configuration", err)
		done()
		return
	}

	c.audit(r, store.AuditSaveBillingConfig, "config", "billing", map[string]any{
		"provider":       patch.Provider,
		"secret_changed": patch.SecretKey != "" || patch.WebhookSecret != "",
	})
	c.toast(r, toastSuccess, "Billing configuration saved")
	done()
}

// planFromForm reads a plan draft form.
func planFromForm(r *http.Request) (billing.Plan, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price_monthly")), 64)
	if err != nil {
		return billing.Plan{}, errors.New("monthly price must be a number")
	}
	credits, err := parseInt64(r.FormValue("monthly_credits"), -1)
	if err != nil || credits < 0 {
		return billing.Plan{}, errors.New("monthly credits must be a whole number")
	}
	return billing.Plan{
		ID:              strings.ToLower(strings.TrimSpace(r.FormValue("id"))),
		Name:            strings.TrimSpace(r.FormValue("name")),
		PriceMonthly:    price,
		Currency:        strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		MonthlyCredits:  credits,
		Features:        billing.ParseFeatures(r.FormValue("features")),
		ProviderPriceID: strings.TrimSpace(r.FormValue("provider_price_id")),
		Active:          r.FormValue("active") != "",
	}, nil
}

func (c *Console) handleSavePlanDraft(w http.ResponseWriter, r *http.Request) {
	done := func() { c.renderBody(w, r, "billing", "plans", nil) }

	plan, err := planFromForm(r)
	if err == nil {
		err = plan.Validate()
	}
	if err == nil {
		err = c.validator.Validate(validate.Plan, plan)
	}
	if err != nil {
		c.toastError(r, "Plan not saved", err)
		done()
		return
	}

	drafts, err := c.storedDrafts(r)
	if err != nil {
		c.toastError(r, "Failed to load plan drafts", err)
		done()
		return
	}
	drafts = billing.UpsertPlan(drafts, plan)
	if err := c.sessions.SavePlanDrafts(r.Context(), operatorFrom(r).ID, drafts); err != nil {
		c.toastError(r, "Failed to save plan drafts", err)
		done()
		return
	}

	c.toast(r, toastSuccess, "Draft plan "+plan.ID+" saved")
	done()
}

func (c *Console) handleDeletePlanDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	done := func() { c.renderBody(w, r, "billing", "plans", nil) }

	drafts, err := c.storedDrafts(r)
	if err != nil {
		c.toastError(r, "Failed to load plan drafts", err)
		done()
		return
	}
	if _, ok := billing.FindPlan(drafts, id); !ok {
		c.toast(r, toastError, "No draft plan "+id)
		done()
		return
	}
	if err := c.sessions.SavePlanDrafts(r.Context(), operatorFrom(r).ID, billing.RemovePlan(drafts, id)); err != nil {
		c.toastError(r, "Failed to save plan drafts", err)
		done()
		return
	}

	c.toast(r, toastSuccess, "Draft plan "+id+" removed")
	done()
}

func (c *Console) handlePublishPlans(w http.ResponseWriter, r *http.Request) {
	done := func() { c.renderBody(w, r, "billing", "plans", nil) }

	drafts, err := c.storedDrafts(r)
	if err != nil {
		c.toastError(r, "Failed to load plan drafts", err)
		done()
		return
	}
	if err := c.validator.Validate(validate.Plans, drafts); err != nil {
		c.toastError(r, "Plans not published", err)
		done()
		return
	}

	if err := c.api.PublishPlans(r.Context(), snapshotFrom(r), drafts); err != nil {
		c.toastError(r, "Failed to publish plans", err)
		done()
		return
	}

	ids := make([]string, len(drafts))
	for i, p := range drafts {
		ids[i] = p.ID
	}
	c.audit(r, store.AuditPublishPlans, "plans", "billing", map[string]any{"plans": ids})
	c.toast(r, toastSuccess, "Published "+strconv.Itoa(len(drafts))+" plans")
	done()
}

func rolloutFromForm(r *http.Request) apiclient.RolloutRequest {
	return apiclient.RolloutRequest{
		PlanID:     strings.TrimSpace(r.FormValue("plan_id")),
		AppID:      strings.TrimSpace(r.FormValue("app_id")),
		OnlyActive: r.FormValue("only_active") != "",
	}
}

func (c *Console) handleRolloutPreview(w http.ResponseWriter, r *http.Request) {
	req := rolloutFromForm(r)
	extra := map[string]any{"Request": req}

	if err := c.validator.Validate(validate.RolloutRequest, req); err != nil {
		c.toastError(r, "Invalid rollout", err)
	} else if preview, err := c.api.PreviewRollout(r.Context(), snapshotFrom(r), req); err != nil {
		c.toastError(r, "Failed to preview rollout", err)
	} else {
		extra["Preview"] = preview
	}
	c.renderBody(w, r, "billing", "rollout", extra)
}

func (c *Console) handleRolloutRun(w http.ResponseWriter, r *http.Request) {
	req := rolloutFromForm(r)
	extra := map[string]any{"Request": req}

	if err := c.validator.Validate(validate.RolloutRequest, req); err != nil {
		c.toastError(r, "Invalid rollout", err)
		c.renderBody(w, r, "billing", "rollout", extra)
		return
	}

	key := c.claimSubmission(r, "rollout", req.PlanID, req.AppID, req.OnlyActive)
	if key == "" {
		c.renderBody(w, r, "billing", "rollout", extra)
		return
	}

	res, err := c.api.RunRollout(r.Context(), snapshotFrom(r), req)
	if err != nil {
		c.submissions.Release(key)
		c.toastError(r, "Rollout failed", err)
		c.renderBody(w, r, "billing", "rollout", extra)
		return
	}

	c.audit(r, store.AuditRunRollout, "rollout", res.RunID, map[string]any{
		"plan_id":       req.PlanID,
		"app_id":        req.AppID,
		"only_active":   req.OnlyActive,
		"granted":       res.Granted,
		"total_credits": res.TotalCredits,
	})
	c.toast(r, toastSuccess, "Rollout granted credits to "+strconv.Itoa(res.Granted)+" users")
	extra["Result"] = res
	c.renderBody(w, r, "billing", "rollout", extra)
}

// parseInt64 parses a form integer, returning def for a blank field.
func parseInt64(s string, def int64) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
