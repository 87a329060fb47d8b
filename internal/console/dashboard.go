// ABOUTME: Dashboard page: platform overview and the console audit log
// ABOUTME: The overview tolerates individual upstream failures and shows what it could load

package console

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/billing"
	"github.com/flowstarter/flowstarter-console/internal/pricing"
	"github.com/flowstarter/flowstarter-console/internal/store"
)

// overview is the dashboard summary. Each part is optional; Problems lists
// the parts that failed to load.
type overview struct {
	Setup      *apiclient.SetupStatus
	Billing    *billing.Config
	Plans      billing.Resolution
	Simulation *pricing.Simulation
	Users      int64
	UsersKnown bool
	Latest     *apiclient.UsageSnapshot
	Problems   []string
}

// auditView is the audit tab.
type auditView struct {
	Entries   []auditRow
	Action    string
	Actions   []store.AuditAction
	Operators map[string]string
}

type auditRow struct {
	store.AuditEntry
	Actor string
}

var auditActions = []store.AuditAction{
	store.AuditSaveSession, store.AuditClearSession,
	store.AuditSaveBillingConfig, store.AuditPublishPlans, store.AuditRunRollout,
	store.AuditSavePricingConfig,
	store.AuditAdjustCredits, store.AuditDeleteUser,
	store.AuditCompleteSetup, store.AuditResetSetup,
	store.AuditRotateCredential, store.AuditExportCredentials,
	store.AuditSaveFlowMapping, store.AuditDeleteFlowMapping,
	store.AuditCreateInvite, store.AuditCreateOperator, store.AuditChangePassword,
	store.AuditRegisterPasskey, store.AuditDeletePasskey,
	store.AuditExecuteFlowProbe, store.AuditAuthenticateProbe, store.AuditUseProbeToken,
	store.AuditCheckAffordability,
}

func loadDashboard(c *Console, r *http.Request, tab string) (any, error) {
	if tab == "audit" {
		return c.loadAudit(r)
	}
	return c.loadOverview(r), nil
}

// loadOverview fetches the summary parts concurrently. The snapshot is
// immutable so the goroutines share it safely.
func (c *Console) loadOverview(r *http.Request) *overview {
	ctx := r.Context()
	snap := snapshotFrom(r)
	ov := &overview{}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	problem := func(part string, err error) {
		mu.Lock()
		defer mu.Unlock()
		ov.Problems = append(ov.Problems, part+": "+errorText(err))
	}
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() {
		s, err := c.api.SetupStatus(ctx, snap)
		if err != nil {
			problem("setup", err)
			return
		}
		mu.Lock()
		ov.Setup = s
		mu.Unlock()
	})
	run(func() {
		cfg, err := c.api.BillingConfig(ctx, snap)
		src := cfg
		if err != nil {
			problem("billing", err)
			src = &billing.Config{}
		}
		res := c.api.ResolvePlans(ctx, snap, src)
		mu.Lock()
		ov.Billing = cfg
		ov.Plans = res
		mu.Unlock()
	})
	run(func() {
		cfg, err := c.api.PricingConfig(ctx, snap)
		if err != nil {
			problem("pricing", err)
			return
		}
		sim, err := pricing.Simulate(cfg.WithDefaults())
		if err != nil {
			problem("pricing", err)
			return
		}
		mu.Lock()
		ov.Simulation = &sim
		mu.Unlock()
	})
	run(func() {
		list, err := c.api.ListUsers(ctx, snap, apiclient.UserQuery{Limit: 1})
		if err != nil {
			problem("users", err)
			return
		}
		mu.Lock()
		ov.Users, ov.UsersKnown = int64(list.Total), list.TotalKnown
		mu.Unlock()
	})
	run(func() {
		snaps, err := c.api.Snapshots(ctx, snap)
		if err != nil {
			problem("snapshots", err)
			return
		}
		if len(snaps) == 0 {
			return
		}
		latest := snaps[0]
		for _, s := range snaps[1:] {
			if s.TakenAt.After(latest.TakenAt) {
				latest = s
			}
		}
		mu.Lock()
		ov.Latest = &latest
		mu.Unlock()
	})

	wg.Wait()
	sort.Strings(ov.Problems)
	return ov
}

func (c *Console) loadAudit(r *http.Request) (*auditView, error) {
	view := &auditView{Actions: auditActions, Operators: map[string]string{}}

	filter := store.AuditFilter{Limit: 200}
	if a := strings.TrimSpace(r.URL.Query().Get("action")); a != "" {
		action := store.AuditAction(a)
		filter.Action = &action
		view.Action = a
	}
	if d := r.URL.Query().Get("since"); d != "" {
		if dur, err := time.ParseDuration(d); err == nil && dur > 0 {
			since := c.now().Add(-dur)
			filter.Since = &since
		}
	}

	entries, err := c.store.ListAuditLog(r.Context(), filter)
	if err != nil {
		return view, err
	}

	ops, err := c.store.ListOperators(r.Context())
	if err != nil {
		c.logger.Warn("failed to list operators for audit view", "error", err)
	}
	for _, op := range ops {
		view.Operators[op.ID] = op.Username
	}

	for _, e := range entries {
		actor := view.Operators[e.ActorOperatorID]
		if actor == "" {
			actor = e.ActorOperatorID
		}
		view.Entries = append(view.Entries, auditRow{AuditEntry: e, Actor: actor})
	}
	return view, nil
}
