// ABOUTME: Page registry and router for the console's tabbed pages
// ABOUTME: Renders the full shell or only the body partial requested by htmx

package console

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// tab is one tab of a page.
type tab struct {
	Key   string
	Label string
}

// loader fetches the data for one tab of a page.
type loader func(c *Console, r *http.Request, tab string) (any, error)

// page describes a console page.
type page struct {
	Key    string
	Title  string
	Tabs   []tab
	Hidden []string // tabs reachable only by direct routes
	Load   loader
}

// pages is the navigation order. It is assigned in init because help tabs
// are derived from the embedded documents.
var pages []*page

func init() {
	pages = []*page{
		{
			Key:   "dashboard",
			Title: "Dashboard",
			Tabs:  []tab{{"overview", "Overview"}, {"audit", "Audit log"}},
			Load:  loadDashboard,
		},
		{
			Key:   "billing",
			Title: "Billing",
			Tabs:  []tab{{"config", "Provider"}, {"plans", "Plans"}, {"rollout", "Rollout"}},
			Load:  loadBilling,
		},
		{
			Key:   "pricing",
			Title: "Pricing",
			Tabs:  []tab{{"config", "Configuration"}, {"simulator", "Simulator"}},
			Load:  loadPricing,
		},
		{
			Key:    "users",
			Title:  "Users",
			Tabs:   []tab{{"list", "Users"}},
			Hidden: []string{"detail"},
			Load:   loadUsers,
		},
		{
			Key:   "configuration",
			Title: "Configuration",
			Tabs: []tab{
				{"session", "API session"},
				{"setup", "Setup"},
				{"credentials", "Credentials"},
				{"flows", "Flow mappings"},
				{"operators", "Operators"},
			},
			Load: loadConfiguration,
		},
		{
			Key:   "observability",
			Title: "Observability",
			Tabs:  []tab{{"logs", "Logs"}, {"snapshots", "Snapshots"}, {"ledger", "Ledger"}},
			Load:  loadObservability,
		},
		{
			Key:   "testing",
			Title: "Testing",
			Tabs:  []tab{{"execute", "Execute flow"}, {"affordability", "Affordability"}, {"auth", "Auth probes"}},
			Load:  loadTesting,
		},
		{
			Key:   "help",
			Title: "Help",
			Tabs:  helpTabs(),
			Load:  loadHelp,
		},
	}
}

// findPage returns the registered page for key.
func findPage(key string) *page {
	for _, p := range pages {
		if p.Key == key {
			return p
		}
	}
	return nil
}

// hasTab reports whether tab is a visible or hidden tab of p.
func (p *page) hasTab(key string) bool {
	for _, t := range p.Tabs {
		if t.Key == key {
			return true
		}
	}
	for _, h := range p.Hidden {
		if h == key {
			return true
		}
	}
	return false
}

// resolveTab picks the requested tab, else the remembered one, else the first.
func (c *Console) resolveTab(r *http.Request, p *page) string {
	if t := r.URL.Query().Get("tab"); t != "" && p.hasTab(t) {
		return t
	}
	if t := c.lastTab(r, p.Key); t != "" && p.hasTab(t) {
		return t
	}
	return p.Tabs[0].Key
}

// handlePage renders the full shell for a page.
func (c *Console) handlePage(w http.ResponseWriter, r *http.Request) {
	p := findPage(chi.URLParam(r, "page"))
	if p == nil {
		http.NotFound(w, r)
		return
	}
	t := c.resolveTab(r, p)
	c.renderPage(w, r, p.Key, t, nil)
}

// handlePageBody renders only the page body (htmx tab switches and refreshes).
func (c *Console) handlePageBody(w http.ResponseWriter, r *http.Request) {
	p := findPage(chi.URLParam(r, "page"))
	if p == nil {
		http.NotFound(w, r)
		return
	}
	t := c.resolveTab(r, p)
	c.renderBody(w, r, p.Key, t, nil)
}

// buildPageData loads the tab and assembles the template data.
func (c *Console) buildPageData(w http.ResponseWriter, r *http.Request, p *page, t string, extra map[string]any) pageData {
	data := pageData{
		Title:     p.Title,
		Page:      p,
		Tab:       t,
		Tabs:      p.Tabs,
		Operator:  operatorFrom(r),
		CSRFToken: getCSRFToken(r),
		Session:   newSessionView(snapshotFrom(r), c.now()),
		Query:     r.URL.Query(),
		Extra:     extra,
	}
	for _, np := range pages {
		data.Nav = append(data.Nav, navItem{Key: np.Key, Title: np.Title, Active: np.Key == p.Key})
	}

	loaded, err := p.Load(c, r, t)
	if err != nil {
		c.logger.Warn("failed to load page", "page", p.Key, "tab", t, "error", err)
		data.Error = errorText(err)
	}
	data.Data = loaded

	// Hidden tabs are not remembered so the next visit opens a normal tab.
	if !contains(p.Hidden, t) {
		c.rememberTab(r, p.Key, t)
	}
	data.Toasts = c.flushUI(w, r)
	return data
}

// renderPage renders the full shell.
func (c *Console) renderPage(w http.ResponseWriter, r *http.Request, key, t string, extra map[string]any) {
	p := findPage(key)
	data := c.buildPageData(w, r, p, t, extra)
	c.execute(w, http.StatusOK, p.Key, "base", data)
}

// renderBody renders the body partial plus out-of-band toasts.
func (c *Console) renderBody(w http.ResponseWriter, r *http.Request, key, t string, extra map[string]any) {
	p := findPage(key)
	data := c.buildPageData(w, r, p, t, extra)
	c.execute(w, http.StatusOK, p.Key, "partial", data)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
