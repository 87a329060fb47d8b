// ABOUTME: Tests for page lookup, tab resolution, help documents and the testing page probes
// ABOUTME: The flow-starter probes run against the same fake API as the billing calls

package console

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/flowclient"
	"github.com/flowstarter/flowstarter-console/internal/store"
)

func TestFindPage(t *testing.T) {
	for _, key := range []string{"dashboard", "billing", "pricing", "users", "configuration", "observability", "testing", "help"} {
		p := findPage(key)
		require.NotNil(t, p, key)
		assert.NotEmpty(t, p.Tabs, key)
		assert.NotNil(t, p.Load, key)
	}
	assert.Nil(t, findPage("settings"))
}

func TestHiddenTabsAreReachable(t *testing.T) {
	users := findPage("users")
	require.NotNil(t, users)
	assert.True(t, users.hasTab("list"))
	assert.True(t, users.hasTab("detail"))
	assert.False(t, users.hasTab("ledger"))
}

func TestHelpTabs(t *testing.T) {
	tabs := helpTabs()
	require.NotEmpty(t, tabs)
	assert.Equal(t, "getting-started", tabs[0].Key)
	assert.Equal(t, "troubleshooting", tabs[len(tabs)-1].Key)

	for _, tb := range tabs {
		_, err := helpDocsFS.ReadFile("docs/help/" + tb.Key + ".md")
		assert.NoError(t, err, tb.Key)
	}
}

func TestHelpTitle(t *testing.T) {
	assert.Equal(t, "Api Session", helpTitle("api-session"))
	assert.Equal(t, "Getting Started", helpTitle("getting-started"))
}

func TestLoadHelpRendersMarkdown(t *testing.T) {
	v, err := loadHelp(nil, nil, "testing")
	require.NoError(t, err)
	view := v.(*helpView)
	assert.Contains(t, string(view.Content), "<h1>Testing</h1>")
	assert.Contains(t, string(view.Content), "<table>")

	_, err = loadHelp(nil, nil, "missing")
	assert.Error(t, err)
}

func withFlows(h *harness) {
	h.console.flows = flowclient.New(flowclient.Config{APIURL: h.api.URL}, apiclient.New())
}

func TestExecuteFlowProbe(t *testing.T) {
	t.Run("without a flow client", func(t *testing.T) {
		h := newHarness(t)
		rec := h.post(Prefix+"/testing/execute", url.Values{"flow_id": {"f-1"}, "question": {"hi"}})
		assert.Contains(t, rec.Body.String(), "flow-starter client is not configured")
	})

	t.Run("credits needed", func(t *testing.T) {
		h := newHarness(t)
		withFlows(h)
		h.api.reply(http.MethodPost, "/providers/flowise/execute", http.StatusPaymentRequired,
			map[string]any{"detail": map[string]any{"required": 10, "balance": 4}})

		rec := h.post(Prefix+"/testing/execute", url.Values{"flow_id": {"f-1"}, "question": {"hi"}})
		assert.Contains(t, rec.Body.String(), "CREDITS_NEEDED:6")
		assert.Contains(t, h.auditActions(), store.AuditExecuteFlowProbe)
	})

	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		withFlows(h)
		h.api.reply(http.MethodPost, "/providers/flowise/execute", http.StatusOK,
			map[string]any{"text": "hello there", "credits_used": 2.5, "balance": 97.5})

		rec := h.post(Prefix+"/testing/execute", url.Values{
			"flow_id": {"f-1"}, "question": {"hi"}, "override_config": {`{"temperature":0.2}`},
		})
		assert.Contains(t, rec.Body.String(), "hello there")
		assert.JSONEq(t,
			`{"flow_id":"f-1","app_id":"app-1","question":"hi","override_config":{"temperature":0.2}}`,
			string(h.api.body(http.MethodPost, "/providers/flowise/execute")))
	})

	t.Run("override must be an object", func(t *testing.T) {
		h := newHarness(t)
		withFlows(h)
		rec := h.post(Prefix+"/testing/execute", url.Values{
			"flow_id": {"f-1"}, "question": {"hi"}, "override_config": {`[1,2]`},
		})
		assert.Contains(t, rec.Body.String(), "Override config must be a JSON object")
		assert.False(t, h.api.called(http.MethodPost, "/providers/flowise/execute"))
	})
}

func TestAuthProbeUseToken(t *testing.T) {
	h := newHarness(t)
	withFlows(h)
	h.api.reply(http.MethodPost, "/auth/login", http.StatusOK,
		map[string]any{"access_token": "aaa.bbb.ccc", "refresh_token": "r-1", "token_type": "bearer"})

	rec := h.post(Prefix+"/testing/auth", url.Values{"action": {"login"}, "email": {"u@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Probe login succeeded")
	assert.Contains(t, rec.Body.String(), "aaa.bbb.ccc")

	rec = h.post(Prefix+"/testing/auth", url.Values{"action": {"use-token"}, "token": {"aaa.bbb.ccc"}})
	assert.Equal(t, Prefix+"/testing?tab=auth", rec.Header().Get("HX-Redirect"))

	snap, err := h.console.sessions.Load(t.Context(), h.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "aaa.bbb.ccc", snap.Token)
	assert.Equal(t, h.api.URL, snap.BaseURL)
	assert.Contains(t, h.auditActions(), store.AuditUseProbeToken)

	// Only the token is stored; server defaults stay defaults.
	stored, err := h.console.sessions.Stored(t.Context(), h.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, "aaa.bbb.ccc", stored.Token)
	assert.Empty(t, stored.BaseURL)
	assert.Empty(t, stored.AdminKey)
	assert.Empty(t, stored.AppID)
}

func TestCheckAffordability(t *testing.T) {
	h := newHarness(t)

	rec := h.post(Prefix+"/testing/affordability", url.Values{"flow_key": {""}})
	assert.Contains(t, rec.Body.String(), "App ID and flow key are required")

	h.api.handle(http.MethodGet, apiclient.APIPrefix+"/admin/apps/app-1/affordability", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"affordable":false,"balance":3,"required":10,"shortage":7}`))
	})
	rec = h.post(Prefix+"/testing/affordability", url.Values{"flow_key": {"summarize"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not affordable")
}
