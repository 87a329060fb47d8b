// ABOUTME: Testing page: run flows as an end user, check app affordability and probe auth endpoints
// ABOUTME: Calls go to the flow-starter deployment through the flow client

package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flowstarter/flowstarter-console/internal/flowclient"
	"github.com/flowstarter/flowstarter-console/internal/store"
)

// errNoFlowClient is reported when the console runs without a flow client.
var errNoFlowClient = errors.New("flow-starter client is not configured")

type testingView struct {
	FlowsURL string
	AppID    string
	Probes   []string
}

// authProbes are the actions of the auth probe form.
var authProbes = []string{"login", "signup", "refresh", "user", "logout", "use-token"}

// executeResult is shown after a flow run.
type executeResult struct {
	Response      *flowclient.ExecuteResponse
	CreditsNeeded bool
	Error         string
}

// probeResult is shown after an auth probe.
type probeResult struct {
	Action string
	Tokens *flowclient.Tokens
	User   *flowclient.User
	OK     bool
	Error  string
}

func loadTesting(c *Console, r *http.Request, _ string) (any, error) {
	view := &testingView{AppID: snapshotFrom(r).AppID, Probes: authProbes}
	if c.flows == nil {
		return view, errNoFlowClient
	}
	view.FlowsURL = c.flows.BaseURL()
	return view, nil
}

// probeToken is the end-user token a probe uses: the form's, else the session's.
func probeToken(r *http.Request) string {
	if t := strings.TrimSpace(r.FormValue("token")); t != "" {
		return t
	}
	return snapshotFrom(r).Token
}

func (c *Console) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	req := flowclient.ExecuteRequest{
		FlowID:   strings.TrimSpace(r.FormValue("flow_id")),
		AppID:    strings.TrimSpace(r.FormValue("app_id")),
		Question: strings.TrimSpace(r.FormValue("question")),
	}
	if req.AppID == "" {
		req.AppID = snapshotFrom(r).AppID
	}
	extra := map[string]any{"Request": req}
	done := func() { c.renderBody(w, r, "testing", "execute", extra) }

	if c.flows == nil {
		c.toastError(r, "Cannot execute flow", errNoFlowClient)
		done()
		return
	}
	if req.FlowID == "" || req.Question == "" {
		c.toast(r, toastError, "Flow ID and question are required")
		done()
		return
	}
	if raw := strings.TrimSpace(r.FormValue("override_config")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.OverrideConfig); err != nil {
			c.toast(r, toastError, "Override config must be a JSON object")
			done()
			return
		}
	}

	res := &executeResult{}
	resp, err := c.flows.ExecuteFlow(r.Context(), probeToken(r), req)
	switch {
	case flowclient.IsCreditsNeeded(err):
		res.CreditsNeeded = true
		res.Error = err.Error()
		c.toast(r, toastError, err.Error())
	case err != nil:
		res.Error = errorText(err)
		c.toastError(r, "Flow execution failed", err)
	default:
		res.Response = resp
		c.toast(r, toastSuccess, "Flow executed, "+c.formatter.Number(resp.CreditsUsed, 2)+" credits used")
	}
	c.audit(r, store.AuditExecuteFlowProbe, "flow", req.FlowID, map[string]any{
		"app_id": req.AppID,
		"ok":     err == nil,
	})
	extra["Result"] = res
	done()
}

func (c *Console) handleCheckAffordability(w http.ResponseWriter, r *http.Request) {
	appID := strings.TrimSpace(r.FormValue("app_id"))
	if appID == "" {
		appID = snapshotFrom(r).AppID
	}
	flowKey := strings.TrimSpace(r.FormValue("flow_key"))
	extra := map[string]any{"AppID": appID, "FlowKey": flowKey}

	if appID == "" || flowKey == "" {
		c.toast(r, toastError, "App ID and flow key are required")
		c.renderBody(w, r, "testing", "affordability", extra)
		return
	}

	a, err := c.api.CheckAffordability(r.Context(), snapshotFrom(r), appID, flowKey)
	if err != nil {
		c.toastError(r, "Affordability check failed", err)
	} else {
		extra["Affordability"] = a
		c.audit(r, store.AuditCheckAffordability, "app", appID, map[string]any{
			"flow_key":   flowKey,
			"affordable": a.Affordable,
		})
	}
	c.renderBody(w, r, "testing", "affordability", extra)
}

// handleAuthProbe runs one auth endpoint against the flow-starter deployment.
// use-token stores the given access token as the operator's API session token.
func (c *Console) handleAuthProbe(w http.ResponseWriter, r *http.Request) {
	action := r.FormValue("action")
	res := &probeResult{Action: action}
	extra := map[string]any{"Probe": res, "Email": strings.TrimSpace(r.FormValue("email"))}
	done := func() { c.renderBody(w, r, "testing", "auth", extra) }

	if c.flows == nil && action != "use-token" {
		c.toastError(r, "Cannot run probe", errNoFlowClient)
		done()
		return
	}

	ctx := r.Context()
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	var err error
	switch action {
	case "login":
		res.Tokens, err = c.flows.Login(ctx, email, password)
	case "signup":
		res.Tokens, err = c.flows.Signup(ctx, flowclient.SignupRequest{
			Email:    email,
			Password: password,
			Name:     strings.TrimSpace(r.FormValue("name")),
		})
	case "refresh":
		res.Tokens, err = c.flows.Refresh(ctx, strings.TrimSpace(r.FormValue("refresh_token")))
	case "user":
		res.User, err = c.flows.User(ctx, probeToken(r))
	case "logout":
		err = c.flows.Logout(ctx, probeToken(r))
	case "use-token":
		c.useProbeToken(w, r)
		return
	default:
		c.toast(r, toastError, "Unknown probe "+action)
		done()
		return
	}

	res.OK = err == nil
	if err != nil {
		res.Error = errorText(err)
		c.toastError(r, "Probe "+action+" failed", err)
	} else {
		c.toast(r, toastSuccess, "Probe "+action+" succeeded")
	}
	c.audit(r, store.AuditAuthenticateProbe, "auth", action, map[string]any{"email": email, "ok": res.OK})
	done()
}

func (c *Console) useProbeToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		c.toast(r, toastError, "No token to use")
		c.renderBody(w, r, "testing", "auth", nil)
		return
	}

	op := operatorFrom(r)
	stored, err := c.sessions.Stored(r.Context(), op.ID)
	if err == nil {
		stored.Token = token
		_, err = c.sessions.Save(r.Context(), op.ID, stored)
	}
	if err != nil {
		c.toastError(r, "Failed to store token", err)
		c.renderBody(w, r, "testing", "auth", nil)
		return
	}

	c.audit(r, store.AuditUseProbeToken, "session", op.ID, nil)
	c.toast(r, toastSuccess, "Token stored in the API session")
	c.redirect(w, r, Prefix+"/testing?tab=auth")
}
