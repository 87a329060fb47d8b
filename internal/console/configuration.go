// ABOUTME: Configuration page: API session, setup wizard, credentials, flow mappings and operators
// ABOUTME: Setup reset requires typing the exact confirmation word

package console

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/session"
	"github.com/flowstarter/flowstarter-console/internal/store"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// sessionForm is the API session as edited by the operator.
type sessionForm struct {
	BaseURL  string           `json:"base_url"`
	Token    string           `json:"token"`
	AdminKey string           `json:"admin_key"`
	AppID    string           `json:"app_id"`
	Defaults session.Snapshot `json:"-"`
}

type setupView struct {
	Status  *apiclient.SetupStatus
	Confirm string
	AppID   string
}

type credentialsView struct {
	Kinds []string
}

type flowsView struct {
	Mappings []apiclient.FlowMapping
	Edit     *apiclient.FlowMapping
}

type operatorsView struct {
	Operators []*store.Operator
	Passkeys  []*store.PasskeyCredential
	Passkey   bool
	Self      *store.Operator
}

func loadConfiguration(c *Console, r *http.Request, tab string) (any, error) {
	ctx := r.Context()
	snap := snapshotFrom(r)

	switch tab {
	case "setup":
		view := &setupView{Confirm: ConfirmResetSetup, AppID: snap.AppID}
		status, err := c.api.SetupStatus(ctx, snap)
		view.Status = status
		return view, err

	case "credentials":
		return &credentialsView{Kinds: apiclient.CredentialKinds}, nil

	case "flows":
		view := &flowsView{}
		mappings, err := c.api.FlowMappings(ctx, snap)
		if err != nil {
			return view, err
		}
		view.Mappings = mappings
		if key := r.URL.Query().Get("edit"); key != "" {
			for i := range mappings {
				if mappings[i].FlowKey == key {
					view.Edit = &mappings[i]
				}
			}
		}
		return view, nil

	case "operators":
		op := operatorFrom(r)
		view := &operatorsView{Self: op, Passkey: c.webauthn != nil}
		ops, err := c.store.ListOperators(ctx)
		if err != nil {
			return view, err
		}
		view.Operators = ops
		passkeys, err := c.store.GetPasskeysByOperator(ctx, op.ID)
		if err != nil {
			return view, err
		}
		view.Passkeys = passkeys
		return view, nil
	}

	// Pre-fill with stored values only; defaults show as placeholders.
	stored, err := c.sessions.Stored(ctx, operatorFrom(r).ID)
	if err != nil {
		return nil, err
	}
	return &sessionForm{
		BaseURL:  stored.BaseURL,
		Token:    stored.Token,
		AdminKey: stored.AdminKey,
		AppID:    stored.AppID,
		Defaults: c.sessions.Defaults(),
	}, nil
}

func (c *Console) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	form := sessionForm{
		BaseURL:  strings.TrimSpace(r.FormValue("base_url")),
		Token:    strings.TrimSpace(r.FormValue("token")),
		AdminKey: strings.TrimSpace(r.FormValue("admin_key")),
		AppID:    strings.TrimSpace(r.FormValue("app_id")),
	}
	// An empty base URL falls back to the server default.
	check := form
	if check.BaseURL == "" {
		check.BaseURL = c.sessions.Defaults().BaseURL
	}
	if err := c.validator.Validate(validate.Session, check); err != nil {
		c.toastError(r, "Session not saved", err)
		c.renderBody(w, r, "configuration", "session", nil)
		return
	}

	op := operatorFrom(r)
	snap, err := c.sessions.Save(r.Context(), op.ID, session.Snapshot{
		Token:    form.Token,
		AdminKey: form.AdminKey,
		BaseURL:  form.BaseURL,
		AppID:    form.AppID,
	})
	if err != nil {
		c.toastError(r, "Failed to save session", err)
		c.renderBody(w, r, "configuration", "session", nil)
		return
	}

	c.audit(r, store.AuditSaveSession, "session", op.ID, map[string]any{
		"base_url":  snap.Base(),
		"app_id":    snap.AppID,
		"has_token": snap.Token != "",
		"has_key":   snap.AdminKey != "",
	})
	c.toast(r, toastSuccess, "API session saved")
	// The layout shows the session, so reload the whole page.
	c.redirect(w, r, Prefix+"/configuration?tab=session")
}

func (c *Console) handleClearSession(w http.ResponseWriter, r *http.Request) {
	op := operatorFrom(r)
	if err := c.sessions.Clear(r.Context(), op.ID); err != nil {
		c.toastError(r, "Failed to clear session", err)
		c.renderBody(w, r, "configuration", "session", nil)
		return
	}
	c.audit(r, store.AuditClearSession, "session", op.ID, nil)
	c.toast(r, toastInfo, "API session cleared, defaults apply again")
	c.redirect(w, r, Prefix+"/configuration?tab=session")
}

func (c *Console) handleCompleteSetup(w http.ResponseWriter, r *http.Request) {
	req := apiclient.SetupCompletion{
		AdminEmail: strings.TrimSpace(r.FormValue("admin_email")),
		AppID:      strings.TrimSpace(r.FormValue("app_id")),
	}
	status, err := c.api.CompleteSetup(r.Context(), snapshotFrom(r), req)
	if err != nil {
		c.toastError(r, "Failed to complete setup", err)
	} else {
		c.audit(r, store.AuditCompleteSetup, "setup", req.AppID, map[string]any{"completed": status.Completed})
		c.toast(r, toastSuccess, "Setup completed")
	}
	c.renderBody(w, r, "configuration", "setup", nil)
}

// handleResetSetup resets the backend after the operator typed ConfirmResetSetup.
func (c *Console) handleResetSetup(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("confirm") != ConfirmResetSetup {
		c.toast(r, toastError, "Reset cancelled: type "+ConfirmResetSetup+" to confirm")
		c.renderBody(w, r, "configuration", "setup", nil)
		return
	}

	if err := c.api.ResetSetup(r.Context(), snapshotFrom(r)); err != nil {
		c.toastError(r, "Failed to reset setup", err)
	} else {
		c.audit(r, store.AuditResetSetup, "setup", "", nil)
		c.toast(r, toastSuccess, "Setup reset")
	}
	c.renderBody(w, r, "configuration", "setup", nil)
}

func (c *Console) handleRotateCredential(w http.ResponseWriter, r *http.Request) {
	kind := r.FormValue("kind")
	known := false
	for _, k := range apiclient.CredentialKinds {
		known = known || k == kind
	}
	if !known {
		c.toast(r, toastError, "Unknown credential "+kind)
		c.renderBody(w, r, "configuration", "credentials", nil)
		return
	}

	rot, err := c.api.RotateCredentials(r.Context(), snapshotFrom(r), kind)
	if err != nil {
		c.toastError(r, "Failed to rotate "+kind, err)
		c.renderBody(w, r, "configuration", "credentials", nil)
		return
	}

	c.audit(r, store.AuditRotateCredential, "credential", kind, nil)
	c.toast(r, toastSuccess, "Rotated "+kind)
	c.renderBody(w, r, "configuration", "credentials", map[string]any{"Rotation": rot})
}

func (c *Console) handleTestCredentials(w http.ResponseWriter, r *http.Request) {
	res, err := c.api.TestCredentials(r.Context(), snapshotFrom(r))
	if err != nil {
		c.toastError(r, "Credential test failed", err)
		c.renderBody(w, r, "configuration", "credentials", nil)
		return
	}
	if res.OK {
		c.toast(r, toastSuccess, "All credentials verified")
	} else {
		c.toast(r, toastError, "Some credentials failed verification")
	}
	c.renderBody(w, r, "configuration", "credentials", map[string]any{"Test": res})
}

// handleExportCredentials downloads the credential export as a JSON attachment.
func (c *Console) handleExportCredentials(w http.ResponseWriter, r *http.Request) {
	data, err := c.api.ExportCredentials(r.Context(), snapshotFrom(r))
	if err != nil {
		c.toastError(r, "Failed to export credentials", err)
		c.redirect(w, r, Prefix+"/configuration?tab=credentials")
		return
	}

	c.audit(r, store.AuditExportCredentials, "credential", "export", map[string]any{"bytes": len(data)})
	name := "flowstarter-credentials-" + c.now().UTC().Format("20060102-150405") + ".json"
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (c *Console) handleSaveFlowMapping(w http.ResponseWriter, r *http.Request) {
	minCredits, err := parseInt64(r.FormValue("min_credits"), 0)
	if err != nil {
		c.toast(r, toastError, "Minimum credits must be a whole number")
		c.renderBody(w, r, "configuration", "flows", nil)
		return
	}
	m := apiclient.FlowMapping{
		FlowKey:     strings.TrimSpace(r.FormValue("flow_key")),
		FlowID:      strings.TrimSpace(r.FormValue("flow_id")),
		AppID:       strings.TrimSpace(r.FormValue("app_id")),
		MinCredits:  minCredits,
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if m.AppID == "" {
		m.AppID = snapshotFrom(r).AppID
	}
	if err := c.validator.Validate(validate.FlowMapping, m); err != nil {
		c.toastError(r, "Mapping not saved", err)
		c.renderBody(w, r, "configuration", "flows", nil)
		return
	}

	if err := c.api.SaveFlowMapping(r.Context(), snapshotFrom(r), m); err != nil {
		c.toastError(r, "Failed to save mapping", err)
	} else {
		c.audit(r, store.AuditSaveFlowMapping, "flow", m.FlowKey, map[string]any{"flow_id": m.FlowID, "app_id": m.AppID})
		c.toast(r, toastSuccess, "Mapping "+m.FlowKey+" saved")
	}
	c.renderBody(w, r, "configuration", "flows", nil)
}

func (c *Console) handleDeleteFlowMapping(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := c.api.DeleteFlowMapping(r.Context(), snapshotFrom(r), key)
	switch {
	case apiclient.IsNotFound(err):
		c.toast(r, toastError, "Mapping "+key+" does not exist")
	case err != nil:
		c.toastError(r, "Failed to delete mapping", err)
	default:
		c.audit(r, store.AuditDeleteFlowMapping, "flow", key, nil)
		c.toast(r, toastSuccess, "Mapping "+key+" deleted")
	}
	c.renderBody(w, r, "configuration", "flows", nil)
}
