// ABOUTME: Cookie-backed flash toasts and last-tab memory using gorilla/sessions
// ABOUTME: Toasts queued during a request are rendered by the same or the next response

package console

import (
	"encoding/gob"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// flashSessionName is the gorilla session holding toasts and tab state.
const flashSessionName = "flowstarter_console_ui"

// Toast kinds.
const (
	toastSuccess = "success"
	toastError   = "error"
	toastInfo    = "info"
)

// Toast is a transient notification.
type Toast struct {
	Kind    string
	Message string
}

func init() {
	gob.Register(Toast{})
}

func newCookieStore(secret []byte, maxAge time.Duration) *sessions.CookieStore {
	cs := sessions.NewCookieStore(secret)
	cs.Options = &sessions.Options{
		Path:     Prefix,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return cs
}

// uiSession returns the request's UI session. A cookie that fails to decode
// (for example after a secret change) yields a fresh session.
func (c *Console) uiSession(r *http.Request) *sessions.Session {
	s, err := c.cookies.Get(r, flashSessionName)
	if err != nil {
		c.logger.Debug("discarding undecodable ui session", "error", err)
	}
	return s
}

// toast queues a notification for the next render.
func (c *Console) toast(r *http.Request, kind, message string) {
	c.uiSession(r).AddFlash(Toast{Kind: kind, Message: message})
}

// toastError queues an error toast and logs the underlying error.
func (c *Console) toastError(r *http.Request, prefix string, err error) {
	c.logger.Warn(prefix, "error", err, "request_id", apiclient.RequestIDFromContext(r.Context()))
	c.toast(r, toastError, prefix+": "+errorText(err))
}

// errorText renders an error for operators.
func errorText(err error) string {
	var ve *validate.Error
	if errors.As(err, &ve) {
		return "invalid input: " + ve.Error()
	}
	var ne *apiclient.NetworkError
	if errors.As(err, &ne) {
		return "cannot reach the API at " + ne.URL
	}
	if errors.Is(err, apiclient.ErrSetupStatusTimeout) {
		return "the API did not report its setup status within 5 seconds"
	}
	if errors.Is(err, apiclient.ErrNoBaseURL) {
		return "no API base URL configured, set it under Configuration"
	}
	return err.Error()
}

// rememberTab stores the active tab for a page.
func (c *Console) rememberTab(r *http.Request, page, tab string) {
	c.uiSession(r).Values["tab:"+page] = tab
}

// lastTab returns the stored tab for a page.
func (c *Console) lastTab(r *http.Request, page string) string {
	tab, _ := c.uiSession(r).Values["tab:"+page].(string)
	return tab
}

// flushUI drains queued toasts and writes the UI cookie. It must run before
// the response body is written.
func (c *Console) flushUI(w http.ResponseWriter, r *http.Request) []Toast {
	s := c.uiSession(r)
	var toasts []Toast
	for _, f := range s.Flashes() {
		if t, ok := f.(Toast); ok {
			toasts = append(toasts, t)
		}
	}
	s.Options.Secure = r.TLS != nil
	if err := s.Save(r, w); err != nil {
		c.logger.Error("failed to save ui session", "error", err)
	}
	return toasts
}

// saveUI writes the UI cookie without draining toasts, for redirects.
func (c *Console) saveUI(w http.ResponseWriter, r *http.Request) {
	s := c.uiSession(r)
	s.Options.Secure = r.TLS != nil
	if err := s.Save(r, w); err != nil {
		c.logger.Error("failed to save ui session", "error", err)
	}
}
