// ABOUTME: Template parsing and rendering for the console
// ABOUTME: Parses the shared layout once and clones it for every page template

package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/assets"
	"github.com/flowstarter/flowstarter-console/internal/format"
	"github.com/flowstarter/flowstarter-console/internal/session"
	"github.com/flowstarter/flowstarter-console/internal/store"
)

// authPages are rendered without navigation.
var authPages = []string{"login", "invite"}

// navItem is one entry of the sidebar.
type navItem struct {
	Key    string
	Title  string
	Active bool
}

// sessionView is the API session as shown in the layout and settings.
type sessionView struct {
	BaseURL        string
	AppID          string
	MaskedToken    string
	MaskedAdminKey string
	HasJWT         bool
	Configured     bool
	TokenInfo      *session.TokenInfo
	TokenError     string
}

func newSessionView(snap session.Snapshot, now time.Time) sessionView {
	v := sessionView{
		BaseURL:        snap.Base(),
		AppID:          snap.AppID,
		MaskedToken:    snap.MaskedToken(),
		MaskedAdminKey: snap.MaskedAdminKey(),
		HasJWT:         snap.HasJWT(),
		Configured:     snap.Configured(),
	}
	if snap.Token != "" {
		info, err := snap.TokenInfo(now)
		if err != nil {
			v.TokenError = err.Error()
		} else {
			v.TokenInfo = info
		}
	}
	return v
}

// pageData is passed to every console template.
type pageData struct {
	Title     string
	Page      *page
	Tab       string
	Tabs      []tab
	Nav       []navItem
	Operator  *store.Operator
	CSRFToken string
	Session   sessionView
	Toasts    []Toast
	Query     url.Values
	Data      any
	Extra     map[string]any
	Error     string
}

// authData is passed to the login and invite templates.
type authData struct {
	Title     string
	Token     string
	Error     string
	CSRFToken string
	Passkeys  bool
	Toasts    []Toast
}

func (c *Console) templateFuncs() template.FuncMap {
	f := c.formatter
	return template.FuncMap{
		"asset":      assets.URL,
		"currency":   f.Currency,
		"credits":    f.Credits,
		"number":     f.Number,
		"integer":    f.Integer,
		"percent":    f.Percent,
		"multiplier": f.Multiplier,
		"timestamp":  format.Timestamp,
		"ago":        func(t time.Time) string { return format.Ago(t, c.now()) },
		"join":       strings.Join,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"prefix":     func() string { return Prefix },
		"dict":       dict,
		"json": func(v any) string {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err.Error()
			}
			return string(data)
		},
		"short": func(s string) string {
			if len(s) <= 12 {
				return s
			}
			return s[:12] + "…"
		},
	}
}

// parseTemplates parses the layout and partials once, then clones them for
// each page so every page can define its own "content" block.
func (c *Console) parseTemplates() (map[string]*template.Template, error) {
	layout, err := template.New("layout").Funcs(c.templateFuncs()).
		ParseFS(templateFS, "templates/base.html", "templates/partials.html")
	if err != nil {
		return nil, err
	}

	names := append([]string{}, authPages...)
	for _, p := range pages {
		names = append(names, p.Key)
	}

	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		clone, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		tmpl, err := clone.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = tmpl
	}
	return out, nil
}

// execute renders a named template into a buffer and writes it out, so a
// template error never produces a half-written page.
func (c *Console) execute(w http.ResponseWriter, status int, page, name string, data any) {
	tmpl, ok := c.templates[page]
	if !ok {
		c.logger.Error("unknown template", "page", page)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		c.logger.Error("failed to render template", "page", page, "template", name, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderAuthPage renders the login or invite page
func (c *Console) renderAuthPage(w http.ResponseWriter, r *http.Request, name string, data authData) {
	data.Toasts = c.flushUI(w, r)
	c.execute(w, http.StatusOK, name, "auth", data)
}

// dict builds a map from alternating keys and values so a sub-template can
// receive more than one argument.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict needs an even number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}
