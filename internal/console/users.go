// ABOUTME: Users page: search, user detail with ledger, credit adjustments and deletion
// ABOUTME: Deleting a user requires typing the exact confirmation word

package console

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowstarter/flowstarter-console/internal/apiclient"
	"github.com/flowstarter/flowstarter-console/internal/store"
	"github.com/flowstarter/flowstarter-console/internal/validate"
)

// usersView is the user list tab.
type usersView struct {
	Users      []apiclient.User
	Total      int
	TotalKnown bool
	Search     string
	Offset     int
	Limit      int
	PrevPage   int
	NextPage   int
	HasPrev    bool
	HasNext    bool
}

// userDetailView is the hidden detail tab.
type userDetailView struct {
	User        *apiclient.User
	Ledger      []apiclient.LedgerEntry
	LedgerError string
	Confirm     string
}

func loadUsers(c *Console, r *http.Request, tab string) (any, error) {
	if tab == "detail" {
		return c.loadUserDetail(r, r.URL.Query().Get("id"))
	}

	q := r.URL.Query()
	view := &usersView{Search: strings.TrimSpace(q.Get("search")), Limit: apiclient.DefaultUserPageSize}
	if off, err := strconv.Atoi(q.Get("offset")); err == nil && off > 0 {
		view.Offset = off
	}

	list, err := c.api.ListUsers(r.Context(), snapshotFrom(r), apiclient.UserQuery{
		Search: view.Search,
		Limit:  view.Limit,
		Offset: view.Offset,
	})
	if err != nil {
		return view, err
	}
	view.Users, view.Total, view.TotalKnown = list.Users, list.Total, list.TotalKnown
	view.HasPrev = view.Offset > 0
	view.PrevPage = max(view.Offset-view.Limit, 0)
	view.NextPage = view.Offset + view.Limit
	view.HasNext = list.HasNext(view.Offset, view.Limit)
	return view, nil
}

func (c *Console) loadUserDetail(r *http.Request, id string) (*userDetailView, error) {
	view := &userDetailView{Confirm: ConfirmDeleteUser}
	if id == "" {
		return view, nil
	}
	snap := snapshotFrom(r)

	u, err := c.api.GetUser(r.Context(), snap, id)
	if err != nil {
		return view, err
	}
	view.User = u

	ledger, err := c.api.Ledger(r.Context(), snap, apiclient.LedgerQuery{UserID: id, Limit: 25})
	if err != nil {
		view.LedgerError = errorText(err)
	}
	view.Ledger = ledger
	return view, nil
}

// userDetailRequest rewrites r so the detail loader sees the user ID.
func userDetailRequest(r *http.Request, id string) *http.Request {
	q := r.URL.Query()
	q.Set("id", id)
	u := *r.URL
	u.RawQuery = q.Encode()
	r2 := r.Clone(r.Context())
	r2.URL = &u
	return r2
}

// handleUserDetail renders the detail tab for /user/{id}, as a full page
// or as a body partial for htmx.
func (c *Console) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	r = userDetailRequest(r, chi.URLParam(r, "id"))
	if isHTMX(r) {
		c.renderBody(w, r, "users", "detail", nil)
		return
	}
	c.renderPage(w, r, "users", "detail", nil)
}

func (c *Console) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r = userDetailRequest(r, id)
	done := func() { c.renderBody(w, r, "users", "detail", nil) }

	amount, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("amount")), 10, 64)
	if err != nil {
		c.toast(r, toastError, "Amount must be a whole number")
		done()
		return
	}
	adj := apiclient.CreditAdjustment{Amount: amount, Reason: strings.TrimSpace(r.FormValue("reason"))}
	if err := c.validator.Validate(validate.CreditAdjustment, adj); err != nil {
		c.toastError(r, "Credits not adjusted", err)
		done()
		return
	}

	key := c.claimSubmission(r, "credits", id, adj.Amount, adj.Reason)
	if key == "" {
		done()
		return
	}

	res, err := c.api.AdjustCredits(r.Context(), snapshotFrom(r), id, adj)
	if err != nil {
		c.submissions.Release(key)
		c.toastError(r, "Failed to adjust credits", err)
		done()
		return
	}

	c.audit(r, store.AuditAdjustCredits, "user", id, map[string]any{
		"amount":  adj.Amount,
		"reason":  adj.Reason,
		"balance": res.Balance,
	})
	c.toast(r, toastSuccess, "Balance is now "+c.formatter.Credits(res.Balance))
	done()
}

// handleDeleteUser deletes a user after the operator typed ConfirmDeleteUser.
// Anything else aborts before the API is called.
func (c *Console) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r = userDetailRequest(r, id)

	if r.FormValue("confirm") != ConfirmDeleteUser {
		c.toast(r, toastError, "Deletion cancelled: type "+ConfirmDeleteUser+" to confirm")
		c.renderBody(w, r, "users", "detail", nil)
		return
	}

	if err := c.api.DeleteUser(r.Context(), snapshotFrom(r), id); err != nil {
		c.toastError(r, "Failed to delete user", err)
		c.renderBody(w, r, "users", "detail", nil)
		return
	}

	c.audit(r, store.AuditDeleteUser, "user", id, nil)
	c.toast(r, toastSuccess, "User deleted")
	c.redirect(w, r, Prefix+"/users?"+url.Values{"tab": {"list"}}.Encode())
}
