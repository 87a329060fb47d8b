// ABOUTME: Admin user endpoints: list, detail, credit adjustment and deletion
// ABOUTME: Defines the User view model decoded from the billing API

package apiclient

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/session"
)

// User is an end user of the platform.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name,omitempty"`
	Credits            int64      `json:"credits"`
	PlanID             string     `json:"plan_id,omitempty"`
	SubscriptionStatus string     `json:"subscription_status,omitempty"`
	AppID              string     `json:"app_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastActiveAt       *time.Time `json:"last_active_at,omitempty"`
}

// UserQuery filters ListUsers.
type UserQuery struct {
	Search string
	Limit  int
	Offset int
}

// UserList is one page of users. Total is only reported by the API when
// the response is an object; for a bare array TotalKnown is false and
// Total counts the page.
type UserList struct {
	Users      []User
	Total      int
	TotalKnown bool
}

// HasNext reports whether a page after the one at offset may exist. Without
// a reported total a full page is taken to mean more rows follow.
func (l *UserList) HasNext(offset, limit int) bool {
	if l.TotalKnown {
		return offset+limit < l.Total
	}
	return limit > 0 && len(l.Users) >= limit
}

// DefaultUserPageSize is used when UserQuery.Limit is zero.
const DefaultUserPageSize = 25

// ListUsers searches users.
func (c *Client) ListUsers(ctx context.Context, snap session.Snapshot, q UserQuery) (*UserList, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultUserPageSize
	}
	params := url.Values{}
	params.Set("search", q.Search)
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))

	resp, err := c.Get(ctx, snap, APIPrefix+"/admin/users?"+params.Encode())
	if err != nil {
		return nil, err
	}

	users, err := decodeList[User](resp, "users")
	if err != nil {
		return nil, err
	}
	list := &UserList{Users: users, Total: len(users)}

	var meta struct {
		Total *int `json:"total"`
	}
	if resp.IsJSON() && resp.Data[0] == '{' {
		if err := resp.Decode(&meta); err == nil && meta.Total != nil {
			list.Total = *meta.Total
			list.TotalKnown = true
		}
	}
	return list, nil
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, snap session.Snapshot, id string) (*User, error) {
	var u User
	if err := c.GetJSON(ctx, snap, APIPrefix+"/admin/users/"+url.PathEscape(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreditAdjustment adds (positive) or removes (negative) credits.
type CreditAdjustment struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// CreditAdjustmentResult is the balance after an adjustment.
type CreditAdjustmentResult struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// AdjustCredits applies adj to the user's balance.
func (c *Client) AdjustCredits(ctx context.Context, snap session.Snapshot, userID string, adj CreditAdjustment) (*CreditAdjustmentResult, error) {
	var res CreditAdjustmentResult
	if err := c.PostJSON(ctx, snap, APIPrefix+"/admin/users/"+url.PathEscape(userID)+"/credits", adj, &res); err != nil {
		return nil, err
	}
	if res.UserID == "" {
		res.UserID = userID
	}
	return &res, nil
}

// DeleteUser permanently removes a user.
func (c *Client) DeleteUser(ctx context.Context, snap session.Snapshot, userID string) error {
	_, err := c.Delete(ctx, snap, APIPrefix+"/admin/users/"+url.PathEscape(userID))
	return err
}
