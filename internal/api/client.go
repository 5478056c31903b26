// Package api is the client for the dashboard's REST collaborator. The
// server is an external system consumed at its interface boundary: JSON
// request/response bodies, and the stored bearer token attached to every
// authenticated call under a fixed header name.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danti/wastewatch/internal/model"
	"github.com/danti/wastewatch/internal/session"
)

// TokenHeader is the header the server reads the bearer token from.
const TokenHeader = "x-access-token"

// Error is a normalized API failure. Message carries the server-supplied
// human-readable message when the response body had one, else a generic
// fallback — callers can show it in a transient notice as-is.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// errorBody is the shape of server failure payloads. Some endpoints use
// "error", some "message"; accept both.
type errorBody struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the REST collaborator. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Manager
}

// New returns a Client for the API at baseURL. httpClient may be nil, in
// which case a client with a sane timeout is used.
func New(baseURL string, sess *session.Manager, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		session: sess,
	}
}

// do performs one JSON round-trip. When authed, the stored token is
// attached exactly as stored (scheme label included). out may be nil for
// calls whose response body is irrelevant.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token, ok := c.session.Token(); ok {
			req.Header.Set(TokenHeader, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return normalizeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// normalizeError turns a non-2xx response into an *Error, preferring the
// server's own message when the body carries one.
func normalizeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: "request failed"}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		switch {
		case body.Err != "":
			apiErr.Message = body.Err
		case body.Message != "":
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

// listResponse wraps list endpoints, which envelope their payload under
// a "data" key.
type listResponse[T any] struct {
	Data []T `json:"data"`
}

// Login exchanges credentials for a token. It does not store the token;
// the login flow is the single place allowed to write the credential and
// does so explicitly after a successful response.
func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.LoginResponse, error) {
	var resp model.LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", req, &resp, false)
	return resp, err
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodPost, "/register", req, &user, false)
	return user, err
}

// Users lists all user accounts (admin only).
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var resp listResponse[model.User]
	err := c.do(ctx, http.MethodGet, "/users", nil, &resp, true)
	return resp.Data, err
}

// UpdateUserStatus approves or declines an account (admin only).
func (c *Client) UpdateUserStatus(ctx context.Context, req model.UpdateUserStatusRequest) error {
	return c.do(ctx, http.MethodPut, "/user/status", req, nil, true)
}

// DeleteUser removes an account (admin only).
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/user/"+id, nil, nil, true)
}

// CreateRecord submits a new food-waste record.
func (c *Client) CreateRecord(ctx context.Context, rec model.FoodWasteRecord) (model.FoodWasteRecord, error) {
	var created model.FoodWasteRecord
	err := c.do(ctx, http.MethodPost, "/record", rec, &created, true)
	return created, err
}

// Records lists food-waste records. Admins see every record; the server
// scopes contributors to their own.
func (c *Client) Records(ctx context.Context) ([]model.FoodWasteRecord, error) {
	var resp listResponse[model.FoodWasteRecord]
	err := c.do(ctx, http.MethodGet, "/records", nil, &resp, true)
	return resp.Data, err
}

// UpdateRecordStatus moves a record through the approval workflow
// (admin only). The server is the authority on transition legality; the
// client additionally disables illegal transitions at the action level.
func (c *Client) UpdateRecordStatus(ctx context.Context, id string, status model.RecordStatus) error {
	req := model.UpdateRecordStatusRequest{Status: status}
	return c.do(ctx, http.MethodPut, "/record/"+id+"/status", req, nil, true)
}

// DeleteRecord removes a record. Contributor-initiated only, and
// unconditional on status.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/record/"+id, nil, nil, true)
}

// Statistics fetches the global aggregates for the report views.
func (c *Client) Statistics(ctx context.Context) (model.Statistics, error) {
	var stats model.Statistics
	err := c.do(ctx, http.MethodGet, "/statistics", nil, &stats, true)
	return stats, err
}

// ContributorStatistics fetches aggregates scoped to one contributor.
func (c *Client) ContributorStatistics(ctx context.Context, userID string) (model.Statistics, error) {
	var stats model.Statistics
	err := c.do(ctx, http.MethodGet, "/statistics/"+userID, nil, &stats, true)
	return stats, err
}

// Settings fetches the current user's settings.
func (c *Client) Settings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s, true)
	return s, err
}

// UpdateSettings stores the current user's settings.
func (c *Client) UpdateSettings(ctx context.Context, s model.Settings) error {
	return c.do(ctx, http.MethodPut, "/settings", s, nil, true)
}

// Notifications fetches the current user's notification feed.
func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var resp listResponse[model.Notification]
	err := c.do(ctx, http.MethodGet, "/notifications", nil, &resp, true)
	return resp.Data, err
}

// MarkNotificationRead flags one notification as read server-side.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/notification/%d/read", id), nil, nil, true)
}

// MarkAllNotificationsRead flags the whole feed as read server-side.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil, true)
}
