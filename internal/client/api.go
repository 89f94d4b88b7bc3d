// Package client implements the session and roster controllers behind
// the guestpass terminal client: an HTTP API wrapper, a countdown
// engine, a liveness heartbeat, and the admin roster view. Controllers
// take an injected Clock so their timers can be driven in tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/karstlabs/guestpass/internal/model"
)

// RejectionError is a refusal from the server: bad credentials, a
// throttled login, a validation failure, or a stale session. Message
// holds the server's error text when it provided one.
type RejectionError struct {
	Status  int
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request rejected with status %d", e.Status)
}

// Throttled reports whether the server declined the request for rate
// limiting reasons.
func (e *RejectionError) Throttled() bool {
	return e.Status == http.StatusTooManyRequests
}

// StatusResult is the authority's answer to a status query.
type StatusResult struct {
	Authenticated bool            `json:"authenticated"`
	User          *model.AuthUser `json:"user"`
}

// API is the JSON client for the guestpass server. The session cookie
// rides in a jar so the client behaves like a single browser tab.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string) *API {
	jar, _ := cookiejar.New(nil)
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

func (a *API) Login(ctx context.Context, username, password, deviceID string) error {
	body := map[string]string{
		"username": username,
		"password": password,
		"deviceId": deviceID,
	}
	return a.do(ctx, http.MethodPost, "/api/auth/login", body, nil)
}

func (a *API) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (a *API) Status(ctx context.Context) (StatusResult, error) {
	var res StatusResult
	if err := a.do(ctx, http.MethodGet, "/api/auth/status", nil, &res); err != nil {
		return StatusResult{}, err
	}
	return res, nil
}

func (a *API) ListAccounts(ctx context.Context) ([]model.RosterAccount, error) {
	var res struct {
		Users []model.RosterAccount `json:"users"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/users", nil, &res); err != nil {
		return nil, err
	}
	return res.Users, nil
}

func (a *API) CreateAccount(ctx context.Context, username, password string, durationMinutes int) error {
	body := map[string]any{
		"username": username,
		"password": password,
		"duration": durationMinutes,
	}
	return a.do(ctx, http.MethodPost, "/api/users", body, nil)
}

// ExtendAccount submits a signed day delta. Negative days shorten the
// window and can expire the account immediately.
func (a *API) ExtendAccount(ctx context.Context, id string, days int) error {
	body := map[string]int{"days": days}
	return a.do(ctx, http.MethodPatch, "/api/users/"+id+"/extend", body, nil)
}

func (a *API) ResetPassword(ctx context.Context, id, password string) error {
	body := map[string]string{"password": password}
	return a.do(ctx, http.MethodPatch, "/api/users/"+id, body, nil)
}

func (a *API) DeleteAccount(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/api/users/"+id, nil, nil)
}

// DeleteExpired removes every expired customer and returns the server's
// count and summary message.
func (a *API) DeleteExpired(ctx context.Context) (int, string, error) {
	var res struct {
		Count   int    `json:"count"`
		Message string `json:"message"`
	}
	if err := a.do(ctx, http.MethodDelete, "/api/users/expired", nil, &res); err != nil {
		return 0, "", err
	}
	return res.Count, res.Message, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&payload)
		return &RejectionError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
