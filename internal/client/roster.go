package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/karstlabs/guestpass/internal/lifecycle"
	"github.com/karstlabs/guestpass/internal/model"
	"github.com/karstlabs/guestpass/internal/timefmt"
)

// rosterRefreshInterval is the auto-refresh period while the admin
// panel is open.
const rosterRefreshInterval = 30 * time.Second

const defaultEmptyMessage = "No customers yet."

// RosterRow is one rendered roster entry.
type RosterRow struct {
	Account      model.RosterAccount
	Status       string
	TimeLeft     string
	Duration     string
	ExpiringSoon bool
}

// RosterStats aggregates the cached roster. Waiting counts every
// account that is not active, which covers both never-activated and
// already-expired entries.
type RosterStats struct {
	Total    int
	Active   int
	Waiting  int
	Expiring int
}

// RosterView is the render output: rows surviving the current filter,
// stats over the whole cached roster, and an empty-state message when
// no rows are visible.
type RosterView struct {
	Rows         []RosterRow
	Stats        RosterStats
	EmptyMessage string
}

// RosterController fetches, caches, filters, and mutates the customer
// roster while the admin panel is open. Admin accounts are excluded
// from the cache at load time. Mutations reload the roster on success
// and leave it untouched on failure.
type RosterController struct {
	api    *API
	clock  Clock
	logger *slog.Logger

	// confirm gates destructive operations. A nil hook proceeds
	// unconditionally; interactive callers should set one.
	confirm func(prompt string) bool
	onClose func()

	mu          sync.Mutex
	accounts    []model.RosterAccount
	term        string
	refreshStop chan struct{}
}

func NewRosterController(api *API, clock Clock, logger *slog.Logger) *RosterController {
	return &RosterController{api: api, clock: clock, logger: logger}
}

// SetConfirm installs the interactive confirmation hook for delete
// operations.
func (r *RosterController) SetConfirm(fn func(prompt string) bool) {
	r.confirm = fn
}

// SetOnClose installs the callback invoked when the panel closes. The
// admin flow wires this to a full sign-out, since the panel is the
// admin's entire session surface.
func (r *RosterController) SetOnClose(fn func()) {
	r.onClose = fn
}

// Open loads the roster and starts the auto-refresh interval. The
// interval starts even when the initial load fails, matching the
// retry-on-next-tick behavior the refresh loop provides anyway.
func (r *RosterController) Open(ctx context.Context) error {
	err := r.Load(ctx)
	r.startRefresh()
	return err
}

// Close stops the auto-refresh interval and fires the close callback.
func (r *RosterController) Close() {
	r.StopRefresh()
	if r.onClose != nil {
		r.onClose()
	}
}

// StopRefresh cancels the auto-refresh interval. Idempotent.
func (r *RosterController) StopRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshStop != nil {
		close(r.refreshStop)
		r.refreshStop = nil
	}
}

func (r *RosterController) startRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshStop != nil {
		return
	}
	stop := make(chan struct{})
	r.refreshStop = stop
	ticker := r.clock.NewTicker(rosterRefreshInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := r.Load(ctx); err != nil {
					r.logger.Warn("roster refresh failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

// Load fetches the full account list and caches it with admin rows
// excluded. The cache is only replaced on success.
func (r *RosterController) Load(ctx context.Context) error {
	users, err := r.api.ListAccounts(ctx)
	if err != nil {
		return err
	}

	customers := make([]model.RosterAccount, 0, len(users))
	for _, u := range users {
		if u.Role == model.RoleAdmin {
			continue
		}
		customers = append(customers, u)
	}

	r.mu.Lock()
	r.accounts = customers
	r.mu.Unlock()
	return nil
}

// Filter sets the username substring filter. Matching is
// case-insensitive and needs no re-fetch.
func (r *RosterController) Filter(term string) {
	r.mu.Lock()
	r.term = term
	r.mu.Unlock()
}

// Accounts returns a copy of the cached roster.
func (r *RosterController) Accounts() []model.RosterAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RosterAccount, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Render derives rows, stats, and the empty-state message from the
// cached roster at the given instant. Stats cover the whole cache; the
// filter only hides rows.
func (r *RosterController) Render(now time.Time) RosterView {
	r.mu.Lock()
	accounts := r.accounts
	term := r.term
	r.mu.Unlock()

	var view RosterView
	view.Stats.Total = len(accounts)
	normalized := strings.ToLower(strings.TrimSpace(term))

	for _, a := range accounts {
		expiringSoon := lifecycle.ExpiringSoon(a.ExpiresAt, now)
		if a.IsActive {
			view.Stats.Active++
		} else {
			view.Stats.Waiting++
		}
		if expiringSoon {
			view.Stats.Expiring++
		}

		if normalized != "" && !strings.Contains(strings.ToLower(a.Username), normalized) {
			continue
		}

		row := RosterRow{
			Account:      a,
			Duration:     timefmt.DurationLabel(a.DurationMinutes),
			ExpiringSoon: expiringSoon,
		}
		switch {
		case a.IsActive:
			row.Status = "Active"
		case a.ExpiresAt != nil:
			row.Status = "Inactive"
		default:
			row.Status = "Pending activation"
		}
		if a.ExpiresAt != nil {
			row.TimeLeft = timefmt.RemainingUntil(*a.ExpiresAt, now)
		} else {
			row.TimeLeft = "Awaiting first login"
		}
		view.Rows = append(view.Rows, row)
	}

	switch {
	case len(accounts) == 0:
		view.EmptyMessage = defaultEmptyMessage
	case normalized != "" && len(view.Rows) == 0:
		view.EmptyMessage = fmt.Sprintf("No matches for %q", term)
	}
	return view
}

// Create validates locally, submits, and reloads the roster.
func (r *RosterController) Create(ctx context.Context, username, password string, durationMinutes int) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return errors.New("Username and password are required")
	}
	if durationMinutes <= 0 {
		return errors.New("Invalid duration selected")
	}
	if err := r.api.CreateAccount(ctx, username, password, durationMinutes); err != nil {
		return err
	}
	return r.Load(ctx)
}

// Extend adds the given number of days to an account's window.
func (r *RosterController) Extend(ctx context.Context, id string, days int) error {
	if days <= 0 {
		return errors.New("Please enter a valid positive number.")
	}
	if err := r.api.ExtendAccount(ctx, id, days); err != nil {
		return err
	}
	return r.Load(ctx)
}

// RemoveDays shortens an account's window. Driving the remaining time
// to zero or below expires the account immediately.
func (r *RosterController) RemoveDays(ctx context.Context, id string, days int) error {
	if days <= 0 {
		return errors.New("Please enter a valid positive number.")
	}
	if err := r.api.ExtendAccount(ctx, id, -days); err != nil {
		return err
	}
	return r.Load(ctx)
}

// ResetPassword replaces an account's credential. No roster reload is
// needed since no displayed field changes.
func (r *RosterController) ResetPassword(ctx context.Context, id, password string) error {
	if len(password) < 6 {
		return errors.New("Password must be at least 6 characters long.")
	}
	return r.api.ResetPassword(ctx, id, password)
}

// Delete removes one account after confirmation. Declining is not an
// error.
func (r *RosterController) Delete(ctx context.Context, id string) error {
	if !r.confirmed("Delete this customer? This cannot be undone.") {
		return nil
	}
	if err := r.api.DeleteAccount(ctx, id); err != nil {
		return err
	}
	return r.Load(ctx)
}

// DeleteExpired removes every expired customer after confirmation and
// returns the server's summary message.
func (r *RosterController) DeleteExpired(ctx context.Context) (string, error) {
	if !r.confirmed("Delete all expired customers?") {
		return "", nil
	}
	_, message, err := r.api.DeleteExpired(ctx)
	if err != nil {
		return "", err
	}
	if message == "" {
		message = "Expired users removed"
	}
	if err := r.Load(ctx); err != nil {
		return message, err
	}
	return message, nil
}

func (r *RosterController) confirmed(prompt string) bool {
	if r.confirm == nil {
		return true
	}
	return r.confirm(prompt)
}
