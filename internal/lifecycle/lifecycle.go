package lifecycle

import (
	"time"

	"github.com/karstlabs/guestpass/internal/model"
)

type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// ExpiringSoonWindow is how far ahead of expiry an account counts as
// expiring soon in the admin roster.
const ExpiringSoonWindow = 6 * time.Hour

// ExpiresAt derives the expiry timestamp for an activated account.
// Returns nil while the account is pending. Admin accounts never expire.
func ExpiresAt(a model.Account) *time.Time {
	if a.Role == model.RoleAdmin || a.ActivatedAt == nil {
		return nil
	}
	t := a.ActivatedAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
	return &t
}

// Compute determines the lifecycle state of an account at the given
// instant. The state is never stored; every read re-evaluates it so a
// shortened window expires with no grace period.
func Compute(a model.Account, now time.Time) State {
	if a.Role == model.RoleAdmin {
		return StateActive
	}
	if a.ActivatedAt == nil {
		return StatePending
	}
	exp := ExpiresAt(a)
	if !now.Before(*exp) {
		return StateExpired
	}
	return StateActive
}

// IsActive reports whether the account is usable at the given instant.
func IsActive(a model.Account, now time.Time) bool {
	return Compute(a, now) == StateActive
}

// Remaining returns the time left before expiry, negative once expired.
// The second return is false for accounts with no expiry (pending or
// admin).
func Remaining(a model.Account, now time.Time) (time.Duration, bool) {
	exp := ExpiresAt(a)
	if exp == nil {
		return 0, false
	}
	return exp.Sub(now), true
}

// ExpiringSoon reports whether expiry is in the future but within the
// warning window.
func ExpiringSoon(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return expiresAt.After(now) && expiresAt.Sub(now) <= ExpiringSoonWindow
}
