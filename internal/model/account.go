package model

import "time"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Account is a provisioned login with a fixed allotted lifetime. The
// countdown starts on first successful login (ActivatedAt), not at
// creation. Expiry is always derived from ActivatedAt + DurationMinutes,
// never stored.
type Account struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	PasswordHash    string     `json:"-"`
	Role            string     `json:"role"`
	DurationMinutes int        `json:"durationMinutes"`
	ActivatedAt     *time.Time `json:"activatedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthUser is the identity shape returned by the status endpoint and
// consumed by the client session controller.
type AuthUser struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// RosterAccount is one row of the admin roster listing. IsActive and
// ExpiresAt are computed by the server at read time.
type RosterAccount struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Role            string     `json:"role"`
	DurationMinutes int        `json:"durationMinutes"`
	ActivatedAt     *time.Time `json:"activatedAt"`
	ExpiresAt       *time.Time `json:"expiresAt"`
	IsActive        bool       `json:"isActive"`
}
