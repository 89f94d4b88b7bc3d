package store

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/karstlabs/guestpass/internal/database"
	"github.com/karstlabs/guestpass/internal/model"
)

func setupTestDB(t *testing.T) (*AccountStore, *SessionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccountStore(db), NewSessionStore(db)
}

func TestAccountCreate(t *testing.T) {
	as, _ := setupTestDB(t)

	a, err := as.Create("Guest1", "secret123", model.RoleCustomer, 60)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.ID == "" {
		t.Error("expected non-empty id")
	}
	if a.Username != "guest1" {
		t.Errorf("username = %q, want lowercased %q", a.Username, "guest1")
	}
	if a.ActivatedAt != nil {
		t.Error("new account should be pending")
	}
	if a.PasswordHash == "secret123" {
		t.Error("password must not be stored in the clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("secret123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestAccountUsernameCaseInsensitive(t *testing.T) {
	as, _ := setupTestDB(t)

	created, _ := as.Create("Guest1", "secret123", model.RoleCustomer, 60)

	a, err := as.GetByUsername("GUEST1")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if a == nil {
		t.Fatal("expected account, got nil")
	}
	if a.ID != created.ID {
		t.Errorf("id = %q, want %q", a.ID, created.ID)
	}

	// Uniqueness is case-insensitive too.
	if _, err := as.Create("guest1", "other", model.RoleCustomer, 60); err == nil {
		t.Error("expected duplicate username to fail")
	}
}

func TestAccountActivateFirstWins(t *testing.T) {
	as, _ := setupTestDB(t)

	a, _ := as.Create("guest1", "secret123", model.RoleCustomer, 60)
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	won, err := as.Activate(a.ID, first)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !won {
		t.Fatal("first activation should win")
	}

	// A racing second login must not move the activation time.
	won, err = as.Activate(a.ID, first.Add(time.Minute))
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if won {
		t.Error("second activation should lose")
	}

	got, _ := as.GetByID(a.ID)
	if got.ActivatedAt == nil {
		t.Fatal("activated_at should be set")
	}
	if !got.ActivatedAt.Equal(first) {
		t.Errorf("activated_at = %v, want %v", got.ActivatedAt, first)
	}
}

func TestAccountAdjustDuration(t *testing.T) {
	as, _ := setupTestDB(t)

	a, _ := as.Create("guest1", "secret123", model.RoleCustomer, 60)

	got, err := as.AdjustDuration(a.ID, 2*24*60)
	if err != nil {
		t.Fatalf("adjust duration: %v", err)
	}
	if got.DurationMinutes != 60+2*24*60 {
		t.Errorf("duration = %d, want %d", got.DurationMinutes, 60+2*24*60)
	}

	// Signed delta may drive the duration non-positive.
	got, err = as.AdjustDuration(a.ID, -(got.DurationMinutes + 10))
	if err != nil {
		t.Fatalf("shorten duration: %v", err)
	}
	if got.DurationMinutes >= 0 {
		t.Errorf("duration = %d, want negative", got.DurationMinutes)
	}
}

func TestAccountAdjustDurationAdminImmutable(t *testing.T) {
	as, _ := setupTestDB(t)

	a, _ := as.Create("boss", "secret123", model.RoleAdmin, 60)

	got, err := as.AdjustDuration(a.ID, 1440)
	if err != nil {
		t.Fatalf("adjust duration: %v", err)
	}
	if got != nil {
		t.Error("admin duration must not be adjustable")
	}
}

func TestAccountUpdatePassword(t *testing.T) {
	as, _ := setupTestDB(t)

	a, _ := as.Create("guest1", "secret123", model.RoleCustomer, 60)
	if err := as.UpdatePassword(a.ID, "newpass1"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	got, _ := as.GetByID(a.ID)
	if err := bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("newpass1")); err != nil {
		t.Errorf("new password does not verify: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("secret123")); err == nil {
		t.Error("old password should no longer verify")
	}
}

func TestAccountDeleteCascadesSessions(t *testing.T) {
	as, ss := setupTestDB(t)

	a, _ := as.Create("guest1", "secret123", model.RoleCustomer, 60)
	sess, err := ss.Create(a.ID, "device_test")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := as.Delete(a.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	got, err := ss.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got != nil {
		t.Error("session should be removed with its account")
	}
}

func TestAccountDeleteExpired(t *testing.T) {
	as, _ := setupTestDB(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expired, _ := as.Create("gone", "secret123", model.RoleCustomer, 30)
	as.Activate(expired.ID, now.Add(-time.Hour))

	active, _ := as.Create("alive", "secret123", model.RoleCustomer, 120)
	as.Activate(active.ID, now.Add(-time.Hour))

	pending, _ := as.Create("waiting", "secret123", model.RoleCustomer, 30)
	admin, _ := as.Create("boss", "secret123", model.RoleAdmin, 1)

	count, err := as.DeleteExpired(now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if count != 1 {
		t.Errorf("deleted = %d, want 1", count)
	}

	for _, tc := range []struct {
		id   string
		want bool
	}{
		{expired.ID, false},
		{active.ID, true},
		{pending.ID, true},
		{admin.ID, true},
	} {
		got, _ := as.GetByID(tc.id)
		if (got != nil) != tc.want {
			t.Errorf("account %s present = %v, want %v", tc.id, got != nil, tc.want)
		}
	}
}
