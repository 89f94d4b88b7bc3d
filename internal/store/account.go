package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/karstlabs/guestpass/internal/lifecycle"
	"github.com/karstlabs/guestpass/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var activated sql.NullTime
	err := scanner.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.DurationMinutes, &activated, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if activated.Valid {
		t := activated.Time.UTC()
		a.ActivatedAt = &t
	}
	return &a, nil
}

const accountCols = `id, username, password_hash, role, duration_minutes, activated_at, created_at`

// Create provisions a new pending account. Usernames are stored
// lowercased so lookups are case-insensitive.
func (s *AccountStore) Create(username, password, role string, durationMinutes int) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO accounts (id, username, password_hash, role, duration_minutes) VALUES (?, ?, ?, ?, ?)`,
		id, strings.ToLower(strings.TrimSpace(username)), string(hash), role, durationMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccountStore) GetByID(id string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByUsername(username string) (*model.Account, error) {
	row := s.db.QueryRow(
		`SELECT `+accountCols+` FROM accounts WHERE username = ?`,
		strings.ToLower(strings.TrimSpace(username)),
	)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return a, nil
}

func (s *AccountStore) List() ([]model.Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountCols + ` FROM accounts ORDER BY created_at, username`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// Activate stamps the first-login time. The WHERE clause makes the write
// first-wins: when two logins race, exactly one activation happens and
// the loser reuses the already-running window. Returns true if this call
// performed the activation.
func (s *AccountStore) Activate(id string, now time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE accounts SET activated_at = ? WHERE id = ? AND activated_at IS NULL`,
		now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("activate account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AdjustDuration applies a signed minutes delta to a customer account's
// allotted lifetime. Driving the duration non-positive is allowed and
// expires the account on the next evaluation. Admin durations are
// immutable.
func (s *AccountStore) AdjustDuration(id string, deltaMinutes int) (*model.Account, error) {
	result, err := s.db.Exec(
		`UPDATE accounts SET duration_minutes = duration_minutes + ? WHERE id = ? AND role = ?`,
		deltaMinutes, id, model.RoleCustomer,
	)
	if err != nil {
		return nil, fmt.Errorf("adjust duration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(id)
}

func (s *AccountStore) UpdatePassword(id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.db.Exec(`UPDATE accounts SET password_hash = ? WHERE id = ?`, string(hash), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AccountStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// DeleteExpired removes every customer account whose window has elapsed
// at the given instant. Expiry is evaluated in Go through the lifecycle
// rules rather than duplicated in SQL.
func (s *AccountStore) DeleteExpired(now time.Time) (int64, error) {
	accounts, err := s.List()
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, a := range accounts {
		if a.Role != model.RoleCustomer {
			continue
		}
		if lifecycle.Compute(a, now) != lifecycle.StateExpired {
			continue
		}
		if err := s.Delete(a.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
