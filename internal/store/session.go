package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/karstlabs/guestpass/internal/lifecycle"
	"github.com/karstlabs/guestpass/internal/model"
)

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	err := scanner.Scan(&s.ID, &s.Token, &s.AccountID, &s.DeviceID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const sessionCols = `id, token, account_id, device_id, created_at`

// Create generates a new session with a crypto-random token, bound to
// the account and the client's device identifier. Sessions carry no
// expiry of their own; validity is re-checked against the account's
// lifecycle state on every status query.
func (s *SessionStore) Create(accountID, deviceID string) (*model.Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	result, err := s.db.Exec(
		`INSERT INTO sessions (token, account_id, device_id) VALUES (?, ?, ?)`,
		token, accountID, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SessionStore) GetByToken(token string) (*model.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE token = ?`, token)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByAccountID(accountID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("delete sessions by account: %w", err)
	}
	return nil
}

// DeleteOrphaned removes sessions bound to accounts whose window has
// elapsed at the given instant. Sessions of deleted accounts already
// vanish through the foreign key cascade. Expiry is evaluated in Go
// through the lifecycle rules rather than duplicated in SQL. Returns
// the number of sessions removed.
func (s *SessionStore) DeleteOrphaned(now time.Time) (int64, error) {
	rows, err := s.db.Query(
		`SELECT `+accountCols+` FROM accounts WHERE role = ? AND activated_at IS NOT NULL`,
		model.RoleCustomer,
	)
	if err != nil {
		return 0, fmt.Errorf("list activated accounts: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return 0, fmt.Errorf("scan account: %w", err)
		}
		if lifecycle.Compute(*a, now) == lifecycle.StateExpired {
			expired = append(expired, a.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range expired {
		result, err := s.db.Exec(`DELETE FROM sessions WHERE account_id = ?`, id)
		if err != nil {
			return deleted, fmt.Errorf("delete orphaned sessions: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("rows affected: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}
