package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/karstlabs/guestpass/internal/events"
	"github.com/karstlabs/guestpass/internal/lifecycle"
	"github.com/karstlabs/guestpass/internal/model"
	"github.com/karstlabs/guestpass/internal/store"
)

const minPasswordLength = 6

// AccountHandler serves the admin roster operations. All routes are
// mounted behind the admin-only middleware.
type AccountHandler struct {
	accountStore *store.AccountStore
	sessionStore *store.SessionStore
	hub          *events.Hub
	logger       *slog.Logger
	now          func() time.Time
}

func NewAccountHandler(as *store.AccountStore, ss *store.SessionStore, hub *events.Hub, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accountStore: as,
		sessionStore: ss,
		hub:          hub,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *AccountHandler) broadcast(ev events.Event) {
	if h.hub != nil {
		h.hub.Broadcast(ev)
	}
}

// List returns every account with its lifecycle fields computed at read
// time. The client filters out admin rows for display; the server keeps
// them in the payload so the roster is the whole truth.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountStore.List()
	if err != nil {
		h.logger.Error("list accounts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list accounts"})
		return
	}

	now := h.now()
	roster := make([]model.RosterAccount, 0, len(accounts))
	for _, a := range accounts {
		roster = append(roster, model.RosterAccount{
			ID:              a.ID,
			Username:        a.Username,
			Role:            a.Role,
			DurationMinutes: a.DurationMinutes,
			ActivatedAt:     a.ActivatedAt,
			ExpiresAt:       lifecycle.ExpiresAt(a),
			IsActive:        lifecycle.IsActive(a, now),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": roster})
}

type createAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Duration int    `json:"duration"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return
	}
	if req.Duration <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Duration must be a positive number of minutes"})
		return
	}

	if existing, err := h.accountStore.GetByUsername(req.Username); err != nil {
		h.logger.Error("create account lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	} else if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Username is already taken"})
		return
	}

	account, err := h.accountStore.Create(req.Username, req.Password, model.RoleCustomer, req.Duration)
	if err != nil {
		h.logger.Error("create account", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create user"})
		return
	}

	h.logger.Info("account created", "username", account.Username, "duration_minutes", account.DurationMinutes)
	h.broadcast(events.Event{Type: events.AccountCreated, AccountID: account.ID, Username: account.Username})

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": account})
}

type extendRequest struct {
	Days int `json:"days"`
}

// Extend applies a signed day delta to a customer account's window.
// Negative days shorten it; driving the remaining time to zero or below
// expires the account on the next evaluation, with no grace period.
func (h *AccountHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Days == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Days must be a non-zero number"})
		return
	}

	account, err := h.accountStore.AdjustDuration(id, req.Days*24*60)
	if err != nil {
		h.logger.Error("adjust duration", "error", err, "account_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update user"})
		return
	}
	if account == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}

	h.broadcast(events.Event{Type: events.AccountExtended, AccountID: account.ID, Username: account.Username})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": account})
}

type patchAccountRequest struct {
	Password string `json:"password"`
}

// Update resets an account's credential. Existing sessions stay valid;
// only the secret changes.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req patchAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Password) < minPasswordLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Password must be at least 6 characters long"})
		return
	}

	account, err := h.accountStore.GetByID(id)
	if err != nil {
		h.logger.Error("update account lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	if account == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}

	if err := h.accountStore.UpdatePassword(id, req.Password); err != nil {
		h.logger.Error("update password", "error", err, "account_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update password"})
		return
	}

	h.broadcast(events.Event{Type: events.AccountUpdated, AccountID: account.ID, Username: account.Username})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Delete removes an account. Sessions bound to it go with it, so the
// holder's next heartbeat lands unauthenticated.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	account, err := h.accountStore.GetByID(id)
	if err != nil {
		h.logger.Error("delete account lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	if account == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}

	if err := h.accountStore.Delete(id); err != nil {
		h.logger.Error("delete account", "error", err, "account_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete user"})
		return
	}

	h.logger.Info("account deleted", "username", account.Username)
	h.broadcast(events.Event{Type: events.AccountDeleted, AccountID: account.ID, Username: account.Username})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteExpired removes every expired customer account and reports a
// summary the admin panel shows verbatim.
func (h *AccountHandler) DeleteExpired(w http.ResponseWriter, r *http.Request) {
	count, err := h.accountStore.DeleteExpired(h.now())
	if err != nil {
		h.logger.Error("delete expired accounts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete expired users"})
		return
	}

	message := fmt.Sprintf("Removed %d expired customer(s)", count)
	h.logger.Info("expired accounts purged", "count", count)
	h.broadcast(events.Event{Type: events.ExpiredPurged, Message: message})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
