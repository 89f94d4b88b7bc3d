package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/karstlabs/guestpass/internal/events"
	"github.com/karstlabs/guestpass/internal/lifecycle"
	"github.com/karstlabs/guestpass/internal/middleware"
	"github.com/karstlabs/guestpass/internal/model"
	"github.com/karstlabs/guestpass/internal/store"
)

// Session cookies outlive any possible account window; validity is
// re-derived from the account's lifecycle state on every request, so
// the cookie age is only an upper bound.
const sessionCookieMaxAge = 90 * 24 * 60 * 60

type AuthHandler struct {
	accountStore *store.AccountStore
	sessionStore *store.SessionStore
	hub          *events.Hub
	logger       *slog.Logger
	now          func() time.Time
}

func NewAuthHandler(as *store.AccountStore, ss *store.SessionStore, hub *events.Hub, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accountStore: as,
		sessionStore: ss,
		hub:          hub,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *AuthHandler) broadcast(ev events.Event) {
	if h.hub != nil {
		h.hub.Broadcast(ev)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

// Login validates credentials and establishes a session. The first
// successful login for an account activates it: the countdown starts
// here, not at account creation. Activation is first-wins, so two
// racing logins start exactly one window and both ride it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return
	}

	account, err := h.accountStore.GetByUsername(req.Username)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	if account == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid username or password"})
		return
	}

	now := h.now()
	if lifecycle.Compute(*account, now) == lifecycle.StateExpired {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Your access window has expired"})
		return
	}

	if account.ActivatedAt == nil {
		won, err := h.accountStore.Activate(account.ID, now)
		if err != nil {
			h.logger.Error("activate account", "error", err, "account_id", account.ID)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
			return
		}
		if won {
			h.logger.Info("account activated", "username", account.Username, "duration_minutes", account.DurationMinutes)
			h.broadcast(events.Event{Type: events.AccountActivated, AccountID: account.ID, Username: account.Username})
		}
	}

	sess, err := h.sessionStore.Create(account.ID, req.DeviceID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout destroys the current session. Always succeeds from the
// client's point of view; a missing or stale session is not an error.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessionStore.GetByToken(cookie.Value); err == nil && sess != nil {
			h.sessionStore.Delete(sess.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type statusResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *model.AuthUser `json:"user,omitempty"`
}

// Status reports the current authenticated identity with a freshly
// recomputed expiry. A session whose account expired or disappeared is
// destroyed here, so the client's heartbeat converges within one
// interval of any server-side change.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
		return
	}

	sess, err := h.sessionStore.GetByToken(cookie.Value)
	if err != nil {
		h.logger.Error("status session lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
		return
	}

	account, err := h.accountStore.GetByID(sess.AccountID)
	if err != nil {
		h.logger.Error("status account lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}

	if account == nil || !lifecycle.IsActive(*account, h.now()) {
		h.sessionStore.Delete(sess.ID)
		writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Authenticated: true,
		User: &model.AuthUser{
			ID:        account.ID,
			Username:  account.Username,
			Role:      account.Role,
			ExpiresAt: lifecycle.ExpiresAt(*account),
		},
	})
}
