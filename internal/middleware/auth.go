package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/karstlabs/guestpass/internal/auth"
	"github.com/karstlabs/guestpass/internal/lifecycle"
	"github.com/karstlabs/guestpass/internal/store"
)

const SessionCookieName = "guestpass_session"

// RequireAuth validates the session cookie and populates AuthContext.
// Session validity is a function of the bound account's lifecycle state
// at request time: a session whose account has expired or disappeared is
// destroyed on the spot, never cached as valid.
func RequireAuth(sessions *store.SessionStore, accounts *store.AccountStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			account, err := accounts.GetByID(sess.AccountID)
			if err != nil || account == nil {
				sessions.Delete(sess.ID)
				unauthorized(w)
				return
			}

			if !lifecycle.IsActive(*account, time.Now()) {
				sessions.Delete(sess.ID)
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				AccountID: account.ID,
				Username:  account.Username,
				Role:      account.Role,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated account has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "Not authenticated"})
}
