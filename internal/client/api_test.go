package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIRejectionCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Your access window has expired"})
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	err := api.Login(context.Background(), "mira", "pw", "device_x")

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusUnauthorized, rej.Status)
	assert.Equal(t, "Your access window has expired", rej.Message)
	assert.False(t, rej.Throttled())
}

func TestAPIThrottledRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	err := api.Login(context.Background(), "mira", "pw", "device_x")

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.True(t, rej.Throttled())
	assert.Empty(t, rej.Message)
}

func TestAPITransportFailureIsNotRejection(t *testing.T) {
	api := NewAPI("http://127.0.0.1:1")
	err := api.Logout(context.Background())
	require.Error(t, err)

	var rej *RejectionError
	assert.False(t, errors.As(err, &rej))
}

func TestAPISessionCookiePersistsAcrossCalls(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "guestpass_session", Value: "tok", Path: "/"})
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		case "/api/auth/status":
			if c, err := r.Cookie("guestpass_session"); err == nil && c.Value == "tok" {
				sawCookie = true
			}
			json.NewEncoder(w).Encode(StatusResult{Authenticated: false})
		}
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	ctx := context.Background()
	require.NoError(t, api.Login(ctx, "mira", "pw", "device_x"))
	_, err := api.Status(ctx)
	require.NoError(t, err)
	assert.True(t, sawCookie, "the jar must replay the session cookie")
}

func TestAPIDeleteExpiredSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/users/expired", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true, "count": 3, "message": "Removed 3 expired customer(s)",
		})
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	count, message, err := api.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "Removed 3 expired customer(s)", message)
}
