package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/karstlabs/guestpass/internal/config"
	"github.com/karstlabs/guestpass/internal/events"
	"github.com/karstlabs/guestpass/internal/handler"
	"github.com/karstlabs/guestpass/internal/middleware"
	"github.com/karstlabs/guestpass/internal/profile"
	"github.com/karstlabs/guestpass/internal/store"
)

type Server struct {
	db           *sql.DB
	cfg          config.Config
	hub          *events.Hub
	authH        *handler.AuthHandler
	accountH     *handler.AccountHandler
	profileH     *handler.ProfileHandler
	accountStore *store.AccountStore
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := events.NewHub(logger.With("component", "events"))

	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db)
	profileSvc := profile.NewService()

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		authH:        handler.NewAuthHandler(accountStore, sessionStore, hub, logger.With("component", "auth")),
		accountH:     handler.NewAccountHandler(accountStore, sessionStore, hub, logger.With("component", "accounts")),
		profileH:     handler.NewProfileHandler(profileSvc, logger.With("component", "profile")),
		accountStore: accountStore,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// AccountStore returns the account store for seeding and cleanup tasks.
func (s *Server) AccountStore() *store.AccountStore {
	return s.accountStore
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public API
	mux.HandleFunc("GET /api/health", s.healthHandler)
	loginWindow := time.Duration(s.cfg.LoginWindowSeconds) * time.Second
	loginLimit := middleware.RateLimit(s.rateLimiter, middleware.RealIP, s.cfg.LoginLimit, loginWindow)
	mux.Handle("POST /api/auth/login", loginLimit(http.HandlerFunc(s.authH.Login)))
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/status", s.authH.Status)
	mux.HandleFunc("GET /api/profile/{username}", s.profileH.Lookup)

	// Admin API: session required, admin role required.
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /api/users", s.accountH.List)
	adminMux.HandleFunc("POST /api/users", s.accountH.Create)
	adminMux.HandleFunc("PATCH /api/users/{id}", s.accountH.Update)
	adminMux.HandleFunc("PATCH /api/users/{id}/extend", s.accountH.Extend)
	adminMux.HandleFunc("DELETE /api/users/expired", s.accountH.DeleteExpired)
	adminMux.HandleFunc("DELETE /api/users/{id}", s.accountH.Delete)
	adminMux.HandleFunc("GET /api/events/ws", events.Handler(s.hub, s.logger.With("component", "events")))

	requireAuth := middleware.RequireAuth(s.sessionStore, s.accountStore)
	mux.Handle("/api/users", requireAuth(middleware.RequireAdmin(adminMux)))
	mux.Handle("/api/users/", requireAuth(middleware.RequireAdmin(adminMux)))
	mux.Handle("/api/events/ws", requireAuth(middleware.RequireAdmin(adminMux)))

	// The single-page app and its assets.
	mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
