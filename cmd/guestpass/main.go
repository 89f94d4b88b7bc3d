package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karstlabs/guestpass/internal/config"
	"github.com/karstlabs/guestpass/internal/database"
	"github.com/karstlabs/guestpass/internal/logging"
	"github.com/karstlabs/guestpass/internal/model"
	"github.com/karstlabs/guestpass/internal/server"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	if err := seedAdmin(srv, cfg); err != nil {
		logger.Error("failed to seed admin account", "error", err)
		os.Exit(1)
	}

	cleanupDone := make(chan struct{})
	go cleanupLoop(srv, logger, cleanupDone)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("guestpass listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// seedAdmin creates the configured admin account on first boot. An
// existing account with the same username is left untouched.
func seedAdmin(srv *server.Server, cfg config.Config) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	existing, err := srv.AccountStore().GetByUsername(cfg.AdminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = srv.AccountStore().Create(cfg.AdminUsername, cfg.AdminPassword, model.RoleAdmin, 0)
	return err
}

// cleanupLoop periodically drops sessions bound to expired accounts and
// prunes stale rate limiter buckets. Expiry itself never depends on
// this; every read re-derives it from timestamps.
func cleanupLoop(srv *server.Server, logger *slog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			srv.RateLimiter().Cleanup()

			n, err := srv.SessionStore().DeleteOrphaned(time.Now())
			if err != nil {
				logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("removed orphaned sessions", "count", n)
			}
		}
	}
}
