package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/karstlabs/guestpass/internal/model"
)

// View is the top-level screen the client is showing.
type View int

const (
	ViewUnauthenticated View = iota
	ViewCustomer
	ViewAdmin
)

func (v View) String() string {
	switch v {
	case ViewCustomer:
		return "customer"
	case ViewAdmin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

// heartbeatInterval is how often an authenticated client re-validates
// its session, bounding expiry detection latency to one interval.
const heartbeatInterval = 15 * time.Second

const (
	msgMissingCredentials = "Username and password are required"
	msgBadCredentials     = "Invalid username or password"
	msgThrottled          = "Too many attempts. Try again shortly."
	msgNetworkIssue       = "Network issue. Please try again."
)

// SessionController owns the authenticated view state. It serializes
// status responses by sequence number so a stale in-flight completion
// never clobbers a newer state, runs the liveness heartbeat while
// authenticated, and tears down every timer it or its collaborators
// own on transition to Unauthenticated.
type SessionController struct {
	api    *API
	clock  Clock
	prefs  *Prefs
	logger *slog.Logger

	countdown *Countdown
	roster    *RosterController

	onBadge      func(label string)
	onViewChange func(view View, user *model.AuthUser)

	mu            sync.Mutex
	view          View
	user          *model.AuthUser
	attempts      int
	seq           uint64
	applied       uint64
	heartbeatStop chan struct{}
}

func NewSessionController(api *API, clock Clock, prefs *Prefs, logger *slog.Logger) *SessionController {
	s := &SessionController{
		api:    api,
		clock:  clock,
		prefs:  prefs,
		logger: logger,
	}
	s.countdown = NewCountdown(clock, func(label string) { s.badge(label) }, s.handleCountdownExpired)
	return s
}

// OnBadge registers the renderer for the remaining-time badge.
func (s *SessionController) OnBadge(fn func(label string)) {
	s.onBadge = fn
}

// OnViewChange registers a callback invoked after every view
// transition, with the user for authenticated views and nil otherwise.
func (s *SessionController) OnViewChange(fn func(view View, user *model.AuthUser)) {
	s.onViewChange = fn
}

// AttachRoster hands the controller the roster it must tear down on
// sign-out.
func (s *SessionController) AttachRoster(r *RosterController) {
	s.roster = r
}

func (s *SessionController) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *SessionController) CurrentUser() *model.AuthUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Attempts returns the consecutive failed login count since the last
// success. Advisory only; the server enforces real throttling.
func (s *SessionController) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// FetchAuthStatus queries the authority and drives the view to match.
// Safe to call concurrently with itself: each call takes a sequence
// number and completions older than the newest applied one are
// discarded.
func (s *SessionController) FetchAuthStatus(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	res, err := s.api.Status(ctx)
	if err != nil {
		s.logger.Warn("auth status check failed", "error", err)
		return err
	}
	s.apply(seq, res)
	return nil
}

// Login submits credentials plus the persisted device identifier. A
// rejection increments the attempt counter and returns the server's
// message verbatim when present, the throttle message on 429, and a
// generic message otherwise. Success resets the counter and re-fetches
// status.
func (s *SessionController) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return errors.New(msgMissingCredentials)
	}

	deviceID, err := s.prefs.DeviceID()
	if err != nil {
		s.logger.Warn("device id unavailable", "error", err)
		return errors.New(msgNetworkIssue)
	}

	if err := s.api.Login(ctx, username, password, deviceID); err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			s.mu.Lock()
			s.attempts++
			s.mu.Unlock()
			if rej.Message == "" {
				if rej.Throttled() {
					rej.Message = msgThrottled
				} else {
					rej.Message = msgBadCredentials
				}
			}
			return rej
		}
		s.logger.Warn("login request failed", "error", err)
		return errors.New(msgNetworkIssue)
	}

	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	return s.FetchAuthStatus(ctx)
}

// Logout notifies the server best-effort, discards the device
// identifier, and unconditionally clears local state.
func (s *SessionController) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("logout request failed", "error", err)
	}
	if err := s.prefs.ClearDeviceID(); err != nil {
		s.logger.Warn("clearing device id failed", "error", err)
	}

	s.mu.Lock()
	s.signOutLocked()
	s.mu.Unlock()
	s.notifyViewChange(ViewUnauthenticated, nil)
}

func (s *SessionController) apply(seq uint64, res StatusResult) {
	s.mu.Lock()
	if seq <= s.applied {
		s.mu.Unlock()
		return
	}
	s.applied = seq

	if !res.Authenticated || res.User == nil {
		s.signOutLocked()
		s.mu.Unlock()
		s.notifyViewChange(ViewUnauthenticated, nil)
		return
	}

	user := *res.User
	s.user = &user
	if user.Role == model.RoleAdmin {
		s.view = ViewAdmin
	} else {
		s.view = ViewCustomer
	}
	view := s.view
	s.startHeartbeatLocked()
	s.mu.Unlock()

	if view == ViewCustomer {
		s.countdown.Start(user.ExpiresAt)
	} else {
		s.countdown.Stop()
		s.badge("Admin access")
	}

	// Starting the countdown for an already-closed window signs out
	// synchronously. Announce this transition only if it still holds,
	// so the sign-out notification is never followed by a stale
	// authenticated one.
	s.mu.Lock()
	current := s.applied == seq && s.view == view
	s.mu.Unlock()
	if current {
		s.notifyViewChange(view, &user)
	}
}

// handleCountdownExpired forces sign-out when the countdown reaches
// zero. The applied watermark is advanced past every issued sequence so
// an in-flight status response from before expiry cannot resurrect the
// session.
func (s *SessionController) handleCountdownExpired() {
	s.mu.Lock()
	s.seq++
	s.applied = s.seq
	s.signOutLocked()
	s.mu.Unlock()
	s.notifyViewChange(ViewUnauthenticated, nil)
}

// signOutLocked clears identity and stops every timer owned by this
// controller or its collaborators. Idempotent.
func (s *SessionController) signOutLocked() {
	s.user = nil
	s.view = ViewUnauthenticated
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	s.countdown.Stop()
	if s.roster != nil {
		s.roster.StopRefresh()
	}
}

// startHeartbeatLocked starts the liveness interval if it is not
// already running. Repeated authenticated transitions never stack a
// second ticker.
func (s *SessionController) startHeartbeatLocked() {
	if s.heartbeatStop != nil {
		return
	}
	stop := make(chan struct{})
	s.heartbeatStop = stop
	ticker := s.clock.NewTicker(heartbeatInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				s.FetchAuthStatus(ctx)
				cancel()
			}
		}
	}()
}

func (s *SessionController) badge(label string) {
	if s.onBadge != nil {
		s.onBadge(label)
	}
}

func (s *SessionController) notifyViewChange(view View, user *model.AuthUser) {
	if s.onViewChange != nil {
		s.onViewChange(view, user)
	}
}
