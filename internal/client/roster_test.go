package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karstlabs/guestpass/internal/logging"
	"github.com/karstlabs/guestpass/internal/model"
)

// fakeRosterServer emulates the admin endpoints with call counters so
// tests can assert which mutations actually hit the wire.
type fakeRosterServer struct {
	mu             sync.Mutex
	users          []model.RosterAccount
	listCalls      int
	createCalls    int
	extendCalls    int
	lastExtendDays int
	passwordCalls  int
	deleteCalls    int
	expiredCalls   int
	expiredMessage string
	failList       bool
}

func (f *fakeRosterServer) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type rosterCounts struct {
	list, create, extend, lastDays, password, deleted, expired int
}

// snapshot copies the mutation counters for assertions.
func (f *fakeRosterServer) snapshot() rosterCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rosterCounts{
		list:     f.listCalls,
		create:   f.createCalls,
		extend:   f.extendCalls,
		lastDays: f.lastExtendDays,
		password: f.passwordCalls,
		deleted:  f.deleteCalls,
		expired:  f.expiredCalls,
	}
}

func (f *fakeRosterServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listCalls++
		users := f.users
		fail := f.failList
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "Database error"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"users": users})
	})
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.createCalls++
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("PATCH /api/users/{id}/extend", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Days int `json:"days"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.extendCalls++
		f.lastExtendDays = body.Days
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("PATCH /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.passwordCalls++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	mux.HandleFunc("DELETE /api/users/expired", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.expiredCalls++
		msg := f.expiredMessage
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"success": true, "count": 2, "message": msg})
	})
	mux.HandleFunc("DELETE /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleteCalls++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	return mux
}

func newTestRoster(t *testing.T, srv *fakeRosterServer, clock Clock) *RosterController {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	return NewRosterController(NewAPI(ts.URL), clock, logging.Setup("error", "text"))
}

func rosterFixture(now time.Time) []model.RosterAccount {
	activeExp := now.Add(48 * time.Hour)
	soonExp := now.Add(2 * time.Hour)
	goneExp := now.Add(-time.Hour)
	activated := now.Add(-time.Hour)
	return []model.RosterAccount{
		{ID: "adm", Username: "root", Role: model.RoleAdmin, DurationMinutes: 60},
		{ID: "c1", Username: "alice", Role: model.RoleCustomer, DurationMinutes: 2880,
			ActivatedAt: &activated, ExpiresAt: &activeExp, IsActive: true},
		{ID: "c2", Username: "bob", Role: model.RoleCustomer, DurationMinutes: 180,
			ActivatedAt: &activated, ExpiresAt: &soonExp, IsActive: true},
		{ID: "c3", Username: "carol", Role: model.RoleCustomer, DurationMinutes: 30,
			ActivatedAt: &activated, ExpiresAt: &goneExp, IsActive: false},
		{ID: "c4", Username: "dave", Role: model.RoleCustomer, DurationMinutes: 30},
	}
}

func TestRosterLoadExcludesAdmins(t *testing.T) {
	now := time.Now()
	srv := &fakeRosterServer{users: rosterFixture(now)}
	rc := newTestRoster(t, srv, newFakeClock(now))

	require.NoError(t, rc.Load(context.Background()))
	accounts := rc.Accounts()
	require.Len(t, accounts, 4)
	for _, a := range accounts {
		assert.NotEqual(t, model.RoleAdmin, a.Role)
	}
}

func TestRosterRenderStatsAndRows(t *testing.T) {
	now := time.Now()
	srv := &fakeRosterServer{users: rosterFixture(now)}
	rc := newTestRoster(t, srv, newFakeClock(now))
	require.NoError(t, rc.Load(context.Background()))

	view := rc.Render(now)
	assert.Equal(t, RosterStats{Total: 4, Active: 2, Waiting: 2, Expiring: 1}, view.Stats)
	require.Len(t, view.Rows, 4)
	assert.Empty(t, view.EmptyMessage)

	byID := map[string]RosterRow{}
	for _, row := range view.Rows {
		byID[row.Account.ID] = row
	}

	assert.Equal(t, "Active", byID["c1"].Status)
	assert.False(t, byID["c1"].ExpiringSoon)
	assert.Equal(t, "2d", byID["c1"].TimeLeft)
	assert.Equal(t, "2.0 days", byID["c1"].Duration)

	assert.Equal(t, "Active", byID["c2"].Status)
	assert.True(t, byID["c2"].ExpiringSoon)
	assert.Equal(t, "2h", byID["c2"].TimeLeft)

	assert.Equal(t, "Inactive", byID["c3"].Status)
	assert.Equal(t, "Expired", byID["c3"].TimeLeft)

	assert.Equal(t, "Pending activation", byID["c4"].Status)
	assert.Equal(t, "Awaiting first login", byID["c4"].TimeLeft)
	assert.Equal(t, "30 minutes", byID["c4"].Duration)
}

func TestRosterFilterMessages(t *testing.T) {
	now := time.Now()
	srv := &fakeRosterServer{users: rosterFixture(now)}
	rc := newTestRoster(t, srv, newFakeClock(now))
	ctx := context.Background()
	require.NoError(t, rc.Load(ctx))

	rc.Filter("ALI")
	view := rc.Render(now)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "alice", view.Rows[0].Account.Username)
	assert.Empty(t, view.EmptyMessage)

	rc.Filter("zz")
	view = rc.Render(now)
	assert.Empty(t, view.Rows)
	assert.Equal(t, `No matches for "zz"`, view.EmptyMessage)

	// Stats always cover the whole cache, filtered or not.
	assert.Equal(t, 4, view.Stats.Total)

	// An empty roster shows the default message regardless of term.
	srv.mu.Lock()
	srv.users = nil
	srv.mu.Unlock()
	require.NoError(t, rc.Load(ctx))
	view = rc.Render(now)
	assert.Equal(t, "No customers yet.", view.EmptyMessage)
}

func TestRosterCreateValidation(t *testing.T) {
	srv := &fakeRosterServer{}
	rc := newTestRoster(t, srv, newFakeClock(time.Now()))
	ctx := context.Background()

	err := rc.Create(ctx, " ", "secret1", 60)
	require.EqualError(t, err, "Username and password are required")
	err = rc.Create(ctx, "alice", "secret1", 0)
	require.EqualError(t, err, "Invalid duration selected")
	assert.Zero(t, srv.snapshot().create, "local validation must not reach the network")

	require.NoError(t, rc.Create(ctx, "alice", "secret1", 60))
	counts := srv.snapshot()
	assert.Equal(t, 1, counts.create)
	assert.Equal(t, 1, counts.list, "create must reload the roster")
}

func TestRosterExtendAndRemoveDays(t *testing.T) {
	srv := &fakeRosterServer{}
	rc := newTestRoster(t, srv, newFakeClock(time.Now()))
	ctx := context.Background()

	require.EqualError(t, rc.Extend(ctx, "c1", 0), "Please enter a valid positive number.")
	require.EqualError(t, rc.RemoveDays(ctx, "c1", -2), "Please enter a valid positive number.")
	assert.Zero(t, srv.snapshot().extend)

	require.NoError(t, rc.Extend(ctx, "c1", 3))
	assert.Equal(t, 3, srv.snapshot().lastDays)

	require.NoError(t, rc.RemoveDays(ctx, "c1", 2))
	counts := srv.snapshot()
	assert.Equal(t, -2, counts.lastDays)
	assert.Equal(t, 2, counts.extend)
}

func TestRosterResetPasswordLength(t *testing.T) {
	srv := &fakeRosterServer{}
	rc := newTestRoster(t, srv, newFakeClock(time.Now()))
	ctx := context.Background()

	err := rc.ResetPassword(ctx, "c1", "short")
	require.EqualError(t, err, "Password must be at least 6 characters long.")
	assert.Zero(t, srv.snapshot().password)

	require.NoError(t, rc.ResetPassword(ctx, "c1", "longenough"))
	assert.Equal(t, 1, srv.snapshot().password)
}

func TestRosterDeleteRequiresConfirmation(t *testing.T) {
	srv := &fakeRosterServer{expiredMessage: "Removed 2 expired customer(s)"}
	rc := newTestRoster(t, srv, newFakeClock(time.Now()))
	ctx := context.Background()

	var prompts []string
	rc.SetConfirm(func(prompt string) bool {
		prompts = append(prompts, prompt)
		return false
	})

	require.NoError(t, rc.Delete(ctx, "c1"))
	msg, err := rc.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, msg)
	counts := srv.snapshot()
	assert.Zero(t, counts.deleted)
	assert.Zero(t, counts.expired)
	assert.Equal(t, []string{
		"Delete this customer? This cannot be undone.",
		"Delete all expired customers?",
	}, prompts)

	rc.SetConfirm(func(string) bool { return true })
	require.NoError(t, rc.Delete(ctx, "c1"))
	msg, err = rc.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Removed 2 expired customer(s)", msg)
	counts = srv.snapshot()
	assert.Equal(t, 1, counts.deleted)
	assert.Equal(t, 1, counts.expired)
}

func TestRosterPurgeKeepsSummaryOnReloadFailure(t *testing.T) {
	srv := &fakeRosterServer{expiredMessage: "Removed 1 expired customer(s)"}
	rc := newTestRoster(t, srv, newFakeClock(time.Now()))

	srv.mu.Lock()
	srv.failList = true
	srv.mu.Unlock()

	msg, err := rc.DeleteExpired(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Removed 1 expired customer(s)", msg,
		"the purge summary must survive a failed roster reload")
	assert.Equal(t, 1, srv.snapshot().expired)
}

func TestRosterAutoRefresh(t *testing.T) {
	now := time.Now()
	clock := newFakeClock(now)
	srv := &fakeRosterServer{users: rosterFixture(now)}
	rc := newTestRoster(t, srv, clock)
	ctx := context.Background()

	require.NoError(t, rc.Open(ctx))
	require.NoError(t, rc.Open(ctx), "reopening must not stack a second interval")

	refreshers := clock.tickersFor(rosterRefreshInterval)
	require.Len(t, refreshers, 1)

	before := srv.listCount()
	clock.Advance(rosterRefreshInterval)
	refreshers[0].Tick(clock.Now())
	require.Eventually(t, func() bool {
		return srv.listCount() == before+1
	}, time.Second, 5*time.Millisecond)

	rc.StopRefresh()
	rc.StopRefresh()
	require.Eventually(t, refreshers[0].Stopped, time.Second, 5*time.Millisecond)
}

func TestRosterCloseFiresCallback(t *testing.T) {
	srv := &fakeRosterServer{}
	rc := newTestRoster(t, srv, newFakeClock(time.Now()))

	closed := 0
	rc.SetOnClose(func() { closed++ })
	require.NoError(t, rc.Open(context.Background()))
	rc.Close()
	assert.Equal(t, 1, closed)

	refreshers := rc.clock.(*fakeClock).tickersFor(rosterRefreshInterval)
	require.Len(t, refreshers, 1)
	require.Eventually(t, refreshers[0].Stopped, time.Second, 5*time.Millisecond)
}
