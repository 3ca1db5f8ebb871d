package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	httpapi "github.com/mistakeknot/chargeq/internal/http"
	"github.com/mistakeknot/chargeq/internal/storage/sqlite"
	"github.com/mistakeknot/chargeq/internal/ws"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()
	st, err := sqlite.NewInMemory()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	hub := ws.NewHub()
	svc := httpapi.NewService(st).WithBroadcaster(hub)
	srv := httptest.NewServer(httpapi.NewRouter(svc, hub.Handler(), nil))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t)

	u, err := c.CreateUser(ctx, "Alice", "tesla")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	state, err := c.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Version != 1 {
		t.Fatalf("version = %d, want 1", state.Version)
	}

	next, err := c.ReplaceState(ctx, StateChange{
		Queue: []QueueEntry{{Position: 1, UserID: u.ID}},
		Spots: []SpotAssignment{{ID: "tesla-1", UserID: &u.ID}},
	}, state.Version)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if next.Version != state.Version+1 {
		t.Errorf("version = %d, want %d", next.Version, state.Version+1)
	}
	if len(next.Queue) != 1 || next.Queue[0].UserID != u.ID {
		t.Errorf("queue = %+v", next.Queue)
	}
}

func TestClientVersionConflict(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t)

	u, err := c.CreateUser(ctx, "Alice", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	state, err := c.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if _, err := c.ReplaceState(ctx, StateChange{
		Queue: []QueueEntry{{Position: 1, UserID: u.ID}},
	}, state.Version); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	// The old version is stale now.
	_, err = c.ReplaceState(ctx, StateChange{}, state.Version)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("got %v, want ErrVersionConflict", err)
	}

	// Re-read and retry is the documented recovery.
	fresh, err := c.State(ctx)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if _, err := c.ReplaceState(ctx, StateChange{}, fresh.Version); err != nil {
		t.Fatalf("retry with fresh version: %v", err)
	}
}

func TestClientUsers(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t)

	alice, err := c.CreateUser(ctx, "Alice", "chargepoint")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if alice.Pref != "chargepoint" {
		t.Errorf("pref = %q", alice.Pref)
	}
	if _, err := c.CreateUser(ctx, "Alice", ""); err == nil {
		t.Fatal("duplicate name accepted")
	}

	users, err := c.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("list: %v (%d users)", err, len(users))
	}

	if err := c.DeleteUser(ctx, alice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	users, _ = c.ListUsers(ctx)
	if len(users) != 0 {
		t.Errorf("users after delete = %+v", users)
	}
}

func TestClientSettingsAndReset(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t)

	if err := c.SetResetTime(ctx, "00:00"); err != nil {
		t.Fatalf("set reset time: %v", err)
	}
	cfg, err := c.Settings(ctx)
	if err != nil || cfg.ResetTime != "00:00" {
		t.Fatalf("settings = %+v err = %v", cfg, err)
	}
	if err := c.SetResetTime(ctx, "25:00"); err == nil {
		t.Fatal("invalid reset time accepted")
	}

	res, err := c.TriggerReset(ctx)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !res.Reset {
		t.Fatalf("first trigger past midnight boundary = %+v", res)
	}
	res, err = c.TriggerReset(ctx)
	if err != nil || res.Reset {
		t.Fatalf("second trigger = %+v err = %v, want no-op", res, err)
	}
}

func TestClientWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := newTestServer(t)

	events, err := c.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	u, err := c.CreateUser(ctx, "Alice", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// The watcher may register just after the write; keep nudging until
	// an event arrives.
	var ev Event
	got := false
	for !got {
		if _, err := c.ReplaceState(ctx, StateChange{
			Queue: []QueueEntry{{Position: 1, UserID: u.ID}},
		}, 0); err != nil {
			t.Fatalf("replace: %v", err)
		}
		select {
		case ev, got = <-events:
			if !got {
				t.Fatal("event channel closed early")
			}
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			t.Fatal("no event before deadline")
		}
	}
	if ev.Type != "state.replaced" {
		t.Errorf("event = %+v, want state.replaced", ev)
	}
	if ev.Version < 2 {
		t.Errorf("event version = %d, want >= 2", ev.Version)
	}
}
