package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mistakeknot/chargeq/internal/core"
	"github.com/mistakeknot/chargeq/internal/storage"
)

// Both Store implementations must answer the same way to the same calls:
// handler behavior cannot depend on which one is plugged in.
func TestStoreImplementationsAgree(t *testing.T) {
	impls := []struct {
		name string
		open func(t *testing.T) storage.Store
	}{
		{"sqlite", func(t *testing.T) storage.Store { return NewSQLiteTest(t) }},
		{"memory", func(t *testing.T) storage.Store { return storage.NewMemory() }},
	}

	for _, impl := range impls {
		t.Run(impl.name, func(t *testing.T) {
			ctx := context.Background()
			st := impl.open(t)

			// Empty preference defaults to both.
			alice, err := st.CreateUser(ctx, "Alice", "")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if alice.Pref != core.PrefBoth {
				t.Errorf("pref = %q, want default %q", alice.Pref, core.PrefBoth)
			}

			// Normalized duplicates collide; case differences don't.
			if _, err := st.CreateUser(ctx, "  Alice ", core.PrefTesla); !errors.Is(err, core.ErrNameTaken) {
				t.Errorf("duplicate name: got %v, want name taken", err)
			}
			if _, err := st.CreateUser(ctx, "alice", core.PrefTesla); err != nil {
				t.Errorf("different-case name: %v", err)
			}

			// Fresh version, CAS win, then stale rejection.
			snap, err := st.ReadState(ctx)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if snap.Version != 1 {
				t.Fatalf("fresh version = %d, want 1", snap.Version)
			}
			next, err := st.ReplaceState(ctx, core.StateChange{
				Queue: []core.QueueEntry{{Position: 1, UserID: alice.ID}},
				Spots: []core.SpotAssignment{{ID: "tesla-1", UserID: &alice.ID}},
			}, &snap.Version)
			if err != nil {
				t.Fatalf("replace: %v", err)
			}
			if next.Version != snap.Version+1 {
				t.Errorf("version = %d, want %d", next.Version, snap.Version+1)
			}
			if _, err := st.ReplaceState(ctx, core.StateChange{}, &snap.Version); !errors.Is(err, core.ErrVersionConflict) {
				t.Errorf("stale replace: got %v, want version conflict", err)
			}

			// Constraint violations look the same.
			if _, err := st.ReplaceState(ctx, core.StateChange{Queue: []core.QueueEntry{
				{Position: 1, UserID: "no-such-user"},
			}}, nil); !errors.Is(err, core.ErrConstraint) {
				t.Errorf("dangling user: got %v, want constraint", err)
			}

			// Reset fires once past the boundary, then gates.
			due := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
			performed, err := st.ResetIfDue(ctx, due)
			if err != nil || !performed {
				t.Fatalf("reset: performed=%v err=%v", performed, err)
			}
			performed, err = st.ResetIfDue(ctx, due.Add(time.Minute))
			if err != nil || performed {
				t.Fatalf("repeat reset: performed=%v err=%v", performed, err)
			}

			// Delete cascades and reports missing users identically.
			if err := st.DeleteUser(ctx, alice.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := st.DeleteUser(ctx, alice.ID); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("delete again: got %v, want not found", err)
			}
		})
	}
}
