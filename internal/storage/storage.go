package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/chargeq/internal/core"
)

// Store is the authoritative home of the queue, the spot assignments, and
// the version counter that orders every mutation to them.
type Store interface {
	// ReadState returns the queue, spots and last reset time from one
	// consistent snapshot, together with the current version.
	ReadState(ctx context.Context) (core.Snapshot, error)
	// ReplaceState replaces the queue and spot assignments wholesale.
	// If expect is non-nil and does not match the current version the
	// call fails with core.ErrVersionConflict and changes nothing.
	ReplaceState(ctx context.Context, change core.StateChange, expect *int64) (core.Snapshot, error)
	// ResetIfDue performs the daily reset if the configured boundary has
	// been crossed since the last recorded reset. Safe to call
	// arbitrarily often; at most one reset fires per boundary.
	ResetIfDue(ctx context.Context, now time.Time) (bool, error)

	Settings(ctx context.Context) (core.Settings, error)
	UpdateSettings(ctx context.Context, s core.Settings) error

	CreateUser(ctx context.Context, name string, pref core.Preference) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	// DeleteUser removes the user and, in the same transaction, their
	// queue entries and spot assignments.
	DeleteUser(ctx context.Context, id string) error

	Close() error
}

// SeedSpots is the fixed charger pool. The reset and replace operations
// never create or delete spots, only reassign them.
func SeedSpots() []core.Spot {
	return []core.Spot{
		{ID: "tesla-1", Type: core.SpotTesla, Label: "Tesla #1"},
		{ID: "tesla-2", Type: core.SpotTesla, Label: "Tesla #2"},
		{ID: "chargepoint-1", Type: core.SpotChargePoint, Label: "ChargePoint #1"},
		{ID: "chargepoint-2", Type: core.SpotChargePoint, Label: "ChargePoint #2"},
	}
}

// Memory is a mutex-guarded in-memory Store with the same versioned
// compare-and-swap semantics as the SQLite implementation. Used by tests
// and callers that don't want a database file.
type Memory struct {
	mu        sync.Mutex
	version   int64
	lastReset *time.Time
	queue     []core.QueueEntry
	spots     []core.Spot
	users     map[string]core.User
	settings  core.Settings
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		version:  1,
		spots:    SeedSpots(),
		users:    make(map[string]core.User),
		settings: core.Settings{ResetTime: core.DefaultResetTime},
	}
}

func (m *Memory) snapshotLocked() core.Snapshot {
	snap := core.Snapshot{
		Queue:     append([]core.QueueEntry(nil), m.queue...),
		Spots:     append([]core.Spot(nil), m.spots...),
		LastReset: m.lastReset,
		Version:   m.version,
	}
	sort.Slice(snap.Queue, func(i, j int) bool { return snap.Queue[i].Position < snap.Queue[j].Position })
	return snap
}

func (m *Memory) ReadState(ctx context.Context) (core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

func (m *Memory) ReplaceState(ctx context.Context, change core.StateChange, expect *int64) (core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expect != nil && *expect != m.version {
		return core.Snapshot{}, core.ErrVersionConflict
	}

	queue := make([]core.QueueEntry, 0, len(change.Queue))
	seen := make(map[int]bool, len(change.Queue))
	for _, e := range change.Queue {
		if seen[e.Position] {
			return core.Snapshot{}, fmt.Errorf("%w: duplicate queue position %d", core.ErrConstraint, e.Position)
		}
		if _, ok := m.users[e.UserID]; !ok {
			return core.Snapshot{}, fmt.Errorf("%w: queue references unknown user %q", core.ErrConstraint, e.UserID)
		}
		seen[e.Position] = true
		queue = append(queue, e)
	}

	assignments := make(map[string]*string, len(change.Spots))
	for _, a := range change.Spots {
		if a.UserID != nil {
			if _, ok := m.users[*a.UserID]; !ok {
				return core.Snapshot{}, fmt.Errorf("%w: spot %q references unknown user %q", core.ErrConstraint, a.ID, *a.UserID)
			}
		}
		assignments[a.ID] = a.UserID
	}

	m.queue = queue
	for i := range m.spots {
		m.spots[i].UserID = assignments[m.spots[i].ID]
	}
	m.version++
	return m.snapshotLocked(), nil
}

func (m *Memory) ResetIfDue(ctx context.Context, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := core.ResetTarget(now, m.settings.ResetTime)
	if err != nil {
		return false, err
	}
	now = now.UTC()
	if now.Before(target) {
		return false, nil
	}
	if m.lastReset != nil && !m.lastReset.Before(target) {
		return false, nil
	}

	m.queue = nil
	for i := range m.spots {
		m.spots[i].UserID = nil
	}
	m.lastReset = &now
	m.version++
	return true, nil
}

func (m *Memory) Settings(ctx context.Context) (core.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *Memory) UpdateSettings(ctx context.Context, s core.Settings) error {
	if _, _, err := core.ParseResetTime(s.ResetTime); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *Memory) CreateUser(ctx context.Context, name string, pref core.Preference) (core.User, error) {
	name = core.NormalizeName(name)
	if name == "" {
		return core.User{}, core.Validation("name required")
	}
	if pref == "" {
		pref = core.PrefBoth
	}
	if !pref.Valid() {
		return core.User{}, core.Validation("invalid pref")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == name {
			return core.User{}, core.ErrNameTaken
		}
	}
	user := core.User{
		ID:        uuid.NewString(),
		Name:      name,
		Pref:      pref,
		CreatedAt: time.Now().UTC(),
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return core.ErrNotFound
	}

	changed := false
	kept := m.queue[:0]
	for _, e := range m.queue {
		if e.UserID == id {
			changed = true
			continue
		}
		kept = append(kept, e)
	}
	m.queue = kept
	for i := range m.spots {
		if m.spots[i].UserID != nil && *m.spots[i].UserID == id {
			m.spots[i].UserID = nil
			changed = true
		}
	}
	delete(m.users, id)
	if changed {
		m.version++
	}
	return nil
}

func (m *Memory) Close() error { return nil }
