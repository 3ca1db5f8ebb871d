package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/mistakeknot/chargeq/internal/core"
	"github.com/mistakeknot/chargeq/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*Resilient)(nil)

// Resilient wraps every Store method with CircuitBreaker + RetryOnBusy to
// ride out transient SQLite errors. Domain outcomes (version conflicts,
// constraint violations, not-found) pass through untouched: they are
// answers, not failures, so they neither retry nor trip the breaker.
type Resilient struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a Resilient store with default circuit breaker
// settings (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *Resilient {
	return &Resilient{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a Resilient store with a custom breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *Resilient {
	return &Resilient{inner: inner, cb: cb}
}

// CircuitBreakerState returns the current breaker state as a string.
func (r *Resilient) CircuitBreakerState() string {
	return r.cb.State().String()
}

// domainOutcome reports whether err is an expected domain answer rather
// than an infrastructure failure.
func domainOutcome(err error) bool {
	return errors.Is(err, core.ErrVersionConflict) ||
		errors.Is(err, core.ErrConstraint) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrNameTaken) ||
		core.IsValidation(err)
}

func (r *Resilient) run(op func() error) error {
	var opErr error
	cbErr := r.cb.Execute(func() error {
		opErr = RetryOnBusy(op)
		if opErr != nil && domainOutcome(opErr) {
			return nil
		}
		return opErr
	})
	if opErr != nil {
		return opErr
	}
	return cbErr
}

func (r *Resilient) ReadState(ctx context.Context) (core.Snapshot, error) {
	var result core.Snapshot
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.ReadState(ctx)
		return innerErr
	})
	return result, err
}

func (r *Resilient) ReplaceState(ctx context.Context, change core.StateChange, expect *int64) (core.Snapshot, error) {
	var result core.Snapshot
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.ReplaceState(ctx, change, expect)
		return innerErr
	})
	return result, err
}

func (r *Resilient) ResetIfDue(ctx context.Context, now time.Time) (bool, error) {
	var performed bool
	err := r.run(func() error {
		var innerErr error
		performed, innerErr = r.inner.ResetIfDue(ctx, now)
		return innerErr
	})
	return performed, err
}

func (r *Resilient) Settings(ctx context.Context) (core.Settings, error) {
	var result core.Settings
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.Settings(ctx)
		return innerErr
	})
	return result, err
}

func (r *Resilient) UpdateSettings(ctx context.Context, cfg core.Settings) error {
	return r.run(func() error {
		return r.inner.UpdateSettings(ctx, cfg)
	})
}

func (r *Resilient) CreateUser(ctx context.Context, name string, pref core.Preference) (core.User, error) {
	var result core.User
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.CreateUser(ctx, name, pref)
		return innerErr
	})
	return result, err
}

func (r *Resilient) ListUsers(ctx context.Context) ([]core.User, error) {
	var result []core.User
	err := r.run(func() error {
		var innerErr error
		result, innerErr = r.inner.ListUsers(ctx)
		return innerErr
	})
	return result, err
}

func (r *Resilient) DeleteUser(ctx context.Context, id string) error {
	return r.run(func() error {
		return r.inner.DeleteUser(ctx, id)
	})
}

// Close delegates directly to the inner store without breaker or retry.
func (r *Resilient) Close() error {
	return r.inner.Close()
}
