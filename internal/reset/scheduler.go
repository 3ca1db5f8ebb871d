// Package reset runs the recurring trigger for the daily state reset.
package reset

import (
	"context"
	"log"
	"time"
)

// Store is the subset of the state store the scheduler needs.
type Store interface {
	ResetIfDue(ctx context.Context, now time.Time) (bool, error)
}

// Broadcaster is the interface for pushing events to connected watchers.
type Broadcaster interface {
	Broadcast(event any)
}

// Scheduler invokes the reset check on a fixed interval. The check itself
// is idempotent per daily boundary, so the interval only bounds how late a
// reset can fire, and overlapping or extra invocations are harmless.
type Scheduler struct {
	store    Store
	bus      Broadcaster
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a Scheduler. Call Start() to begin checking.
func NewScheduler(store Store, bus Broadcaster, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		bus:      bus,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the background check goroutine. A check runs immediately
// so a reset missed during downtime is applied on boot.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		s.check(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.check(ctx)
			}
		}
	}()
}

// Stop cancels the check goroutine and waits for it to finish. A no-op
// when the scheduler was never started.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) check(ctx context.Context) {
	performed, err := s.store.ResetIfDue(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("reset check: %v", err)
		return
	}
	if !performed {
		return
	}

	log.Printf("daily reset performed: queue cleared, spots unassigned")

	if s.bus != nil {
		s.bus.Broadcast(map[string]any{"type": "state.reset"})
	}
}
