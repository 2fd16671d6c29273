// Package timer implements the one-shot, cancelable per-mapping delays
// described in §4.4/§5: one goroutine per armed delay, not a shared
// min-heap scheduler, because the number of concurrently armed timers is
// bounded by the number of live mappings rather than by event volume.
package timer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Fired is delivered on a service's input channel when an armed delay
// elapses without being cancelled first.
type Fired struct {
	ID     int
	Waited time.Duration
}

// Handle lets the owner of an armed delay cancel it. Cancellation is
// idempotent; cancelling after the delay has already fired is a no-op.
type Handle struct {
	cancelled atomic.Bool
}

// Cancel marks the delay as cancelled. If the delay has not fired yet, it
// never will.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Arm starts a background goroutine that sleeps for d (as measured by
// clock) and, unless cancelled first, sends Fired{id, d} on out. ctx
// bounds the goroutine's lifetime so that shutting down the owning service
// does not leak it.
func Arm(ctx context.Context, clock clockwork.Clock, id int, d time.Duration, out chan<- Fired) *Handle {
	h := &Handle{}
	go func() {
		select {
		case <-clock.After(d):
		case <-ctx.Done():
			return
		}
		if h.cancelled.Load() {
			return
		}
		select {
		case out <- Fired{ID: id, Waited: d}:
		case <-ctx.Done():
		}
	}()
	return h
}
