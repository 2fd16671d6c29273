package mapping

import (
	"time"

	"github.com/portmapper/pcpclient/internal/wire"
)

// TimerHandle is the mapping table's view of an armed delay: just enough
// to cancel it. The concrete implementation lives in internal/timer; this
// interface exists so the mapping package has no dependency on it.
type TimerHandle interface {
	Cancel()
}

// Record is a single mapping's complete state, owned exclusively by the
// mapping table and, through it, the client service event loop (§3.2).
type Record struct {
	State   State
	Request *wire.Request
	Kind    Kind

	// serialized caches Request's wire form so retransmissions are
	// byte-identical; it is invalidated whenever Request's lifetime is
	// mutated.
	serialized []byte

	Delay TimerHandle

	// RetransmitWait is the most recently used retransmission delay
	// (Starting), the input to the next RT backoff computation.
	RetransmitWait time.Duration

	// RenewWait is the delay most recently armed for a renewal
	// (Running/Updating); the update path subtracts it from
	// RemainingLifetime when that delay fires.
	RenewWait time.Duration

	// Lifetime is the duration the server most recently granted for this
	// mapping.
	Lifetime time.Duration

	// RemainingLifetime tracks how much of Lifetime is left to the update
	// path (Running/Updating): it starts at Lifetime and is decremented
	// by each consumed renewal wait, so the renewal formula's attempt
	// count converges toward the mapping's actual expiry instead of
	// restarting from the full lifetime every attempt.
	RemainingLifetime time.Duration

	// PendingRenewal is true when Delay is armed as a renewal-due timer
	// (fires into a new Updating attempt) rather than a natural-expiry
	// timer (fires into Expired). Only meaningful while State.Kind is
	// Running.
	PendingRenewal bool
}

// Bytes returns the cached wire-encoding of r.Request, computing and
// caching it if necessary.
func (r *Record) Bytes() ([]byte, error) {
	if r.serialized != nil {
		return r.serialized, nil
	}
	b, err := r.Request.Encode()
	if err != nil {
		return nil, err
	}
	r.serialized = b
	return b, nil
}

// SetLifetime mutates the record's requested lifetime and invalidates the
// cached wire bytes (§9: bytes are a pure function of the parsed request).
func (r *Record) SetLifetime(lifetime uint32) {
	r.Request.Lifetime = lifetime
	r.serialized = nil
}

// CancelDelay cancels any currently-armed timer for this record. It is a
// no-op if none is armed.
func (r *Record) CancelDelay() {
	if r.Delay != nil {
		r.Delay.Cancel()
		r.Delay = nil
	}
}
