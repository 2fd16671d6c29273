// Package epoch implements the PCP server epoch validation procedure from
// RFC 6887 §8.5: a pure check that the server's epoch counter, and the
// client's own wall clock, are advancing at compatible rates.
package epoch

import "time"

// Snapshot is the last epoch value seen from a server and the client's
// local time when it was received.
type Snapshot struct {
	Value      uint32
	ReceivedAt time.Time
}

func saturatingSub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}

// secondsElapsed converts d to whole seconds, clamped to zero for a
// negative duration (clock skew should never produce one in practice).
func secondsElapsed(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d.Seconds())
}

// Validate checks a newly received (value, receivedAt) against prev, per
// RFC 6887 §8.5. A nil prev (no epoch seen yet) is always valid.
//
// On success, the caller should record the returned Snapshot as the new
// prev for the next call. On failure, the caller must trigger recovery
// (§4.5) and discard the response; the stored epoch is left unchanged.
func Validate(prev *Snapshot, value uint32, receivedAt time.Time) (valid bool, next Snapshot) {
	next = Snapshot{Value: value, ReceivedAt: receivedAt}
	if prev == nil {
		return true, next
	}

	// The server epoch may appear to go backwards by up to one second
	// without being invalid, to tolerate minor packet reordering.
	if value < saturatingSub(prev.Value, 1) {
		return false, next
	}

	clientDelta := secondsElapsed(receivedAt.Sub(prev.ReceivedAt))
	serverDelta := saturatingSub(value, prev.Value)

	if clientDelta+2 < serverDelta-serverDelta/16 {
		return false, next
	}
	if serverDelta+2 < clientDelta-clientDelta/16 {
		return false, next
	}
	return true, next
}
