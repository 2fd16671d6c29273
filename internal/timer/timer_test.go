package timer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestTimer_Arm_FiresAfterDelay(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Fired, 1)
	Arm(ctx, clock, 7, 5*time.Second, out)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)

	select {
	case f := <-out:
		require.Equal(t, 7, f.ID)
		require.Equal(t, 5*time.Second, f.Waited)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimer_Arm_CancelPreventsFire(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Fired, 1)
	h := Arm(ctx, clock, 1, 5*time.Second, out)

	clock.BlockUntil(1)
	h.Cancel()
	clock.Advance(5 * time.Second)

	select {
	case f := <-out:
		t.Fatalf("cancelled timer fired: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_Arm_ContextCancelStopsGoroutine(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	out := make(chan Fired)
	Arm(ctx, clock, 1, 5*time.Second, out)

	clock.BlockUntil(1)
	cancel()

	// Advancing past the delay after ctx is cancelled must not deliver.
	clock.Advance(5 * time.Second)
	select {
	case f := <-out:
		t.Fatalf("timer fired after context cancellation: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_Handle_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	h := &Handle{}
	h.Cancel()
	h.Cancel()
}
