package timer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimer_Backoff_IRTWithinOPRBounds(t *testing.T) {
	t.Parallel()

	b := NewBackoff(rand.New(rand.NewSource(1)))
	for i := 0; i < 1000; i++ {
		got := b.IRT()
		require.GreaterOrEqual(t, got, time.Duration(0.9*float64(irt)))
		require.LessOrEqual(t, got, time.Duration(1.1*float64(irt)))
	}
}

func TestTimer_Backoff_RTDoublesAndCaps(t *testing.T) {
	t.Parallel()

	b := NewBackoff(rand.New(rand.NewSource(2)))

	prev := 10 * time.Second
	got := b.RT(prev)
	require.GreaterOrEqual(t, got, time.Duration(0.9*float64(20*time.Second)))
	require.LessOrEqual(t, got, time.Duration(1.1*float64(20*time.Second)))

	// Once doubling would exceed MRT, RT must stay within OPR of MRT.
	got = b.RT(2000 * time.Second)
	require.LessOrEqual(t, got, time.Duration(1.1*float64(mrt)))
	require.GreaterOrEqual(t, got, time.Duration(0.9*float64(mrt)))
}

func TestTimer_Backoff_RenewalWaitFirstAttemptRange(t *testing.T) {
	t.Parallel()

	b := NewBackoff(rand.New(rand.NewSource(3)))
	lifetime := 1000 * time.Second

	for i := 0; i < 1000; i++ {
		wait, ok := b.RenewalWait(lifetime, 0)
		require.True(t, ok)
		require.GreaterOrEqual(t, wait, time.Duration(0.5*float64(lifetime)))
		require.Less(t, wait, time.Duration(0.625*float64(lifetime)))
	}
}

func TestTimer_Backoff_RenewalWaitConvergesTowardLifetime(t *testing.T) {
	t.Parallel()

	b := NewBackoff(rand.New(rand.NewSource(4)))
	lifetime := 1000 * time.Second

	wait0, ok := b.RenewalWait(lifetime, 0)
	require.True(t, ok)
	wait3, ok := b.RenewalWait(lifetime, 3)
	require.True(t, ok)

	// Later attempts schedule closer to the full lifetime than the first.
	require.Greater(t, wait3, wait0)
}

func TestTimer_Backoff_RenewalWaitBelowFloorDisablesRenewal(t *testing.T) {
	t.Parallel()

	b := NewBackoff(rand.New(rand.NewSource(5)))

	// A tiny lifetime produces a fraction-of-lifetime wait below the
	// 4-second floor.
	_, ok := b.RenewalWait(2*time.Second, 0)
	require.False(t, ok)
}
