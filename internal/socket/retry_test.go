package socket

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSocket_DialWithRetry_SucceedsImmediatelyWhenDialWorks(t *testing.T) {
	t.Parallel()

	conn, err := DialWithRetry(context.Background(), Config{
		Family: IPv4,
		Server: netip.MustParseAddr("127.0.0.1"),
	})
	require.NoError(t, err)
	defer conn.Close()
}

func TestSocket_DialWithRetry_GivesUpWhenContextExpires(t *testing.T) {
	t.Parallel()

	// IPv6 without an interface fails deterministically, so the retry
	// loop keeps backing off until the context deadline cuts it short.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := DialWithRetry(ctx, Config{Family: IPv6, Server: netip.MustParseAddr("::1")})
	require.Error(t, err)
}
