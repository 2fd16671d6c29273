package client

import (
	"log/slog"
	"net/netip"
	"testing"

	"github.com/portmapper/pcpclient/internal/socket"
	"github.com/stretchr/testify/require"
)

func TestClient_Config_Validate_RequiresLoggerConnClientAddr(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Conn: &socket.Conn{}, ClientAddr: netip.MustParseAddr("10.0.0.1")}
		err := cfg.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "logger is required")
	})

	t.Run("missing conn", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: slog.Default(), ClientAddr: netip.MustParseAddr("10.0.0.1")}
		err := cfg.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "conn is required")
	})

	t.Run("missing clientAddr", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: slog.Default(), Conn: &socket.Conn{}}
		err := cfg.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "clientAddr is required")
	})
}

func TestClient_Config_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Logger:     slog.Default(),
		Conn:       &socket.Conn{},
		ClientAddr: netip.MustParseAddr("10.0.0.1"),
	}
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Clock)
	require.NotNil(t, cfg.Rand)
	require.Equal(t, 64, cfg.NotificationBuffer)
	require.Equal(t, 256, cfg.InputBuffer)
}
