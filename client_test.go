package pcpclient

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/portmapper/pcpclient/internal/socket"
	"github.com/portmapper/pcpclient/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestPcpclient_New_RequiresClientAddr(t *testing.T) {
	t.Parallel()

	_, err := New(netip.MustParseAddr("127.0.0.1"))
	require.Error(t, err)
}

// This test binds the fixed PCP server port (socket.ServerPort) on
// 127.0.0.1 without SO_REUSEADDR, so it cannot run concurrently with any
// other test that does the same (including internal/client's fake-server
// tests); it does not call t.Parallel().
func TestPcpclient_New_RequestInboundAndClose(t *testing.T) {
	srv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: socket.ServerPort})
	require.NoError(t, err)
	defer srv.Close()

	c, err := New(netip.MustParseAddr("127.0.0.1"), WithClientAddr(netip.MustParseAddr("192.168.1.20")))
	require.NoError(t, err)
	defer c.Close()

	m := NewInboundMap(6, 9999, time.Hour, Renewals(0))
	h, err := c.RequestInbound(m)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, srv.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, wire.MaxPacketSize)
	n, from, err := srv.ReadFromUDP(buf)
	require.NoError(t, err)

	req, err := wire.DecodeRequest(buf[:n])
	require.NoError(t, err)
	require.Equal(t, wire.OpMap, req.Opcode)

	resp := &wire.Response{
		Opcode: wire.OpMap, Result: wire.ResultSuccess, Lifetime: 3600,
		Map: &wire.MapPayload{
			Nonce: req.Map.Nonce, Protocol: req.Map.Protocol, InternalPort: req.Map.InternalPort,
			ExternalPort: 5000, ExternalAddr: netip.MustParseAddr("198.51.100.1"),
		},
	}
	b, err := resp.Encode()
	require.NoError(t, err)
	_, err = srv.WriteToUDP(b, from)
	require.NoError(t, err)

	n2, ok := h.WaitAlert()
	require.True(t, ok)
	require.Equal(t, h.ID(), n2.MappingID())
}

func TestPcpclient_RequestInbound_RejectsInvalidMap(t *testing.T) {
	srv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: socket.ServerPort})
	require.NoError(t, err)
	defer srv.Close()

	c, err := New(netip.MustParseAddr("127.0.0.1"), WithClientAddr(netip.MustParseAddr("192.168.1.20")))
	require.NoError(t, err)
	defer c.Close()

	m := NewInboundMap(6, 80, 0, KeepAlive())
	_, err = c.RequestInbound(m)
	require.Error(t, err)
}
