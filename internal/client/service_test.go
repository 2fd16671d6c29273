package client

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/portmapper/pcpclient/internal/mapping"
	"github.com/portmapper/pcpclient/internal/socket"
	"github.com/portmapper/pcpclient/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeServer stands in for a PCP server: it reads whatever the service
// sends and replies however the test tells it to.
type fakeServer struct {
	conn *net.UDPConn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: socket.ServerPort})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &fakeServer{conn: conn}
}

func (f *fakeServer) recvRequest(t *testing.T) (*wire.Request, *net.UDPAddr) {
	t.Helper()
	require.NoError(t, f.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, wire.MaxPacketSize)
	n, addr, err := f.conn.ReadFromUDP(buf)
	require.NoError(t, err)
	req, err := wire.DecodeRequest(buf[:n])
	require.NoError(t, err)
	return req, addr
}

func (f *fakeServer) reply(t *testing.T, resp *wire.Response, to *net.UDPAddr) {
	t.Helper()
	b, err := resp.Encode()
	require.NoError(t, err)
	_, err = f.conn.WriteToUDP(b, to)
	require.NoError(t, err)
}

func newTestService(t *testing.T) (*Service, *fakeServer, clockwork.FakeClock) {
	t.Helper()
	srv := newFakeServer(t)

	conn, err := socket.Dial(socket.Config{Family: socket.IPv4, Server: netip.MustParseAddr("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	clock := clockwork.NewFakeClock()
	svc, err := NewService(context.Background(), Config{
		Logger:     slog.Default(),
		Conn:       conn,
		ClientAddr: netip.MustParseAddr("192.168.1.50"),
		Clock:      clock,
		Rand:       rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return svc, srv, clock
}

// These tests all bind the fixed PCP server port (socket.ServerPort) on
// 127.0.0.1 without SO_REUSEADDR, so they cannot run concurrently with
// each other or with the fake servers in other packages' tests; none of
// them call t.Parallel().

func TestClient_Service_RequestInbound_AcceptedNotification(t *testing.T) {
	svc, srv, _ := newTestService(t)

	id, alerts, err := svc.RequestInbound(InboundSpec{
		Protocol:     6,
		InternalPort: 8080,
		Lifetime:     time.Hour,
	}, mapping.Kind{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, id, 0)

	req, from := srv.recvRequest(t)
	require.Equal(t, wire.OpMap, req.Opcode)

	resp := &wire.Response{
		Opcode:   wire.OpMap,
		Result:   wire.ResultSuccess,
		Lifetime: 3600,
		Epoch:    100,
		Map: &wire.MapPayload{
			Nonce:        req.Map.Nonce,
			Protocol:     req.Map.Protocol,
			InternalPort: req.Map.InternalPort,
			ExternalPort: 40000,
			ExternalAddr: netip.MustParseAddr("198.51.100.9"),
		},
	}
	srv.reply(t, resp, from)

	select {
	case n := <-alerts:
		accepted, ok := n.(Accepted)
		require.True(t, ok, "expected Accepted, got %T", n)
		require.Equal(t, id, accepted.ID)
		require.Equal(t, uint16(40000), accepted.ExternalPort)
	case <-time.After(2 * time.Second):
		t.Fatal("never received Accepted notification")
	}
}

func TestClient_Service_RequestInbound_ServerErrorReportsFailed(t *testing.T) {
	svc, srv, _ := newTestService(t)

	id, alerts, err := svc.RequestInbound(InboundSpec{
		Protocol:     6,
		InternalPort: 9090,
		Lifetime:     time.Hour,
	}, mapping.Kind{})
	require.NoError(t, err)

	req, from := srv.recvRequest(t)
	resp := &wire.Response{
		Opcode:   wire.OpMap,
		Result:   wire.ResultNoResources,
		Lifetime: 0,
		Map: &wire.MapPayload{
			Nonce:        req.Map.Nonce,
			Protocol:     req.Map.Protocol,
			InternalPort: req.Map.InternalPort,
		},
	}
	srv.reply(t, resp, from)

	select {
	case n := <-alerts:
		failed, ok := n.(Failed)
		require.True(t, ok, "expected Failed, got %T", n)
		require.Equal(t, id, failed.ID)
		require.True(t, failed.Recoverable)
	case <-time.After(2 * time.Second):
		t.Fatal("never received Failed notification")
	}
}

func TestClient_Service_Revoke_SendsZeroLifetimeRequest(t *testing.T) {
	svc, srv, _ := newTestService(t)

	id, alerts, err := svc.RequestInbound(InboundSpec{
		Protocol:     6,
		InternalPort: 1234,
		Lifetime:     time.Hour,
	}, mapping.Kind{})
	require.NoError(t, err)

	req, from := srv.recvRequest(t)
	srv.reply(t, &wire.Response{
		Opcode: wire.OpMap, Result: wire.ResultSuccess, Lifetime: 3600,
		Map: &wire.MapPayload{Nonce: req.Map.Nonce, Protocol: req.Map.Protocol, InternalPort: req.Map.InternalPort, ExternalPort: 4000},
	}, from)
	<-alerts // drain Accepted

	svc.Revoke(id)
	revokeReq, _ := srv.recvRequest(t)
	require.Equal(t, uint32(0), revokeReq.Lifetime)

	select {
	case n := <-alerts:
		_, ok := n.(Revoked)
		require.True(t, ok, "expected Revoked, got %T", n)
	case <-time.After(2 * time.Second):
		t.Fatal("never received Revoked notification")
	}
}

func TestClient_Service_Announce_TriggersRecovery(t *testing.T) {
	svc, srv, _ := newTestService(t)

	id, alerts, err := svc.RequestInbound(InboundSpec{
		Protocol:     6,
		InternalPort: 555,
		Lifetime:     time.Hour,
	}, mapping.Kind{})
	require.NoError(t, err)

	req, from := srv.recvRequest(t)
	srv.reply(t, &wire.Response{
		Opcode: wire.OpMap, Result: wire.ResultSuccess, Lifetime: 3600, Epoch: 10,
		Map: &wire.MapPayload{Nonce: req.Map.Nonce, Protocol: req.Map.Protocol, InternalPort: req.Map.InternalPort, ExternalPort: 4000},
	}, from)
	accepted := <-alerts
	require.Equal(t, id, accepted.MappingID())

	announce := &wire.Response{Opcode: wire.OpAnnounce, Result: wire.ResultSuccess}
	b, err := announce.Encode()
	require.NoError(t, err)
	_, err = srv.conn.WriteToUDP(b, from)
	require.NoError(t, err)

	// Recovery restarts Starting(0) for every active mapping, so a fresh
	// MAP request goes out again.
	restarted, _ := srv.recvRequest(t)
	require.Equal(t, wire.OpMap, restarted.Opcode)
}

func TestClient_Service_Announce_ErrorResultIgnored(t *testing.T) {
	svc, srv, _ := newTestService(t)

	_, alerts, err := svc.RequestInbound(InboundSpec{
		Protocol:     6,
		InternalPort: 556,
		Lifetime:     time.Hour,
	}, mapping.Kind{})
	require.NoError(t, err)

	req, from := srv.recvRequest(t)
	srv.reply(t, &wire.Response{
		Opcode: wire.OpMap, Result: wire.ResultSuccess, Lifetime: 3600, Epoch: 10,
		Map: &wire.MapPayload{Nonce: req.Map.Nonce, Protocol: req.Map.Protocol, InternalPort: req.Map.InternalPort, ExternalPort: 4000},
	}, from)
	<-alerts // drain Accepted

	announce := &wire.Response{Opcode: wire.OpAnnounce, Result: wire.ResultNotAuthorized}
	b, err := announce.Encode()
	require.NoError(t, err)
	_, err = srv.conn.WriteToUDP(b, from)
	require.NoError(t, err)

	// An error-result Announce must be ignored, not treated as a recovery
	// trigger: no further request or notification should appear.
	require.NoError(t, srv.conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, wire.MaxPacketSize)
	_, _, err = srv.conn.ReadFromUDP(buf)
	require.Error(t, err, "expected a read timeout; got an unexpected resend after an error Announce")

	select {
	case n := <-alerts:
		t.Fatalf("unexpected notification after error Announce: %#v", n)
	default:
	}
}

func TestClient_Service_Renewal_KeepAliveExpiresWhenRenewalWindowExhausted(t *testing.T) {
	svc, srv, clock := newTestService(t)

	id, alerts, err := svc.RequestInbound(InboundSpec{
		Protocol:     6,
		InternalPort: 7070,
		Lifetime:     time.Hour,
	}, mapping.Kind{KeepAlive: true})
	require.NoError(t, err)

	req, from := srv.recvRequest(t)
	srv.reply(t, &wire.Response{
		Opcode: wire.OpMap, Result: wire.ResultSuccess, Lifetime: 12,
		Map: &wire.MapPayload{Nonce: req.Map.Nonce, Protocol: req.Map.Protocol, InternalPort: req.Map.InternalPort, ExternalPort: 4000},
	}, from)

	accepted := <-alerts
	require.Equal(t, id, accepted.MappingID())

	// With a 12s granted lifetime, the first renewal-due wait (attempts=0:
	// fraction in [0.5, 0.625)) is always in [6s, 7.5s); advancing past it
	// fires the update path. Whatever remains of the 12s lifetime after
	// that first wait is in (4.5s, 6s], and the update path's own
	// attempts=0 computation on that remainder (fraction in [0.5, 0.625)
	// again) tops out at 3.75s — always below the 4s renewal floor — so
	// the mapping expires instead of resending into Updating.
	clock.BlockUntil(1)
	clock.Advance(8 * time.Second)

	select {
	case n := <-alerts:
		_, ok := n.(Expired)
		require.True(t, ok, "expected Expired, got %T", n)
	case <-time.After(2 * time.Second):
		t.Fatal("never received Expired notification")
	}
}
