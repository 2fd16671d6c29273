package wire

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWire_Matches_Map(t *testing.T) {
	t.Parallel()

	nonce := Nonce{1, 2, 3}
	req := &Request{
		Opcode: OpMap,
		Map:    &MapPayload{Nonce: nonce, Protocol: 6, InternalPort: 80},
	}

	t.Run("matches on nonce and internal port", func(t *testing.T) {
		t.Parallel()
		resp := &Response{
			Opcode: OpMap,
			Map:    &MapPayload{Nonce: nonce, Protocol: 6, InternalPort: 80, ExternalPort: 9000},
		}
		require.True(t, Matches(req, resp))
	})

	t.Run("rejects mismatched nonce", func(t *testing.T) {
		t.Parallel()
		resp := &Response{
			Opcode: OpMap,
			Map:    &MapPayload{Nonce: Nonce{9}, Protocol: 6, InternalPort: 80},
		}
		require.False(t, Matches(req, resp))
	})

	t.Run("rejects mismatched internal port", func(t *testing.T) {
		t.Parallel()
		resp := &Response{
			Opcode: OpMap,
			Map:    &MapPayload{Nonce: nonce, Protocol: 6, InternalPort: 81},
		}
		require.False(t, Matches(req, resp))
	})

	t.Run("opcode mismatch never matches", func(t *testing.T) {
		t.Parallel()
		resp := &Response{Opcode: OpPeer, Peer: &PeerPayload{Nonce: nonce}}
		require.False(t, Matches(req, resp))
	})
}

func TestWire_Matches_Peer(t *testing.T) {
	t.Parallel()

	nonce := Nonce{4, 5, 6}
	remote := netip.MustParseAddr("203.0.113.9")
	req := &Request{
		Opcode: OpPeer,
		Peer: &PeerPayload{
			Nonce: nonce, Protocol: 17, InternalPort: 51820,
			ExternalPort: 51820, RemotePort: 51820, RemoteAddr: remote,
		},
	}

	t.Run("matches when remote endpoint agrees", func(t *testing.T) {
		t.Parallel()
		resp := &Response{
			Opcode: OpPeer,
			Peer: &PeerPayload{
				Nonce: nonce, Protocol: 17, InternalPort: 51820,
				ExternalPort: 51820, RemotePort: 51820, RemoteAddr: remote,
			},
		}
		require.True(t, Matches(req, resp))
	})

	t.Run("rejects remote address mismatch", func(t *testing.T) {
		t.Parallel()
		resp := &Response{
			Opcode: OpPeer,
			Peer: &PeerPayload{
				Nonce: nonce, Protocol: 17, InternalPort: 51820,
				RemotePort: 51820, RemoteAddr: netip.MustParseAddr("203.0.113.99"),
			},
		}
		require.False(t, Matches(req, resp))
	})
}

func TestWire_Matches_Announce(t *testing.T) {
	t.Parallel()

	req := &Request{Opcode: OpAnnounce}
	resp := &Response{Opcode: OpAnnounce}
	require.True(t, Matches(req, resp))
}

func TestWire_ApplyAssignment_Map(t *testing.T) {
	t.Parallel()

	req := &Request{
		Opcode: OpMap,
		Map:    &MapPayload{Protocol: 6, InternalPort: 80},
	}
	assigned := netip.MustParseAddr("198.51.100.4")
	resp := &Response{
		Opcode: OpMap,
		Map:    &MapPayload{ExternalPort: 4242, ExternalAddr: assigned},
	}

	ApplyAssignment(req, resp)

	require.Equal(t, uint16(4242), req.Map.ExternalPort)
	require.Equal(t, assigned, req.Map.ExternalAddr)
}

func TestWire_ApplyAssignment_Peer(t *testing.T) {
	t.Parallel()

	req := &Request{
		Opcode: OpPeer,
		Peer:   &PeerPayload{Protocol: 17, InternalPort: 53},
	}
	assigned := netip.MustParseAddr("198.51.100.5")
	resp := &Response{
		Opcode: OpPeer,
		Peer:   &PeerPayload{ExternalPort: 53, ExternalAddr: assigned},
	}

	ApplyAssignment(req, resp)

	require.Equal(t, uint16(53), req.Peer.ExternalPort)
	require.Equal(t, assigned, req.Peer.ExternalAddr)
}
