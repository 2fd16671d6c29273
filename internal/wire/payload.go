package wire

import (
	"encoding/binary"
	"net/netip"
)

// Nonce is the 12 random bytes a client picks to bind a request to its
// response.
type Nonce [12]byte

// MapPayload is the opcode-specific body of a MAP request or response (§3.1).
// The same layout serves both directions: on a request the port/address
// fields are the client's suggestion, on a response they are the server's
// assignment.
type MapPayload struct {
	Nonce        Nonce
	Protocol     uint8
	InternalPort uint16
	ExternalPort uint16
	ExternalAddr netip.Addr // decoded as the v4-mapped or native IPv6 form; Encode also accepts a bare IPv4 address
}

const mapPayloadSize = 36

func (p MapPayload) encode() []byte {
	b := make([]byte, mapPayloadSize)
	copy(b[0:12], p.Nonce[:])
	b[12] = p.Protocol
	// b[13:16] reserved, left zero
	binary.BigEndian.PutUint16(b[16:18], p.InternalPort)
	binary.BigEndian.PutUint16(b[18:20], p.ExternalPort)
	addr := toV4Mapped(p.ExternalAddr)
	a16 := addr.As16()
	copy(b[20:36], a16[:])
	return b
}

func decodeMapPayload(b []byte) (MapPayload, error) {
	if len(b) < mapPayloadSize {
		return MapPayload{}, ErrShortPacket
	}
	var p MapPayload
	copy(p.Nonce[:], b[0:12])
	p.Protocol = b[12]
	p.InternalPort = binary.BigEndian.Uint16(b[16:18])
	p.ExternalPort = binary.BigEndian.Uint16(b[18:20])
	var a16 [16]byte
	copy(a16[:], b[20:36])
	p.ExternalAddr = netip.AddrFrom16(a16)
	return p, nil
}

// PeerPayload is the opcode-specific body of a PEER request or response,
// the MAP payload fields extended with the remote peer's address and port.
type PeerPayload struct {
	Nonce        Nonce
	Protocol     uint8
	InternalPort uint16
	ExternalPort uint16
	ExternalAddr netip.Addr
	RemotePort   uint16
	RemoteAddr   netip.Addr
}

const peerPayloadSize = 56

func (p PeerPayload) encode() []byte {
	b := make([]byte, peerPayloadSize)
	copy(b[0:12], p.Nonce[:])
	b[12] = p.Protocol
	binary.BigEndian.PutUint16(b[16:18], p.InternalPort)
	binary.BigEndian.PutUint16(b[18:20], p.ExternalPort)
	extAddr := toV4Mapped(p.ExternalAddr)
	a16 := extAddr.As16()
	copy(b[20:36], a16[:])
	binary.BigEndian.PutUint16(b[36:38], p.RemotePort)
	// b[38:40] reserved, left zero
	remoteAddr := toV4Mapped(p.RemoteAddr)
	r16 := remoteAddr.As16()
	copy(b[40:56], r16[:])
	return b
}

func decodePeerPayload(b []byte) (PeerPayload, error) {
	if len(b) < peerPayloadSize {
		return PeerPayload{}, ErrShortPacket
	}
	var p PeerPayload
	copy(p.Nonce[:], b[0:12])
	p.Protocol = b[12]
	p.InternalPort = binary.BigEndian.Uint16(b[16:18])
	p.ExternalPort = binary.BigEndian.Uint16(b[18:20])
	var a16 [16]byte
	copy(a16[:], b[20:36])
	p.ExternalAddr = netip.AddrFrom16(a16)
	p.RemotePort = binary.BigEndian.Uint16(b[36:38])
	var r16 [16]byte
	copy(r16[:], b[40:56])
	p.RemoteAddr = netip.AddrFrom16(r16)
	if p.RemotePort == 0 {
		return PeerPayload{}, ErrZeroRemotePeerPort
	}
	return p, nil
}

// validateMapFields enforces the protocol/internal_port/lifetime relationship
// common to both MAP and PEER payloads (§3.1).
func validateMapFields(protocol uint8, internalPort uint16, lifetime uint32) error {
	if protocol == 0 && internalPort != 0 {
		return ErrInvalidInternalPort
	}
	if internalPort == 0 && protocol != 0 && lifetime != 0 {
		return ErrInvalidInternalPort
	}
	return nil
}
