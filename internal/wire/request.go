package wire

import "net/netip"

// Request is a decoded PCP request packet: the 24-byte header plus exactly
// one opcode-specific payload and its option trailer.
//
// Exactly one of Map/Peer is set, selected by Opcode; Announce carries
// neither.
type Request struct {
	Opcode     Opcode
	Lifetime   uint32
	ClientAddr netip.Addr
	Map        *MapPayload
	Peer       *PeerPayload
	Options    []Option
}

// Encode serializes r to its wire form. It returns a decode-taxonomy error
// for a value that violates a wire invariant (§4.1 contract). The
// pcpclient package's InboundMap/OutboundMap builders check only some of
// these invariants, so a request built through them can still be rejected
// here.
func (r *Request) Encode() ([]byte, error) {
	var payload []byte
	switch r.Opcode {
	case OpMap:
		if r.Map == nil {
			return nil, ErrInvalidInternalPort
		}
		if err := validateMapFields(r.Map.Protocol, r.Map.InternalPort, r.Lifetime); err != nil {
			return nil, err
		}
		payload = r.Map.encode()
	case OpPeer:
		if r.Peer == nil {
			return nil, ErrInvalidInternalPort
		}
		if r.Peer.RemotePort == 0 {
			return nil, ErrZeroRemotePeerPort
		}
		if err := validateMapFields(r.Peer.Protocol, r.Peer.InternalPort, r.Lifetime); err != nil {
			return nil, err
		}
		payload = r.Peer.encode()
	case OpAnnounce:
		// empty payload
	default:
		return nil, ErrUnknownOpcode
	}

	optBytes, err := encodeOptions(r.Opcode, r.Options)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(payload)+len(optBytes))
	out = append(out, encodeRequestHeader(r.Opcode, r.Lifetime, r.ClientAddr)...)
	out = append(out, payload...)
	out = append(out, optBytes...)

	if len(out) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	return out, nil
}

// DecodeRequest parses b into a Request, applying the full decode error
// taxonomy (§7).
func DecodeRequest(b []byte) (*Request, error) {
	hdr, err := decodeRequestHeader(b)
	if err != nil {
		return nil, err
	}
	req := &Request{
		Opcode:     hdr.opcode,
		Lifetime:   hdr.lifetime,
		ClientAddr: hdr.clientAddr,
	}
	rest := b[headerSize:]

	var payloadSize int
	switch hdr.opcode {
	case OpMap:
		m, err := decodeMapPayload(rest)
		if err != nil {
			return nil, err
		}
		req.Map = &m
		payloadSize = mapPayloadSize
	case OpPeer:
		p, err := decodePeerPayload(rest)
		if err != nil {
			return nil, err
		}
		req.Peer = &p
		payloadSize = peerPayloadSize
	case OpAnnounce:
		payloadSize = 0
	}
	if len(rest) < payloadSize {
		return nil, ErrShortPacket
	}

	opts, err := decodeOptions(hdr.opcode, rest[payloadSize:])
	if err != nil {
		return nil, err
	}
	req.Options = opts
	return req, nil
}
