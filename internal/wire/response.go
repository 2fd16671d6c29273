package wire

// Response is a decoded PCP response packet: the 24-byte header plus
// exactly one opcode-specific payload and its option trailer.
//
// Exactly one of Map/Peer is set, selected by Opcode; Announce carries
// neither.
type Response struct {
	Opcode   Opcode
	Result   ResultCode
	Lifetime uint32
	Epoch    uint32
	Map      *MapPayload
	Peer     *PeerPayload
	Options  []Option
}

// Encode serializes r to its wire form.
func (r *Response) Encode() ([]byte, error) {
	var payload []byte
	switch r.Opcode {
	case OpMap:
		if r.Map != nil {
			payload = r.Map.encode()
		}
	case OpPeer:
		if r.Peer != nil {
			payload = r.Peer.encode()
		}
	case OpAnnounce:
	default:
		return nil, ErrUnknownOpcode
	}

	optBytes, err := encodeOptions(r.Opcode, r.Options)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(payload)+len(optBytes))
	out = append(out, encodeResponseHeader(r.Opcode, r.Result, r.Lifetime, r.Epoch)...)
	out = append(out, payload...)
	out = append(out, optBytes...)

	if len(out) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	return out, nil
}

// DecodeResponse parses b into a Response, applying the full decode error
// taxonomy (§7). Note that on an error result the payload's external
// port/address and, for Peer, remote fields are simply copies of the
// request and carry no independent meaning.
func DecodeResponse(b []byte) (*Response, error) {
	hdr, err := decodeResponseHeader(b)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Opcode:   hdr.opcode,
		Result:   hdr.result,
		Lifetime: hdr.lifetime,
		Epoch:    hdr.epoch,
	}
	if len(b) < headerSize {
		return nil, ErrShortPacket
	}
	rest := b[headerSize:]

	var payloadSize int
	switch hdr.opcode {
	case OpMap:
		m, err := decodeMapPayload(rest)
		if err != nil {
			return nil, err
		}
		resp.Map = &m
		payloadSize = mapPayloadSize
	case OpPeer:
		p, err := decodePeerPayload(rest)
		if err != nil {
			return nil, err
		}
		resp.Peer = &p
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
	resp.Options = opts
	return resp, nil
}
