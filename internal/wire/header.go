package wire

import (
	"encoding/binary"
	"net/netip"
)

// requestBit7 is byte 1's high bit: 0 for a request, 1 for a response (§3.1).
const requestBit7 = 0x80

// encodeRequestHeader writes the fixed 24-byte request header (§3.1):
// version, opcode (R-bit clear), 2 reserved bytes, lifetime, client address.
func encodeRequestHeader(op Opcode, lifetime uint32, clientAddr netip.Addr) []byte {
	b := make([]byte, headerSize)
	b[0] = Version
	b[1] = uint8(op) &^ requestBit7
	// b[2:4] reserved, left zero
	binary.BigEndian.PutUint32(b[4:8], lifetime)
	addr := toV4Mapped(clientAddr)
	a16 := addr.As16()
	copy(b[8:24], a16[:])
	return b
}

type requestHeader struct {
	opcode     Opcode
	lifetime   uint32
	clientAddr netip.Addr
}

// decodeRequestHeader parses the fixed 24-byte request header. It returns
// ErrNotARequest if the R-bit indicates this is actually a response.
func decodeRequestHeader(b []byte) (requestHeader, error) {
	if len(b) < headerSize {
		return requestHeader{}, ErrShortPacket
	}
	if b[0] != Version {
		return requestHeader{}, ErrUnsupportedVersion
	}
	if b[1]&requestBit7 != 0 {
		return requestHeader{}, ErrNotARequest
	}
	op := Opcode(b[1] &^ requestBit7)
	if op != OpAnnounce && op != OpMap && op != OpPeer {
		return requestHeader{}, ErrUnknownOpcode
	}
	var a16 [16]byte
	copy(a16[:], b[8:24])
	return requestHeader{
		opcode:     op,
		lifetime:   binary.BigEndian.Uint32(b[4:8]),
		clientAddr: netip.AddrFrom16(a16),
	}, nil
}

// encodeResponseHeader writes the fixed 24-byte response header (§3.1):
// version, opcode (R-bit set), reserved byte, result code, lifetime, epoch,
// and 12 reserved bytes.
func encodeResponseHeader(op Opcode, result ResultCode, lifetime, epoch uint32) []byte {
	b := make([]byte, headerSize)
	b[0] = Version
	b[1] = uint8(op) | requestBit7
	// b[2] reserved, left zero
	b[3] = uint8(result)
	binary.BigEndian.PutUint32(b[4:8], lifetime)
	binary.BigEndian.PutUint32(b[8:12], epoch)
	// b[12:24] reserved, left zero
	return b
}

type responseHeader struct {
	opcode   Opcode
	result   ResultCode
	lifetime uint32
	epoch    uint32
}

// decodeResponseHeader parses the fixed 24-byte response header. It returns
// ErrNotAResponse if the R-bit indicates this is actually a request.
func decodeResponseHeader(b []byte) (responseHeader, error) {
	if len(b) < headerSize {
		return responseHeader{}, ErrShortPacket
	}
	if b[0] != Version {
		return responseHeader{}, ErrUnsupportedVersion
	}
	if b[1]&requestBit7 == 0 {
		return responseHeader{}, ErrNotAResponse
	}
	op := Opcode(b[1] &^ requestBit7)
	if op != OpAnnounce && op != OpMap && op != OpPeer {
		return responseHeader{}, ErrUnknownOpcode
	}
	result := b[3]
	if !validResultCode(result) {
		return responseHeader{}, ErrUnknownResultCode
	}
	return responseHeader{
		opcode:   op,
		result:   ResultCode(result),
		lifetime: binary.BigEndian.Uint32(b[4:8]),
		epoch:    binary.BigEndian.Uint32(b[8:12]),
	}, nil
}
