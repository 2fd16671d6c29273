// Package wire implements the bit-exact PCP (RFC 6887) packet codec:
// request/response headers, the three opcode payloads, and the
// variable-length option trailer, plus the request/response matching
// predicate used by the mapping table.
package wire

import "net/netip"

// Opcode identifies the PCP operation carried by a packet.
type Opcode uint8

const (
	OpAnnounce Opcode = 0
	OpMap      Opcode = 1
	OpPeer     Opcode = 2
)

func (o Opcode) String() string {
	switch o {
	case OpAnnounce:
		return "ANNOUNCE"
	case OpMap:
		return "MAP"
	case OpPeer:
		return "PEER"
	default:
		return "UNKNOWN"
	}
}

// Protocol version this codec implements. RFC 6887 fixes it at 2.
const Version uint8 = 2

// MaxPacketSize is the invariant upper bound on an encoded PCP packet.
const MaxPacketSize = 1100

// headerSize is the fixed 24-byte size of both request and response headers.
const headerSize = 24

// optionHeaderSize is the fixed 4-byte size of an option's code+length header.
const optionHeaderSize = 4

// v4MappedPrefix is the 12-byte ::ffff: prefix used to carry IPv4 addresses
// inside the protocol's 128-bit address fields.
var v4MappedPrefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// isV4Mapped reports whether addr carries an IPv4 address in its low 32 bits
// per the ::ffff:a.b.c.d convention.
func isV4Mapped(addr netip.Addr) bool {
	if !addr.Is6() {
		return false
	}
	b := addr.As16()
	return [12]byte(b[:12]) == v4MappedPrefix
}

// toV4Mapped returns addr's ::ffff:a.b.c.d representation, converting a bare
// IPv4 address if necessary. IPv6 addresses are returned unchanged.
func toV4Mapped(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		b4 := addr.As4()
		var b16 [16]byte
		copy(b16[:12], v4MappedPrefix[:])
		copy(b16[12:], b4[:])
		return netip.AddrFrom16(b16)
	}
	return addr
}

func padded(length int) int {
	return length + (4-length%4)%4
}
