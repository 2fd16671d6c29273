package wire

import (
	"encoding/binary"
	"net/netip"
)

// OptionCode identifies a PCP option's payload layout.
type OptionCode uint8

const (
	OptionThirdParty    OptionCode = 1
	OptionPreferFailure OptionCode = 2
	OptionFilter        OptionCode = 3
)

// Option is anything that can appear in a packet's option trailer.
type Option interface {
	Code() OptionCode
	// Length is the semantic payload length, excluding padding.
	Length() uint16
	encode() []byte
}

// FilterOption restricts a MAP mapping to a remote peer/prefix (§3.1).
// A PrefixLength of 0 means "no filter" and removes previous filters.
type FilterOption struct {
	PrefixLength uint8
	RemotePort   uint16
	RemoteAddr   netip.Addr
}

func (FilterOption) Code() OptionCode { return OptionFilter }
func (FilterOption) Length() uint16   { return 20 }

// validate enforces the v4-mapped minimum prefix length (§3.1).
func (f FilterOption) validate() error {
	if isV4Mapped(toV4Mapped(f.RemoteAddr)) && f.PrefixLength < 96 {
		return &InvalidPrefixError{Prefix: f.PrefixLength}
	}
	return nil
}

func (f FilterOption) encode() []byte {
	b := make([]byte, 20)
	// b[0] reserved
	b[1] = f.PrefixLength
	binary.BigEndian.PutUint16(b[2:4], f.RemotePort)
	addr := toV4Mapped(f.RemoteAddr)
	a16 := addr.As16()
	copy(b[4:20], a16[:])
	return b
}

func decodeFilterOption(b []byte) (FilterOption, error) {
	if len(b) < 20 {
		return FilterOption{}, ErrOptionTruncated
	}
	f := FilterOption{
		PrefixLength: b[1],
		RemotePort:   binary.BigEndian.Uint16(b[2:4]),
	}
	var a16 [16]byte
	copy(a16[:], b[4:20])
	f.RemoteAddr = netip.AddrFrom16(a16)
	if err := f.validate(); err != nil {
		return FilterOption{}, err
	}
	return f, nil
}

// ThirdPartyOption requests the mapping be made on behalf of a different
// internal address than the request's source (§3.1).
type ThirdPartyOption struct {
	InternalAddr netip.Addr
}

func (ThirdPartyOption) Code() OptionCode { return OptionThirdParty }
func (ThirdPartyOption) Length() uint16   { return 16 }
func (t ThirdPartyOption) encode() []byte {
	addr := toV4Mapped(t.InternalAddr)
	a16 := addr.As16()
	b := make([]byte, 16)
	copy(b, a16[:])
	return b
}

func decodeThirdPartyOption(b []byte) (ThirdPartyOption, error) {
	if len(b) < 16 {
		return ThirdPartyOption{}, ErrOptionTruncated
	}
	var a16 [16]byte
	copy(a16[:], b[:16])
	return ThirdPartyOption{InternalAddr: netip.AddrFrom16(a16)}, nil
}

// PreferFailureOption asks the server to fail rather than return a
// different mapping than suggested (§3.1). It carries no payload.
type PreferFailureOption struct{}

func (PreferFailureOption) Code() OptionCode  { return OptionPreferFailure }
func (PreferFailureOption) Length() uint16    { return 0 }
func (PreferFailureOption) encode() []byte    { return nil }

// optionAllowed reports whether code is legal within a packet of the given
// opcode (§3.1).
func optionAllowed(op Opcode, code OptionCode) bool {
	switch code {
	case OptionFilter, OptionPreferFailure:
		return op == OpMap
	case OptionThirdParty:
		return op == OpMap || op == OpPeer
	default:
		return false
	}
}

// encodeOptions serializes opts in order, padding each to a multiple of 4
// bytes, validating every option is legal for op.
func encodeOptions(op Opcode, opts []Option) ([]byte, error) {
	var out []byte
	for _, opt := range opts {
		if !optionAllowed(op, opt.Code()) {
			return nil, ErrOptionNotAllowed
		}
		if f, ok := opt.(FilterOption); ok {
			if err := f.validate(); err != nil {
				return nil, err
			}
		}
		header := make([]byte, optionHeaderSize)
		header[0] = uint8(opt.Code())
		binary.BigEndian.PutUint16(header[2:4], opt.Length())
		payload := opt.encode()
		padTo := padded(len(payload))
		body := make([]byte, padTo)
		copy(body, payload)
		out = append(out, header...)
		out = append(out, body...)
	}
	return out, nil
}

// decodeOptions parses the option trailer of b, which must contain nothing
// but zero or more well-formed options, for the containing opcode op.
func decodeOptions(op Opcode, b []byte) ([]Option, error) {
	var opts []Option
	for len(b) > 0 {
		if len(b) < optionHeaderSize {
			return nil, ErrOptionTruncated
		}
		code := OptionCode(b[0])
		length := binary.BigEndian.Uint16(b[2:4])
		switch code {
		case OptionFilter, OptionThirdParty, OptionPreferFailure:
		default:
			return nil, ErrUnknownOption
		}
		if !optionAllowed(op, code) {
			return nil, ErrOptionNotAllowed
		}
		extent := padded(int(length))
		if len(b) < optionHeaderSize+extent {
			return nil, ErrOptionTruncated
		}
		body := b[optionHeaderSize : optionHeaderSize+int(length)]

		var opt Option
		var err error
		switch code {
		case OptionFilter:
			if length != 20 {
				return nil, ErrOptionLengthMismatch
			}
			opt, err = decodeFilterOption(body)
		case OptionThirdParty:
			if length != 16 {
				return nil, ErrOptionLengthMismatch
			}
			opt, err = decodeThirdPartyOption(body)
		case OptionPreferFailure:
			if length != 0 {
				return nil, ErrOptionLengthMismatch
			}
			opt = PreferFailureOption{}
		default:
			return nil, ErrUnknownOption
		}
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
		b = b[optionHeaderSize+extent:]
	}
	return opts, nil
}
