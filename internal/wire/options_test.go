package wire

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWire_Options_EncodeDecodeTrailer(t *testing.T) {
	t.Parallel()

	opts := []Option{
		ThirdPartyOption{InternalAddr: netip.MustParseAddr("10.1.1.1")},
		PreferFailureOption{},
	}
	b, err := encodeOptions(OpMap, opts)
	require.NoError(t, err)

	got, err := decodeOptions(OpMap, b)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, OptionThirdParty, got[0].Code())
	require.Equal(t, OptionPreferFailure, got[1].Code())
}

func TestWire_Options_PreferFailureHasNoPayload(t *testing.T) {
	t.Parallel()

	b, err := encodeOptions(OpMap, []Option{PreferFailureOption{}})
	require.NoError(t, err)
	// 4-byte option header, zero-length payload, no padding.
	require.Len(t, b, 4)
}

func TestWire_Options_TruncatedTrailer(t *testing.T) {
	t.Parallel()

	_, err := decodeOptions(OpMap, []byte{1, 0, 0})
	require.ErrorIs(t, err, ErrOptionTruncated)
}

func TestWire_Options_UnknownCode(t *testing.T) {
	t.Parallel()

	b := []byte{99, 0, 0, 0}
	_, err := decodeOptions(OpMap, b)
	require.ErrorIs(t, err, ErrUnknownOption)
}

func TestWire_Options_LengthMismatch(t *testing.T) {
	t.Parallel()

	// ThirdParty claims length 16 but the header here says 8.
	b := make([]byte, 4+8)
	b[0] = uint8(OptionThirdParty)
	b[3] = 8
	_, err := decodeOptions(OpMap, b)
	require.ErrorIs(t, err, ErrOptionLengthMismatch)
}

func TestWire_Options_FilterAllowsExactlyMinimumPrefix(t *testing.T) {
	t.Parallel()

	f := FilterOption{PrefixLength: 96, RemoteAddr: netip.MustParseAddr("203.0.113.1")}
	require.NoError(t, f.validate())

	f.PrefixLength = 95
	require.Error(t, f.validate())
}

func TestWire_Result_StringAndExplain(t *testing.T) {
	t.Parallel()

	require.Contains(t, ResultSuccess.String(), "success")
	require.NotEmpty(t, ResultExcessiveRemotePeers.Explain())
	require.Contains(t, ResultCode(200).String(), "unknown")
}
