package wire

import "fmt"

// ResultCode is the RFC 6887 §7.4 response result code.
type ResultCode uint8

const (
	ResultSuccess               ResultCode = 0
	ResultUnsuppVersion         ResultCode = 1
	ResultNotAuthorized         ResultCode = 2
	ResultMalformedRequest      ResultCode = 3
	ResultUnsuppOpcode          ResultCode = 4
	ResultUnsuppOption          ResultCode = 5
	ResultMalformedOption       ResultCode = 6
	ResultNetworkFailure        ResultCode = 7
	ResultNoResources           ResultCode = 8
	ResultUnsuppProtocol        ResultCode = 9
	ResultUserExQuota           ResultCode = 10
	ResultCannotProvideExternal ResultCode = 11
	ResultAddressMismatch       ResultCode = 12
	ResultExcessiveRemotePeers  ResultCode = 13
)

// explanations mirrors RFC 6887's prose description of each result code.
var explanations = map[ResultCode]string{
	ResultSuccess:          "success",
	ResultUnsuppVersion:    "the version number at the start of the PCP request header is not recognized by this PCP server",
	ResultNotAuthorized:    "the requested operation is disabled for this PCP client, or the PCP client requested an operation that cannot be fulfilled by the PCP server's security policy",
	ResultMalformedRequest: "the request could not be successfully parsed",
	ResultUnsuppOpcode:     "unsupported opcode",
	ResultUnsuppOption:     "unsupported option",
	ResultMalformedOption:  "malformed option",
	ResultNetworkFailure:   "the PCP server or the device it controls is experiencing a network failure of some sort",
	ResultNoResources:      "request is well-formed and valid, but the server has insufficient resources to complete the requested operation at this time",
	ResultUnsuppProtocol:   "unsupported transport protocol",
	ResultUserExQuota:      "this attempt to create a new mapping would exceed this subscriber's port quota",
	ResultCannotProvideExternal: "the suggested external port and/or external address cannot be provided",
	ResultAddressMismatch:       "the source IP address of the request packet does not match the contents of the PCP client's IP address field, due to an unexpected NAT on the path between the PCP client and the PCP-controlled NAT or firewall",
	ResultExcessiveRemotePeers:  "the PCP server was not able to create the filters in this request",
}

// Explain returns RFC 6887's human-readable description of the result code.
// It returns the empty string for values outside the defined range.
func (r ResultCode) Explain() string {
	return explanations[r]
}

func (r ResultCode) String() string {
	if s, ok := explanations[r]; ok {
		return fmt.Sprintf("%d (%s)", uint8(r), s)
	}
	return fmt.Sprintf("%d (unknown result code)", uint8(r))
}

// validResultCode reports whether r is one of the 14 codes RFC 6887 defines.
func validResultCode(r uint8) bool {
	return r <= uint8(ResultExcessiveRemotePeers)
}
