package wire

// Matches reports whether resp is the response to req, per the
// request/response matching predicate (§4.1). It does not validate
// anything about resp beyond the fields used for matching.
func Matches(req *Request, resp *Response) bool {
	if req.Opcode != resp.Opcode {
		return false
	}
	switch req.Opcode {
	case OpAnnounce:
		return true
	case OpMap:
		if req.Map == nil || resp.Map == nil {
			return false
		}
		return matchesMap(req.Map, resp.Map)
	case OpPeer:
		if req.Peer == nil || resp.Peer == nil {
			return false
		}
		return matchesPeer(req.Peer, resp.Peer)
	default:
		return false
	}
}

func matchesMap(req, resp *MapPayload) bool {
	if req.Nonce != resp.Nonce {
		return false
	}
	if resp.Protocol != 0 && resp.Protocol != req.Protocol {
		return false
	}
	return req.InternalPort == resp.InternalPort
}

func matchesPeer(req, resp *PeerPayload) bool {
	if req.Nonce != resp.Nonce {
		return false
	}
	if req.Protocol != resp.Protocol {
		return false
	}
	if req.InternalPort != resp.InternalPort {
		return false
	}
	// A decoded RemoteAddr is always 16-byte (v4-mapped for IPv4), while a
	// request may hold a bare IPv4 address; compare the mapped forms.
	if toV4Mapped(req.RemoteAddr) != toV4Mapped(resp.RemoteAddr) || req.RemotePort != resp.RemotePort {
		return false
	}
	if req.ExternalPort != 0 && req.ExternalPort != resp.ExternalPort {
		return false
	}
	return true
}

// ApplyAssignment copies the server-assigned external address/port from
// resp into req, so that a subsequent retransmission of req carries the
// assignment the server already made (§4.1).
func ApplyAssignment(req *Request, resp *Response) {
	switch req.Opcode {
	case OpMap:
		if req.Map != nil && resp.Map != nil {
			req.Map.ExternalPort = resp.Map.ExternalPort
			req.Map.ExternalAddr = resp.Map.ExternalAddr
		}
	case OpPeer:
		if req.Peer != nil && resp.Peer != nil {
			req.Peer.ExternalPort = resp.Peer.ExternalPort
			req.Peer.ExternalAddr = resp.Peer.ExternalAddr
		}
	}
}
