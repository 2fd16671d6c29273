package pcpclient

import (
	"errors"
	"net/netip"
	"time"

	"github.com/portmapper/pcpclient/internal/client"
	"github.com/portmapper/pcpclient/internal/mapping"
	"github.com/portmapper/pcpclient/internal/wire"
)

// Renewal describes how long a mapping should keep renewing itself for.
type Renewal struct {
	keepAlive bool
	repeat    int
}

// KeepAlive renews the mapping indefinitely until explicitly revoked.
func KeepAlive() Renewal { return Renewal{keepAlive: true} }

// Renewals renews the mapping n more times after its first grant, then
// lets it expire naturally. Renewals(0) requests the mapping once and lets
// it run to its natural expiry without renewing.
func Renewals(n int) Renewal { return Renewal{repeat: n} }

func (r Renewal) toKind() mapping.Kind {
	return mapping.Kind{KeepAlive: r.keepAlive, Repeat: r.repeat}
}

// InboundMap is an immutable description of a MAP request: forward an
// external port to InternalPort on this host (§3.1, §6.4). Build one with
// NewInboundMap and its With* methods, each of which returns a new value
// rather than mutating the receiver.
type InboundMap struct {
	protocol      uint8
	internalPort  uint16
	lifetime      time.Duration
	renewal       Renewal
	suggestedPort uint16
	suggestedAddr netip.Addr
	filters       []wire.FilterOption
	preferFailure bool
	thirdParty    *netip.Addr
}

// NewInboundMap describes a request to map protocol/internalPort for
// lifetime, renewed per renewal.
func NewInboundMap(protocol uint8, internalPort uint16, lifetime time.Duration, renewal Renewal) InboundMap {
	return InboundMap{protocol: protocol, internalPort: internalPort, lifetime: lifetime, renewal: renewal}
}

// WithSuggested sets the external address/port the client would prefer,
// left zero-value to let the server choose freely.
func (m InboundMap) WithSuggested(addr netip.Addr, port uint16) InboundMap {
	m.suggestedAddr = addr
	m.suggestedPort = port
	return m
}

// WithFilter restricts the mapping to a remote peer or prefix (§3.1).
func (m InboundMap) WithFilter(f wire.FilterOption) InboundMap {
	m.filters = append(append([]wire.FilterOption(nil), m.filters...), f)
	return m
}

// WithPreferFailure asks the server to fail rather than substitute a
// different external endpoint than suggested.
func (m InboundMap) WithPreferFailure() InboundMap {
	m.preferFailure = true
	return m
}

// WithThirdParty requests the mapping be created on behalf of addr rather
// than this client's own address.
func (m InboundMap) WithThirdParty(addr netip.Addr) InboundMap {
	m.thirdParty = &addr
	return m
}

func (m InboundMap) validate() error {
	if m.protocol == 0 && m.internalPort != 0 {
		return errors.New("pcpclient: internalPort must be 0 when protocol is 0 (all protocols)")
	}
	if m.internalPort == 0 && m.protocol != 0 {
		return errors.New("pcpclient: internalPort must be 0 only when protocol is also 0 (all protocols)")
	}
	if m.lifetime <= 0 {
		return errors.New("pcpclient: lifetime must be positive")
	}
	return nil
}

func (m InboundMap) toSpec() client.InboundSpec {
	return client.InboundSpec{
		Protocol:      m.protocol,
		InternalPort:  m.internalPort,
		Lifetime:      m.lifetime,
		SuggestedPort: m.suggestedPort,
		SuggestedAddr: m.suggestedAddr,
		Filters:       m.filters,
		PreferFailure: m.preferFailure,
		ThirdParty:    m.thirdParty,
	}
}

// OutboundMap is an immutable description of a PEER request: pin the
// external endpoint used to reach a specific remote peer (§3.1, §6.4).
type OutboundMap struct {
	protocol      uint8
	internalPort  uint16
	lifetime      time.Duration
	renewal       Renewal
	suggestedPort uint16
	suggestedAddr netip.Addr
	remotePort    uint16
	remoteAddr    netip.Addr
	thirdParty    *netip.Addr
}

// NewOutboundMap describes a request to pin the external endpoint used to
// reach remoteAddr:remotePort from protocol/internalPort.
func NewOutboundMap(protocol uint8, internalPort uint16, remoteAddr netip.Addr, remotePort uint16, lifetime time.Duration, renewal Renewal) OutboundMap {
	return OutboundMap{
		protocol:     protocol,
		internalPort: internalPort,
		remoteAddr:   remoteAddr,
		remotePort:   remotePort,
		lifetime:     lifetime,
		renewal:      renewal,
	}
}

// WithSuggested sets the external address/port the client would prefer.
func (m OutboundMap) WithSuggested(addr netip.Addr, port uint16) OutboundMap {
	m.suggestedAddr = addr
	m.suggestedPort = port
	return m
}

// WithThirdParty requests the mapping be created on behalf of addr rather
// than this client's own address.
func (m OutboundMap) WithThirdParty(addr netip.Addr) OutboundMap {
	m.thirdParty = &addr
	return m
}

func (m OutboundMap) validate() error {
	if m.remotePort == 0 {
		return errors.New("pcpclient: remotePort is required for an outbound mapping")
	}
	if m.lifetime <= 0 {
		return errors.New("pcpclient: lifetime must be positive")
	}
	return nil
}

func (m OutboundMap) toSpec() client.OutboundSpec {
	return client.OutboundSpec{
		Protocol:      m.protocol,
		InternalPort:  m.internalPort,
		Lifetime:      m.lifetime,
		SuggestedPort: m.suggestedPort,
		SuggestedAddr: m.suggestedAddr,
		RemotePort:    m.remotePort,
		RemoteAddr:    m.remoteAddr,
		ThirdParty:    m.thirdParty,
	}
}
