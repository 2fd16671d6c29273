package client

import (
	"net/netip"
	"time"

	"github.com/portmapper/pcpclient/internal/mapping"
	"github.com/portmapper/pcpclient/internal/wire"
)

// InboundSpec is everything needed to build a MAP request (§3.1, §6.4): an
// inbound mapping forwards an external port to a port on this host.
type InboundSpec struct {
	Protocol      uint8
	InternalPort  uint16
	Lifetime      time.Duration
	SuggestedPort uint16
	SuggestedAddr netip.Addr
	Filters       []wire.FilterOption
	PreferFailure bool
	ThirdParty    *netip.Addr
}

// OutboundSpec is everything needed to build a PEER request (§3.1, §6.4): an
// outbound mapping pins the external endpoint used to reach a specific
// remote peer.
type OutboundSpec struct {
	Protocol      uint8
	InternalPort  uint16
	Lifetime      time.Duration
	SuggestedPort uint16
	SuggestedAddr netip.Addr
	RemotePort    uint16
	RemoteAddr    netip.Addr
	ThirdParty    *netip.Addr
}

// event is the input channel's element type. Every way the service learns
// about work to do funnels through here, so the event loop is the only
// goroutine that ever touches the mapping table (§4.5, §5).
type event interface{ isEvent() }

// newMappingEvent requests a fresh MAP or PEER mapping. Exactly one of
// mapSpec/peerSpec is set; the loop allocates the table slot and reports
// it back on reply.
type newMappingEvent struct {
	kind mapping.Kind

	mapSpec  *InboundSpec
	peerSpec *OutboundSpec

	// reply, if non-nil, receives the allocated table slot once the loop
	// has installed the record.
	reply chan int

	// alerts, if non-nil, is registered as this mapping's dedicated
	// notification channel (the handle package's view of it), separate
	// from the service-wide Notifications feed.
	alerts chan Notification
}

func (newMappingEvent) isEvent() {}

// revokeEvent asks the service to stop maintaining a mapping and tell the
// server to release it with a zero-lifetime request (§6.2, §9).
type revokeEvent struct{ id int }

func (revokeEvent) isEvent() {}

// renewEvent asks the service to request a new lifetime for a Running
// mapping out of band from its normal renewal schedule (§6.2).
type renewEvent struct {
	id       int
	lifetime uint32
}

func (renewEvent) isEvent() {}

// shutdownEvent asks the event loop to stop after revoking nothing and
// tearing down cleanly.
type shutdownEvent struct{}

func (shutdownEvent) isEvent() {}

// dropEvent marks a mapping slot as free for reuse once its handle is done
// with it (§3.2 Dropped), revoking it first if it was still active.
type dropEvent struct{ id int }

func (dropEvent) isEvent() {}

// serverResponseEvent carries a decoded response along with the time it was
// received, used for both matching (§4.1) and epoch validation (§4.2).
type serverResponseEvent struct {
	resp       *wire.Response
	receivedAt time.Time
}

func (serverResponseEvent) isEvent() {}

// listenerErrorEvent reports a terminal transport failure from one of the
// listener goroutines (§7); the service surfaces it and stops.
type listenerErrorEvent struct{ err error }

func (listenerErrorEvent) isEvent() {}
