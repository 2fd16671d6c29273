package client

import (
	"net/netip"
	"time"

	"github.com/portmapper/pcpclient/internal/wire"
)

// Notification is the event loop's outward-facing report of a mapping's
// progress, delivered on the channel returned by Service.Notifications
// (§6.3). A consumer that only cares about one mapping filters by ID.
type Notification interface {
	MappingID() int
}

// Accepted reports that the server assigned (or reassigned, after a
// recovery) an external endpoint for a mapping.
type Accepted struct {
	ID           int
	ExternalPort uint16
	ExternalAddr netip.Addr
	Lifetime     time.Duration
	Epoch        uint32
}

func (a Accepted) MappingID() int { return a.ID }

// Failed reports a server-side rejection for a mapping (§4.5); the mapping
// is left in the terminal Error state and the event loop does not retry it.
// Recoverable marks a result code (ResultNetworkFailure, ResultNoResources)
// that a fresh request from the caller may later succeed with, as opposed
// to a permanent rejection.
type Failed struct {
	ID          int
	Code        wire.ResultCode
	Recoverable bool
}

func (f Failed) MappingID() int { return f.ID }

// Expired reports that a mapping's lifetime ran out without a successful
// renewal (Kind without KeepAlive, or a renewal that was never answered).
type Expired struct{ ID int }

func (e Expired) MappingID() int { return e.ID }

// Revoked reports that a mapping was torn down by request.Revoke.
type Revoked struct{ ID int }

func (r Revoked) MappingID() int { return r.ID }

// Recovering reports that the service detected a server restart (epoch
// discontinuity or an unsolicited Announce) and is re-requesting every
// active mapping (§4.5).
type Recovering struct{ ActiveCount int }

func (Recovering) MappingID() int { return -1 }
