// Package mapping implements the dense, slot-reusing table of PCP mapping
// records owned exclusively by the client service event loop.
package mapping

import (
	"fmt"

	"github.com/portmapper/pcpclient/internal/wire"
)

// StateKind enumerates a mapping record's lifecycle stage (§3.2).
type StateKind uint8

const (
	Requested StateKind = iota
	Starting
	Updating
	Running
	Error
	Expired
	Revoked
	Dropped
)

func (k StateKind) String() string {
	switch k {
	case Requested:
		return "Requested"
	case Starting:
		return "Starting"
	case Updating:
		return "Updating"
	case Running:
		return "Running"
	case Error:
		return "Error"
	case Expired:
		return "Expired"
	case Revoked:
		return "Revoked"
	case Dropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// State is a mapping record's current lifecycle state. Attempt carries the
// retransmission/renewal attempt count for Starting and Updating; Lifetime
// carries the in-flight renewal lifetime for Updating; Code carries the
// server's result code for Error.
type State struct {
	Kind     StateKind
	Attempt  int
	Lifetime uint32
	Code     wire.ResultCode
}

func (s State) String() string {
	switch s.Kind {
	case Starting:
		return fmt.Sprintf("Starting(%d)", s.Attempt)
	case Updating:
		return fmt.Sprintf("Updating(%d, %d)", s.Attempt, s.Lifetime)
	case Error:
		return fmt.Sprintf("Error(%s)", s.Code)
	default:
		return s.Kind.String()
	}
}

// IsTerminal reports whether the state ends the record's participation in
// retransmission/renewal and recovery (§4.3 iter_active excludes these).
func (s State) IsTerminal() bool {
	switch s.Kind {
	case Error, Expired, Revoked, Dropped:
		return true
	default:
		return false
	}
}

// Kind is the renewal policy requested by the caller for a mapping (§6.2).
// KeepAlive renews indefinitely; otherwise Repeat counts remaining renewals,
// with 0 meaning "until natural expiry" (no further renewal).
type Kind struct {
	KeepAlive bool
	Repeat    int
}

func (k Kind) String() string {
	if k.KeepAlive {
		return "KeepAlive"
	}
	return fmt.Sprintf("Repeat(%d)", k.Repeat)
}
