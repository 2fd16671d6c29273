// Package handle implements the thin, message-passing facade a caller
// holds for a single requested mapping: renew/revoke/close and a
// dedicated alert channel, all translated into events posted to the
// client service's event loop (§6.2, §9).
package handle

import (
	"time"

	"github.com/portmapper/pcpclient/internal/client"
)

// service is the subset of *client.Service a Handle needs. Declaring it
// here (rather than depending on the concrete type) keeps this package
// testable with a fake.
type service interface {
	Revoke(id int)
	Renew(id int, lifetime time.Duration)
	Drop(id int)
}

// Handle is a caller's view of a single mapping. It is safe for concurrent
// use: its methods and the alert channel never touch the mapping table
// directly, only the event loop does. It has no state getter; a caller
// follows the mapping's state through its alerts.
type Handle struct {
	id     int
	svc    service
	alerts <-chan client.Notification
}

// New wraps a mapping's id and its dedicated alert channel, as returned by
// (*client.Service).RequestInbound or RequestOutbound.
func New(svc *client.Service, id int, alerts <-chan client.Notification) *Handle {
	return &Handle{id: id, svc: svc, alerts: alerts}
}

// ID returns the mapping table slot this handle refers to.
func (h *Handle) ID() int { return h.id }

// Renew requests a new lifetime for the mapping, outside its normal
// renewal schedule.
func (h *Handle) Renew(lifetime time.Duration) {
	h.svc.Renew(h.id, lifetime)
}

// Revoke tells the server to release the mapping and stops maintaining
// it. The handle remains valid for reading the resulting Revoked alert.
func (h *Handle) Revoke() {
	h.svc.Revoke(h.id)
}

// Close releases the handle's table slot for reuse. It revokes the
// mapping first if it was still active. Callers that want the mapping to
// outlive the handle should not call Close; the service keeps running
// mappings regardless of whether any handle references them.
func (h *Handle) Close() {
	h.svc.Drop(h.id)
}

// WaitAlert blocks until the next notification for this mapping arrives,
// or the alert channel is closed (the service shut down).
func (h *Handle) WaitAlert() (client.Notification, bool) {
	n, ok := <-h.alerts
	return n, ok
}

// PollAlert returns the next pending notification without blocking, or
// false if none is available right now.
func (h *Handle) PollAlert() (client.Notification, bool) {
	select {
	case n, ok := <-h.alerts:
		return n, ok
	default:
		return nil, false
	}
}

// Alerts exposes the handle's dedicated notification channel directly, for
// callers that want to select on it alongside other work.
func (h *Handle) Alerts() <-chan client.Notification {
	return h.alerts
}
