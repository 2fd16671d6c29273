package client

import (
	"errors"
	"log/slog"
	"math/rand"
	"net/netip"

	"github.com/jonboulle/clockwork"
	"github.com/portmapper/pcpclient/internal/socket"
)

// Config controls a Service's behavior. The zero value is not usable;
// construct one and call Validate (NewService does this for you).
type Config struct {
	Logger *slog.Logger

	// Conn is the already-dialed transport the service sends and receives
	// through. The service does not own opening or closing it beyond its
	// own Close.
	Conn *socket.Conn

	// ClientAddr is this host's address as the server should see it,
	// carried in every request header (§3.1).
	ClientAddr netip.Addr

	// Clock is the time source for timers and epoch bookkeeping. Defaults
	// to the real clock; tests inject a fake one.
	Clock clockwork.Clock

	// Rand seeds the jitter used by retransmission and renewal scheduling.
	// Defaults to a time-seeded source.
	Rand *rand.Rand

	// NotificationBuffer sizes the channel returned by Notifications. Once
	// it fills, further notifications are dropped (with a warning log)
	// rather than blocking the event loop.
	NotificationBuffer int

	// InputBuffer sizes the internal event channel that public methods and
	// listener goroutines post to.
	InputBuffer int
}

// Validate fills defaults and enforces constraints, mutating c in place.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("client: logger is required")
	}
	if c.Conn == nil {
		return errors.New("client: conn is required")
	}
	if !c.ClientAddr.IsValid() {
		return errors.New("client: clientAddr is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(c.Clock.Now().UnixNano()))
	}
	if c.NotificationBuffer == 0 {
		c.NotificationBuffer = 64
	}
	if c.NotificationBuffer < 0 {
		return errors.New("client: notificationBuffer must be greater than or equal to 0")
	}
	if c.InputBuffer == 0 {
		c.InputBuffer = 256
	}
	if c.InputBuffer < 0 {
		return errors.New("client: inputBuffer must be greater than or equal to 0")
	}
	return nil
}
