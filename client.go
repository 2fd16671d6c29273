// Package pcpclient implements a PCP (RFC 6887) client: request and
// maintain port mappings through a single IPv4-or-IPv6 PCP server, with
// automatic retransmission, jittered renewal, and recovery after a
// detected server restart.
package pcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/netip"

	"github.com/jonboulle/clockwork"
	"github.com/portmapper/pcpclient/internal/client"
	"github.com/portmapper/pcpclient/internal/handle"
	"github.com/portmapper/pcpclient/internal/socket"
)

// Option configures a Client constructed by New.
type Option func(*settings)

type settings struct {
	logger     *slog.Logger
	clock      clockwork.Clock
	rand       *rand.Rand
	iface      string
	clientAddr netip.Addr
}

// WithLogger sets the structured logger the client and its service use.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithInterface names the network interface the client's multicast join
// is made on. Required for an IPv6 client; optional for IPv4.
func WithInterface(name string) Option {
	return func(s *settings) { s.iface = name }
}

// WithClientAddr sets the address advertised in the PCP client header.
// It is required: New does not derive one from the local socket and fails
// without it. RFC 6887 requires it reflect the client's real address as
// the PCP-controlled device will see it.
func WithClientAddr(addr netip.Addr) Option {
	return func(s *settings) { s.clientAddr = addr }
}

// withClock overrides the time source; used by tests.
func withClock(c clockwork.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// Client is a running PCP client bound to one server. Construct one with
// New and release it with Close.
type Client struct {
	svc *client.Service
}

// New dials server (its address family selects IPv4 or IPv6 for the whole
// client, per the single-stack constraint) and starts the client service.
func New(server netip.Addr, opts ...Option) (*Client, error) {
	s := &settings{
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.clientAddr.IsValid() {
		return nil, fmt.Errorf("pcpclient: WithClientAddr is required")
	}

	family := socket.IPv4
	if server.Is6() && !server.Is4In6() {
		family = socket.IPv6
	}

	conn, err := socket.DialWithRetry(context.Background(), socket.Config{
		Family:    family,
		Server:    server,
		Interface: s.iface,
	})
	if err != nil {
		return nil, fmt.Errorf("pcpclient: dial: %w", err)
	}

	svc, err := client.NewService(context.Background(), client.Config{
		Logger:     s.logger,
		Conn:       conn,
		ClientAddr: s.clientAddr,
		Clock:      s.clock,
		Rand:       s.rand,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Client{svc: svc}, nil
}

// RequestInbound requests the mapping m describes and returns a handle for
// tracking and controlling it.
func (c *Client) RequestInbound(m InboundMap) (*handle.Handle, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	id, alerts, err := c.svc.RequestInbound(m.toSpec(), m.renewal.toKind())
	if err != nil {
		return nil, err
	}
	return handle.New(c.svc, id, alerts), nil
}

// RequestOutbound requests the mapping m describes and returns a handle
// for tracking and controlling it.
func (c *Client) RequestOutbound(m OutboundMap) (*handle.Handle, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	id, alerts, err := c.svc.RequestOutbound(m.toSpec(), m.renewal.toKind())
	if err != nil {
		return nil, err
	}
	return handle.New(c.svc, id, alerts), nil
}

// Notifications returns the service-wide feed of every mapping's
// lifecycle events, for callers that want one place to log or monitor all
// activity rather than polling individual handles.
func (c *Client) Notifications() <-chan client.Notification {
	return c.svc.Notifications()
}

// Err returns a channel that receives the client's terminal error, if its
// transport fails unrecoverably.
func (c *Client) Err() <-chan error {
	return c.svc.Err()
}

// Close stops the client service and its transport.
func (c *Client) Close() error {
	return c.svc.Close()
}
