// Package socket provides the thin unicast+multicast UDP wrapper the PCP
// client service and its listeners send and receive through. A single
// instance serves exactly one address family, per the client's single-stack
// constraint (§1 Non-goals).
package socket

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Family selects which address family a Conn operates over.
type Family uint8

const (
	IPv4 Family = iota
	IPv6
)

const (
	// ServerPort is the well-known UDP port PCP servers listen on (§6.1).
	ServerPort = 5351
	// ClientPort is the well-known UDP port PCP clients bind locally to
	// receive multicast Announce datagrams (§6.1).
	ClientPort = 5350
)

var (
	multicastGroupV4 = netip.MustParseAddr("224.0.0.1")
	multicastGroupV6 = netip.MustParseAddr("ff02::1")
)

// Config configures a Conn.
type Config struct {
	Family Family
	// Server is the PCP server's address (without port; ServerPort is
	// implied).
	Server netip.Addr
	// Interface is the local interface to join the multicast group on.
	// Required for IPv6, where multicast joins are always interface
	// scoped; optional for IPv4, where the kernel default route's
	// interface is used if empty.
	Interface string
}

// Conn bundles the two sockets the client service and its listeners use:
// a unicast socket for sending requests and receiving direct responses,
// and a multicast socket joined to the PCP all-nodes group for receiving
// unsolicited Announce datagrams.
type Conn struct {
	family Family
	server netip.AddrPort

	unicastRaw *net.UDPConn
	multiRaw   *net.UDPConn

	pc4m *ipv4.PacketConn
	pc6m *ipv6.PacketConn
}

// Dial opens both sockets per cfg.
func Dial(cfg Config) (*Conn, error) {
	if !cfg.Server.IsValid() {
		return nil, errors.New("socket: server address is required")
	}
	network := "udp4"
	if cfg.Family == IPv6 {
		network = "udp6"
	}

	unicastRaw, err := net.ListenUDP(network, &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("socket: listen unicast: %w", err)
	}
	multiRaw, err := net.ListenUDP(network, &net.UDPAddr{Port: ClientPort})
	if err != nil {
		unicastRaw.Close()
		return nil, fmt.Errorf("socket: listen multicast: %w", err)
	}

	c := &Conn{
		family:     cfg.Family,
		server:     netip.AddrPortFrom(cfg.Server, ServerPort),
		unicastRaw: unicastRaw,
		multiRaw:   multiRaw,
	}

	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("socket: resolve interface %q: %w", cfg.Interface, err)
		}
	}

	if cfg.Family == IPv4 {
		c.pc4m = ipv4.NewPacketConn(multiRaw)
		if err := c.pc4m.JoinGroup(iface, &net.UDPAddr{IP: multicastGroupV4.AsSlice()}); err != nil {
			c.Close()
			return nil, fmt.Errorf("socket: join multicast group: %w", err)
		}
	} else {
		if iface == nil {
			c.Close()
			return nil, errors.New("socket: interface is required for an IPv6 multicast join")
		}
		c.pc6m = ipv6.NewPacketConn(multiRaw)
		if err := c.pc6m.JoinGroup(iface, &net.UDPAddr{IP: multicastGroupV6.AsSlice()}); err != nil {
			c.Close()
			return nil, fmt.Errorf("socket: join multicast group: %w", err)
		}
	}

	return c, nil
}

// Family reports which address family this Conn was dialed for.
func (c *Conn) Family() Family {
	return c.family
}

// SendToServer sends b to the configured PCP server over the unicast
// socket. It is only ever called by the client service (§5).
func (c *Conn) SendToServer(b []byte) error {
	_, err := c.unicastRaw.WriteToUDPAddrPort(b, c.server)
	return err
}

// ReadUnicast blocks until a datagram arrives on the unicast socket (direct
// server responses) and returns its payload.
func (c *Conn) ReadUnicast(buf []byte) (int, net.Addr, error) {
	n, addr, err := c.unicastRaw.ReadFrom(buf)
	return n, addr, err
}

// ReadMulticast blocks until a datagram arrives on the multicast socket
// (unsolicited Announce) and returns its payload.
func (c *Conn) ReadMulticast(buf []byte) (int, net.Addr, error) {
	n, addr, err := c.multiRaw.ReadFrom(buf)
	return n, addr, err
}

// Close closes both underlying sockets.
func (c *Conn) Close() error {
	var err error
	if c.unicastRaw != nil {
		err = c.unicastRaw.Close()
	}
	if c.multiRaw != nil {
		if e := c.multiRaw.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
