// Package transport is the raw UDP read/write layer the relay core
// sits on top of: one listener socket facing the game client, and one
// dialed socket per outbound attempt facing the real upstream game
// server. It stands in for the client's proprietary reliable-datagram
// transport, which is out of scope for this repository; frames are
// relayed as opaque byte slices one recvfrom/sendto at a time, the
// way wiktorbgu-awg-proxy's internal/awg.Proxy drives a net.UDPConn
// pair, generalized from its fixed client/server pairing to a listener
// that tracks whichever client address most recently sent it a frame.
package transport

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"
)

const maxDatagram = 65507

// Inbound is the UDP socket the game client talks to. It remembers
// the most recent sender address so replies can be routed back
// without the caller tracking addresses itself.
type Inbound struct {
	conn       *net.UDPConn
	clientAddr atomic.Pointer[netip.AddrPort]
}

// ListenInbound opens a UDP listener on addr ("host:port", host may be
// empty for all interfaces).
func ListenInbound(addr string) (*Inbound, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Inbound{conn: conn}, nil
}

// ListenInboundAuto binds addr; if that port is already taken, it
// retries on an OS-assigned ephemeral port on the same host rather
// than failing startup, matching spec's "Port conflict (UDP inbound):
// auto-select a free replacement; warn" policy. fellBack reports
// whether the fallback path was taken, so the caller can warn with
// the original and chosen port.
func ListenInboundAuto(addr string) (in *Inbound, fellBack bool, err error) {
	in, err = ListenInbound(addr)
	if err == nil {
		return in, false, nil
	}
	origErr := err

	host, _, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		return nil, false, origErr
	}
	in, err = ListenInbound(net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, false, fmt.Errorf("%w (fallback to an ephemeral port also failed: %v)", origErr, err)
	}
	return in, true, nil
}

// Port returns the UDP port this listener is actually bound to, which
// may differ from what was requested if ListenInboundAuto fell back
// to an ephemeral port.
func (in *Inbound) Port() int {
	if addr, ok := in.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// ReadFrame blocks for the next datagram and records its sender as
// the current client address.
func (in *Inbound) ReadFrame(buf []byte) (n int, from netip.AddrPort, err error) {
	n, from, err = in.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	in.clientAddr.Store(&from)
	return n, from, nil
}

// ClientAddr returns the most recently observed client address, or
// the zero value if none has been seen yet.
func (in *Inbound) ClientAddr() (netip.AddrPort, bool) {
	p := in.clientAddr.Load()
	if p == nil {
		return netip.AddrPort{}, false
	}
	return *p, true
}

// SendToClient writes frame to the most recently observed client
// address. Returns false if no client address is known yet.
func (in *Inbound) SendToClient(frame []byte) (bool, error) {
	addr, ok := in.ClientAddr()
	if !ok {
		return false, nil
	}
	_, err := in.conn.WriteToUDPAddrPort(frame, addr)
	return true, err
}

// SendTo writes frame to an explicit address, bypassing the tracked
// client address.
func (in *Inbound) SendTo(addr netip.AddrPort, frame []byte) error {
	_, err := in.conn.WriteToUDPAddrPort(frame, addr)
	return err
}

func (in *Inbound) Close() error {
	return in.conn.Close()
}

// Outbound is a dialed UDP socket facing the real upstream game
// server, established fresh on every connect/reconnect attempt.
type Outbound struct {
	conn *net.UDPConn
}

// DialOutbound dials host:port over UDP.
func DialOutbound(host string, port int) (*Outbound, error) {
	return DialOutboundAddr(net.JoinHostPort(host, strconv.Itoa(port)))
}

// DialOutboundAddr dials an already-formatted "host:port" address over
// UDP, from an OS-assigned ephemeral local port.
func DialOutboundAddr(addr string) (*Outbound, error) {
	return dialOutbound(addr, 0)
}

// DialOutboundLocal dials host:port over UDP, binding the local end to
// localPort (spec's client.localPort) instead of an ephemeral one. A
// localPort of 0 behaves exactly like DialOutbound.
func DialOutboundLocal(host string, port, localPort int) (*Outbound, error) {
	return dialOutbound(net.JoinHostPort(host, strconv.Itoa(port)), localPort)
}

func dialOutbound(addr string, localPort int) (*Outbound, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	var laddr *net.UDPAddr
	if localPort != 0 {
		laddr = &net.UDPAddr{Port: localPort}
	}
	conn, err := net.DialUDP("udp", laddr, udpAddr)
	if err != nil {
		return nil, err
	}
	return &Outbound{conn: conn}, nil
}

func (o *Outbound) Send(frame []byte) error {
	_, err := o.conn.Write(frame)
	return err
}

func (o *Outbound) ReadFrame(buf []byte) (int, error) {
	return o.conn.Read(buf)
}

func (o *Outbound) Close() error {
	return o.conn.Close()
}

// MaxDatagram is the largest payload one UDP datagram over IPv4 can
// carry. ReadFrame reads into the caller's buffer and does not check
// its size against this value.
const MaxDatagram = maxDatagram
