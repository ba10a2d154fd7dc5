// Package transport wraps a UDP socket into the datagram endpoint contract
// RDTP's sender and receiver cores depend on: open/bind/resolve, and
// send/receive a single frame with an optional deadline.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// RecvBufferSize bounds a single inbound read. 64 KiB comfortably covers any
// legal RDTP frame (header plus up to MaxPayload bytes) and any oversized or
// foreign datagram the OS will still deliver atomically.
const RecvBufferSize = 64 * 1024

// Endpoint is a UDP socket used either as a connected sender-side endpoint
// (obtained via DialRemote) or as a bound receiver-side endpoint (obtained
// via Listen). Both method sets are exposed; which half a caller uses
// depends on which constructor produced the Endpoint.
type Endpoint struct {
	conn *net.UDPConn
}

// Listen binds a local UDP endpoint on the given port. It first attempts an
// unspecified dual-stack listener (accepting both IPv4 and IPv6 traffic on
// platforms where the kernel defaults to dual-stack) and falls back to
// IPv4-only on failure.
func Listen(port int) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err == nil {
		return &Endpoint{conn: conn}, nil
	}

	conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	return &Endpoint{conn: conn}, nil
}

// DialRemote resolves host:port and opens a connected UDP endpoint to it.
// The socket's address family follows whatever Resolve picked for the
// target, with no fallback: a single remote address has exactly one family.
func DialRemote(host, port string) (*Endpoint, error) {
	raddr, err := Resolve(host, port)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", raddr)
	}
	return &Endpoint{conn: conn}, nil
}

// Resolve turns a host/port pair into a UDP address, address-family
// agnostic (the caller does not choose IPv4 vs IPv6; the resolver does).
func Resolve(host, port string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s:%s", host, port)
	}
	return addr, nil
}

// LocalAddr reports the endpoint's bound local address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// Send writes a single frame to the endpoint's connected peer. Valid only
// on endpoints obtained from DialRemote.
func (e *Endpoint) Send(buf []byte) error {
	_, err := e.conn.Write(buf)
	return err
}

// Receive waits up to timeout for a single datagram from the connected
// peer. timedOut is true (with a nil error) if the deadline elapsed before
// any datagram arrived; this is the normal "wait elapsed" case, not a
// failure.
func (e *Endpoint) Receive(timeout time.Duration) (buf []byte, timedOut bool, err error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, false, err
	}
	rx := make([]byte, RecvBufferSize)
	n, err := e.conn.Read(rx)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, true, nil
		}
		return nil, false, err
	}
	return rx[:n], false, nil
}

// SendTo writes a single frame to an explicit peer address. Used on the
// receiver side, where the socket is unconnected.
func (e *Endpoint) SendTo(buf []byte, addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return errors.Errorf("transport: unsupported address type %T", addr)
	}
	_, err := e.conn.WriteToUDP(buf, udpAddr)
	return err
}

// ReceiveFrom waits up to timeout for a single datagram from any peer,
// reporting its source address. Used on the receiver side.
func (e *Endpoint) ReceiveFrom(timeout time.Duration) (buf []byte, addr net.Addr, timedOut bool, err error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, false, err
	}
	rx := make([]byte, RecvBufferSize)
	n, from, err := e.conn.ReadFromUDP(rx)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, true, nil
		}
		return nil, nil, false, err
	}
	return rx[:n], from, false, nil
}
