// Package receiver implements the RDTP receiver core: it validates
// incoming frames, accepts the next expected DATA frame strictly in order,
// emits cumulative ACKs, and completes the FIN handshake.
package receiver

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/kasader/rdtp/internal/frame"
)

// Transport is the datagram contract the receiver core needs: wait up to a
// deadline for one frame from any source, and reply to an explicit peer.
type Transport interface {
	ReceiveFrom(timeout time.Duration) (buf []byte, addr net.Addr, timedOut bool, err error)
	SendTo(buf []byte, addr net.Addr) error
}

// Sink is the byte sink the receiver delivers in-order payload bytes to.
type Sink interface {
	Write(p []byte) (int, error)
	Flush() error
}

// PollTimeout bounds each individual ReceiveFrom call. It has no protocol
// meaning (the receiver has no timer of its own) — it only ensures the
// main loop periodically re-enters ReceiveFrom instead of blocking forever,
// the same role a signal-interrupted blocking recv plays in the original.
const PollTimeout = time.Second

// Stats summarizes one completed run.
type Stats struct {
	BytesWritten uint64
}

// Core drives one receiver-side run to completion.
type Core struct {
	transport Transport
	sink      Sink

	expected      uint32
	lastDelivered uint32
	haveDelivered bool
	peer          net.Addr
	havePeer      bool
	observer      func(frame.Type)
}

// New constructs a receiver Core.
func New(transport Transport, sink Sink) *Core {
	return &Core{transport: transport, sink: sink}
}

// SetFrameObserver installs a callback invoked once per frame the
// receiver accepts off the wire or sends back, for external frame-count
// instrumentation (e.g. a Prometheus counter). A nil observer disables
// the callback; this is also the default.
func (c *Core) SetFrameObserver(fn func(frame.Type)) {
	c.observer = fn
}

func (c *Core) observe(t frame.Type) {
	if c.observer != nil {
		c.observer(t)
	}
}

// Run processes frames until a FIN at the expected sequence is received and
// acknowledged, then flushes the sink and returns. A returned error is
// always fatal (transport or sink I/O failure).
func (c *Core) Run() (Stats, error) {
	var stats Stats

	for {
		buf, addr, timedOut, err := c.transport.ReceiveFrom(PollTimeout)
		if err != nil {
			return stats, errors.Wrap(err, "receive")
		}
		if timedOut {
			continue
		}

		f, ok := frame.Parse(buf)
		if !ok {
			continue
		}
		c.observe(f.Type)

		if !c.havePeer {
			c.peer = addr
			c.havePeer = true
		}

		switch f.Type {
		case frame.DATA:
			if err := c.handleData(f, &stats); err != nil {
				return stats, err
			}
		case frame.FIN:
			done, err := c.handleFin(f)
			if err != nil {
				return stats, err
			}
			if done {
				if err := c.sink.Flush(); err != nil {
					return stats, errors.Wrap(err, "flush sink")
				}
				return stats, nil
			}
		default:
			// ACK frames arriving at the receiver are foreign traffic;
			// silently ignored, as are any other unexpected types.
		}
	}
}

func (c *Core) handleData(f frame.Frame, stats *Stats) error {
	if f.Seq == c.expected {
		if len(f.Payload) > 0 {
			if _, err := c.sink.Write(f.Payload); err != nil {
				return errors.Wrap(err, "write sink")
			}
			stats.BytesWritten += uint64(len(f.Payload))
		}
		c.lastDelivered = c.expected
		c.haveDelivered = true
		c.expected++
		return c.sendAck(c.lastDelivered)
	}

	if c.haveDelivered {
		return c.sendAck(c.lastDelivered)
	}
	return nil
}

func (c *Core) handleFin(f frame.Frame) (done bool, err error) {
	if f.Seq == c.expected {
		if err := c.sendAck(f.Seq); err != nil {
			return false, err
		}
		return true, nil
	}
	if c.haveDelivered {
		if err := c.sendAck(c.lastDelivered); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (c *Core) sendAck(seq uint32) error {
	wire := frame.Build(frame.ACK, seq, nil)
	if err := c.transport.SendTo(wire, c.peer); err != nil {
		return errors.Wrap(err, "send ack")
	}
	c.observe(frame.ACK)
	return nil
}
