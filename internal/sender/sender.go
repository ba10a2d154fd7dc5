// Package sender implements the RDTP sender core: it streams a byte
// source into numbered DATA frames, maintains a sliding window of
// unacknowledged frames, retransmits go-back-N on timeout, and drives the
// FIN handshake to a clean close.
package sender

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/kasader/rdtp/internal/frame"
)

// Transport is the datagram contract the sender core needs from its peer
// connection: send one frame, and wait up to a deadline for one frame.
type Transport interface {
	Send(buf []byte) error
	Receive(timeout time.Duration) (buf []byte, timedOut bool, err error)
}

// Config bounds the sender's behavior. MSS must be in [1, MaxMSS], Window
// must be > 0, and Timeout must be at least MinTimeout.
type Config struct {
	MSS     int
	Window  int
	Timeout time.Duration
}

const (
	// MaxMSS is the largest payload a DATA frame may carry.
	MaxMSS = frame.MaxPayload
	// MinTimeout is the smallest retransmission timeout accepted.
	MinTimeout = 10 * time.Millisecond
)

// Validate checks the configuration against the limits the protocol
// requires, returning a Configuration-class error on violation.
func (c Config) Validate() error {
	if c.MSS < 1 || c.MSS > MaxMSS {
		return errors.Errorf("mss must be in [1, %d], got %d", MaxMSS, c.MSS)
	}
	if c.Window <= 0 {
		return errors.Errorf("window must be > 0, got %d", c.Window)
	}
	if c.Timeout < MinTimeout {
		return errors.Errorf("timeout must be >= %s, got %s", MinTimeout, c.Timeout)
	}
	return nil
}

// Stats summarizes one completed run, surfaced in the end-of-run summary
// line and mirrored into Prometheus counters by the caller.
type Stats struct {
	PayloadBytes uint64
	Retransmits  uint64
}

// inflight is an unacknowledged DATA frame: its sequence, its already-built
// wire bytes (so a retransmit never rebuilds the frame), and the time it
// was most recently sent.
type inflight struct {
	seq      uint32
	wire     []byte
	lastSend time.Time
}

// Core drives one sender-side run to completion.
type Core struct {
	transport Transport
	source    io.Reader
	cfg       Config
	observer  func(frame.Type)
}

// New constructs a sender Core. cfg must already be valid (see Validate).
func New(transport Transport, source io.Reader, cfg Config) *Core {
	return &Core{transport: transport, source: source, cfg: cfg}
}

// SetFrameObserver installs a callback invoked once per frame the sender
// puts on the wire or accepts off it, for external frame-count
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

// Run streams the entire byte source to the peer and blocks until the FIN
// handshake completes. A returned error is always fatal (transport or
// byte-source I/O failure); protocol-level anomalies are absorbed
// internally and never surface here.
func (c *Core) Run() (Stats, error) {
	var stats Stats
	var window []inflight
	nextSeq := uint32(0)
	eof := false
	readBuf := make([]byte, c.cfg.MSS)

	fillWindow := func() error {
		for !eof && len(window) < c.cfg.Window {
			n, err := c.source.Read(readBuf)
			if n > 0 {
				payload := append([]byte(nil), readBuf[:n]...)
				wire := frame.Build(frame.DATA, nextSeq, payload)
				if sendErr := c.transport.Send(wire); sendErr != nil {
					return errors.Wrap(sendErr, "send data frame")
				}
				c.observe(frame.DATA)
				window = append(window, inflight{seq: nextSeq, wire: wire, lastSend: time.Now()})
				stats.PayloadBytes += uint64(n)
				nextSeq++
			}
			if err != nil {
				if err == io.EOF {
					eof = true
					break
				}
				return errors.Wrap(err, "read byte source")
			}
			if n == 0 {
				eof = true
				break
			}
		}
		return nil
	}

	if err := fillWindow(); err != nil {
		return stats, err
	}

	for !eof || len(window) > 0 {
		wait := c.cfg.Timeout
		if len(window) > 0 {
			elapsed := time.Since(window[0].lastSend)
			if elapsed >= c.cfg.Timeout {
				wait = 0
			} else {
				wait = c.cfg.Timeout - elapsed
			}
		}

		buf, timedOut, err := c.transport.Receive(wait)
		if err != nil {
			return stats, errors.Wrap(err, "receive")
		}
		if timedOut {
			for i := range window {
				if sendErr := c.transport.Send(window[i].wire); sendErr != nil {
					return stats, errors.Wrap(sendErr, "retransmit data frame")
				}
				c.observe(frame.DATA)
				window[i].lastSend = time.Now()
				stats.Retransmits++
			}
			continue
		}

		f, ok := frame.Parse(buf)
		if !ok || f.Type != frame.ACK {
			continue
		}
		c.observe(frame.ACK)
		if len(window) > 0 && f.Seq >= window[0].seq {
			i := 0
			for i < len(window) && window[i].seq <= f.Seq {
				i++
			}
			window = window[i:]
			if err := fillWindow(); err != nil {
				return stats, err
			}
		}
	}

	return stats, c.closeConnection(nextSeq, &stats)
}

// closeConnection drives the FIN handshake: send FIN, wait for its ACK,
// retransmit on timeout, forever — there is no retransmission cap (see the
// design notes on this open question).
func (c *Core) closeConnection(finSeq uint32, stats *Stats) error {
	finWire := frame.Build(frame.FIN, finSeq, nil)
	var lastFinSend time.Time

	for {
		if time.Since(lastFinSend) >= c.cfg.Timeout {
			if err := c.transport.Send(finWire); err != nil {
				return errors.Wrap(err, "send fin frame")
			}
			c.observe(frame.FIN)
			lastFinSend = time.Now()
		}

		remaining := c.cfg.Timeout - time.Since(lastFinSend)
		if remaining < 0 {
			remaining = 0
		}

		buf, timedOut, err := c.transport.Receive(remaining)
		if err != nil {
			return errors.Wrap(err, "receive")
		}
		if timedOut {
			continue
		}

		f, ok := frame.Parse(buf)
		if !ok {
			continue
		}
		c.observe(f.Type)
		if f.Type == frame.ACK && f.Seq == finSeq {
			return nil
		}
	}
}
