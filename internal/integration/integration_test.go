// Package integration exercises the sender and receiver cores together
// over a simulated lossy medium, covering the end-to-end properties and
// literal scenarios spec.md lays out.
package integration

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kasader/rdtp/internal/frame"
	"github.com/kasader/rdtp/internal/receiver"
	"github.com/kasader/rdtp/internal/sender"
	"github.com/kasader/rdtp/internal/simnet"
)

type bufSink struct {
	buf bytes.Buffer
}

func (s *bufSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *bufSink) Flush() error                { return nil }

func runTransfer(t *testing.T, data []byte, cfg sender.Config, dataDirection, ackDirection simnet.Mutator) ([]byte, sender.Stats, receiver.Stats) {
	t.Helper()
	medium := simnet.NewMedium(dataDirection, ackDirection)
	sink := &bufSink{}

	sCore := sender.New(medium.EndpointA(), bytes.NewReader(data), cfg)
	rCore := receiver.New(medium.EndpointB(), sink)

	var g errgroup.Group
	var sStats sender.Stats
	var rStats receiver.Stats
	g.Go(func() error {
		var err error
		sStats, err = sCore.Run()
		return err
	})
	g.Go(func() error {
		var err error
		rStats, err = rCore.Run()
		return err
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	return sink.buf.Bytes(), sStats, rStats
}

func TestS1Tiny(t *testing.T) {
	cfg := sender.Config{MSS: 4, Window: 2, Timeout: 100 * time.Millisecond}
	out, sStats, _ := runTransfer(t, []byte("hello"), cfg, nil, nil)

	if string(out) != "hello" {
		t.Fatalf("got %q, want %q", out, "hello")
	}
	if sStats.Retransmits != 0 {
		t.Fatalf("expected zero retransmits over a lossless transport, got %d", sStats.Retransmits)
	}
	if sStats.PayloadBytes != 5 {
		t.Fatalf("expected 5 payload bytes read, got %d", sStats.PayloadBytes)
	}
}

func TestS2ExactMultiple(t *testing.T) {
	data := make([]byte, 2000)
	cfg := sender.Config{MSS: 1000, Window: 4, Timeout: 100 * time.Millisecond}
	out, sStats, rStats := runTransfer(t, data, cfg, nil, nil)

	if !bytes.Equal(out, data) {
		t.Fatalf("output mismatch: got %d bytes, want %d", len(out), len(data))
	}
	if sStats.Retransmits != 0 {
		t.Fatalf("expected zero retransmits, got %d", sStats.Retransmits)
	}
	if rStats.BytesWritten != 2000 {
		t.Fatalf("expected 2000 bytes written, got %d", rStats.BytesWritten)
	}
}

func TestS3EmptyFile(t *testing.T) {
	cfg := sender.Config{MSS: 100, Window: 4, Timeout: 50 * time.Millisecond}
	out, sStats, rStats := runTransfer(t, nil, cfg, nil, nil)

	if len(out) != 0 {
		t.Fatalf("expected zero bytes written, got %d", len(out))
	}
	if sStats.PayloadBytes != 0 {
		t.Fatalf("expected zero payload bytes sent, got %d", sStats.PayloadBytes)
	}
	if rStats.BytesWritten != 0 {
		t.Fatalf("expected zero bytes written, got %d", rStats.BytesWritten)
	}
}

// trackingTransport wraps a sender-side simnet endpoint and records the
// largest number of simultaneously unacknowledged DATA frames observed on
// the wire, to check the sliding-window invariant from the outside.
type trackingTransport struct {
	inner    *simnet.Endpoint
	mu       sync.Mutex
	inflight map[uint32]bool
	maxSeen  int
}

func newTrackingTransport(inner *simnet.Endpoint) *trackingTransport {
	return &trackingTransport{inner: inner, inflight: make(map[uint32]bool)}
}

func (tt *trackingTransport) Send(buf []byte) error {
	if f, ok := frame.Parse(buf); ok && f.Type == frame.DATA {
		tt.mu.Lock()
		tt.inflight[f.Seq] = true
		if len(tt.inflight) > tt.maxSeen {
			tt.maxSeen = len(tt.inflight)
		}
		tt.mu.Unlock()
	}
	return tt.inner.Send(buf)
}

func (tt *trackingTransport) Receive(timeout time.Duration) ([]byte, bool, error) {
	buf, timedOut, err := tt.inner.Receive(timeout)
	if !timedOut && err == nil {
		if f, ok := frame.Parse(buf); ok && f.Type == frame.ACK {
			tt.mu.Lock()
			for seq := range tt.inflight {
				if seq <= f.Seq {
					delete(tt.inflight, seq)
				}
			}
			tt.mu.Unlock()
		}
	}
	return buf, timedOut, err
}

func TestS4WindowSaturation(t *testing.T) {
	data := make([]byte, 10*100)
	cfg := sender.Config{MSS: 100, Window: 3, Timeout: 200 * time.Millisecond}

	medium := simnet.NewMedium(nil, nil)
	sink := &bufSink{}
	tracker := newTrackingTransport(medium.EndpointA())

	sCore := sender.New(tracker, bytes.NewReader(data), cfg)
	rCore := receiver.New(medium.EndpointB(), sink)

	var g errgroup.Group
	g.Go(func() error { _, err := sCore.Run(); return err })
	g.Go(func() error { _, err := rCore.Run(); return err })
	if err := g.Wait(); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if !bytes.Equal(sink.buf.Bytes(), data) {
		t.Fatalf("output mismatch")
	}
	if tracker.maxSeen > cfg.Window {
		t.Fatalf("observed %d simultaneously in-flight DATA frames, window is %d", tracker.maxSeen, cfg.Window)
	}
}

func TestS5DropFirstDataFrame(t *testing.T) {
	cfg := sender.Config{MSS: 4, Window: 3, Timeout: 40 * time.Millisecond}
	out, sStats, _ := runTransfer(t, []byte("hello world!"), cfg, simnet.DropOnce(1), nil)

	if string(out) != "hello world!" {
		t.Fatalf("got %q, want %q", out, "hello world!")
	}
	if sStats.Retransmits < 1 {
		t.Fatalf("expected at least one retransmission after the dropped first frame, got %d", sStats.Retransmits)
	}
}

func TestS6DuplicateDataFrames(t *testing.T) {
	cfg := sender.Config{MSS: 8, Window: 4, Timeout: 60 * time.Millisecond}
	data := bytes.Repeat([]byte("duplicate-test-payload-"), 10)
	out, _, rStats := runTransfer(t, data, cfg, simnet.DuplicateAll, nil)

	if !bytes.Equal(out, data) {
		t.Fatalf("duplicated DATA frames produced corrupted output: got %d bytes, want %d", len(out), len(data))
	}
	if rStats.BytesWritten != uint64(len(data)) {
		t.Fatalf("expected every byte delivered exactly once: got %d, want %d", rStats.BytesWritten, len(data))
	}
}

func TestAckLossStillDelivers(t *testing.T) {
	cfg := sender.Config{MSS: 4, Window: 3, Timeout: 30 * time.Millisecond}
	data := []byte("the quick brown fox jumps over the lazy dog")
	out, sStats, _ := runTransfer(t, data, cfg, nil, simnet.DropEveryKth(3))

	if !bytes.Equal(out, data) {
		t.Fatalf("ack loss corrupted output: got %q, want %q", out, data)
	}
	if sStats.Retransmits == 0 {
		t.Fatalf("expected ack loss to trigger at least one retransmission")
	}
}

func TestReorderingToleratedWithoutGapFill(t *testing.T) {
	cfg := sender.Config{MSS: 4, Window: 5, Timeout: 40 * time.Millisecond}
	data := []byte("reordered datagrams must still arrive correctly")
	out, _, _ := runTransfer(t, data, cfg, simnet.ReorderAdjacentPairs, nil)

	if !bytes.Equal(out, data) {
		t.Fatalf("reordering corrupted output: got %q, want %q", out, data)
	}
}

func TestClosingHandshakeAfterLostDataAck(t *testing.T) {
	cfg := sender.Config{MSS: 4, Window: 2, Timeout: 20 * time.Millisecond}
	data := []byte("bye")

	// Drop the first ACK in the bToA direction, which is the ACK of the only
	// DATA frame: the sender must retransmit before it can enter closing,
	// and the FIN handshake then runs normally. The FIN's own ACK is not
	// dropped; the receiver returns as soon as it has acknowledged the FIN.
	out, _, _ := runTransfer(t, data, cfg, nil, simnet.DropOnce(1))

	if string(out) != "bye" {
		t.Fatalf("got %q, want %q", out, "bye")
	}
}
