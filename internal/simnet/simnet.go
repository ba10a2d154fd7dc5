// Package simnet provides a deterministic, in-memory stand-in for a UDP
// socket pair, used by the sender/receiver integration tests to exercise
// loss, duplication, and reordering without relying on real network
// conditions.
package simnet

import (
	"net"
	"sync/atomic"
	"time"
)

// Addr is a net.Addr implementation for simulated endpoints.
type Addr struct {
	id string
}

func (a Addr) Network() string { return "sim" }
func (a Addr) String() string  { return a.id }

// Mutator decides, for the n-th packet sent in one direction (n starting at
// 1), how many times it is delivered and with what extra delay each
// delivery carries. A nil or empty result drops the packet; a result with
// more than one entry duplicates it; non-zero, unequal delays across
// consecutive packets produce reordering at the receiving end.
type Mutator func(n int) []time.Duration

// AlwaysDeliver delivers every packet exactly once, with no delay.
func AlwaysDeliver(n int) []time.Duration { return []time.Duration{0} }

// DropEveryKth drops the k-th, 2k-th, ... packet (1-indexed) and delivers
// everything else unchanged.
func DropEveryKth(k int) Mutator {
	return func(n int) []time.Duration {
		if k > 0 && n%k == 0 {
			return nil
		}
		return []time.Duration{0}
	}
}

// DropOnce drops exactly the packet numbered target and delivers every
// other packet unchanged.
func DropOnce(target int) Mutator {
	return func(n int) []time.Duration {
		if n == target {
			return nil
		}
		return []time.Duration{0}
	}
}

// DuplicateAll delivers every packet twice.
func DuplicateAll(n int) []time.Duration { return []time.Duration{0, 0} }

// ReorderAdjacentPairs delays every even-numbered packet so it tends to
// arrive after the odd-numbered packet that follows it.
func ReorderAdjacentPairs(n int) []time.Duration {
	if n%2 == 0 {
		return []time.Duration{5 * time.Millisecond}
	}
	return []time.Duration{0}
}

type packet struct {
	from net.Addr
	data []byte
}

// Medium connects two simulated endpoints, applying an independent Mutator
// to each direction of traffic.
type Medium struct {
	aAddr, bAddr Addr
	aInbox       chan packet
	bInbox       chan packet
	aToB         Mutator
	bToA         Mutator
	aCount       atomic.Int64
	bCount       atomic.Int64
}

// NewMedium builds a Medium with the given per-direction mutators. A nil
// mutator behaves like AlwaysDeliver.
func NewMedium(aToB, bToA Mutator) *Medium {
	if aToB == nil {
		aToB = AlwaysDeliver
	}
	if bToA == nil {
		bToA = AlwaysDeliver
	}
	return &Medium{
		aAddr:  Addr{id: "sim-a"},
		bAddr:  Addr{id: "sim-b"},
		aInbox: make(chan packet, 256),
		bInbox: make(chan packet, 256),
		aToB:   aToB,
		bToA:   bToA,
	}
}

func (m *Medium) deliver(to chan packet, from net.Addr, data []byte, delays []time.Duration) {
	cp := make([]byte, len(data))
	copy(cp, data)
	for _, d := range delays {
		if d == 0 {
			to <- packet{from: from, data: cp}
			continue
		}
		go func(delay time.Duration) {
			time.Sleep(delay)
			to <- packet{from: from, data: cp}
		}(d)
	}
}

// EndpointA returns the A-side of the medium.
func (m *Medium) EndpointA() *Endpoint {
	return &Endpoint{medium: m, self: m.aAddr, peer: m.bAddr, inbox: m.aInbox}
}

// EndpointB returns the B-side of the medium.
func (m *Medium) EndpointB() *Endpoint {
	return &Endpoint{medium: m, self: m.bAddr, peer: m.aAddr, inbox: m.bInbox}
}

// Endpoint is one side of a simulated datagram medium. It implements the
// same Send/Receive and SendTo/ReceiveFrom shapes as transport.Endpoint, so
// sender.Core and receiver.Core can run unmodified against it in tests.
type Endpoint struct {
	medium *Medium
	self   Addr
	peer   Addr
	inbox  chan packet
}

// LocalAddr reports this endpoint's simulated address.
func (e *Endpoint) LocalAddr() net.Addr { return e.self }

// Send delivers buf to the fixed peer on the other side of the medium,
// subject to that direction's Mutator.
func (e *Endpoint) Send(buf []byte) error {
	return e.SendTo(buf, e.peer)
}

// Receive waits up to timeout for a datagram from the fixed peer.
func (e *Endpoint) Receive(timeout time.Duration) (buf []byte, timedOut bool, err error) {
	buf, _, timedOut, err = e.ReceiveFrom(timeout)
	return buf, timedOut, err
}

// SendTo delivers buf to addr, subject to the direction's Mutator. addr is
// informational here — a Medium only ever connects two endpoints — but is
// accepted to satisfy the receiver-side transport shape.
func (e *Endpoint) SendTo(buf []byte, _ net.Addr) error {
	if e.self == e.medium.aAddr {
		n := int(e.medium.aCount.Add(1))
		delays := e.medium.aToB(n)
		e.medium.deliver(e.medium.bInbox, e.self, buf, delays)
	} else {
		n := int(e.medium.bCount.Add(1))
		delays := e.medium.bToA(n)
		e.medium.deliver(e.medium.aInbox, e.self, buf, delays)
	}
	return nil
}

// ReceiveFrom waits up to timeout for a datagram from any source.
func (e *Endpoint) ReceiveFrom(timeout time.Duration) (buf []byte, addr net.Addr, timedOut bool, err error) {
	select {
	case p := <-e.inbox:
		return p.data, p.from, false, nil
	case <-time.After(timeout):
		return nil, nil, true, nil
	}
}
