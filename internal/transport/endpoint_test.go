package transport

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestResolveLoopback(t *testing.T) {
	addr, err := Resolve("127.0.0.1", "9001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Port != 9001 {
		t.Errorf("expected port 9001, got %d", addr.Port)
	}
}

func TestListenAndDialRoundTrip(t *testing.T) {
	listener, err := Listen(0)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	host, portStr, err := net.SplitHostPort(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("failed to split local address: %v", err)
	}
	if host == "::" || host == "" {
		host = "127.0.0.1"
	}

	client, err := DialRemote(host, portStr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	payload := []byte("round trip payload")
	if err := client.Send(payload); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	buf, addr, timedOut, err := listener.ReceiveFrom(time.Second)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if timedOut {
		t.Fatalf("receive unexpectedly timed out")
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("payload mismatch: got %q, want %q", buf, payload)
	}

	if err := listener.SendTo([]byte("ack"), addr); err != nil {
		t.Fatalf("reply send failed: %v", err)
	}
	reply, timedOut, err := client.Receive(time.Second)
	if err != nil {
		t.Fatalf("client receive failed: %v", err)
	}
	if timedOut || string(reply) != "ack" {
		t.Fatalf("expected reply 'ack', got %q (timedOut=%v)", reply, timedOut)
	}
}

func TestReceiveTimesOutWithoutData(t *testing.T) {
	ep, err := Listen(0)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ep.Close()

	_, _, timedOut, err := ep.ReceiveFrom(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !timedOut {
		t.Fatalf("expected a timeout on an empty socket")
	}
}
