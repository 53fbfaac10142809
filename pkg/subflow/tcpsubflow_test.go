package subflow

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/net/nettest"
)

// connectedTCPPair synthesizes a connected pair of real TCP sockets using
// nettest.NewLocalListener rather than hardcoding a loopback address,
// matching SPEC_FULL.md's test-tooling section (nettest wires real TCP
// pipes for subflow-contract tests rather than pure mocks).
func connectedTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c.(*net.TCPConn)
	}()

	client, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	server := <-accepted
	if server == nil {
		t.Fatal("accept failed")
	}
	return client.(*net.TCPConn), server
}

func TestTCPSubflowSendRecv(t *testing.T) {
	clientConn, serverConn := connectedTCPPair(t)
	client := NewTCPSubflow(clientConn, 0)
	server := NewTCPSubflow(serverConn, 0)
	defer client.Close()
	defer server.Close()

	received := make(chan Segment, 1)
	server.SetDataReady(func(seg Segment) { received <- seg })

	opts := []byte{1, 2, 3}
	if err := client.Send(context.Background(), []byte("hello"), FlagAck, opts); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case seg := <-received:
		if string(seg.Payload) != "hello" {
			t.Errorf("payload = %q", seg.Payload)
		}
		if seg.Flags != FlagAck {
			t.Errorf("flags = %v", seg.Flags)
		}
		if string(seg.Options) != string(opts) {
			t.Errorf("options = %v", seg.Options)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestTCPSubflowAdvanceSndUna(t *testing.T) {
	clientConn, serverConn := connectedTCPPair(t)
	client := NewTCPSubflow(clientConn, 0)
	server := NewTCPSubflow(serverConn, 0)
	defer client.Close()
	defer server.Close()

	var gotAck uint64
	ackCh := make(chan struct{}, 1)
	client.SetAckAdvance(func(sndUna uint64) {
		gotAck = sndUna
		ackCh <- struct{}{}
	})

	if err := client.Send(context.Background(), []byte("abc"), 0, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.Stats().InFlight != 3 {
		t.Fatalf("in flight = %d, want 3", client.Stats().InFlight)
	}

	client.AdvanceSndUna(3)
	select {
	case <-ackCh:
	case <-time.After(time.Second):
		t.Fatal("ack-advance callback never fired")
	}
	if gotAck != 3 {
		t.Errorf("gotAck = %d, want 3", gotAck)
	}
	if client.Stats().InFlight != 0 {
		t.Errorf("in flight after ack = %d, want 0", client.Stats().InFlight)
	}
}

func TestTCPSubflowCloseSetsState(t *testing.T) {
	clientConn, serverConn := connectedTCPPair(t)
	client := NewTCPSubflow(clientConn, 0)
	server := NewTCPSubflow(serverConn, 0)
	defer server.Close()

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if client.State() != StateFinWait1 {
		t.Errorf("state after close = %v", client.State())
	}
	// idempotent
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
