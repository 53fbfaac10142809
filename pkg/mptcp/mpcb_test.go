package mptcp

import (
	"context"
	"net/netip"
	"testing"

	"github.com/rs/zerolog"

	"github.com/r2northstar/mptcpd/pkg/dsn"
	"github.com/r2northstar/mptcpd/pkg/mpopt"
	"github.com/r2northstar/mptcpd/pkg/pathset"
	"github.com/r2northstar/mptcpd/pkg/subflow"
)

func newTestMPCB(t *testing.T) (*MPCB, *subflow.FakeSubflow) {
	t.Helper()
	cfg := &Config{Scheduler: "minsrtt"}
	eng := NewEngine(cfg, zerolog.Nop(), nil)

	master := subflow.NewFakeSubflow()
	masterPath := pathset.Path{
		LocalAddr:  netip.MustParseAddr("10.0.0.1"),
		LocalPort:  5000,
		RemoteAddr: netip.MustParseAddr("10.0.0.2"),
		RemotePort: 6000,
	}
	m := NewMPCB(eng, true, 111, 222, 0xAAAA, 0xBBBB, 1000, masterPath, master)
	return m, master
}

func TestMPCBSend(t *testing.T) {
	m, master := newTestMPCB(t)

	n, err := m.Send(context.Background(), []byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Send: n=%d err=%v", n, err)
	}

	sends := master.Sends()
	if len(sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sends))
	}
	opt, err := mpopt.Decode(sends[0].Options)
	if err != nil {
		t.Fatalf("decode DSS: %v", err)
	}
	dss, ok := opt.(mpopt.DSS)
	if !ok || !dss.MappingPresent {
		t.Fatalf("expected a DSS mapping, got %#v", opt)
	}
	if dss.DataSeq != 1000 || dss.DataLen != 5 {
		t.Fatalf("unexpected mapping: %#v", dss)
	}
}

func TestMPCBRecv(t *testing.T) {
	m, master := newTestMPCB(t)

	dss := mpopt.DSS{MappingPresent: true, DataSeq: 1000, SubSeq: 0, DataLen: 5}
	master.Deliver(subflow.Segment{
		Payload: []byte("world"),
		Seq:     0,
		Options: mpopt.Encode(dss),
	})

	buf := make([]byte, 16)
	n, err := m.Recv(context.Background(), buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("Recv: got %q", buf[:n])
	}
}

func TestMPCBRecvOutOfOrderThenFill(t *testing.T) {
	m, master := newTestMPCB(t)

	// second half arrives first, out of order
	dss2 := mpopt.DSS{MappingPresent: true, DataSeq: 1005, SubSeq: 5, DataLen: 5}
	master.Deliver(subflow.Segment{Payload: []byte("WORLD"), Seq: 5, Options: mpopt.Encode(dss2)})

	buf := make([]byte, 16)
	// nothing deliverable yet; give Recv a context that returns immediately
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Recv(ctx, buf); err == nil {
		t.Fatalf("expected Recv to block/err before the gap is filled")
	}

	dss1 := mpopt.DSS{MappingPresent: true, DataSeq: 1000, SubSeq: 0, DataLen: 5}
	master.Deliver(subflow.Segment{Payload: []byte("hello"), Seq: 0, Options: mpopt.Encode(dss1)})

	n, err := m.Recv(context.Background(), buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "helloWORLD" {
		t.Fatalf("Recv: got %q", buf[:n])
	}
}

func TestMPCBClose(t *testing.T) {
	m, master := newTestMPCB(t)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !master.Closed() {
		t.Fatalf("expected master subflow to be closed")
	}
	if got := m.State(); got != StateFinWait1 {
		t.Fatalf("state after close: %v", got)
	}

	buf := make([]byte, 16)
	if _, err := m.Recv(context.Background(), buf); err != ErrClosed {
		t.Fatalf("Recv after close: %v", err)
	}

	// Close is idempotent
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMPCBMarkPotentiallyFailedReinjects(t *testing.T) {
	m, _ := newTestMPCB(t)

	second := subflow.NewFakeSubflow()
	m.Attach(second, 2, false)

	master := m.subflows[pathset.MasterIndex]
	master.retransmit = append(master.retransmit, &dsn.Segment{
		Payload:  []byte("retry-me"),
		Seq:      0,
		EndSeq:   8,
		DataSeq:  1000,
		PathMask: master.candidate().PathMask(),
	})

	m.MarkPotentiallyFailed(pathset.MasterIndex)

	if m.reinject.Len() == 0 {
		t.Fatalf("expected a reinjected segment after marking path 1 pf")
	}
}

// TestMPCBReinjectionRedeliversOnSurvivingSubflow is scenario 2 of §8: once
// a subflow is marked pf, bytes cloned onto the reinjection queue must
// actually be delivered via the surviving subflow, ahead of any new
// application data, rather than sitting in the queue forever.
func TestMPCBReinjectionRedeliversOnSurvivingSubflow(t *testing.T) {
	m, master := newTestMPCB(t)

	second := subflow.NewFakeSubflow()
	m.Attach(second, 2, false)

	masterAS := m.subflows[pathset.MasterIndex]
	masterAS.retransmit = append(masterAS.retransmit, &dsn.Segment{
		Payload:  []byte("unacked-data"),
		Seq:      0,
		EndSeq:   12,
		DataSeq:  600000,
		PathMask: masterAS.candidate().PathMask(),
	})

	m.MarkPotentiallyFailed(pathset.MasterIndex)
	if m.reinject.Len() == 0 {
		t.Fatalf("expected a reinjected segment after marking master pf")
	}

	n, err := m.Send(context.Background(), []byte("new"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 3 {
		t.Fatalf("Send n = %d, want 3", n)
	}
	if m.reinject.Len() != 0 {
		t.Fatalf("expected reinjection queue drained by Send, got %d left", m.reinject.Len())
	}

	sends := second.Sends()
	if len(sends) != 2 {
		t.Fatalf("expected 2 sends on the surviving subflow (reinjected, then new), got %d", len(sends))
	}

	opt, err := mpopt.Decode(sends[0].Options)
	if err != nil {
		t.Fatalf("decode reinjected DSS: %v", err)
	}
	dss, ok := opt.(mpopt.DSS)
	if !ok || dss.DataSeq != 600000 || string(sends[0].Payload) != "unacked-data" {
		t.Fatalf("unexpected reinjected send: %#v payload=%q", opt, sends[0].Payload)
	}

	if len(master.Sends()) != 0 {
		t.Fatalf("the pf subflow should not have carried any new sends, got %d", len(master.Sends()))
	}
}

// TestMPCBChecksumMismatchResetsSubflowAndSendsFail covers §4.3/§7
// ChecksumMismatch and the §4.8 infinite-mapping handoff: a DSS mapping
// whose checksum doesn't match the payload must reset the carrying
// subflow, send a FAIL naming the offending DSN first, and never reach the
// meta reassembler.
func TestMPCBChecksumMismatchResetsSubflowAndSendsFail(t *testing.T) {
	cfg := &Config{Scheduler: "minsrtt", Checksum: true}
	eng := NewEngine(cfg, zerolog.Nop(), nil)
	master := subflow.NewFakeSubflow()
	masterPath := pathset.Path{
		LocalAddr:  netip.MustParseAddr("10.0.0.1"),
		LocalPort:  5000,
		RemoteAddr: netip.MustParseAddr("10.0.0.2"),
		RemotePort: 6000,
	}
	m := NewMPCB(eng, true, 111, 222, 0xAAAA, 0xBBBB, 1000, masterPath, master)

	dss := mpopt.DSS{
		MappingPresent:  true,
		DataSeq:         1000,
		SubSeq:          0,
		DataLen:         5,
		ChecksumPresent: true,
		Checksum:        0xdead, // deliberately wrong
	}
	master.Deliver(subflow.Segment{Payload: []byte("world"), Seq: 0, Options: mpopt.Encode(dss)})

	if !master.WasReset() {
		t.Fatalf("expected the carrying subflow to be reset on checksum mismatch")
	}
	if !m.peerInfiniteMapping {
		t.Fatalf("expected peerInfiniteMapping to be set after a checksum failure")
	}

	sends := master.Sends()
	if len(sends) != 1 {
		t.Fatalf("expected exactly 1 FAIL send before reset, got %d", len(sends))
	}
	opt, err := mpopt.Decode(sends[0].Options)
	if err != nil {
		t.Fatalf("decode FAIL: %v", err)
	}
	fail, ok := opt.(mpopt.Fail)
	if !ok || fail.DataSeq != 1000 {
		t.Fatalf("expected FAIL(data_seq=1000), got %#v", opt)
	}

	buf := make([]byte, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Recv(ctx, buf); err == nil {
		t.Fatalf("expected no data delivered from a checksum-failed segment")
	}
}
