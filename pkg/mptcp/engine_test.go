package mptcp

import (
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/mptcpd/pkg/netenum"
	"github.com/r2northstar/mptcpd/pkg/pathset"
	"github.com/r2northstar/mptcpd/pkg/subflow"
)

func testPath() pathset.Path {
	return pathset.Path{
		LocalAddr:  netip.MustParseAddr("10.0.0.1"),
		LocalPort:  5000,
		RemoteAddr: netip.MustParseAddr("10.0.0.2"),
		RemotePort: 6000,
	}
}

func TestEngineAcceptMasterWithKeyEstablishesMPTCP(t *testing.T) {
	eng := NewEngine(&Config{Enabled: true, Scheduler: "minsrtt"}, zerolog.Nop(), nil)
	key := uint64(0x1122334455667788)

	m := eng.AcceptMaster(subflow.NewFakeSubflow(), &key, testPath())
	if m.RemoteKey != key {
		t.Errorf("RemoteKey = %#x, want %#x", m.RemoteKey, key)
	}
	if m.infiniteMapping {
		t.Error("should not have fallen back when a remote key was present")
	}
	if eng.ConnCount() != 1 {
		t.Errorf("ConnCount = %d, want 1", eng.ConnCount())
	}

	m.Close()
	if eng.ConnCount() != 0 {
		t.Errorf("ConnCount after close = %d, want 0", eng.ConnCount())
	}
}

func TestEngineAcceptMasterNoKeyFallsBack(t *testing.T) {
	eng := NewEngine(&Config{Enabled: true, Scheduler: "minsrtt"}, zerolog.Nop(), nil)
	m := eng.AcceptMaster(subflow.NewFakeSubflow(), nil, testPath())
	if !m.infiniteMapping {
		t.Error("expected fallback to infinite mapping with no remote key")
	}
}

func TestEngineAcceptMasterDisabledFallsBack(t *testing.T) {
	eng := NewEngine(&Config{Enabled: false, Scheduler: "minsrtt"}, zerolog.Nop(), nil)
	key := uint64(42)
	m := eng.AcceptMaster(subflow.NewFakeSubflow(), &key, testPath())
	if !m.infiniteMapping {
		t.Error("expected fallback to infinite mapping when MPTCP is administratively disabled")
	}
}

func TestEngineHandleJoinSynUnknownToken(t *testing.T) {
	eng := NewEngine(&Config{Enabled: true, Scheduler: "minsrtt"}, zerolog.Nop(), nil)
	peer := netip.MustParseAddrPort("10.0.0.5:7000")
	if _, err := eng.HandleJoinSyn(0xdeadbeef, peer, 2, 0x1234, time.Minute); err != ErrTokenUnknown {
		t.Fatalf("err = %v, want ErrTokenUnknown", err)
	}
}

func TestEngineHandleJoinSynKnownToken(t *testing.T) {
	eng := NewEngine(&Config{Enabled: true, Scheduler: "minsrtt"}, zerolog.Nop(), nil)
	key := uint64(0x1122334455667788)
	m := eng.AcceptMaster(subflow.NewFakeSubflow(), &key, testPath())

	peer := netip.MustParseAddrPort("10.0.0.5:7000")
	joinOpt, err := eng.HandleJoinSyn(m.LocalToken, peer, 2, 0x1234, time.Minute)
	if err != nil {
		t.Fatalf("HandleJoinSyn: %v", err)
	}
	if len(joinOpt.HMAC) != 8 {
		t.Errorf("SYN-ACK HMAC length = %d, want 8 (truncated)", len(joinOpt.HMAC))
	}
	if joinOpt.AddrID != 2 {
		t.Errorf("AddrID = %d, want 2", joinOpt.AddrID)
	}
}

func TestEngineHandleSIGHUPRefreshesAddrs(t *testing.T) {
	enum := netenum.NewFakeEnumerator(
		netip.MustParseAddr("192.168.1.1"),
		netip.MustParseAddr("127.0.0.1"), // loopback, filtered out
	)
	eng := NewEngine(&Config{Enabled: true, Scheduler: "minsrtt"}, zerolog.Nop(), enum)

	key := uint64(7)
	m := eng.AcceptMaster(subflow.NewFakeSubflow(), &key, testPath())
	if m.LocalAddrs().Count() != 1 {
		t.Fatalf("local addrs after accept = %d, want 1 (loopback filtered)", m.LocalAddrs().Count())
	}

	// HandleSIGHUP swaps in the new config without dropping the MPCB; with
	// NDiffPorts now 2 the address refresh is skipped, so the set is kept.
	eng.HandleSIGHUP(&Config{Enabled: true, Scheduler: "minsrtt", NDiffPorts: 2})
	if m.LocalAddrs().Count() != 1 {
		t.Errorf("local addrs after SIGHUP = %d, want 1", m.LocalAddrs().Count())
	}
	if eng.Config().NDiffPorts != 2 {
		t.Errorf("NDiffPorts after SIGHUP = %d, want 2", eng.Config().NDiffPorts)
	}
}
