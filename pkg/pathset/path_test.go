package pathset

import (
	"net/netip"
	"testing"
)

func addrPort(s string) (netip.Addr, uint16) {
	ap := netip.MustParseAddrPort(s)
	return ap.Addr(), ap.Port()
}

func TestPathTableMasterAtIndex1(t *testing.T) {
	la, lp := addrPort("10.0.0.1:1000")
	ra, rp := addrPort("10.0.0.2:2000")
	master := Path{LocalAddr: la, LocalPort: lp, RemoteAddr: ra, RemotePort: rp}

	pt := NewPathTable(master)
	p, ok := pt.Get(MasterIndex)
	if !ok || p.Index != MasterIndex {
		t.Fatalf("master not at index %d: %v, %v", MasterIndex, p, ok)
	}
}

// TestPathTableTwoPathAggregation is end-to-end scenario 1 of §8: client
// addresses {A1,A2}, server address {B1}; the rebuilt table must contain
// the master (A1,B1) plus exactly one extra path (A2,B1).
func TestPathTableTwoPathAggregation(t *testing.T) {
	a1 := netip.MustParseAddr("10.0.0.1")
	a2 := netip.MustParseAddr("10.0.0.2")
	b1 := netip.MustParseAddr("10.0.1.1")

	master := Path{LocalAddr: a1, LocalAddrID: 0, RemoteAddr: b1, RemoteAddrID: 0, LocalPort: 1000, RemotePort: 2000}
	pt := NewPathTable(master)

	local := []Addr{{ID: 0, Addr: a1}, {ID: 1, Addr: a2}}
	remote := []Addr{{ID: 0, Addr: b1}}

	paths := pt.Rebuild(local, remote)
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths (master + 1 extra), got %d: %+v", len(paths), paths)
	}

	var extra *Path
	for i := range paths {
		if paths[i].Index != MasterIndex {
			extra = &paths[i]
		}
	}
	if extra == nil {
		t.Fatal("no extra path found")
	}
	if extra.LocalAddrID != 1 || extra.RemoteAddrID != 0 {
		t.Errorf("extra path = %+v, want loc_id=1 rem_id=0", extra)
	}
}

func TestPathTableReusesIndexAcrossRebuilds(t *testing.T) {
	a1 := netip.MustParseAddr("10.0.0.1")
	a2 := netip.MustParseAddr("10.0.0.2")
	b1 := netip.MustParseAddr("10.0.1.1")
	b2 := netip.MustParseAddr("10.0.1.2")

	master := Path{LocalAddr: a1, RemoteAddr: b1}
	pt := NewPathTable(master)

	local := []Addr{{ID: 0, Addr: a1}, {ID: 1, Addr: a2}}
	remote := []Addr{{ID: 0, Addr: b1}}
	pt.Rebuild(local, remote)

	p, ok := pt.Get(2)
	if !ok {
		t.Fatal("expected path at index 2 after first rebuild")
	}
	firstIndex := p.Index

	// Add a second remote address; (a2,b1) should keep its index, a new
	// path (a1,b2) and (a2,b2) get fresh ones.
	remote = append(remote, Addr{ID: 1, Addr: b2})
	pt.Rebuild(local, remote)

	p2, ok := pt.Get(firstIndex)
	if !ok || p2.LocalAddrID != 1 || p2.RemoteAddrID != 0 {
		t.Fatalf("path at reused index changed: %+v, %v", p2, ok)
	}
}

func TestPathTableIndicesNeverReused(t *testing.T) {
	a1 := netip.MustParseAddr("10.0.0.1")
	a2 := netip.MustParseAddr("10.0.0.2")
	b1 := netip.MustParseAddr("10.0.1.1")

	master := Path{LocalAddr: a1, RemoteAddr: b1}
	pt := NewPathTable(master)

	local := []Addr{{ID: 0, Addr: a1}, {ID: 1, Addr: a2}}
	remote := []Addr{{ID: 0, Addr: b1}}
	pt.Rebuild(local, remote)
	next := pt.NextUnusedIndex()

	// Removing the extra local address and rebuilding must not reuse
	// index 2 for anything new, even though the path at 2 disappears.
	pt.Rebuild([]Addr{{ID: 0, Addr: a1}}, remote)
	pt.Rebuild(local, remote)

	if got := pt.NextUnusedIndex(); got < next {
		t.Errorf("NextUnusedIndex() went backwards: %d < %d", got, next)
	}
}

func TestSeedPortDiversityOnlyOnce(t *testing.T) {
	master := Path{LocalAddr: netip.MustParseAddr("10.0.0.1"), RemoteAddr: netip.MustParseAddr("10.0.1.1"), RemotePort: 2000}
	pt := NewPathTable(master)

	paths := pt.SeedPortDiversity(3)
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}

	again := pt.SeedPortDiversity(5)
	if len(again) != 3 {
		t.Fatalf("second SeedPortDiversity call must be a no-op, got %d paths", len(again))
	}
}
