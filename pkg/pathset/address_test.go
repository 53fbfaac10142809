package pathset

import (
	"net/netip"
	"testing"
)

func TestApplyAddAddrIgnoresULID(t *testing.T) {
	s := NewAddrSet()
	changed, err := s.ApplyAddAddr(0, netip.MustParseAddr("10.0.0.1"), 1000)
	if err != nil || changed {
		t.Fatalf("ApplyAddAddr(id=0) = (%v, %v), want (false, nil)", changed, err)
	}
	if s.Count() != 0 {
		t.Errorf("ULID should never be stored, Count()=%d", s.Count())
	}
}

func TestApplyAddAddrIdempotent(t *testing.T) {
	s := NewAddrSet()
	addr := netip.MustParseAddr("10.0.0.2")

	changed, err := s.ApplyAddAddr(3, addr, 1000)
	if err != nil || !changed {
		t.Fatalf("first insert: (%v, %v)", changed, err)
	}
	changed, err = s.ApplyAddAddr(3, addr, 1000)
	if err != nil || changed {
		t.Fatalf("duplicate ADD_ADDR should be a no-op: (%v, %v)", changed, err)
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}

// TestApplyAddAddrNATUpdate is end-to-end scenario 6 of §8: id=3 is
// re-advertised with a different source address and the stored entry is
// overwritten in place, without creating a duplicate.
func TestApplyAddAddrNATUpdate(t *testing.T) {
	s := NewAddrSet()
	x := netip.MustParseAddr("203.0.113.5")
	y := netip.MustParseAddr("203.0.113.9")

	if _, err := s.ApplyAddAddr(3, x, 0); err != nil {
		t.Fatal(err)
	}
	changed, err := s.ApplyAddAddr(3, y, 0)
	if err != nil || !changed {
		t.Fatalf("NAT update: (%v, %v)", changed, err)
	}

	got, ok := s.Get(3)
	if !ok || got.Addr != y {
		t.Fatalf("Get(3) = %v, %v, want addr %v", got, ok, y)
	}
	if s.Count() != 1 {
		t.Errorf("NAT update must not create a duplicate entry, Count()=%d", s.Count())
	}
}

func TestApplyAddAddrFull(t *testing.T) {
	s := NewAddrSet()
	for i := 1; i <= MaxAddrs; i++ {
		addr := netip.AddrFrom4([4]byte{10, 0, 0, byte(i)})
		if _, err := s.ApplyAddAddr(uint8(i), addr, 0); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}
	_, err := s.ApplyAddAddr(200, netip.MustParseAddr("10.0.0.200"), 0)
	if err != ErrAddressSetFull {
		t.Fatalf("expected ErrAddressSetFull, got %v", err)
	}
}

func TestReplaceAllCommitsCountLast(t *testing.T) {
	s := NewAddrSet()
	addrs := []Addr{
		{ID: 1, Addr: netip.MustParseAddr("10.0.0.1")},
		{ID: 2, Addr: netip.MustParseAddr("10.0.0.2")},
	}
	s.ReplaceAll(addrs)
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}
	if got := s.List(); len(got) != 2 {
		t.Errorf("List() returned %d entries, want 2", len(got))
	}
}

func TestNextID(t *testing.T) {
	s := NewAddrSet()
	if id := s.NextID(); id != 1 {
		t.Fatalf("NextID() on empty set = %d, want 1", id)
	}
	s.ApplyAddAddr(1, netip.MustParseAddr("10.0.0.1"), 0)
	if id := s.NextID(); id != 2 {
		t.Fatalf("NextID() = %d, want 2", id)
	}
}
