// Package pathset implements the per-MPCB address inventories (C4) and the
// path table built from their cartesian product (C3).
package pathset

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
)

// MaxAddrs is the fixed cap on entries in an address set (§4.2).
const MaxAddrs = 12

// ErrAddressSetFull is returned when an address set is already at MaxAddrs
// (§7 AddressSetFull).
var ErrAddressSetFull = errors.New("pathset: address set full")

// Addr is one address-set entry: (family is implicit in Addr.Is4()/Is6()),
// addr, port, id (§3). id 0 is the implicit ULID and is never stored in a
// remote AddrSet (it is never advertised by the peer either).
type Addr struct {
	ID   uint8
	Addr netip.Addr
	Port uint16
}

// AddrSet is a per-MPCB inventory of local or remote addresses, with stable
// 8-bit ids (§3 "Address entry").
//
// Count is tracked separately from the map so the "send options" path can
// check a lock-free, approximate count before paying for the mutex; per the
// shared-resource policy of §5, the count is committed last on insertion
// and first on removal, so a racing reader never observes a count that
// promises an entry the map doesn't yet have.
type AddrSet struct {
	mu    sync.Mutex
	byID  map[uint8]Addr
	count atomic.Int32
}

// NewAddrSet creates an empty address set.
func NewAddrSet() *AddrSet {
	return &AddrSet{byID: make(map[uint8]Addr)}
}

// Count returns the approximate number of entries without taking the lock.
func (s *AddrSet) Count() int {
	return int(s.count.Load())
}

// List returns a snapshot of all entries.
func (s *AddrSet) List() []Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Addr, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	return out
}

// Get returns the entry for id, if any.
func (s *AddrSet) Get(id uint8) (Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	return a, ok
}

// ApplyAddAddr applies an incoming ADD_ADDR option to the set per the
// update rules of §4.2:
//
//   - id 0 (the peer's ULID) is never stored.
//   - if (addr, port) is already present under any id, it's a no-op.
//   - if id is present with a different address, the address is
//     overwritten (the peer is behind a NAT; our observed address/id pair
//     is authoritative).
//   - if the set is full, the address is dropped with ErrAddressSetFull.
//
// changed reports whether the set actually changed, which the caller uses
// to decide whether to rebuild the path table.
func (s *AddrSet) ApplyAddAddr(id uint8, addr netip.Addr, port uint16) (changed bool, err error) {
	if id == 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.byID {
		if a.Addr == addr && a.Port == port {
			return false, nil
		}
	}
	if _, ok := s.byID[id]; ok {
		s.byID[id] = Addr{ID: id, Addr: addr, Port: port}
		return true, nil
	}
	if len(s.byID) >= MaxAddrs {
		return false, ErrAddressSetFull
	}

	s.byID[id] = Addr{ID: id, Addr: addr, Port: port}
	s.count.Store(int32(len(s.byID)))
	return true, nil
}

// Remove deletes id from the set, if present.
func (s *AddrSet) Remove(id uint8) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	s.count.Store(int32(len(s.byID) - 1)) // committed first, before the delete
	delete(s.byID, id)
	return true
}

// ReplaceAll atomically replaces the entire set, used by local-address
// discovery: the new set is built up off to the side during an interface
// scan and only swapped in — with the count committed last — at the very
// end, so a concurrent "advertise addresses" reader never observes a
// partially-populated scan (§4.2).
func (s *AddrSet) ReplaceAll(addrs []Addr) {
	m := make(map[uint8]Addr, len(addrs))
	for _, a := range addrs {
		m[a.ID] = a
	}
	s.mu.Lock()
	s.byID = m
	s.mu.Unlock()
	s.count.Store(int32(len(m)))
}

// NextID returns the lowest id in [1, 255] not currently in use, for
// sequential local-address id assignment (§4.2).
func (s *AddrSet) NextID() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := 1; id <= 255; id++ {
		if _, ok := s.byID[uint8(id)]; !ok {
			return uint8(id)
		}
	}
	return 0
}
