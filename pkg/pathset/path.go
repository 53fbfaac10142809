package pathset

import (
	"net/netip"
	"sync"
)

// MasterIndex is the reserved path-index of the master subflow (§3).
const MasterIndex = 1

// Path is one (local, remote) address/port pairing a subflow can be opened
// on (§3). A port of 0 matches any port (wildcard).
type Path struct {
	LocalAddr    netip.Addr
	LocalAddrID  uint8
	LocalPort    uint16
	RemoteAddr   netip.Addr
	RemoteAddrID uint8
	RemotePort   uint16
	Index        int
}

func portsCompatible(a, b uint16) bool {
	return a == 0 || b == 0 || a == b
}

// sameEndpoints reports whether p and q name the same (loc_id, rem_id) pair
// with compatible ports, the condition under which a rebuild reuses p's
// existing path-index for q (§4.2).
func sameEndpoints(p, q Path) bool {
	return p.LocalAddrID == q.LocalAddrID &&
		p.RemoteAddrID == q.RemoteAddrID &&
		portsCompatible(p.LocalPort, q.LocalPort) &&
		portsCompatible(p.RemotePort, q.RemotePort)
}

// PathTable enumerates (local-addr-id, remote-addr-id, local-port,
// remote-port) to path-index for one MPCB (C3). Path-index 1 is always the
// master; every other index is assigned monotonically from an internal
// counter and never reused for the MPCB's lifetime, even across rebuilds
// that drop the path that once held it (§3).
type PathTable struct {
	mu     sync.Mutex
	paths  map[int]Path
	nextPI int
	seeded bool
}

// NewPathTable creates an empty path table seeded with the master path at
// index 1.
func NewPathTable(master Path) *PathTable {
	master.Index = MasterIndex
	return &PathTable{
		paths:  map[int]Path{MasterIndex: master},
		nextPI: MasterIndex + 1,
	}
}

// List returns a snapshot of all paths, including the master.
func (t *PathTable) List() []Path {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listLocked()
}

func (t *PathTable) listLocked() []Path {
	out := make([]Path, 0, len(t.paths))
	for _, p := range t.paths {
		out = append(out, p)
	}
	return out
}

// Get returns the path at index, if any.
func (t *PathTable) Get(index int) (Path, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.paths[index]
	return p, ok
}

// Rebuild recomputes the path table as the cartesian product of local ×
// remote, minus the master's own (local, remote) pair, per the default
// multi-address mode of §4.2. A newly-computed path reuses the path-index
// of a matching existing path (same loc_id, rem_id, compatible ports);
// otherwise it is assigned the next unused index. It is a no-op to call
// this in ndiffports mode (use SeedPortDiversity instead).
func (t *PathTable) Rebuild(local, remote []Addr) []Path {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seeded {
		return t.listLocked()
	}

	master := t.paths[MasterIndex]
	existing := t.paths
	next := map[int]Path{MasterIndex: master}

	for _, l := range local {
		for _, r := range remote {
			if l.ID == master.LocalAddrID && r.ID == master.RemoteAddrID {
				continue // the master's own pair
			}
			cand := Path{
				LocalAddr:    l.Addr,
				LocalAddrID:  l.ID,
				LocalPort:    0,
				RemoteAddr:   r.Addr,
				RemoteAddrID: r.ID,
				RemotePort:   r.Port,
			}
			idx := t.findMatchingIndex(existing, cand)
			if idx == 0 {
				idx = t.nextPI
				t.nextPI++
			}
			cand.Index = idx
			next[idx] = cand
		}
	}

	t.paths = next
	return t.listLocked()
}

func (t *PathTable) findMatchingIndex(existing map[int]Path, cand Path) int {
	for idx, p := range existing {
		if idx == MasterIndex {
			continue
		}
		if sameEndpoints(p, cand) {
			return idx
		}
	}
	return 0
}

// SeedPortDiversity seeds the path table for ndiffports > 1 (§4.2): n-1 new
// paths are created, all reusing the master's local and remote addresses,
// with loc_port 0 (kernel-chosen) and rem_port equal to the master's
// remote port. Paths are never regenerated afterwards; calling this more
// than once on the same table is a no-op.
func (t *PathTable) SeedPortDiversity(n int) []Path {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seeded {
		return t.listLocked()
	}
	t.seeded = true

	master := t.paths[MasterIndex]
	for i := 0; i < n-1; i++ {
		idx := t.nextPI
		t.nextPI++
		t.paths[idx] = Path{
			LocalAddr:    master.LocalAddr,
			LocalAddrID:  master.LocalAddrID,
			LocalPort:    0,
			RemoteAddr:   master.RemoteAddr,
			RemoteAddrID: master.RemoteAddrID,
			RemotePort:   master.RemotePort,
			Index:        idx,
		}
	}
	return t.listLocked()
}

// FindByAddrs returns the path whose local and remote addresses match
// exactly, used to resolve a completing JOIN ACK to its path-index (§4.1).
func (t *PathTable) FindByAddrs(local, remote netip.Addr) (Path, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.paths {
		if p.LocalAddr == local && p.RemoteAddr == remote {
			return p, true
		}
	}
	return Path{}, false
}

// NextUnusedIndex reports the path-index the next call that needs one
// (Rebuild or SeedPortDiversity) would assign, for tests and diagnostics.
func (t *PathTable) NextUnusedIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextPI
}
