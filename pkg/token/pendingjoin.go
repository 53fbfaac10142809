package token

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
)

// PeerKey is the (remote-addr, remote-port) 4-tuple a pending JOIN request
// is indexed by in the global table (§3).
type PeerKey struct {
	Peer netip.AddrPort
}

// PendingJoin is a half-open JOIN request descriptor (§3): it holds enough
// state to validate and complete the 3-way handshake and is referenced from
// both a per-MPCB SynTable and the global PendingJoinTable.
type PendingJoin struct {
	Key          PeerKey
	MPCBToken    uint32
	LocalISN     uint32
	PeerISN      uint32
	RemoteAddrID uint8
	Deadline     time.Time

	// LocalNonce and PeerNonce are the random values exchanged on the
	// SYN/SYN-ACK, kept around to verify the completing ACK's HMAC
	// without re-deriving them (§4.1, §6.1).
	LocalNonce uint32
	PeerNonce  uint32

	removed atomic.Bool
	syn     *SynTable
	global  *PendingJoinTable
}

// NewPendingJoin creates a pending-JOIN request and inserts it into both syn
// (the owning MPCB's local table) and global (the process-wide table) so
// that removing it from either side removes it from both (§4.1).
func NewPendingJoin(syn *SynTable, global *PendingJoinTable, key PeerKey, mpcbToken uint32, localISN, peerISN uint32, remoteAddrID uint8, deadline time.Time, localNonce, peerNonce uint32) *PendingJoin {
	pj := &PendingJoin{
		Key:          key,
		MPCBToken:    mpcbToken,
		LocalISN:     localISN,
		PeerISN:      peerISN,
		RemoteAddrID: remoteAddrID,
		Deadline:     deadline,
		LocalNonce:   localNonce,
		PeerNonce:    peerNonce,
		syn:          syn,
		global:       global,
	}
	syn.insert(pj)
	global.insert(pj)
	return pj
}

// Remove removes pj from both tables it is indexed in. It is idempotent
// (§4.1, §8): calling it more than once, or concurrently from both the
// SynTable and the PendingJoinTable removal paths, performs the underlying
// delete exactly once.
func (pj *PendingJoin) Remove() {
	if !pj.removed.CompareAndSwap(false, true) {
		return
	}
	if pj.syn != nil {
		pj.syn.delete(pj)
	}
	if pj.global != nil {
		pj.global.delete(pj)
	}
}

// Expired reports whether pj's handshake timeout (shares TCP's SYN timeout,
// per §5) has passed as of now.
func (pj *PendingJoin) Expired(now time.Time) bool {
	return !pj.Deadline.IsZero() && now.After(pj.Deadline)
}

// SynTable is a single MPCB's local index of its own pending-JOIN requests,
// keyed by peer 4-tuple (§3: "indexed ... locally (per-MPCB syn-table by
// peer hash)").
type SynTable struct {
	mu     sync.Mutex
	byPeer map[PeerKey]*PendingJoin
}

// NewSynTable creates an empty per-MPCB pending-JOIN table.
func NewSynTable() *SynTable {
	return &SynTable{byPeer: make(map[PeerKey]*PendingJoin)}
}

func (s *SynTable) insert(pj *PendingJoin) {
	s.mu.Lock()
	s.byPeer[pj.Key] = pj
	s.mu.Unlock()
}

func (s *SynTable) delete(pj *PendingJoin) {
	s.mu.Lock()
	if cur, ok := s.byPeer[pj.Key]; ok && cur == pj {
		delete(s.byPeer, pj.Key)
	}
	s.mu.Unlock()
}

// Find looks up a pending JOIN by peer 4-tuple.
func (s *SynTable) Find(key PeerKey) (*PendingJoin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pj, ok := s.byPeer[key]
	return pj, ok
}

// RemoveAll removes every pending JOIN in this table (both from here and
// from whatever global table each entry is also indexed in). Used by
// Registry.Remove when an MPCB is torn down.
func (s *SynTable) RemoveAll() {
	s.mu.Lock()
	all := make([]*PendingJoin, 0, len(s.byPeer))
	for _, pj := range s.byPeer {
		all = append(all, pj)
	}
	s.mu.Unlock()

	for _, pj := range all {
		pj.Remove()
	}
}

// PendingJoinTable is the process-wide index of pending JOIN requests keyed
// by peer 4-tuple (§4.1 C2). Access is protected by a lock that must be
// taken before the corresponding MPCB's master-subflow lock when both are
// needed (§5); in Go terms that's a plain Mutex, since there is no
// equivalent to disabling soft-interrupts from user code.
type PendingJoinTable struct {
	mu     sync.Mutex
	byPeer map[PeerKey]*PendingJoin
}

// NewPendingJoinTable creates an empty global pending-join table.
func NewPendingJoinTable() *PendingJoinTable {
	return &PendingJoinTable{byPeer: make(map[PeerKey]*PendingJoin)}
}

func (t *PendingJoinTable) insert(pj *PendingJoin) {
	t.mu.Lock()
	t.byPeer[pj.Key] = pj
	t.mu.Unlock()
}

func (t *PendingJoinTable) delete(pj *PendingJoin) {
	t.mu.Lock()
	if cur, ok := t.byPeer[pj.Key]; ok && cur == pj {
		delete(t.byPeer, pj.Key)
	}
	t.mu.Unlock()
}

// Find looks up a pending JOIN by exact peer 4-tuple match (§4.1).
func (t *PendingJoinTable) Find(key PeerKey) (*PendingJoin, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pj, ok := t.byPeer[key]
	return pj, ok
}

// Len reports the number of pending JOINs, for metrics.
func (t *PendingJoinTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byPeer)
}

// ReapExpired removes and returns every pending JOIN whose deadline has
// passed as of now (§5: "Pending-JOIN requests expire after an initial
// timeout").
func (t *PendingJoinTable) ReapExpired(now time.Time) []*PendingJoin {
	t.mu.Lock()
	var expired []*PendingJoin
	for _, pj := range t.byPeer {
		if pj.Expired(now) {
			expired = append(expired, pj)
		}
	}
	t.mu.Unlock()

	for _, pj := range expired {
		pj.Remove()
	}
	return expired
}
