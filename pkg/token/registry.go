// Package token implements the process-wide token registry (C1) and the
// pending-JOIN tables (C2) that let a server correlate an incoming JOIN's
// token with its MPCB, and a peer 4-tuple with its in-flight JOIN request.
package token

import (
	"errors"
	"sync"
)

// ErrTokenCollision is returned by Registry.Insert when the token is
// already owned by another MPCB. Per §4.1, the registry requires only
// process-wide uniqueness at any point in time; the caller is expected to
// pick a different token and retry.
var ErrTokenCollision = errors.New("token: collision")

// MPCB is the subset of *mptcp.MPCB the registry needs in order to manage
// lookup and cross-table pending-JOIN cleanup, without this package
// importing mptcp (which imports token).
type MPCB interface {
	// Acquire increments the reference that keeps the MPCB alive across a
	// Find, mirroring the refcount bump the kernel does on the master
	// subflow when a token lookup succeeds.
	Acquire()

	// SynTable returns this MPCB's local per-connection pending-JOIN
	// table, or nil if it doesn't have one.
	SynTable() *SynTable
}

// Registry maps a 32-bit connection token to its MPCB (C1). It is backed by
// a single map guarded by a RWMutex, matching the reader-writer lock called
// for in §5.
type Registry struct {
	mu      sync.RWMutex
	byToken map[uint32]MPCB
}

// NewRegistry creates an empty token registry.
func NewRegistry() *Registry {
	return &Registry{byToken: make(map[uint32]MPCB)}
}

// Insert adds m under token. It fails with ErrTokenCollision if the token is
// already in use.
func (r *Registry) Insert(tok uint32, m MPCB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[tok]; ok {
		return ErrTokenCollision
	}
	r.byToken[tok] = m
	return nil
}

// Find returns the MPCB registered for tok, if any, and increments its
// refcount so it cannot be freed until the caller is done with it.
func (r *Registry) Find(tok uint32) (MPCB, bool) {
	r.mu.RLock()
	m, ok := r.byToken[tok]
	r.mu.RUnlock()
	if ok {
		m.Acquire()
	}
	return m, ok
}

// Remove deletes the MPCB registered under tok, if any, and removes every
// pending-JOIN request hanging off it from the global pending-join table
// (§4.1). It is a no-op if tok is not registered.
func (r *Registry) Remove(tok uint32) {
	r.mu.Lock()
	m, ok := r.byToken[tok]
	if ok {
		delete(r.byToken, tok)
	}
	r.mu.Unlock()

	if ok {
		if st := m.SynTable(); st != nil {
			st.RemoveAll()
		}
	}
}

// Len reports the number of registered tokens, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}
