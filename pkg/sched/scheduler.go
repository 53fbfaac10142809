// Package sched implements the send-side scheduler (C8) that picks the best
// subflow for the next meta-segment, and the reinjection engine (C9) that
// re-queues data onto an alternate subflow when one is declared
// potentially-failed.
package sched

import "time"

// Candidate is the subset of subflow state the scheduler needs to decide
// eligibility and ranking (§4.6). It is a plain value rather than an
// interface over pkg/subflow.Subflow so this package stays free of a
// dependency on subflow transport details; pkg/mptcp adapts its attached
// subflows into Candidates before calling Select.
type Candidate struct {
	PathIndex int

	// Established is true when the subflow's state is ESTABLISHED or
	// CLOSE-WAIT, the two states §4.6 allows scheduling onto.
	Established bool

	PotentiallyFailed bool // pf flag (§3, §4.7)
	InLossRecovery    bool // congestion controller in loss recovery
	CwndFull          bool // congestion window has no room

	SRTT time.Duration
}

// PathMask returns the candidate's path_mask bit (1 << (path_index-1)),
// as used throughout §4 to test membership in a bitmask of path-indices.
func (c Candidate) PathMask() uint64 {
	if c.PathIndex <= 0 || c.PathIndex > 64 {
		return 0
	}
	return 1 << uint(c.PathIndex-1)
}

// Eligible reports whether c may carry a meta-segment whose current
// path_mask is segPathMask, given the MPCB's noneligible mask (§4.6):
// state ESTABLISHED/CLOSE-WAIT, not pf, not masked out, not in loss
// recovery, congestion window has room, and the segment isn't already
// carried by this subflow.
func Eligible(c Candidate, noneligible uint64, segPathMask uint64) bool {
	pm := c.PathMask()
	return c.Established &&
		!c.PotentiallyFailed &&
		noneligible&pm == 0 &&
		!c.InLossRecovery &&
		!c.CwndFull &&
		segPathMask&pm == 0
}

// Select picks a subflow for a meta-segment currently carried by
// segPathMask, given the MPCB's noneligible mask. Per §4.6: if only one
// subflow is attached, it is returned when eligible, otherwise none is
// returned (no fallback search among a singleton set); otherwise the
// minimum-srtt eligible subflow is chosen.
func Select(cands []Candidate, noneligible uint64, segPathMask uint64) (pathIndex int, ok bool) {
	if len(cands) == 1 {
		if Eligible(cands[0], noneligible, segPathMask) {
			return cands[0].PathIndex, true
		}
		return 0, false
	}

	best := -1
	var bestSRTT time.Duration
	for _, c := range cands {
		if !Eligible(c, noneligible, segPathMask) {
			continue
		}
		if best == -1 || c.SRTT < bestSRTT {
			best, bestSRTT = c.PathIndex, c.SRTT
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// Func is the signature every registered scheduler implementation must
// satisfy.
type Func func(cands []Candidate, noneligible uint64, segPathMask uint64) (int, bool)

// registry backs the mptcp_scheduler sysctl of §6.5: a table keyed by name,
// even though (per Open Question 4 of §9) only one entry is registered
// today. The indirection is kept deliberately rather than collapsed to a
// single hardcoded function.
var registry = map[string]Func{
	"minsrtt": Select,
}

// Lookup resolves a scheduler by its mptcp_scheduler name.
func Lookup(name string) (Func, bool) {
	f, ok := registry[name]
	return f, ok
}

// Register adds (or replaces) a named scheduler implementation. Exported so
// a future scheduler can be added without modifying this file, matching the
// spirit of the sysctl-selected table in §6.5/§9.
func Register(name string, fn Func) {
	registry[name] = fn
}
