// Package netenum implements the "network interface enumerator" external
// collaborator of §6.4: it seeds the local address set and streams UP/DOWN
// notifications, without the MPTCP core needing to know about IP-layer
// routing or device enumeration.
package netenum

import (
	"context"
	"net/netip"
)

// Scope classifies an enumerated address the way §4.2 requires local
// address discovery to filter: skip loopback, skip link-local (IPv6) and
// host-scope (IPv4) addresses.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeLoopback
	ScopeLinkLocal // IPv6 link-local or IPv4 host/link-local (169.254.0.0/16)
)

// Usable reports whether an address of this scope should be added to the
// local address set (§4.2).
func (s Scope) Usable() bool { return s == ScopeGlobal }

// ClassifyAddr derives the Scope of addr using net/netip's Is* predicates,
// the same style pkg/cloudflare/iplist.go uses for filtering an address
// list into a matcher.
func ClassifyAddr(addr netip.Addr) Scope {
	a := addr.Unmap()
	switch {
	case a.IsLoopback():
		return ScopeLoopback
	case a.IsLinkLocalUnicast():
		return ScopeLinkLocal
	case a.Is4() && a.As4() != [4]byte{} && (a.As4()[0] == 169 && a.As4()[1] == 254):
		return ScopeLinkLocal // IPv4 APIPA/host-scope range
	default:
		return ScopeGlobal
	}
}

// AddrEvent is a single UP/DOWN notification for a local address (§4.2: "A
// network-interface UP/DOWN notification updates per-subflow pf").
//
// Resolving Open Question 1 of §9 (the source consults only IPv4 interface
// data but iterates all MPCBs including IPv6-only ones): this design
// enumerates and watches IPv4 and IPv6 addresses the same way, with no
// family-conditional skip.
type AddrEvent struct {
	Addr netip.Addr
	Up   bool
}

// Enumerator is the Go form of the §6.4 contract:
// `enumerate_addresses(family, callback(addr, scope, flags))`.
type Enumerator interface {
	// Enumerate calls fn once for every address the enumerator currently
	// knows of, loopback addresses included, passing each one's Scope;
	// filtering by scope is left to fn, which seeds the local address set.
	Enumerate(fn func(addr netip.Addr, scope Scope))

	// Watch streams UP/DOWN notifications to fn until ctx is canceled.
	Watch(ctx context.Context, fn func(AddrEvent))
}
