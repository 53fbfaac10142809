package netenum

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// RealEnumerator implements [Enumerator] using net.Interfaces() /
// net.InterfaceAddrs(). UP/DOWN notifications are synthesized by polling on
// an interval rather than a netlink subscription: per §9 ("no netlink
// dependency is pulled in solely for this"), a dependency purely for UP/DOWN
// events isn't worth it when a poll every PollInterval (2s by default)
// already satisfies the latency the failover path needs.
type RealEnumerator struct {
	// PollInterval is how often Watch rescans interfaces for changes.
	// Defaults to 2s if zero.
	PollInterval time.Duration
}

func (e *RealEnumerator) interval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return 2 * time.Second
}

func (e *RealEnumerator) Enumerate(fn func(addr netip.Addr, scope Scope)) {
	for addr := range currentAddrs() {
		fn(addr, ClassifyAddr(addr))
	}
}

func (e *RealEnumerator) Watch(ctx context.Context, fn func(AddrEvent)) {
	prev := currentAddrs()

	tk := time.NewTicker(e.interval())
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			cur := currentAddrs()
			for a := range cur {
				if _, ok := prev[a]; !ok {
					fn(AddrEvent{Addr: a, Up: true})
				}
			}
			for a := range prev {
				if _, ok := cur[a]; !ok {
					fn(AddrEvent{Addr: a, Up: false})
				}
			}
			prev = cur
		}
	}
}

func currentAddrs() map[netip.Addr]struct{} {
	out := make(map[netip.Addr]struct{})

	ifs, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifs {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ipnet *net.IPNet
			switch v := a.(type) {
			case *net.IPNet:
				ipnet = v
			case *net.IPAddr:
				ipnet = &net.IPNet{IP: v.IP}
			}
			if ipnet == nil {
				continue
			}
			if addr, ok := netip.AddrFromSlice(ipnet.IP); ok {
				out[addr.Unmap()] = struct{}{}
			}
		}
	}
	return out
}

var _ Enumerator = (*RealEnumerator)(nil)
