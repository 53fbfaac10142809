package netenum

import (
	"context"
	"net/netip"
	"sync"
)

// FakeEnumerator is an [Enumerator] test double: its initial set seeds
// Enumerate, and Inject lets a test script UP/DOWN events to any active
// Watch call.
type FakeEnumerator struct {
	mu      sync.Mutex
	initial []netip.Addr
	subs    map[chan AddrEvent]struct{}
}

// NewFakeEnumerator creates a fake pre-seeded with initial, the set
// Enumerate will report.
func NewFakeEnumerator(initial ...netip.Addr) *FakeEnumerator {
	return &FakeEnumerator{initial: initial, subs: make(map[chan AddrEvent]struct{})}
}

func (f *FakeEnumerator) Enumerate(fn func(addr netip.Addr, scope Scope)) {
	f.mu.Lock()
	addrs := append([]netip.Addr(nil), f.initial...)
	f.mu.Unlock()
	for _, a := range addrs {
		fn(a, ClassifyAddr(a))
	}
}

func (f *FakeEnumerator) Watch(ctx context.Context, fn func(AddrEvent)) {
	c := make(chan AddrEvent, 16)
	f.mu.Lock()
	f.subs[c] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.subs, c)
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c:
			fn(e)
		}
	}
}

// Inject delivers ev to every active Watch call.
func (f *FakeEnumerator) Inject(ev AddrEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.subs {
		select {
		case c <- ev:
		default:
		}
	}
}

var _ Enumerator = (*FakeEnumerator)(nil)
