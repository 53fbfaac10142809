package netenum

import (
	"context"
	"net/netip"
	"testing"
	"time"
)

func TestClassifyAddr(t *testing.T) {
	cases := []struct {
		addr string
		want Scope
	}{
		{"127.0.0.1", ScopeLoopback},
		{"::1", ScopeLoopback},
		{"169.254.1.1", ScopeLinkLocal},
		{"fe80::1", ScopeLinkLocal},
		{"10.0.0.1", ScopeGlobal},
		{"2001:db8::1", ScopeGlobal},
	}
	for _, c := range cases {
		got := ClassifyAddr(netip.MustParseAddr(c.addr))
		if got != c.want {
			t.Errorf("ClassifyAddr(%s) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestFakeEnumerator(t *testing.T) {
	a1 := netip.MustParseAddr("10.0.0.1")
	f := NewFakeEnumerator(a1)

	var seen []netip.Addr
	f.Enumerate(func(addr netip.Addr, scope Scope) { seen = append(seen, addr) })
	if len(seen) != 1 || seen[0] != a1 {
		t.Fatalf("Enumerate: got %v", seen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan AddrEvent, 4)
	go f.Watch(ctx, func(e AddrEvent) { events <- e })

	// give the watch goroutine a moment to subscribe
	time.Sleep(10 * time.Millisecond)

	a2 := netip.MustParseAddr("10.0.0.2")
	f.Inject(AddrEvent{Addr: a2, Up: true})

	select {
	case e := <-events:
		if e.Addr != a2 || !e.Up {
			t.Fatalf("got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for injected event")
	}
}
