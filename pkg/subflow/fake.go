package subflow

import (
	"context"
	"sync"
)

// Sent is one recorded call to FakeSubflow.Send, for test assertions.
type Sent struct {
	Payload []byte
	Flags   SegFlags
	Options []byte
}

// FakeSubflow is a [Subflow] test double: Send appends to Sends instead of
// touching a network, and Deliver feeds a Segment to the registered
// data-ready callback as if it had just arrived on the wire.
type FakeSubflow struct {
	mu        sync.Mutex
	state     State
	stats     Stats
	sends     []Sent
	dataReady func(Segment)
	ackAdv    func(uint64)
	closed    bool
	reset     bool
}

// NewFakeSubflow creates a fake already in StateEstablished.
func NewFakeSubflow() *FakeSubflow {
	return &FakeSubflow{state: StateEstablished}
}

func (f *FakeSubflow) Send(ctx context.Context, payload []byte, flags SegFlags, options []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, Sent{
		Payload: append([]byte(nil), payload...),
		Flags:   flags,
		Options: append([]byte(nil), options...),
	})
	return nil
}

func (f *FakeSubflow) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = StateFinWait1
	return nil
}

func (f *FakeSubflow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = true
	f.state = StateClosed
	return nil
}

func (f *FakeSubflow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeSubflow) SetState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *FakeSubflow) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *FakeSubflow) SetStats(s Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = s
}

func (f *FakeSubflow) SetDataReady(fn func(Segment)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataReady = fn
}

func (f *FakeSubflow) SetAckAdvance(fn func(uint64)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackAdv = fn
}

// Deliver invokes the registered data-ready callback with seg, simulating
// an arrival from the peer.
func (f *FakeSubflow) Deliver(seg Segment) {
	f.mu.Lock()
	fn := f.dataReady
	f.mu.Unlock()
	if fn != nil {
		fn(seg)
	}
}

// AdvanceAck invokes the registered ack-advance callback with sndUna.
func (f *FakeSubflow) AdvanceAck(sndUna uint64) {
	f.mu.Lock()
	fn := f.ackAdv
	f.mu.Unlock()
	if fn != nil {
		fn(sndUna)
	}
}

// Sends returns a snapshot of every call made to Send so far.
func (f *FakeSubflow) Sends() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sends...)
}

// Closed reports whether Close has been called.
func (f *FakeSubflow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// WasReset reports whether Reset has been called.
func (f *FakeSubflow) WasReset() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reset
}

var _ Subflow = (*FakeSubflow)(nil)
