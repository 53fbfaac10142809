package dsn

import (
	"sort"
	"sync"
)

// Reassembler holds the meta-receive queue (contiguous from rcv_nxt) and the
// meta-out-of-order queue (sorted by data_seq) for one MPCB (C7, §4.5).
// Segments handed to Insert must already have DataSeq/EndDataSeq filled in
// by a subflow's Cursor.Apply.
type Reassembler struct {
	mu sync.Mutex

	initialDSN uint64
	rcvNxt     uint64

	recv []*Segment // contiguous, DSN order, awaiting application read
	ofo  []*Segment // sorted by DataSeq, no two overlap after coalescing

	rcvShutdown bool // peer DATA_FIN has been delivered into recv order
}

// NewReassembler creates a reassembler whose meta stream starts at
// initialDSN.
func NewReassembler(initialDSN uint64) *Reassembler {
	return &Reassembler{initialDSN: initialDSN, rcvNxt: initialDSN}
}

// RcvNxt reports the meta-layer's current rcv_nxt (the next DSN byte not
// yet accounted for in the contiguous receive queue).
func (r *Reassembler) RcvNxt() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rcvNxt
}

// InitialDSN reports the DSN the meta stream began at, for the invariant
// check of §8 ("data_seq >= initial_dsn").
func (r *Reassembler) InitialDSN() uint64 { return r.initialDSN }

// RcvShutdown reports whether the peer's DATA_FIN has reached meta-order
// (§4.5: "handle DATA_FIN (set RCV_SHUTDOWN ...)").
func (r *Reassembler) RcvShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rcvShutdown
}

// Insert applies the per-segment reassembly algorithm of §4.5 to seg.
// dataFinDelivered reports whether this call moved the peer's DATA_FIN into
// meta order (the caller uses this to drive the meta-socket's CLOSE_WAIT
// transition, which is MPCB-layer state this package doesn't own).
func (r *Reassembler) Insert(seg *Segment) (accepted bool, dataFinDelivered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rcvNxt >= seg.EndDataSeq {
		return false, false // pure duplicate
	}

	if r.rcvNxt < seg.DataSeq {
		r.insertOFO(seg)
		return true, false
	}

	dataFinDelivered = r.appendInOrder(seg)
	r.drainOFOLocked()
	return true, dataFinDelivered
}

// appendInOrder appends seg (already known to be at or overlapping rcv_nxt)
// to the contiguous receive queue and advances rcv_nxt. If seg starts
// before rcv_nxt (a partial overlap with an already-delivered prefix), only
// the new tail is kept.
func (r *Reassembler) appendInOrder(seg *Segment) (dataFinDelivered bool) {
	if seg.DataSeq < r.rcvNxt {
		trim := r.rcvNxt - seg.DataSeq
		if trim <= uint64(len(seg.Payload)) {
			seg.Payload = seg.Payload[trim:]
		} else {
			seg.Payload = nil
		}
		seg.DataSeq = r.rcvNxt
	}
	r.recv = append(r.recv, seg)
	r.rcvNxt = seg.EndDataSeq
	if seg.DataFin {
		r.rcvShutdown = true
		dataFinDelivered = true
	}
	return
}

// insertOFO places seg into the out-of-order queue at the first position
// whose next element has a strictly greater DataSeq, coalescing overlaps
// per §4.5.
func (r *Reassembler) insertOFO(seg *Segment) {
	for _, e := range r.ofo {
		if e.DataSeq <= seg.DataSeq && seg.EndDataSeq <= e.EndDataSeq {
			return // fully-contained duplicate
		}
	}

	idx := sort.Search(len(r.ofo), func(i int) bool { return r.ofo[i].DataSeq > seg.DataSeq })

	// a same-start segment that the new one strictly extends is replaced.
	if idx > 0 && r.ofo[idx-1].DataSeq == seg.DataSeq {
		if r.ofo[idx-1].EndDataSeq < seg.EndDataSeq {
			r.ofo[idx-1] = seg
		}
		r.dropCoveredLocked(seg)
		return
	}

	r.ofo = append(r.ofo, nil)
	copy(r.ofo[idx+1:], r.ofo[idx:])
	r.ofo[idx] = seg

	r.dropCoveredLocked(seg)
}

// dropCoveredLocked drops every ofo segment seg fully covers (§4.5: "After
// insertion, drop all subsequent ofo segments that the new one fully
// covers.").
func (r *Reassembler) dropCoveredLocked(seg *Segment) {
	out := r.ofo[:0]
	for _, e := range r.ofo {
		if e != seg && seg.DataSeq <= e.DataSeq && e.EndDataSeq <= seg.EndDataSeq {
			continue
		}
		out = append(out, e)
	}
	r.ofo = out
}

// drainOFOLocked moves every ofo segment now contiguous with rcv_nxt into
// the receive queue, repeating until none remain contiguous.
func (r *Reassembler) drainOFOLocked() {
	for {
		progressed := false
		for i, e := range r.ofo {
			if e.DataSeq > r.rcvNxt {
				continue
			}
			if r.rcvNxt >= e.EndDataSeq {
				r.ofo = append(r.ofo[:i], r.ofo[i+1:]...)
				progressed = true
				break
			}
			r.ofo = append(r.ofo[:i], r.ofo[i+1:]...)
			r.appendInOrder(e)
			progressed = true
			break
		}
		if !progressed {
			return
		}
	}
}

// OFOLen reports the number of segments currently held in the out-of-order
// queue, for metrics and the invariant tests of §8.
func (r *Reassembler) OFOLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ofo)
}

// OFOSegments returns a snapshot of the out-of-order queue in DataSeq
// order, for the ordering/overlap invariant checks of §8.
func (r *Reassembler) OFOSegments() []*Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Segment, len(r.ofo))
	copy(out, r.ofo)
	return out
}

// Recv copies up to len(p) bytes of in-order meta data into p, consuming
// each receive-queue segment once it has been fully read and treating a
// delivered DATA_FIN as a zero-byte terminator once the recv queue is
// otherwise drained. n is the number of bytes copied; eof is true once the
// DATA_FIN segment itself has been reached and consumed with nothing left
// to copy.
func (r *Reassembler) Recv(p []byte) (n int, eof bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n < len(p) && len(r.recv) > 0 {
		seg := r.recv[0]
		if len(seg.Payload) == 0 {
			if seg.DataFin {
				break
			}
			r.recv = r.recv[1:]
			continue
		}
		c := copy(p[n:], seg.Payload)
		n += c
		seg.Payload = seg.Payload[c:]
		if len(seg.Payload) == 0 && !seg.DataFin {
			r.recv = r.recv[1:]
		}
	}
	if n == 0 && len(r.recv) > 0 && len(r.recv[0].Payload) == 0 && r.recv[0].DataFin {
		eof = true
		r.recv = r.recv[1:]
	}
	return
}

// Pending reports the number of bytes currently queued for the application
// to read (meta-receive queue only, not ofo), used for buffer accounting
// (§4.5).
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.recv {
		n += len(s.Payload)
	}
	return n
}
