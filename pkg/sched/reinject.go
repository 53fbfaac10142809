package sched

import (
	"sync"

	"github.com/r2northstar/mptcpd/pkg/dsn"
)

// ReinjectionQueue is the MPCB's per-connection reinjection queue (C9, §4.7).
// The scheduler prefers this queue over the regular meta send queue.
type ReinjectionQueue struct {
	mu   sync.Mutex
	segs []*dsn.Segment
}

// Push enqueues seg, tail first.
func (q *ReinjectionQueue) Push(seg *dsn.Segment) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.segs = append(q.segs, seg)
}

// Pop removes and returns the head of the queue, if any.
func (q *ReinjectionQueue) Pop() (*dsn.Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.segs) == 0 {
		return nil, false
	}
	s := q.segs[0]
	q.segs = q.segs[1:]
	return s, true
}

// Len reports the number of segments waiting in the reinjection queue.
func (q *ReinjectionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.segs)
}

// Reinject clones every segment in retransmitQueue whose path_mask does not
// yet cover all of eligibleMask into q (§4.7). A clone's path_mask is
// copied from the original; the original segment is left untouched on the
// failed subflow's own retransmit queue, since it may still be delivered
// there and the meta-reassembler will drop a late duplicate arrival.
func Reinject(q *ReinjectionQueue, retransmitQueue []*dsn.Segment, eligibleMask uint64) (cloned int) {
	for _, s := range retransmitQueue {
		if s.PathMask&eligibleMask == eligibleMask {
			continue
		}
		clone := *s
		clone.Payload = append([]byte(nil), s.Payload...)
		q.Push(&clone)
		cloned++
	}
	return
}
