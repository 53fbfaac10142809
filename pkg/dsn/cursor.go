package dsn

import (
	"errors"
	"sync"
)

// ErrMappingViolation is returned when a segment's subflow-sequence range
// falls outside the subflow's current mapping cursor: the stream is
// corrupted or the peer is misbehaving (§4.4 step 3, §7 MappingViolation).
// It is fatal for the MPCB.
var ErrMappingViolation = errors.New("dsn: segment outside mapping cursor")

// Order classifies where a mapped segment lands relative to the meta
// receive queue (§4.4 step 6).
type Order int

const (
	// OrderDeliverable means the segment's DSN range includes the
	// meta-layer's copied_seq/rcv_nxt: it is in meta-order.
	OrderDeliverable Order = 1
	// OrderOutOfOrder means the segment is subflow-ordered but arrived
	// ahead of the meta-stream's current position.
	OrderOutOfOrder Order = 0
)

// Cursor is a subflow's mapping_cursor (§3, §4.4): the window of subflow
// bytes described by the most recently received DSS mapping, used to
// assign DSN to segments that don't carry their own mapping.
type Cursor struct {
	mu sync.Mutex

	dataSeq uint64
	subSeq  uint64
	dataLen uint64
	valid   bool

	// dataFinAt, if finPending, is the DSN at which the peer's current
	// mapping DATA_FIN lands (map_data_seq + map_data_len), used by step 4
	// to decide whether a segment's tail should consume the DATA_FIN byte.
	dataFinAt  uint64
	finPending bool
}

// SetMapping installs a newly received DSS mapping as the active cursor
// (§4.4 step 1). If the mapping carries DATA_FIN, dataFin lands one byte
// past the mapped region's end.
func (c *Cursor) SetMapping(dataSeq, subSeq, dataLen uint64, dataFin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataSeq, c.subSeq, c.dataLen = dataSeq, subSeq, dataLen
	c.valid = true
	c.finPending = dataFin
	if dataFin {
		c.dataFinAt = dataSeq + dataLen
	}
}

// Snapshot returns the cursor's current (map_data_seq, map_sub_seq,
// map_data_len), for diagnostics and tests.
func (c *Cursor) Snapshot() (dataSeq, subSeq, dataLen uint64, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataSeq, c.subSeq, c.dataLen, c.valid
}

// Apply implements the per-segment mapping algorithm of §4.4 steps 1 and
// 3-5; it does not filter out pure subflow FINs (step 2), which the caller
// drops before calling Apply. If
// seg itself carries a DSS mapping (seg.MappingPresent), the cursor is
// replaced with it first. The segment's DataSeq/EndDataSeq are then
// computed by linear extrapolation from the (possibly just-replaced)
// cursor, DATA_FIN is folded into EndDataSeq when it lands at the segment's
// tail, and seg.DataLen is cleared to mark the mapping consumed.
//
// Apply does not classify the segment against the meta receive queue (step
// 6); the caller (the reassembler) does that once it holds the meta lock,
// since that requires comparing against copied_seq/rcv_nxt.
func (c *Cursor) Apply(seg *Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seg.MappingPresent {
		c.dataSeq, c.subSeq, c.dataLen = seg.DataSeq, seg.Seq, uint64(seg.DataLen)
		c.valid = true
		c.finPending = seg.DataFin
		if seg.DataFin {
			c.dataFinAt = c.dataSeq + c.dataLen
		}
	}

	if !c.valid {
		return ErrMappingViolation
	}

	finExtra := uint64(0)
	if c.finPending {
		finExtra = 1
	}
	lo, hi := c.subSeq, c.subSeq+c.dataLen+finExtra
	if seg.Seq < lo || seg.EndSeq > hi {
		return ErrMappingViolation
	}

	dataSeq := c.dataSeq + (seg.Seq - c.subSeq)
	endDataSeq := dataSeq + seg.Len()

	if c.finPending && c.dataFinAt == dataSeq+seg.Len() && seg.DataFin {
		endDataSeq++
	}

	seg.DataSeq = dataSeq
	seg.EndDataSeq = endDataSeq
	seg.DataLen = 0 // consumed (step 5)
	return nil
}
