// Package dsn implements the DSN mapping engine (C6) and meta reassembly
// (C7): translating per-subflow byte ranges into data-sequence-number (DSN)
// ranges and reassembling the resulting fragments into one ordered
// meta-stream.
//
// Sequence numbers (subflow and DSN alike) are kept as extended 64-bit
// counters rather than the 32-bit wire values of §6.1: the option codec
// (pkg/mpopt) is responsible for folding the wire's 32-bit fields onto the
// 64-bit space the same way TCP implementations extend ISN-relative
// counters, so nothing in this package needs to reason about wraparound.
package dsn

// Segment is a meta-segment buffer (§3 "Meta-segment buffer"): a carrier of
// payload bytes plus the cached metadata the mapping engine and reassembler
// need. DataLen is cleared to zero once a received mapping has been
// consumed by Cursor.Apply (§4.4 step 5), distinguishing a not-yet-applied
// received mapping from one derived by extrapolation.
type Segment struct {
	Payload []byte

	// Seq/EndSeq is the subflow sequence range [Seq, EndSeq) this segment
	// occupies.
	Seq, EndSeq uint64

	// DataSeq/EndDataSeq is the DSN range [DataSeq, EndDataSeq) this
	// segment maps to, filled in by Cursor.Apply.
	DataSeq, EndDataSeq uint64

	// MappingPresent indicates the segment itself carried a DSS mapping
	// (as opposed to one derived by linear extrapolation from the
	// subflow's current cursor).
	MappingPresent bool
	DataLen        uint32

	// SubSeq is the raw DSS SubSeq field carried by this segment's mapping,
	// when MappingPresent. It must equal Seq: both name the same subflow
	// byte offset, one from the wire mapping and one from the subflow's own
	// observed stream position. The receive path in pkg/mptcp
	// (MPCB.onData) checks the two agree rather than trusting the wire
	// value outright; Apply does not read this field.
	SubSeq uint64

	// PathMask records which subflows already carry this byte range, by
	// path-index bit (1 << (path_index-1)). Reinjection clones copy the
	// mask from the original and grow it as the clone lands on another
	// subflow's retransmit queue.
	PathMask uint64

	// DSSOff is the offset (in 32-bit words) into the TCP option area of
	// the checksum field, when present; used by the codec's checksum
	// validation (§4.3).
	DSSOff int

	// Fin is a bare subflow FIN (no DATA_FIN). DataFin is a DATA_FIN
	// carried by this segment's DSS, consuming one byte of DSN space
	// immediately following the mapped region (§4.3, §4.4 step 4).
	Fin     bool
	DataFin bool
}

// Len reports the subflow byte length of the segment.
func (s *Segment) Len() uint64 { return s.EndSeq - s.Seq }

// DataLenBytes reports the DSN-space length of the segment, including the
// one byte DATA_FIN consumes when present.
func (s *Segment) DataLenBytes() uint64 { return s.EndDataSeq - s.DataSeq }

// IsPureSubflowFin reports whether this is a zero-payload subflow FIN with
// no DATA_FIN option — handled at subflow level only, without touching DSN
// state (§4.4 step 2).
func (s *Segment) IsPureSubflowFin() bool {
	return s.Fin && !s.DataFin && len(s.Payload) == 0
}
