// Package subflow defines the Go form of the per-path TCP subflow contract
// (§6.3) the MPTCP core consumes from an external collaborator, plus a
// real net.TCPConn-backed implementation of it.
//
// The per-subflow TCP state machine (congestion control, retransmission
// timers, single-flow reassembly) is explicitly out of scope (§1): this
// package only has to expose the handful of calls and callbacks the core
// needs, not reimplement TCP.
package subflow

import (
	"context"
	"time"
)

// State is a subflow's TCP-like connection state. The meta-socket state of
// §4.8 is kept separately by the MPCB and is not derived from it.
type State int

const (
	StateClosed State = iota
	StateSynSent
	StateSynRecv
	StateEstablished
	StateCloseWait
	StateFinWait1
	StateFinWait2
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRecv:
		return "SYN_RECV"
	case StateEstablished:
		return "ESTABLISHED"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// SegFlags carries the control bits of a segment delivery (§3 "Meta-segment
// buffer").
type SegFlags uint8

const (
	FlagFin SegFlags = 1 << iota
	FlagSyn
	FlagAck
)

// Stats is the readable subset of subflow state §6.3 requires: srtt,
// snd_cwnd, in_flight, rcv_mss, plus the buffer-accounting fields §4.5
// sums into the meta-socket equivalents (rcv_ssthresh, window_clamp,
// rcvbuf, sndbuf).
type Stats struct {
	SRTT     time.Duration
	SndCwnd  int
	InFlight int
	RcvMSS   int

	RcvSsthresh int
	WindowClamp int
	RcvBuf      int
	SndBuf      int
}

// Segment is one payload delivery from a subflow to the option codec and
// reassembler, carrying the raw MPTCP options observed alongside it.
type Segment struct {
	Payload []byte
	Seq     uint64
	Flags   SegFlags
	Options []byte // raw encoded MPTCP TCP options, as seen on the wire
}

// Subflow is the Go form of the §6.3 contract. Unlike the kernel's direct
// function-pointer callbacks, registration is explicit (SetDataReady,
// SetAckAdvance) since Go code is the caller here, not an interrupt
// handler.
type Subflow interface {
	// Send transmits payload with the given control flags and
	// MPTCP options, blocking until the data has been handed to the
	// underlying transport or ctx is done.
	Send(ctx context.Context, payload []byte, flags SegFlags, options []byte) error

	Close() error
	Reset() error

	State() State
	Stats() Stats

	// SetDataReady registers the callback invoked on every payload
	// delivery (§6.3: "must call back into the MPCB's 'data ready' on
	// every payload delivery").
	SetDataReady(func(Segment))

	// SetAckAdvance registers the callback invoked on every advance of
	// snd_una (§6.3).
	SetAckAdvance(func(sndUna uint64))
}
