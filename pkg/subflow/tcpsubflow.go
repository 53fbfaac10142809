package subflow

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// wire envelope: the per-subflow TCP state machine and its option space are
// out of scope (§1); Go's net.TCPConn doesn't expose the kernel's TCP
// option bytes for us to ride MPTCP options on directly (that would need a
// raw-socket/BSD-syscall TCP implementation, which is exactly the
// reimplementation §1 excludes). TCPSubflow instead frames each delivery
// with a small envelope that carries the codec's already-encoded MPTCP
// options alongside the payload over the plain TCP byte stream:
//
//	1 byte    flags
//	2 bytes   len(options), big-endian
//	N bytes   options
//	4 bytes   len(payload), big-endian
//	M bytes   payload
const envelopeMaxOptions = 1 << 16
const envelopeMaxPayload = 1 << 24

// TCPSubflow is a [Subflow] backed by a real *net.TCPConn.
type TCPSubflow struct {
	conn *net.TCPConn

	writeMu sync.Mutex

	state atomic.Int32 // State

	seq    atomic.Uint64 // next subflow sequence number to assign on send
	rcvSeq atomic.Uint64 // next subflow sequence number expected on receive

	sndUna   atomic.Uint64
	srtt     atomic.Int64 // time.Duration
	inFlight atomic.Int64
	cwnd     atomic.Int64
	rcvMSS   atomic.Int64

	rcvSsthresh atomic.Int64
	windowClamp atomic.Int64
	rcvBuf      atomic.Int64
	sndBuf      atomic.Int64

	mu        sync.Mutex
	dataReady func(Segment)
	ackAdv    func(uint64)

	closeOnce sync.Once
	readDone  chan struct{}
}

// defaultKeepAlive is the interval TCPSubflow enables keepalive probing at,
// used to detect a dead path before application data would otherwise time
// out. A dead path surfaces as a read error on the subflow; it does not set
// the potentially-failed (pf) flag of §4.7.
const defaultKeepAlive = 15 * time.Second

// SetKeepAlive enables TCP keepalive with the given interval on conn's
// underlying socket.
func SetKeepAlive(conn *net.TCPConn, interval time.Duration) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	return conn.SetKeepAlivePeriod(interval)
}

// NewTCPSubflow wraps conn as an established subflow and starts its receive
// loop in a background goroutine. initialSeq is the subflow's initial
// sequence number (ISN), used to give Segment.Seq meaning relative to the
// mapping cursor.
func NewTCPSubflow(conn *net.TCPConn, initialSeq uint64) *TCPSubflow {
	_ = SetKeepAlive(conn, defaultKeepAlive) // best-effort; not every transport supports it
	s := &TCPSubflow{conn: conn, readDone: make(chan struct{})}
	s.state.Store(int32(StateEstablished))
	s.seq.Store(initialSeq)
	s.rcvSeq.Store(initialSeq)
	s.srtt.Store(int64(100 * time.Millisecond))
	s.cwnd.Store(64 * 1024)
	s.rcvMSS.Store(1460)
	// Linux's net.core.rmem_default/wmem_default (212992 bytes) stands in
	// for the real socket buffer sizes, since net.TCPConn exposes no
	// portable getter for them.
	const defaultBufSize = 212992
	s.rcvSsthresh.Store(defaultBufSize)
	s.windowClamp.Store(defaultBufSize)
	s.rcvBuf.Store(defaultBufSize)
	s.sndBuf.Store(defaultBufSize)
	go s.readLoop()
	return s
}

func (s *TCPSubflow) SetDataReady(fn func(Segment)) {
	s.mu.Lock()
	s.dataReady = fn
	s.mu.Unlock()
}

func (s *TCPSubflow) SetAckAdvance(fn func(uint64)) {
	s.mu.Lock()
	s.ackAdv = fn
	s.mu.Unlock()
}

// Send writes one framed segment to the wire, assigning it the next
// subflow sequence number.
func (s *TCPSubflow) Send(ctx context.Context, payload []byte, flags SegFlags, options []byte) error {
	if len(options) > envelopeMaxOptions {
		return fmt.Errorf("subflow: options too large (%d bytes)", len(options))
	}
	if len(payload) > envelopeMaxPayload {
		return fmt.Errorf("subflow: payload too large (%d bytes)", len(payload))
	}

	hdr := make([]byte, 1+2+len(options)+4)
	hdr[0] = byte(flags)
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(options)))
	copy(hdr[3:], options)
	binary.BigEndian.PutUint32(hdr[3+len(options):], uint32(len(payload)))

	if dl, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(dl)
		defer s.conn.SetWriteDeadline(time.Time{})
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.Write(hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := s.conn.Write(payload); err != nil {
			return err
		}
	}

	s.seq.Add(uint64(len(payload)))
	s.inFlight.Add(int64(len(payload)))
	return nil
}

func (s *TCPSubflow) readLoop() {
	defer close(s.readDone)
	r := s.conn
	hdr := make([]byte, 3)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			s.onReadError(err)
			return
		}
		flags := SegFlags(hdr[0])
		optLen := binary.BigEndian.Uint16(hdr[1:])

		options := make([]byte, optLen)
		if optLen > 0 {
			if _, err := io.ReadFull(r, options); err != nil {
				s.onReadError(err)
				return
			}
		}

		var plenBuf [4]byte
		if _, err := io.ReadFull(r, plenBuf[:]); err != nil {
			s.onReadError(err)
			return
		}
		plen := binary.BigEndian.Uint32(plenBuf[:])
		if plen > envelopeMaxPayload {
			s.onReadError(errors.New("subflow: peer sent an oversized payload length"))
			return
		}

		payload := make([]byte, plen)
		if plen > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				s.onReadError(err)
				return
			}
		}

		seq := s.rcvSeq.Load()
		s.rcvSeq.Add(uint64(plen))

		s.mu.Lock()
		dr := s.dataReady
		s.mu.Unlock()
		if dr != nil {
			dr(Segment{Payload: payload, Seq: seq, Flags: flags, Options: options})
		}

		if flags&FlagFin != 0 {
			s.setState(StateCloseWait)
		}
	}
}

func (s *TCPSubflow) onReadError(err error) {
	s.setState(StateClosed)
}

func (s *TCPSubflow) setState(st State) { s.state.Store(int32(st)) }

// AdvanceSndUna records a subflow-level ACK advance and notifies the
// registered callback (§6.3: "must call back into the MPCB's 'ack' on
// every advance of snd_una").
func (s *TCPSubflow) AdvanceSndUna(sndUna uint64) {
	prev := s.sndUna.Swap(sndUna)
	if sndUna > prev {
		s.inFlight.Add(-int64(sndUna - prev))
	}
	s.mu.Lock()
	cb := s.ackAdv
	s.mu.Unlock()
	if cb != nil {
		cb(sndUna)
	}
}

// UpdateSRTT folds a fresh RTT sample into the subflow's smoothed RTT
// estimate, used by the scheduler (§4.6) to rank eligible subflows.
// Congestion control proper is out of scope (§1); this is only kept alive
// to feed the scheduler's min-srtt ranking.
func (s *TCPSubflow) UpdateSRTT(sample time.Duration) {
	const alpha = 8 // 1/8 smoothing, matching the classic TCP SRTT EWMA
	prev := time.Duration(s.srtt.Load())
	next := prev + (sample-prev)/alpha
	s.srtt.Store(int64(next))
}

func (s *TCPSubflow) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setState(StateFinWait1)
		err = s.conn.Close()
	})
	return err
}

func (s *TCPSubflow) Reset() error {
	s.setState(StateClosed)
	s.conn.SetLinger(0)
	return s.conn.Close()
}

func (s *TCPSubflow) State() State { return State(s.state.Load()) }

func (s *TCPSubflow) Stats() Stats {
	return Stats{
		SRTT:     time.Duration(s.srtt.Load()),
		SndCwnd:  int(s.cwnd.Load()),
		InFlight: int(s.inFlight.Load()),
		RcvMSS:   int(s.rcvMSS.Load()),

		RcvSsthresh: int(s.rcvSsthresh.Load()),
		WindowClamp: int(s.windowClamp.Load()),
		RcvBuf:      int(s.rcvBuf.Load()),
		SndBuf:      int(s.sndBuf.Load()),
	}
}

var _ Subflow = (*TCPSubflow)(nil)
