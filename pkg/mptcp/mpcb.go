package mptcp

import (
	"context"
	"io"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/mptcpd/pkg/dsn"
	"github.com/r2northstar/mptcpd/pkg/mpopt"
	"github.com/r2northstar/mptcpd/pkg/pathset"
	"github.com/r2northstar/mptcpd/pkg/sched"
	"github.com/r2northstar/mptcpd/pkg/subflow"
	"github.com/r2northstar/mptcpd/pkg/token"
)

// attachedSubflow is one subflow.Subflow attached to an MPCB, plus the
// mapping/retransmit state the core keeps about it (§3 "per-subflow state").
// It corresponds to the kernel's tcp_sock MPTCP fields living alongside the
// usual TCP state.
type attachedSubflow struct {
	sf        subflow.Subflow
	pathIndex int
	isMaster  bool

	cursor dsn.Cursor

	mu         sync.Mutex
	retransmit []*dsn.Segment // unacked segments sent on this subflow, oldest first
	sndUna     uint64         // this subflow's own sequence space, advanced by SetAckAdvance
	sndNxt     uint64         // next subflow-sequence byte this subflow will assign on send

	pf       atomic.Bool // potentially-failed (§3, §4.7)
	attached atomic.Bool
}

func (a *attachedSubflow) candidate() sched.Candidate {
	st := a.sf.Stats()
	state := a.sf.State()
	return sched.Candidate{
		PathIndex:         a.pathIndex,
		Established:       state == subflow.StateEstablished || state == subflow.StateCloseWait,
		PotentiallyFailed: a.pf.Load(),
		SRTT:              st.SRTT,
	}
}

// trimAcked records sndUna and drops every retransmit-queue entry fully
// covered by it. It leaves the subflow's pf flag unchanged.
func (a *attachedSubflow) trimAcked(sndUna uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sndUna = sndUna
	i := 0
	for i < len(a.retransmit) && a.retransmit[i].EndSeq <= sndUna {
		i++
	}
	if i > 0 {
		a.retransmit = a.retransmit[i:]
	}
}

// MPCB is the multipath connection control block (C10, §3): the per-flow
// state shared by every attached subflow, one meta-socket's worth of token,
// keys, address sets, path table, mapping cursors, and reassembly queues.
type MPCB struct {
	eng *Engine
	log zerolog.Logger

	serverSide bool

	LocalKey, RemoteKey     uint64
	LocalToken, RemoteToken uint32

	mu        sync.Mutex
	subflows  map[int]*attachedSubflow
	state     State
	closeOnce sync.Once

	localAddrs  *pathset.AddrSet
	remoteAddrs *pathset.AddrSet
	paths       *pathset.PathTable

	reassembler *dsn.Reassembler
	reinject    *sched.ReinjectionQueue
	synTable    *token.SynTable

	writeSeq uint64 // next DSN this MPCB will assign to outgoing data

	noneligible uint64 // mask of path-indices excluded from scheduling (§4.6)

	checksumRequired    bool
	infiniteMapping     bool // set by Fallback (§4.3); the send path does not read it
	peerInfiniteMapping bool

	finEnqueued bool

	refcount atomic.Int32
	dead     atomic.Bool

	recvReady chan struct{} // signaled whenever Recv might have new data

	// Buffer-size aggregates summed from every attached subflow (§4.5:
	// "buffer accounting sums per-subflow rcv_ssthresh, window_clamp, and
	// rcvbuf into the meta equivalents; send buffer likewise sums
	// sndbuf"), recomputed on every attach/detach.
	bufRcvSsthresh atomic.Int64
	bufWindowClamp atomic.Int64
	bufRcvBuf      atomic.Int64
	bufSndBuf      atomic.Int64
}

// NewMPCB creates an MPCB for a freshly established master subflow.
// initialDSN is the meta-layer's starting sequence (derived from the key
// exchange per the handshake, out of scope here); serverSide distinguishes
// the passive side for JOIN-handling purposes (§4.8).
func NewMPCB(eng *Engine, serverSide bool, localKey, remoteKey uint64, localToken, remoteToken uint32, initialDSN uint64, masterPath pathset.Path, master subflow.Subflow) *MPCB {
	m := &MPCB{
		eng:         eng,
		log:         eng.Logger().With().Uint32("token", localToken).Logger(),
		serverSide:  serverSide,
		LocalKey:    localKey,
		RemoteKey:   remoteKey,
		LocalToken:  localToken,
		RemoteToken: remoteToken,
		subflows:    make(map[int]*attachedSubflow),
		state:       StateSynSent,
		localAddrs:  pathset.NewAddrSet(),
		remoteAddrs: pathset.NewAddrSet(),
		paths:       pathset.NewPathTable(masterPath),
		reassembler: dsn.NewReassembler(initialDSN),
		reinject:    &sched.ReinjectionQueue{},
		synTable:    token.NewSynTable(),
		writeSeq:    initialDSN,
		recvReady:   make(chan struct{}, 1),

		checksumRequired: eng.cfg.Checksum,
	}
	m.Attach(master, pathset.MasterIndex, true)
	m.state = StateEstablished

	if err := eng.tokens.Insert(localToken, m); err != nil {
		m.log.Error().Err(err).Msg("token collision on new mpcb, closing")
		m.Close()
		return m
	}
	eng.metrics.tokensRegistered.Inc()
	eng.metrics.activeConnections.Inc()

	if eng.cfg.NDiffPorts > 1 {
		m.paths.SeedPortDiversity(eng.cfg.NDiffPorts)
		m.spawnPendingJoins()
	}
	return m
}

// Acquire implements token.MPCB.
func (m *MPCB) Acquire() { m.refcount.Add(1) }

// SynTable implements token.MPCB.
func (m *MPCB) SynTable() *token.SynTable { return m.synTable }

// State reports the meta-socket's current state (§4.8).
func (m *MPCB) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attach registers sf as the subflow at pathIndex (§4.2: a JOIN completing
// its handshake, or the master becoming ESTABLISHED), wiring its data-ready
// and ack-advance callbacks into this MPCB.
func (m *MPCB) Attach(sf subflow.Subflow, pathIndex int, isMaster bool) *attachedSubflow {
	as := &attachedSubflow{sf: sf, pathIndex: pathIndex, isMaster: isMaster}
	as.attached.Store(true)

	sf.SetDataReady(func(seg subflow.Segment) { m.onData(as, seg) })
	sf.SetAckAdvance(func(sndUna uint64) { as.trimAcked(sndUna) })

	m.mu.Lock()
	m.subflows[pathIndex] = as
	m.recomputeBufferAccountingLocked()
	m.mu.Unlock()

	m.eng.metrics.subflowsAttached.Inc()
	m.log.Debug().Int("path_index", pathIndex).Bool("master", isMaster).Msg("subflow attached")
	return as
}

// Detach removes the subflow at pathIndex from scheduling consideration
// (§4.7: once a subflow is closed/reset it no longer carries new segments,
// though its retransmit queue may still be reinjected beforehand).
func (m *MPCB) Detach(pathIndex int) {
	m.mu.Lock()
	as, ok := m.subflows[pathIndex]
	if ok {
		delete(m.subflows, pathIndex)
		m.recomputeBufferAccountingLocked()
	}
	m.mu.Unlock()
	if ok {
		as.attached.Store(false)
		m.eng.metrics.subflowsAttached.Dec()
	}
}

// recomputeBufferAccountingLocked recomputes the meta-socket buffer-size
// aggregates from every currently attached subflow. Callers must hold m.mu.
func (m *MPCB) recomputeBufferAccountingLocked() {
	var rcvSsthresh, windowClamp, rcvBuf, sndBuf int
	for _, as := range m.subflows {
		st := as.sf.Stats()
		rcvSsthresh += st.RcvSsthresh
		windowClamp += st.WindowClamp
		rcvBuf += st.RcvBuf
		sndBuf += st.SndBuf
	}
	m.bufRcvSsthresh.Store(int64(rcvSsthresh))
	m.bufWindowClamp.Store(int64(windowClamp))
	m.bufRcvBuf.Store(int64(rcvBuf))
	m.bufSndBuf.Store(int64(sndBuf))
}

// BufferAccounting reports the meta-socket's current buffer-size
// aggregates: rcv_ssthresh, window_clamp, rcvbuf, and sndbuf, each the sum
// of the corresponding field across every attached subflow (§4.5).
func (m *MPCB) BufferAccounting() (rcvSsthresh, windowClamp, rcvBuf, sndBuf int) {
	return int(m.bufRcvSsthresh.Load()), int(m.bufWindowClamp.Load()), int(m.bufRcvBuf.Load()), int(m.bufSndBuf.Load())
}

// MarkPotentiallyFailed flags the subflow at pathIndex as pf (§3, §4.7) and
// reinjects its unacknowledged data onto the other eligible subflows.
func (m *MPCB) MarkPotentiallyFailed(pathIndex int) {
	m.mu.Lock()
	as, ok := m.subflows[pathIndex]
	m.mu.Unlock()
	if !ok || !as.pf.CompareAndSwap(false, true) {
		return
	}

	cands := m.candidatesLocked(pathIndex)
	var eligibleMask uint64
	for _, c := range cands {
		if sched.Eligible(c, m.noneligibleSnapshot(), 0) {
			eligibleMask |= c.PathMask()
		}
	}

	as.mu.Lock()
	pending := append([]*dsn.Segment(nil), as.retransmit...)
	as.mu.Unlock()

	n := sched.Reinject(m.reinject, pending, eligibleMask)
	m.eng.metrics.reinjected.Add(uint64(n))
	m.eng.metrics.reinjectedForPath(pathIndex).Add(uint64(n))
	m.log.Warn().Int("path_index", pathIndex).Int("reinjected", n).Msg("subflow marked potentially failed")
}

func (m *MPCB) noneligibleSnapshot() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noneligible
}

// candidatesLocked builds the scheduler's candidate list from every
// currently attached subflow except excludePathIndex (0 to exclude none).
func (m *MPCB) candidatesLocked(excludePathIndex int) []sched.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	cands := make([]sched.Candidate, 0, len(m.subflows))
	for idx, as := range m.subflows {
		if idx == excludePathIndex {
			continue
		}
		cands = append(cands, as.candidate())
	}
	return cands
}

// onData is the subflow.Subflow data-ready callback (§4.4, §4.5): it applies
// the subflow's mapping cursor to the incoming segment, converts it into a
// dsn.Segment, and hands it to the meta reassembler.
func (m *MPCB) onData(as *attachedSubflow, seg subflow.Segment) {
	opts := decodeOptions(seg.Options, m.log)

	for _, o := range opts {
		switch v := o.(type) {
		case mpopt.AddAddr:
			m.handleAddAddr(v)
		case mpopt.Fail:
			m.log.Warn().Uint32("data_seq", v.DataSeq).Msg("peer sent fail, falling back")
			m.Fallback()
		}
	}

	dss, hasDSS := findDSS(opts)
	if hasDSS && dss.MappingPresent && dss.ChecksumPresent {
		if !mpopt.VerifyMappingChecksum(seg.Payload, dss.MappingBytes(), dss.Checksum) {
			m.handleChecksumMismatch(as, uint64(dss.DataSeq))
			return
		}
	}

	if seg.Flags&subflow.FlagFin != 0 && len(seg.Payload) == 0 && !(hasDSS && dss.DataFin) {
		return // pure subflow FIN, no meta-layer effect (§4.4 step 2)
	}

	ds := &dsn.Segment{
		Payload: seg.Payload,
		Seq:     seg.Seq,
		EndSeq:  seg.Seq + uint64(len(seg.Payload)),
		Fin:     seg.Flags&subflow.FlagFin != 0,
	}
	if hasDSS {
		applyDSS(ds, dss)
	}

	if ds.MappingPresent && ds.SubSeq != ds.Seq {
		m.log.Error().Uint64("mapping_sub_seq", ds.SubSeq).Uint64("seg_seq", ds.Seq).Int("path_index", as.pathIndex).Msg("dss sub_seq disagrees with subflow sequence, failing connection")
		m.fail(ErrMappingViolation)
		return
	}

	if err := as.cursor.Apply(ds); err != nil {
		m.log.Error().Err(err).Int("path_index", as.pathIndex).Msg("mapping violation, failing connection")
		m.fail(ErrMappingViolation)
		return
	}

	accepted, finDelivered := m.reassembler.Insert(ds)
	if !accepted {
		return
	}
	if finDelivered {
		m.onDataFinDelivered()
	}
	m.signalRecvReady()
}

// decodeOptions parses the concatenated run of MPTCP options an envelope
// delivery carries, logging and skipping anything malformed rather than
// failing the segment (§4.3, §7 OptionMalformed).
func decodeOptions(raw []byte, log zerolog.Logger) []mpopt.Option {
	var opts []mpopt.Option
	for len(raw) > 0 {
		if len(raw) < 2 {
			break
		}
		l := int(raw[1])
		if l < 3 || l > len(raw) {
			log.Debug().Msg("malformed mptcp option, stopping decode")
			break
		}
		opt, err := mpopt.Decode(raw[:l])
		if err != nil {
			log.Debug().Err(err).Msg("malformed mptcp option, skipping")
		} else {
			opts = append(opts, opt)
		}
		raw = raw[l:]
	}
	return opts
}

// findDSS returns the DSS option in opts, if any.
func findDSS(opts []mpopt.Option) (mpopt.DSS, bool) {
	for _, o := range opts {
		if dss, ok := o.(mpopt.DSS); ok {
			return dss, true
		}
	}
	return mpopt.DSS{}, false
}

// handleChecksumMismatch implements §4.3/§7 ChecksumMismatch and the
// infinite-mapping fallback of §4.8 it can trigger: the carrying subflow
// is reset, but first sent a FAIL option naming the DSN at which the
// mapping broke down so the peer can switch its own sending to infinite
// mapping; this MPCB records that the peer is now expected to stop
// emitting further DSS mappings.
func (m *MPCB) handleChecksumMismatch(as *attachedSubflow, dataSeq uint64) {
	m.log.Warn().Err(ErrChecksumMismatch).Int("path_index", as.pathIndex).Uint64("data_seq", dataSeq).Msg("dss checksum mismatch, resetting subflow")
	m.eng.metrics.checksumMismatches.Inc()

	fail := mpopt.Fail{DataSeq: uint32(dataSeq)}
	_ = as.sf.Send(context.Background(), nil, 0, mpopt.Encode(fail))

	// Reinject this subflow's unacked bytes before tearing it down (§4.7),
	// the same as any other potentially-failed subflow: a reset subflow
	// will never retransmit them itself.
	m.MarkPotentiallyFailed(as.pathIndex)
	_ = as.sf.Reset()

	m.mu.Lock()
	m.peerInfiniteMapping = true
	m.mu.Unlock()
}

// applyDSS folds an already-decoded DSS option's mapping/DATA_FIN fields
// into seg.
func applyDSS(seg *dsn.Segment, dss mpopt.DSS) {
	if dss.MappingPresent {
		seg.MappingPresent = true
		seg.DataSeq = uint64(dss.DataSeq)
		seg.DataLen = uint32(dss.DataLen)
		seg.SubSeq = uint64(dss.SubSeq)
	}
	if dss.DataFin {
		seg.DataFin = true
	}
}

func (m *MPCB) onDataFinDelivered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateEstablished:
		m.state = StateCloseWait
	case StateFinWait1, StateFinWait2:
		m.state = StateTimeWait
	}
}

func (m *MPCB) signalRecvReady() {
	select {
	case m.recvReady <- struct{}{}:
	default:
	}
}

func (m *MPCB) fail(cause error) {
	m.log.Error().Err(cause).Msg("mpcb failed")
	m.Close()
}

// Recv copies the next available bytes of reassembled meta-stream data into
// p, blocking until at least one byte is available, DATA_FIN is reached
// (io.EOF), or ctx is done.
func (m *MPCB) Recv(ctx context.Context, p []byte) (int, error) {
	for {
		n, eof := m.reassembler.Recv(p)
		if n > 0 {
			return n, nil
		}
		if eof {
			return 0, io.EOF
		}
		if m.dead.Load() {
			return 0, ErrClosed
		}
		select {
		case <-m.recvReady:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Send drains any backlog on the reinjection queue, then schedules payload
// onto the best eligible subflow and transmits it with a DSS mapping
// covering the assigned DSN range (C8, §4.6; C9, §4.7).
func (m *MPCB) Send(ctx context.Context, payload []byte) (int, error) {
	if m.dead.Load() {
		return 0, ErrClosed
	}

	m.drainReinjectQueue(ctx)

	m.mu.Lock()
	dataSeq := m.writeSeq
	m.writeSeq += uint64(len(payload))
	m.mu.Unlock()

	pathIndex, as, ok := m.selectSubflow(0)
	if !ok {
		return 0, ErrBackpressureDrop
	}

	if err := m.transmit(ctx, as, pathIndex, payload, dataSeq, 0); err != nil {
		return 0, err
	}

	m.eng.metrics.bytesSent.Add(uint64(len(payload)))
	return len(payload), nil
}

// selectSubflow asks the configured scheduler for a subflow eligible to
// carry a segment already covered by segPathMask (0 for data not yet sent
// on any subflow), and resolves it back to its attachedSubflow (C8, §4.6).
func (m *MPCB) selectSubflow(segPathMask uint64) (pathIndex int, as *attachedSubflow, ok bool) {
	cands := m.candidatesLocked(0)
	pathIndex, ok = m.pickScheduler()(cands, m.noneligibleSnapshot(), segPathMask)
	if !ok {
		return 0, nil, false
	}
	m.mu.Lock()
	as, ok = m.subflows[pathIndex]
	m.mu.Unlock()
	if !ok {
		return 0, nil, false
	}
	return pathIndex, as, true
}

// drainReinjectQueue sends every segment currently waiting on the
// reinjection queue ahead of any new application data (§4.7: "the
// scheduler prefers the reinjection queue over the regular meta send
// queue"). A segment that finds no eligible subflow right now is pushed
// back and draining stops; it is retried on the next Send.
func (m *MPCB) drainReinjectQueue(ctx context.Context) {
	for {
		seg, ok := m.reinject.Pop()
		if !ok {
			return
		}
		pathIndex, as, ok := m.selectSubflow(seg.PathMask)
		if !ok {
			m.reinject.Push(seg)
			return
		}
		if err := m.transmit(ctx, as, pathIndex, seg.Payload, seg.DataSeq, seg.PathMask); err != nil {
			m.reinject.Push(seg)
			return
		}
	}
}

// transmit sends payload on as, stamped with a DSS mapping for the DSN
// range [dataSeq, dataSeq+len(payload)), computing the mapping checksum
// when required (§4.3), and records the send on the subflow's own
// retransmit queue under priorMask grown by as's own path-index bit — the
// way a clone's path_mask grows as it lands on another subflow's
// retransmit queue (§4.7).
func (m *MPCB) transmit(ctx context.Context, as *attachedSubflow, pathIndex int, payload []byte, dataSeq uint64, priorMask uint64) error {
	as.mu.Lock()
	subSeq := as.sndNxt
	as.sndNxt += uint64(len(payload))
	as.mu.Unlock()

	dss := mpopt.DSS{
		MappingPresent: true,
		DataSeq:        uint32(dataSeq),
		SubSeq:         uint32(subSeq),
		DataLen:        uint16(len(payload)),
	}
	if m.checksumRequired {
		dss.ChecksumPresent = true
		dss.Checksum = mpopt.Checksum16(payload, dss.MappingBytes())
	}

	if err := as.sf.Send(ctx, payload, 0, mpopt.Encode(dss)); err != nil {
		return err
	}

	mask := priorMask | (sched.Candidate{PathIndex: pathIndex}).PathMask()
	seg := &dsn.Segment{
		Payload:    append([]byte(nil), payload...),
		Seq:        subSeq,
		EndSeq:     subSeq + uint64(len(payload)),
		DataSeq:    dataSeq,
		EndDataSeq: dataSeq + uint64(len(payload)),
		PathMask:   mask,
	}
	as.mu.Lock()
	as.retransmit = append(as.retransmit, seg)
	as.mu.Unlock()
	return nil
}

func (m *MPCB) pickScheduler() sched.Func {
	name := m.eng.cfg.Scheduler
	if fn, ok := sched.Lookup(name); ok {
		return fn
	}
	return sched.Select
}

// Close begins the meta-socket's teardown: it marks the MPCB dead first,
// then sends a DATA_FIN on the master subflow (§4.8) and closes it. It does
// not wait for outstanding data. It is safe to call more than once.
func (m *MPCB) Close() error {
	m.closeOnce.Do(func() {
		m.dead.Store(true)
		m.signalRecvReady()

		m.mu.Lock()
		m.finEnqueued = true
		switch m.state {
		case StateEstablished:
			m.state = StateFinWait1
		case StateCloseWait:
			m.state = StateLastAck
		}
		master, ok := m.subflows[pathset.MasterIndex]
		m.mu.Unlock()

		if ok {
			dss := mpopt.DSS{DataFin: true}
			_ = master.sf.Send(context.Background(), nil, subflow.FlagFin, mpopt.Encode(dss))
			_ = master.sf.Close()
		}

		if m.eng != nil {
			m.eng.tokens.Remove(m.LocalToken)
			m.eng.forget(m.LocalToken)
			m.eng.metrics.activeConnections.Dec()
		}
	})
	return nil
}

// Fallback switches the MPCB to infinite-mapping mode (§4.3) when the peer
// sent FAIL or CAPABLE never arrived: it sets the infiniteMapping flag and
// logs and counts the fallback. Nothing else changes: Send and transmit do
// not consult the flag, so DSS mappings are still attached to outgoing data
// and every attached subflow stays eligible for scheduling.
func (m *MPCB) Fallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.infiniteMapping {
		return
	}
	m.infiniteMapping = true
	m.log.Warn().Msg("falling back to infinite mapping")
	m.eng.metrics.fallbacks.Inc()
}

// RemoteAddrs returns the remote address set, for JOIN-initiation logic
// driven by ADD_ADDR (§4.2).
func (m *MPCB) RemoteAddrs() *pathset.AddrSet { return m.remoteAddrs }

// LocalAddrs returns the local address set, refreshed by the interface
// enumerator (§4.2, §6.4).
func (m *MPCB) LocalAddrs() *pathset.AddrSet { return m.localAddrs }

// Paths returns the path table built from the cartesian product of the
// local and remote address sets (§4.2, §C3).
func (m *MPCB) Paths() *pathset.PathTable { return m.paths }

// PeerKey derives the token.PeerKey a pending JOIN from peer would be
// indexed under.
func PeerKey(peer netip.AddrPort) token.PeerKey { return token.PeerKey{Peer: peer} }

// handleAddAddr applies an incoming ADD_ADDR option to the remote address
// set and, if it actually changed the set, rebuilds the path table and
// spawns JOINs for any newly published path (§4.2).
func (m *MPCB) handleAddAddr(opt mpopt.AddAddr) {
	port := opt.Port
	if !opt.HasPort {
		port = 0
	}
	changed, err := m.remoteAddrs.ApplyAddAddr(opt.AddrID, opt.Addr, port)
	if err != nil {
		m.log.Debug().Err(err).Msg("add_addr: address set full")
		return
	}
	if !changed || m.eng.cfg.NDiffPorts > 1 {
		return
	}
	m.paths.Rebuild(m.localAddrs.List(), m.remoteAddrs.List())
	m.spawnPendingJoins()
}

// spawnPendingJoins actively dials a JOIN subflow for every published path
// not yet attached (§4.2: "the client creates a new subflow for a
// path-index published by the path table and actively connects"). Only the
// side that originated the connection initiates JOINs; the passive side
// waits to accept them.
func (m *MPCB) spawnPendingJoins() {
	if m.serverSide {
		return
	}

	m.mu.Lock()
	var toJoin []pathset.Path
	for _, p := range m.paths.List() {
		if p.Index == pathset.MasterIndex {
			continue
		}
		if _, attached := m.subflows[p.Index]; attached {
			continue
		}
		toJoin = append(toJoin, p)
	}
	m.mu.Unlock()

	for _, p := range toJoin {
		p := p
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if _, err := m.eng.DialJoin(ctx, m, p); err != nil {
				m.log.Debug().Err(err).Int("path_index", p.Index).Msg("join dial failed")
			}
		}()
	}
}
