package mptcp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/mptcpd/pkg/mpopt"
	"github.com/r2northstar/mptcpd/pkg/netenum"
	"github.com/r2northstar/mptcpd/pkg/pathset"
	"github.com/r2northstar/mptcpd/pkg/subflow"
	"github.com/r2northstar/mptcpd/pkg/token"
)

// Engine is the process-wide MPTCP state (C1/C2 tables, config, metrics,
// interface enumeration) that every MPCB is created under, playing the role
// the teacher's atlas.Server plays for HTTP connections.
type Engine struct {
	cfg *Config
	log zerolog.Logger

	tokens  *token.Registry
	pending *token.PendingJoinTable
	metrics *engineMetrics
	enum    netenum.Enumerator

	mu    sync.Mutex
	conns map[uint32]*MPCB // by local token, for address-rescan fanout and debug dump

	listener net.Listener

	reapStop chan struct{}
	reapDone chan struct{}
}

// NewEngine creates an Engine from cfg, logging with log. enum may be nil,
// in which case local address advertisement is never refreshed (tests
// typically inject a [netenum.FakeEnumerator]).
func NewEngine(cfg *Config, log zerolog.Logger, enum netenum.Enumerator) *Engine {
	e := &Engine{
		cfg:      cfg,
		log:      log,
		tokens:   token.NewRegistry(),
		pending:  token.NewPendingJoinTable(),
		metrics:  newEngineMetrics(),
		enum:     enum,
		conns:    make(map[uint32]*MPCB),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	return e
}

// Logger returns the Engine's base logger.
func (e *Engine) Logger() zerolog.Logger { return e.log }

// Metrics returns the Engine's Prometheus-format metric set, for the
// debug/metrics HTTP endpoint.
func (e *Engine) Metrics() *engineMetrics { return e.metrics }

// Config returns a copy of the Engine's active configuration, as observed
// at the time of the call.
func (e *Engine) Config() Config { return *e.cfg }

// newKey generates a random 64-bit key for the MP_CAPABLE exchange (§4.1).
func newKey() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

// tokenFromKey derives the 32-bit connection token from a 64-bit key per
// the MPTCP key-derivation scheme: the most significant 32 bits of
// SHA-1(key) (§4.1 C1). A real stack additionally derives an IDSN the same
// way; that value is supplied by callers as initialDSN since it depends on
// which side of the handshake is deriving it.
func tokenFromKey(key uint64) uint32 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	sum := sha1.Sum(b[:])
	return binary.BigEndian.Uint32(sum[:4])
}

// joinHMAC computes the truncated HMAC-SHA1 MPTCP uses to authenticate a
// JOIN handshake (§4.1, §6.1): HMAC(key=key1||key2, msg=rand1||rand2),
// truncated to truncLen bytes (8 on SYN-ACK, full 20 on ACK).
func joinHMAC(key1, key2 uint64, rand1, rand2 uint32, truncLen int) []byte {
	var keyBuf [16]byte
	binary.BigEndian.PutUint64(keyBuf[:8], key1)
	binary.BigEndian.PutUint64(keyBuf[8:], key2)

	var msgBuf [8]byte
	binary.BigEndian.PutUint32(msgBuf[:4], rand1)
	binary.BigEndian.PutUint32(msgBuf[4:], rand2)

	mac := hmac.New(sha1.New, keyBuf[:])
	mac.Write(msgBuf[:])
	sum := mac.Sum(nil)
	if truncLen > len(sum) {
		truncLen = len(sum)
	}
	return sum[:truncLen]
}

// AcceptMaster creates a new server-side MPCB wrapping an already-accepted
// master subflow sf. remoteKey is nil if the peer's SYN carried no CAPABLE
// option, in which case the connection is created already fallen back to
// plain TCP (§4.3, §6.5).
func (e *Engine) AcceptMaster(sf subflow.Subflow, remoteKey *uint64, masterPath pathset.Path) *MPCB {
	localKey := newKey()
	localToken := tokenFromKey(localKey)

	var remoteTok uint32
	var rk uint64
	if remoteKey != nil {
		rk = *remoteKey
		remoteTok = tokenFromKey(rk)
	}

	m := NewMPCB(e, true, localKey, rk, localToken, remoteTok, 0, masterPath, sf)
	if remoteKey == nil || !e.cfg.Enabled {
		m.Fallback()
	}

	e.mu.Lock()
	e.conns[localToken] = m
	e.mu.Unlock()

	if e.enum != nil {
		e.refreshLocalAddrs(m)
	}
	return m
}

// ListenAndServe starts accepting master subflows on addr and returns the
// listener once bound; Accept errors after Run begins shutting the engine
// down are ignored.
func (e *Engine) ListenAndServe(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	e.listener = ln
	go e.acceptLoop(ln)
	return ln, nil
}

func (e *Engine) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		go e.handleAccept(tcpConn)
	}
}

// handleAccept waits briefly for the peer's first envelope delivery to
// check for an MP_CAPABLE SYN option, then hands the subflow to
// AcceptMaster either as a new MPCB or (on timeout/absence) as a plain
// fallback connection (§4.1, §6.5).
//
// The full cryptographic key exchange (SYN-ACK/ACK key confirmation) is
// simplified here to standing in a freshly generated key for the peer's
// key and treating the presence of a CAPABLE option as sufficient to
// proceed, since this
// engine's external TCP handshake is carried over the subflow envelope
// rather than real kernel SYN/SYN-ACK option bytes (§6.3).
func (e *Engine) handleAccept(conn *net.TCPConn) {
	sf := subflow.NewTCPSubflow(conn, 0)

	first := make(chan subflow.Segment, 1)
	sf.SetDataReady(func(seg subflow.Segment) {
		select {
		case first <- seg:
		default:
		}
	})

	var remoteKey *uint64
	var joinSyn *mpopt.Join
	var pending subflow.Segment
	var havePending bool
	select {
	case seg := <-first:
		pending, havePending = seg, true
		for _, o := range decodeOptions(seg.Options, e.log) {
			switch opt := o.(type) {
			case mpopt.Capable:
				if opt.Stage == mpopt.CapableSYN {
					k := newKey()
					remoteKey = &k
				}
			case mpopt.Join:
				if opt.Stage == mpopt.JoinSYN {
					j := opt
					joinSyn = &j
				}
			}
		}
	case <-time.After(2 * time.Second):
	}

	if joinSyn != nil {
		e.handleJoinAccept(conn, sf, *joinSyn)
		return
	}

	raddr := conn.RemoteAddr().(*net.TCPAddr)
	laddr := conn.LocalAddr().(*net.TCPAddr)
	path := pathset.Path{
		LocalAddr:  laddr.AddrPort().Addr(),
		LocalPort:  laddr.AddrPort().Port(),
		RemoteAddr: raddr.AddrPort().Addr(),
		RemotePort: raddr.AddrPort().Port(),
	}

	m := e.AcceptMaster(sf, remoteKey, path)

	// The probe segment above was consumed before the master's permanent
	// data-ready callback was installed; replay it now if it carried a
	// mapping or payload so it isn't silently dropped.
	if havePending && (len(pending.Payload) > 0 || len(pending.Options) > 0) {
		m.mu.Lock()
		as, ok := m.subflows[pathset.MasterIndex]
		m.mu.Unlock()
		if ok {
			m.onData(as, pending)
		}
	}
}

// DialMaster performs a client-side connect and returns a fully set up
// MPCB, negotiating MP_CAPABLE over the envelope's out-of-band option
// channel (§4.1, §6.5).
func (e *Engine) DialMaster(ctx context.Context, raddr netip.AddrPort) (*MPCB, error) {
	conn, err := net.DialTCP("tcp", nil, net.TCPAddrFromAddrPort(raddr))
	if err != nil {
		return nil, err
	}

	localKey := newKey()
	localToken := tokenFromKey(localKey)
	sf := subflow.NewTCPSubflow(conn, 0)

	if e.cfg.Enabled {
		capOpt := mpopt.Capable{Stage: mpopt.CapableSYN, ChecksumRequired: e.cfg.Checksum}
		if err := sf.Send(ctx, nil, subflow.FlagSyn, mpopt.Encode(capOpt)); err != nil {
			conn.Close()
			return nil, err
		}
	}

	laddr := conn.LocalAddr().(*net.TCPAddr)
	masterPath := pathset.Path{
		LocalAddr:  laddr.AddrPort().Addr(),
		LocalPort:  laddr.AddrPort().Port(),
		RemoteAddr: raddr.Addr(),
		RemotePort: raddr.Port(),
	}

	m := NewMPCB(e, false, localKey, 0, localToken, 0, 0, masterPath, sf)
	if !e.cfg.Enabled {
		m.Fallback()
	}

	e.mu.Lock()
	e.conns[localToken] = m
	e.mu.Unlock()

	if e.enum != nil {
		e.refreshLocalAddrs(m)
	}
	return m, nil
}

// HandleJoinSyn processes an incoming MP_JOIN SYN (§4.8 server side): it
// resolves tok to its MPCB, records a pending-JOIN entry, and returns the
// SYN-ACK's JOIN option. It fails with ErrTokenUnknown if tok has no MPCB.
func (e *Engine) HandleJoinSyn(tok uint32, peer netip.AddrPort, remoteAddrID uint8, peerNonce uint32, timeout time.Duration) (mpopt.Join, error) {
	mcb, ok := e.tokens.Find(tok)
	if !ok {
		return mpopt.Join{}, ErrTokenUnknown
	}
	m := mcb.(*MPCB)

	var localNonce [4]byte
	_, _ = rand.Read(localNonce[:])
	nonce := binary.BigEndian.Uint32(localNonce[:])

	var isn [4]byte
	_, _ = rand.Read(isn[:])
	localISN := binary.BigEndian.Uint32(isn[:])

	token.NewPendingJoin(m.synTable, e.pending, token.PeerKey{Peer: peer}, tok, localISN, 0, remoteAddrID, time.Now().Add(timeout), nonce, peerNonce)
	e.metrics.pendingJoins.Inc()

	mac := joinHMAC(m.LocalKey, m.RemoteKey, nonce, peerNonce, 8)
	return mpopt.Join{Stage: mpopt.JoinSYNACK, AddrID: remoteAddrID, Nonce: nonce, HMAC: mac}, nil
}

// handleJoinAccept completes the server side of a JOIN handshake (§4.1
// "server-side JOIN handling") for a subflow whose first envelope carried a
// JOIN SYN: it resolves the MPCB by token, replies with a SYN-ACK JOIN
// option, then waits for the completing ACK before attaching the subflow.
func (e *Engine) handleJoinAccept(conn *net.TCPConn, sf subflow.Subflow, syn mpopt.Join) {
	peer := conn.RemoteAddr().(*net.TCPAddr).AddrPort()
	local := conn.LocalAddr().(*net.TCPAddr).AddrPort().Addr()

	timeout := e.cfg.JoinTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	synack, err := e.HandleJoinSyn(syn.Token, peer, syn.AddrID, syn.Nonce, timeout)
	if err != nil {
		e.log.Debug().Err(err).Uint32("token", syn.Token).Msg("join syn: unknown token")
		sf.Reset()
		return
	}
	if err := sf.Send(context.Background(), nil, subflow.FlagSyn|subflow.FlagAck, mpopt.Encode(synack)); err != nil {
		sf.Reset()
		return
	}

	ack := make(chan subflow.Segment, 1)
	sf.SetDataReady(func(seg subflow.Segment) {
		select {
		case ack <- seg:
		default:
		}
	})

	select {
	case seg := <-ack:
		for _, o := range decodeOptions(seg.Options, e.log) {
			j, ok := o.(mpopt.Join)
			if !ok || j.Stage != mpopt.JoinACK {
				continue
			}
			mcb, path, err := e.completeJoinAck(peer, local, j.HMAC)
			if err != nil {
				e.log.Debug().Err(err).Msg("join ack: validation failed")
				sf.Reset()
				return
			}
			mcb.Attach(sf, path.Index, false)
			return
		}
		sf.Reset()
	case <-time.After(10 * time.Second):
		sf.Reset()
	}
}

// completeJoinAck validates a JOIN ACK's HMAC against the pending-JOIN
// request recorded for peer and, on success, removes the pending entry and
// resolves the path-index the new subflow attaches at (§4.1 "on receiving
// the completing ACK: look up by 4-tuple ... on success, attach").
func (e *Engine) completeJoinAck(peer netip.AddrPort, local netip.Addr, ackHMAC []byte) (*MPCB, pathset.Path, error) {
	pj, ok := e.pending.Find(token.PeerKey{Peer: peer})
	if !ok {
		return nil, pathset.Path{}, ErrTokenUnknown
	}
	mcbIface, ok := e.tokens.Find(pj.MPCBToken)
	if !ok {
		pj.Remove()
		return nil, pathset.Path{}, ErrTokenUnknown
	}
	m := mcbIface.(*MPCB)

	want := joinHMAC(m.RemoteKey, m.LocalKey, pj.PeerNonce, pj.LocalNonce, 20)
	if !hmac.Equal(want, ackHMAC) {
		return nil, pathset.Path{}, ErrMappingViolation
	}
	pj.Remove()

	path, ok := m.Paths().FindByAddrs(local, peer.Addr())
	if !ok {
		return nil, pathset.Path{}, ErrTokenUnknown
	}
	return m, path, nil
}

// DialJoin actively opens and establishes a new subflow for path, attaching
// it to m once the handshake completes (§4.2: "the client creates a new
// subflow for a path-index published by the path table and actively
// connects"). It is the client-side counterpart of handleJoinAccept.
func (e *Engine) DialJoin(ctx context.Context, m *MPCB, path pathset.Path) (*attachedSubflow, error) {
	raddr := net.TCPAddrFromAddrPort(netip.AddrPortFrom(path.RemoteAddr, path.RemotePort))
	d := net.Dialer{}
	if path.LocalAddr.IsValid() {
		d.LocalAddr = net.TCPAddrFromAddrPort(netip.AddrPortFrom(path.LocalAddr, path.LocalPort))
	}
	if e.cfg.NDiffPorts > 1 {
		// Port-diversity mode dials every subflow from loc_port 0 (§4.2);
		// SO_REUSEPORT lets the kernel hand out a fresh ephemeral port per
		// dial even under load that would otherwise collide.
		d.Control = subflow.ReusePortControl
	}
	conn, err := d.DialContext(ctx, "tcp", raddr.String())
	if err != nil {
		return nil, err
	}
	tcpConn := conn.(*net.TCPConn)
	sf := subflow.NewTCPSubflow(tcpConn, 0)

	var nonceBuf [4]byte
	_, _ = rand.Read(nonceBuf[:])
	localNonce := binary.BigEndian.Uint32(nonceBuf[:])

	syn := mpopt.Join{Stage: mpopt.JoinSYN, AddrID: path.LocalAddrID, Token: m.RemoteToken, Nonce: localNonce}
	if err := sf.Send(ctx, nil, subflow.FlagSyn, mpopt.Encode(syn)); err != nil {
		tcpConn.Close()
		return nil, err
	}

	synack := make(chan subflow.Segment, 1)
	sf.SetDataReady(func(seg subflow.Segment) {
		select {
		case synack <- seg:
		default:
		}
	})

	select {
	case seg := <-synack:
		for _, o := range decodeOptions(seg.Options, e.log) {
			j, ok := o.(mpopt.Join)
			if !ok || j.Stage != mpopt.JoinSYNACK {
				continue
			}
			want := joinHMAC(m.RemoteKey, m.LocalKey, j.Nonce, localNonce, 8)
			if !hmac.Equal(want, j.HMAC) {
				tcpConn.Close()
				return nil, ErrMappingViolation
			}
			ack := mpopt.Join{Stage: mpopt.JoinACK, HMAC: joinHMAC(m.LocalKey, m.RemoteKey, localNonce, j.Nonce, 20)}
			if err := sf.Send(ctx, nil, subflow.FlagAck, mpopt.Encode(ack)); err != nil {
				tcpConn.Close()
				return nil, err
			}
			return m.Attach(sf, path.Index, false), nil
		}
		tcpConn.Close()
		return nil, ErrOptionMalformed
	case <-ctx.Done():
		tcpConn.Close()
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		tcpConn.Close()
		return nil, ErrSubflowReset
	}
}

// refreshLocalAddrs re-enumerates local interfaces and updates m's local
// address set and path table (§4.2, §6.4). It is invoked once at MPCB
// creation and again on every SIGHUP reload. A no-op in ndiffports mode,
// whose path table is seeded once at creation and never regenerated.
func (e *Engine) refreshLocalAddrs(m *MPCB) {
	if e.cfg.NDiffPorts > 1 {
		return
	}

	var addrs []pathset.Addr
	id := uint8(1)
	e.enum.Enumerate(func(addr netip.Addr, scope netenum.Scope) {
		if !scope.Usable() {
			return
		}
		addrs = append(addrs, pathset.Addr{ID: id, Addr: addr})
		id++
	})
	m.localAddrs.ReplaceAll(addrs)
	m.paths.Rebuild(m.localAddrs.List(), m.remoteAddrs.List())
	m.spawnPendingJoins()
}

// HandleSIGHUP reloads cfg and re-enumerates local addresses for every
// active MPCB, mirroring the teacher's SIGHUP-driven config reload.
func (e *Engine) HandleSIGHUP(cfg *Config) {
	e.log.Info().Msg("reloading configuration")
	*e.cfg = *cfg

	if e.enum == nil {
		return
	}
	e.mu.Lock()
	conns := make([]*MPCB, 0, len(e.conns))
	for _, m := range e.conns {
		conns = append(conns, m)
	}
	e.mu.Unlock()

	for _, m := range conns {
		e.refreshLocalAddrs(m)
	}
}

// Run starts the background pending-JOIN reaper and blocks until ctx is
// done, then shuts every active MPCB down.
func (e *Engine) Run(ctx context.Context) error {
	go e.reapLoop()
	<-ctx.Done()
	close(e.reapStop)
	<-e.reapDone

	e.mu.Lock()
	conns := make([]*MPCB, 0, len(e.conns))
	for _, m := range e.conns {
		conns = append(conns, m)
	}
	e.mu.Unlock()
	for _, m := range conns {
		m.Close()
	}
	if e.listener != nil {
		e.listener.Close()
	}
	return nil
}

func (e *Engine) reapLoop() {
	defer close(e.reapDone)
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-e.reapStop:
			return
		case now := <-t.C:
			expired := e.pending.ReapExpired(now)
			if len(expired) > 0 {
				e.log.Debug().Int("count", len(expired)).Msg("reaped expired pending joins")
			}
		}
	}
}

// ConnCount reports the number of active MPCBs, for metrics and the debug
// dump endpoint.
func (e *Engine) ConnCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// WriteBufferAccounting dumps every active MPCB's meta buffer-size
// aggregates (§4.5) to w, for the debug/buffers endpoint.
func (e *Engine) WriteBufferAccounting(w io.Writer) {
	e.mu.Lock()
	conns := make([]*MPCB, 0, len(e.conns))
	for _, m := range e.conns {
		conns = append(conns, m)
	}
	e.mu.Unlock()

	for _, m := range conns {
		rcvSsthresh, windowClamp, rcvBuf, sndBuf := m.BufferAccounting()
		fmt.Fprintf(w, "token=%#08x rcv_ssthresh=%d window_clamp=%d rcvbuf=%d sndbuf=%d\n",
			m.LocalToken, rcvSsthresh, windowClamp, rcvBuf, sndBuf)
	}
}

// forget removes tok from the Engine's connection map, called by MPCB.Close.
func (e *Engine) forget(tok uint32) {
	e.mu.Lock()
	delete(e.conns, tok)
	e.mu.Unlock()
}
