// Package tcp implements a userspace TCP connection engine: the per-
// connection RFC 793 state machine, the four-tuple demultiplexer, and the
// blocking Listener/Stream handles applications use on top of it. Wire
// encoding and TUN I/O are external collaborators (see the wire and iface
// packages); this package only knows about sequence-space segments.
package tcp

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-tund/usertcp/internal"
	"github.com/rs/xid"
)

// FourTuple identifies one connection: remote address/port paired with the
// local address/port it was accepted on. Comparable and usable directly as
// a map key, mirroring the original's SocketPair.
type FourTuple struct {
	RemoteAddr [4]byte
	RemotePort uint16
	LocalAddr  [4]byte
	LocalPort  uint16
}

// TransmitFunc hands a constructed segment for one connection to whatever
// encodes it to wire bytes and writes it to the network interface.
// retransmit is true when this emission is a retransmission of previously
// sent bytes rather than new data or a pure control segment.
type TransmitFunc func(tuple FourTuple, seg Segment, payload []byte, retransmit bool)

// conn bundles a TCB with the correlation id attached to the manager's
// new-connection and per-segment log lines for it. The TCB's own log lines
// do not carry the id.
type conn struct {
	tcb *TCB
	id  xid.ID
}

// Manager is the connection-manager described in spec.md section 3: the
// map of active connections, the per-port pending-accept queues, and the
// two wake-up signals, all guarded by a single mutex. It is the
// demultiplexer's and every Listener/Stream's only access to TCB state.
type Manager struct {
	logger

	mu           sync.Mutex
	acceptSignal sync.Cond
	readSignal   sync.Cond

	connections map[FourTuple]*conn
	pending     map[uint16][]FourTuple

	cfg      config
	isnState uint32
	transmit TransmitFunc
}

// NewManager builds a connection manager. transmit is called, with the
// manager lock held, whenever a TCB emits a segment.
func NewManager(transmit TransmitFunc, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Manager{
		logger:      logger{log: cfg.logger},
		connections: make(map[FourTuple]*conn),
		pending:     make(map[uint16][]FourTuple),
		cfg:         cfg,
		isnState:    cfg.isnSeed,
		transmit:    transmit,
	}
	m.acceptSignal.L = &m.mu
	m.readSignal.L = &m.mu
	return m
}

// Bind reserves port for accepting new connections. It fails with
// ErrAddressInUse if the port already has a listener, mirroring
// Interface.bind's AddrInUse check over cm.pending.
func (m *Manager) Bind(port uint16) (*Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[port]; ok {
		return nil, ErrAddressInUse
	}
	m.pending[port] = nil
	return &Listener{m: m, port: port}, nil
}

// release drops a port's pending queue, allowing Bind to reuse it. Called
// when a Listener is closed.
func (m *Manager) release(port uint16) {
	m.mu.Lock()
	delete(m.pending, port)
	m.mu.Unlock()
}

// nextISS draws the next initial send sequence number. The reference stack
// hard-codes ISS=0; spec.md flags this as something "a production
// implementation should randomize per RFC 6528". The xorshift state starts
// at the configured seed and advances on every call, with the connection's
// remote and local ports folded in; the addresses are not used.
func (m *Manager) nextISS(tuple FourTuple) Value {
	m.isnState = internal.Prand32(m.isnState ^ uint32(tuple.RemotePort)<<16 ^ uint32(tuple.LocalPort))
	return Value(m.isnState)
}

// HandleDatagram is the demultiplexer's per-datagram entry point: build the
// four-tuple, look up or create a TCB, call into it, and signal waiters.
// Mirrors iface.rs's packet_loop Entry::Vacant/Occupied dispatch.
func (m *Manager) HandleDatagram(tuple FourTuple, seg Segment, payload []byte, now time.Time) {
	m.mu.Lock()

	c, present := m.connections[tuple]
	if !present {
		pending, bound := m.pending[tuple.LocalPort]
		if !bound {
			m.mu.Unlock()
			m.debug("datagram for unbound port dropped", slog.Uint64("port", uint64(tuple.LocalPort)))
			return
		}
		iss := m.nextISS(tuple)
		tcb, ok := tryNewPassive(tuple, seg, iss, m.cfg.recvWindow, 2*m.cfg.msl, m.cfg.logger)
		if !ok {
			m.mu.Unlock()
			m.debug("non-SYN segment for unbound connection dropped")
			return
		}
		id := xid.New()
		tcb.transmit = func(seg Segment, payload []byte, retransmit bool) { m.transmit(tuple, seg, payload, retransmit) }
		c = &conn{tcb: tcb, id: id}
		m.connections[tuple] = c
		m.pending[tuple.LocalPort] = append(pending, tuple)
		m.info("new connection", slog.String("conn", id.String()),
			internal.SlogAddr4("remote_addr", &tuple.RemoteAddr), slog.Uint64("remote_port", uint64(tuple.RemotePort)),
			slog.Uint64("local_port", uint64(tuple.LocalPort)))
		tcb.write(kindSynAck, now)
		m.mu.Unlock()
		m.acceptSignal.Broadcast()
		return
	}

	action := c.tcb.onSegment(seg, payload, now)
	m.trace("on_segment", slog.String("conn", c.id.String()), slog.String("action", action.String()),
		slog.String("state", c.tcb.State().String()))
	if action == ActionClose {
		delete(m.connections, tuple)
	}
	m.mu.Unlock()

	switch action {
	case ActionNew:
		m.acceptSignal.Broadcast()
	case ActionRead:
		m.readSignal.Broadcast()
	case ActionClose:
		m.readSignal.Broadcast()
	case ActionContinue:
	}
}

// ConnectionCount returns the number of connections currently tracked,
// for callers that want to surface it (e.g. as a metrics gauge).
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// Tick runs the periodic retransmission/expiry/drain pass over every TCB.
// iface.Interface calls it from its own ticker goroutine.
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	var closed []FourTuple
	for tuple, c := range m.connections {
		action := c.tcb.onTick(now)
		if action == ActionClose {
			delete(m.connections, tuple)
			closed = append(closed, tuple)
		}
	}
	m.mu.Unlock()
	if len(closed) > 0 {
		m.readSignal.Broadcast()
		for _, tuple := range closed {
			m.debug("connection removed", slog.Uint64("remote_port", uint64(tuple.RemotePort)))
		}
	}
}
