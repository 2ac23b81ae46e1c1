package tcp

import (
	"log/slog"
	"time"
)

// sendSpace is RFC 793's send sequence space (page 19/25):
//
//	      1         2          3          4
//	 ---------|---------|----------|----------
//	        SND.UNA   SND.NXT    SND.UNA
//	                             +SND.WND
//	1. old sequence numbers which have been acknowledged
//	2. sequence numbers of unacknowledged data
//	3. sequence numbers allowed for new data transmission
//	4. future sequence numbers which are not yet allowed
type sendSpace struct {
	ISS Value
	UNA Value
	NXT Value
	WND Size
	WL1 Value // seq number used for last window update
	WL2 Value // ack number used for last window update
}

// recvSpace is RFC 793's receive sequence space.
type recvSpace struct {
	IRS Value
	NXT Value
	WND Size
}

// emitKind parameterizes write, selecting which flags/sequence/payload a
// constructed segment carries.
type emitKind uint8

const (
	kindSYN emitKind = iota
	kindSynAck
	kindAck
	kindFin
	kindRst
	kindRetransmit
)

// Action is returned by onSegment and onTick to tell the demultiplexer what
// woke up, if anything, and whether the TCB should be torn down.
type Action uint8

const (
	ActionContinue Action = iota
	ActionNew
	ActionRead
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionNew:
		return "new"
	case ActionRead:
		return "read"
	case ActionClose:
		return "close"
	default:
		return "unknown"
	}
}

const (
	mtuBytes      = 1500
	ipv4HeaderLen = 20
	tcpHeaderLen  = 20
	maxPayload    = mtuBytes - ipv4HeaderLen - tcpHeaderLen

	defaultRecvWindow Size = 1024
	outgoingCapacity       = 1024
	incomingCapacity       = 1024

	minRTO        = time.Second
	rtoSRTTFactor = 1.5
	initialSRTT   = 60.0 // seconds; conservative until a real sample arrives
)

// transmitFunc hands a fully-formed segment and its payload to whatever
// packages it into IPv4/TCP bytes and writes it to the TUN. Kept separate
// from write's accounting so the state machine stays testable without a
// real device.
type transmitFunc func(seg Segment, payload []byte, retransmit bool)

// TCB is a per-connection Transmission Control Block: the send/receive
// sequence spaces, byte queues and timers that drive one connection's RFC 793
// state machine. All mutation happens under the owning Manager's lock; TCB
// itself holds no lock.
type TCB struct {
	logger

	tuple FourTuple

	state State
	snd   sendSpace
	rcv   recvSpace

	closed      bool
	closedAt    Value
	closedAtSet bool

	outgoing *ring
	incoming *ring

	sendTimes map[Value]time.Time
	srtt      float64
	timeWait  time.Duration

	transmit transmitFunc
}

// tryNewPassive attempts passive-open construction from an inbound SYN. It
// returns ok=false without mutating anything if the segment lacks SYN.
func tryNewPassive(tuple FourTuple, seg Segment, iss Value, recvWnd Size, timeWait time.Duration, lg *slog.Logger) (*TCB, bool) {
	if !seg.Flags.HasAny(FlagSYN) {
		return nil, false
	}
	if recvWnd == 0 {
		recvWnd = defaultRecvWindow
	}
	tcb := &TCB{
		logger: logger{log: lg},
		tuple:  tuple,
		state:  StateSynReceived,
		snd: sendSpace{
			ISS: iss,
			UNA: iss,
			NXT: iss,
			WND: seg.WND,
		},
		rcv: recvSpace{
			IRS: seg.SEQ,
			NXT: seg.SEQ.Add(1),
			WND: recvWnd,
		},
		outgoing:  newRing(outgoingCapacity),
		incoming:  newRing(incomingCapacity),
		sendTimes: make(map[Value]time.Time),
		srtt:      initialSRTT,
		timeWait:  timeWait,
	}
	return tcb, true
}

// State returns the TCB's current RFC 793 state.
func (tcb *TCB) State() State { return tcb.state }

// oldestSendTime returns the earliest recorded emission instant still
// tracked, used both to decide retransmission and to clock TIME-WAIT expiry
// (the spec reuses send_times for the latter once armed by armTimer).
func (tcb *TCB) oldestSendTime() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, t := range tcb.sendTimes {
		if !found || t.Before(oldest) {
			oldest, found = t, true
		}
	}
	return oldest, found
}

func (tcb *TCB) armTimer(now time.Time) {
	tcb.sendTimes = map[Value]time.Time{tcb.snd.NXT: now}
}

// write constructs and hands off one segment of the given kind, then
// performs the bookkeeping RFC 793 prescribes for it (sequence number
// advance, retransmit-timer bookkeeping), following the steps of the spec
// section on segment emission.
func (tcb *TCB) write(kind emitKind, now time.Time) {
	seq := tcb.snd.NXT
	var flags Flags

	switch kind {
	case kindSYN:
		flags = FlagSYN
	case kindSynAck:
		flags = FlagSYN | FlagACK
	case kindAck:
		flags = FlagACK
	case kindFin:
		flags = FlagFIN | FlagACK
	case kindRst:
		flags = FlagRST
	case kindRetransmit:
		seq = tcb.snd.UNA
		flags = FlagACK
		if tcb.state == StateFinWait1 || tcb.state == StateLastAck {
			flags |= FlagFIN
		}
	}

	ack := tcb.rcv.NXT

	var payload []byte
	switch kind {
	case kindRetransmit:
		n := int(Sizeof(tcb.snd.UNA, tcb.snd.NXT))
		if n > maxPayload {
			n = maxPayload
		}
		if n > 0 {
			buf := make([]byte, n)
			got := tcb.outgoing.PeekAt(buf, 0)
			payload = buf[:got]
		}
	case kindAck, kindFin:
		offset := int(Sizeof(tcb.snd.UNA, tcb.snd.NXT))
		avail := tcb.outgoing.Len() - offset
		if avail > maxPayload {
			avail = maxPayload
		}
		if avail > 0 {
			buf := make([]byte, avail)
			got := tcb.outgoing.PeekAt(buf, offset)
			payload = buf[:got]
		}
	}

	seg := Segment{SEQ: seq, ACK: ack, WND: tcb.rcv.WND, DATALEN: Size(len(payload)), Flags: flags}

	if kind != kindRetransmit {
		adv := Size(len(payload))
		if flags.HasAny(FlagSYN) {
			adv++
		}
		if flags.HasAny(FlagFIN) {
			adv++
		}
		tcb.snd.NXT = tcb.snd.NXT.Add(adv)
	}
	// Invariant I3: send_times tracks a deadline only while something is
	// genuinely outstanding. A pure ACK that advances nothing must not
	// leave a stray entry behind.
	if tcb.snd.UNA != tcb.snd.NXT {
		tcb.sendTimes[tcb.snd.UNA] = now
	}

	tcb.trace("write", slog.String("kind", kind.String()), slog.String("flags", flags.String()),
		slog.Uint64("seq", uint64(seq)), slog.Uint64("ack", uint64(ack)), slog.Int("payload", len(payload)))

	if tcb.transmit != nil {
		tcb.transmit(seg, payload, kind == kindRetransmit)
	}
}

func (k emitKind) String() string {
	switch k {
	case kindSYN:
		return "SYN"
	case kindSynAck:
		return "SYNACK"
	case kindAck:
		return "ACK"
	case kindFin:
		return "FIN"
	case kindRst:
		return "RST"
	case kindRetransmit:
		return "RETRANSMIT"
	default:
		return "?"
	}
}

// onSegment runs RFC 793's SEGMENT ARRIVES processing, abbreviated to the
// subset this stack implements (see the component design's numbered steps).
// It returns the action the demultiplexer should take.
func (tcb *TCB) onSegment(seg Segment, payload []byte, now time.Time) Action {
	dataLen := seg.Len()

	// 1. Acceptability test.
	if !acceptable(tcb.rcv.NXT, tcb.rcv.WND, seg.SEQ, dataLen) {
		tcb.trace("segment rejected", slog.String("err", errDropSegment.Error()),
			slog.Uint64("seq", uint64(seg.SEQ)), slog.Uint64("rcv_nxt", uint64(tcb.rcv.NXT)))
		if seg.Flags.HasAny(FlagRST) {
			return ActionClose
		}
		tcb.write(kindAck, now)
		return ActionContinue
	}

	// 2. RST: terminal in any state (simplification over RFC 793).
	if seg.Flags.HasAny(FlagRST) {
		tcb.state = StateClosed
		return ActionClose
	}

	// 3. SYN while synchronized.
	if seg.Flags.HasAny(FlagSYN) {
		tcb.write(kindRst, now)
		tcb.state = StateClosed
		return ActionClose
	}

	// 4. ACK field.
	if !seg.Flags.HasAny(FlagACK) {
		return ActionContinue
	}
	ack := seg.ACK
	becameEstablished := false

	if tcb.state == StateSynReceived {
		if tcb.snd.UNA.Le(ack) && ack.Le(tcb.snd.NXT) {
			tcb.state = StateEstablished
			becameEstablished = true
			// cannot return yet: the segment may also carry a FIN.
		} else {
			tcb.write(kindRst, now)
			tcb.state = StateClosed
			return ActionClose
		}
	}

	switch tcb.state {
	case StateEstablished, StateFinWait1, StateFinWait2, StateCloseWait, StateClosing:
		switch {
		case ack.Le(tcb.snd.UNA):
			// Duplicate ACK (law L2): leave send state untouched, fall through.
		case tcb.snd.NXT.Lt(ack):
			// ACK for data we haven't sent yet.
			tcb.write(kindAck, now)
			return ActionContinue
		default:
			if tcb.snd.WL1.Lt(seg.SEQ) || (tcb.snd.WL1 == seg.SEQ && tcb.snd.WL2.Le(ack)) {
				tcb.snd.WND = seg.WND
				tcb.snd.WL1 = seg.SEQ
				tcb.snd.WL2 = ack
			}
			ackedLen := int(Sizeof(tcb.snd.UNA, ack))
			tcb.outgoing.Discard(ackedLen)
			tcb.snd.UNA = ack
			for key, t := range tcb.sendTimes {
				if key.Lt(ack) {
					sample := now.Sub(t).Seconds()
					tcb.srtt = 0.8*tcb.srtt + 0.2*sample
					delete(tcb.sendTimes, key)
				}
			}
		}
	}

	// 5. FIN acknowledgement: has this ACK covered our outstanding FIN?
	if tcb.closed && tcb.closedAtSet && tcb.closedAt.Lt(ack) {
		switch tcb.state {
		case StateFinWait1:
			tcb.state = StateFinWait2
		case StateClosing:
			tcb.state = StateTimeWait
			tcb.armTimer(now)
		case StateLastAck:
			tcb.state = StateClosed
			return ActionClose
		case StateTimeWait:
			// Doesn't gate on seg.Flags carrying FIN like the reference's
			// tcp_header.fin() check: the only segment that reaches this
			// branch while already in TIME-WAIT is a retransmitted FIN, so
			// re-ACKing and restarting the timer unconditionally is safe.
			tcb.write(kindAck, now)
			tcb.armTimer(now)
			return ActionContinue
		}
	}

	// 6. Segment text.
	delivered := false
	switch tcb.state {
	case StateEstablished, StateFinWait1, StateFinWait2:
		if len(payload) > 0 {
			off := int(Sizeof(seg.SEQ, tcb.rcv.NXT))
			if off > len(payload) {
				off = 0
			}
			accepted := payload[off:]
			if len(accepted) > tcb.incoming.Free() {
				accepted = accepted[:tcb.incoming.Free()]
			}
			if len(accepted) > 0 {
				tcb.incoming.Append(accepted)
				tcb.rcv.NXT = tcb.rcv.NXT.Add(Size(len(accepted)))
				delivered = true
			}
		}
	}

	// 7. FIN bit.
	if seg.Flags.HasAny(FlagFIN) {
		tcb.rcv.NXT = tcb.rcv.NXT.Add(1)
		switch tcb.state {
		case StateSynReceived, StateEstablished:
			tcb.closed = true
			tcb.state = StateLastAck
			tcb.closedAt = tcb.snd.UNA
			tcb.closedAtSet = true
			tcb.write(kindFin, now)
			return ActionRead
		case StateFinWait1:
			tcb.state = StateClosing
		case StateFinWait2:
			tcb.state = StateTimeWait
			tcb.armTimer(now)
		}
	}

	// 8. Coalesced ACK for text/FIN processed above, if nothing already
	// emitted a reply for this segment.
	if delivered || seg.Flags.HasAny(FlagFIN) {
		tcb.write(kindAck, now)
	}

	switch {
	case becameEstablished:
		return ActionNew
	case delivered:
		return ActionRead
	default:
		return ActionContinue
	}
}

// closeApplication implements the application-initiated close (Stream.Shutdown).
func (tcb *TCB) closeApplication() {
	tcb.closed = true
	switch tcb.state {
	case StateEstablished:
		tcb.state = StateFinWait1
	case StateCloseWait:
		tcb.state = StateLastAck
	case StateFinWait1, StateFinWait2, StateLastAck, StateClosing, StateTimeWait:
		// already closing or closed; idempotent no-op.
	default:
		panic("tcp: Close called while in state " + tcb.state.String())
	}
}

// onTick runs the periodic retransmission/expiry/drain logic. See the
// component design's periodic tick section for the step numbering.
func (tcb *TCB) onTick(now time.Time) Action {
	// 1. Retransmission. TIME-WAIT reuses send_times for its own expiry
	// clock (armTimer), so it must not be read as a retransmit deadline.
	if tcb.state != StateTimeWait {
		if t, ok := tcb.oldestSendTime(); ok {
			threshold := minRTO
			if s := time.Duration(rtoSRTTFactor * tcb.srtt * float64(time.Second)); s > threshold {
				threshold = s
			}
			if now.Sub(t) > threshold {
				tcb.write(kindRetransmit, now)
			}
		}
	}

	// 2. TIME-WAIT expiry. timeWait already holds the full 2*MSL duration
	// (see tryNewPassive's caller in manager.go), so this compares against
	// it directly rather than doubling it again.
	if tcb.state == StateTimeWait {
		if t, ok := tcb.oldestSendTime(); ok && now.Sub(t) >= tcb.timeWait {
			tcb.state = StateClosed
			return ActionClose
		}
		return ActionContinue
	}

	// 3. FIN on application close.
	if tcb.state == StateFinWait1 && !tcb.closedAtSet {
		tcb.closedAt = tcb.snd.UNA
		tcb.closedAtSet = true
		tcb.write(kindFin, now)
	}

	// 4. Data drain.
	inFlight := Sizeof(tcb.snd.UNA, tcb.snd.NXT)
	allowed := int(tcb.snd.WND) - int(inFlight)
	unsent := tcb.outgoing.Len() - int(inFlight)
	if allowed > 0 && unsent > 0 {
		tcb.write(kindAck, now)
	}

	return ActionContinue
}

// isRecvClosed reports whether the peer will never deliver another in-order
// byte (spec.md's is_recv_closed: TIME-WAIT or later).
func (tcb *TCB) isRecvClosed() bool { return tcb.state.isRecvClosed() }

// readIncoming drains up to len(p) bytes of in-order received payload.
func (tcb *TCB) readIncoming(p []byte) int {
	n, err := tcb.incoming.Read(p)
	if err != nil {
		return 0
	}
	return n
}

func (tcb *TCB) incomingLen() int { return tcb.incoming.Len() }

// writeOutgoing appends up to len(p) bytes (clipped to free space) to the
// outgoing queue, per Stream.Write's contract.
func (tcb *TCB) writeOutgoing(p []byte) (int, error) {
	if tcb.closed {
		return 0, ErrBrokenPipe
	}
	free := tcb.outgoing.Free()
	if free == 0 {
		return 0, ErrWouldBlock
	}
	n := len(p)
	if n > free {
		n = free
	}
	if _, err := tcb.outgoing.Append(p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}
