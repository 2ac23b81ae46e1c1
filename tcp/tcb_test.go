package tcp

import (
	"testing"
	"time"
)

func testTuple() FourTuple {
	return FourTuple{
		RemoteAddr: [4]byte{10, 0, 0, 2}, RemotePort: 1234,
		LocalAddr: [4]byte{10, 0, 0, 1}, LocalPort: 8010,
	}
}

// emission is one recorded call to a TCB's transmit hook.
type emission struct {
	seg        Segment
	payload    []byte
	retransmit bool
}

// newEstablished drives a TCB from an inbound SYN through to ESTABLISHED,
// recording every emitted segment, mirroring scenario S1.
func newEstablished(t *testing.T, iss Value) (*TCB, *[]emission) {
	t.Helper()
	var sent []emission
	tuple := testTuple()
	syn := Segment{SEQ: 100, WND: 4096, Flags: FlagSYN}
	tcb, ok := tryNewPassive(tuple, syn, iss, 1024, 2*time.Second, nil)
	if !ok {
		t.Fatal("tryNewPassive rejected a SYN segment")
	}
	tcb.transmit = func(seg Segment, payload []byte, retransmit bool) {
		sent = append(sent, emission{seg, append([]byte(nil), payload...), retransmit})
	}

	now := time.Now()
	tcb.write(kindSynAck, now)
	if len(sent) != 1 || sent[0].seg.Flags != (FlagSYN|FlagACK) {
		t.Fatalf("expected a SYNACK, got %+v", sent)
	}
	if sent[0].seg.SEQ != iss || sent[0].seg.ACK != 101 {
		t.Fatalf("SYNACK seq/ack = %d/%d, want %d/101", sent[0].seg.SEQ, sent[0].seg.ACK, iss)
	}
	sent = nil

	action := tcb.onSegment(Segment{SEQ: 101, ACK: iss.Add(1), WND: 4096, Flags: FlagACK}, nil, now)
	if action != ActionNew {
		t.Fatalf("ACK completing the handshake = %v, want ActionNew", action)
	}
	if tcb.State() != StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", tcb.State())
	}
	return tcb, &sent
}

func TestS1PassiveOpenAndByteEcho(t *testing.T) {
	tcb, sent := newEstablished(t, 0)
	now := time.Now()

	action := tcb.onSegment(Segment{SEQ: 101, ACK: 1, WND: 4096, DATALEN: 5, Flags: FlagACK}, []byte("hello"), now)
	if action != ActionRead {
		t.Fatalf("action after data segment = %v, want ActionRead", action)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one ACK emitted, got %d", len(*sent))
	}
	ack := (*sent)[0].seg
	if ack.SEQ != 1 || ack.ACK != 106 {
		t.Errorf("ACK seq/ack = %d/%d, want 1/106", ack.SEQ, ack.ACK)
	}

	buf := make([]byte, 16)
	n := tcb.readIncoming(buf)
	if string(buf[:n]) != "hello" {
		t.Errorf("application read %q, want %q", buf[:n], "hello")
	}
}

func TestS2OrderlyCloseByPeer(t *testing.T) {
	tcb, sent := newEstablished(t, 0)
	now := time.Now()
	// Start from the S1 state: "hello" delivered, recv.nxt = 106.
	tcb.onSegment(Segment{SEQ: 101, ACK: 1, WND: 4096, DATALEN: 5, Flags: FlagACK}, []byte("hello"), now)
	*sent = nil

	action := tcb.onSegment(Segment{SEQ: 106, ACK: 1, WND: 4096, Flags: FlagFIN | FlagACK}, nil, now)
	if action != ActionRead {
		t.Fatalf("action on peer FIN = %v, want ActionRead", action)
	}
	if tcb.State() != StateLastAck {
		t.Fatalf("state after peer FIN = %v, want LAST-ACK", tcb.State())
	}
	if len(*sent) != 1 || (*sent)[0].seg.Flags != (FlagFIN|FlagACK) {
		t.Fatalf("expected a FIN emitted, got %+v", *sent)
	}
	fin := (*sent)[0].seg
	if fin.SEQ != 1 || fin.ACK != 107 {
		t.Errorf("FIN seq/ack = %d/%d, want 1/107", fin.SEQ, fin.ACK)
	}
	*sent = nil

	action = tcb.onSegment(Segment{SEQ: 107, ACK: 2, WND: 4096, Flags: FlagACK}, nil, now)
	if action != ActionClose {
		t.Fatalf("action on final ACK = %v, want ActionClose", action)
	}
	if tcb.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED", tcb.State())
	}
}

func TestS3Retransmission(t *testing.T) {
	tcb, sent := newEstablished(t, 0)
	now := time.Now()
	*sent = nil

	if _, err := tcb.writeOutgoing([]byte("world")); err != nil {
		t.Fatalf("writeOutgoing: %v", err)
	}
	tcb.write(kindAck, now)
	if len(*sent) != 1 || string((*sent)[0].payload) != "world" {
		t.Fatalf("expected one data segment carrying %q, got %+v", "world", *sent)
	}
	*sent = nil

	// The RTO is max(1s, 1.5*srtt). srtt starts at initialSRTT (60s) and the
	// zero-length handshake sample only lowers it to 48s, so the RTO is 72s.
	later := now.Add(2 * time.Minute)
	action := tcb.onTick(later)
	if action != ActionContinue {
		t.Fatalf("onTick action = %v, want ActionContinue", action)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected a retransmission, got %d segments", len(*sent))
	}
	if !(*sent)[0].retransmit {
		t.Error("emission should be marked as a retransmission")
	}
	if (*sent)[0].seg.SEQ != 1 {
		t.Errorf("retransmit seq = %d, want 1 (snd.una)", (*sent)[0].seg.SEQ)
	}
	*sent = nil

	action = tcb.onSegment(Segment{SEQ: 106, ACK: 6, WND: 4096, Flags: FlagACK}, nil, later)
	if action != ActionContinue {
		t.Fatalf("action on covering ACK = %v, want ActionContinue", action)
	}
	if _, ok := tcb.oldestSendTime(); ok {
		t.Error("send_times should be empty once everything is acknowledged (I3)")
	}
	if tcb.outgoing.Len() != 0 {
		t.Errorf("outgoing.Len() = %d, want 0", tcb.outgoing.Len())
	}
}

func TestS4OutOfWindowSegment(t *testing.T) {
	tcb, sent := newEstablished(t, 0)
	now := time.Now()
	// Start from the S1 state: "hello" delivered and read, recv.nxt = 106.
	tcb.onSegment(Segment{SEQ: 101, ACK: 1, WND: 4096, DATALEN: 5, Flags: FlagACK}, []byte("hello"), now)
	tcb.readIncoming(make([]byte, 16))
	*sent = nil

	action := tcb.onSegment(Segment{SEQ: 2000, ACK: 1, WND: 4096, DATALEN: 1, Flags: FlagACK}, []byte("x"), now)
	if action != ActionContinue {
		t.Fatalf("action on out-of-window segment = %v, want ActionContinue", action)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected a challenge ACK, got %d segments", len(*sent))
	}
	if (*sent)[0].seg.ACK != 106 {
		t.Errorf("challenge ACK ack = %d, want 106 (unchanged recv.nxt)", (*sent)[0].seg.ACK)
	}
	if tcb.incomingLen() != 0 {
		t.Error("out-of-window payload must not be appended to incoming")
	}
}

func TestS5RejectNonSYNFirstSegment(t *testing.T) {
	tuple := testTuple()
	ackOnly := Segment{SEQ: 500, ACK: 1, Flags: FlagACK}
	_, ok := tryNewPassive(tuple, ackOnly, 0, 1024, 2*time.Second, nil)
	if ok {
		t.Fatal("tryNewPassive accepted a non-SYN first segment")
	}
}

func TestS6WrapAround(t *testing.T) {
	iss := Value(0xFFFFFFF0)
	tcb, sent := newEstablished(t, iss)
	now := time.Now()
	*sent = nil

	if _, err := tcb.writeOutgoing(make([]byte, 32)); err != nil {
		t.Fatalf("writeOutgoing: %v", err)
	}
	tcb.write(kindAck, now)
	if len(*sent) != 1 {
		t.Fatalf("expected one data segment, got %d", len(*sent))
	}
	if tcb.snd.NXT != iss.Add(1).Add(32) {
		t.Fatalf("snd.nxt = %#x, want %#x", tcb.snd.NXT, iss.Add(1).Add(32))
	}
	// snd.nxt must have wrapped past zero.
	if tcb.snd.NXT >= iss {
		t.Errorf("snd.nxt = %#x did not wrap past the 2^32 boundary", tcb.snd.NXT)
	}

	wrappedAck := iss.Add(1).Add(20)
	action := tcb.onSegment(Segment{SEQ: 101, ACK: wrappedAck, WND: 4096, Flags: FlagACK}, nil, now)
	if action != ActionContinue {
		t.Fatalf("action on wrapped ACK = %v, want ActionContinue", action)
	}
	if tcb.snd.UNA != wrappedAck {
		t.Errorf("snd.una = %#x, want %#x", tcb.snd.UNA, wrappedAck)
	}
	if !tcb.snd.UNA.Le(tcb.snd.NXT) {
		t.Error("I1 violated: send.una must precede or equal send.nxt across the wrap")
	}
}

func TestL2DuplicateACKIsIdempotent(t *testing.T) {
	tcb, sent := newEstablished(t, 0)
	now := time.Now()
	if _, err := tcb.writeOutgoing([]byte("world")); err != nil {
		t.Fatalf("writeOutgoing: %v", err)
	}
	tcb.write(kindAck, now)
	*sent = nil

	before := tcb.snd
	beforeOutgoingLen := tcb.outgoing.Len()

	action := tcb.onSegment(Segment{SEQ: 101, ACK: 1, WND: 4096, Flags: FlagACK}, nil, now)
	if action != ActionContinue {
		t.Fatalf("action on duplicate ACK = %v, want ActionContinue", action)
	}
	if tcb.snd != before {
		t.Errorf("duplicate ACK mutated send state: before=%+v after=%+v", before, tcb.snd)
	}
	if tcb.outgoing.Len() != beforeOutgoingLen {
		t.Error("duplicate ACK must not discard outgoing data")
	}
}

func TestL3DuplicateSYNProducesAtMostOneTCB(t *testing.T) {
	tuple := testTuple()
	syn := Segment{SEQ: 100, WND: 4096, Flags: FlagSYN}
	first, ok := tryNewPassive(tuple, syn, 0, 1024, 2*time.Second, nil)
	if !ok || first == nil {
		t.Fatal("tryNewPassive rejected the initial SYN")
	}
	// A manager is the component responsible for not constructing a second
	// TCB for the same four-tuple once one is tracked (see manager_test.go
	// for the end-to-end check); at the TCB layer, a second tryNewPassive
	// call against the same inputs is deterministic and independent,
	// confirming there is nothing stateful in construction itself that
	// would let duplicate SYNs diverge.
	second, ok := tryNewPassive(tuple, syn, 0, 1024, 2*time.Second, nil)
	if !ok || second == nil {
		t.Fatal("tryNewPassive rejected the duplicate SYN")
	}
	if first.tuple != second.tuple || first.state != second.state {
		t.Error("duplicate SYN construction should be deterministic")
	}
}

func TestI2RecvNxtAheadOfIRSOnceSynReceived(t *testing.T) {
	tuple := testTuple()
	syn := Segment{SEQ: 100, WND: 4096, Flags: FlagSYN}
	tcb, ok := tryNewPassive(tuple, syn, 0, 1024, 2*time.Second, nil)
	if !ok {
		t.Fatal("tryNewPassive rejected a SYN segment")
	}
	if Sizeof(tcb.rcv.IRS, tcb.rcv.NXT) < 1 {
		t.Errorf("recv.nxt - recv.irs = %d, want >= 1", Sizeof(tcb.rcv.IRS, tcb.rcv.NXT))
	}
}

func TestApplicationCloseFromEstablished(t *testing.T) {
	tcb, sent := newEstablished(t, 0)
	*sent = nil
	tcb.closeApplication()
	if tcb.State() != StateFinWait1 {
		t.Fatalf("state after Close = %v, want FIN-WAIT-1", tcb.State())
	}
	if !tcb.closed {
		t.Error("closed flag not set")
	}

	now := time.Now()
	action := tcb.onTick(now)
	if action != ActionContinue {
		t.Fatalf("onTick action = %v, want ActionContinue", action)
	}
	if len(*sent) != 1 || (*sent)[0].seg.Flags != (FlagFIN|FlagACK) {
		t.Fatalf("onTick should emit the FIN once closedAt is set, got %+v", *sent)
	}
	if tcb.closedAt != tcb.snd.UNA {
		t.Errorf("closedAt = %d, want send.una = %d", tcb.closedAt, tcb.snd.UNA)
	}
}

func TestApplicationCloseIsIdempotent(t *testing.T) {
	tcb, _ := newEstablished(t, 0)
	tcb.closeApplication()
	tcb.closeApplication() // must not panic or change state further
	if tcb.State() != StateFinWait1 {
		t.Fatalf("state = %v, want FIN-WAIT-1", tcb.State())
	}
}

func TestApplicationCloseFromUnestablishedStatePanics(t *testing.T) {
	tuple := testTuple()
	syn := Segment{SEQ: 100, WND: 4096, Flags: FlagSYN}
	tcb, _ := tryNewPassive(tuple, syn, 0, 1024, 2*time.Second, nil)
	defer func() {
		if recover() == nil {
			t.Error("expected Close from SYN-RECEIVED to panic")
		}
	}()
	tcb.closeApplication()
}
