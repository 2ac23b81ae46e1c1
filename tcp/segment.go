package tcp

import "math/bits"

// Flags is a TCP flags bit-mask, as per RFC 793 figure 3 (URG/ACK/PSH/RST/SYN/FIN).
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // FlagFIN - no more data from sender
	FlagSYN                   // FlagSYN - synchronize sequence numbers
	FlagRST                   // FlagRST - reset the connection
	FlagPSH                   // FlagPSH - push function
	FlagACK                   // FlagACK - acknowledgment field significant
	FlagURG                   // FlagURG - urgent pointer field significant
)

const flagMask = 0x3f

const (
	synack = FlagSYN | FlagACK
	finack = FlagFIN | FlagACK
)

// HasAll reports whether all bits in mask are set in flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny reports whether any bit in mask is set in flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// Mask clears non-flag bits.
func (flags Flags) Mask() Flags { return flags & flagMask }

// String renders flags as e.g. "[SYN,ACK]".
func (flags Flags) String() string {
	switch flags {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case finack:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(flags)))
	buf = append(buf, '[')
	buf = flags.appendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

func (flags Flags) appendFormat(b []byte) []byte {
	const flaglen = 3
	const strflags = "FINSYNRSTPSHACKURG"
	var addcomma bool
	for flags != 0 {
		i := bits.TrailingZeros16(uint16(flags))
		if addcomma {
			b = append(b, ',')
		}
		addcomma = true
		b = append(b, strflags[i*flaglen:i*flaglen+flaglen]...)
		flags &= ^(1 << i)
	}
	return b
}

// Segment is the sequence-space view of an incoming or outgoing TCP
// segment: the fields onSegment/write need to run the state machine,
// independent of how the bytes were carried over the wire.
type Segment struct {
	SEQ     Value
	ACK     Value
	WND     Size
	DATALEN Size
	Flags   Flags
}

// Len returns the length of the segment in sequence-space octets, counting
// a set SYN or FIN as one octet each, per RFC 793.
func (seg Segment) Len() Size {
	n := seg.DATALEN
	if seg.Flags.HasAny(FlagSYN) {
		n++
	}
	if seg.Flags.HasAny(FlagFIN) {
		n++
	}
	return n
}

// Last returns the sequence number of the segment's final octet. For a
// zero-length segment this is SEQ itself (RFC 793's convention for the
// acceptability test).
func (seg Segment) Last() Value {
	n := seg.Len()
	if n == 0 {
		return seg.SEQ
	}
	return seg.SEQ.Add(n - 1)
}

// State enumerates the states a TCB progresses through. Only the passive-open
// subset this implementation supports is represented (no SYN-SENT: active
// open is a Non-goal).
type State uint8

const (
	StateListen State = iota
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListen:
		return "LISTEN"
	case StateSynReceived:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST-ACK"
	case StateTimeWait:
		return "TIME-WAIT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// isRecvClosed reports whether state implies the peer will never deliver
// more in-order bytes (spec.md §4.4: is_recv_closed).
func (s State) isRecvClosed() bool { return s >= StateTimeWait }
