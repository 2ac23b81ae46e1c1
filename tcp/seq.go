package tcp

// Value is a 32-bit TCP sequence or acknowledgment number. Comparisons on
// Value must go through Lt/Le/InWindow: sequence numbers live on a circle
// of circumference 2^32 and plain integer comparison gives the wrong
// answer once a connection has wrapped around.
type Value uint32

// Size is a length expressed in octets of sequence space (payload bytes,
// plus one each for a consumed SYN/FIN).
type Size uint32

// Add returns v+s using wrapping addition.
func (v Value) Add(s Size) Value { return v + Value(s) }

// Sub returns the wrapping difference v-s.
func (v Value) Sub(s Size) Value { return v - Value(s) }

// Diff returns the wrapping distance from v to other, i.e. the Size that
// satisfies v.Add(Diff(v,other)) == other. Only meaningful when other is
// "ahead of" v within half the sequence space.
func (v Value) Diff(other Value) Size { return Size(other - v) }

// Sizeof returns the wrapping distance from una to nxt (the same value as
// una.Diff(nxt)): how much is outstanding between the two marks.
func Sizeof(una, nxt Value) Size { return Size(nxt - una) }

// Lt reports whether a precedes b in modular sequence order:
// lt(a,b) <=> (a-b) mod 2^32 > 2^31, i.e. a lies within the half of the
// circle "before" b.
func (a Value) Lt(b Value) bool {
	return uint32(a-b) > 1<<31
}

// Le reports whether a precedes or equals b in modular sequence order.
func (a Value) Le(b Value) bool {
	return a == b || a.Lt(b)
}

// InWindow reports whether v lies in the half-open window [start, start+wnd).
func (v Value) InWindow(start Value, wnd Size) bool {
	return start.Le(v) && v.Lt(start.Add(wnd))
}

// acceptable implements the RFC 793 p.25 four-case segment acceptability
// test: given the receiver's next-expected sequence number (rcvNxt), its
// advertised window (rcvWnd), the segment's starting sequence (seq) and
// its length in sequence-space octets (dataLen, SYN/FIN included), report
// whether the segment may be accepted.
func acceptable(rcvNxt Value, rcvWnd Size, seq Value, dataLen Size) bool {
	segEnd := seq.Add(dataLen) // exclusive end, only meaningful when dataLen>0
	switch {
	case dataLen == 0 && rcvWnd == 0:
		return seq == rcvNxt
	case dataLen == 0 && rcvWnd > 0:
		return seq.InWindow(rcvNxt.Sub(1), rcvWnd+1)
	case dataLen > 0 && rcvWnd == 0:
		return false
	default: // dataLen > 0 && rcvWnd > 0
		wend := rcvNxt.Sub(1)
		return seq.InWindow(wend, rcvWnd+1) || segEnd.Sub(1).InWindow(wend, rcvWnd+1)
	}
}
