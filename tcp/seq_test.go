package tcp

import "testing"

func TestValueLt(t *testing.T) {
	cases := []struct {
		a, b Value
		want bool
	}{
		{0, 1, true},
		{1, 0, false},
		{0, 0, false},
		{0xFFFFFFFF, 0, true},
		{0, 0xFFFFFFFF, false},
		{0x7FFFFFFF, 0xFFFFFFFF, false},
		{0xFFFFFFFF, 0x7FFFFFFF, false},
	}
	for _, c := range cases {
		if got := c.a.Lt(c.b); got != c.want {
			t.Errorf("Lt(%d,%d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestValueLeTransitivity(t *testing.T) {
	// L1: for a,b,c with c-a < 2^31: le(a,b) && le(b,c) => le(a,c).
	a := Value(0xFFFFFFF0)
	b := Value(0xFFFFFFF8)
	c := Value(10)
	if !a.Le(b) || !b.Le(c) {
		t.Fatalf("fixture broken: expected a<=b<=c")
	}
	if !a.Le(c) {
		t.Errorf("wrap-order transitivity violated: %d <= %d <= %d but not %d <= %d", a, b, c, a, c)
	}
}

func TestValueInWindow(t *testing.T) {
	if !Value(100).InWindow(100, 10) {
		t.Error("window start should be inclusive")
	}
	if Value(110).InWindow(100, 10) {
		t.Error("window end should be exclusive")
	}
	if !Value(109).InWindow(100, 10) {
		t.Error("last octet of window should be included")
	}
	// Wrap-around window.
	start := Value(0xFFFFFFFE)
	if !Value(1).InWindow(start, 5) {
		t.Error("window should wrap past 2^32")
	}
}

func TestAcceptability(t *testing.T) {
	// RFC 793 p.25 four-case table.
	cases := []struct {
		name            string
		rcvNxt          Value
		rcvWnd          Size
		seq             Value
		dataLen         Size
		want            bool
	}{
		{"zero-len-zero-wnd-match", 100, 0, 100, 0, true},
		{"zero-len-zero-wnd-mismatch", 100, 0, 101, 0, false},
		{"zero-len-pos-wnd-in-range", 100, 50, 120, 0, true},
		{"zero-len-pos-wnd-edge-before", 100, 50, 99, 0, true},
		{"zero-len-pos-wnd-out-of-range", 100, 50, 200, 0, false},
		{"pos-len-zero-wnd-always-false", 100, 0, 100, 5, false},
		{"pos-len-pos-wnd-start-in-range", 100, 50, 140, 20, true},
		{"pos-len-pos-wnd-end-in-range", 100, 50, 90, 15, true},
		{"pos-len-pos-wnd-out-of-range", 100, 50, 2000, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := acceptable(c.rcvNxt, c.rcvWnd, c.seq, c.dataLen)
			if got != c.want {
				t.Errorf("acceptable(rcvNxt=%d,rcvWnd=%d,seq=%d,len=%d) = %v, want %v",
					c.rcvNxt, c.rcvWnd, c.seq, c.dataLen, got, c.want)
			}
		})
	}
}
