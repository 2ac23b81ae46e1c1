package tcp

import (
	"log/slog"
	"time"
)

// config collects the tunables exposed through functional options. There is
// no teacher constructor to imitate for the manager (ControlBlock configures
// itself through direct field assignment before Open), so this follows the
// wider Go idiom instead: unexported config struct, defaults applied first,
// options layered on top.
type config struct {
	logger     *slog.Logger
	recvWindow Size
	msl        time.Duration
	isnSeed    uint32
}

func defaultConfig() config {
	return config{
		recvWindow: defaultRecvWindow,
		msl:        time.Second, // 2*MSL = 2s; spec.md calls this reference value tunable
		isnSeed:    0x2f5a1c9b,
	}
}

// Option configures a Manager at construction time.
type Option func(*config)

// WithLogger attaches a structured logger. Every Manager and TCB log line
// is nil-safe, so the zero value (no logger) is silent.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRecvWindow overrides the fixed receive window (spec.md's reference
// uses 1024).
func WithRecvWindow(n Size) Option {
	return func(c *config) { c.recvWindow = n }
}

// WithMSL sets the Maximum Segment Lifetime used to size TIME-WAIT (armed at
// 2*MSL). spec.md's reference hard-codes 2s; RFC 793 suggests 2 minutes.
func WithMSL(d time.Duration) Option {
	return func(c *config) { c.msl = d }
}

// WithISNSeed seeds the initial-sequence-number generator. Without this
// option a fixed seed is used, which is fine for tests but not for a
// production deployment facing adversarial peers (RFC 6528 wants an
// unpredictable ISN per four-tuple).
func WithISNSeed(seed uint32) Option {
	return func(c *config) { c.isnSeed = seed }
}
