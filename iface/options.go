package iface

import (
	"log/slog"
	"time"

	"github.com/go-tund/usertcp/metrics"
	"github.com/go-tund/usertcp/tcp"
)

const (
	defaultMTU        = 1500
	pollTimeoutMillis = 10
	tickInterval      = 250 * time.Millisecond
	defaultMSL        = time.Second
)

type config struct {
	logger     *slog.Logger
	mtu        int
	metrics    *metrics.Collector
	msl        time.Duration
	recvWindow tcp.Size
}

func defaultConfig() config {
	return config{
		mtu: defaultMTU,
		msl: defaultMSL,
	}
}

// Option configures an Interface at construction time, the same functional-
// options shape the rest of the corpus uses for its top-level constructors.
type Option func(*config)

// WithLogger attaches a structured logger; a nil logger (the default) is a
// safe no-op, matching the rest of the stack's logger embed.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithMTU overrides the MTU used when the TUN device's own MTU can't be
// queried.
func WithMTU(mtu int) Option { return func(c *config) { c.mtu = mtu } }

// WithMetrics attaches a metrics.Collector to receive segment, byte, and
// connection counts. Unset, no metrics are recorded.
func WithMetrics(m *metrics.Collector) Option { return func(c *config) { c.metrics = m } }

// WithMSL overrides the maximum segment lifetime used to size TIME-WAIT
// (held open for 2*MSL), per spec.md's open question on timer duration.
func WithMSL(d time.Duration) Option { return func(c *config) { c.msl = d } }

// WithRecvWindow overrides the advertised receive window new connections
// start with.
func WithRecvWindow(n tcp.Size) Option { return func(c *config) { c.recvWindow = n } }
