// Package metrics exposes a Prometheus collector for the TCP engine:
// segment counts by kind, retransmissions, active connections, and
// byte counters. It knows nothing about tcp.Manager or iface.Interface
// directly — callers feed it counts through its Inc*/Add*/Set* methods —
// keeping it reusable the way the reference exporter's collector is.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// segmentKinds enumerates the label values used for the segments_total
// counter vector. Kept as a fixed, small set rather than free-form strings
// so Describe can report the full metric family up front.
var segmentKinds = []string{"syn", "synack", "ack", "fin", "rst", "retransmit"}

// Collector is a prometheus.Collector tracking engine-wide counters. The
// zero value is not usable; construct with New.
type Collector struct {
	mu            sync.Mutex
	segmentsTotal map[string]uint64

	retransmitsTotal uint64
	bytesInTotal     uint64
	bytesOutTotal    uint64
	connectionsActive int64

	descSegments      *prometheus.Desc
	descRetransmits   *prometheus.Desc
	descConnsActive   *prometheus.Desc
	descBytesIn       *prometheus.Desc
	descBytesOut      *prometheus.Desc
}

// New builds a Collector. Register it with a prometheus.Registerer
// (prometheus.MustRegister or a custom registry) before scraping.
func New() *Collector {
	return &Collector{
		segmentsTotal: make(map[string]uint64, len(segmentKinds)),
		descSegments: prometheus.NewDesc(
			"usertcp_segments_total", "Segments emitted, by kind.",
			[]string{"kind"}, nil),
		descRetransmits: prometheus.NewDesc(
			"usertcp_retransmits_total", "Segments re-sent after the retransmission timeout fired.",
			nil, nil),
		descConnsActive: prometheus.NewDesc(
			"usertcp_connections_active", "Connections currently tracked by the manager.",
			nil, nil),
		descBytesIn: prometheus.NewDesc(
			"usertcp_bytes_in_total", "Payload bytes received from the TUN device.",
			nil, nil),
		descBytesOut: prometheus.NewDesc(
			"usertcp_bytes_out_total", "Payload bytes written to the TUN device.",
			nil, nil),
	}
}

// IncSegment records one emitted segment of the given kind ("syn", "synack",
// "ack", "fin", "rst", or "retransmit").
func (c *Collector) IncSegment(kind string) {
	c.mu.Lock()
	c.segmentsTotal[kind]++
	c.mu.Unlock()
	if kind == "retransmit" {
		atomic.AddUint64(&c.retransmitsTotal, 1)
	}
}

// AddBytesIn adds n to the received-payload-bytes counter.
func (c *Collector) AddBytesIn(n int) { atomic.AddUint64(&c.bytesInTotal, uint64(n)) }

// AddBytesOut adds n to the sent-payload-bytes counter.
func (c *Collector) AddBytesOut(n int) { atomic.AddUint64(&c.bytesOutTotal, uint64(n)) }

// SetActiveConnections sets the current connection-count gauge.
func (c *Collector) SetActiveConnections(n int) { atomic.StoreInt64(&c.connectionsActive, int64(n)) }

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.descSegments
	descs <- c.descRetransmits
	descs <- c.descConnsActive
	descs <- c.descBytesIn
	descs <- c.descBytesOut
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(out chan<- prometheus.Metric) {
	c.mu.Lock()
	counts := make(map[string]uint64, len(c.segmentsTotal))
	for k, v := range c.segmentsTotal {
		counts[k] = v
	}
	c.mu.Unlock()

	for _, kind := range segmentKinds {
		out <- prometheus.MustNewConstMetric(c.descSegments, prometheus.CounterValue, float64(counts[kind]), kind)
	}
	out <- prometheus.MustNewConstMetric(c.descRetransmits, prometheus.CounterValue, float64(atomic.LoadUint64(&c.retransmitsTotal)))
	out <- prometheus.MustNewConstMetric(c.descConnsActive, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.connectionsActive)))
	out <- prometheus.MustNewConstMetric(c.descBytesIn, prometheus.CounterValue, float64(atomic.LoadUint64(&c.bytesInTotal)))
	out <- prometheus.MustNewConstMetric(c.descBytesOut, prometheus.CounterValue, float64(atomic.LoadUint64(&c.bytesOutTotal)))
}
