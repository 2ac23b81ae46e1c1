// Package iface owns the TUN device and the demultiplexer loop described
// in spec.md section 4.3: reading raw IPv4 datagrams off the wire, parsing
// them into tcp.Segment values, and handing them to a tcp.Manager. It is
// the external-collaborator boundary the core tcp package never imports.
package iface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-tund/usertcp/tcp"
	"github.com/go-tund/usertcp/wire"
)

// errPollTimeout signals that the TUN poll's 10ms deadline elapsed with no
// datagram available; it never escapes this package.
var errPollTimeout = errors.New("iface: poll timeout")

type tunDevice interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	MTU() int
}

// Interface binds a TUN device to a tcp.Manager and runs the goroutines
// that move datagrams between them. Construct with New.
type Interface struct {
	logger *slog.Logger

	tun     tunDevice
	manager *tcp.Manager
	cfg     config

	localAddr [4]byte

	group *errgroup.Group
}

// New opens name as a TUN device (creating it if the kernel allows) and
// starts its demultiplexer and tick goroutines. localAddr is the address
// this stack answers to; it is used both to build outgoing IPv4 headers
// and to reject datagrams not addressed to it.
func New(name string, localAddr [4]byte, opts ...Option) (*Interface, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	tun, err := newTunDevice(name, cfg.mtu)
	if err != nil {
		return nil, err
	}

	i := &Interface{
		logger:    cfg.logger,
		tun:       tun,
		cfg:       cfg,
		localAddr: localAddr,
	}
	i.manager = tcp.NewManager(i.transmit,
		tcp.WithLogger(cfg.logger),
		tcp.WithMSL(cfg.msl),
		tcp.WithRecvWindow(orDefault(cfg.recvWindow, 1024)),
	)

	group, ctx := errgroup.WithContext(context.Background())
	i.group = group
	group.Go(func() error { return i.readLoop(ctx) })
	group.Go(func() error { return i.tickLoop(ctx) })
	return i, nil
}

func orDefault(n tcp.Size, def tcp.Size) tcp.Size {
	if n == 0 {
		return def
	}
	return n
}

// Bind reserves a port for accepting new connections.
func (i *Interface) Bind(port uint16) (*tcp.Listener, error) {
	return i.manager.Bind(port)
}

// Wait blocks until the read or tick goroutine returns an error, which in
// normal operation never happens: there is no graceful shutdown surface,
// matching spec.md section 5 ("no cancellation; shutdown is process
// exit"). It exists so a caller can observe an unexpected failure instead
// of the reference's fire-and-forget goroutines.
func (i *Interface) Wait() error {
	return i.group.Wait()
}

// readLoop is the demultiplexer described in spec.md section 4.3: read one
// datagram, parse it, and dispatch it to the manager. A parse failure is
// logged at debug level and dropped (section 7's MalformedDatagram kind);
// any panic raised while handling a datagram is recovered and logged so one
// bad segment cannot take down the read goroutine.
func (i *Interface) readLoop(ctx context.Context) error {
	buf := make([]byte, i.tun.MTU())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := i.tun.Read(buf)
		if err != nil {
			if errors.Is(err, errPollTimeout) {
				continue
			}
			return err
		}
		i.handleDatagram(buf[:n])
	}
}

func (i *Interface) handleDatagram(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			i.logError("panic handling datagram, dropped", slog.Any("panic", r))
		}
	}()

	ip, err := wire.ParseIPv4(raw)
	if err != nil {
		i.logDebug("malformed IPv4 datagram dropped", slog.String("err", fmt.Errorf("%w: %w", tcp.ErrMalformedDatagram, err).Error()))
		return
	}
	if *ip.DestinationAddr() != i.localAddr {
		return
	}
	tf, err := wire.ParseTCP(ip.Payload())
	if err != nil {
		i.logDebug("malformed TCP segment dropped", slog.String("err", fmt.Errorf("%w: %w", tcp.ErrMalformedDatagram, err).Error()))
		return
	}

	_, flags := tf.DataOffsetAndFlags()
	tuple := tcp.FourTuple{
		RemoteAddr: *ip.SourceAddr(),
		RemotePort: tf.SourcePort(),
		LocalAddr:  *ip.DestinationAddr(),
		LocalPort:  tf.DestinationPort(),
	}
	seg := tcp.Segment{
		SEQ:     tcp.Value(tf.Seq()),
		ACK:     tcp.Value(tf.Ack()),
		WND:     tcp.Size(tf.WindowSize()),
		DATALEN: tcp.Size(len(tf.Payload())),
		Flags:   tcp.Flags(flags),
	}
	if i.cfg.metrics != nil {
		i.cfg.metrics.AddBytesIn(len(tf.Payload()))
	}
	i.manager.HandleDatagram(tuple, seg, tf.Payload(), time.Now())
}

// tickLoop drives the periodic retransmission/expiry/drain pass on its own
// goroutine at a finer period than any of the manager's timer constants,
// so no deadline is missed by more than the ticker interval — a deliberate
// split from spec.md's single-thread wording (see SPEC_FULL.md section 4.3).
func (i *Interface) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			i.manager.Tick(now)
			if i.cfg.metrics != nil {
				i.cfg.metrics.SetActiveConnections(i.manager.ConnectionCount())
			}
		}
	}
}

// transmit is the tcp.TransmitFunc: it encodes a segment to wire bytes and
// writes it to the TUN device.
func (i *Interface) transmit(tuple tcp.FourTuple, seg tcp.Segment, payload []byte, retransmit bool) {
	buf := make([]byte, wire.IPv4HeaderLen+wire.TCPHeaderLen+len(payload))
	ip := wire.BuildIPv4(buf, tuple.LocalAddr, tuple.RemoteAddr, wire.TCPHeaderLen+len(payload))
	tf := wire.BuildTCP(ip.Payload(), tuple.LocalPort, tuple.RemotePort,
		uint32(seg.SEQ), uint32(seg.ACK), uint16(seg.Flags), uint16(seg.WND), payload)
	tf.WriteChecksum(ip)
	ip.SetCRC(ip.CalculateHeaderCRC())

	if _, err := i.tun.Write(ip.RawData()); err != nil {
		i.logWarn("tun write failed", slog.String("err", err.Error()))
		return
	}
	if i.cfg.metrics != nil {
		i.cfg.metrics.AddBytesOut(len(payload))
		i.cfg.metrics.IncSegment(segmentKindLabel(seg.Flags, retransmit))
	}
}

func segmentKindLabel(flags tcp.Flags, retransmit bool) string {
	switch {
	case retransmit:
		return "retransmit"
	case flags.HasAll(tcp.FlagRST):
		return "rst"
	case flags.HasAll(tcp.FlagSYN | tcp.FlagACK):
		return "synack"
	case flags.HasAll(tcp.FlagSYN):
		return "syn"
	case flags.HasAll(tcp.FlagFIN):
		return "fin"
	default:
		return "ack"
	}
}

func (i *Interface) logDebug(msg string, attrs ...slog.Attr) {
	if i.logger != nil {
		i.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (i *Interface) logWarn(msg string, attrs ...slog.Attr) {
	if i.logger != nil {
		i.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
	}
}

func (i *Interface) logError(msg string, attrs ...slog.Attr) {
	if i.logger != nil {
		i.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
	}
}
