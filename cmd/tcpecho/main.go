// Command tcpecho runs a passive-open echo server over a TUN device and
// exposes Prometheus metrics on a debug HTTP port.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-tund/usertcp/iface"
	"github.com/go-tund/usertcp/metrics"
	"github.com/go-tund/usertcp/tcp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("tcpecho:", err)
	}
}

func run() error {
	var (
		flagIface      = flag.String("iface", "tcpecho0", "TUN device name")
		flagAddr       = flag.String("addr", "10.10.0.1", "local IPv4 address")
		flagPort       = flag.Uint("port", 7007, "echo port")
		flagMetricAddr = flag.String("metrics-addr", ":9108", "Prometheus /metrics listen address")
		flagDebug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *flagDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	addr, err := netip.ParseAddr(*flagAddr)
	if err != nil {
		return fmt.Errorf("parsing -addr: %w", err)
	}
	if !addr.Is4() {
		return fmt.Errorf("-addr must be IPv4")
	}

	collector := metrics.New()
	prometheus.MustRegister(collector)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(*flagMetricAddr, nil); err != nil {
			logger.Error("metrics server stopped", slog.String("err", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", *flagMetricAddr))

	nic, err := iface.New(*flagIface, addr.As4(), iface.WithLogger(logger), iface.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("creating interface: %w", err)
	}
	logger.Info("created interface", slog.String("name", *flagIface))

	listener, err := nic.Bind(uint16(*flagPort))
	if err != nil {
		return fmt.Errorf("binding port: %w", err)
	}
	logger.Info("listening", slog.Uint64("port", uint64(*flagPort)))

	for {
		stream, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go echo(logger, stream)
	}
}

func echo(logger *slog.Logger, stream *tcp.Stream) {
	buf := make([]byte, 1500)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := stream.Write(buf[:n]); werr != nil {
				logger.Error("write", slog.String("err", werr.Error()))
				return
			}
		}
		if err != nil {
			logger.Debug("connection closed")
			return
		}
	}
}
