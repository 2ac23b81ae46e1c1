// Command tcpgreet accepts connections on a TUN device and, for each one
// on its own goroutine, writes a greeting, half-closes for writing, then
// drains reads until an error — the Go rewrite of the reference stack's
// main.rs demo.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/netip"
	"os"

	"github.com/go-tund/usertcp/iface"
	"github.com/go-tund/usertcp/tcp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("tcpgreet:", err)
	}
}

func run() error {
	var (
		flagIface = flag.String("iface", "tcpgreet0", "TUN device name")
		flagAddr  = flag.String("addr", "10.10.0.1", "local IPv4 address")
		flagPort  = flag.Uint("port", 8008, "listening port")
		flagDebug = flag.Bool("debug", false, "enable debug logging")
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

	nic, err := iface.New(*flagIface, addr.As4(), iface.WithLogger(logger))
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
		go serve(logger, stream)
	}
}

func serve(logger *slog.Logger, stream *tcp.Stream) {
	if _, err := stream.Write([]byte("hello from tcpgreet\n")); err != nil {
		logger.Error("write", slog.String("err", err.Error()))
		return
	}
	if err := stream.Shutdown(); err != nil {
		logger.Error("shutdown", slog.String("err", err.Error()))
		return
	}

	buf := make([]byte, 1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			logger.Info(string(buf[:n]))
		}
		if err != nil {
			logger.Info("no more incoming data")
			return
		}
	}
}
