//go:build linux

package iface

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// tunFD is a non-blocking /dev/net/tun file descriptor configured in
// IFF_TUN|IFF_NO_PI mode: layer-3 only, no Ethernet framing, no per-packet
// protocol-info prefix. Adapted from the teacher's internal.Tap (which
// opens an IFF_TAP device for layer-2 use) by switching the interface flag
// and moving off raw syscall.Syscall onto the typed golang.org/x/sys/unix
// wrappers.
type tunFD struct {
	fd   int
	name string
	mtu  int
}

// ifReqFlags and ifReqMTU mirror the two shapes of the kernel's struct
// ifreq this package's ioctls need: one carrying the IFF_* flags union
// member, one carrying the MTU union member.
type ifReqFlags struct {
	name  [unix.IFNAMSIZ]byte
	flags uint16
	_     [22]byte
}

type ifReqMTU struct {
	name [unix.IFNAMSIZ]byte
	mtu  int32
	_    [20]byte
}

func newTunDevice(name string, requestedMTU int) (*tunFD, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("iface: interface name %q too long", name)
	}
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("iface: opening /dev/net/tun: %w", err)
	}
	var req ifReqFlags
	copy(req.name[:], name)
	req.flags = unix.IFF_TUN | unix.IFF_NO_PI
	if err := ioctlPtr(fd, unix.TUNSETIFF, unsafe.Pointer(&req)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("iface: TUNSETIFF: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("iface: set nonblocking: %w", err)
	}
	mtu, err := queryMTU(name)
	if err != nil {
		mtu = requestedMTU
	}
	return &tunFD{fd: fd, name: name, mtu: mtu}, nil
}

func (t *tunFD) MTU() int { return t.mtu }

func (t *tunFD) Close() error { return unix.Close(t.fd) }

// Read blocks until a datagram is available or pollTimeout elapses, in
// which case it returns (0, errPollTimeout) so the caller's loop can check
// for cancellation. Ported from YaoZengzeng-yustack's blockingReadv
// poll-then-read pattern, with the indefinite wait replaced by a 10ms
// deadline so the demultiplexer is never blocked indefinitely on a quiet
// link.
func (t *tunFD) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(t.fd, p)
		if err == nil {
			return n, nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return 0, fmt.Errorf("iface: tun read: %w", err)
		}
		fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
		n2, err := unix.Poll(fds, pollTimeoutMillis)
		if err != nil && err != unix.EINTR {
			return 0, fmt.Errorf("iface: poll: %w", err)
		}
		if n2 == 0 {
			return 0, errPollTimeout
		}
	}
}

func (t *tunFD) Write(p []byte) (int, error) {
	n, err := unix.Write(t.fd, p)
	if err != nil {
		return n, fmt.Errorf("iface: tun write: %w", err)
	}
	return n, nil
}

func ioctlPtr(fd int, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func queryMTU(name string) (int, error) {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(sock)
	var req ifReqMTU
	copy(req.name[:], name)
	if err := ioctlPtr(sock, unix.SIOCGIFMTU, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return int(req.mtu), nil
}
