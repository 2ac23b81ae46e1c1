//go:build !linux

package iface

import "errors"

// tunFD is the non-Linux stand-in: TUN devices are a Linux-specific
// facility here, matching the teacher's own internal.Tap split between
// tap.go (linux) and tap_nolinux.go (everywhere else).
type tunFD struct{}

func newTunDevice(name string, requestedMTU int) (*tunFD, error) {
	return nil, errors.ErrUnsupported
}

func (t *tunFD) MTU() int                      { return 0 }
func (t *tunFD) Close() error                  { return errors.ErrUnsupported }
func (t *tunFD) Read(p []byte) (int, error)    { return 0, errors.ErrUnsupported }
func (t *tunFD) Write(p []byte) (int, error)   { return 0, errors.ErrUnsupported }
