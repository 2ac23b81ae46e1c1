package tcp

import "errors"

// Sentinel errors returned across the package's public surface. Callers
// classify them with errors.Is.
var (
	// ErrAddressInUse is returned by Manager.Bind when the port already
	// has a listener.
	ErrAddressInUse = errors.New("tcp: address already in use")

	// ErrConnectionAborted is returned by Stream operations once the
	// underlying TCB has been removed from the connection manager.
	ErrConnectionAborted = errors.New("tcp: connection aborted")

	// ErrBrokenPipe is returned by Stream.Write after Shutdown has been
	// called on the local side.
	ErrBrokenPipe = errors.New("tcp: broken pipe")

	// ErrWouldBlock is returned by Stream.Write when the outgoing buffer
	// is full. Writes never block on I/O in this implementation.
	ErrWouldBlock = errors.New("tcp: write would block")

	// ErrMalformedDatagram marks a datagram dropped by the demultiplexer
	// before it reached any TCB (bad version, wrong protocol, truncated
	// header, IP or TCP options). Checksums are not verified on reception.
	ErrMalformedDatagram = errors.New("tcp: malformed datagram")
)

// errDropSegment signals that an inbound segment failed the RFC 793
// acceptability test or is otherwise to be silently ignored after,
// at most, emitting a challenge ACK. It never escapes the package.
var errDropSegment = errors.New("tcp: segment dropped")

// errListenerClosed is returned internally once a Listener's port has been
// released; Bind can reuse the port afterwards.
var errListenerClosed = errors.New("tcp: listener closed")
