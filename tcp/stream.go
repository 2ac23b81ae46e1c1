package tcp

import "io"

// Stream is the application-facing handle for one connection, identified by
// its four-tuple. It carries no state of its own beyond that key: every
// Read, Write and Shutdown call looks the TCB up under the manager lock,
// so a Stream is safe to share between a reader goroutine and a writer
// goroutine (spec.md section 4.4).
type Stream struct {
	m     *Manager
	tuple FourTuple
}

// LocalPort returns the connection's local port.
func (s *Stream) LocalPort() uint16 { return s.tuple.LocalPort }

// RemoteAddr returns the peer's IPv4 address and port.
func (s *Stream) RemoteAddr() ([4]byte, uint16) { return s.tuple.RemoteAddr, s.tuple.RemotePort }

// Read blocks until data is available, the stream has reached a
// recv-closed state, or the connection is torn down. It returns io.EOF
// once the TCB has reached TIME-WAIT (or a later state) and all buffered
// bytes are drained — the Go-idiomatic rendering of spec.md's "blocks;
// returns 0 on clean end-of-stream" (section 7 lists this as the
// EndOfStream error kind). A connection closed by the peer goes through
// LAST-ACK, not TIME-WAIT: Read keeps blocking there and returns
// ErrConnectionAborted once the TCB is removed.
func (s *Stream) Read(p []byte) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for {
		c, ok := s.m.connections[s.tuple]
		if !ok {
			return 0, ErrConnectionAborted
		}
		if c.tcb.incomingLen() > 0 {
			return c.tcb.readIncoming(p), nil
		}
		if c.tcb.isRecvClosed() {
			return 0, io.EOF
		}
		s.m.readSignal.Wait()
	}
}

// Write never blocks on I/O: it appends to the outgoing queue (up to its
// 1024-byte capacity) and returns immediately, returning ErrWouldBlock if
// the queue is full or ErrBrokenPipe once Shutdown has been called.
func (s *Stream) Write(p []byte) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.connections[s.tuple]
	if !ok {
		return 0, ErrConnectionAborted
	}
	return c.tcb.writeOutgoing(p)
}

// Shutdown begins an active close: the FIN itself is emitted by the next
// tick, not by this call.
func (s *Stream) Shutdown() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.connections[s.tuple]
	if !ok {
		return ErrConnectionAborted
	}
	c.tcb.closeApplication()
	return nil
}
