package tcp

// Listener is the application-facing handle returned by Manager.Bind. Accept
// blocks on the manager's accept-signal until a four-tuple lands in this
// port's pending queue, mirroring TcpListener::try_new's wait loop.
type Listener struct {
	m    *Manager
	port uint16
}

// LocalPort returns the bound port.
func (l *Listener) LocalPort() uint16 { return l.port }

// Accept blocks until a connection has been queued for this port and
// returns a Stream bound to it. Spurious wake-ups are handled by
// re-checking the queue in a loop.
func (l *Listener) Accept() (*Stream, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for {
		pending, bound := l.m.pending[l.port]
		if !bound {
			return nil, errListenerClosed
		}
		if len(pending) > 0 {
			tuple := pending[0]
			l.m.pending[l.port] = pending[1:]
			return &Stream{m: l.m, tuple: tuple}, nil
		}
		l.m.acceptSignal.Wait()
	}
}

// Close releases the bound port so a future Bind can reuse it. Existing
// Streams accepted from this Listener are unaffected (spec.md notes
// dropping a listener releasing the port is optional; this implementation
// does it, rather than leaking it as the reference repo does).
func (l *Listener) Close() {
	l.m.release(l.port)
}
