package provider

import (
	"sync"
	"sync/atomic"

	"github.com/rickgao/mesh-provider/internal/connection"
)

// fakeSocket is a transport handle driven by the test.
type fakeSocket struct {
	url      string
	handlers connection.Handlers

	state        atomic.Int32
	terminated   atomic.Bool
	terminateErr error

	mu   sync.Mutex
	sent [][]byte
}

func (s *fakeSocket) ReadyState() connection.ReadyState {
	return connection.ReadyState(s.state.Load())
}

func (s *fakeSocket) Send(data []byte) error {
	if s.ReadyState() != connection.StateOpen {
		return connection.ErrNotConnected
	}
	s.mu.Lock()
	s.sent = append(s.sent, data)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) Terminate() error {
	s.terminated.Store(true)
	s.state.Store(int32(connection.StateClosed))
	return s.terminateErr
}

// open simulates the transport "open" notification.
func (s *fakeSocket) open() {
	s.state.Store(int32(connection.StateOpen))
	s.handlers.OnOpen()
}

func (s *fakeSocket) message(data string) {
	s.handlers.OnMessage([]byte(data))
}

func (s *fakeSocket) fail(err error) {
	s.handlers.OnError(err)
}

func (s *fakeSocket) close(code int, reason string) {
	s.state.Store(int32(connection.StateClosed))
	s.handlers.OnClose(code, reason)
}

// drop marks the socket closed without delivering its close notification yet.
func (s *fakeSocket) drop() {
	s.state.Store(int32(connection.StateClosed))
}

// fakeDialer records every socket it creates.
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
}

func (d *fakeDialer) Dial(url string, h connection.Handlers) connection.Socket {
	s := &fakeSocket{url: url, handlers: h}
	s.state.Store(int32(connection.StateConnecting))

	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) last() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// fakeMetrics counts calls.
type fakeMetrics struct {
	connections    atomic.Int64
	disconnects    atomic.Int64
	messages       atomic.Int64
	decodeErrors   atomic.Int64
	listenerPanics atomic.Int64
	status         atomic.Int64
}

func (m *fakeMetrics) IncConnections()    { m.connections.Add(1) }
func (m *fakeMetrics) IncDisconnects()    { m.disconnects.Add(1) }
func (m *fakeMetrics) IncMessages()       { m.messages.Add(1) }
func (m *fakeMetrics) IncDecodeErrors()   { m.decodeErrors.Add(1) }
func (m *fakeMetrics) IncListenerPanics() { m.listenerPanics.Add(1) }
func (m *fakeMetrics) SetConnectionStatus(status float64) {
	m.status.Store(int64(status))
}
