package connection

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// dialer implements the Dialer interface on top of gorilla/websocket.
type dialer struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewDialer creates a websocket Dialer.
func NewDialer(cfg ClientConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &dialer{
		cfg:    cfg,
		logger: logger,
	}
}

// Dial starts a connection attempt in the background.
func (d *dialer) Dial(url string, h Handlers) Socket {
	ctx, cancel := context.WithCancel(context.Background())

	s := &socket{
		cfg:        d.cfg,
		logger:     d.logger.With("url", url),
		url:        url,
		handlers:   h,
		cancelDial: cancel,
		done:       make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	go s.run(ctx)

	return s
}

// socket implements the Socket interface.
type socket struct {
	cfg      ClientConfig
	logger   *slog.Logger
	url      string
	handlers Handlers

	state      atomic.Int32
	terminated atomic.Bool
	stale      atomic.Bool

	cancelDial context.CancelFunc
	done       chan struct{}
	doneOnce   sync.Once
	closeOnce  sync.Once

	// Write serialization
	writeMu sync.Mutex

	mu         sync.RWMutex
	conn       *websocket.Conn
	lastPingAt time.Time
}

// ReadyState returns the current lifecycle state.
func (s *socket) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// Send writes one text frame.
func (s *socket) Send(data []byte) error {
	if s.ReadyState() != StateOpen {
		return ErrNotConnected
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Terminate drops the connection without sending a close frame. Calling it
// again returns ErrAlreadyClosed.
func (s *socket) Terminate() error {
	if !s.terminated.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}

	s.state.Store(int32(StateClosing))
	s.stop()
	s.cancelDial()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return nil
	}

	s.logger.Debug("terminating websocket")
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// run dials the relay and then reads until the connection ends.
func (s *socket) run(ctx context.Context) {
	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}

	conn, _, err := wsDialer.DialContext(ctx, s.url, s.cfg.Header)
	if err != nil {
		if s.terminated.Load() {
			s.finish(CloseAbnormal, "terminated")
			return
		}
		s.logger.Debug("websocket dial failed", "error", err)
		s.emitError(err)
		s.finish(CloseAbnormal, err.Error())
		return
	}

	s.mu.Lock()
	if s.terminated.Load() {
		s.mu.Unlock()
		conn.Close()
		s.finish(CloseAbnormal, "terminated")
		return
	}
	s.conn = conn
	s.lastPingAt = time.Now()
	s.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		s.touch()

		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	if s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		s.logger.Debug("websocket connected")
		if s.handlers.OnOpen != nil {
			s.handlers.OnOpen()
		}
		if s.cfg.PingInterval > 0 {
			go s.heartbeatLoop(conn)
		}
	}

	s.readLoop(conn)
}

// readLoop forwards frames to OnMessage until the connection fails.
func (s *socket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := CloseAbnormal, ""

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code, reason = closeErr.Code, closeErr.Text
			}

			// Errors after Terminate or a stale close were already accounted for
			if !s.terminated.Load() && !s.stale.Load() {
				if closeErr == nil || websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.emitError(err)
				}
			}

			s.finish(code, reason)
			return
		}

		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(data)
		}
	}
}

// heartbeatLoop pings the relay and detects stale connections.
func (s *socket) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}
			s.writeMu.Unlock()

			s.mu.RLock()
			lastPing := s.lastPingAt
			s.mu.RUnlock()

			if s.cfg.PingTimeout > 0 && time.Since(lastPing) > s.cfg.PingTimeout {
				s.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", s.cfg.PingTimeout,
				)
				s.stale.Store(true)
				s.emitError(ErrStaleConnection)
				conn.Close()
				return
			}
		}
	}
}

func (s *socket) touch() {
	s.mu.Lock()
	s.lastPingAt = time.Now()
	s.mu.Unlock()
}

func (s *socket) emitError(err error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

func (s *socket) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

// finish moves the socket to closed and reports it exactly once.
func (s *socket) finish(code int, reason string) {
	s.state.Store(int32(StateClosed))
	s.stop()
	s.closeOnce.Do(func() {
		s.logger.Debug("websocket closed", "code", code, "reason", reason)
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(code, reason)
		}
	})
}
