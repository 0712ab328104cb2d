package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// CloseAbnormal is reported when the socket went away without a close frame.
const CloseAbnormal = 1006

// ReadyState mirrors the websocket readyState values.
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the state name.
func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers receive socket notifications. Any field may be nil.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string) // Called exactly once per socket
}

// Socket is a single connection attempt to the relay.
type Socket interface {
	// ReadyState returns the current lifecycle state.
	ReadyState() ReadyState

	// Send writes one text frame. Fails with ErrNotConnected unless open.
	Send(data []byte) error

	// Terminate drops the connection without a close handshake. A second
	// call returns ErrAlreadyClosed.
	// It never invokes handlers synchronously.
	Terminate() error
}

// Dialer creates sockets. Dial must return immediately with a socket in
// StateConnecting and must not invoke h before returning.
type Dialer interface {
	Dial(url string, h Handlers) Socket
}

// ClientConfig configures websocket sockets.
type ClientConfig struct {
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // How often we ping the relay (0 = never)
	PingTimeout      time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout     time.Duration // Write deadline for sends
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}
