package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/mesh-provider/internal/events"
	"github.com/rickgao/mesh-provider/internal/network"
)

// Errors
var (
	ErrConnectTimeout   = errors.New("relay connect timed out")
	ErrDisconnected     = errors.New("disconnected during connect")
	ErrClosedBeforeOpen = errors.New("relay connection closed before open")
	ErrNotConnected     = errors.New("relay not connected")
)

// Event types dispatched by MeshProvider.
const (
	EventConnect      = events.EventConnect
	EventSubscription = "subscription"
	EventError        = "error"
	EventClose        = "close"
)

// Placeholder values until the relay protocol exposes real ones.
// Callers must not treat them as live data.
const (
	ChainID            int64 = 1
	NetworkName              = "mainnet"
	BlockNumberUnknown int64 = -1

	// PollingInterval is zero: the relay pushes, nothing is polled.
	PollingInterval time.Duration = 0
)

// DefaultConnectTimeout bounds how long Connect waits for the socket to open.
const DefaultConnectTimeout = 30 * time.Second

// Provider is the blockchain-provider surface exposed over the relay.
type Provider interface {
	// Connect opens the relay connection and waits until it is open.
	// Concurrent calls share a single in-flight attempt.
	Connect(ctx context.Context) error

	// Disconnect terminates the current connection, if any.
	Disconnect() error

	GetBlockNumber(ctx context.Context) (int64, error)
	GetNetwork(ctx context.Context) (network.Network, error)

	On(event string, l *events.Listener) Provider
	Once(event string, l *events.Listener) Provider
	RemoveListener(event string, l *events.Listener) bool
	RemoveAllListeners(event string) Provider

	// ListenerCount counts listeners for event, or all listeners if event is "".
	ListenerCount(event string) int

	Connected() bool
	Polling() bool
	SetPolling(ctx context.Context, polling bool) error
	PollingInterval() time.Duration
	Name() string
	ChainID() int64
	BlockNumber() int64
}

// Metrics is the set of counters the provider reports.
type Metrics interface {
	IncConnections()
	IncDisconnects()
	IncMessages()
	IncDecodeErrors()
	IncListenerPanics()
	SetConnectionStatus(status float64)
}

type nopMetrics struct{}

func (nopMetrics) IncConnections()             {}
func (nopMetrics) IncDisconnects()             {}
func (nopMetrics) IncMessages()                {}
func (nopMetrics) IncDecodeErrors()            {}
func (nopMetrics) IncListenerPanics()          {}
func (nopMetrics) SetConnectionStatus(float64) {}
