package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/mesh-provider/internal/connection"
	"github.com/rickgao/mesh-provider/internal/events"
	"github.com/rickgao/mesh-provider/internal/network"
	"github.com/rickgao/mesh-provider/internal/relay"
)

var _ Provider = (*MeshProvider)(nil)

// MeshProvider implements Provider over a single relay socket.
type MeshProvider struct {
	endpoint       string
	logger         *slog.Logger
	dialer         connection.Dialer
	metrics        Metrics
	resolver       network.Resolver
	connectTimeout time.Duration
	deferConnect   bool

	events *events.Registry

	// current is the only live handle; replaced or cleared under mu
	mu      sync.Mutex
	current *handle
}

// handle is one socket plus the wait its connect callers share.
type handle struct {
	socket connection.Socket
	wait   *connectWait
}

// New creates a provider for the relay at endpoint and, unless
// WithDeferredConnect is given, starts connecting right away.
func New(endpoint string, opts ...Option) *MeshProvider {
	p := &MeshProvider{
		endpoint:       endpoint,
		logger:         slog.Default(),
		metrics:        nopMetrics{},
		resolver:       network.NewResolver(),
		connectTimeout: DefaultConnectTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With("endpoint", endpoint)
	if p.dialer == nil {
		p.dialer = connection.NewDialer(connection.DefaultClientConfig(), p.logger)
	}
	p.events = events.NewRegistry(
		events.WithLogger(p.logger),
		events.WithPanicHandler(func(string, any) { p.metrics.IncListenerPanics() }),
	)

	if !p.deferConnect {
		p.mu.Lock()
		p.dialLocked()
		p.mu.Unlock()
	}

	return p
}

// Endpoint returns the relay address.
func (p *MeshProvider) Endpoint() string {
	return p.endpoint
}

// Connect opens the relay connection and waits for it to open.
//
// An open connection is terminated and replaced. If an attempt is already
// in flight the call joins it instead of dialing again.
func (p *MeshProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	if h := p.current; h != nil {
		switch h.socket.ReadyState() {
		case connection.StateOpen:
			if err := p.retireLocked(h, "reconnect"); err != nil {
				p.logger.Warn("failed to terminate replaced relay socket", "error", err)
			}
		case connection.StateConnecting:
			p.mu.Unlock()
			return p.await(ctx, h)
		default:
			p.discardLocked(h)
		}
	}
	h := p.dialLocked()
	p.mu.Unlock()

	return p.await(ctx, h)
}

// Disconnect terminates the current connection without a close handshake.
// Pending Connect calls fail with ErrDisconnected.
func (p *MeshProvider) Disconnect() error {
	p.mu.Lock()
	h := p.current
	if h == nil {
		p.mu.Unlock()
		return nil
	}
	err := p.retireLocked(h, "disconnect")
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("terminate relay socket: %w", err)
	}
	return nil
}

// Send writes a raw frame to the relay.
func (p *MeshProvider) Send(data []byte) error {
	p.mu.Lock()
	h := p.current
	p.mu.Unlock()

	if h == nil || h.socket.ReadyState() != connection.StateOpen {
		return ErrNotConnected
	}
	return h.socket.Send(data)
}

// OnConnect returns a channel closed the next time the relay socket opens.
func (p *MeshProvider) OnConnect() <-chan struct{} {
	return p.events.OnConnect()
}

// Connected reports whether the current socket is open.
func (p *MeshProvider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.socket.ReadyState() == connection.StateOpen
}

// Polling is an alias for Connected.
func (p *MeshProvider) Polling() bool {
	return p.Connected()
}

// SetPolling connects when set to true and disconnects when set to false.
// Setting the value already in effect does nothing.
func (p *MeshProvider) SetPolling(ctx context.Context, polling bool) error {
	connected := p.Connected()
	switch {
	case polling && !connected:
		return p.Connect(ctx)
	case !polling && connected:
		return p.Disconnect()
	default:
		return nil
	}
}

// PollingInterval is always the constant PollingInterval; events are pushed.
func (p *MeshProvider) PollingInterval() time.Duration { return PollingInterval }

// Name is always the constant NetworkName.
func (p *MeshProvider) Name() string { return NetworkName }

// ChainID is always the constant ChainID.
func (p *MeshProvider) ChainID() int64 { return ChainID }

// BlockNumber is always BlockNumberUnknown.
func (p *MeshProvider) BlockNumber() int64 { return BlockNumberUnknown }

// GetBlockNumber always returns BlockNumberUnknown.
func (p *MeshProvider) GetBlockNumber(ctx context.Context) (int64, error) {
	return BlockNumberUnknown, nil
}

// GetNetwork resolves the descriptor for ChainID.
func (p *MeshProvider) GetNetwork(ctx context.Context) (network.Network, error) {
	n, err := p.resolver.Resolve(ChainID)
	if err != nil {
		return network.Network{}, fmt.Errorf("resolve network: %w", err)
	}
	return n, nil
}

// On registers l for every future dispatch of event.
func (p *MeshProvider) On(event string, l *events.Listener) Provider {
	p.events.On(event, l)
	return p
}

// Once registers l for the next dispatch of event only.
func (p *MeshProvider) Once(event string, l *events.Listener) Provider {
	p.events.Once(event, l)
	return p
}

// RemoveListener removes the first registration of l under event.
func (p *MeshProvider) RemoveListener(event string, l *events.Listener) bool {
	return p.events.RemoveListener(event, l)
}

// RemoveAllListeners clears every listener for event.
func (p *MeshProvider) RemoveAllListeners(event string) Provider {
	p.events.RemoveAllListeners(event)
	return p
}

// ListenerCount returns the listeners for event, or the total when event is "".
func (p *MeshProvider) ListenerCount(event string) int {
	if event == "" {
		return p.events.TotalListenerCount()
	}
	return p.events.ListenerCount(event)
}

// dialLocked installs a new handle. Caller holds mu and has retired the
// previous handle.
func (p *MeshProvider) dialLocked() *handle {
	h := &handle{wait: newConnectWait()}
	h.socket = p.dialer.Dial(p.endpoint, connection.Handlers{
		OnOpen:    func() { p.handleOpen(h) },
		OnMessage: func(data []byte) { p.handleMessage(h, data) },
		OnError:   func(err error) { p.handleError(h, err) },
		OnClose:   func(code int, reason string) { p.handleClose(h, code, reason) },
	})
	p.current = h

	p.logger.Debug("dialing relay")
	return h
}

// retireLocked terminates h and clears it as current. Anyone still
// waiting on h gets ErrDisconnected. Caller holds mu.
func (p *MeshProvider) retireLocked(h *handle, reason string) error {
	wasOpen := h.socket.ReadyState() == connection.StateOpen
	p.current = nil
	err := h.socket.Terminate()

	if h.wait.resolve(ErrDisconnected) && !wasOpen {
		p.logger.Debug("pending connect cancelled", "reason", reason)
	}

	if wasOpen {
		p.metrics.IncDisconnects()
		p.metrics.SetConnectionStatus(0)
	}
	p.logger.Info("relay connection terminated", "reason", reason, "was_open", wasOpen)
	return err
}

// discardLocked drops a closing or closed handle whose close notification
// has not arrived yet. Its late OnClose is ignored, so the handle's wait
// and disconnect bookkeeping are settled here. Caller holds mu.
func (p *MeshProvider) discardLocked(h *handle) {
	state := h.socket.ReadyState()
	p.current = nil

	if h.wait.resolve(fmt.Errorf("%w: handle %s", ErrClosedBeforeOpen, state)) {
		p.logger.Debug("discarded relay handle before open", "state", state)
		return
	}
	p.metrics.IncDisconnects()
	p.metrics.SetConnectionStatus(0)
	p.logger.Debug("discarded stale relay handle", "state", state)
}

// await blocks until h's connect wait resolves, ctx ends, or the connect
// timeout expires.
func (p *MeshProvider) await(ctx context.Context, h *handle) error {
	var timeout <-chan time.Time
	if p.connectTimeout > 0 {
		timer := time.NewTimer(p.connectTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-h.wait.done:
		return h.wait.err
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		p.failStuck(h)
	}

	select {
	case <-h.wait.done:
		return h.wait.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failStuck tears down h if it is still connecting and fails its wait.
func (p *MeshProvider) failStuck(h *handle) {
	p.mu.Lock()
	stuck := p.current == h && h.socket.ReadyState() == connection.StateConnecting
	var err error
	if stuck {
		p.current = nil
		err = h.socket.Terminate()
	}
	p.mu.Unlock()

	// Opened, closed or retired meanwhile; its wait resolves on its own.
	if !stuck {
		return
	}
	if err != nil {
		p.logger.Warn("failed to terminate stuck relay socket", "error", err)
	}

	if h.wait.resolve(ErrConnectTimeout) {
		p.logger.Warn("relay connect timed out", "timeout", p.connectTimeout)
		p.dispatchError(ErrConnectTimeout)
	}
}

func (p *MeshProvider) isCurrent(h *handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current == h
}

func (p *MeshProvider) handleOpen(h *handle) {
	if !p.isCurrent(h) {
		return
	}

	p.metrics.IncConnections()
	p.metrics.SetConnectionStatus(1)
	p.logger.Info("relay connection open")

	p.events.Trigger(EventConnect)
	h.wait.resolve(nil)
}

func (p *MeshProvider) handleMessage(h *handle, data []byte) {
	if !p.isCurrent(h) {
		return
	}

	payload, err := relay.Decode(data)
	if err != nil {
		p.metrics.IncDecodeErrors()
		p.dispatchError(err)
		return
	}

	p.metrics.IncMessages()
	p.events.Trigger(EventSubscription, payload)
}

func (p *MeshProvider) handleError(h *handle, err error) {
	if !p.isCurrent(h) {
		return
	}
	p.dispatchError(err)
}

func (p *MeshProvider) handleClose(h *handle, code int, reason string) {
	p.mu.Lock()
	current := p.current == h
	if current {
		p.current = nil
	}
	p.mu.Unlock()

	if !current {
		return
	}

	if h.wait.resolve(fmt.Errorf("%w: code %d %s", ErrClosedBeforeOpen, code, reason)) {
		p.logger.Warn("relay connection closed before open", "code", code, "reason", reason)
	} else {
		p.metrics.IncDisconnects()
		p.metrics.SetConnectionStatus(0)
		p.logger.Warn("relay connection closed", "code", code, "reason", reason)
	}

	p.events.Trigger(EventClose, code, reason)
}

func (p *MeshProvider) dispatchError(err error) {
	if p.events.Trigger(EventError, err) == 0 {
		p.logger.Error("unhandled relay error", "error", err)
	}
}

// connectWait is resolved exactly once, by open, close, timeout or
// disconnect, whichever comes first.
type connectWait struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newConnectWait() *connectWait {
	return &connectWait{done: make(chan struct{})}
}

// resolve settles the wait and reports whether this call did so.
func (w *connectWait) resolve(err error) bool {
	resolved := false
	w.once.Do(func() {
		w.err = err
		close(w.done)
		resolved = true
	})
	return resolved
}
