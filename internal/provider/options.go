package provider

import (
	"log/slog"
	"time"

	"github.com/rickgao/mesh-provider/internal/connection"
	"github.com/rickgao/mesh-provider/internal/network"
)

// Option configures a MeshProvider.
type Option func(*MeshProvider)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *MeshProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDialer sets the transport used to open relay sockets.
func WithDialer(d connection.Dialer) Option {
	return func(p *MeshProvider) {
		p.dialer = d
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(m Metrics) Option {
	return func(p *MeshProvider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithResolver sets the network-descriptor resolver used by GetNetwork.
func WithResolver(r network.Resolver) Option {
	return func(p *MeshProvider) {
		p.resolver = r
	}
}

// WithConnectTimeout bounds each Connect wait. Zero waits forever.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *MeshProvider) {
		p.connectTimeout = d
	}
}

// WithDeferredConnect skips the connection attempt New normally starts,
// so listeners can be registered before the first Connect.
func WithDeferredConnect() Option {
	return func(p *MeshProvider) {
		p.deferConnect = true
	}
}
