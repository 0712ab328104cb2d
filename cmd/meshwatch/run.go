package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/mesh-provider/internal/config"
	"github.com/rickgao/mesh-provider/internal/connection"
	"github.com/rickgao/mesh-provider/internal/database"
	"github.com/rickgao/mesh-provider/internal/events"
	"github.com/rickgao/mesh-provider/internal/logging"
	"github.com/rickgao/mesh-provider/internal/metrics"
	"github.com/rickgao/mesh-provider/internal/provider"
	"github.com/rickgao/mesh-provider/internal/version"
	"github.com/rickgao/mesh-provider/internal/writer"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the relay and stream subscription events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/meshwatch.yaml", "path to config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting meshwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"endpoint", cfg.Relay.Endpoint,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(registry, nil)

	// Archive (optional)
	var pool *pgxpool.Pool
	var archive *writer.SubscriptionWriter
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			return fmt.Errorf("connect archive database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		archive = writer.NewSubscriptionWriter(writer.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, m, logger)
	}

	p := provider.New(cfg.Relay.Endpoint,
		provider.WithDeferredConnect(),
		provider.WithLogger(logger),
		provider.WithMetrics(m),
		provider.WithConnectTimeout(cfg.Relay.ConnectTimeout),
		provider.WithDialer(connection.NewDialer(clientConfig(cfg.Relay), logger)),
	)
	registerListeners(p, cfg.Relay, archive, logger)

	g, gctx := errgroup.WithContext(ctx)

	if archive != nil {
		if err := archive.Start(gctx); err != nil {
			return fmt.Errorf("start archive: %w", err)
		}
	}

	var db pinger
	if pool != nil {
		db = pool
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newAdminRouter(p, db, registry, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting admin server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := p.Connect(gctx); err != nil {
			// Surfaced as an error event too; the admin endpoints stay up.
			logger.Error("initial relay connect failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.Disconnect(); err != nil {
			logger.Warn("relay disconnect failed", "error", err)
		}
		if archive != nil {
			if err := archive.Stop(shutdownCtx); err != nil {
				logger.Warn("archive stop failed", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("meshwatch stopped")
	return nil
}

func clientConfig(r config.RelayConfig) connection.ClientConfig {
	cc := connection.DefaultClientConfig()
	cc.HandshakeTimeout = r.HandshakeTimeout
	cc.PingInterval = r.PingInterval
	cc.PingTimeout = r.PingTimeout
	cc.WriteTimeout = r.WriteTimeout

	if len(r.Headers) > 0 {
		cc.Header = make(http.Header, len(r.Headers))
		for k, v := range r.Headers {
			cc.Header.Set(k, v)
		}
	}
	return cc
}

// registerListeners wires provider events to logging, the archive and the
// configured on-connect frames.
func registerListeners(p *provider.MeshProvider, relay config.RelayConfig, archive *writer.SubscriptionWriter, logger *slog.Logger) {
	p.On(provider.EventConnect, events.NewListener(func(...any) {
		for _, frame := range relay.OnConnect {
			if err := p.Send([]byte(frame)); err != nil {
				logger.Error("failed to send on-connect frame", "error", err)
			}
		}
	}))

	p.On(provider.EventSubscription, events.NewListener(func(args ...any) {
		logger.Debug("subscription event", "payload", args[0])
		if archive != nil {
			archive.Enqueue(args[0])
		}
	}))

	p.On(provider.EventError, events.NewListener(func(args ...any) {
		logger.Warn("relay error", "error", args[0])
	}))

	p.On(provider.EventClose, events.NewListener(func(args ...any) {
		logger.Warn("relay connection dropped",
			"code", args[0],
			"reason", args[1],
		)
	}))
}
