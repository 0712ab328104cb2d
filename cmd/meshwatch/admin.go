package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// relayStatus is the slice of the provider the admin endpoints need.
type relayStatus interface {
	Endpoint() string
	Connected() bool
	ListenerCount(event string) int
	Connect(ctx context.Context) error
	Disconnect() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// newAdminRouter serves health, debug and metrics endpoints. db may be nil
// when the archive is disabled.
func newAdminRouter(relay relayStatus, db pinger, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if relay.Connected() {
			health.Components["relay"] = "connected"
		} else {
			health.Status = "degraded"
			health.Components["relay"] = "disconnected"
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["archive"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["archive"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	r.Get("/debug/connection", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"endpoint":  relay.Endpoint(),
			"connected": relay.Connected(),
			"listeners": relay.ListenerCount(""),
		})
	})

	r.Post("/debug/reconnect", func(w http.ResponseWriter, req *http.Request) {
		if err := relay.Connect(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "connected"})
	})

	r.Post("/debug/disconnect", func(w http.ResponseWriter, req *http.Request) {
		if err := relay.Disconnect(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "disconnected"})
	})

	r.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
