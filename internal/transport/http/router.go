package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sockrest/internal/config"
	"sockrest/internal/infrastructure"
	"sockrest/internal/middleware"
	"sockrest/internal/resource"
)

// NewRouter assembles the gateway's HTTP surface.
func NewRouter(hub *Hub, registries map[string]*resource.Registry, cfg *config.Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	if cfg.Security.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, logger)
		r.Use(rl.Handler)
	}

	names := make([]string, 0, len(registries))
	for name := range registries {
		names = append(names, name)
	}

	wsHandler := NewWSHandler(hub, registries, cfg.WebSocket, cfg.Security.AllowedOrigins, logger)
	healthHandler := NewHealthHandler(hub, names)

	r.Get("/ws/{resource}", wsHandler.ServeHTTP)
	r.Get("/api/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
