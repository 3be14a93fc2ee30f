// Package http wires the gateway's HTTP surface: the per-resource
// WebSocket upgrade endpoint plus health and metrics.
package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	gorillaws "github.com/gorilla/websocket"

	"sockrest/internal/config"
	"sockrest/internal/errors"
	"sockrest/internal/infrastructure"
	"sockrest/internal/resource"
	"sockrest/internal/websocket"
)

// WSHandler upgrades HTTP requests to WebSocket connections and binds
// each connection to its resource's action registry.
type WSHandler struct {
	hub        *Hub
	registries map[string]*resource.Registry
	upgrader   gorillaws.Upgrader
	opts       websocket.Options
	logger     *slog.Logger
}

// Hub is the subset of the websocket hub the transport needs.
type Hub = websocket.Hub

// NewWSHandler creates the upgrade handler. allowedOrigins of ["*"]
// disables the origin check.
func NewWSHandler(hub *Hub, registries map[string]*resource.Registry, cfg config.WebSocketConfig, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &WSHandler{
		hub:        hub,
		registries: registries,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		opts:   websocket.OptionsFromConfig(cfg),
		logger: logger.With(slog.String("component", "transport.ws")),
	}
}

// ServeHTTP handles GET /ws/{resource}.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	registry, ok := h.registries[name]
	if !ok {
		h.logger.WarnContext(r.Context(), "upgrade for unknown resource",
			slog.String("resource", name))
		render.Render(w, r, errors.UnknownResource(name))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own response; just log.
		h.logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("resource", name),
			slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(r.Context(), "websocket connection established",
		slog.String("resource", name),
		slog.String("remote_addr", conn.RemoteAddr().String()))

	websocket.ServeWS(h.hub, conn, registry, h.opts, h.logger)
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
