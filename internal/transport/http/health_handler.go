package http

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler reports gateway liveness and the registered resources.
type HealthHandler struct {
	hub       *Hub
	resources []string
	startedAt time.Time
}

// NewHealthHandler creates a health handler over the given resource names.
func NewHealthHandler(hub *Hub, resources []string) *HealthHandler {
	sorted := append([]string(nil), resources...)
	sort.Strings(sorted)
	return &HealthHandler{
		hub:       hub,
		resources: sorted,
		startedAt: time.Now(),
	}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status        string   `json:"status"`
	Resources     []string `json:"resources"`
	ActiveClients int      `json:"active_clients"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Timestamp     string   `json:"timestamp"`
}

// Render implements render.Renderer.
func (h *HealthResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusOK)
	return nil
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, &HealthResponse{
		Status:        "healthy",
		Resources:     h.resources,
		ActiveClients: h.hub.ClientCount(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
