package websocket

import (
	"log/slog"
	"sync"
	"time"

	"sockrest/internal/infrastructure"
)

// Hub maintains the set of active clients and the per-resource
// subscription groups that receive pushed change events.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// subscriptions maps a resource topic to its subscribed clients
	subscriptions map[string]map[*Client]bool

	mu sync.RWMutex

	logger *slog.Logger

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance with dependency injection
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscriptions: make(map[string]map[*Client]bool),
		logger:        logger,
		quit:          make(chan struct{}),
	}
}

// Start starts the hub's goroutines
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			recordConnection(count)
			h.logger.Info("client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
				count := len(h.clients)
				h.mu.Unlock()

				recordDisconnection(count)
				h.logger.Info("client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}
		}
	}
}

// dropLocked removes a client from the registry and every subscription
// group and closes its done channel. The send channel is left open so
// concurrent broadcasts and enqueues stay safe; the write pump exits on
// done and closes the connection. Callers hold h.mu, which also
// guarantees done is closed exactly once: a client leaves h.clients the
// same instant its done closes.
func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	for topic, subs := range h.subscriptions {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, topic)
		}
	}
	close(client.done)
}

// Subscribe adds a client to a resource topic's event stream.
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[topic]
	if !ok {
		subs = make(map[*Client]bool)
		h.subscriptions[topic] = subs
	}
	subs[client] = true

	h.logger.Debug("client subscribed",
		slog.String("client_id", client.id),
		slog.String("topic", topic),
		slog.Int("subscribers", len(subs)))
}

// Unsubscribe removes a client from a resource topic's event stream.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[topic]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, topic)
	}

	h.logger.Debug("client unsubscribed",
		slog.String("client_id", client.id),
		slog.String("topic", topic))
}

// BroadcastEvent implements resource.Broadcaster: it delivers an encoded
// event envelope to every subscriber of the topic. Clients that stopped
// draining their buffer are disconnected rather than letting one slow
// consumer stall the rest.
func (h *Hub) BroadcastEvent(topic string, payload []byte) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.subscriptions[topic]))
	for client := range h.subscriptions[topic] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	failed := 0
	for _, client := range subscribers {
		select {
		case client.send <- payload:
		default:
			failed++
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			recordDroppedMessage()
			h.logger.Warn("subscriber send buffer full, disconnecting",
				slog.String("client_id", client.id),
				slog.String("topic", topic))
		}
	}

	h.logger.Debug("event broadcast",
		slog.String("topic", topic),
		slog.Int("subscribers", len(subscribers)),
		slog.Int("failed", failed),
		slog.Int("payload_size", len(payload)))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[topic])
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client, tolerating a hub that already stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Stop gracefully stops the hub
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.dropLocked(client)
	}
}
