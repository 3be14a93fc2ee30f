package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"sockrest/internal/config"
	"sockrest/internal/infrastructure"
	"sockrest/internal/resource"
)

// Options bounds one connection's resource usage.
type Options struct {
	MaxMessageSize int64
	SendBufferSize int
	PongWait       time.Duration
	WriteWait      time.Duration
	MessageRPS     float64
	MessageBurst   int
}

// DefaultOptions returns the connection defaults used when no config is
// wired in (tests mostly).
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 256,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MessageRPS:     50,
		MessageBurst:   20,
	}
}

// OptionsFromConfig maps the websocket config section onto Options.
func OptionsFromConfig(cfg config.WebSocketConfig) Options {
	return Options{
		MaxMessageSize: cfg.MaxMessageSize,
		SendBufferSize: cfg.SendBufferSize,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		MessageRPS:     cfg.MessageRPS,
		MessageBurst:   cfg.MessageBurst,
	}
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Client is the middleman between one websocket connection and the
// dispatch layer. Inbound messages are processed one at a time, to
// completion, before the next is read; responses and subscribed events go
// out through the buffered send channel drained by WritePump.
type Client struct {
	hub        *Hub
	conn       Connection
	dispatcher Dispatcher

	// Buffered channel of outbound messages. Never closed: the hub
	// signals disconnection through done instead, so enqueue and
	// BroadcastEvent can always send without racing a close.
	send chan []byte

	// done is closed by the hub exactly once when the client is dropped.
	done chan struct{}

	limiter *rate.Limiter
	opts    Options

	id          string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger

	messagesReceived int64
	messagesSent     int64
}

// NewClient creates a client over a live gorilla connection.
func NewClient(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, opts Options, logger *slog.Logger) *Client {
	return NewClientWithConnection(hub, NewConnectionWrapper(conn), dispatcher, opts, logger)
}

// NewClientWithConnection creates a client over any Connection (tests use
// a mock here).
func NewClientWithConnection(hub *Hub, conn Connection, dispatcher Dispatcher, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.New().String()
	logger = logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id),
	)

	return &Client{
		hub:         hub,
		conn:        conn,
		dispatcher:  dispatcher,
		send:        make(chan []byte, opts.SendBufferSize),
		done:        make(chan struct{}),
		limiter:     rate.NewLimiter(rate.Limit(opts.MessageRPS), opts.MessageBurst),
		opts:        opts,
		id:          id,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string {
	return c.id
}

// Subscribe implements resource.Session.
func (c *Client) Subscribe(topic string) {
	c.hub.Subscribe(c, topic)
}

// Unsubscribe implements resource.Session.
func (c *Client) Unsubscribe(topic string) {
	c.hub.Unsubscribe(c, topic)
}

// ReadPump reads action messages from the connection and dispatches them.
// One request is in flight at a time; the response is queued on the send
// channel before the next message is read.
func (c *Client) ReadPump() {
	ctx := resource.WithSession(infrastructure.WithTraceID(context.Background(), c.id), c)

	defer func() {
		c.logger.InfoContext(ctx, "websocket client disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived))
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(ctx, "unexpected websocket close",
					slog.String("error", err.Error()))
			}
			return
		}

		c.messagesReceived++
		recordMessageReceived()

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		resp, err := c.dispatcher.Dispatch(ctx, message)
		if err != nil {
			// Uncaught handler fault: nothing sensible to answer with,
			// surrender the connection to the framework's own handling.
			c.logger.ErrorContext(ctx, "handler fault, closing connection",
				slog.String("error", err.Error()))
			return
		}

		payload, err := resp.Encode()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to encode response envelope",
				slog.String("error", err.Error()))
			continue
		}
		c.enqueue(payload)

		// Reset the deadline: an active requester counts as alive even if
		// its pongs are delayed behind large frames.
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	}
}

// enqueue hands a payload to the write pump without ever blocking the read
// loop. A full buffer means the peer stopped draining; drop and let the
// keepalive tear the connection down. Payloads for an already-dropped
// client are discarded.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- payload:
	default:
		recordDroppedMessage()
		c.logger.Warn("send buffer full, dropping message",
			slog.Int("size", len(payload)))
	}
}

// WritePump pumps queued messages to the websocket connection and keeps
// the connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Info("websocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent))
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("error writing message to websocket",
					slog.String("error", err.Error()))
				return
			}
			c.messagesSent++
			recordMessageSent()

		case <-c.done:
			// The hub dropped this client
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS registers a freshly upgraded connection with the hub and starts
// its pumps.
func ServeWS(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, opts Options, logger *slog.Logger) {
	client := NewClient(hub, conn, dispatcher, opts, logger)
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
