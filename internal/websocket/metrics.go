package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sockrest",
		Subsystem: "ws",
		Name:      "connections_total",
		Help:      "Total number of accepted WebSocket connections.",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sockrest",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Currently connected clients.",
	})

	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sockrest",
		Subsystem: "ws",
		Name:      "messages_received_total",
		Help:      "Inbound action messages read from clients.",
	})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sockrest",
		Subsystem: "ws",
		Name:      "messages_sent_total",
		Help:      "Outbound envelopes written to clients.",
	})

	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sockrest",
		Subsystem: "ws",
		Name:      "dropped_messages_total",
		Help:      "Messages dropped because a client stopped draining its buffer.",
	})
)

func recordConnection(active int) {
	connectionsTotal.Inc()
	activeConnections.Set(float64(active))
}

func recordDisconnection(active int) {
	activeConnections.Set(float64(active))
}

func recordMessageReceived() { messagesReceived.Inc() }
func recordMessageSent()     { messagesSent.Inc() }
func recordDroppedMessage()  { droppedMessages.Inc() }
