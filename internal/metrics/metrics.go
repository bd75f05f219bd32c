package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundMessages counts transport messages by kind (text/document).
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autochat_inbound_messages_total",
		Help: "Inbound chat messages received, by kind.",
	}, []string{"kind"})

	// RepliesSent counts outbound replies by category.
	RepliesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autochat_replies_sent_total",
		Help: "Replies sent back over the chat transport, by category.",
	}, []string{"category"})

	// DroppedMessages counts silently ignored messages by reason.
	DroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autochat_dropped_messages_total",
		Help: "Messages dropped without a reply, by reason.",
	}, []string{"reason"})

	// ProcessingCallbacks counts sidecar progress callbacks by status.
	ProcessingCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autochat_processing_callbacks_total",
		Help: "Dataset processing callbacks received, by status.",
	}, []string{"status"})

	// ActiveSessions tracks tenant sessions currently connected.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autochat_active_sessions",
		Help: "Tenant chat sessions in the connected state.",
	})

	// SessionReconnects counts scheduled reconnect attempts.
	SessionReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autochat_session_reconnects_total",
		Help: "Reconnect attempts scheduled after an unexpected close.",
	})
)
