package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebSocket
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections_active",
		Help: "The current number of active WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	Evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_evictions_total",
		Help: "Connections closed by the server, by reason.",
	}, []string{"reason"})
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_frames_received_total",
		Help: "The total number of frames received from clients.",
	})

	// Relay
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_relayed_total",
		Help: "Messages persisted and broadcast.",
	})
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_rejected_total",
		Help: "Messages refused by the relay, by reason.",
	}, []string{"reason"})
	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_message_deliveries_total",
		Help: "Copies of messages queued to subscribers.",
	})
	AppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_store_append_duration_seconds",
		Help:    "Latency of message store appends.",
		Buckets: prometheus.DefBuckets,
	})

	// Auth
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_success_total",
		Help: "The total number of successful authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "The total number of failed authentications.",
	}, []string{"reason"})
)

// RegisterPresence exposes the number of tracked identities.
func RegisterPresence(reg prometheus.Registerer, count func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_presence_entries",
		Help: "Identities currently tracked as present.",
	}, func() float64 { return float64(count()) }))
}

// RegisterRooms exposes the number of rooms ever joined.
func RegisterRooms(reg prometheus.Registerer, count func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chat_rooms",
		Help: "Rooms known to the registry.",
	}, func() float64 { return float64(count()) }))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
