// Package metrics provides Prometheus instrumentation for the GeekZone
// realtime layer: connection and presence gauges, per-event counters, and a
// send latency histogram.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geekzone_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the number of distinct user identities with at
	// least one live connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geekzone_online_users",
		Help: "Current number of distinct online users",
	})

	// EventsTotal counts inbound protocol events by type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geekzone_events_total",
		Help: "Total number of protocol events processed",
	}, []string{"type"})

	// MessagesPersisted counts messages written to the store, labeled by
	// outcome: "ok" or "failed".
	MessagesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geekzone_messages_persisted_total",
		Help: "Total number of message persistence attempts",
	}, []string{"outcome"})

	// SendLatency records the persist-plus-broadcast latency of a
	// send-message event in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geekzone_send_latency_seconds",
		Help:    "send-message handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// NotificationsPushed counts fan-out notifications, labeled by whether
	// the recipient had a live connection.
	NotificationsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geekzone_notifications_pushed_total",
		Help: "Total number of notification pushes",
	}, []string{"delivery"}) // delivery = "live", "stored_only"
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		EventsTotal,
		MessagesPersisted,
		SendLatency,
		NotificationsPushed,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
