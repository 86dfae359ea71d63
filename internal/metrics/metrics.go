// Package metrics exposes Prometheus collectors for realtime delivery.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	onlineUsers *prometheus.GaugeVec
	connections *prometheus.GaugeVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	inbound     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		onlineUsers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "social_online_users",
			Help: "Users with at least one live connection.",
		}, []string{"namespace"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "social_connections",
			Help: "Live authenticated connections.",
		}, []string{"namespace"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_delivered_total",
			Help: "Outbound events queued for a connection.",
		}, []string{"namespace", "event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_events_dropped_total",
			Help: "Outbound events dropped because a connection was full or closed.",
		}, []string{"namespace"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "social_inbound_events_total",
			Help: "Inbound client events by type.",
		}, []string{"namespace", "event"}),
	}
	reg.MustRegister(m.onlineUsers, m.connections, m.delivered, m.dropped, m.inbound)
	return m
}

func (m *Metrics) SetPresence(namespace string, users, connections int) {
	if m == nil {
		return
	}
	m.onlineUsers.WithLabelValues(namespace).Set(float64(users))
	m.connections.WithLabelValues(namespace).Set(float64(connections))
}

func (m *Metrics) Delivered(namespace, event string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(namespace, event).Inc()
}

func (m *Metrics) Dropped(namespace string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(namespace).Inc()
}

func (m *Metrics) Inbound(namespace, event string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(namespace, event).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
