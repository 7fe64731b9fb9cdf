package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                sync.Once
	httpRequestsTotal           *prometheus.CounterVec
	httpLatencySeconds          *prometheus.HistogramVec
	registrationsTotal          *prometheus.CounterVec
	registrationConflictsTotal  *prometheus.CounterVec
	notificationsPublishedTotal *prometheus.CounterVec
	broadcastsTotal             *prometheus.CounterVec
	wsConnectionsActive         prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "activity_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		registrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_registrations_total",
			Help: "Registration state transitions grouped by outcome.",
		}, []string{"outcome"})

		registrationConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_registration_conflicts_total",
			Help: "Registration attempts rejected by a business invariant.",
		}, []string{"reason"})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_notifications_published_total",
			Help: "Durable notifications created, by event type.",
		}, []string{"type"})

		broadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_broadcasts_total",
			Help: "Ephemeral group broadcasts issued, by event type.",
		}, []string{"type"})

		wsConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activity_ws_connections_active",
			Help: "Number of websocket connections currently registered.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			registrationsTotal,
			registrationConflictsTotal,
			notificationsPublishedTotal,
			broadcastsTotal,
			wsConnectionsActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// RegistrationsTotal exposes the registration transition counter.
func RegistrationsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return registrationsTotal
}

// RegistrationConflicts exposes the counter for invariant rejections.
func RegistrationConflicts() *prometheus.CounterVec {
	RegisterMetrics()
	return registrationConflictsTotal
}

// NotificationsPublishedTotal exposes the durable notification counter.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// BroadcastsTotal exposes the group broadcast counter.
func BroadcastsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return broadcastsTotal
}

// WSConnectionsActive exposes the live connection gauge.
func WSConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return wsConnectionsActive
}
