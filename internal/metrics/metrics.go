package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itinera",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "code"},
	)

	itineraryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itinera",
			Name:      "itinerary_events_total",
			Help:      "Published itinerary events by type.",
		},
		[]string{"type"},
	)

	outboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itinera",
			Name:      "outbox_tasks_total",
			Help:      "Processed outbox tasks by type and result.",
		},
		[]string{"type", "result"},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "itinera",
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		},
	)

	exportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "itinera",
			Name:      "export_duration_seconds",
			Help:      "Document export latency by format.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, itineraryEvents, outboxTasks, wsClients, exportDuration)
	})
}

// IncHTTP increments the counter for a route label.
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncEvent(eventType string) {
	itineraryEvents.WithLabelValues(eventType).Inc()
}

// IncOutbox records a processed outbox task; result is "ok", "retry" or "dead".
func IncOutbox(taskType, result string) {
	outboxTasks.WithLabelValues(taskType, result).Inc()
}

func WSClientConnected()    { wsClients.Inc() }
func WSClientDisconnected() { wsClients.Dec() }

func ObserveExport(format string, seconds float64) {
	exportDuration.WithLabelValues(format).Observe(seconds)
}
