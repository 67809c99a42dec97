package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	xpAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookclub",
			Name:      "xp_awarded_total",
			Help:      "Total XP granted, by action kind.",
		},
		[]string{"action"},
	)

	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookclub",
			Name:      "level_ups_total",
			Help:      "Total number of level-ups persisted.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookclub",
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome.",
		},
		[]string{"status"},
	)

	bulkAwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookclub",
			Name:      "bulk_awards_total",
			Help:      "Club-wide XP awards by outcome.",
		},
		[]string{"status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookclub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route", "status"},
	)
)

// Notification outcomes.
const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationDropped = "dropped"
)

func init() {
	Registry.MustRegister(
		xpAwarded,
		levelUps,
		notifications,
		bulkAwards,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordXPAwarded(action string, amount int64) {
	xpAwarded.WithLabelValues(action).Add(float64(amount))
}

func RecordLevelUp() {
	levelUps.Inc()
}

func RecordNotification(status string) {
	notifications.WithLabelValues(status).Inc()
}

func RecordBulkAward(committed bool) {
	status := "committed"
	if !committed {
		status = "failed"
	}
	bulkAwards.WithLabelValues(status).Inc()
}

func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
