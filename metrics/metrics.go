// Package metrics exposes Prometheus instrumentation for the event router and
// agent turns. Registration is idempotent; the daemon serves the scrape
// endpoint only when a listen address is configured.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coworker_commands_total",
			Help: "Total number of client commands dispatched",
		},
		[]string{"type"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coworker_events_total",
			Help: "Total number of server events emitted",
		},
		[]string{"type"},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coworker_turn_duration_seconds",
			Help:    "Agent turn duration from start to terminal result",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	activeTurns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coworker_active_turns",
			Help: "Number of agent turns currently running",
		},
	)

	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coworker_search_duration_seconds",
			Help:    "Search helper invocation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"helper"},
	)

	permissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coworker_permission_decisions_total",
			Help: "Total number of resolved tool-approval requests",
		},
		[]string{"behavior"},
	)

	initOnce sync.Once
)

// Init registers all metrics with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			commandsTotal,
			eventsTotal,
			turnDuration,
			activeTurns,
			searchDuration,
			permissionDecisionsTotal,
		)
	})
}

// Handler returns the HTTP handler for the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand counts one dispatched client command.
func RecordCommand(cmdType string) {
	commandsTotal.WithLabelValues(cmdType).Inc()
}

// RecordEvent counts one emitted server event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// TurnStarted increments the active-turn gauge.
func TurnStarted() {
	activeTurns.Inc()
}

// TurnFinished records a completed turn and decrements the gauge.
func TurnFinished(duration time.Duration) {
	activeTurns.Dec()
	turnDuration.Observe(duration.Seconds())
}

// RecordSearch records one search helper invocation.
func RecordSearch(helper string, duration time.Duration) {
	searchDuration.WithLabelValues(helper).Observe(duration.Seconds())
}

// RecordPermissionDecision counts one resolved approval request.
func RecordPermissionDecision(behavior string) {
	permissionDecisionsTotal.WithLabelValues(behavior).Inc()
}
