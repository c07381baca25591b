// Package metrics registers the Prometheus collectors for game events.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imposter_sessions_created_total",
			Help: "Total number of game sessions created",
		},
	)

	roundsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imposter_rounds_started_total",
			Help: "Total number of rounds started",
		},
		[]string{"kind"},
	)

	votesCast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imposter_votes_cast_total",
			Help: "Total number of ballots cast or overwritten",
		},
	)

	roundsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imposter_rounds_resolved_total",
			Help: "Total number of rounds resolved by outcome",
		},
		[]string{"winners", "trigger"},
	)

	storeConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imposter_store_conflicts_total",
			Help: "Optimistic concurrency conflicts by operation",
		},
		[]string{"operation", "exhausted"},
	)

	topicRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imposter_topic_requests_total",
			Help: "Topic generation calls by source and status",
		},
		[]string{"source", "status"},
	)

	topicDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imposter_topic_duration_seconds",
			Help:    "Topic generation call duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"source"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	cleanupRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imposter_cleanup_removed_total",
			Help: "Players or sessions removed by maintenance sweeps",
		},
		[]string{"sweep"},
	)
)

func RecordSessionCreated() {
	sessionsCreated.Inc()
}

// RecordRoundStarted counts first rounds ("start") and follow-ups ("new_round").
func RecordRoundStarted(kind string) {
	roundsStarted.WithLabelValues(kind).Inc()
}

func RecordVote() {
	votesCast.Inc()
}

func RecordRoundResolved(winners, trigger string) {
	roundsResolved.WithLabelValues(winners, trigger).Inc()
}

func RecordConflict(operation string, exhausted bool) {
	e := "false"
	if exhausted {
		e = "true"
	}
	storeConflicts.WithLabelValues(operation, e).Inc()
}

func RecordTopicCall(source string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	topicRequests.WithLabelValues(source, status).Inc()
	topicDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordCleanup(sweep string, removed int) {
	if removed > 0 {
		cleanupRemoved.WithLabelValues(sweep).Add(float64(removed))
	}
}

// HTTPRequestStarted and RecordHTTPRequest bracket one request. route is the
// router pattern, not the raw path.
func HTTPRequestStarted() {
	httpRequestsInFlight.Inc()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsInFlight.Dec()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
