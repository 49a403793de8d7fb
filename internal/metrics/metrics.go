package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatrelay"

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_sessions_active",
		Help:      "Browser sessions currently checked out of the pool.",
	})
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "browser_sessions_created_total",
		Help:      "Browser sessions created since start.",
	})
	sessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "browser_session_failures_total",
		Help:      "Session lifecycle failures by stage.",
	}, []string{"stage"})

	credentialRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_refresh_total",
		Help:      "Credential refresh attempts by result (fetched, cached, failed).",
	}, []string{"result"})

	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Upstream chat calls by mode and outcome.",
	}, []string{"mode", "outcome"})
	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Time from session acquisition to the end of the upstream call.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"mode"})
	streamFragments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_fragments_total",
		Help:      "Text fragments relayed to streaming consumers.",
	})
)

func RecordSessionOpened() {
	sessionsActive.Inc()
	sessionsCreated.Inc()
}

func RecordSessionClosed() {
	sessionsActive.Dec()
}

// RecordSessionFailure counts a failure at stage "launch", "create" or "close".
func RecordSessionFailure(stage string) {
	sessionFailures.WithLabelValues(stage).Inc()
}

func RecordCredentialRefresh(result string) {
	credentialRefreshes.WithLabelValues(result).Inc()
}

func RecordUpstream(mode string, err error, started time.Time) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(mode, outcome).Inc()
	upstreamDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

func RecordStreamFragment() {
	streamFragments.Inc()
}
