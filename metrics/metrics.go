package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanDecisions counts quota checks by tier and outcome (allowed/denied).
	ScanDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oksnap_scan_decisions_total",
			Help: "Daily scan quota decisions by tier and outcome",
		},
		[]string{"level", "outcome"},
	)

	// QuotaStoreFailures counts quota store errors that were swallowed
	// (quota accounting fails open).
	QuotaStoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oksnap_quota_store_failures_total",
			Help: "Quota store read/write failures absorbed by fail-open handling",
		},
		[]string{"op"},
	)

	// Publishes counts blog publish attempts by outcome
	// (created/alreadyExists/failed).
	Publishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oksnap_blog_publishes_total",
			Help: "Blog publish attempts by outcome",
		},
		[]string{"outcome"},
	)

	// IndexRetries counts optimistic-concurrency retries on the recipes index.
	IndexRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oksnap_index_write_retries_total",
			Help: "Recipes index writes retried after a stale-sha conflict",
		},
	)

	// UpstreamDuration tracks latency of calls to external services.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oksnap_upstream_duration_seconds",
			Help:    "Duration of upstream service calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"service", "status"},
	)
)

// ObserveUpstream records the duration of one upstream call.
func ObserveUpstream(service string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	UpstreamDuration.WithLabelValues(service, status).Observe(time.Since(start).Seconds())
}
