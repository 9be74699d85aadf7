// Package metrics provides Prometheus metrics for monitoring fetchguard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerdictsTotal counts URL validation verdicts by outcome and reason.
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchguard_verdicts_total",
			Help: "Total URL validation verdicts by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	// FetchesTotal counts completed fetches by outcome.
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchguard_fetches_total",
			Help: "Total outbound fetches by outcome",
		},
		[]string{"outcome"},
	)

	// FetchDuration tracks fetch duration.
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetchguard_fetch_duration_seconds",
			Help:    "Outbound fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	// UploadsTotal counts upload validations by outcome and reason.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchguard_uploads_total",
			Help: "Total upload validations by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	// RequestsTotal counts API requests by endpoint and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchguard_requests_total",
			Help: "Total API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetchguard_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		VerdictsTotal,
		FetchesTotal,
		FetchDuration,
		UploadsTotal,
		RequestsTotal,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// RecordVerdict records a URL validation verdict.
func RecordVerdict(allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	VerdictsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordFetch records a completed fetch attempt.
func RecordFetch(outcome string, duration time.Duration) {
	FetchesTotal.WithLabelValues(outcome).Inc()
	FetchDuration.Observe(duration.Seconds())
}

// RecordUpload records an upload validation.
func RecordUpload(allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	UploadsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordRequest records an API request.
func RecordRequest(endpoint, status string) {
	RequestsTotal.WithLabelValues(endpoint, status).Inc()
}
