// Package metrics tracks Prometheus metrics for the collector: per-device
// session attempts, job runs, and credential discovery. All metrics use
// the "velocitycollector_" prefix. Methods handle a nil receiver
// gracefully, so a nil *Metrics acts as a no-op (zero overhead when
// metrics are disabled).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

// Metrics bundles the collector's Prometheus instruments.
type Metrics struct {
	// SessionAttempts counts driver attempts by outcome category.
	// Labels: category=[success, connection_refused, ...]
	SessionAttempts *prometheus.CounterVec

	// SessionDuration tracks attempt duration by outcome category.
	SessionDuration *prometheus.HistogramVec

	// JobRuns counts completed job runs by final status.
	// Labels: status=[success, partial, failed]
	JobRuns *prometheus.CounterVec

	// DevicesPerJob tracks device counts per job run by outcome.
	// Labels: outcome=[success, failed, validation_skipped]
	DevicesPerJob *prometheus.CounterVec

	// DiscoveryMatches counts credential discovery outcomes.
	// Labels: outcome=[matched, no_match]
	DiscoveryMatches *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New creates and registers the collector's Prometheus metrics. If
// registerer is nil, prometheus.DefaultRegisterer is used. Idempotent:
// repeated calls return the same registered instance.
func New(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}

		m := &Metrics{
			SessionAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "velocitycollector_session_attempts_total",
					Help: "Total SSH session attempts by outcome category",
				},
				[]string{"category"},
			),
			SessionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "velocitycollector_session_duration_seconds",
					Help:    "SSH session attempt duration by outcome category",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"category"},
			),
			JobRuns: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "velocitycollector_job_runs_total",
					Help: "Total job runs by final status",
				},
				[]string{"status"},
			),
			DevicesPerJob: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "velocitycollector_job_devices_total",
					Help: "Total devices processed by outcome",
				},
				[]string{"outcome"},
			),
			DiscoveryMatches: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "velocitycollector_discovery_results_total",
					Help: "Total credential discovery outcomes",
				},
				[]string{"outcome"},
			),
		}

		registerer.MustRegister(
			m.SessionAttempts,
			m.SessionDuration,
			m.JobRuns,
			m.DevicesPerJob,
			m.DiscoveryMatches,
		)
		metricsInstance = m
	})
	return metricsInstance
}

// ObserveAttempt implements executor.Metrics.
func (m *Metrics) ObserveAttempt(category sshdriver.ErrorCategory, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionAttempts.WithLabelValues(string(category)).Inc()
	m.SessionDuration.WithLabelValues(string(category)).Observe(duration.Seconds())
}

// ObserveJobRun records a completed job's final status.
func (m *Metrics) ObserveJobRun(status string) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(status).Inc()
}

// ObserveDeviceOutcome records one device's outcome within a job run.
func (m *Metrics) ObserveDeviceOutcome(outcome string) {
	if m == nil {
		return
	}
	m.DevicesPerJob.WithLabelValues(outcome).Inc()
}

// ObserveDiscoveryResult records one device's discovery outcome.
func (m *Metrics) ObserveDiscoveryResult(outcome string) {
	if m == nil {
		return
	}
	m.DiscoveryMatches.WithLabelValues(outcome).Inc()
}
