// Package metrics provides Prometheus metrics collection for the broadcast
// engine, adapted from the teacher's infrastructure/metrics package: the
// same CounterVec/HistogramVec/Gauge shape, retargeted at jobs, groups, and
// sessions instead of HTTP requests and blockchain transactions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the engine updates.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsStopped   *prometheus.CounterVec // label: reason (the engine only emits "stopped")
	JobsRunning   prometheus.Gauge
	RoundDuration prometheus.Histogram

	GroupsSent    prometheus.Counter
	GroupsFailed  *prometheus.CounterVec // label: kind (sessionclient.ErrKind: FLOOD_WAIT, AUTH_REVOKED or TRANSIENT)
	GroupsSkipped *prometheus.CounterVec // label: reason

	// SessionCooldownsArmed (label: cause) is registered and exported, but no
	// code in this module increments it, so it stays at zero.
	SessionCooldownsArmed *prometheus.CounterVec
	SessionsFrozen        prometheus.Counter

	ConnectErrors prometheus.Counter
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// so tests can use a throwaway prometheus.NewRegistry() instead of the
// process-global default.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reklamabot_jobs_started_total",
			Help: "Total number of broadcast jobs started.",
		}),
		JobsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reklamabot_jobs_stopped_total",
			Help: "Total number of broadcast jobs that left the Running state.",
		}, []string{"reason"}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reklamabot_jobs_running",
			Help: "Current number of Jobs in the Running state.",
		}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reklamabot_round_duration_seconds",
			Help:    "Wall-clock duration of one completed round.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		GroupsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reklamabot_groups_sent_total",
			Help: "Total number of successful sends.",
		}),
		GroupsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reklamabot_groups_failed_total",
			Help: "Total number of failed sends, by error kind.",
		}, []string{"kind"}),
		GroupsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reklamabot_groups_skipped_total",
			Help: "Total number of skipped groups, by reason.",
		}, []string{"reason"}),
		SessionCooldownsArmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reklamabot_session_cooldowns_armed_total",
			Help: "Total number of times a session cooldown was armed, by cause.",
		}, []string{"cause"}),
		SessionsFrozen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reklamabot_sessions_frozen_total",
			Help: "Total number of sessions transitioned to Banned+frozen via AuthRevoked.",
		}),
		ConnectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reklamabot_connect_errors_total",
			Help: "Total number of SessionClient.Connect failures (post-retry, post-breaker).",
		}),
	}

	registerer.MustRegister(
		m.JobsStarted, m.JobsStopped, m.JobsRunning, m.RoundDuration,
		m.GroupsSent, m.GroupsFailed, m.GroupsSkipped,
		m.SessionCooldownsArmed, m.SessionsFrozen, m.ConnectErrors,
	)
	return m
}
