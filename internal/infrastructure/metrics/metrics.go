package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "thermostat_alerts"

// Metrics holds the alerting collectors exposed on the monitoring server.
type Metrics struct {
	Sweeps             *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	LastSweep          *prometheus.GaugeVec
	AlertsTriggered    *prometheus.CounterVec
	AlertsSuppressed   *prometheus.CounterVec
	AlertsResolved     *prometheus.CounterVec
	SubscriptionErrors prometheus.Counter
	Notifications      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweeps by result (completed, skipped, failed)",
		}, []string{"result"}),

		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of completed sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		LastSweep: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_subscriptions",
			Help:      "Subscription counts of the most recent sweep",
		}, []string{"outcome"}),

		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alert episodes created",
		}, []string{"kind"}),

		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Triggers suppressed by cooldown or dedup",
		}, []string{"kind"}),

		AlertsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alert episodes resolved",
		}, []string{"kind"}),

		SubscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_errors_total",
			Help:      "Subscriptions that failed evaluation or reconciliation",
		}),

		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification outcomes (queued, sent, retried, dead_letter, refused)",
		}, []string{"result"}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Sweeps.Describe(ch)
	m.SweepDuration.Describe(ch)
	m.LastSweep.Describe(ch)
	m.AlertsTriggered.Describe(ch)
	m.AlertsSuppressed.Describe(ch)
	m.AlertsResolved.Describe(ch)
	m.SubscriptionErrors.Describe(ch)
	m.Notifications.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Sweeps.Collect(ch)
	m.SweepDuration.Collect(ch)
	m.LastSweep.Collect(ch)
	m.AlertsTriggered.Collect(ch)
	m.AlertsSuppressed.Collect(ch)
	m.AlertsResolved.Collect(ch)
	m.SubscriptionErrors.Collect(ch)
	m.Notifications.Collect(ch)
}

var (
	once           sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide collectors. They are registered with the
// default prometheus registry on first use.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = NewMetrics()
		prometheus.MustRegister(defaultMetrics)
	})
	return defaultMetrics
}
