package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision module.
type Metrics struct {
	// Decision outcomes by action and reason
	Outcomes *prometheus.CounterVec

	// Control API call latency by action
	ControlLatency *prometheus.HistogramVec

	// Enforcement actions that ultimately failed
	MissedEnforcements prometheus.Counter
}

// New creates a new Metrics instance with all decision module metrics
// registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callfence_decision_outcomes_total",
			Help: "Total decision outcomes by action and reason",
		}, []string{"action", "reason"}),

		ControlLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callfence_control_action_duration_seconds",
			Help:    "Duration of reject/terminate calls against the control API",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"action"}),

		MissedEnforcements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callfence_missed_enforcements_total",
			Help: "Control actions that failed after retry, logged as compliance incidents",
		}),
	}
}

// ObserveOutcome records one decision outcome.
func (m *Metrics) ObserveOutcome(action, reason string) {
	if m != nil {
		m.Outcomes.WithLabelValues(action, reason).Inc()
	}
}

// ObserveControlLatency records the duration of a control API call.
func (m *Metrics) ObserveControlLatency(action string, d time.Duration) {
	if m != nil {
		m.ControlLatency.WithLabelValues(action).Observe(d.Seconds())
	}
}

// IncMissedEnforcement records an enforcement action that ultimately failed.
func (m *Metrics) IncMissedEnforcement() {
	if m != nil {
		m.MissedEnforcements.Inc()
	}
}
