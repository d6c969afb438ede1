// Package metrics provides Prometheus-based metrics recording for the
// onboarding engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records engine and external-call metrics.
type Recorder struct {
	transitionsTotal   *prometheus.CounterVec
	rejectedTotal      *prometheus.CounterVec
	externalErrorTotal *prometheus.CounterVec
	onboardedTotal     prometheus.Counter
	applyDuration      *prometheus.HistogramVec
}

// NewRecorder creates a recorder registered on reg. Pass nil to use the
// default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_transitions_total",
				Help: "Total number of committed state transitions by source, target, and event",
			},
			[]string{"from", "to", "event"},
		),
		rejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_rejected_events_total",
				Help: "Total number of events rejected as illegal for the current state",
			},
			[]string{"state", "event"},
		),
		externalErrorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_external_errors_total",
				Help: "Total number of external service failures by service and kind",
			},
			[]string{"service", "kind"},
		),
		onboardedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "onboarding_completed_total",
				Help: "Total number of trainees that reached the onboarded state",
			},
		),
		applyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onboarding_apply_duration_seconds",
				Help:    "Duration of event applications including bound actions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
	}
}

// ObserveTransition records a committed transition.
func (r *Recorder) ObserveTransition(from, to, event string, duration time.Duration) {
	r.transitionsTotal.WithLabelValues(from, to, event).Inc()
	r.applyDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// IncRejected records an event that was illegal for the current state.
func (r *Recorder) IncRejected(state, event string) {
	r.rejectedTotal.WithLabelValues(state, event).Inc()
}

// IncExternalError records a failed external call.
func (r *Recorder) IncExternalError(service, kind string) {
	r.externalErrorTotal.WithLabelValues(service, kind).Inc()
}

// IncOnboarded records a trainee completing onboarding.
func (r *Recorder) IncOnboarded() {
	r.onboardedTotal.Inc()
}
