// Package metrics exposes Prometheus collectors for cluster refreshes and
// mutations issued by the dashboard.
//
// RED pattern per resource kind:
//   - Rate:     refresh_total, mutations_total
//   - Errors:   the "error" result label of the above counters
//   - Duration: refresh_duration_seconds
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kaosui"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder owns the collectors. A nil *Recorder records nothing.
type Recorder struct {
	refreshTotal     *prometheus.CounterVec
	refreshDuration  *prometheus.HistogramVec
	refreshSuppress  *prometheus.CounterVec
	refreshDiscarded *prometheus.CounterVec
	mutationsTotal   *prometheus.CounterVec
	sessionState     *prometheus.GaugeVec
}

// NewRecorder registers the collectors with reg. A nil reg registers with the
// default Prometheus registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "List requests issued per resource kind by result.",
			},
			[]string{"kind", "result"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Latency of list requests per resource kind.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		refreshSuppress: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_suppressed_total",
				Help:      "Refreshes that joined a list request already in flight.",
			},
			[]string{"kind"},
		),
		refreshDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_discarded_total",
				Help:      "List responses dropped because the session was reconfigured.",
			},
			[]string{"kind"},
		),
		mutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Create, update and delete calls per resource kind by result.",
			},
			[]string{"kind", "verb", "result"},
		),
		sessionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_state",
				Help:      "1 for the current session state, 0 otherwise.",
			},
			[]string{"state"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

func (r *Recorder) ObserveRefresh(kind string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.refreshTotal.WithLabelValues(kind, result(err)).Inc()
	r.refreshDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (r *Recorder) RefreshSuppressed(kind string) {
	if r == nil {
		return
	}
	r.refreshSuppress.WithLabelValues(kind).Inc()
}

func (r *Recorder) RefreshDiscarded(kind string) {
	if r == nil {
		return
	}
	r.refreshDiscarded.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveMutation(kind, verb string, err error) {
	if r == nil {
		return
	}
	r.mutationsTotal.WithLabelValues(kind, verb, result(err)).Inc()
}

// SetSessionState marks current as the only active state among states.
func (r *Recorder) SetSessionState(current string, states ...string) {
	if r == nil {
		return
	}
	for _, state := range states {
		value := 0.0
		if state == current {
			value = 1
		}
		r.sessionState.WithLabelValues(state).Set(value)
	}
}
