package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dining"

// Metrics groups the counters exported by the dialogue engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	turns         *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	collaborator  *prometheus.CounterVec
	fastPath      prometheus.Counter
	recommendSize prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dialogue",
				Name:      "turns_total",
				Help:      "Processed turns by the stage reached and the outcome",
			},
			[]string{"stage", "outcome"}, // outcome: advanced, reprompt, degraded, error
		),
		turnLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dialogue",
				Name:      "turn_duration_seconds",
				Help:      "Wall time to process one turn",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		),
		collaborator: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "calls_total",
				Help:      "Collaborator calls by operation and result source",
			},
			[]string{"operation", "source"}, // source: live, cache, default, error
		),
		fastPath: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dialogue",
			Name:      "fast_path_total",
			Help:      "Conversations that took the extreme-fatigue shortcut",
		}),
		recommendSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "recommendations",
			Help:      "Number of recommendations produced per compose",
			Buckets:   []float64{0, 1, 2, 3},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.turnLatency, m.collaborator, m.fastPath, m.recommendSize)
	}
	return m
}

func (m *Metrics) ObserveTurn(stage, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(stage, outcome).Inc()
	m.turnLatency.WithLabelValues(stage).Observe(took.Seconds())
}

func (m *Metrics) CollaboratorCall(operation, source string) {
	if m == nil {
		return
	}
	m.collaborator.WithLabelValues(operation, source).Inc()
}

func (m *Metrics) FastPath() {
	if m == nil {
		return
	}
	m.fastPath.Inc()
}

func (m *Metrics) Recommendations(n int) {
	if m == nil {
		return
	}
	m.recommendSize.Observe(float64(n))
}
