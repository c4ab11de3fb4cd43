// Package metrics defines the Prometheus metrics of the poller and delivery path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedforwarder"

// Cycle results.
const (
	CycleCompleted = "completed"
	CycleSkipped   = "skipped"
)

// Metrics holds all collectors. A nil *Metrics records nothing.
type Metrics struct {
	Cycles           *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	FetchFailures    *prometheus.CounterVec
	Articles         *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
	SourceFailures   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of completed poll cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_failures_total",
			Help:      "Source extractions that failed, by error kind.",
		}, []string{"kind"}),
		Articles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "articles_total",
			Help:      "Extracted articles by delivery outcome.",
		}, []string{"outcome"}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "target_failures_total",
			Help:      "Sends to a single target that failed.",
		}),
		SourceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "source_failures_total",
			Help:      "Sources whose processing was aborted by a store error or panic.",
		}),
	}
}

// CycleFinished records a poll cycle outcome. Duration is observed for
// completed cycles only.
func (m *Metrics) CycleFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(result).Inc()
	if result == CycleCompleted {
		m.CycleDuration.Observe(d.Seconds())
	}
}

// FetchFailed counts a failed extraction.
func (m *Metrics) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Inc()
}

// ArticleProcessed counts an article by its delivery outcome.
func (m *Metrics) ArticleProcessed(outcome string) {
	if m == nil {
		return
	}
	m.Articles.WithLabelValues(outcome).Inc()
}

// TargetFailed counts a failed send to one target.
func (m *Metrics) TargetFailed() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

// SourceFailed counts a source aborted mid-cycle.
func (m *Metrics) SourceFailed() {
	if m == nil {
		return
	}
	m.SourceFailures.Inc()
}
