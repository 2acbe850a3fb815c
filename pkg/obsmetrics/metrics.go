// Package obsmetrics exposes Prometheus counters, gauges and histograms for
// the round protocol: how many rounds of each kind have run, how long they
// took, how often each verification failure code fires, plus a Cuckoo
// filter load gauge and a root-transition counter. The round package
// records rounds, durations and verification failures; FilterLoad and
// AggregateRootGen are registered but nothing in this module updates them.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the process-wide collectors. Construct one with New and
// pass it explicitly to the round protocol, rather than relying on the
// default global registry's package-level vars.
type Metrics struct {
	RoundsTotal       *prometheus.CounterVec
	RoundDuration     *prometheus.HistogramVec
	VerificationFails *prometheus.CounterVec
	FilterLoad        prometheus.Gauge
	AggregateRootGen  prometheus.Counter
}

// New registers and returns a fresh Metrics bundle against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer wrapped as a Registry for production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RoundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphverify",
			Name:      "rounds_total",
			Help:      "Number of rounds completed, labeled by kind (addition, deletion, query) and outcome (ok, failed).",
		}, []string{"kind", "outcome"}),

		RoundDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphverify",
			Name:      "round_duration_seconds",
			Help:      "Wall-clock duration of a round, labeled by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		VerificationFails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphverify",
			Name:      "verification_failures_total",
			Help:      "Verification failures, labeled by taxonomy code.",
		}, []string{"code"}),

		FilterLoad: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphverify",
			Name:      "cuckoo_filter_load",
			Help:      "Current fraction of Cuckoo filter slot capacity in use.",
		}),

		AggregateRootGen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "graphverify",
			Name:      "aggregate_root_transitions_total",
			Help:      "Number of times the AA-MHT aggregate root has transitioned.",
		}),
	}
}

// ObserveRound records a completed round's outcome and duration.
func (m *Metrics) ObserveRound(kind string, ok bool, seconds float64) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.RoundsTotal.WithLabelValues(kind, outcome).Inc()
	m.RoundDuration.WithLabelValues(kind).Observe(seconds)
}

// ObserveVerificationFailure increments the counter for a taxonomy code.
func (m *Metrics) ObserveVerificationFailure(code string) {
	m.VerificationFails.WithLabelValues(code).Inc()
}
