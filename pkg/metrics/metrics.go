// Package metrics exposes prometheus counters and histograms for the
// validator and node binaries: validation outcomes, fraud classes, and
// timeout ticks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the metrics the engine exports. It is safe for
// concurrent use, same as the counters and histograms it wraps.
type Registry struct {
	ValidationsTotal *prometheus.CounterVec
	FraudTotal       *prometheus.CounterVec
	TimeoutsTotal    *prometheus.CounterVec
	RewardsTotal     *prometheus.CounterVec
	SequenceDuration prometheus.Histogram
}

// New registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for the process-wide one.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		ValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kirk",
			Name:      "validations_total",
			Help:      "Count of game sequence validations, labeled by outcome.",
		}, []string{"outcome"}),
		FraudTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kirk",
			Name:      "fraud_detected_total",
			Help:      "Count of fraud verdicts raised, labeled by class.",
		}, []string{"class"}),
		TimeoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kirk",
			Name:      "timeouts_total",
			Help:      "Count of timeout violations fired, labeled by phase.",
		}, []string{"phase"}),
		RewardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kirk",
			Name:      "rewards_total",
			Help:      "Count of reward distributions, labeled by result.",
		}, []string{"result"}),
		SequenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kirk",
			Name:      "sequence_duration_seconds",
			Help:      "Wall-clock duration of a game sequence from challenge to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveValidation records one validation outcome under a free-form
// label; cmd/kirknode passes the terminal sequence state name
// ("Complete" or "Forfeited").
func (r *Registry) ObserveValidation(outcome string) {
	r.ValidationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFraud records one fraud verdict by its class name.
func (r *Registry) ObserveFraud(class string) {
	r.FraudTotal.WithLabelValues(class).Inc()
}

// ObserveTimeout records one timeout violation by phase name.
func (r *Registry) ObserveTimeout(phase string) {
	r.TimeoutsTotal.WithLabelValues(phase).Inc()
}

// ObserveReward records one reward distribution attempt by result
// ("issued", "already_issued", "failed").
func (r *Registry) ObserveReward(result string) {
	r.RewardsTotal.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler serving the metrics in the Prometheus
// text exposition format, for wiring into a node's metrics listen
// address.
func Handler() http.Handler {
	return promhttp.Handler()
}
