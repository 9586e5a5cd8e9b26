// Package metrics centralizes the prometheus collectors shared across the
// party event engine. A single registry is constructed in cmd/partynode and
// passed down explicitly, rather than relying on the default global registry,
// so that tests can each use an isolated registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set bundles every collector the engine registers.
type Set struct {
	ErrorsByKind          *prometheus.CounterVec
	DriverTicks           prometheus.Counter
	DriverTickDuration    prometheus.Histogram
	DoubleFulfillSuppress prometheus.Counter
	FulfillmentsEmitted   *prometheus.CounterVec
	SigningSessions       *prometheus.CounterVec
	WatcherSkipped        *prometheus.CounterVec
	WatcherBackfillErrors *prometheus.CounterVec
}

// New registers and returns a fresh Set against reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_errors_total",
			Help: "Errors observed by taxonomy kind.",
		}, []string{"kind"}),
		DriverTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "party_driver_ticks_total",
			Help: "Number of party watcher driver ticks executed.",
		}),
		DriverTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "party_driver_tick_duration_seconds",
			Help:    "Duration of a single driver tick.",
			Buckets: prometheus.DefBuckets,
		}),
		DoubleFulfillSuppress: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redgold_double_fulfill_suppressed",
			Help: "Fulfillments suppressed because the triggering event was already fulfilled.",
		}),
		FulfillmentsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_fulfillments_emitted_total",
			Help: "Order fulfillments emitted by outcome.",
		}, []string{"outcome"}),
		SigningSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_signing_sessions_total",
			Help: "Threshold signing sessions by terminal state.",
		}, []string{"state"}),
		WatcherSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_watcher_skipped_total",
			Help: "Live messages skipped because the address was not in the watch filter.",
		}, []string{"chain"}),
		WatcherBackfillErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "party_watcher_backfill_errors_total",
			Help: "Backfill attempts that failed after exhausting RPC URLs.",
		}, []string{"chain"}),
	}
	reg.MustRegister(
		s.ErrorsByKind, s.DriverTicks, s.DriverTickDuration, s.DoubleFulfillSuppress,
		s.FulfillmentsEmitted, s.SigningSessions, s.WatcherSkipped, s.WatcherBackfillErrors,
	)
	return s
}
