package pagestream

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
	outcomeStale = "stale"
)

type metrics struct {
	fetches  *prometheus.CounterVec
	records  prometheus.Counter
	duration prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagestream",
			Name:      "fetches_total",
			Help:      "Page fetches by outcome (ok, empty, error, stale).",
		}, []string{"outcome"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pagestream",
			Name:      "records_fetched_total",
			Help:      "Records received from the store across all applied pages.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pagestream",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of page range queries.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if registerer == nil {
		return m, nil
	}
	var err error
	if m.fetches, err = register(registerer, m.fetches); err != nil {
		return nil, err
	}
	if m.records, err = register(registerer, m.records); err != nil {
		return nil, err
	}
	if m.duration, err = register(registerer, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers the collector, reusing an identical collector that is already registered
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}
