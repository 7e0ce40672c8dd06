package driver

import (
	"github.com/jrife/cfstore/recovery"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	recoveries  *prometheus.CounterVec
	restarts    prometheus.Counter
	creations   prometheus.Counter
	alterations prometheus.Counter
	failures    prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfstore",
			Name:      "recoveries_total",
			Help:      "Store faults recovered from, by category.",
		}, []string{"category"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfstore",
			Name:      "restarts_total",
			Help:      "Connection restarts.",
		}),
		creations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfstore",
			Name:      "table_creations_total",
			Help:      "Tables created by this process.",
		}),
		alterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfstore",
			Name:      "table_alterations_total",
			Help:      "Tables altered by this process.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cfstore",
			Name:      "unrecovered_failures_total",
			Help:      "Operations that failed without recovery.",
		}),
	}

	if registerer == nil {
		return m
	}

	m.recoveries = register(registerer, m.recoveries).(*prometheus.CounterVec)
	m.restarts = register(registerer, m.restarts).(prometheus.Counter)
	m.creations = register(registerer, m.creations).(prometheus.Counter)
	m.alterations = register(registerer, m.alterations).(prometheus.Counter)
	m.failures = register(registerer, m.failures).(prometheus.Counter)

	return m
}

// register registers c or returns the collector registered before
// under the same name
func register(registerer prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}

	return c
}

func (m *metrics) recovered(category recovery.Category) {
	m.recoveries.WithLabelValues(category.String()).Inc()
}
