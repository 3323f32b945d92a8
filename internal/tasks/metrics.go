package tasks

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProcessedTotal counts handled tasks by type and outcome.
	ProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_processed_total",
		Help: "Total tasks processed grouped by type and result",
	}, []string{"type", "result"})
	// RelayedTotal counts outbox events re-published by the relay.
	RelayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relayed_total",
		Help: "Outbox events re-published by the periodic relay",
	})
	// ExpiredTotal counts pending orders expired by the sweep.
	ExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_expired_total",
		Help: "Pending orders expired by the periodic sweep",
	})

	registerOnce sync.Once
)

// MustRegisterMetrics registers the worker collectors once on reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(ProcessedTotal, RelayedTotal, ExpiredTotal)
	})
}
