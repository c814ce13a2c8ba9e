package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"bookied/statemgr"
)

var registerMetricsOnce sync.Once

// registerMetrics exposes the bookie server status gauge: 1 writable,
// 0 read-only, -1 not registered. The gauge samples the state manager
// on every scrape, it is never cached.
func registerMetrics(mgr *statemgr.StateManager) {
	registerMetricsOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "bookie",
				Name:      "server_status",
				Help:      "Bookie server status: 1 writable, 0 read-only, -1 not registered.",
			},
			func() float64 {
				return float64(mgr.StatusGauge())
			},
		))
	})
}
