package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pathQuality = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sdwan",
		Subsystem: "path",
		Name:      "quality_score",
		Help:      "Weighted 0-100 quality score per path.",
	}, []string{"path"})

	pathLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sdwan",
		Subsystem: "path",
		Name:      "latency_ms",
		Help:      "Latest measured round-trip latency per path.",
	}, []string{"path"})

	pathLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sdwan",
		Subsystem: "path",
		Name:      "loss_pct",
		Help:      "Latest measured loss ratio per path.",
	}, []string{"path"})

	anomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdwan",
		Subsystem: "path",
		Name:      "anomalies_total",
		Help:      "Latency spikes detected per path.",
	}, []string{"path"})

	failoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdwan",
		Subsystem: "path",
		Name:      "failovers_total",
		Help:      "Failover rule changes triggered per path.",
	}, []string{"path"})
)
