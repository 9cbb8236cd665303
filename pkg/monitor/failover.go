package monitor

import (
	"github.com/sdwan-controller/pkg/config"
	"github.com/sdwan-controller/pkg/metrics"
)

// evaluateStatus maps a sample to a path status. Thresholds apply in
// severity order: total loss wins over latency, critical latency over
// warning conditions.
func evaluateStatus(sample metrics.Sample, cfg config.MonitorConfig) metrics.PathStatus {
	switch {
	case sample.LossPct >= 100:
		return metrics.StatusDown
	case sample.LatencyMs > cfg.LatencyCriticalMs:
		return metrics.StatusDegradedCritical
	case sample.LatencyMs > cfg.LatencyWarnMs || sample.LossPct > cfg.LossWarnPct:
		return metrics.StatusDegradedWarn
	default:
		return metrics.StatusUp
	}
}

// reroutable reports whether a status is bad enough to move traffic.
// DEGRADED_WARN is observed but never rerouted.
func reroutable(status metrics.PathStatus) bool {
	return status == metrics.StatusDegradedCritical || status == metrics.StatusDown
}

// pickAlternate returns the best reroute target: the path with the
// highest quality score among UP and DEGRADED_WARN paths, excluding the
// failed one. Ties break on lower latency, then site name. A path with
// zero score is never a target.
func pickAlternate(paths []metrics.PathMetrics, failed string) (metrics.PathMetrics, bool) {
	var best metrics.PathMetrics
	found := false
	for _, p := range paths {
		if p.Site == failed {
			continue
		}
		if p.Status != metrics.StatusUp && p.Status != metrics.StatusDegradedWarn {
			continue
		}
		if p.Quality <= 0 {
			continue
		}
		if !found || betterAlternate(p, best) {
			best = p
			found = true
		}
	}
	return best, found
}

func betterAlternate(a, b metrics.PathMetrics) bool {
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	if a.LatencyMs != b.LatencyMs {
		return a.LatencyMs < b.LatencyMs
	}
	return a.Site < b.Site
}
