package metrics

// anomalyMinLatencyMs filters low-latency noise: a sample below this
// floor never counts as a spike even if it doubles the rolling mean.
const anomalyMinLatencyMs = 50

// isAnomaly reports whether sample is a latency spike against the rolling
// history mean. The mean includes the new sample itself.
func isAnomaly(sample, mean float64) bool {
	return sample > 2*mean && sample > anomalyMinLatencyMs
}
