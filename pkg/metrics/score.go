package metrics

// Score computes the 0-100 quality figure of merit for a path sample.
//
// A 100% loss sample scores 0 regardless of latency. Otherwise latency
// contributes 60% (0ms -> 100, 200ms or more -> 0) and loss 40%
// (0% -> 100, 10% or more -> 0), both clamped.
func Score(latencyMs, lossPct float64) float64 {
	if lossPct >= 100 {
		return 0
	}

	latencyScore := 100 - latencyMs/2
	if latencyScore < 0 {
		latencyScore = 0
	}
	lossScore := 100 - lossPct*10
	if lossScore < 0 {
		lossScore = 0
	}

	score := latencyScore*0.6 + lossScore*0.4
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
