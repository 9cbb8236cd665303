package models

import "time"

// PathResponse is the health view of one hub-to-site path
type PathResponse struct {
	Site           string    `json:"site"`
	Status         string    `json:"status"`
	LatencyMs      float64   `json:"latency_ms"`
	LossPct        float64   `json:"loss_pct"`
	ThroughputMbps float64   `json:"throughput_mbps"`
	Quality        float64   `json:"quality_score"`
	Available      bool      `json:"available"`
	AnomalyCount   uint64    `json:"anomaly_count"`
	History        []float64 `json:"latency_history"`
	LastUpdate     time.Time `json:"last_update"`
	LastFailover   time.Time `json:"last_failover,omitempty"`
}
