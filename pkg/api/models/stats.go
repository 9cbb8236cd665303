package models

// StatsResponse aggregates controller-wide counters
type StatsResponse struct {
	TotalAnomalies    uint64             `json:"total_anomalies"`
	InstalledRules    int                `json:"installed_rules"`
	PendingRules      int                `json:"pending_rules"`
	ConnectedSwitches int                `json:"connected_switches"`
	BandwidthMbps     map[string]float64 `json:"bandwidth_mbps"`
	QualityScores     map[string]float64 `json:"quality_scores"`
}
