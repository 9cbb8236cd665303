package models

// SwitchResponse is the control-plane view of one switch
type SwitchResponse struct {
	ID            uint64   `json:"id"`
	State         string   `json:"state"`
	IsHub         bool     `json:"is_hub"`
	Ports         []uint32 `json:"ports"`
	LearnedHosts  int      `json:"learned_hosts"`
	BandwidthMbps float64  `json:"bandwidth_mbps"`
}
