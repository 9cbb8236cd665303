package models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"` // "ok", "degraded", "down"
	Message string `json:"message"`
}

// StatusResponse represents detailed controller status
type StatusResponse struct {
	Status   string        `json:"status"` // "ok", "degraded", "down"
	Version  string        `json:"version"`
	Uptime   int64         `json:"uptime_seconds"`
	Switches SwitchSummary `json:"switches"`
	Paths    PathSummary   `json:"paths"`
	Rules    RuleSummary   `json:"rules"`
}

// SwitchSummary counts switches by connection state
type SwitchSummary struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
}

// PathSummary counts paths by failover state
type PathSummary struct {
	Total    int `json:"total"`
	Up       int `json:"up"`
	Degraded int `json:"degraded"`
	Down     int `json:"down"`
}

// RuleSummary counts installed and pending rules
type RuleSummary struct {
	Installed int `json:"installed"`
	Pending   int `json:"pending"`
}
