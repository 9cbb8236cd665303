// Package api implements the northbound REST surface.
//
// Endpoints (all GET):
//   - /api/v1/health        liveness probe
//   - /api/v1/status        uptime plus switch, path and rule summaries
//   - /api/v1/paths         health of every hub-to-site path
//   - /api/v1/paths/:site   one path in detail
//   - /api/v1/rules         installed and pending forwarding rules
//   - /api/v1/switches      switch inventory with learned-host counts
//   - /api/v1/stats         controller-wide aggregates
//   - /metrics              Prometheus scrape endpoint
//
// The API is strictly read-only. Rule installs and failover decisions
// are owned by the southbound dispatcher and the monitor; exposing
// them here would race those loops.
package api
