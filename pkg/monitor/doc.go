// Package monitor owns the telemetry loop and the failover decisions
// derived from it.
//
// Each cycle probes every path concurrently, records latency and loss
// in the metrics store, runs the anomaly check, and evaluates the
// failover state machine per path. Traffic moves only when a path is
// DEGRADED_CRITICAL or DOWN, a scored alternate exists, and the
// cooldown since the last reroute has passed. A recovered path is
// logged but traffic stays where it is until the current path degrades
// in turn.
//
// The Prober interface isolates the measurement transport; the default
// implementation sends UDP echo bursts to each site's probe responder.
package monitor
