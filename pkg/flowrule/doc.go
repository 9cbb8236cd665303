// Package flowrule manages the forwarding rules the controller pushes
// to edge switches.
//
// It handles:
//   - Idempotent rule install with a per-key installed cache
//   - Pending queue and opportunistic retry for rejected installs
//   - Bulk egress repoint during failover, preserving priorities
//   - SQLite persistence and reinstall-on-restart
//
// # Rule Model
//
// A rule is identified by its owning switch and match criteria
// (source address, destination address, ToS marking). Installing a
// rule whose key already exists replaces the previous action and
// priority. The action is always a single output port.
//
// # Example Usage
//
//	m := flowrule.NewManagerWithStorage(session, events, storage)
//
//	r := flowrule.Rule{
//	    SwitchID:   1,
//	    Match:      flowrule.Match{SrcAddr: "10.1.1.10", DstAddr: "10.2.1.10"},
//	    Priority:   150,
//	    OutputPort: 3,
//	}
//	if err := m.Install(ctx, r, eventlog.CategoryQoS); err != nil {
//	    // Rule is queued; RetryPending picks it up later.
//	}
//
//	repointed := m.RepointEgress(ctx, 1, 3, 4)
//
// # Thread Safety
//
// The Manager is safe for concurrent use. The protocol loop and the
// telemetry loop both install rules without external locking.
package flowrule
