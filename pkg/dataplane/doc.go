// Package dataplane is the southbound side of the controller: it owns
// the control channels to edge switches and the event handling behind
// them.
//
// It handles:
//   - Websocket listener and per-switch sessions with a hello handshake
//   - Rule installs with correlated acks and per-call timeouts
//   - Packet-in handling: host learning, QoS classification, rule install
//   - Periodic transmit counters feeding the bandwidth estimate
//
// # Wire Protocol
//
// Every frame is a JSON Message envelope with a type, an optional
// correlation id, and a payload. A switch opens with hello carrying its
// id and port list, then streams packet_in and stats_reply frames. The
// controller pushes install_rule frames and the switch answers each
// with an ack referencing the same id.
//
// # Lifetimes
//
// A session lives as long as its connection. A reconnect for the same
// switch id replaces the old session without reporting a disconnect.
// Stop closes every session and drains handlers before returning.
package dataplane
