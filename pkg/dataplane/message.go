package dataplane

import "encoding/json"

// Message types exchanged with edge switches.
const (
	MsgHello       = "hello"
	MsgPacketIn    = "packet_in"
	MsgStatsReply  = "stats_reply"
	MsgInstallRule = "install_rule"
	MsgAck         = "ack"
)

// Message is the envelope for every frame on a switch control channel.
// ID correlates an install_rule with its ack and is empty otherwise.
type Message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// helloPayload is the first frame a switch sends after connecting.
type helloPayload struct {
	SwitchID uint64   `json:"switch_id"`
	Ports    []uint32 `json:"ports"`
}

// ackPayload answers an install_rule.
type ackPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// PacketIn reports the first packet of an unmatched flow. SwitchID is
// filled in from the session, not the wire.
type PacketIn struct {
	SwitchID uint64 `json:"-"`
	InPort   uint32 `json:"in_port"`
	SrcAddr  string `json:"src_addr"`
	DstAddr  string `json:"dst_addr"`
	Marking  uint8  `json:"marking"`
	SrcPort  uint16 `json:"src_port"`
	DstPort  uint16 `json:"dst_port"`
}

// StatsReply carries a switch's cumulative transmit counter. Switches
// report periodically; the controller derives bandwidth from deltas.
type StatsReply struct {
	SwitchID uint64 `json:"-"`
	TxBytes  uint64 `json:"tx_bytes"`
}
