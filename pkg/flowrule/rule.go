package flowrule

import "fmt"

// Match is the set of header fields a forwarding rule matches on.
type Match struct {
	SrcAddr string `json:"src_addr"`
	DstAddr string `json:"dst_addr"`
	Marking uint8  `json:"marking"`
}

// Rule is one prioritized forwarding rule owned by a switch.
//
// The action is the output port (egress) only; rerouting replaces the
// action while the priority always follows the flow's traffic class.
type Rule struct {
	SwitchID   uint64 `json:"switch_id"`
	Match      Match  `json:"match"`
	Priority   uint16 `json:"priority"`
	OutputPort uint32 `json:"output_port"`
}

// Key identifies a rule by its owning switch and match criteria. Two
// rules with the same key replace each other on install.
func (r Rule) Key() string {
	return fmt.Sprintf("%d/%s>%s/%d", r.SwitchID, r.Match.SrcAddr, r.Match.DstAddr, r.Match.Marking)
}

func (r Rule) String() string {
	return fmt.Sprintf("switch=%d %s->%s tos=%d prio=%d out=%d",
		r.SwitchID, r.Match.SrcAddr, r.Match.DstAddr, r.Match.Marking, r.Priority, r.OutputPort)
}
