// Package qos maps flow descriptors to traffic classes and forwarding
// priorities.
package qos

import "fmt"

// TrafficClass is the priority treatment category assigned to a flow.
type TrafficClass string

const (
	ClassVoIP       TrafficClass = "VOIP"
	ClassCritical   TrafficClass = "CRITICAL"
	ClassStreaming  TrafficClass = "STREAMING"
	ClassBestEffort TrafficClass = "BEST_EFFORT"
)

// Forwarding priorities per class. Rerouting never changes these, so
// QoS ordering is preserved across failover.
const (
	PriorityVoIP       = 200
	PriorityCritical   = 150
	PriorityStreaming  = 100
	PriorityBestEffort = 1
)

// ToS markings carrying DSCP Expedited Forwarding (46) and Assured
// Forwarding class 41 (34).
const (
	TosExpeditedForwarding = 184
	TosAssuredForwarding41 = 136
)

// Priority returns the forwarding priority for the class.
func (c TrafficClass) Priority() uint16 {
	switch c {
	case ClassVoIP:
		return PriorityVoIP
	case ClassCritical:
		return PriorityCritical
	case ClassStreaming:
		return PriorityStreaming
	default:
		return PriorityBestEffort
	}
}

// FlowDesc is the subset of a flow's first packet the classifier reads.
type FlowDesc struct {
	SrcAddr string
	DstAddr string
	Marking uint8
	SrcPort uint16
	DstPort uint16
}

func (f FlowDesc) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d tos=%d", f.SrcAddr, f.SrcPort, f.DstAddr, f.DstPort, f.Marking)
}

// Classifier is a stateless marking/port to traffic-class mapping.
type Classifier struct {
	criticalPorts map[uint16]bool
	voipPorts     map[uint16]bool
}

// NewClassifier builds a classifier over the configured port sets.
func NewClassifier(criticalPorts, voipPorts []int) *Classifier {
	c := &Classifier{
		criticalPorts: make(map[uint16]bool, len(criticalPorts)),
		voipPorts:     make(map[uint16]bool, len(voipPorts)),
	}
	for _, p := range criticalPorts {
		c.criticalPorts[uint16(p)] = true
	}
	for _, p := range voipPorts {
		c.voipPorts[uint16(p)] = true
	}
	return c
}

// Classify assigns a traffic class. Precedence: VoIP (EF marking or VoIP
// port set), then the critical-port set, then AF41 marking, then best
// effort. A flow on a critical port stays CRITICAL even when it also
// carries a streaming marking.
func (c *Classifier) Classify(f FlowDesc) TrafficClass {
	if f.Marking == TosExpeditedForwarding || c.voipPorts[f.SrcPort] || c.voipPorts[f.DstPort] {
		return ClassVoIP
	}
	if c.criticalPorts[f.SrcPort] || c.criticalPorts[f.DstPort] {
		return ClassCritical
	}
	if f.Marking == TosAssuredForwarding41 {
		return ClassStreaming
	}
	return ClassBestEffort
}
