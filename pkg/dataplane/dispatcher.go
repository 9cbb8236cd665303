package dataplane

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sdwan-controller/pkg/eventlog"
	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/qos"
	"github.com/sdwan-controller/pkg/topology"
)

// Dispatcher turns switch events into topology updates and rule
// installs. All handlers are safe for concurrent sessions.
type Dispatcher struct {
	registry   *topology.Registry
	classifier *qos.Classifier
	rules      *flowrule.Manager
	events     *eventlog.Log
}

// NewDispatcher creates the event dispatcher.
func NewDispatcher(registry *topology.Registry, classifier *qos.Classifier, rules *flowrule.Manager, events *eventlog.Log) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		classifier: classifier,
		rules:      rules,
		events:     events,
	}
}

// HandleConnect registers the switch and its ports.
func (d *Dispatcher) HandleConnect(switchID uint64, ports []uint32) {
	d.registry.Connect(switchID, ports)
	log.Infof("Switch connected: id=%d ports=%d", switchID, len(ports))
	d.appendEvent(eventlog.CategorySwitch, "switch %d connected (%d ports)", switchID, len(ports))
}

// HandleDisconnect marks the switch disconnected. Learned hosts are kept
// and age out on their own.
func (d *Dispatcher) HandleDisconnect(switchID uint64) {
	d.registry.Disconnect(switchID)
	log.Infof("Switch disconnected: id=%d", switchID)
	d.appendEvent(eventlog.CategorySwitch, "switch %d disconnected", switchID)
}

// HandlePacketIn learns the source host and, when the destination is
// already known, classifies the flow and installs a rule. Unknown
// destinations are left to the switch's flood behavior. Each packet-in
// is also a chance to retry rules a switch rejected earlier.
func (d *Dispatcher) HandlePacketIn(ctx context.Context, p PacketIn) {
	if err := d.registry.LearnHost(p.SwitchID, p.SrcAddr, p.InPort); err != nil {
		log.Debugf("Packet-in from unknown switch %d: %v", p.SwitchID, err)
		return
	}

	d.rules.RetryPending(ctx)

	outPort, ok := d.registry.HostPort(p.SwitchID, p.DstAddr)
	if !ok {
		log.Debugf("Destination %s unknown on switch %d, flooding", p.DstAddr, p.SwitchID)
		return
	}

	class := d.classifier.Classify(qos.FlowDesc{
		SrcAddr: p.SrcAddr,
		DstAddr: p.DstAddr,
		Marking: p.Marking,
		SrcPort: p.SrcPort,
		DstPort: p.DstPort,
	})
	priority := class.Priority()

	if priority >= qos.PriorityStreaming {
		log.Infof("High priority flow: %s -> %s on switch %d (class=%s priority=%d)",
			p.SrcAddr, p.DstAddr, p.SwitchID, class, priority)
		d.appendEvent(eventlog.CategoryQoS, "High priority flow: %s->%s", p.SrcAddr, p.DstAddr)
	}

	rule := flowrule.Rule{
		SwitchID: p.SwitchID,
		Match: flowrule.Match{
			SrcAddr: p.SrcAddr,
			DstAddr: p.DstAddr,
			Marking: p.Marking,
		},
		Priority:   priority,
		OutputPort: outPort,
	}

	// Install failures stay pending; the flow keeps flooding meanwhile.
	_ = d.rules.Install(ctx, rule, eventlog.CategoryQoS)
}

// HandleStats feeds a transmit counter into the bandwidth estimate.
func (d *Dispatcher) HandleStats(sr StatsReply) {
	if err := d.registry.RecordStats(sr.SwitchID, sr.TxBytes); err != nil {
		log.Debugf("Stats from unknown switch %d: %v", sr.SwitchID, err)
	}
}

func (d *Dispatcher) appendEvent(cat eventlog.Category, format string, args ...interface{}) {
	if d.events == nil {
		return
	}
	d.events.Append(cat, format, args...)
}
