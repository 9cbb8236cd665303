package monitor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/topology"
)

// probeBurst is how many echoes one measurement sends.
const probeBurst = 5

// Prober measures one path's latency and loss.
type Prober interface {
	Measure(ctx context.Context, site topology.Site) (metrics.Sample, error)
}

// UDPProber measures a path by sending a burst of UDP echoes to the
// site's probe responder. Latency is the mean round trip of the echoes
// that came back; loss is the fraction that did not.
type UDPProber struct{}

// Measure runs one probe burst. The context deadline bounds the whole
// burst. An error means the path passed no probe traffic at all.
func (UDPProber) Measure(ctx context.Context, site topology.Site) (metrics.Sample, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", site.ProbeAddr)
	if err != nil {
		return metrics.Sample{}, fmt.Errorf("dialing probe responder %s: %w", site.ProbeAddr, err)
	}
	defer conn.Close()

	perEcho := time.Until(deadline) / probeBurst
	buf := make([]byte, 128)

	received := 0
	var totalRTT time.Duration
	for i := 0; i < probeBurst; i++ {
		msg := []byte(fmt.Sprintf("sdwan-echo:%s-%d-%d", site.Name, i, time.Now().UnixNano()))

		sent := time.Now()
		if err := conn.SetDeadline(sent.Add(perEcho)); err != nil {
			break
		}
		if _, err := conn.Write(msg); err != nil {
			continue
		}
		n, err := conn.Read(buf)
		if err != nil || string(buf[:n]) != string(msg) {
			continue
		}
		received++
		totalRTT += time.Since(sent)
	}

	if received == 0 {
		return metrics.Sample{}, fmt.Errorf("no echo replies from %s", site.ProbeAddr)
	}

	latency := float64(totalRTT.Microseconds()) / float64(received) / 1000.0
	loss := float64(probeBurst-received) / probeBurst * 100.0
	return metrics.Sample{LatencyMs: latency, LossPct: loss}, nil
}
