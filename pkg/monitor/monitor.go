package monitor

import (
	"context"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/sdwan-controller/pkg/config"
	"github.com/sdwan-controller/pkg/eventlog"
	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/topology"
)

// Monitor runs the telemetry loop: probe every path, record samples,
// evaluate failover, and periodically snapshot the health state.
type Monitor struct {
	cfg          config.MonitorConfig
	clock        clock.Clock
	store        *metrics.Store
	registry     *topology.Registry
	rules        *flowrule.Manager
	events       *eventlog.Log
	prober       Prober
	snapshotPath string

	cycles int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates the monitor and registers every configured path in the
// store. A nil prober defaults to UDP echoes.
func New(cfg config.MonitorConfig, clk clock.Clock, store *metrics.Store, registry *topology.Registry,
	rules *flowrule.Manager, events *eventlog.Log, prober Prober, snapshotPath string) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if prober == nil {
		prober = UDPProber{}
	}

	for _, site := range registry.Sites() {
		store.Register(site.Name)
	}

	return &Monitor{
		cfg:          cfg,
		clock:        clk,
		store:        store,
		registry:     registry,
		rules:        rules,
		events:       events,
		prober:       prober,
		snapshotPath: snapshotPath,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run drives the telemetry loop until Stop. Cycles never overlap: a
// slow cycle delays the next tick rather than racing it.
func (m *Monitor) Run() {
	defer close(m.done)

	log.Infof("Path monitoring started (interval %s, cooldown %s)", m.cfg.Interval(), m.cfg.Cooldown())
	m.appendEvent(eventlog.CategorySystem, "path monitoring started")

	ticker := m.clock.Ticker(m.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			log.Info("Path monitoring stopped")
			m.appendEvent(eventlog.CategorySystem, "path monitoring stopped")
			return
		case <-ticker.C:
			m.runCycle(context.Background())
		}
	}
}

// Stop ends the loop after the current cycle and waits for it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// RunCycleForTest executes a single telemetry cycle synchronously.
func (m *Monitor) RunCycleForTest(ctx context.Context) {
	m.runCycle(ctx)
}

func (m *Monitor) runCycle(ctx context.Context) {
	sites := m.registry.Sites()

	type probeResult struct {
		site   topology.Site
		sample metrics.Sample
	}
	results := make([]probeResult, len(sites))

	// Probes run concurrently, each bounded by its own timeout, so one
	// dead path cannot stretch the cycle past probeTimeout.
	var wg sync.WaitGroup
	for i, site := range sites {
		wg.Add(1)
		go func(i int, site topology.Site) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout())
			defer cancel()

			sample, err := m.prober.Measure(pctx, site)
			if err != nil {
				log.Warnf("Probe failed for %s: %v", site.Name, err)
				m.appendEvent(eventlog.CategoryMonitor, "probe failed for %s: %v", site.Name, err)
				sample = metrics.Sample{LatencyMs: metrics.SentinelLatencyMs, LossPct: 100}
			}
			results[i] = probeResult{site: site, sample: sample}
		}(i, site)
	}
	wg.Wait()

	// Record every sample before any failover decision so alternates
	// are scored on this cycle's data.
	for i := range results {
		res := &results[i]
		res.sample.ThroughputMbps = m.registry.Bandwidth(res.site.SwitchID)

		anomaly, mean, err := m.store.RecordSample(res.site.Name, res.sample)
		if err != nil {
			log.Errorf("Recording sample for %s: %v", res.site.Name, err)
			continue
		}
		if anomaly {
			log.Warnf("Latency spike on %s: %.1fms (rolling mean %.1fms)",
				res.site.Name, res.sample.LatencyMs, mean)
			m.appendEvent(eventlog.CategoryAnomaly, "Latency spike on %s: %.1fms (mean %.1fms)",
				res.site.Name, res.sample.LatencyMs, mean)
		}
	}

	for _, res := range results {
		m.evaluatePath(ctx, res.site, res.sample)
	}

	m.rules.RetryPending(ctx)
	m.logSummary()

	m.cycles++
	if m.cfg.SnapshotEveryCycle > 0 && m.cycles%m.cfg.SnapshotEveryCycle == 0 {
		m.writeSnapshot()
	}
}

// evaluatePath updates the path status and reroutes when the path is
// critical or down, an alternate exists, and the cooldown has passed.
// Recovery never moves traffic back on its own.
func (m *Monitor) evaluatePath(ctx context.Context, site topology.Site, sample metrics.Sample) {
	prev, err := m.store.Status(site.Name)
	if err != nil {
		return
	}

	next := evaluateStatus(sample, m.cfg)
	if err := m.store.SetStatus(site.Name, next); err != nil {
		return
	}

	if next != prev {
		log.Infof("Path %s: %s -> %s (latency %.1fms loss %.1f%%)",
			site.Name, prev, next, sample.LatencyMs, sample.LossPct)
		if next == metrics.StatusUp {
			m.appendEvent(eventlog.CategoryFailover,
				"%s recovered (latency %.1fms loss %.1f%%), traffic stays on current path",
				site.Name, sample.LatencyMs, sample.LossPct)
		} else {
			m.appendEvent(eventlog.CategoryFailover, "%s degraded to %s", site.Name, next)
		}
	}

	if !reroutable(next) {
		return
	}

	elapsed, err := m.store.CooldownElapsed(site.Name, m.cfg.Cooldown())
	if err != nil || !elapsed {
		log.Debugf("Cooldown active for %s, holding current route", site.Name)
		return
	}

	alt, ok := pickAlternate(m.store.List(), site.Name)
	if !ok {
		log.Warnf("No viable alternate path for %s", site.Name)
		m.appendEvent(eventlog.CategoryFailover, "no viable alternate path for %s", site.Name)
		return
	}

	altSite, err := m.registry.Site(alt.Site)
	if err != nil {
		log.Errorf("Alternate %s has no site entry: %v", alt.Site, err)
		return
	}

	repointed := m.rules.RepointEgress(ctx, m.registry.Hub(), site.EgressPort, altSite.EgressPort)
	if err := m.store.MarkFailover(site.Name); err != nil {
		log.Errorf("Marking failover for %s: %v", site.Name, err)
	}

	log.Warnf("FAILOVER: %s -> %s (score %.1f, %d rules repointed)",
		site.Name, alt.Site, alt.Quality, repointed)
	m.appendEvent(eventlog.CategoryFailover, "rerouted %s traffic to %s (%d rules)",
		site.Name, alt.Site, repointed)
}

func (m *Monitor) logSummary() {
	for _, p := range m.store.List() {
		log.Infof("Path %s: status=%s latency=%.1fms loss=%.1f%% score=%.1f throughput=%.2fMbps anomalies=%d",
			p.Site, p.Status, p.LatencyMs, p.LossPct, p.Quality, p.ThroughputMbps, p.AnomalyCount)
	}
}

func (m *Monitor) writeSnapshot() {
	if m.snapshotPath == "" {
		return
	}

	snap := eventlog.Snapshot{
		Timestamp: m.clock.Now(),
		Paths:     make(map[string]eventlog.PathSnapshot),
		Anomalies: make(map[string]uint64),
		Bandwidth: make(map[string]float64),
	}
	for _, p := range m.store.List() {
		snap.Paths[p.Site] = eventlog.PathSnapshot{
			LatencyMs: p.LatencyMs,
			LossPct:   p.LossPct,
			Quality:   p.Quality,
			Available: p.Available,
		}
		snap.Anomalies[p.Site] = p.AnomalyCount
	}
	// Bandwidth is per switch, not per path: two sites behind one
	// switch share the estimate.
	for _, sw := range m.registry.Switches() {
		snap.Bandwidth[strconv.FormatUint(sw.ID, 10)] = sw.BandwidthMbps
	}

	if err := eventlog.WriteSnapshot(m.snapshotPath, snap); err != nil {
		log.Errorf("Writing snapshot: %v", err)
	}
}

func (m *Monitor) appendEvent(cat eventlog.Category, format string, args ...interface{}) {
	if m.events == nil {
		return
	}
	m.events.Append(cat, format, args...)
}
