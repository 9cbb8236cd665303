package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// HistorySize is the capacity of the per-path latency history ring.
const HistorySize = 5

// SentinelLatencyMs is recorded when a probe cannot measure latency at
// all (total loss or probe failure).
const SentinelLatencyMs = 999

// PathStatus is the failover state of a path.
type PathStatus string

const (
	StatusUp               PathStatus = "UP"
	StatusDegradedWarn     PathStatus = "DEGRADED_WARN"
	StatusDegradedCritical PathStatus = "DEGRADED_CRITICAL"
	StatusDown             PathStatus = "DOWN"
)

// Sample is one probe measurement for a path.
type Sample struct {
	LatencyMs      float64
	LossPct        float64
	ThroughputMbps float64
}

// Available reports whether the path passed any traffic at all.
func (s Sample) Available() bool {
	return s.LossPct < 100
}

// PathMetrics is a point-in-time copy of one path's health state.
type PathMetrics struct {
	Site           string
	LatencyMs      float64
	LossPct        float64
	ThroughputMbps float64
	Quality        float64
	Status         PathStatus
	Available      bool
	AnomalyCount   uint64
	History        []float64
	LastUpdate     time.Time
	LastFailover   time.Time
}

// latencyRing is a fixed-capacity history buffer. Oldest sample is
// evicted on insert once full.
type latencyRing struct {
	buf   [HistorySize]float64
	next  int
	count int
}

func (r *latencyRing) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % HistorySize
	if r.count < HistorySize {
		r.count++
	}
}

func (r *latencyRing) mean() float64 {
	if r.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.count; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.count)
}

// values returns the history oldest-first.
func (r *latencyRing) values() []float64 {
	out := make([]float64, 0, r.count)
	start := 0
	if r.count == HistorySize {
		start = r.next
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%HistorySize])
	}
	return out
}

// pathEntry is the mutable health state for one path. Each entry has its
// own lock so probing one path never blocks readers of another.
type pathEntry struct {
	mu sync.Mutex

	site           string
	latencyMs      float64
	lossPct        float64
	throughputMbps float64
	quality        float64
	status         PathStatus
	anomalies      uint64
	history        latencyRing
	lastUpdate     time.Time
	lastFailover   time.Time
}

// Store holds per-path health state. All methods are safe for concurrent
// use from the telemetry and protocol tasks.
type Store struct {
	clock clock.Clock

	mu    sync.RWMutex
	paths map[string]*pathEntry
}

// NewStore creates an empty store. A nil clock uses wall time.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock: clk,
		paths: make(map[string]*pathEntry),
	}
}

// Register adds a path to the store. Registering an existing path is a
// no-op.
func (s *Store) Register(site string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[site]; ok {
		return
	}
	s.paths[site] = &pathEntry{site: site, status: StatusUp}
	pathQuality.WithLabelValues(site).Set(0)
}

func (s *Store) entry(site string) (*pathEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.paths[site]
	if !ok {
		return nil, fmt.Errorf("unknown path %q", site)
	}
	return e, nil
}

// RecordSample stores a probe sample, refreshes the derived quality
// score and runs the anomaly check. It reports whether the sample is a
// latency spike (together with the rolling mean that triggered it).
//
// Samples with 100% loss carry no usable latency; they update loss and
// quality but do not enter the latency history.
func (s *Store) RecordSample(site string, sample Sample) (anomaly bool, mean float64, err error) {
	e, err := s.entry(site)
	if err != nil {
		return false, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.latencyMs = sample.LatencyMs
	e.lossPct = sample.LossPct
	e.throughputMbps = sample.ThroughputMbps
	e.quality = Score(sample.LatencyMs, sample.LossPct)
	e.lastUpdate = s.clock.Now()

	pathLatency.WithLabelValues(site).Set(sample.LatencyMs)
	pathLoss.WithLabelValues(site).Set(sample.LossPct)
	pathQuality.WithLabelValues(site).Set(e.quality)

	if !sample.Available() {
		return false, 0, nil
	}

	e.history.push(sample.LatencyMs)
	mean = e.history.mean()
	if isAnomaly(sample.LatencyMs, mean) {
		e.anomalies++
		anomaliesTotal.WithLabelValues(site).Inc()
		return true, mean, nil
	}
	return false, mean, nil
}

// Status returns the path's current failover state.
func (s *Store) Status(site string) (PathStatus, error) {
	e, err := s.entry(site)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, nil
}

// SetStatus updates the path's failover state. Transitions are decided
// by the failover controller only.
func (s *Store) SetStatus(site string, status PathStatus) error {
	e, err := s.entry(site)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	return nil
}

// MarkFailover stamps the path's last-failover time with the current
// clock reading and bumps the failover counter.
func (s *Store) MarkFailover(site string) error {
	e, err := s.entry(site)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastFailover = s.clock.Now()
	failoversTotal.WithLabelValues(site).Inc()
	return nil
}

// CooldownElapsed reports whether the path's last failover is older than
// the given window. A path that never failed over is always eligible.
func (s *Store) CooldownElapsed(site string, window time.Duration) (bool, error) {
	e, err := s.entry(site)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFailover.IsZero() {
		return true, nil
	}
	return s.clock.Now().Sub(e.lastFailover) > window, nil
}

// Get returns a copy of one path's metrics.
func (s *Store) Get(site string) (PathMetrics, error) {
	e, err := s.entry(site)
	if err != nil {
		return PathMetrics{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// List returns copies of all path metrics, ordered by site name.
func (s *Store) List() []PathMetrics {
	s.mu.RLock()
	entries := make([]*pathEntry, 0, len(s.paths))
	for _, e := range s.paths {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]PathMetrics, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}

// snapshot copies the entry. Caller must hold e.mu.
func (e *pathEntry) snapshot() PathMetrics {
	return PathMetrics{
		Site:           e.site,
		LatencyMs:      e.latencyMs,
		LossPct:        e.lossPct,
		ThroughputMbps: e.throughputMbps,
		Quality:        e.quality,
		Status:         e.status,
		Available:      e.lossPct < 100 && !e.lastUpdate.IsZero(),
		AnomalyCount:   e.anomalies,
		History:        e.history.values(),
		LastUpdate:     e.lastUpdate,
		LastFailover:   e.lastFailover,
	}
}
