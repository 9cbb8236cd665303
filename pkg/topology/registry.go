// Package topology tracks connected switches, learned host locations and
// the static site/egress table used to resolve paths to forwarding
// actions.
package topology

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
)

// ConnState is a switch's control-session state.
type ConnState string

const (
	StateConnected    ConnState = "CONNECTED"
	StateDisconnected ConnState = "DISCONNECTED"
)

// hostTableSize bounds learned host entries per switch.
const hostTableSize = 4096

// Site is one static hub-to-branch path definition.
type Site struct {
	Name string

	// SwitchID is the branch-side switch for this site.
	SwitchID uint64

	// EgressPort is the hub-side output port reaching the site's
	// tunnel.
	EgressPort uint32

	// ProbeAddr is the address probed to measure path health.
	ProbeAddr string
}

// Switch is the control-plane view of one connected switch.
type Switch struct {
	mu sync.Mutex

	id    uint64
	state ConnState
	ports []uint32
	hosts *lru.LRU[string, uint32]

	// Byte counters from the latest stats reply, used for the
	// bandwidth estimate.
	lastBytes   uint64
	lastStatsAt time.Time
	bandwidth   float64
}

// SwitchInfo is a point-in-time copy of a switch's state.
type SwitchInfo struct {
	ID            uint64
	State         ConnState
	Ports         []uint32
	LearnedHosts  int
	BandwidthMbps float64
}

// Registry tracks all switches and the static site table. Safe for
// concurrent use; host learning on one switch never blocks another.
type Registry struct {
	clock   clock.Clock
	hostTTL time.Duration
	hub     uint64

	mu       sync.RWMutex
	switches map[uint64]*Switch
	sites    map[string]Site
}

// NewRegistry builds a registry over the static site table. The hub id
// names the switch that carries all site-bound egress rules.
func NewRegistry(clk clock.Clock, hub uint64, sites []Site, hostTTL time.Duration) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	siteMap := make(map[string]Site, len(sites))
	for _, s := range sites {
		siteMap[s.Name] = s
	}
	return &Registry{
		clock:    clk,
		hostTTL:  hostTTL,
		hub:      hub,
		switches: make(map[uint64]*Switch),
		sites:    siteMap,
	}
}

// Hub returns the hub switch id.
func (r *Registry) Hub() uint64 {
	return r.hub
}

// Site resolves a site by name.
func (r *Registry) Site(name string) (Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[name]
	if !ok {
		return Site{}, fmt.Errorf("unknown site %q", name)
	}
	return s, nil
}

// Sites returns all sites ordered by name.
func (r *Registry) Sites() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SitesOnSwitch returns the sites whose branch switch is the given id.
func (r *Registry) SitesOnSwitch(id uint64) []Site {
	var out []Site
	for _, s := range r.Sites() {
		if s.SwitchID == id {
			out = append(out, s)
		}
	}
	return out
}

// Connect registers a switch session. Reconnecting an existing switch
// refreshes its port set and clears stale counters; learned hosts are
// kept and age out on their own.
func (r *Registry) Connect(id uint64, ports []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sw, ok := r.switches[id]
	if !ok {
		sw = &Switch{
			id:    id,
			hosts: lru.NewLRU[string, uint32](hostTableSize, nil, r.hostTTL),
		}
		r.switches[id] = sw
	}

	sw.mu.Lock()
	sw.state = StateConnected
	sw.ports = append([]uint32(nil), ports...)
	sw.lastBytes = 0
	sw.lastStatsAt = time.Time{}
	sw.mu.Unlock()

	log.Infof("Switch connected: id=%d ports=%d", id, len(ports))
}

// Disconnect marks a switch's session as lost. The switch entry is kept
// so its paths can be re-evaluated as DOWN candidates next cycle.
func (r *Registry) Disconnect(id uint64) {
	sw, err := r.get(id)
	if err != nil {
		log.Warnf("Disconnect for unknown switch %d", id)
		return
	}
	sw.mu.Lock()
	sw.state = StateDisconnected
	sw.mu.Unlock()

	log.Infof("Switch disconnected: id=%d", id)
}

func (r *Registry) get(id uint64) (*Switch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sw, ok := r.switches[id]
	if !ok {
		return nil, fmt.Errorf("unknown switch %d", id)
	}
	return sw, nil
}

// Connected reports whether the switch currently has a live session.
func (r *Registry) Connected(id uint64) bool {
	sw, err := r.get(id)
	if err != nil {
		return false
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.state == StateConnected
}

// LearnHost records that addr was seen entering the switch on port.
// Entries expire after the configured TTL so moved hosts relearn.
func (r *Registry) LearnHost(id uint64, addr string, port uint32) error {
	sw, err := r.get(id)
	if err != nil {
		return err
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.hosts.Add(addr, port)
	return nil
}

// HostPort resolves a learned host address to its output port.
func (r *Registry) HostPort(id uint64, addr string) (uint32, bool) {
	sw, err := r.get(id)
	if err != nil {
		return 0, false
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.hosts.Get(addr)
}

// RecordStats ingests a stats reply's aggregate byte counter and updates
// the switch's bandwidth estimate from the delta since the previous
// reply.
func (r *Registry) RecordStats(id uint64, totalBytes uint64) error {
	sw, err := r.get(id)
	if err != nil {
		return err
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := r.clock.Now()
	if !sw.lastStatsAt.IsZero() {
		elapsed := now.Sub(sw.lastStatsAt).Seconds()
		if elapsed > 0 && totalBytes >= sw.lastBytes {
			deltaBits := float64(totalBytes-sw.lastBytes) * 8
			sw.bandwidth = deltaBits / (elapsed * 1e6)
		}
	}
	sw.lastBytes = totalBytes
	sw.lastStatsAt = now
	return nil
}

// Bandwidth returns the switch's latest bandwidth estimate in Mbps.
func (r *Registry) Bandwidth(id uint64) float64 {
	sw, err := r.get(id)
	if err != nil {
		return 0
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.bandwidth
}

// Switches returns copies of all known switch states ordered by id.
func (r *Registry) Switches() []SwitchInfo {
	r.mu.RLock()
	list := make([]*Switch, 0, len(r.switches))
	for _, sw := range r.switches {
		list = append(list, sw)
	}
	r.mu.RUnlock()

	out := make([]SwitchInfo, 0, len(list))
	for _, sw := range list {
		sw.mu.Lock()
		out = append(out, SwitchInfo{
			ID:            sw.id,
			State:         sw.state,
			Ports:         append([]uint32(nil), sw.ports...),
			LearnedHosts:  sw.hosts.Len(),
			BandwidthMbps: sw.bandwidth,
		})
		sw.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
