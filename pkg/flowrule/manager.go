package flowrule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sdwan-controller/pkg/eventlog"
)

// defaultInstallTimeout bounds a single install command so a stuck
// switch session cannot stall a caller.
const defaultInstallTimeout = 3 * time.Second

// Installer sends a rule to a switch's control session.
type Installer interface {
	InstallRule(ctx context.Context, r Rule) error
}

// Manager translates classification and failover decisions into
// idempotent rule installs. Rejected installs are kept pending and
// retried opportunistically on the next packet-in or monitoring cycle.
type Manager struct {
	installer Installer
	storage   Storage
	events    *eventlog.Log
	timeout   time.Duration

	mu        sync.Mutex
	installed map[string]Rule
	pending   map[string]Rule
}

// NewManager creates a rule manager without persistence.
func NewManager(installer Installer, events *eventlog.Log) *Manager {
	return &Manager{
		installer: installer,
		events:    events,
		timeout:   defaultInstallTimeout,
		installed: make(map[string]Rule),
		pending:   make(map[string]Rule),
	}
}

// NewManagerWithStorage creates a rule manager that persists installed
// rules.
func NewManagerWithStorage(installer Installer, events *eventlog.Log, storage Storage) *Manager {
	m := NewManager(installer, events)
	m.storage = storage
	return m
}

// LoadPersisted queues previously persisted rules as pending so they are
// reinstalled as switches reconnect.
func (m *Manager) LoadPersisted() error {
	if m.storage == nil {
		return fmt.Errorf("no storage configured")
	}
	rules, err := m.storage.LoadRules()
	if err != nil {
		return fmt.Errorf("loading rules from storage: %w", err)
	}

	m.mu.Lock()
	for _, r := range rules {
		m.pending[r.Key()] = r
	}
	m.mu.Unlock()

	log.Infof("Queued %d persisted rules for reinstall", len(rules))
	return nil
}

// Install installs or replaces a rule. Installing a tuple identical to
// the cached one is a no-op. Install failure is recorded as pending and
// returned; callers treat it as non-fatal.
//
// The event category tells the audit log whether the install came from
// classification (QOS) or rerouting (FAILOVER).
func (m *Manager) Install(ctx context.Context, r Rule, cat eventlog.Category) error {
	key := r.Key()

	m.mu.Lock()
	if cur, ok := m.installed[key]; ok && cur == r {
		m.mu.Unlock()
		log.Debugf("Rule already installed, skipping: %s", r)
		return nil
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.installer.InstallRule(ctx, r); err != nil {
		m.mu.Lock()
		m.pending[key] = r
		m.mu.Unlock()

		log.Warnf("Rule install failed, queued for retry: %s: %v", r, err)
		m.appendEvent(cat, "rule install failed on switch %d (%s->%s): %v",
			r.SwitchID, r.Match.SrcAddr, r.Match.DstAddr, err)
		return fmt.Errorf("installing rule on switch %d: %w", r.SwitchID, err)
	}

	m.mu.Lock()
	m.installed[key] = r
	delete(m.pending, key)
	m.mu.Unlock()

	if m.storage != nil {
		if err := m.storage.SaveRule(&r); err != nil {
			// The switch holds the rule; persistence is best effort.
			log.Warnf("Failed to persist rule %s: %v", key, err)
		}
	}

	log.Infof("Rule installed: %s", r)
	m.appendEvent(cat, "rule installed on switch %d: %s->%s prio=%d out=%d",
		r.SwitchID, r.Match.SrcAddr, r.Match.DstAddr, r.Priority, r.OutputPort)
	return nil
}

// RetryPending re-attempts every pending rule. Called from the protocol
// loop on packet-in and from the telemetry loop each cycle.
func (m *Manager) RetryPending(ctx context.Context) {
	m.mu.Lock()
	retry := make([]Rule, 0, len(m.pending))
	for _, r := range m.pending {
		retry = append(retry, r)
	}
	m.mu.Unlock()

	for _, r := range retry {
		if err := m.Install(ctx, r, eventlog.CategoryQoS); err != nil {
			log.Debugf("Pending rule still failing: %s", r)
		}
	}
}

// RepointEgress replaces the output action of every rule on the switch
// currently pointing at the old egress. Priorities are untouched, so
// traffic-class ordering survives the reroute. Returns the number of
// rules whose install was issued successfully.
func (m *Manager) RepointEgress(ctx context.Context, switchID uint64, oldEgress, newEgress uint32) int {
	m.mu.Lock()
	affected := make([]Rule, 0)
	for _, r := range m.installed {
		if r.SwitchID == switchID && r.OutputPort == oldEgress {
			affected = append(affected, r)
		}
	}
	for _, r := range m.pending {
		if r.SwitchID == switchID && r.OutputPort == oldEgress {
			affected = append(affected, r)
		}
	}
	m.mu.Unlock()

	repointed := 0
	for _, r := range affected {
		r.OutputPort = newEgress
		if err := m.Install(ctx, r, eventlog.CategoryFailover); err != nil {
			// Kept pending by Install; the old rule stays in
			// place so traffic is not blackholed.
			continue
		}
		repointed++
	}
	return repointed
}

// Rules returns a copy of the installed rule set ordered by key.
func (m *Manager) Rules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, 0, len(m.installed))
	for _, r := range m.installed {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// PendingCount reports how many rules await a retry.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) appendEvent(cat eventlog.Category, format string, args ...interface{}) {
	if m.events == nil {
		return
	}
	m.events.Append(cat, format, args...)
}
