package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMonitorIntervalSec = 10
	DefaultCooldownSec        = 30
	DefaultLatencyWarnMs      = 50
	DefaultLatencyCriticalMs  = 100
	DefaultLossWarnPct        = 5
	DefaultSnapshotEveryCycle = 3
	DefaultHostTTLSec         = 300
	DefaultSouthboundListen   = "0.0.0.0:6653"
	DefaultEventLogPath       = "/var/log/sdwan/events.log"
	DefaultSnapshotPath       = "/var/lib/sdwan/metrics.json"
	DefaultRuleDBPath         = "/var/lib/sdwan/rules.db"
)

// Config holds all controller settings.
type Config struct {
	Monitor    MonitorConfig `yaml:"monitor"`
	QoS        QoSConfig     `yaml:"qos"`
	API        APIConfig     `yaml:"api"`
	Southbound string        `yaml:"southbound_listen"`

	// Hub is the numeric id of the hub switch all site paths share.
	Hub   uint64       `yaml:"hub_switch"`
	Sites []SiteConfig `yaml:"sites"`

	EventLogPath string `yaml:"event_log_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	RuleDBPath   string `yaml:"rule_db_path"`
	HostTTLSec   int    `yaml:"host_ttl_sec"`
}

// MonitorConfig holds telemetry-cycle thresholds and timers.
type MonitorConfig struct {
	// IntervalSec is the monitoring cycle length in seconds.
	IntervalSec int `yaml:"interval_sec"`

	// ProbeTimeoutSec bounds a single path probe. Zero means half
	// the cycle interval.
	ProbeTimeoutSec int `yaml:"probe_timeout_sec"`

	// CooldownSec is the minimum gap between two failover-triggered
	// rule changes on the same path.
	CooldownSec int `yaml:"cooldown_sec"`

	LatencyWarnMs     float64 `yaml:"latency_warn_ms"`
	LatencyCriticalMs float64 `yaml:"latency_critical_ms"`
	LossWarnPct       float64 `yaml:"loss_warn_pct"`

	// SnapshotEveryCycle writes the metrics snapshot every Nth cycle.
	SnapshotEveryCycle int `yaml:"snapshot_every_cycle"`
}

// QoSConfig holds the port sets used by the traffic classifier.
type QoSConfig struct {
	CriticalPorts []int `yaml:"critical_ports"`
	VoIPPorts     []int `yaml:"voip_ports"`
}

// APIConfig holds the northbound REST server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// SiteConfig describes one branch site and the hub-side egress that
// reaches it.
type SiteConfig struct {
	Name       string `yaml:"name"`
	SwitchID   uint64 `yaml:"switch_id"`
	EgressPort uint32 `yaml:"egress_port"`
	ProbeAddr  string `yaml:"probe_addr"`
}

// Load reads and parses a YAML config file, applies defaults and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Monitor.IntervalSec == 0 {
		cfg.Monitor.IntervalSec = DefaultMonitorIntervalSec
	}
	if cfg.Monitor.ProbeTimeoutSec == 0 {
		cfg.Monitor.ProbeTimeoutSec = cfg.Monitor.IntervalSec / 2
		if cfg.Monitor.ProbeTimeoutSec < 1 {
			cfg.Monitor.ProbeTimeoutSec = 1
		}
	}
	if cfg.Monitor.CooldownSec == 0 {
		cfg.Monitor.CooldownSec = DefaultCooldownSec
	}
	if cfg.Monitor.LatencyWarnMs == 0 {
		cfg.Monitor.LatencyWarnMs = DefaultLatencyWarnMs
	}
	if cfg.Monitor.LatencyCriticalMs == 0 {
		cfg.Monitor.LatencyCriticalMs = DefaultLatencyCriticalMs
	}
	if cfg.Monitor.LossWarnPct == 0 {
		cfg.Monitor.LossWarnPct = DefaultLossWarnPct
	}
	if cfg.Monitor.SnapshotEveryCycle == 0 {
		cfg.Monitor.SnapshotEveryCycle = DefaultSnapshotEveryCycle
	}
	if len(cfg.QoS.CriticalPorts) == 0 {
		cfg.QoS.CriticalPorts = []int{22, 443}
	}
	if len(cfg.QoS.VoIPPorts) == 0 {
		cfg.QoS.VoIPPorts = []int{5060, 5061}
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.Southbound == "" {
		cfg.Southbound = DefaultSouthboundListen
	}
	if cfg.EventLogPath == "" {
		cfg.EventLogPath = DefaultEventLogPath
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = DefaultSnapshotPath
	}
	if cfg.RuleDBPath == "" {
		cfg.RuleDBPath = DefaultRuleDBPath
	}
	if cfg.HostTTLSec == 0 {
		cfg.HostTTLSec = DefaultHostTTLSec
	}
}

// Validate checks thresholds and the site table. Any error here is
// fatal at startup.
func Validate(cfg Config) error {
	m := cfg.Monitor
	if m.IntervalSec < 1 {
		return fmt.Errorf("monitor.interval_sec must be >= 1, got %d", m.IntervalSec)
	}
	if m.ProbeTimeoutSec < 1 || m.ProbeTimeoutSec > m.IntervalSec {
		return fmt.Errorf("monitor.probe_timeout_sec must be in [1, interval], got %d", m.ProbeTimeoutSec)
	}
	if m.CooldownSec < 0 {
		return fmt.Errorf("monitor.cooldown_sec must be >= 0, got %d", m.CooldownSec)
	}
	if m.LatencyWarnMs <= 0 || m.LatencyCriticalMs <= 0 {
		return fmt.Errorf("latency thresholds must be > 0")
	}
	if m.LatencyWarnMs >= m.LatencyCriticalMs {
		return fmt.Errorf("latency_warn_ms (%.1f) must be below latency_critical_ms (%.1f)",
			m.LatencyWarnMs, m.LatencyCriticalMs)
	}
	if m.LossWarnPct <= 0 || m.LossWarnPct >= 100 {
		return fmt.Errorf("loss_warn_pct must be in (0, 100), got %.1f", m.LossWarnPct)
	}

	for _, p := range append(append([]int{}, cfg.QoS.CriticalPorts...), cfg.QoS.VoIPPorts...) {
		if p < 1 || p > 65535 {
			return fmt.Errorf("invalid port %d in qos port set", p)
		}
	}

	if cfg.Hub == 0 {
		return fmt.Errorf("hub_switch is required")
	}
	if len(cfg.Sites) == 0 {
		return fmt.Errorf("at least one site is required")
	}
	seen := make(map[string]bool, len(cfg.Sites))
	for _, s := range cfg.Sites {
		if s.Name == "" {
			return fmt.Errorf("site name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate site %q", s.Name)
		}
		seen[s.Name] = true
		if s.SwitchID == 0 {
			return fmt.Errorf("site %q: switch_id is required", s.Name)
		}
		if s.SwitchID == cfg.Hub {
			return fmt.Errorf("site %q: switch_id collides with the hub", s.Name)
		}
		if s.EgressPort == 0 {
			return fmt.Errorf("site %q: egress_port is required", s.Name)
		}
		if s.ProbeAddr == "" {
			return fmt.Errorf("site %q: probe_addr is required", s.Name)
		}
	}
	return nil
}

// Interval returns the monitoring cycle length as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSec) * time.Second
}

// ProbeTimeout returns the per-probe timeout as a duration.
func (m MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutSec) * time.Second
}

// Cooldown returns the failover cooldown as a duration.
func (m MonitorConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownSec) * time.Second
}

// HostTTL returns the host-table entry lifetime as a duration.
func (c Config) HostTTL() time.Duration {
	return time.Duration(c.HostTTLSec) * time.Second
}
