package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{
		Hub: 1,
		Sites: []SiteConfig{
			{Name: "site1", SwitchID: 2, EgressPort: 3, ProbeAddr: "10.2.1.10:7"},
			{Name: "site2", SwitchID: 3, EgressPort: 4, ProbeAddr: "10.3.1.10:7"},
		},
	}
	ApplyDefaults(&cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 10, cfg.Monitor.IntervalSec)
	assert.Equal(t, 5, cfg.Monitor.ProbeTimeoutSec)
	assert.Equal(t, 30, cfg.Monitor.CooldownSec)
	assert.Equal(t, 50.0, cfg.Monitor.LatencyWarnMs)
	assert.Equal(t, 100.0, cfg.Monitor.LatencyCriticalMs)
	assert.Equal(t, 5.0, cfg.Monitor.LossWarnPct)
	assert.Equal(t, []int{22, 443}, cfg.QoS.CriticalPorts)
	assert.Equal(t, []int{5060, 5061}, cfg.QoS.VoIPPorts)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval())
	assert.Equal(t, 30*time.Second, cfg.Monitor.Cooldown())
	assert.Equal(t, 5*time.Minute, cfg.HostTTL())
}

func TestApplyDefaults_OneSecondInterval(t *testing.T) {
	cfg := Config{
		Monitor: MonitorConfig{IntervalSec: 1},
		Hub:     1,
		Sites: []SiteConfig{
			{Name: "site1", SwitchID: 2, EgressPort: 3, ProbeAddr: "10.2.1.10:7"},
		},
	}
	ApplyDefaults(&cfg)

	// interval/2 would round to zero; the timeout floors at one second.
	assert.Equal(t, 1, cfg.Monitor.ProbeTimeoutSec)
	assert.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "warn threshold above critical",
			mutate:  func(c *Config) { c.Monitor.LatencyWarnMs = 150 },
			wantErr: "latency_warn_ms",
		},
		{
			name:    "loss threshold out of range",
			mutate:  func(c *Config) { c.Monitor.LossWarnPct = 100 },
			wantErr: "loss_warn_pct",
		},
		{
			name:    "probe timeout above interval",
			mutate:  func(c *Config) { c.Monitor.ProbeTimeoutSec = 60 },
			wantErr: "probe_timeout_sec",
		},
		{
			name:    "missing hub",
			mutate:  func(c *Config) { c.Hub = 0 },
			wantErr: "hub_switch",
		},
		{
			name:    "no sites",
			mutate:  func(c *Config) { c.Sites = nil },
			wantErr: "at least one site",
		},
		{
			name: "duplicate site",
			mutate: func(c *Config) {
				c.Sites = append(c.Sites, c.Sites[0])
			},
			wantErr: "duplicate site",
		},
		{
			name: "site on the hub switch",
			mutate: func(c *Config) {
				c.Sites[0].SwitchID = c.Hub
			},
			wantErr: "collides with the hub",
		},
		{
			name: "missing probe address",
			mutate: func(c *Config) {
				c.Sites[1].ProbeAddr = ""
			},
			wantErr: "probe_addr",
		},
		{
			name: "invalid qos port",
			mutate: func(c *Config) {
				c.QoS.CriticalPorts = []int{70000}
			},
			wantErr: "invalid port",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controller.yaml")

	data := []byte(`
monitor:
  interval_sec: 5
  latency_warn_ms: 40
hub_switch: 1
sites:
  - name: site1
    switch_id: 2
    egress_port: 3
    probe_addr: "10.2.1.10:7"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Monitor.IntervalSec)
	assert.Equal(t, 2, cfg.Monitor.ProbeTimeoutSec)
	assert.Equal(t, 40.0, cfg.Monitor.LatencyWarnMs)
	assert.Equal(t, uint64(1), cfg.Hub)
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "site1", cfg.Sites[0].Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/controller.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controller.yaml")

	data := []byte(`
monitor:
  latency_warn_ms: 200
hub_switch: 1
sites:
  - name: site1
    switch_id: 2
    egress_port: 3
    probe_addr: "10.2.1.10:7"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latency_warn_ms")
}
