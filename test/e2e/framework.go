// Package e2e exercises the controller end to end in process: a
// scripted switch talks the southbound protocol over a real websocket,
// the monitor runs scripted probe cycles, and assertions go through
// the northbound API.
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sdwan-controller/pkg/api"
	"github.com/sdwan-controller/pkg/config"
	"github.com/sdwan-controller/pkg/dataplane"
	"github.com/sdwan-controller/pkg/eventlog"
	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/monitor"
	"github.com/sdwan-controller/pkg/qos"
	"github.com/sdwan-controller/pkg/topology"
)

// Env is a complete in-process controller instance.
type Env struct {
	T *testing.T

	Clock    *clock.Mock
	Registry *topology.Registry
	Store    *metrics.Store
	Rules    *flowrule.Manager
	Prober   *ScriptedProber
	Monitor  *monitor.Monitor
	Events   *eventlog.Log

	EventLogPath string
	SnapshotPath string

	southbound *dataplane.Server
	sbServer   *httptest.Server
	apiServer  *httptest.Server

	HTTPClient *http.Client
	APIBaseURL string
}

// ScriptedProber returns canned samples per site.
type ScriptedProber struct {
	mu      sync.Mutex
	samples map[string]metrics.Sample
}

// Set scripts the next measurements for a site.
func (p *ScriptedProber) Set(site string, sample metrics.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[site] = sample
}

// Measure returns the scripted sample.
func (p *ScriptedProber) Measure(_ context.Context, site topology.Site) (metrics.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples[site.Name], nil
}

// NewEnv wires a controller with three sites behind hub switch 1.
// Paths start healthy; tests degrade them through the prober.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	dir := t.TempDir()
	eventLogPath := filepath.Join(dir, "events.log")
	snapshotPath := filepath.Join(dir, "status.json")

	events, err := eventlog.Open(eventLogPath, mock)
	require.NoError(t, err)

	sites := []topology.Site{
		{Name: "site1", SwitchID: 2, EgressPort: 3, ProbeAddr: "10.2.1.10:7"},
		{Name: "site2", SwitchID: 3, EgressPort: 4, ProbeAddr: "10.3.1.10:7"},
		{Name: "site3", SwitchID: 4, EgressPort: 5, ProbeAddr: "10.4.1.10:7"},
	}
	registry := topology.NewRegistry(mock, 1, sites, 5*time.Minute)
	store := metrics.NewStore(mock)

	southbound := dataplane.NewServer("127.0.0.1:0")

	storage, err := flowrule.NewSQLiteStorage(filepath.Join(dir, "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	rules := flowrule.NewManagerWithStorage(southbound, events, storage)
	classifier := qos.NewClassifier([]int{22, 443}, []int{5060, 5061})
	southbound.SetDispatcher(dataplane.NewDispatcher(registry, classifier, rules, events))

	sbServer := httptest.NewServer(southbound.Handler())
	t.Cleanup(sbServer.Close)

	prober := &ScriptedProber{samples: map[string]metrics.Sample{
		"site1": {LatencyMs: 10, LossPct: 0},
		"site2": {LatencyMs: 50, LossPct: 2},
		"site3": {LatencyMs: 5, LossPct: 0},
	}}

	cfg := config.MonitorConfig{
		IntervalSec:        10,
		ProbeTimeoutSec:    5,
		CooldownSec:        30,
		LatencyWarnMs:      50,
		LatencyCriticalMs:  100,
		LossWarnPct:        5,
		SnapshotEveryCycle: 3,
	}
	mon := monitor.New(cfg, mock, store, registry, rules, events, prober, snapshotPath)

	apiSrv, err := api.NewAPIServer(nil, store, registry, rules)
	require.NoError(t, err)
	apiServer := httptest.NewServer(apiSrv.GetRouter())
	t.Cleanup(apiServer.Close)

	return &Env{
		T:            t,
		Clock:        mock,
		Registry:     registry,
		Store:        store,
		Rules:        rules,
		Prober:       prober,
		Monitor:      mon,
		Events:       events,
		EventLogPath: eventLogPath,
		SnapshotPath: snapshotPath,
		southbound:   southbound,
		sbServer:     sbServer,
		apiServer:    apiServer,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		APIBaseURL:   apiServer.URL,
	}
}

// GetJSON fetches an API path and decodes the response into out.
func (e *Env) GetJSON(path string, out interface{}) int {
	e.T.Helper()

	resp, err := e.HTTPClient.Get(e.APIBaseURL + path)
	require.NoError(e.T, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(e.T, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// SwitchClient is a scripted switch: it speaks the southbound protocol
// and acks every rule install.
type SwitchClient struct {
	t    *testing.T
	conn *websocket.Conn

	mu        sync.Mutex
	installed []flowrule.Rule
}

// ConnectSwitch dials the southbound listener and completes the hello
// handshake.
func (e *Env) ConnectSwitch(switchID uint64, ports []uint32) *SwitchClient {
	e.T.Helper()

	url := "ws" + strings.TrimPrefix(e.sbServer.URL, "http") + "/southbound"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(e.T, err)

	c := &SwitchClient{t: e.T, conn: conn}
	e.T.Cleanup(c.Close)

	c.sendMessage(dataplane.MsgHello, "", map[string]interface{}{
		"switch_id": switchID,
		"ports":     ports,
	})
	go c.serve()

	require.Eventually(e.T, func() bool {
		return e.Registry.Connected(switchID)
	}, 2*time.Second, 10*time.Millisecond, "switch %d did not register", switchID)

	return c
}

// serve acks install_rule frames until the connection closes.
func (c *SwitchClient) serve() {
	for {
		var msg dataplane.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != dataplane.MsgInstallRule {
			continue
		}

		var rule flowrule.Rule
		if err := json.Unmarshal(msg.Data, &rule); err != nil {
			continue
		}
		c.mu.Lock()
		c.installed = append(c.installed, rule)
		c.mu.Unlock()

		c.sendMessage(dataplane.MsgAck, msg.ID, map[string]interface{}{"ok": true})
	}
}

func (c *SwitchClient) sendMessage(msgType, id string, payload interface{}) {
	c.t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(c.t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.NoError(c.t, c.conn.WriteJSON(dataplane.Message{Type: msgType, ID: id, Data: data}))
}

// SendPacketIn reports an unmatched flow to the controller.
func (c *SwitchClient) SendPacketIn(p dataplane.PacketIn) {
	c.t.Helper()
	c.sendMessage(dataplane.MsgPacketIn, "", p)
}

// SendStats reports a cumulative transmit counter.
func (c *SwitchClient) SendStats(txBytes uint64) {
	c.t.Helper()
	c.sendMessage(dataplane.MsgStatsReply, "", map[string]interface{}{"tx_bytes": txBytes})
}

// InstalledRules returns every rule the switch acked, oldest first.
func (c *SwitchClient) InstalledRules() []flowrule.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]flowrule.Rule, len(c.installed))
	copy(out, c.installed)
	return out
}

// Close drops the control connection.
func (c *SwitchClient) Close() {
	c.conn.Close()
}
