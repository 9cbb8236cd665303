package dataplane

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/qos"
	"github.com/sdwan-controller/pkg/topology"
)

// testSwitch is a scripted switch side of the control channel.
type testSwitch struct {
	conn *websocket.Conn
}

func dialTestSwitch(t *testing.T, ts *httptest.Server, switchID uint64, ports []uint32) *testSwitch {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/southbound"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	sw := &testSwitch{conn: conn}
	sw.send(t, Message{Type: MsgHello, Data: mustMarshal(t, helloPayload{SwitchID: switchID, Ports: ports})})
	return sw
}

func (s *testSwitch) send(t *testing.T, msg Message) {
	t.Helper()
	require.NoError(t, s.conn.WriteJSON(msg))
}

func (s *testSwitch) recv(t *testing.T) Message {
	t.Helper()
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, s.conn.ReadJSON(&msg))
	return msg
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func newTestServer(t *testing.T) (*Server, *topology.Registry, *flowrule.Manager, *httptest.Server) {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	sites := []topology.Site{
		{Name: "site1", SwitchID: 2, EgressPort: 3, ProbeAddr: "10.2.1.10:7"},
	}
	registry := topology.NewRegistry(mock, 1, sites, 5*time.Minute)
	classifier := qos.NewClassifier([]int{22, 443}, []int{5060, 5061})

	srv := NewServer("127.0.0.1:0")
	rules := flowrule.NewManager(srv, nil)
	srv.SetDispatcher(NewDispatcher(registry, classifier, rules, nil))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, registry, rules, ts
}

func TestServer_HandshakeRegistersSwitch(t *testing.T) {
	srv, registry, _, ts := newTestServer(t)

	sw := dialTestSwitch(t, ts, 1, []uint32{1, 2, 3})

	require.Eventually(t, func() bool {
		return registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.SessionCount())

	sw.conn.Close()
	require.Eventually(t, func() bool {
		return !registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.SessionCount())
}

func TestServer_InstallRuleAckRoundTrip(t *testing.T) {
	srv, registry, _, ts := newTestServer(t)

	sw := dialTestSwitch(t, ts, 1, []uint32{1, 2})
	require.Eventually(t, func() bool {
		return registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)

	rule := flowrule.Rule{
		SwitchID:   1,
		Match:      flowrule.Match{SrcAddr: "10.1.1.10", DstAddr: "10.2.1.10"},
		Priority:   150,
		OutputPort: 3,
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- srv.InstallRule(ctx, rule)
	}()

	msg := sw.recv(t)
	assert.Equal(t, MsgInstallRule, msg.Type)
	require.NotEmpty(t, msg.ID)

	var got flowrule.Rule
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, rule, got)

	sw.send(t, Message{Type: MsgAck, ID: msg.ID, Data: mustMarshal(t, ackPayload{OK: true})})
	assert.NoError(t, <-done)
}

func TestServer_InstallRuleRejected(t *testing.T) {
	srv, registry, _, ts := newTestServer(t)

	sw := dialTestSwitch(t, ts, 1, []uint32{1, 2})
	require.Eventually(t, func() bool {
		return registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)

	rule := flowrule.Rule{SwitchID: 1, Match: flowrule.Match{SrcAddr: "a", DstAddr: "b"}, Priority: 1, OutputPort: 9}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- srv.InstallRule(ctx, rule)
	}()

	msg := sw.recv(t)
	sw.send(t, Message{Type: MsgAck, ID: msg.ID, Data: mustMarshal(t, ackPayload{OK: false, Error: "table full"})})

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table full")
}

func TestServer_InstallRuleNotConnected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	err := srv.InstallRule(context.Background(), flowrule.Rule{SwitchID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestServer_PacketInTriggersInstall(t *testing.T) {
	_, registry, rules, ts := newTestServer(t)

	sw := dialTestSwitch(t, ts, 1, []uint32{1, 2})
	require.Eventually(t, func() bool {
		return registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)

	// Learn the destination host first.
	sw.send(t, Message{Type: MsgPacketIn, Data: mustMarshal(t, PacketIn{
		InPort: 1, SrcAddr: "10.1.1.10", DstAddr: "10.2.1.10",
	})})
	require.Eventually(t, func() bool {
		_, ok := registry.HostPort(1, "10.1.1.10")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Reverse flow on a critical port: expect an install_rule frame.
	sw.send(t, Message{Type: MsgPacketIn, Data: mustMarshal(t, PacketIn{
		InPort: 2, SrcAddr: "10.2.1.10", DstAddr: "10.1.1.10", SrcPort: 443,
	})})

	msg := sw.recv(t)
	require.Equal(t, MsgInstallRule, msg.Type)

	var got flowrule.Rule
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, uint16(150), got.Priority)
	assert.Equal(t, uint32(1), got.OutputPort)

	sw.send(t, Message{Type: MsgAck, ID: msg.ID, Data: mustMarshal(t, ackPayload{OK: true})})
	require.Eventually(t, func() bool {
		return len(rules.Rules()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_StopDrainsPacketInHandlers(t *testing.T) {
	srv, registry, rules, ts := newTestServer(t)

	sw := dialTestSwitch(t, ts, 1, []uint32{1, 2})
	require.Eventually(t, func() bool {
		return registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)

	sw.send(t, Message{Type: MsgPacketIn, Data: mustMarshal(t, PacketIn{
		InPort: 1, SrcAddr: "10.1.1.10", DstAddr: "10.2.1.10",
	})})
	require.Eventually(t, func() bool {
		_, ok := registry.HostPort(1, "10.1.1.10")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Trigger an install but never ack it: the handler is now blocked
	// waiting on the switch.
	sw.send(t, Message{Type: MsgPacketIn, Data: mustMarshal(t, PacketIn{
		InPort: 2, SrcAddr: "10.2.1.10", DstAddr: "10.1.1.10", SrcPort: 443,
	})})
	msg := sw.recv(t)
	require.Equal(t, MsgInstallRule, msg.Type)

	done := make(chan error, 1)
	go func() { done <- srv.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not drain in-flight handlers")
	}

	// The handler finished before Stop returned: the failed install is
	// already queued for retry.
	assert.Equal(t, 1, rules.PendingCount())
}

func TestServer_StatsReplyUpdatesBandwidth(t *testing.T) {
	_, registry, _, ts := newTestServer(t)

	sw := dialTestSwitch(t, ts, 1, []uint32{1})
	require.Eventually(t, func() bool {
		return registry.Connected(1)
	}, 2*time.Second, 10*time.Millisecond)

	sw.send(t, Message{Type: MsgStatsReply, Data: mustMarshal(t, StatsReply{TxBytes: 5_000_000})})

	// The first sample only seeds counters; the estimate stays zero.
	require.Eventually(t, func() bool {
		return registry.Bandwidth(1) == 0.0
	}, 2*time.Second, 10*time.Millisecond)
}
