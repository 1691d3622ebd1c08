package mqtt

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rookeryhq/rookery/pkg/deploy"
	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/macpool"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/scheduler"
	"github.com/rookeryhq/rookery/pkg/types"
)

type message struct {
	topic   string
	payload []byte
}

// fakeClient keeps published messages in memory and routes delivered messages
// to the registered wildcard handlers, standing in for a live broker.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	published []message
	handlers  map[string]func(topic string, payload []byte)
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]func(string, []byte))}
}

func (f *fakeClient) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(topic string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) onTopic(topic string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.published {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// deliver routes a message the way the broker would: to every handler whose
// filter matches the concrete topic.
func (f *fakeClient) deliver(topic string, payload []byte) {
	f.mu.Lock()
	var matched []func(string, []byte)
	for filter, handler := range f.handlers {
		if filterMatches(filter, topic) {
			matched = append(matched, handler)
		}
	}
	f.mu.Unlock()
	for _, handler := range matched {
		handler(topic, payload)
	}
}

func filterMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	if len(fp) != len(tp) {
		return false
	}
	for i := range fp {
		if fp[i] != "+" && fp[i] != tp[i] {
			return false
		}
	}
	return true
}

func newTestBridge(t *testing.T) (*Bridge, *fakeClient, *manager.Manager, *deploy.Tracker) {
	t.Helper()

	prefix, err := macpool.ParsePrefix("aa:bb:cc")
	require.NoError(t, err)

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:    "test-manager",
		BindAddr:  "127.0.0.1:0",
		DataDir:   t.TempDir(),
		MACPrefix: prefix,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown() })

	require.NoError(t, mgr.Bootstrap())
	require.NoError(t, mgr.WaitForLeader(5*time.Second))

	fc := newFakeClient()
	b := NewBridge(fc, mgr)
	tr := deploy.NewTracker(mgr, scheduler.NewScheduler(mgr), b, deploy.Config{})
	b.AttachTracker(tr)
	require.NoError(t, b.Start())
	return b, fc, mgr, tr
}

func seedFleet(t *testing.T, mgr *manager.Manager, hostID string, status types.HostStatus) {
	t.Helper()
	require.NoError(t, mgr.CreateHost(&types.Host{
		ID:     hostID,
		OrgID:  "org-1",
		Name:   hostID,
		Status: status,
		Resources: &types.HostResources{
			CPUCores: 8,
			RAMMB:    16384,
			DiskMB:   102400,
		},
		LastSeen:  time.Now().Add(-time.Hour),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
	require.NoError(t, mgr.PutNodeType(&types.NodeType{
		Key:         "validator",
		ChainID:     "testchain",
		Requirement: types.ResourceSpec{CPUCores: 2, RAMMB: 4096, DiskMB: 10240},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))
}

func TestParseHostTopic(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		hostID   string
		channel  string
		parseErr bool
	}{
		{name: "commands", topic: "hosts/h-1/commands", hostID: "h-1", channel: "commands"},
		{name: "acks", topic: "hosts/h-1/acks", hostID: "h-1", channel: "acks"},
		{name: "status", topic: "hosts/h-1/status", hostID: "h-1", channel: "status"},
		{name: "wrong root", topic: "nodes/h-1/acks", parseErr: true},
		{name: "missing channel", topic: "hosts/h-1", parseErr: true},
		{name: "extra segment", topic: "hosts/h-1/acks/extra", parseErr: true},
		{name: "empty host", topic: "hosts//acks", parseErr: true},
		{name: "wildcard host", topic: "hosts/+/acks", parseErr: true},
		{name: "unknown channel", topic: "hosts/h-1/metrics", parseErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hostID, channel, err := ParseHostTopic(tt.topic)
			if tt.parseErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hostID, hostID)
			assert.Equal(t, tt.channel, channel)
		})
	}
}

func TestTopicBuilders(t *testing.T) {
	for channel, topic := range map[string]string{
		ChannelCommands: CommandTopic("h-9"),
		ChannelAcks:     AckTopic("h-9"),
		ChannelStatus:   StatusTopic("h-9"),
	} {
		hostID, got, err := ParseHostTopic(topic)
		require.NoError(t, err)
		assert.Equal(t, "h-9", hostID)
		assert.Equal(t, channel, got)
	}
}

// TestCommandDelivery verifies a planned deployment's create command lands on
// the host's command topic and decodes back to the envelope the agent expects
func TestCommandDelivery(t *testing.T) {
	_, fc, mgr, tr := newTestBridge(t)
	seedFleet(t, mgr, "alpha", types.HostStatusOnline)

	node, err := tr.PlanAndDeploy(deploy.Request{
		OrgID:    "org-1",
		ChainID:  "testchain",
		NodeType: "validator",
		Version:  "1.0.0",
	})
	require.NoError(t, err)
	require.Equal(t, "alpha", node.HostID)

	sent := fc.onTopic(CommandTopic("alpha"))
	require.Len(t, sent, 1)

	var cmd types.CommandEnvelope
	require.NoError(t, json.Unmarshal(sent[0].payload, &cmd))
	assert.Equal(t, types.CommandCreate, cmd.Action)
	assert.Equal(t, node.ID, cmd.NodeID)
	assert.Equal(t, "alpha", cmd.HostID)
	assert.Equal(t, "1.0.0", cmd.Version)
	assert.NotEmpty(t, cmd.CommandID)
	assert.NotEmpty(t, cmd.MACAddress)
}

// TestAckRoundTrip drives the full loop: command out through the bridge, a
// success ack delivered back on the wildcard subscription, node running
func TestAckRoundTrip(t *testing.T) {
	_, fc, mgr, tr := newTestBridge(t)
	seedFleet(t, mgr, "alpha", types.HostStatusOnline)

	node, err := tr.PlanAndDeploy(deploy.Request{
		OrgID:    "org-1",
		ChainID:  "testchain",
		NodeType: "validator",
		Version:  "1.0.0",
	})
	require.NoError(t, err)

	sent := fc.onTopic(CommandTopic("alpha"))
	require.Len(t, sent, 1)
	var cmd types.CommandEnvelope
	require.NoError(t, json.Unmarshal(sent[0].payload, &cmd))

	payload, err := json.Marshal(&types.AckEnvelope{
		HostID:    "alpha",
		NodeID:    cmd.NodeID,
		CommandID: cmd.CommandID,
		Result:    types.AckSuccess,
		SentAt:    time.Now(),
	})
	require.NoError(t, err)
	fc.deliver(AckTopic("alpha"), payload)

	got, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusRunning, got.Status)
}

// TestAckGuards verifies hostile or garbled inbound traffic cannot move
// deployment state
func TestAckGuards(t *testing.T) {
	b, fc, mgr, tr := newTestBridge(t)
	seedFleet(t, mgr, "alpha", types.HostStatusOnline)

	node, err := tr.PlanAndDeploy(deploy.Request{
		OrgID:    "org-1",
		ChainID:  "testchain",
		NodeType: "validator",
		Version:  "1.0.0",
	})
	require.NoError(t, err)

	// Envelope claims a different host than the topic it arrived on.
	spoofed, err := json.Marshal(&types.AckEnvelope{
		HostID: "beta",
		NodeID: node.ID,
		Result: types.AckSuccess,
	})
	require.NoError(t, err)
	fc.deliver(AckTopic("alpha"), spoofed)

	// Undecodable payload.
	fc.deliver(AckTopic("alpha"), []byte("{not json"))

	// Malformed topic reaches the handler directly; the broker would not
	// route it here, but the guard must still hold.
	b.handleAck("hosts/alpha", spoofed)

	got, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusDeploying, got.Status, "guarded acks must not complete the deployment")

	// An envelope without a host id inherits the topic's host and lands.
	bare, err := json.Marshal(&types.AckEnvelope{
		NodeID: node.ID,
		Result: types.AckSuccess,
	})
	require.NoError(t, err)
	fc.deliver(AckTopic("alpha"), bare)

	got, err = mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusRunning, got.Status)
}

// TestHeartbeatMarksHostOnline verifies a status heartbeat flips an offline
// host online exactly once and advances its last-seen timestamp
func TestHeartbeatMarksHostOnline(t *testing.T) {
	_, fc, mgr, _ := newTestBridge(t)
	seedFleet(t, mgr, "alpha", types.HostStatusOffline)

	sub := mgr.EventBroker().Subscribe()
	defer mgr.EventBroker().Unsubscribe(sub)

	beat := time.Now()
	payload, err := json.Marshal(&types.StatusEnvelope{HostID: "alpha", SentAt: beat})
	require.NoError(t, err)
	fc.deliver(StatusTopic("alpha"), payload)

	host, err := mgr.GetHost("alpha")
	require.NoError(t, err)
	assert.Equal(t, types.HostStatusOnline, host.Status)
	assert.WithinDuration(t, beat, host.LastSeen, time.Second)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventHostOnline, ev.Type)
		assert.Equal(t, "alpha", ev.HostID)
	case <-time.After(2 * time.Second):
		t.Fatal("host.online event not observed")
	}

	// Already online: the heartbeat only advances last-seen.
	later := beat.Add(30 * time.Second)
	payload, err = json.Marshal(&types.StatusEnvelope{HostID: "alpha", SentAt: later})
	require.NoError(t, err)
	fc.deliver(StatusTopic("alpha"), payload)

	host, err = mgr.GetHost("alpha")
	require.NoError(t, err)
	assert.WithinDuration(t, later, host.LastSeen, time.Second)

	select {
	case ev := <-sub:
		t.Fatalf("unexpected second event %s for %s", ev.Type, ev.HostID)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestHeartbeatUnknownHost verifies heartbeats from agents that were never
// onboarded are discarded
func TestHeartbeatUnknownHost(t *testing.T) {
	_, fc, mgr, _ := newTestBridge(t)

	payload, err := json.Marshal(&types.StatusEnvelope{HostID: "ghost", SentAt: time.Now()})
	require.NoError(t, err)
	fc.deliver(StatusTopic("ghost"), payload)

	_, err = mgr.GetHost("ghost")
	assert.ErrorIs(t, err, types.ErrHostNotFound)
}
