package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/macpool"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/scheduler"
	"github.com/rookeryhq/rookery/pkg/storage"
	"github.com/rookeryhq/rookery/pkg/types"
)

type fakeTransport struct {
	mu       sync.Mutex
	commands []*types.CommandEnvelope
	failing  bool
}

func (f *fakeTransport) PublishCommand(cmd *types.CommandEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broker unreachable")
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeTransport) fail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeTransport) byAction(action types.CommandAction) []*types.CommandEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.CommandEnvelope
	for _, cmd := range f.commands {
		if cmd.Action == action {
			out = append(out, cmd)
		}
	}
	return out
}

func newTestTracker(t *testing.T, cfg Config) (*Tracker, *fakeTransport, *manager.Manager) {
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

	ft := &fakeTransport{}
	return NewTracker(mgr, scheduler.NewScheduler(mgr), ft, cfg), ft, mgr
}

func seedHost(t *testing.T, mgr *manager.Manager, id string, cpu, ram, disk int64) {
	t.Helper()
	require.NoError(t, mgr.CreateHost(&types.Host{
		ID:     id,
		OrgID:  "org-1",
		Name:   id,
		Status: types.HostStatusOnline,
		Resources: &types.HostResources{
			CPUCores: cpu,
			RAMMB:    ram,
			DiskMB:   disk,
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
}

func seedNodeType(t *testing.T, mgr *manager.Manager) {
	t.Helper()
	require.NoError(t, mgr.PutNodeType(&types.NodeType{
		Key:         "validator",
		ChainID:     "testchain",
		Requirement: types.ResourceSpec{CPUCores: 2, RAMMB: 4096, DiskMB: 10240},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))
}

func deployTestNode(t *testing.T, tr *Tracker) *types.Node {
	t.Helper()
	node, err := tr.PlanAndDeploy(Request{
		OrgID:    "org-1",
		ChainID:  "testchain",
		NodeType: "validator",
		Version:  "1.0.0",
	})
	require.NoError(t, err)
	return node
}

func ackFor(node *types.Node, result types.AckResult, detail string) *types.AckEnvelope {
	return &types.AckEnvelope{
		HostID: node.HostID,
		NodeID: node.ID,
		Result: result,
		Detail: detail,
		SentAt: time.Now(),
	}
}

func logActions(t *testing.T, mgr *manager.Manager, nodeID string) map[types.DeploymentAction]int {
	t.Helper()
	rows, err := mgr.ListDeploymentLogs(storage.LogFilter{NodeID: nodeID})
	require.NoError(t, err)
	counts := make(map[types.DeploymentAction]int)
	for _, row := range rows {
		counts[row.Action]++
	}
	return counts
}

func hostAllocated(t *testing.T, mgr *manager.Manager, id string) types.ResourceSpec {
	t.Helper()
	host, err := mgr.GetHost(id)
	require.NoError(t, err)
	return types.ResourceSpec{
		CPUCores: host.Resources.CPUAllocated,
		RAMMB:    host.Resources.RAMAllocated,
		DiskMB:   host.Resources.DiskAllocated,
	}
}

var testRequirement = types.ResourceSpec{CPUCores: 2, RAMMB: 4096, DiskMB: 10240}

// TestPlanAndDeploy verifies the create flow: placement, MAC assignment,
// the create_sent row, the sent transition, and the dispatched command
func TestPlanAndDeploy(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)

	node := deployTestNode(t, tr)
	assert.Equal(t, "alpha", node.HostID)
	assert.Equal(t, "aa:bb:cc:00:00:00", node.MACAddress)
	assert.Equal(t, types.NodeStatusDeploying, node.Status)

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, types.DeploymentStateSent, dep.State)
	assert.Equal(t, types.DeploymentKindCreate, dep.Kind)
	assert.Equal(t, "alpha", dep.HostID)
	assert.NotEmpty(t, dep.CommandID)
	assert.Equal(t, testRequirement, dep.Reserved)

	creates := ft.byAction(types.CommandCreate)
	require.Len(t, creates, 1)
	cmd := creates[0]
	assert.Equal(t, dep.CommandID, cmd.CommandID)
	assert.Equal(t, "alpha", cmd.HostID)
	assert.Equal(t, node.ID, cmd.NodeID)
	assert.Equal(t, "1.0.0", cmd.Version)
	assert.Equal(t, node.MACAddress, cmd.MACAddress)

	counts := logActions(t, mgr, node.ID)
	assert.Equal(t, 1, counts[types.DeploymentActionCreateSent])

	assert.Equal(t, testRequirement, hostAllocated(t, mgr, "alpha"))
}

// TestPlanAndDeployNoFeasibleHost verifies nothing is created when no host
// can take the node
func TestPlanAndDeployNoFeasibleHost(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "tiny", 1, 1024, 1024)
	seedNodeType(t, mgr)

	_, err := tr.PlanAndDeploy(Request{
		OrgID:    "org-1",
		ChainID:  "testchain",
		NodeType: "validator",
		Version:  "1.0.0",
	})
	require.ErrorIs(t, err, types.ErrInsufficientCapacity)

	nodes, err := mgr.ListNodes()
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, ft.byAction(types.CommandCreate))
}

// TestAckSuccess verifies a success ack confirms the node and appends the
// success row, and that a duplicate of it is dropped without side effects
func TestAckSuccess(t *testing.T) {
	tr, _, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)

	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))

	placed, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusRunning, placed.Status)

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateSucceeded, dep.State)
	// The node occupies its reservation for as long as it lives.
	assert.Equal(t, testRequirement, hostAllocated(t, mgr, "alpha"))

	counts := logActions(t, mgr, node.ID)
	assert.Equal(t, 1, counts[types.DeploymentActionCreateSent])
	assert.Equal(t, 1, counts[types.DeploymentActionSuccessReceived])

	// Duplicate success is a no-op.
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))
	counts = logActions(t, mgr, node.ID)
	assert.Equal(t, 1, counts[types.DeploymentActionSuccessReceived])
}

// TestAckWrongHostIgnored verifies acks from a host that does not own the
// attempt never settle it
func TestAckWrongHostIgnored(t *testing.T) {
	tr, _, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)

	require.NoError(t, tr.HandleAck(&types.AckEnvelope{
		HostID: "impostor",
		NodeID: node.ID,
		Result: types.AckSuccess,
	}))

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateSent, dep.State)

	counts := logActions(t, mgr, node.ID)
	assert.Zero(t, counts[types.DeploymentActionSuccessReceived])
}

// TestFailureRetriesSameHostFirst verifies the first failure on a host leads
// to a fresh attempt on the same host, with cleanup and audit rows
func TestFailureRetriesSameHostFirst(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)

	first, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)

	require.NoError(t, tr.HandleAck(ackFor(node, types.AckFailure, "agent error")))

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateSent, dep.State)
	assert.Equal(t, "alpha", dep.HostID)
	assert.NotEqual(t, first.CommandID, dep.CommandID, "retry is a fresh attempt")

	retried, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusDeploying, retried.Status)
	assert.Equal(t, node.MACAddress, retried.MACAddress, "retries keep the address")

	// Released on failure, re-reserved by the retry.
	assert.Equal(t, testRequirement, hostAllocated(t, mgr, "alpha"))

	assert.Len(t, ft.byAction(types.CommandCreate), 2)
	assert.Len(t, ft.byAction(types.CommandDelete), 1)

	counts := logActions(t, mgr, node.ID)
	assert.Equal(t, 2, counts[types.DeploymentActionCreateSent])
	assert.Equal(t, 1, counts[types.DeploymentActionFailureReceived])
}

// TestFailureMovesToSecondHost verifies the per-host budget: two failed
// deploys on the first host move the node to a host it has not tried
func TestFailureMovesToSecondHost(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedHost(t, mgr, "beta", 8, 16384, 102400)
	seedNodeType(t, mgr)

	node := deployTestNode(t, tr)
	require.Equal(t, "alpha", node.HostID, "most free capacity wins the first placement")

	require.NoError(t, tr.HandleAck(ackFor(node, types.AckFailure, "first")))
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckFailure, "second")))

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, "beta", dep.HostID)
	assert.Equal(t, types.DeploymentStateSent, dep.State)

	moved, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, "beta", moved.HostID)
	assert.Equal(t, node.MACAddress, moved.MACAddress)

	assert.Equal(t, types.ResourceSpec{}, hostAllocated(t, mgr, "alpha"))
	assert.Equal(t, testRequirement, hostAllocated(t, mgr, "beta"))

	counts := logActions(t, mgr, node.ID)
	assert.Equal(t, 3, counts[types.DeploymentActionCreateSent])
	assert.Equal(t, 2, counts[types.DeploymentActionFailureReceived])

	creates := ft.byAction(types.CommandCreate)
	require.Len(t, creates, 3)
	assert.Equal(t, "beta", creates[2].HostID)
}

// TestFailurePermanentAfterBudgets verifies exhaustion of both budgets (two
// deploys per host, two hosts) fails the node permanently and releases all
// capacity
func TestFailurePermanentAfterBudgets(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedHost(t, mgr, "beta", 8, 16384, 102400)
	seedNodeType(t, mgr)

	node := deployTestNode(t, tr)

	for i := 0; i < 4; i++ {
		current, err := mgr.GetNode(node.ID)
		require.NoError(t, err)
		require.NoError(t, tr.HandleAck(ackFor(current, types.AckFailure, "agent error")))
	}

	failed, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusFailed, failed.Status)
	assert.Equal(t, node.MACAddress, failed.MACAddress)

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateFailed, dep.State)
	assert.Equal(t, types.ResourceSpec{}, dep.Reserved)

	assert.Equal(t, types.ResourceSpec{}, hostAllocated(t, mgr, "alpha"))
	assert.Equal(t, types.ResourceSpec{}, hostAllocated(t, mgr, "beta"))

	counts := logActions(t, mgr, node.ID)
	assert.Equal(t, 4, counts[types.DeploymentActionCreateSent])
	assert.Equal(t, 4, counts[types.DeploymentActionFailureReceived])

	assert.Len(t, ft.byAction(types.CommandCreate), 4)
	assert.Len(t, ft.byAction(types.CommandDelete), 4)
}

// TestUpgradeLifecycle verifies a successful upgrade: the command rides the
// same protocol, no extra capacity is reserved, and the version advances
// only on the success ack
func TestUpgradeLifecycle(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))

	dep, err := tr.Upgrade(node.ID, "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentKindUpgrade, dep.Kind)
	assert.Equal(t, types.DeploymentStateSent, dep.State)
	assert.Equal(t, "2.0.0", dep.Version)
	assert.Equal(t, testRequirement, dep.Reserved, "upgrade carries the running reservation")

	upgrades := ft.byAction(types.CommandUpgrade)
	require.Len(t, upgrades, 1)
	assert.Equal(t, "2.0.0", upgrades[0].Version)

	mid, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", mid.Version, "version advances only on ack")
	assert.Equal(t, types.NodeStatusRunning, mid.Status)

	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))

	done, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", done.Version)
	assert.Equal(t, types.NodeStatusRunning, done.Status)
	assert.Equal(t, testRequirement, hostAllocated(t, mgr, "alpha"), "no double reservation")
}

// TestUpgradeFailureIsTerminal verifies a failed upgrade is not retried: the
// node keeps its old version and its capacity, flagged for the operator
func TestUpgradeFailureIsTerminal(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))

	_, err := tr.Upgrade(node.ID, "2.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckFailure, "binary missing")))

	failed, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusFailed, failed.Status)
	assert.Equal(t, "1.0.0", failed.Version, "failed upgrade never advances the version")

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateFailed, dep.State)

	// The workload still occupies the host until the operator acts.
	assert.Equal(t, testRequirement, hostAllocated(t, mgr, "alpha"))

	assert.Len(t, ft.byAction(types.CommandCreate), 1, "no retry after a failed upgrade")
}

// TestDeleteNodeCancelsInFlightAttempt verifies delete during a sent attempt:
// capacity flows back, the attempt is canceled, and the late ack is stale
func TestDeleteNodeCancelsInFlightAttempt(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)

	require.NoError(t, tr.DeleteNode(node.ID))

	_, err := mgr.GetNode(node.ID)
	require.ErrorIs(t, err, types.ErrNodeNotFound)

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, types.DeploymentStateCanceled, dep.State)

	assert.Equal(t, types.ResourceSpec{}, hostAllocated(t, mgr, "alpha"))
	assert.Len(t, ft.byAction(types.CommandDelete), 1)

	// The agent's ack arrives after the cancellation: dropped, no rows.
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))
	dep, err = mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateCanceled, dep.State)
	counts := logActions(t, mgr, node.ID)
	assert.Zero(t, counts[types.DeploymentActionSuccessReceived])
}

// TestSweepResendsThenEscalates verifies silent attempts are re-sent with
// the same command id up to the budget, then timed out with a full release
func TestSweepResendsThenEscalates(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{AckTimeout: time.Millisecond, MaxResends: 2})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)
	node := deployTestNode(t, tr)

	first, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	tr.sweep()

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dep.Resends)
	creates := ft.byAction(types.CommandCreate)
	require.Len(t, creates, 2)
	assert.Equal(t, first.CommandID, creates[1].CommandID, "re-send repeats the same command")

	time.Sleep(5 * time.Millisecond)
	tr.sweep()

	dep, err = mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, dep.Resends)

	time.Sleep(5 * time.Millisecond)
	tr.sweep()

	dep, err = mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateTimedOut, dep.State)

	timedOut, err := mgr.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusFailed, timedOut.Status)
	assert.Equal(t, types.ResourceSpec{}, hostAllocated(t, mgr, "alpha"))

	// Re-sends are not new attempts.
	counts := logActions(t, mgr, node.ID)
	assert.Equal(t, 1, counts[types.DeploymentActionCreateSent])
	assert.Len(t, ft.byAction(types.CommandDelete), 1)
}

// TestSweepRedrivesStalledPlanned verifies a committed placement whose
// dispatch never happened is picked up by the sweep
func TestSweepRedrivesStalledPlanned(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{AckTimeout: time.Millisecond})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)

	// Commit the placement directly, skipping dispatch.
	now := time.Now()
	node := &types.Node{
		ID:        "stalled-node",
		OrgID:     "org-1",
		ChainID:   "testchain",
		NodeType:  "validator",
		Version:   "1.0.0",
		Status:    types.NodeStatusDeploying,
		CreatedAt: now,
		UpdatedAt: now,
	}
	dep := &types.Deployment{
		NodeID:    node.ID,
		Kind:      types.DeploymentKindCreate,
		State:     types.DeploymentStatePlanned,
		Version:   "1.0.0",
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := scheduler.NewScheduler(mgr).Place(node, dep, scheduler.Scope{OrgID: "org-1"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	tr.sweep()

	recovered, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateSent, recovered.State)
	assert.Len(t, ft.byAction(types.CommandCreate), 1)
}

// TestPublishFailureRecoveredBySweep verifies a failed broker publish does
// not fail the attempt: the state is already sent, and the sweep re-sends
func TestPublishFailureRecoveredBySweep(t *testing.T) {
	tr, ft, mgr := newTestTracker(t, Config{AckTimeout: time.Millisecond})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)

	ft.fail(true)
	node := deployTestNode(t, tr)
	assert.Empty(t, ft.byAction(types.CommandCreate))

	dep, err := mgr.GetDeployment(node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentStateSent, dep.State)

	ft.fail(false)
	time.Sleep(5 * time.Millisecond)
	tr.sweep()

	creates := ft.byAction(types.CommandCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, dep.CommandID, creates[0].CommandID)
}

// TestAwait verifies deferred completion: callers block until the attempt
// settles, terminal attempts resolve immediately, and cancellation unblocks
func TestAwait(t *testing.T) {
	tr, _, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)

	t.Run("resolves on ack", func(t *testing.T) {
		node := deployTestNode(t, tr)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = tr.HandleAck(ackFor(node, types.AckSuccess, ""))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dep, err := tr.Await(ctx, node.HostID, node.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStateSucceeded, dep.State)
	})

	t.Run("terminal attempt resolves immediately", func(t *testing.T) {
		node := deployTestNode(t, tr)
		require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		dep, err := tr.Await(ctx, node.HostID, node.ID)
		require.NoError(t, err)
		assert.Equal(t, types.DeploymentStateSucceeded, dep.State)
	})

	t.Run("context cancellation unblocks", func(t *testing.T) {
		node := deployTestNode(t, tr)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := tr.Await(ctx, node.HostID, node.ID)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

// TestEventsEmitted verifies the broker sees the lifecycle of a successful
// create
func TestEventsEmitted(t *testing.T) {
	tr, _, mgr := newTestTracker(t, Config{})
	seedHost(t, mgr, "alpha", 16, 32768, 204800)
	seedNodeType(t, mgr)

	sub := mgr.EventBroker().Subscribe()
	defer mgr.EventBroker().Unsubscribe(sub)

	node := deployTestNode(t, tr)
	require.NoError(t, tr.HandleAck(ackFor(node, types.AckSuccess, "")))

	seen := make(map[events.EventType]bool)
	deadline := time.After(2 * time.Second)
	for !seen[events.EventDeploymentSucceeded] {
		select {
		case ev := <-sub:
			seen[ev.Type] = true
		case <-deadline:
			t.Fatalf("deployment.succeeded not observed, saw %v", seen)
		}
	}
	assert.True(t, seen[events.EventNodePlaced])
	assert.True(t, seen[events.EventDeploymentSent])
}
