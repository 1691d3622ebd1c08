package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/metrics"
	"github.com/rookeryhq/rookery/pkg/scheduler"
	"github.com/rookeryhq/rookery/pkg/storage"
	"github.com/rookeryhq/rookery/pkg/types"
)

const (
	// DefaultAckTimeout is the wait window before a sent command is re-sent
	DefaultAckTimeout = 2 * time.Minute

	// DefaultSweepInterval is how often stalled attempts are examined
	DefaultSweepInterval = 15 * time.Second

	// DefaultMaxResends bounds re-sends of the same command before the
	// attempt is escalated to a timeout
	DefaultMaxResends = 2

	// Recovery budgets. A node gets at most two deploy attempts per host
	// across at most two hosts before its creation fails permanently.
	maxDeploysPerHost = 2
	maxHostsTried     = 2
)

// Transport publishes command envelopes to a host's command topic.
// Delivery is at-least-once; a failed publish is recovered by the re-send
// sweep, never by blocking the caller.
type Transport interface {
	PublishCommand(cmd *types.CommandEnvelope) error
}

// Config tunes the acknowledgement protocol
type Config struct {
	AckTimeout    time.Duration
	SweepInterval time.Duration
	MaxResends    int
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.MaxResends <= 0 {
		c.MaxResends = DefaultMaxResends
	}
	return c
}

// Tracker drives the deployment protocol: it dispatches commands to host
// agents, settles inbound acknowledgements against the replicated state
// machine, recovers failed create attempts within the retry budgets, and
// sweeps stalled attempts on a timer.
type Tracker struct {
	manager   *manager.Manager
	scheduler *scheduler.Scheduler
	transport Transport
	cfg       Config

	mu      sync.Mutex
	waiters map[string][]chan *types.Deployment

	stopCh chan struct{}
}

// NewTracker creates a deployment tracker
func NewTracker(mgr *manager.Manager, sched *scheduler.Scheduler, transport Transport, cfg Config) *Tracker {
	return &Tracker{
		manager:   mgr,
		scheduler: sched,
		transport: transport,
		cfg:       cfg.withDefaults(),
		waiters:   make(map[string][]chan *types.Deployment),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the timeout sweep loop
func (t *Tracker) Start() {
	go t.run()
}

// Stop stops the sweep loop
func (t *Tracker) Stop() {
	close(t.stopCh)
}

// Request describes one node to create and place
type Request struct {
	OrgID       string
	ChainID     string
	NodeType    string
	Version     string
	Properties  map[string]string
	SelfUpgrade types.SelfUpgrade
	Policy      *types.SchedulerPolicy
	GroupID     string
}

// PlanAndDeploy places a new node and dispatches its create command. The
// placement (reservation, MAC assignment, node record, planned attempt) is
// durable once this returns a node, even when dispatch itself errored: the
// sweep loop re-drives dispatch for planned attempts, so callers get the
// node back alongside any dispatch error.
func (t *Tracker) PlanAndDeploy(req Request) (*types.Node, error) {
	now := time.Now()

	node := &types.Node{
		ID:          uuid.New().String(),
		OrgID:       req.OrgID,
		ChainID:     req.ChainID,
		NodeType:    req.NodeType,
		Version:     req.Version,
		Properties:  req.Properties,
		SelfUpgrade: req.SelfUpgrade,
		Scheduler:   req.Policy,
		Status:      types.NodeStatusDeploying,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	dep := &types.Deployment{
		NodeID:    node.ID,
		Kind:      types.DeploymentKindCreate,
		State:     types.DeploymentStatePlanned,
		Version:   req.Version,
		CreatedAt: now,
		UpdatedAt: now,
	}

	timer := metrics.NewTimer()
	host, err := t.scheduler.Place(node, dep, scheduler.Scope{OrgID: req.OrgID, GroupID: req.GroupID})
	if err != nil {
		return nil, err
	}
	timer.ObserveDuration(metrics.PlacementLatency)
	metrics.PlacementsTotal.Inc()

	t.publishEvent(events.EventNodePlaced, host.ID, node.ID,
		fmt.Sprintf("placed %s/%s node on host %s", node.ChainID, node.NodeType, host.ID))

	if _, err := t.dispatch(node, dep, now); err != nil {
		return node, fmt.Errorf("dispatch: %w", err)
	}
	return node, nil
}

// Upgrade plans an in-place version upgrade for a running node and
// dispatches the upgrade command. The node keeps serving its current version
// until the agent acknowledges success.
func (t *Tracker) Upgrade(nodeID, version string) (*types.Deployment, error) {
	now := time.Now()

	node, err := t.manager.GetNode(nodeID)
	if err != nil {
		return nil, err
	}

	dep := &types.Deployment{
		NodeID:    nodeID,
		HostID:    node.HostID,
		Kind:      types.DeploymentKindUpgrade,
		State:     types.DeploymentStatePlanned,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.manager.PlanUpgrade(nodeID, dep); err != nil {
		return nil, err
	}

	return t.dispatch(node, dep, now)
}

// DeleteNode removes a node: a non-terminal attempt is canceled, the node's
// reservation flows back to its host, and the agent receives a best-effort
// delete command. Acks arriving for the canceled attempt are discarded as
// stale.
func (t *Tracker) DeleteNode(nodeID string) error {
	now := time.Now()

	node, err := t.manager.GetNode(nodeID)
	if err != nil {
		return err
	}

	released, err := t.manager.DeleteNode(nodeID, now)
	if err != nil {
		return err
	}

	t.sendCleanup(node.HostID, node, now)

	if dep, err := t.manager.GetDeployment(nodeID); err == nil && dep != nil && dep.State == types.DeploymentStateCanceled {
		t.settle(dep)
	}

	t.publishEvent(events.EventNodeDeleted, node.HostID, nodeID,
		fmt.Sprintf("node removed, released %d cores / %d MB ram / %d MB disk",
			released.CPUCores, released.RAMMB, released.DiskMB))
	return nil
}

// dispatch moves a planned attempt to sent: the audit row commits first, the
// transition second, the publish last. A failed publish is logged and left to
// the re-send sweep; the attempt is already live.
func (t *Tracker) dispatch(node *types.Node, dep *types.Deployment, at time.Time) (*types.Deployment, error) {
	row := &types.DeploymentLog{
		ID:        uuid.New().String(),
		HostID:    node.HostID,
		NodeID:    node.ID,
		Action:    types.DeploymentActionCreateSent,
		ChainID:   node.ChainID,
		NodeType:  node.NodeType,
		Version:   dep.Version,
		CreatedAt: at,
	}
	if err := t.manager.AppendDeploymentLog(row); err != nil {
		return nil, fmt.Errorf("append create_sent: %w", err)
	}

	sent, err := t.manager.MarkDeploymentSent(node.ID, uuid.New().String(), at)
	if err != nil {
		return nil, err
	}

	if err := t.transport.PublishCommand(t.envelope(node, sent, at)); err != nil {
		log.Logger.Warn().
			Str("component", "deploy").
			Str("node_id", node.ID).
			Str("host_id", node.HostID).
			Err(err).
			Msg("command publish failed, re-send sweep will retry")
	}

	t.publishEvent(events.EventDeploymentSent, node.HostID, node.ID,
		fmt.Sprintf("%s command sent for version %s", sent.Kind, sent.Version))
	return sent, nil
}

// envelope builds the command message for an attempt
func (t *Tracker) envelope(node *types.Node, dep *types.Deployment, at time.Time) *types.CommandEnvelope {
	action := types.CommandCreate
	if dep.Kind == types.DeploymentKindUpgrade {
		action = types.CommandUpgrade
	}
	return &types.CommandEnvelope{
		CommandID:  dep.CommandID,
		HostID:     node.HostID,
		NodeID:     node.ID,
		Action:     action,
		NodeType:   node.NodeType,
		ChainID:    node.ChainID,
		Version:    dep.Version,
		Properties: node.Properties,
		MACAddress: node.MACAddress,
		IssuedAt:   at,
	}
}

// sendCleanup publishes a best-effort delete command so the agent tears down
// whatever the failed or removed node left behind
func (t *Tracker) sendCleanup(hostID string, node *types.Node, at time.Time) {
	err := t.transport.PublishCommand(&types.CommandEnvelope{
		CommandID:  uuid.New().String(),
		HostID:     hostID,
		NodeID:     node.ID,
		Action:     types.CommandDelete,
		ChainID:    node.ChainID,
		NodeType:   node.NodeType,
		MACAddress: node.MACAddress,
		IssuedAt:   at,
	})
	if err != nil {
		log.Logger.Warn().
			Str("component", "deploy").
			Str("node_id", node.ID).
			Str("host_id", hostID).
			Err(err).
			Msg("cleanup command publish failed")
	}
}

// HandleAck settles an inbound acknowledgement. Stale acks (unknown node,
// wrong host, attempt no longer in flight) are dropped with a diagnostic and
// never touch the audit trail.
func (t *Tracker) HandleAck(ack *types.AckEnvelope) error {
	now := time.Now()

	switch ack.Result {
	case types.AckSuccess:
		dep, err := t.manager.CompleteDeployment(ack.NodeID, ack.HostID, now)
		if err != nil {
			return t.dropIfStale(ack, err)
		}
		// The success is already durable; resolve waiters even if the audit
		// row cannot commit.
		appendErr := t.appendResult(dep, types.DeploymentActionSuccessReceived, now)
		t.publishEvent(events.EventDeploymentSucceeded, dep.HostID, dep.NodeID,
			fmt.Sprintf("%s of version %s confirmed", dep.Kind, dep.Version))
		t.settle(dep)
		return appendErr

	case types.AckFailure:
		dep, err := t.manager.FailDeployment(ack.NodeID, ack.HostID, false, now)
		if err != nil {
			return t.dropIfStale(ack, err)
		}
		return t.recover(dep, ack, now)

	default:
		return fmt.Errorf("unknown ack result %q for node %s", ack.Result, ack.NodeID)
	}
}

// dropIfStale swallows stale-ack errors after logging them; anything else
// propagates
func (t *Tracker) dropIfStale(ack *types.AckEnvelope, err error) error {
	if errors.Is(err, types.ErrStaleAck) {
		log.Logger.Debug().
			Str("component", "deploy").
			Str("node_id", ack.NodeID).
			Str("host_id", ack.HostID).
			Str("result", string(ack.Result)).
			Err(err).
			Msg("discarded stale acknowledgement")
		return nil
	}
	return err
}

// appendResult records a received outcome on the audit trail
func (t *Tracker) appendResult(dep *types.Deployment, action types.DeploymentAction, at time.Time) error {
	row := &types.DeploymentLog{
		ID:        uuid.New().String(),
		HostID:    dep.HostID,
		NodeID:    dep.NodeID,
		Action:    action,
		Version:   dep.Version,
		CreatedAt: at,
	}
	if node, err := t.manager.GetNode(dep.NodeID); err == nil {
		row.ChainID = node.ChainID
		row.NodeType = node.NodeType
	}
	if err := t.manager.AppendDeploymentLog(row); err != nil {
		return fmt.Errorf("append %s: %w", action, err)
	}
	return nil
}

// recover runs the failed-create recovery flow: cleanup command to the failed
// host, the failure_received row (recovery aborts if it cannot commit, the
// audit trail drives the retry decision), then the bounded retry ladder.
// Failed upgrades are terminal; the node keeps running its old version.
func (t *Tracker) recover(dep *types.Deployment, ack *types.AckEnvelope, now time.Time) error {
	node, err := t.manager.GetNode(dep.NodeID)
	if err != nil {
		return fmt.Errorf("recover %s: %w", dep.NodeID, err)
	}

	t.sendCleanup(dep.HostID, node, now)

	if err := t.appendResult(dep, types.DeploymentActionFailureReceived, now); err != nil {
		log.Logger.Error().
			Str("component", "deploy").
			Str("node_id", dep.NodeID).
			Err(err).
			Msg("failure row not durable, recovery aborted")
		t.settle(dep)
		return err
	}

	if dep.Kind == types.DeploymentKindUpgrade {
		t.publishEvent(events.EventDeploymentFailed, dep.HostID, dep.NodeID,
			fmt.Sprintf("upgrade to %s failed: %s", dep.Version, ack.Detail))
		t.settle(dep)
		return nil
	}

	tried, deploysOnLast, err := t.retryCounters(dep.NodeID)
	if err != nil {
		return err
	}

	if deploysOnLast < maxDeploysPerHost {
		err := t.retrySameHost(node, dep, now)
		if err == nil {
			metrics.DeploymentRetriesTotal.Inc()
			t.publishEvent(events.EventDeploymentRetried, dep.HostID, dep.NodeID,
				fmt.Sprintf("retrying create on host %s", dep.HostID))
			return nil
		}
		if !errors.Is(err, types.ErrInsufficientCapacity) {
			return err
		}
		// The host no longer fits the node; treat it as exhausted and move on.
	}

	if len(tried) < maxHostsTried {
		host, err := t.retryNewHost(node, dep, tried, now)
		if err == nil {
			metrics.DeploymentRetriesTotal.Inc()
			t.publishEvent(events.EventDeploymentRetried, host.ID, dep.NodeID,
				fmt.Sprintf("retrying create on host %s after %s failed", host.ID, dep.HostID))
			t.settle(dep)
			return nil
		}
		if !errors.Is(err, types.ErrInsufficientCapacity) {
			return err
		}
	}

	t.publishEvent(events.EventDeploymentFailed, dep.HostID, dep.NodeID,
		fmt.Sprintf("create failed permanently after %d hosts: %s", len(tried), ack.Detail))
	t.settle(dep)
	return nil
}

// retryCounters derives the recovery budgets from the audit trail: the
// distinct hosts that received a create_sent, in order, and how many deploys
// went to the most recent of them
func (t *Tracker) retryCounters(nodeID string) ([]string, int, error) {
	rows, err := t.manager.ListDeploymentLogs(storage.LogFilter{NodeID: nodeID})
	if err != nil {
		return nil, 0, err
	}

	var tried []string
	var lastHost string
	for _, row := range rows {
		if row.Action != types.DeploymentActionCreateSent {
			continue
		}
		lastHost = row.HostID
		seen := false
		for _, id := range tried {
			if id == row.HostID {
				seen = true
				break
			}
		}
		if !seen {
			tried = append(tried, row.HostID)
		}
	}

	deploysOnLast := 0
	for _, row := range rows {
		if row.Action == types.DeploymentActionCreateSent && row.HostID == lastHost {
			deploysOnLast++
		}
	}
	return tried, deploysOnLast, nil
}

// retrySameHost re-reserves on the node's current host and re-dispatches as
// a fresh attempt. The node keeps its MAC address.
func (t *Tracker) retrySameHost(node *types.Node, failed *types.Deployment, now time.Time) error {
	nt, err := t.manager.GetNodeType(node.ChainID, node.NodeType)
	if err != nil {
		return err
	}

	node.Status = types.NodeStatusDeploying
	node.UpdatedAt = now
	fresh := &types.Deployment{
		NodeID:    node.ID,
		HostID:    node.HostID,
		Kind:      types.DeploymentKindCreate,
		State:     types.DeploymentStatePlanned,
		Version:   failed.Version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.manager.PlaceNode(node, nt.Requirement, fresh); err != nil {
		return err
	}

	_, err = t.dispatch(node, fresh, now)
	return err
}

// retryNewHost re-places the node on a host it has not tried yet and
// re-dispatches. The planner applies the node's scheduler policy again.
func (t *Tracker) retryNewHost(node *types.Node, failed *types.Deployment, tried []string, now time.Time) (*types.Host, error) {
	node.Status = types.NodeStatusDeploying
	node.UpdatedAt = now
	fresh := &types.Deployment{
		NodeID:    node.ID,
		Kind:      types.DeploymentKindCreate,
		State:     types.DeploymentStatePlanned,
		Version:   failed.Version,
		CreatedAt: now,
		UpdatedAt: now,
	}

	host, err := t.scheduler.Place(node, fresh, scheduler.Scope{OrgID: node.OrgID, Exclude: tried})
	if err != nil {
		return nil, err
	}

	if _, err := t.dispatch(node, fresh, now); err != nil {
		return host, err
	}
	return host, nil
}

// Await blocks until the attempt on (hostID, nodeID) reaches a terminal
// state or the context expires. An attempt that continues on the same host
// (a same-host retry) has not settled; one abandoned for another host
// resolves with its failed record.
func (t *Tracker) Await(ctx context.Context, hostID, nodeID string) (*types.Deployment, error) {
	if dep := t.terminalFor(hostID, nodeID); dep != nil {
		return dep, nil
	}

	key := ackKey(hostID, nodeID)
	ch := make(chan *types.Deployment, 1)
	t.mu.Lock()
	t.waiters[key] = append(t.waiters[key], ch)
	t.mu.Unlock()

	// Re-check after registering so an ack landing in between is not missed.
	if dep := t.terminalFor(hostID, nodeID); dep != nil {
		t.unregister(key, ch)
		return dep, nil
	}

	select {
	case dep := <-ch:
		return dep, nil
	case <-ctx.Done():
		t.unregister(key, ch)
		return nil, ctx.Err()
	}
}

func (t *Tracker) terminalFor(hostID, nodeID string) *types.Deployment {
	dep, err := t.manager.GetDeployment(nodeID)
	if err != nil || dep == nil {
		return nil
	}
	if dep.HostID == hostID && dep.State.Terminal() {
		return dep
	}
	return nil
}

func (t *Tracker) unregister(key string, ch chan *types.Deployment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	chs := t.waiters[key]
	for i, c := range chs {
		if c == ch {
			t.waiters[key] = append(chs[:i], chs[i+1:]...)
			break
		}
	}
	if len(t.waiters[key]) == 0 {
		delete(t.waiters, key)
	}
}

// settle resolves every waiter on the attempt's (host, node) key
func (t *Tracker) settle(dep *types.Deployment) {
	key := ackKey(dep.HostID, dep.NodeID)

	t.mu.Lock()
	chs := t.waiters[key]
	delete(t.waiters, key)
	t.mu.Unlock()

	for _, ch := range chs {
		ch <- dep
	}
}

func ackKey(hostID, nodeID string) string {
	return hostID + "/" + nodeID
}

// run is the sweep loop resolving stalled attempts
func (t *Tracker) run() {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

// sweep examines every active attempt once: stalled planned attempts are
// re-dispatched, silent sent attempts are re-sent until the budget runs out,
// then escalated to a timeout
func (t *Tracker) sweep() {
	if !t.manager.IsLeader() {
		return
	}

	deps, err := t.manager.ListDeployments()
	if err != nil {
		log.Logger.Error().
			Str("component", "deploy").
			Err(err).
			Msg("sweep: list deployments failed")
		return
	}

	now := time.Now()
	for _, dep := range deps {
		switch dep.State {
		case types.DeploymentStatePlanned:
			if now.Sub(dep.UpdatedAt) < t.cfg.AckTimeout {
				continue
			}
			node, err := t.manager.GetNode(dep.NodeID)
			if err != nil {
				log.Logger.Warn().
					Str("component", "deploy").
					Str("node_id", dep.NodeID).
					Err(err).
					Msg("sweep: stalled planned attempt without node")
				continue
			}
			log.Logger.Info().
				Str("component", "deploy").
				Str("node_id", dep.NodeID).
				Str("host_id", dep.HostID).
				Msg("sweep: re-driving stalled dispatch")
			if _, err := t.dispatch(node, dep, now); err != nil {
				log.Logger.Warn().
					Str("component", "deploy").
					Str("node_id", dep.NodeID).
					Err(err).
					Msg("sweep: dispatch failed")
			}

		case types.DeploymentStateSent:
			if now.Sub(dep.SentAt) < t.cfg.AckTimeout {
				continue
			}
			if dep.Resends < t.cfg.MaxResends {
				t.resend(dep, now)
			} else {
				t.escalate(dep, now)
			}
		}
	}
}

// resend re-publishes the same command for a silent attempt. Not a new
// attempt: the command id stays, no audit row is appended.
func (t *Tracker) resend(dep *types.Deployment, now time.Time) {
	updated, err := t.manager.ResendDeployment(dep.NodeID, now)
	if err != nil {
		log.Logger.Warn().
			Str("component", "deploy").
			Str("node_id", dep.NodeID).
			Err(err).
			Msg("sweep: resend transition failed")
		return
	}
	node, err := t.manager.GetNode(dep.NodeID)
	if err != nil {
		log.Logger.Warn().
			Str("component", "deploy").
			Str("node_id", dep.NodeID).
			Err(err).
			Msg("sweep: resend without node")
		return
	}
	if err := t.transport.PublishCommand(t.envelope(node, updated, now)); err != nil {
		log.Logger.Warn().
			Str("component", "deploy").
			Str("node_id", dep.NodeID).
			Str("host_id", dep.HostID).
			Err(err).
			Msg("sweep: resend publish failed")
	}
	t.publishEvent(events.EventDeploymentResent, dep.HostID, dep.NodeID,
		fmt.Sprintf("re-sent %s command, attempt %d of %d", updated.Kind, updated.Resends, t.cfg.MaxResends))
}

// escalate turns a silent attempt into a permanent timeout: release, node
// failed, cleanup command to the unresponsive host. No audit row is
// appended; the trail records only what agents actually reported.
func (t *Tracker) escalate(dep *types.Deployment, now time.Time) {
	failed, err := t.manager.FailDeployment(dep.NodeID, dep.HostID, true, now)
	if err != nil {
		// An ack raced the sweep and won; nothing to escalate.
		if errors.Is(err, types.ErrStaleAck) {
			return
		}
		log.Logger.Error().
			Str("component", "deploy").
			Str("node_id", dep.NodeID).
			Err(err).
			Msg("sweep: timeout escalation failed")
		return
	}

	if node, err := t.manager.GetNode(dep.NodeID); err == nil {
		t.sendCleanup(dep.HostID, node, now)
	}

	metrics.DeploymentTimeoutsTotal.Inc()
	log.Logger.Warn().
		Str("component", "deploy").
		Str("node_id", dep.NodeID).
		Str("host_id", dep.HostID).
		Int("resends", dep.Resends).
		Msg("deployment timed out")
	t.publishEvent(events.EventDeploymentTimedOut, dep.HostID, dep.NodeID,
		fmt.Sprintf("no acknowledgement after %d re-sends: %v", dep.Resends, types.ErrDeploymentTimeout))
	t.settle(failed)
}

func (t *Tracker) publishEvent(typ events.EventType, hostID, nodeID, msg string) {
	t.manager.PublishEvent(&events.Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now(),
		HostID:    hostID,
		NodeID:    nodeID,
		Message:   msg,
	})
}
