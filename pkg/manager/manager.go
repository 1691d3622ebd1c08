package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/macpool"
	"github.com/rookeryhq/rookery/pkg/storage"
	"github.com/rookeryhq/rookery/pkg/types"
)

// Manager represents a Rookery control-plane node
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft        *raft.Raft
	fsm         *RookeryFSM
	store       storage.Store
	eventBroker *events.Broker
}

// Config holds configuration for creating a Manager
type Config struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	MACPrefix macpool.Prefix
}

// NewManager creates a new Manager instance
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir, cfg.MACPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	fsm := NewRookeryFSM(store)

	eventBroker := events.NewBroker()
	eventBroker.Start()

	return &Manager{
		nodeID:      cfg.NodeID,
		bindAddr:    cfg.BindAddr,
		dataDir:     cfg.DataDir,
		fsm:         fsm,
		store:       store,
		eventBroker: eventBroker,
	}, nil
}

// setupRaft starts the Raft runtime: transport, snapshot store, and the
// BoltDB-backed log and stable stores.
func (m *Manager) setupRaft() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tighter timeouts than the Hashicorp defaults. The control plane runs
	// on a LAN; leader failover should settle in a few seconds, not tens.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %v", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %v", err)
	}
	// Record the address the transport actually bound, so callers may pass
	// ":0" in tests.
	m.bindAddr = string(transport.LocalAddr())

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %v", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %v", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %v", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %v", err)
	}

	m.raft = r
	return nil
}

// Bootstrap initializes a new single-node Raft cluster
func (m *Manager) Bootstrap() error {
	if err := m.setupRaft(); err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(m.nodeID),
				Address: raft.ServerAddress(m.bindAddr),
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %v", err)
	}

	log.Logger.Info().
		Str("component", "manager").
		Str("node_id", m.nodeID).
		Str("bind_addr", m.bindAddr).
		Msg("bootstrapped control plane")

	return nil
}

// Join starts the Raft runtime without bootstrapping. The node stays a
// follower until the current leader adds it with AddVoter.
func (m *Manager) Join() error {
	if err := m.setupRaft(); err != nil {
		return err
	}

	log.Logger.Info().
		Str("component", "manager").
		Str("node_id", m.nodeID).
		Str("bind_addr", m.bindAddr).
		Msg("started follower, waiting to be added by the leader")

	return nil
}

// AddVoter adds a control-plane peer to the Raft cluster
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %v", err)
	}

	log.Logger.Info().
		Str("component", "manager").
		Str("peer_id", nodeID).
		Str("peer_addr", address).
		Msg("added voter to cluster")

	return nil
}

// RemoveServer removes a server from the Raft cluster
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %v", err)
	}

	return nil
}

// GetClusterServers returns information about all servers in the Raft cluster
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %v", err)
	}

	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// WaitForLeader blocks until the cluster elects a leader or the timeout
// expires
func (m *Manager) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if m.LeaderAddr() != "" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no leader elected within %s", timeout)
		}
	}
	return nil
}

// GetRaftStats returns Raft statistics
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	return stats
}

// EventBroker returns the event broker
func (m *Manager) EventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes an event to all subscribers
func (m *Manager) PublishEvent(event *events.Event) {
	if m.eventBroker != nil {
		m.eventBroker.Publish(event)
	}
}

// Apply submits a command to the Raft cluster
func (m *Manager) Apply(cmd Command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %v", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %v", err)
	}

	// Check if apply returned an error
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) applyOp(op string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: op, Data: data})
}

// --- Host operations ---

// CreateHost registers a host in the fleet
func (m *Manager) CreateHost(host *types.Host) error {
	return m.applyOp("create_host", host)
}

// UpdateHost replaces a host record
func (m *Manager) UpdateHost(host *types.Host) error {
	return m.applyOp("update_host", host)
}

// DeleteHost removes a host; it must own no nodes
func (m *Manager) DeleteHost(id string) error {
	return m.applyOp("delete_host", id)
}

// SetHostStatus records a host's connection status, updating LastSeen when
// seen is non-zero
func (m *Manager) SetHostStatus(id string, status types.HostStatus, seen time.Time) error {
	return m.applyOp("set_host_status", setHostStatusPayload{HostID: id, Status: status, Seen: seen})
}

// ReserveHostResources reserves capacity on a host's ledger
func (m *Manager) ReserveHostResources(id string, req types.ResourceSpec) error {
	return m.applyOp("reserve_host_resources", ledgerPayload{HostID: id, Resources: req})
}

// ReleaseHostResources returns capacity to a host's ledger
func (m *Manager) ReleaseHostResources(id string, req types.ResourceSpec) error {
	return m.applyOp("release_host_resources", ledgerPayload{HostID: id, Resources: req})
}

// --- Node operations ---

// PlaceNode commits a placement: reservation, MAC assignment, node record,
// and planned deployment attempt as one replicated operation
func (m *Manager) PlaceNode(node *types.Node, reserved types.ResourceSpec, dep *types.Deployment) error {
	return m.applyOp("place_node", placeNodePayload{Node: node, Reserved: reserved, Deployment: dep})
}

// UpdateNode replaces a node record
func (m *Manager) UpdateNode(node *types.Node) error {
	return m.applyOp("update_node", node)
}

// DeleteNode removes a node, canceling any attempt in flight and releasing
// the capacity the node held. The returned spec reflects the capacity at the
// moment the delete was submitted.
func (m *Manager) DeleteNode(id string, at time.Time) (types.ResourceSpec, error) {
	var held types.ResourceSpec
	if dep, err := m.store.GetDeployment(id); err == nil {
		held = dep.Reserved
	}
	if err := m.applyOp("delete_node", deleteNodePayload{NodeID: id, At: at}); err != nil {
		return types.ResourceSpec{}, err
	}
	return held, nil
}

// --- Deployment attempts ---

// PlanUpgrade stores a planned upgrade attempt for a running node
func (m *Manager) PlanUpgrade(nodeID string, dep *types.Deployment) error {
	return m.applyOp("plan_upgrade", planUpgradePayload{NodeID: nodeID, Deployment: dep})
}

// MarkDeploymentSent transitions a planned attempt to sent
func (m *Manager) MarkDeploymentSent(nodeID, commandID string, at time.Time) (*types.Deployment, error) {
	err := m.applyOp("mark_deployment_sent", markSentPayload{NodeID: nodeID, CommandID: commandID, At: at})
	if err != nil {
		return nil, err
	}
	return m.store.GetDeployment(nodeID)
}

// ResendDeployment records one re-send of an attempt still waiting for its
// acknowledgement
func (m *Manager) ResendDeployment(nodeID string, at time.Time) (*types.Deployment, error) {
	if err := m.applyOp("resend_deployment", resendPayload{NodeID: nodeID, At: at}); err != nil {
		return nil, err
	}
	return m.store.GetDeployment(nodeID)
}

// CompleteDeployment settles a success acknowledgement
func (m *Manager) CompleteDeployment(nodeID, hostID string, at time.Time) (*types.Deployment, error) {
	err := m.applyOp("complete_deployment", settleAckPayload{NodeID: nodeID, HostID: hostID, At: at})
	if err != nil {
		return nil, err
	}
	return m.store.GetDeployment(nodeID)
}

// FailDeployment settles a failure acknowledgement, or a timeout escalation
// when timedOut is set
func (m *Manager) FailDeployment(nodeID, hostID string, timedOut bool, at time.Time) (*types.Deployment, error) {
	err := m.applyOp("fail_deployment", settleAckPayload{NodeID: nodeID, HostID: hostID, TimedOut: timedOut, At: at})
	if err != nil {
		return nil, err
	}
	return m.store.GetDeployment(nodeID)
}

// AppendDeploymentLog appends one audit row
func (m *Manager) AppendDeploymentLog(entry *types.DeploymentLog) error {
	return m.applyOp("append_deployment_log", entry)
}

// --- Node types and versions ---

// PutNodeType creates or updates a node type definition
func (m *Manager) PutNodeType(nt *types.NodeType) error {
	return m.applyOp("put_node_type", nt)
}

// DeleteNodeType removes an unreferenced node type
func (m *Manager) DeleteNodeType(chainID, key string) error {
	return m.applyOp("delete_node_type", deleteNodeTypePayload{ChainID: chainID, Key: key})
}

// AddChainVersion publishes a version for a (chain, node type) pair
func (m *Manager) AddChainVersion(cv *types.ChainVersion) error {
	return m.applyOp("add_chain_version", cv)
}

// --- Groups ---

// PutGroup creates or updates a group
func (m *Manager) PutGroup(group *types.Group) error {
	return m.applyOp("put_group", group)
}

// DeleteGroup removes a group
func (m *Manager) DeleteGroup(id string) error {
	return m.applyOp("delete_group", id)
}

// AddGroupMember adds a host or node to a group
func (m *Manager) AddGroupMember(groupID string, member types.GroupMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return m.applyOp("add_group_member", groupMemberPayload{GroupID: groupID, Member: data})
}

// RemoveGroupMember removes a host or node from a group
func (m *Manager) RemoveGroupMember(groupID string, member types.GroupMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return m.applyOp("remove_group_member", groupMemberPayload{GroupID: groupID, Member: data})
}

// --- Read paths (local store) ---

// GetHost retrieves a host by ID (read from local store)
func (m *Manager) GetHost(id string) (*types.Host, error) {
	return m.store.GetHost(id)
}

// ListHosts returns all hosts (read from local store)
func (m *Manager) ListHosts() ([]*types.Host, error) {
	return m.store.ListHosts()
}

// GetNode retrieves a node by ID (read from local store)
func (m *Manager) GetNode(id string) (*types.Node, error) {
	return m.store.GetNode(id)
}

// ListNodes returns all nodes (read from local store)
func (m *Manager) ListNodes() ([]*types.Node, error) {
	return m.store.ListNodes()
}

// ListNodesByHost returns all nodes placed on a host (read from local store)
func (m *Manager) ListNodesByHost(hostID string) ([]*types.Node, error) {
	return m.store.ListNodesByHost(hostID)
}

// GetDeployment retrieves a node's deployment attempt (read from local store)
func (m *Manager) GetDeployment(nodeID string) (*types.Deployment, error) {
	return m.store.GetDeployment(nodeID)
}

// ListDeployments returns all deployment attempts (read from local store)
func (m *Manager) ListDeployments() ([]*types.Deployment, error) {
	return m.store.ListDeployments()
}

// ListDeploymentLogs returns audit rows matching the filter (read from local
// store)
func (m *Manager) ListDeploymentLogs(filter storage.LogFilter) ([]*types.DeploymentLog, error) {
	return m.store.ListDeploymentLogs(filter)
}

// GetNodeType retrieves a node type (read from local store)
func (m *Manager) GetNodeType(chainID, key string) (*types.NodeType, error) {
	return m.store.GetNodeType(chainID, key)
}

// ListNodeTypes returns all node types (read from local store)
func (m *Manager) ListNodeTypes() ([]*types.NodeType, error) {
	return m.store.ListNodeTypes()
}

// ListChainVersions returns the published versions for a (chain, node type)
// pair (read from local store)
func (m *Manager) ListChainVersions(chainID, nodeType string) ([]*types.ChainVersion, error) {
	return m.store.ListChainVersions(chainID, nodeType)
}

// GetGroup retrieves a group by ID (read from local store)
func (m *Manager) GetGroup(id string) (*types.Group, error) {
	return m.store.GetGroup(id)
}

// ListGroups returns all groups (read from local store)
func (m *Manager) ListGroups() ([]*types.Group, error) {
	return m.store.ListGroups()
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %v", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %v", err)
		}
	}

	return nil
}
