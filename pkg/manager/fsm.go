package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	"github.com/rookeryhq/rookery/pkg/storage"
	"github.com/rookeryhq/rookery/pkg/types"
)

// RookeryFSM implements the Raft Finite State Machine for the fleet state.
// It applies log entries to the BoltDB store and handles snapshots.
type RookeryFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewRookeryFSM creates a new FSM instance
func NewRookeryFSM(store storage.Store) *RookeryFSM {
	return &RookeryFSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Payload shapes for commands that carry more than one value. Timestamps
// ride inside the command so every replica applies identical state.
type setHostStatusPayload struct {
	HostID string
	Status types.HostStatus
	Seen   time.Time
}

type ledgerPayload struct {
	HostID    string
	Resources types.ResourceSpec
}

type placeNodePayload struct {
	Node       *types.Node
	Reserved   types.ResourceSpec
	Deployment *types.Deployment
}

type deleteNodePayload struct {
	NodeID string
	At     time.Time
}

type planUpgradePayload struct {
	NodeID     string
	Deployment *types.Deployment
}

type markSentPayload struct {
	NodeID    string
	CommandID string
	At        time.Time
}

type resendPayload struct {
	NodeID string
	At     time.Time
}

type settleAckPayload struct {
	NodeID   string
	HostID   string
	TimedOut bool
	At       time.Time
}

type deleteNodeTypePayload struct {
	ChainID string
	Key     string
}

type groupMemberPayload struct {
	GroupID string
	Member  json.RawMessage
}

// Apply applies a Raft log entry to the FSM.
// This is called by Raft when a log entry is committed.
func (f *RookeryFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	// Host operations
	case "create_host":
		var host types.Host
		if err := json.Unmarshal(cmd.Data, &host); err != nil {
			return err
		}
		return f.store.CreateHost(&host)

	case "update_host":
		var host types.Host
		if err := json.Unmarshal(cmd.Data, &host); err != nil {
			return err
		}
		return f.store.UpdateHost(&host)

	case "delete_host":
		var hostID string
		if err := json.Unmarshal(cmd.Data, &hostID); err != nil {
			return err
		}
		return f.store.DeleteHost(hostID)

	case "set_host_status":
		var p setHostStatusPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.SetHostStatus(p.HostID, p.Status, p.Seen)

	// Capacity ledger
	case "reserve_host_resources":
		var p ledgerPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.ReserveHostResources(p.HostID, p.Resources)

	case "release_host_resources":
		var p ledgerPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.ReleaseHostResources(p.HostID, p.Resources)

	// Placement and node lifecycle
	case "place_node":
		var p placeNodePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.PlaceNode(p.Node, p.Reserved, p.Deployment)

	case "update_node":
		var node types.Node
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.UpdateNode(&node)

	case "delete_node":
		var p deleteNodePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		_, err := f.store.DeleteNodeRecord(p.NodeID, p.At)
		return err

	// Deployment attempts
	case "plan_upgrade":
		var p planUpgradePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.PlanUpgrade(p.NodeID, p.Deployment)

	case "mark_deployment_sent":
		var p markSentPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		_, err := f.store.MarkDeploymentSent(p.NodeID, p.CommandID, p.At)
		return err

	case "resend_deployment":
		var p resendPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		_, err := f.store.ResendDeployment(p.NodeID, p.At)
		return err

	case "complete_deployment":
		var p settleAckPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		_, err := f.store.CompleteDeployment(p.NodeID, p.HostID, p.At)
		return err

	case "fail_deployment":
		var p settleAckPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		_, err := f.store.FailDeployment(p.NodeID, p.HostID, p.TimedOut, p.At)
		return err

	// Audit log
	case "append_deployment_log":
		var entry types.DeploymentLog
		if err := json.Unmarshal(cmd.Data, &entry); err != nil {
			return err
		}
		return f.store.AppendDeploymentLog(&entry)

	// Node types
	case "put_node_type":
		var nt types.NodeType
		if err := json.Unmarshal(cmd.Data, &nt); err != nil {
			return err
		}
		return f.store.PutNodeType(&nt)

	case "delete_node_type":
		var p deleteNodeTypePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.DeleteNodeType(p.ChainID, p.Key)

	// Version catalog
	case "add_chain_version":
		var cv types.ChainVersion
		if err := json.Unmarshal(cmd.Data, &cv); err != nil {
			return err
		}
		return f.store.AddChainVersion(&cv)

	// Groups
	case "put_group":
		var group types.Group
		if err := json.Unmarshal(cmd.Data, &group); err != nil {
			return err
		}
		return f.store.PutGroup(&group)

	case "delete_group":
		var groupID string
		if err := json.Unmarshal(cmd.Data, &groupID); err != nil {
			return err
		}
		return f.store.DeleteGroup(groupID)

	case "add_group_member":
		var p groupMemberPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		member, err := types.UnmarshalGroupMember(p.Member)
		if err != nil {
			return err
		}
		return f.store.AddGroupMember(p.GroupID, member)

	case "remove_group_member":
		var p groupMemberPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		member, err := types.UnmarshalGroupMember(p.Member)
		if err != nil {
			return err
		}
		return f.store.RemoveGroupMember(p.GroupID, member)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM.
// This is called periodically by Raft to compact the log.
func (f *RookeryFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	hosts, err := f.store.ListHosts()
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %v", err)
	}

	nodes, err := f.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %v", err)
	}

	nodeTypes, err := f.store.ListNodeTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to list node types: %v", err)
	}

	deployments, err := f.store.ListDeployments()
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %v", err)
	}

	logs, err := f.store.ListDeploymentLogs(storage.LogFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployment logs: %v", err)
	}

	groups, err := f.store.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %v", err)
	}

	versions, err := f.listAllChainVersions()
	if err != nil {
		return nil, fmt.Errorf("failed to list chain versions: %v", err)
	}

	counter, err := f.store.GetMACCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to read mac counter: %v", err)
	}

	return &fleetSnapshot{
		Hosts:         hosts,
		Nodes:         nodes,
		NodeTypes:     nodeTypes,
		ChainVersions: versions,
		Groups:        groups,
		Deployments:   deployments,
		Logs:          logs,
		MACCounter:    counter,
	}, nil
}

func (f *RookeryFSM) listAllChainVersions() ([]*types.ChainVersion, error) {
	nodeTypes, err := f.store.ListNodeTypes()
	if err != nil {
		return nil, err
	}
	var versions []*types.ChainVersion
	for _, nt := range nodeTypes {
		cvs, err := f.store.ListChainVersions(nt.ChainID, nt.Key)
		if err != nil {
			return nil, err
		}
		versions = append(versions, cvs...)
	}
	return versions, nil
}

// Restore restores the FSM from a snapshot.
// This is called when a node restarts or joins the cluster.
func (f *RookeryFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot fleetSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, host := range snapshot.Hosts {
		if err := f.store.CreateHost(host); err != nil {
			return fmt.Errorf("failed to restore host: %v", err)
		}
	}

	for _, nt := range snapshot.NodeTypes {
		if err := f.store.PutNodeType(nt); err != nil {
			return fmt.Errorf("failed to restore node type: %v", err)
		}
	}

	for _, node := range snapshot.Nodes {
		if err := f.store.RestoreNode(node); err != nil {
			return fmt.Errorf("failed to restore node: %v", err)
		}
	}

	for _, dep := range snapshot.Deployments {
		if err := f.store.RestoreDeployment(dep); err != nil {
			return fmt.Errorf("failed to restore deployment: %v", err)
		}
	}

	for _, cv := range snapshot.ChainVersions {
		if err := f.store.AddChainVersion(cv); err != nil {
			return fmt.Errorf("failed to restore chain version: %v", err)
		}
	}

	for _, group := range snapshot.Groups {
		if err := f.store.PutGroup(group); err != nil {
			return fmt.Errorf("failed to restore group: %v", err)
		}
	}

	for _, entry := range snapshot.Logs {
		if err := f.store.AppendDeploymentLog(entry); err != nil {
			return fmt.Errorf("failed to restore deployment log: %v", err)
		}
	}

	if err := f.store.SetMACCounter(snapshot.MACCounter); err != nil {
		return fmt.Errorf("failed to restore mac counter: %v", err)
	}

	return nil
}

// fleetSnapshot represents a point-in-time snapshot of control-plane state
type fleetSnapshot struct {
	Hosts         []*types.Host
	Nodes         []*types.Node
	NodeTypes     []*types.NodeType
	ChainVersions []*types.ChainVersion
	Groups        []*types.Group
	Deployments   []*types.Deployment
	Logs          []*types.DeploymentLog
	MACCounter    uint64
}

// Persist writes the snapshot to the given SnapshotSink
func (s *fleetSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources
func (s *fleetSnapshot) Release() {}
