package storage

import (
	"time"

	"github.com/rookeryhq/rookery/pkg/types"
)

// LogFilter selects audit rows by identifier and time range. Zero fields
// match everything.
type LogFilter struct {
	HostID string
	NodeID string
	Since  time.Time
	Until  time.Time
}

// Store defines the interface for control-plane state storage.
// Implemented by BoltDB-backed storage; every method is one atomic
// transaction, and the raft apply loop is the only writer.
type Store interface {
	// Hosts
	CreateHost(host *types.Host) error
	GetHost(id string) (*types.Host, error)
	ListHosts() ([]*types.Host, error)
	UpdateHost(host *types.Host) error
	DeleteHost(id string) error
	SetHostStatus(id string, status types.HostStatus, seen time.Time) error

	// Capacity ledger
	ReserveHostResources(id string, req types.ResourceSpec) error
	ReleaseHostResources(id string, req types.ResourceSpec) error

	// Nodes and placement
	PlaceNode(node *types.Node, reserved types.ResourceSpec, dep *types.Deployment) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	ListNodesByHost(hostID string) ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNodeRecord(id string, at time.Time) (types.ResourceSpec, error)

	// Deployment attempts
	PlanUpgrade(nodeID string, dep *types.Deployment) error
	GetDeployment(nodeID string) (*types.Deployment, error)
	ListDeployments() ([]*types.Deployment, error)
	MarkDeploymentSent(nodeID, commandID string, at time.Time) (*types.Deployment, error)
	ResendDeployment(nodeID string, at time.Time) (*types.Deployment, error)
	CompleteDeployment(nodeID, hostID string, at time.Time) (*types.Deployment, error)
	FailDeployment(nodeID, hostID string, timedOut bool, at time.Time) (*types.Deployment, error)

	// Audit log
	AppendDeploymentLog(entry *types.DeploymentLog) error
	ListDeploymentLogs(filter LogFilter) ([]*types.DeploymentLog, error)

	// Node types
	PutNodeType(nt *types.NodeType) error
	GetNodeType(chainID, key string) (*types.NodeType, error)
	ListNodeTypes() ([]*types.NodeType, error)
	DeleteNodeType(chainID, key string) error

	// Version catalog
	AddChainVersion(cv *types.ChainVersion) error
	ListChainVersions(chainID, nodeType string) ([]*types.ChainVersion, error)

	// Groups
	PutGroup(group *types.Group) error
	GetGroup(id string) (*types.Group, error)
	ListGroups() ([]*types.Group, error)
	DeleteGroup(id string) error
	AddGroupMember(groupID string, member types.GroupMember) error
	RemoveGroupMember(groupID string, member types.GroupMember) error

	// Snapshot/restore support
	RestoreNode(node *types.Node) error
	RestoreDeployment(dep *types.Deployment) error
	GetMACCounter() (uint64, error)
	SetMACCounter(counter uint64) error

	// Utility
	Close() error
}
