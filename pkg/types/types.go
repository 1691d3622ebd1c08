package types

import (
	"time"
)

// Host represents a machine capable of running blockchain nodes
type Host struct {
	ID        string
	OrgID     string
	Name      string
	Status    HostStatus
	Resources *HostResources
	LastSeen  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HostStatus reflects agent connectivity as observed on the status topic
type HostStatus string

const (
	HostStatusUnknown HostStatus = "unknown"
	HostStatusOnline  HostStatus = "online"
	HostStatusOffline HostStatus = "offline"
)

// HostResources tracks resource capacity and allocation
type HostResources struct {
	// Total capacity
	CPUCores int64
	RAMMB    int64
	DiskMB   int64

	// Currently allocated (reserved by placed nodes)
	CPUAllocated  int64
	RAMAllocated  int64
	DiskAllocated int64
}

// ResourceSpec is a resource quantity, used for node type requirements and
// for reserve/release deltas against a host ledger
type ResourceSpec struct {
	CPUCores int64
	RAMMB    int64
	DiskMB   int64
}

// Node represents a deployed (or pending) blockchain workload instance.
// A node is assigned to exactly one host once placement succeeds.
type Node struct {
	ID          string
	OrgID       string
	HostID      string
	NodeType    string // NodeType key, scoped by ChainID
	ChainID     string
	Version     string
	Properties  map[string]string
	MACAddress  string
	SelfUpgrade SelfUpgrade
	Scheduler   *SchedulerPolicy
	Status      NodeStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NodeStatus represents the lifecycle state of a node
type NodeStatus string

const (
	NodeStatusDeploying NodeStatus = "deploying"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusFailed    NodeStatus = "failed"
)

// SelfUpgrade is a node's opt-in policy for automatic version upgrades
type SelfUpgrade struct {
	Enabled bool
	Policy  UpgradePolicy
}

// UpgradePolicy restricts which upgrades a node accepts
type UpgradePolicy string

const (
	// UpgradePolicyAll accepts any newer version
	UpgradePolicyAll UpgradePolicy = "all"

	// UpgradePolicyNotMajor accepts newer versions only within the same
	// major version segment
	UpgradePolicyNotMajor UpgradePolicy = "not_major"
)

// SchedulerPolicy steers host selection for a node's placement
type SchedulerPolicy struct {
	Similarity   Similarity
	ResourceBias ResourceBias
}

// Similarity expresses affinity toward hosts running nodes of the same type
type Similarity string

const (
	// SimilarityNone applies no affinity constraint
	SimilarityNone Similarity = ""

	// SimilarityCluster prefers hosts already running nodes of the same type
	SimilarityCluster Similarity = "cluster"

	// SimilaritySpread prefers hosts running the fewest nodes of the same type
	SimilaritySpread Similarity = "spread"
)

// ResourceBias orders capacity-feasible hosts by available headroom
type ResourceBias string

const (
	// BiasMostResources picks the host with the greatest available headroom
	BiasMostResources ResourceBias = "most_resources"

	// BiasLeastResources picks the host with the smallest sufficient headroom
	BiasLeastResources ResourceBias = "least_resources"
)

// NodeType is a named workload category (validator, rpc, beacon, ...) scoped
// to a chain. Requirement and Properties are fixed once a live node references
// the type, except for additions of new optional properties.
type NodeType struct {
	Key         string
	ChainID     string
	Requirement ResourceSpec
	Properties  []NodeTypeProperty
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NodeTypeProperty is a typed, user-configurable field definition
type NodeTypeProperty struct {
	Name     string
	Label    string
	UIType   UIType
	Default  string
	Required bool
	Disabled bool
}

// UIType classifies how a property value is entered and validated
type UIType string

const (
	UITypeBoolean UIType = "boolean"
	UITypeText    UIType = "text"
	UITypeIP      UIType = "ip"
	UITypeNumber  UIType = "number"
	UITypeFile    UIType = "file"
)

// ChainVersion is one entry of the published version catalog for a
// (chain, node type) pair
type ChainVersion struct {
	ChainID   string
	NodeType  string
	Version   string
	CreatedAt time.Time
}

// Deployment tracks the active create or upgrade attempt for a node,
// keyed by node id. State transitions are conditional on the prior state so
// concurrent acknowledgements cannot produce two terminal outcomes.
type Deployment struct {
	NodeID    string
	HostID    string
	Kind      DeploymentKind
	State     DeploymentState
	CommandID string
	Version   string // version being deployed; differs from the node's during upgrades
	Reserved  ResourceSpec // capacity the node holds on its host's ledger; zeroed when it flows back
	Resends   int
	SentAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeploymentKind distinguishes capacity-changing creates from in-place upgrades
type DeploymentKind string

const (
	DeploymentKindCreate  DeploymentKind = "create"
	DeploymentKindUpgrade DeploymentKind = "upgrade"
)

// DeploymentState represents the state of a deployment attempt
type DeploymentState string

const (
	DeploymentStatePlanned   DeploymentState = "planned"
	DeploymentStateSent      DeploymentState = "sent"
	DeploymentStateSucceeded DeploymentState = "succeeded"
	DeploymentStateFailed    DeploymentState = "failed"
	DeploymentStateTimedOut  DeploymentState = "timed_out"
	DeploymentStateCanceled  DeploymentState = "canceled"
)

// Terminal reports whether no further transitions are possible for the state
func (s DeploymentState) Terminal() bool {
	switch s {
	case DeploymentStateSucceeded, DeploymentStateFailed, DeploymentStateTimedOut, DeploymentStateCanceled:
		return true
	}
	return false
}

// DeploymentLog is one append-only audit row for a deployment attempt event.
// Rows reference hosts and nodes by plain id with no ownership relation, so
// audit history survives deletion of either.
type DeploymentLog struct {
	ID        string
	HostID    string
	NodeID    string
	Action    DeploymentAction
	ChainID   string
	NodeType  string
	Version   string
	CreatedAt time.Time
}

// DeploymentAction is the kind of lifecycle event a log row records
type DeploymentAction string

const (
	DeploymentActionCreateSent      DeploymentAction = "create_sent"
	DeploymentActionSuccessReceived DeploymentAction = "success_received"
	DeploymentActionFailureReceived DeploymentAction = "failure_received"
)

// Group is a named collection of hosts and nodes, scoped to an organization,
// used for bulk targeting of placement scoping and upgrade scans
type Group struct {
	ID        string
	OrgID     string
	Name      string
	Members   []GroupMember
	CreatedAt time.Time
	UpdatedAt time.Time
}
