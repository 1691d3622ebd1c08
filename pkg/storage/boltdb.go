package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rookeryhq/rookery/pkg/inventory"
	"github.com/rookeryhq/rookery/pkg/macpool"
	"github.com/rookeryhq/rookery/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketHosts          = []byte("hosts")
	bucketNodes          = []byte("nodes")
	bucketNodeTypes      = []byte("node_types")
	bucketChainVersions  = []byte("chain_versions")
	bucketGroups         = []byte("groups")
	bucketDeployments    = []byte("deployments")
	bucketDeploymentLogs = []byte("deployment_logs")
	bucketMeta           = []byte("meta")

	keyMACCounter = []byte("mac_counter")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db     *bolt.DB
	prefix macpool.Prefix
}

// NewBoltStore creates a new BoltDB-backed store. The MAC prefix is fixed for
// the lifetime of the store; addresses are drawn from the 24-bit space under it.
func NewBoltStore(dataDir string, prefix macpool.Prefix) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "rookery.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketHosts,
			bucketNodes,
			bucketNodeTypes,
			bucketChainVersions,
			bucketGroups,
			bucketDeployments,
			bucketDeploymentLogs,
			bucketMeta,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, prefix: prefix}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- transaction helpers ---

func getHostTx(tx *bolt.Tx, id string) (*types.Host, error) {
	data := tx.Bucket(bucketHosts).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrHostNotFound, id)
	}
	var host types.Host
	if err := json.Unmarshal(data, &host); err != nil {
		return nil, err
	}
	return &host, nil
}

func putHostTx(tx *bolt.Tx, host *types.Host) error {
	data, err := json.Marshal(host)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketHosts).Put([]byte(host.ID), data)
}

func getNodeTx(tx *bolt.Tx, id string) (*types.Node, error) {
	data := tx.Bucket(bucketNodes).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, id)
	}
	var node types.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func putNodeTx(tx *bolt.Tx, node *types.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketNodes).Put([]byte(node.ID), data)
}

func getDeploymentTx(tx *bolt.Tx, nodeID string) (*types.Deployment, error) {
	data := tx.Bucket(bucketDeployments).Get([]byte(nodeID))
	if data == nil {
		return nil, nil
	}
	var dep types.Deployment
	if err := json.Unmarshal(data, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

func putDeploymentTx(tx *bolt.Tx, dep *types.Deployment) error {
	data, err := json.Marshal(dep)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketDeployments).Put([]byte(dep.NodeID), data)
}

func getNodeTypeTx(tx *bolt.Tx, chainID, key string) (*types.NodeType, error) {
	data := tx.Bucket(bucketNodeTypes).Get([]byte(nodeTypeKey(chainID, key)))
	if data == nil {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrNodeTypeNotFound, chainID, key)
	}
	var nt types.NodeType
	if err := json.Unmarshal(data, &nt); err != nil {
		return nil, err
	}
	return &nt, nil
}

func nodeTypeKey(chainID, key string) string {
	return chainID + "/" + key
}

// nodeTypeInUseTx reports whether any stored node references the type
func nodeTypeInUseTx(tx *bolt.Tx, chainID, key string) (bool, error) {
	inUse := false
	err := tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
		var node types.Node
		if err := json.Unmarshal(v, &node); err != nil {
			return err
		}
		if node.ChainID == chainID && node.NodeType == key {
			inUse = true
		}
		return nil
	})
	return inUse, err
}

func specIsZero(spec types.ResourceSpec) bool {
	return spec.CPUCores == 0 && spec.RAMMB == 0 && spec.DiskMB == 0
}

// --- Host operations ---

func (s *BoltStore) CreateHost(host *types.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putHostTx(tx, host)
	})
}

func (s *BoltStore) GetHost(id string) (*types.Host, error) {
	var host *types.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		host, err = getHostTx(tx, id)
		return err
	})
	return host, err
}

func (s *BoltStore) ListHosts() ([]*types.Host, error) {
	var hosts []*types.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).ForEach(func(k, v []byte) error {
			var host types.Host
			if err := json.Unmarshal(v, &host); err != nil {
				return err
			}
			hosts = append(hosts, &host)
			return nil
		})
	})
	return hosts, err
}

func (s *BoltStore) UpdateHost(host *types.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getHostTx(tx, host.ID); err != nil {
			return err
		}
		return putHostTx(tx, host)
	})
}

// DeleteHost removes a host. Hosts that still own nodes cannot be removed.
func (s *BoltStore) DeleteHost(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getHostTx(tx, id); err != nil {
			return err
		}
		owned := false
		err := tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			if node.HostID == id {
				owned = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if owned {
			return fmt.Errorf("%w: %s", types.ErrHostNotEmpty, id)
		}
		return tx.Bucket(bucketHosts).Delete([]byte(id))
	})
}

func (s *BoltStore) SetHostStatus(id string, status types.HostStatus, seen time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		host, err := getHostTx(tx, id)
		if err != nil {
			return err
		}
		host.Status = status
		if !seen.IsZero() {
			host.LastSeen = seen
		}
		return putHostTx(tx, host)
	})
}

// --- Capacity ledger ---

// ReserveHostResources commits the full requested delta against the host
// ledger or nothing. The check runs inside the write transaction, so
// concurrent reservations against one host are linearized by the single
// writer.
func (s *BoltStore) ReserveHostResources(id string, req types.ResourceSpec) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		host, err := getHostTx(tx, id)
		if err != nil {
			return err
		}
		if err := inventory.Reserve(host.Resources, req); err != nil {
			return fmt.Errorf("host %s: %w", id, err)
		}
		return putHostTx(tx, host)
	})
}

func (s *BoltStore) ReleaseHostResources(id string, req types.ResourceSpec) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		host, err := getHostTx(tx, id)
		if err != nil {
			return err
		}
		if err := inventory.Release(host.Resources, req); err != nil {
			return fmt.Errorf("host %s: %w", id, err)
		}
		return putHostTx(tx, host)
	})
}

// --- Nodes and placement ---

// PlaceNode commits a placement as one transaction: capacity reservation on
// the node's host, MAC allocation (first placement only; retries keep the
// node's address), the node record, and the planned deployment attempt. Any
// failure rolls the whole placement back.
func (s *BoltStore) PlaceNode(node *types.Node, reserved types.ResourceSpec, dep *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		host, err := getHostTx(tx, node.HostID)
		if err != nil {
			return err
		}
		if err := inventory.Reserve(host.Resources, reserved); err != nil {
			return fmt.Errorf("host %s: %w", node.HostID, err)
		}
		if err := putHostTx(tx, host); err != nil {
			return err
		}

		if node.MACAddress == "" {
			counter := getMACCounterTx(tx)
			addr, next, err := s.prefix.Next(counter)
			if err != nil {
				return err
			}
			if err := putMACCounterTx(tx, next); err != nil {
				return err
			}
			node.MACAddress = addr
		}

		if err := putNodeTx(tx, node); err != nil {
			return err
		}

		dep.Reserved = reserved
		return putDeploymentTx(tx, dep)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node *types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		node, err = getNodeTx(tx, id)
		return err
	})
	return node, err
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) ListNodesByHost(hostID string) ([]*types.Node, error) {
	nodes, err := s.ListNodes()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Node
	for _, node := range nodes {
		if node.HostID == hostID {
			filtered = append(filtered, node)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getNodeTx(tx, node.ID); err != nil {
			return err
		}
		return putNodeTx(tx, node)
	})
}

// DeleteNodeRecord removes a node, returning whatever capacity the node held
// on its host's ledger so the caller can observe the release. An attempt
// still in flight is marked canceled; the attempt record stays behind as a
// tombstone so a late acknowledgement from the agent hits the stale-ack
// guard instead of resurrecting state. Audit log rows are left untouched.
func (s *BoltStore) DeleteNodeRecord(id string, at time.Time) (types.ResourceSpec, error) {
	var released types.ResourceSpec
	err := s.db.Update(func(tx *bolt.Tx) error {
		node, err := getNodeTx(tx, id)
		if err != nil {
			return err
		}

		dep, err := getDeploymentTx(tx, id)
		if err != nil {
			return err
		}
		if dep != nil {
			released = dep.Reserved
			dep.Reserved = types.ResourceSpec{}
			if !dep.State.Terminal() {
				dep.State = types.DeploymentStateCanceled
			}
			dep.UpdatedAt = at
			if err := putDeploymentTx(tx, dep); err != nil {
				return err
			}
		}

		if !specIsZero(released) {
			host, err := getHostTx(tx, node.HostID)
			if err != nil {
				return err
			}
			if err := inventory.Release(host.Resources, released); err != nil {
				return fmt.Errorf("host %s: %w", node.HostID, err)
			}
			if err := putHostTx(tx, host); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
	return released, err
}

// --- Deployment attempts ---

// PlanUpgrade replaces a node's settled attempt with a planned upgrade. The
// node must be running and must not have an attempt in flight. The capacity
// the node holds is carried forward onto the new attempt record so a later
// deletion still releases it; upgrade failures release nothing.
func (s *BoltStore) PlanUpgrade(nodeID string, dep *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		node, err := getNodeTx(tx, nodeID)
		if err != nil {
			return err
		}
		if node.Status != types.NodeStatusRunning {
			return fmt.Errorf("node %s is %s, cannot plan upgrade", nodeID, node.Status)
		}

		prev, err := getDeploymentTx(tx, nodeID)
		if err != nil {
			return err
		}
		if prev != nil && !prev.State.Terminal() {
			return fmt.Errorf("node %s already has a deployment in %s", nodeID, prev.State)
		}
		if prev != nil {
			dep.Reserved = prev.Reserved
		}
		return putDeploymentTx(tx, dep)
	})
}

func (s *BoltStore) GetDeployment(nodeID string) (*types.Deployment, error) {
	var dep *types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		dep, err = getDeploymentTx(tx, nodeID)
		if err != nil {
			return err
		}
		if dep == nil {
			return fmt.Errorf("%w: node %s", types.ErrDeploymentNotFound, nodeID)
		}
		return nil
	})
	return dep, err
}

func (s *BoltStore) ListDeployments() ([]*types.Deployment, error) {
	var deps []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var dep types.Deployment
			if err := json.Unmarshal(v, &dep); err != nil {
				return err
			}
			deps = append(deps, &dep)
			return nil
		})
	})
	return deps, err
}

// MarkDeploymentSent transitions planned -> sent. Re-marking an attempt that
// is already sent with the same command id is a no-op so a re-driven dispatch
// stays idempotent.
func (s *BoltStore) MarkDeploymentSent(nodeID, commandID string, at time.Time) (*types.Deployment, error) {
	var dep *types.Deployment
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		dep, err = getDeploymentTx(tx, nodeID)
		if err != nil {
			return err
		}
		if dep == nil {
			return fmt.Errorf("%w: node %s", types.ErrDeploymentNotFound, nodeID)
		}
		switch dep.State {
		case types.DeploymentStatePlanned:
		case types.DeploymentStateSent:
			if dep.CommandID == commandID {
				return nil
			}
			return fmt.Errorf("deployment for node %s already sent with command %s", nodeID, dep.CommandID)
		default:
			return fmt.Errorf("deployment for node %s cannot be sent from state %s", nodeID, dep.State)
		}
		dep.State = types.DeploymentStateSent
		dep.CommandID = commandID
		dep.SentAt = at
		dep.UpdatedAt = at
		return putDeploymentTx(tx, dep)
	})
	return dep, err
}

// ResendDeployment records one re-send of the same command for an attempt
// still waiting for its acknowledgement
func (s *BoltStore) ResendDeployment(nodeID string, at time.Time) (*types.Deployment, error) {
	var dep *types.Deployment
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		dep, err = getDeploymentTx(tx, nodeID)
		if err != nil {
			return err
		}
		if dep == nil {
			return fmt.Errorf("%w: node %s", types.ErrDeploymentNotFound, nodeID)
		}
		if dep.State != types.DeploymentStateSent {
			return fmt.Errorf("deployment for node %s cannot be resent from state %s", nodeID, dep.State)
		}
		dep.Resends++
		dep.SentAt = at
		dep.UpdatedAt = at
		return putDeploymentTx(tx, dep)
	})
	return dep, err
}

// CompleteDeployment applies a success acknowledgement: conditional
// sent -> succeeded, node marked running, and for upgrade attempts the node
// version advanced. The Reserved snapshot stays on the record because the
// node keeps occupying that capacity until it is deleted. Acks that do not
// match an in-flight attempt fail with ErrStaleAck and change nothing.
func (s *BoltStore) CompleteDeployment(nodeID, hostID string, at time.Time) (*types.Deployment, error) {
	var dep *types.Deployment
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		dep, err = guardAckTx(tx, nodeID, hostID)
		if err != nil {
			return err
		}
		dep.State = types.DeploymentStateSucceeded
		dep.UpdatedAt = at
		if err := putDeploymentTx(tx, dep); err != nil {
			return err
		}

		node, err := getNodeTx(tx, nodeID)
		if err != nil {
			return err
		}
		node.Status = types.NodeStatusRunning
		if dep.Kind == types.DeploymentKindUpgrade {
			node.Version = dep.Version
		}
		node.UpdatedAt = at
		return putNodeTx(tx, node)
	})
	return dep, err
}

// FailDeployment applies a failure acknowledgement (or a timeout escalation
// when timedOut is set): conditional sent -> failed/timed_out and the node
// marked failed. For create attempts the reservation flows back to the host
// ledger exactly once; a failed upgrade keeps its capacity because the node
// record still occupies the host.
func (s *BoltStore) FailDeployment(nodeID, hostID string, timedOut bool, at time.Time) (*types.Deployment, error) {
	var dep *types.Deployment
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		dep, err = guardAckTx(tx, nodeID, hostID)
		if err != nil {
			return err
		}
		var released types.ResourceSpec
		if dep.Kind == types.DeploymentKindCreate {
			released = dep.Reserved
			dep.Reserved = types.ResourceSpec{}
		}
		dep.State = types.DeploymentStateFailed
		if timedOut {
			dep.State = types.DeploymentStateTimedOut
		}
		dep.UpdatedAt = at
		if err := putDeploymentTx(tx, dep); err != nil {
			return err
		}

		node, err := getNodeTx(tx, nodeID)
		if err != nil {
			return err
		}
		node.Status = types.NodeStatusFailed
		node.UpdatedAt = at
		if err := putNodeTx(tx, node); err != nil {
			return err
		}

		if !specIsZero(released) {
			host, err := getHostTx(tx, dep.HostID)
			if err != nil {
				return err
			}
			if err := inventory.Release(host.Resources, released); err != nil {
				return fmt.Errorf("host %s: %w", dep.HostID, err)
			}
			if err := putHostTx(tx, host); err != nil {
				return err
			}
		}
		return nil
	})
	return dep, err
}

// guardAckTx implements the per-key transactional guard for acknowledgement
// handling: the attempt must exist, be bound to the acknowledging host, and
// still be waiting in sent.
func guardAckTx(tx *bolt.Tx, nodeID, hostID string) (*types.Deployment, error) {
	dep, err := getDeploymentTx(tx, nodeID)
	if err != nil {
		return nil, err
	}
	if dep == nil {
		return nil, fmt.Errorf("%w: no deployment for node %s", types.ErrStaleAck, nodeID)
	}
	if dep.HostID != hostID {
		return nil, fmt.Errorf("%w: node %s is deploying on host %s, ack from %s", types.ErrStaleAck, nodeID, dep.HostID, hostID)
	}
	if dep.State != types.DeploymentStateSent {
		return nil, fmt.Errorf("%w: deployment for node %s is %s", types.ErrStaleAck, nodeID, dep.State)
	}
	return dep, nil
}

// --- Audit log ---

// AppendDeploymentLog inserts one audit row. The log is append-only: rows are
// never updated or deleted, and no delete operation exists on this bucket.
func (s *BoltStore) AppendDeploymentLog(entry *types.DeploymentLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDeploymentLogs).Put(logKey(entry), data)
	})
}

// logKey orders rows by timestamp, disambiguated by row id
func logKey(entry *types.DeploymentLog) []byte {
	return []byte(fmt.Sprintf("%020d/%s", entry.CreatedAt.UnixNano(), entry.ID))
}

func (s *BoltStore) ListDeploymentLogs(filter LogFilter) ([]*types.DeploymentLog, error) {
	var entries []*types.DeploymentLog
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDeploymentLogs).Cursor()

		k, v := c.First()
		if !filter.Since.IsZero() {
			k, v = c.Seek([]byte(fmt.Sprintf("%020d", filter.Since.UnixNano())))
		}
		for ; k != nil; k, v = c.Next() {
			var entry types.DeploymentLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if !filter.Until.IsZero() && entry.CreatedAt.After(filter.Until) {
				break
			}
			if filter.HostID != "" && entry.HostID != filter.HostID {
				continue
			}
			if filter.NodeID != "" && entry.NodeID != filter.NodeID {
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	return entries, err
}

// --- Node types ---

// PutNodeType creates or updates a node type. Once live nodes reference the
// type, its requirement and existing properties are frozen; the only change
// accepted is adding new optional properties.
func (s *BoltStore) PutNodeType(nt *types.NodeType) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := nodeTypeKey(nt.ChainID, nt.Key)
		existingData := tx.Bucket(bucketNodeTypes).Get([]byte(key))
		if existingData != nil {
			var existing types.NodeType
			if err := json.Unmarshal(existingData, &existing); err != nil {
				return err
			}
			inUse, err := nodeTypeInUseTx(tx, nt.ChainID, nt.Key)
			if err != nil {
				return err
			}
			if inUse {
				if err := validateTypeChange(&existing, nt); err != nil {
					return err
				}
			}
			nt.CreatedAt = existing.CreatedAt
		}
		data, err := json.Marshal(nt)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodeTypes).Put([]byte(key), data)
	})
}

// validateTypeChange enforces node type immutability for referenced types:
// the requirement and every existing property must survive unchanged, and any
// new property must be optional.
func validateTypeChange(existing, updated *types.NodeType) error {
	if existing.Requirement != updated.Requirement {
		return fmt.Errorf("%w: requirement of %s/%s cannot change", types.ErrNodeTypeInUse, existing.ChainID, existing.Key)
	}
	props := make(map[string]types.NodeTypeProperty, len(updated.Properties))
	for _, p := range updated.Properties {
		props[p.Name] = p
	}
	for _, old := range existing.Properties {
		p, ok := props[old.Name]
		if !ok || p != old {
			return fmt.Errorf("%w: property %q of %s/%s cannot change", types.ErrNodeTypeInUse, old.Name, existing.ChainID, existing.Key)
		}
		delete(props, old.Name)
	}
	for name, p := range props {
		if p.Required {
			return fmt.Errorf("%w: new property %q of %s/%s must be optional", types.ErrNodeTypeInUse, name, existing.ChainID, existing.Key)
		}
	}
	return nil
}

func (s *BoltStore) GetNodeType(chainID, key string) (*types.NodeType, error) {
	var nt *types.NodeType
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		nt, err = getNodeTypeTx(tx, chainID, key)
		return err
	})
	return nt, err
}

func (s *BoltStore) ListNodeTypes() ([]*types.NodeType, error) {
	var nts []*types.NodeType
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodeTypes).ForEach(func(k, v []byte) error {
			var nt types.NodeType
			if err := json.Unmarshal(v, &nt); err != nil {
				return err
			}
			nts = append(nts, &nt)
			return nil
		})
	})
	return nts, err
}

func (s *BoltStore) DeleteNodeType(chainID, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getNodeTypeTx(tx, chainID, key); err != nil {
			return err
		}
		inUse, err := nodeTypeInUseTx(tx, chainID, key)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: %s/%s", types.ErrNodeTypeInUse, chainID, key)
		}
		return tx.Bucket(bucketNodeTypes).Delete([]byte(nodeTypeKey(chainID, key)))
	})
}

// --- Version catalog ---

func chainVersionKey(cv *types.ChainVersion) []byte {
	return []byte(cv.ChainID + "/" + cv.NodeType + "/" + cv.Version)
}

func (s *BoltStore) AddChainVersion(cv *types.ChainVersion) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cv)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketChainVersions).Put(chainVersionKey(cv), data)
	})
}

func (s *BoltStore) ListChainVersions(chainID, nodeType string) ([]*types.ChainVersion, error) {
	prefix := []byte(chainID + "/" + nodeType + "/")
	var cvs []*types.ChainVersion
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChainVersions).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var cv types.ChainVersion
			if err := json.Unmarshal(v, &cv); err != nil {
				return err
			}
			cvs = append(cvs, &cv)
		}
		return nil
	})
	return cvs, err
}

// --- Groups ---

func (s *BoltStore) PutGroup(group *types.Group) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(group)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketGroups).Put([]byte(group.ID), data)
	})
}

func (s *BoltStore) GetGroup(id string) (*types.Group, error) {
	var group types.Group
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketGroups).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrGroupNotFound, id)
		}
		return json.Unmarshal(data, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *BoltStore) ListGroups() ([]*types.Group, error) {
	var groups []*types.Group
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			var group types.Group
			if err := json.Unmarshal(v, &group); err != nil {
				return err
			}
			groups = append(groups, &group)
			return nil
		})
	})
	return groups, err
}

func (s *BoltStore) DeleteGroup(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketGroups).Get([]byte(id)); data == nil {
			return fmt.Errorf("%w: %s", types.ErrGroupNotFound, id)
		}
		return tx.Bucket(bucketGroups).Delete([]byte(id))
	})
}

// AddGroupMember appends a membership entry after validating that the
// referenced host or node exists. Duplicate entries are ignored.
func (s *BoltStore) AddGroupMember(groupID string, member types.GroupMember) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketGroups).Get([]byte(groupID))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrGroupNotFound, groupID)
		}
		var group types.Group
		if err := json.Unmarshal(data, &group); err != nil {
			return err
		}

		switch m := member.(type) {
		case types.HostMember:
			if _, err := getHostTx(tx, m.HostID); err != nil {
				return err
			}
		case types.NodeMember:
			if _, err := getNodeTx(tx, m.NodeID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown group member type %T", member)
		}

		for _, existing := range group.Members {
			if existing.Kind() == member.Kind() && existing.MemberID() == member.MemberID() {
				return nil
			}
		}
		group.Members = append(group.Members, member)

		updated, err := json.Marshal(&group)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketGroups).Put([]byte(groupID), updated)
	})
}

func (s *BoltStore) RemoveGroupMember(groupID string, member types.GroupMember) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketGroups).Get([]byte(groupID))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrGroupNotFound, groupID)
		}
		var group types.Group
		if err := json.Unmarshal(data, &group); err != nil {
			return err
		}

		kept := group.Members[:0]
		for _, existing := range group.Members {
			if existing.Kind() == member.Kind() && existing.MemberID() == member.MemberID() {
				continue
			}
			kept = append(kept, existing)
		}
		group.Members = kept

		updated, err := json.Marshal(&group)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketGroups).Put([]byte(groupID), updated)
	})
}

// --- Snapshot/restore support ---

// RestoreNode writes a node record verbatim. Snapshot restore only; runtime
// paths go through PlaceNode and UpdateNode.
func (s *BoltStore) RestoreNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putNodeTx(tx, node)
	})
}

// RestoreDeployment writes an attempt record verbatim, bypassing the state
// transition guards. Snapshot restore only.
func (s *BoltStore) RestoreDeployment(dep *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putDeploymentTx(tx, dep)
	})
}

// --- MAC counter ---

func getMACCounterTx(tx *bolt.Tx) uint64 {
	data := tx.Bucket(bucketMeta).Get(keyMACCounter)
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func putMACCounterTx(tx *bolt.Tx, counter uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)
	return tx.Bucket(bucketMeta).Put(keyMACCounter, buf)
}

func (s *BoltStore) GetMACCounter() (uint64, error) {
	var counter uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		counter = getMACCounterTx(tx)
		return nil
	})
	return counter, err
}

func (s *BoltStore) SetMACCounter(counter uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putMACCounterTx(tx, counter)
	})
}

// MACPrefix returns the vendor prefix addresses are drawn under
func (s *BoltStore) MACPrefix() macpool.Prefix {
	return s.prefix
}
