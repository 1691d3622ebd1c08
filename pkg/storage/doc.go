/*
Package storage provides BoltDB-backed state persistence for Rookery's fleet data.

The storage package implements the Store interface using BoltDB as the underlying
database, providing ACID transactions for control-plane state including hosts,
nodes, node types, deployment attempts, the deployment audit log, chain version
catalogs, and groups. All data is serialized as JSON and stored in separate
buckets for efficient querying and isolation.

# Architecture

Rookery uses BoltDB (bbolt) for embedded, transactional storage with zero
external dependencies:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            BoltStore                       │           │
	│  │  - File: <dataDir>/rookery.db              │           │
	│  │  - Format: B+tree with MVCC                │           │
	│  │  - Transactions: ACID with fsync           │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │              Bucket Structure              │           │
	│  │  ┌───────────────────────────────────┐     │           │
	│  │  │ hosts            (Host ID)        │     │           │
	│  │  │ nodes            (Node ID)        │     │           │
	│  │  │ node_types       (chain/key)      │     │           │
	│  │  │ chain_versions   (chain/type/ver) │     │           │
	│  │  │ groups           (Group ID)       │     │           │
	│  │  │ deployments      (Node ID)        │     │           │
	│  │  │ deployment_logs  (nanos/row id)   │     │           │
	│  │  │ meta             (mac_counter)    │     │           │
	│  │  └───────────────────────────────────┘     │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │        Transaction Management              │           │
	│  │  - Read: db.View() - Concurrent reads      │           │
	│  │  - Write: db.Update() - Serialized writes  │           │
	│  │  - Rollback: Automatic on error            │           │
	│  │  - Commit: Automatic on success + fsync    │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Core Components

BoltStore:
  - Implements Store interface using BoltDB
  - Single database file per control-plane node
  - Automatic bucket creation on initialization
  - Thread-safe via BoltDB's transaction model
  - Carries the fleet's MAC vendor prefix for address allocation

Buckets:
  - hosts: Host registrations with their capacity ledgers
  - nodes: Blockchain node records, including MAC address and placement
  - node_types: Per-chain node type definitions and resource requirements
  - chain_versions: Published versions per (chain, node type)
  - groups: Named collections of host and node members
  - deployments: The active create/upgrade attempt per node (keyed by node ID)
  - deployment_logs: Append-only audit rows, keyed by timestamp + row ID
  - meta: Bookkeeping such as the monotonic MAC counter

# Transactional Semantics

Every Store method is a single BoltDB transaction. The methods that matter for
correctness bundle several mutations into one commit:

PlaceNode:
  - Reserve capacity on the chosen host's ledger
  - Allocate the next MAC address (first placement only)
  - Persist the node record
  - Persist the planned deployment attempt
  - Any failure rolls back every step; partial placements cannot be observed

CompleteDeployment / FailDeployment:
  - Conditional transition from sent; anything else fails with ErrStaleAck
  - Failure of a create attempt releases its reservation in the same commit
    and zeroes the Reserved snapshot, so no later path can release the same
    capacity again
  - Success keeps Reserved on the record: the node occupies that capacity
    until it is deleted

DeleteNodeRecord:
  - Releases whatever capacity the node still holds (the Reserved snapshot
    on its attempt record) atomically with the node deletion
  - An in-flight attempt becomes a canceled tombstone so late agent
    acknowledgements are rejected as stale
  - Audit rows survive node deletion

# Append-Only Audit Log

The deployment_logs bucket is insert-only. Keys are built from the row's
timestamp (zero-padded nanoseconds) followed by the row ID, which makes a
cursor walk return rows in chronological order and lets time-range queries
seek directly to their starting point. No update or delete operation exists
for this bucket.

# Write Path

In a running control plane the raft FSM apply loop is the only writer, so
write transactions never contend with each other. Reads may be served from
any View transaction concurrently.

# Usage

	store, err := storage.NewBoltStore("/var/lib/rookery", prefix)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.PlaceNode(node, requirement, attempt)
*/
package storage
