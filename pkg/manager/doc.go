/*
Package manager provides the replicated heart of the Rookery control plane.

The manager package embeds a Raft consensus group whose finite state machine
applies fleet commands onto the BoltDB store. Every write to fleet state --
host registration, node placement, deployment transitions, audit rows, node
types, version catalogs, groups -- is a command in the replicated log, so any
number of control-plane instances observe the same sequence of state changes
and the apply loop is the single linearization point for the capacity ledger.

# Architecture

	┌──────────────────── CONTROL PLANE NODE ──────────────────┐
	│                                                          │
	│  Components (scheduler, deploy tracker, upgrade          │
	│  selector, MQTT listeners)                               │
	│        │ typed write methods / read methods              │
	│        ▼                                                 │
	│  ┌────────────────────────────────────────────┐          │
	│  │               Manager                      │          │
	│  │  - Apply(Command) → raft.Apply             │          │
	│  │  - reads served from the local store       │          │
	│  │  - leadership, membership, stats           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ committed entries                  │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             RookeryFSM                     │          │
	│  │  - decodes Command{op, data}               │          │
	│  │  - applies onto storage.Store              │          │
	│  │  - Snapshot/Restore for log compaction     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     ▼                                    │
	│               BoltDB store                               │
	└──────────────────────────────────────────────────────────┘

# Command Flow

A write runs leader-side: the typed method marshals its payload, wraps it in
Command{Op, Data}, and submits it through raft.Apply. Once a quorum commits
the entry, every replica's FSM decodes it and executes the matching store
method. The response of the store method travels back through the apply
future, so callers see exactly the error the transaction produced
(ErrInsufficientCapacity, ErrStaleAck, and friends).

Timestamps ride inside command payloads. The FSM never calls time.Now, which
keeps replicas byte-identical when they replay the log.

# Determinism and Guards

The FSM is the only writer of the store in a running control plane. The
correctness-critical semantics live in the store transactions the FSM
invokes:

  - place_node reserves capacity, assigns the MAC address, and persists the
    node and its planned attempt atomically
  - complete_deployment and fail_deployment are conditional on the attempt
    still being in sent; anything else returns ErrStaleAck
  - delete_node cancels an in-flight attempt and releases held capacity

Duplicate deliveries therefore settle exactly once no matter how many
replicas replay them or in what order acknowledgements arrive from the field.

# Cluster Membership

Bootstrap starts a fresh single-node cluster. Additional instances call Join
to start as followers and are added by the leader with AddVoter. Raft
timeouts are tuned below the Hashicorp defaults for LAN deployments so a
leader failover settles within a few seconds.

# Usage

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:    "cp-1",
		BindAddr:  "10.0.0.5:7000",
		DataDir:   "/var/lib/rookery",
		MACPrefix: prefix,
	})
	if err != nil {
		return err
	}
	if err := mgr.Bootstrap(); err != nil {
		return err
	}
	defer mgr.Shutdown()

	err = mgr.PlaceNode(node, requirement, attempt)
*/
package manager
