/*
Package types defines the core data structures used throughout Rookery.

This package contains the domain model of the control plane: hosts and their
capacity ledgers, nodes and their placement/upgrade policies, node type
catalogs, deployment attempts and their append-only audit log, groups, and the
wire envelopes exchanged with host agents. All other packages build on these
types for state management and protocol logic.

# Core Types

Fleet inventory:
  - Host: a machine with finite cpu/ram/disk capacity and an allocation ledger
  - HostResources: total capacity plus currently allocated amounts; the
    invariant allocated <= total holds per dimension at all times
  - ResourceSpec: a plain resource quantity (requirements, reservations)

Workloads:
  - Node: a blockchain workload instance assigned to exactly one host once
    placed, carrying a unique MAC address from a bounded 24-bit space
  - NodeType: named workload category scoped to a chain, with hardware
    requirements and typed configuration properties
  - ChainVersion: published version catalog entries per (chain, node type)

Deployment protocol:
  - Deployment: the active attempt for a node with its conditional state
    machine (planned, sent, succeeded, failed, timed_out, canceled)
  - DeploymentLog: append-only audit rows (create_sent, success_received,
    failure_received) that outlive the entities they describe
  - CommandEnvelope / AckEnvelope / StatusEnvelope: the per-host pub/sub wire
    format

Grouping:
  - Group: an org-scoped collection of hosts and nodes
  - GroupMember: a closed polymorphic reference (HostMember | NodeMember),
    giving consumers exhaustive type switches instead of untyped id+tag pairs

# Error Taxonomy

Sentinel errors (ErrInsufficientCapacity, ErrAddressSpaceExhausted,
ErrDeploymentTimeout, ErrDeploymentFailed, ErrStaleAck, plus lookup errors)
are matched with errors.Is; producing sites wrap them with context.
*/
package types
