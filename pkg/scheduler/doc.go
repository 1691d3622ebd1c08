/*
Package scheduler selects hosts for blockchain node placements.

The scheduler is invoked once per placement request. It reads the fleet
state from the manager, filters hosts that cannot take the node, ranks the
survivors according to the request's scheduler policy, and commits the
placement through the replicated log. It holds no state of its own, so a
fresh scheduler after a restart behaves exactly like the one before it.

# Pipeline

Every call to Place walks the same four stages:

	┌────────────────────────────────────────────────────────────┐
	│  1. Resolve                                                │
	│     Look up the node type and its resource requirement     │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  2. Filter                                                 │
	│     Drop offline hosts, hosts outside the org or group     │
	│     scope, explicitly excluded hosts, and hosts without    │
	│     headroom for the requirement                           │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  3. Rank                                                   │
	│     Order candidates by similarity affinity, then by free  │
	│     capacity per the resource bias, then by host ID        │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  4. Commit                                                 │
	│     Reserve capacity and write the node through raft;      │
	│     fall through to the next candidate if the reservation  │
	│     loses a race                                           │
	└────────────────────────────────────────────────────────────┘

# Filtering

A host survives filtering only if all of the following hold:

  - its status is not offline (hosts that have never reported remain
    eligible, only an explicit offline report disqualifies)
  - it belongs to the requested org, when an org scope is set
  - it is a member of the requested group, when a group scope is set
  - it is not on the request's exclusion list
  - its free capacity covers the node type's requirement in every
    dimension

An empty candidate set after filtering fails the placement immediately
with types.ErrInsufficientCapacity.

# Ranking

Ranking is a stable sort with three tiers. Similarity affinity is the
primary key: with SimilarityCluster, hosts already running nodes of the
same (chain, node type) pair sort first; with SimilaritySpread they sort
last. Free capacity is the secondary key, compared dimension by dimension
(cpu, then ram, then disk) in the direction of the resource bias.
BiasMostResources is the default and spreads load onto the emptiest
hosts; BiasLeastResources packs nodes onto the fullest feasible host.
Host ID breaks any remaining ties, so identical inputs always produce
identical placements.

# Commit Races

Between ranking and commit another placement may consume the capacity the
scheduler just observed. The reservation inside the state machine is the
authority: if the commit fails with types.ErrInsufficientCapacity the
scheduler moves to the next ranked candidate and tries again, up to a
small bound. Any other commit error aborts the placement.

# Usage

	sched := scheduler.NewScheduler(mgr)

	host, err := sched.Place(node, dep, scheduler.Scope{
		OrgID:   "org-1",
		GroupID: "eu-west",
	})
	if err != nil {
		// no feasible host, or every candidate lost its race
	}

The returned host is the one the node was committed to. The node record,
the deployment attempt, and the host's ledger are updated atomically
before Place returns.
*/
package scheduler
