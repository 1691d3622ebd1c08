package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rookeryhq/rookery/pkg/inventory"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/types"
)

// maxPlacementAttempts bounds the fallback chain when a chosen host is
// snatched by a concurrent placement between ranking and commit.
const maxPlacementAttempts = 2

// Scheduler picks hosts for new nodes based on capacity, affinity, and
// resource bias
type Scheduler struct {
	manager *manager.Manager
}

// NewScheduler creates a new scheduler
func NewScheduler(mgr *manager.Manager) *Scheduler {
	return &Scheduler{manager: mgr}
}

// Scope narrows the candidate host set for one placement
type Scope struct {
	OrgID   string
	GroupID string
	Exclude []string // host ids already tried; skipped outright
}

// Place selects a host for the node and commits the placement. Candidates
// are ranked read-only, then committed best-first: if the reservation loses
// a race to a concurrent placement the next candidate is tried, up to
// maxPlacementAttempts. On success the node's HostID and MAC address are
// filled in and its planned deployment attempt is persisted.
func (s *Scheduler) Place(node *types.Node, dep *types.Deployment, scope Scope) (*types.Host, error) {
	nt, err := s.manager.GetNodeType(node.ChainID, node.NodeType)
	if err != nil {
		return nil, err
	}
	requirement := nt.Requirement

	hosts, err := s.manager.ListHosts()
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %v", err)
	}

	nodes, err := s.manager.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %v", err)
	}

	var groupHosts map[string]bool
	if scope.GroupID != "" {
		group, err := s.manager.GetGroup(scope.GroupID)
		if err != nil {
			return nil, err
		}
		groupHosts = hostMembers(group)
	}

	candidates := filterCandidates(hosts, requirement, scope, groupHosts)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no feasible host for %s/%s", types.ErrInsufficientCapacity, node.ChainID, node.NodeType)
	}

	ranked := rankHosts(candidates, nodesByHost(nodes), node.ChainID, node.NodeType, node.Scheduler)

	attempts := maxPlacementAttempts
	if len(ranked) < attempts {
		attempts = len(ranked)
	}

	var lastErr error
	for _, host := range ranked[:attempts] {
		node.HostID = host.ID
		dep.HostID = host.ID

		err := s.manager.PlaceNode(node, requirement, dep)
		if err == nil {
			log.Logger.Info().
				Str("component", "scheduler").
				Str("node_id", node.ID).
				Str("host_id", host.ID).
				Str("chain_id", node.ChainID).
				Str("node_type", node.NodeType).
				Msg("placed node")
			return host, nil
		}
		if !errors.Is(err, types.ErrInsufficientCapacity) {
			return nil, err
		}
		// Lost the race for this host's capacity; fall through to the
		// next candidate.
		log.Logger.Debug().
			Str("component", "scheduler").
			Str("node_id", node.ID).
			Str("host_id", host.ID).
			Msg("candidate no longer fits, trying next")
		lastErr = err
	}

	return nil, lastErr
}

// hostMembers collects the host ids of a group's host members
func hostMembers(group *types.Group) map[string]bool {
	members := make(map[string]bool)
	for _, m := range group.Members {
		if m.Kind() == types.GroupMemberHostKind {
			members[m.MemberID()] = true
		}
	}
	return members
}

// nodesByHost indexes nodes by the host that owns them
func nodesByHost(nodes []*types.Node) map[string][]*types.Node {
	index := make(map[string][]*types.Node)
	for _, node := range nodes {
		index[node.HostID] = append(index[node.HostID], node)
	}
	return index
}

// filterCandidates drops hosts that cannot take the requirement: offline
// hosts, hosts outside the org or group scope, explicitly excluded hosts,
// and hosts without enough headroom on every dimension. Hosts that have
// never reported a status stay eligible.
func filterCandidates(hosts []*types.Host, requirement types.ResourceSpec, scope Scope, groupHosts map[string]bool) []*types.Host {
	excluded := make(map[string]bool, len(scope.Exclude))
	for _, id := range scope.Exclude {
		excluded[id] = true
	}

	var candidates []*types.Host
	for _, host := range hosts {
		if host.Status == types.HostStatusOffline {
			continue
		}
		if scope.OrgID != "" && host.OrgID != scope.OrgID {
			continue
		}
		if groupHosts != nil && !groupHosts[host.ID] {
			continue
		}
		if excluded[host.ID] {
			continue
		}
		if host.Resources == nil || !inventory.Fits(host.Resources, requirement) {
			continue
		}
		candidates = append(candidates, host)
	}
	return candidates
}

// similarity counts the host's nodes running the same chain and node type
func similarity(nodes []*types.Node, chainID, nodeType string) int {
	count := 0
	for _, node := range nodes {
		if node.ChainID == chainID && node.NodeType == nodeType {
			count++
		}
	}
	return count
}

// compareHeadroom orders two hosts' free capacity dimension by dimension:
// cpu first, then ram, then disk. Returns -1, 0, or 1.
func compareHeadroom(a, b types.ResourceSpec) int {
	switch {
	case a.CPUCores != b.CPUCores:
		if a.CPUCores < b.CPUCores {
			return -1
		}
		return 1
	case a.RAMMB != b.RAMMB:
		if a.RAMMB < b.RAMMB {
			return -1
		}
		return 1
	case a.DiskMB != b.DiskMB:
		if a.DiskMB < b.DiskMB {
			return -1
		}
		return 1
	}
	return 0
}

// rankHosts orders candidates best-first. Affinity is the primary key when a
// similarity preference is set: cluster prefers hosts already running nodes
// of the same kind, spread prefers hosts with fewer. Free capacity is the
// secondary key, biased most-first unless the policy asks for least. Host id
// breaks remaining ties so the ranking is stable across permutations of the
// input.
func rankHosts(candidates []*types.Host, byHost map[string][]*types.Node, chainID, nodeType string, policy *types.SchedulerPolicy) []*types.Host {
	bias := types.BiasMostResources
	affinity := types.SimilarityNone
	if policy != nil {
		affinity = policy.Similarity
		if policy.ResourceBias != "" {
			bias = policy.ResourceBias
		}
	}

	ranked := make([]*types.Host, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if affinity != types.SimilarityNone {
			si := similarity(byHost[ranked[i].ID], chainID, nodeType)
			sj := similarity(byHost[ranked[j].ID], chainID, nodeType)
			if si != sj {
				if affinity == types.SimilarityCluster {
					return si > sj
				}
				return si < sj
			}
		}

		cmp := compareHeadroom(inventory.Available(ranked[i].Resources), inventory.Available(ranked[j].Resources))
		if cmp != 0 {
			if bias == types.BiasLeastResources {
				return cmp < 0
			}
			return cmp > 0
		}

		return ranked[i].ID < ranked[j].ID
	})

	return ranked
}
