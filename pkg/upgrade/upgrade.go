package upgrade

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rookeryhq/rookery/pkg/deploy"
	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/metrics"
	"github.com/rookeryhq/rookery/pkg/types"
)

// DefaultScanInterval is the cadence of the upgrade scan loop
const DefaultScanInterval = 5 * time.Minute

// CompareVersions orders two version strings under the catalog's contract:
// split on ".", compare segment by segment as text, longer sequence wins on
// an equal prefix. Segments compare as text, not numbers, so "9" orders
// above "10". Published catalogs rely on this ordering; do not replace it
// with a numeric comparison.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) > len(bs):
		return 1
	case len(as) < len(bs):
		return -1
	}
	return 0
}

// Latest returns the highest catalog entry under CompareVersions, or nil
// for an empty catalog
func Latest(versions []*types.ChainVersion) *types.ChainVersion {
	var latest *types.ChainVersion
	for _, v := range versions {
		if latest == nil || CompareVersions(v.Version, latest.Version) > 0 {
			latest = v
		}
	}
	return latest
}

// withinPolicy reports whether a node's upgrade policy admits moving from
// one version to another. The not_major policy requires an unchanged first
// segment; every other policy admits any newer version.
func withinPolicy(policy types.UpgradePolicy, from, to string) bool {
	if policy != types.UpgradePolicyNotMajor {
		return true
	}
	return firstSegment(from) == firstSegment(to)
}

func firstSegment(version string) string {
	if i := strings.Index(version, "."); i >= 0 {
		return version[:i]
	}
	return version
}

// Config tunes the upgrade scan
type Config struct {
	Interval time.Duration
	GroupID  string // optional: only consider nodes in this group
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultScanInterval
	}
	return c
}

// Selector periodically scans for nodes that opted into automatic upgrades
// and re-enters them into the deployment tracker when the catalog holds a
// newer version their policy admits.
type Selector struct {
	manager *manager.Manager
	tracker *deploy.Tracker
	cfg     Config
	stopCh  chan struct{}
}

// NewSelector creates an upgrade selector
func NewSelector(mgr *manager.Manager, tracker *deploy.Tracker, cfg Config) *Selector {
	return &Selector{
		manager: mgr,
		tracker: tracker,
		cfg:     cfg.withDefaults(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the scan loop
func (s *Selector) Start() {
	go s.run()
}

// Stop stops the scan loop
func (s *Selector) Stop() {
	close(s.stopCh)
}

// run scans on a ticker, on the leader only
func (s *Selector) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.manager.IsLeader() {
				continue
			}
			if _, err := s.Scan(); err != nil {
				log.Logger.Error().
					Str("component", "upgrade").
					Err(err).
					Msg("upgrade scan failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Scan performs one pass over the fleet and returns the ids of the nodes it
// scheduled upgrades for. A node is eligible when it opted in, is running,
// has no attempt in flight, and the catalog's latest version for its
// (chain, node type) is newer under its policy.
func (s *Selector) Scan() ([]string, error) {
	nodes, err := s.manager.ListNodes()
	if err != nil {
		return nil, err
	}

	var scoped map[string]bool
	if s.cfg.GroupID != "" {
		group, err := s.manager.GetGroup(s.cfg.GroupID)
		if err != nil {
			return nil, err
		}
		scoped = make(map[string]bool)
		for _, m := range group.Members {
			if m.Kind() == types.GroupMemberNodeKind {
				scoped[m.MemberID()] = true
			}
		}
	}

	// Latest catalog entry per (chain, node type), resolved once per scan.
	catalog := make(map[string]*types.ChainVersion)

	var scheduled []string
	for _, node := range nodes {
		if !node.SelfUpgrade.Enabled || node.Status != types.NodeStatusRunning {
			continue
		}
		if scoped != nil && !scoped[node.ID] {
			continue
		}
		if dep, err := s.manager.GetDeployment(node.ID); err == nil && dep != nil && !dep.State.Terminal() {
			continue
		}

		key := node.ChainID + "/" + node.NodeType
		latest, ok := catalog[key]
		if !ok {
			versions, err := s.manager.ListChainVersions(node.ChainID, node.NodeType)
			if err != nil {
				log.Logger.Warn().
					Str("component", "upgrade").
					Str("chain_id", node.ChainID).
					Str("node_type", node.NodeType).
					Err(err).
					Msg("catalog lookup failed")
				continue
			}
			latest = Latest(versions)
			catalog[key] = latest
		}
		if latest == nil {
			continue
		}
		if CompareVersions(latest.Version, node.Version) <= 0 {
			continue
		}
		if !withinPolicy(node.SelfUpgrade.Policy, node.Version, latest.Version) {
			continue
		}

		if _, err := s.tracker.Upgrade(node.ID, latest.Version); err != nil {
			log.Logger.Warn().
				Str("component", "upgrade").
				Str("node_id", node.ID).
				Str("version", latest.Version).
				Err(err).
				Msg("scheduling upgrade failed")
			continue
		}
		metrics.UpgradesScheduledTotal.Inc()

		s.manager.PublishEvent(&events.Event{
			ID:        uuid.New().String(),
			Type:      events.EventUpgradeScheduled,
			Timestamp: time.Now(),
			HostID:    node.HostID,
			NodeID:    node.ID,
			Message:   fmt.Sprintf("scheduled upgrade from %s to %s", node.Version, latest.Version),
		})
		log.Logger.Info().
			Str("component", "upgrade").
			Str("node_id", node.ID).
			Str("from", node.Version).
			Str("to", latest.Version).
			Msg("scheduled upgrade")
		scheduled = append(scheduled, node.ID)
	}
	return scheduled, nil
}
