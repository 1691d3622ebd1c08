package metrics

import (
	"time"

	"github.com/rookeryhq/rookery/pkg/manager"
)

// Collector periodically snapshots fleet state from the manager into the
// exported gauges. Counters and histograms are driven at their call sites;
// the collector only covers state that has to be polled.
type Collector struct {
	manager *manager.Manager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectHostMetrics()
	c.collectNodeMetrics()
	c.collectDeploymentMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectHostMetrics() {
	hosts, err := c.manager.ListHosts()
	if err != nil {
		return
	}

	statusCounts := make(map[string]int)
	var totalCPU, totalRAM, totalDisk int64
	var usedCPU, usedRAM, usedDisk int64

	for _, host := range hosts {
		statusCounts[string(host.Status)]++
		if host.Resources == nil {
			continue
		}
		totalCPU += host.Resources.CPUCores
		totalRAM += host.Resources.RAMMB
		totalDisk += host.Resources.DiskMB
		usedCPU += host.Resources.CPUAllocated
		usedRAM += host.Resources.RAMAllocated
		usedDisk += host.Resources.DiskAllocated
	}

	// Reset so hosts leaving a status zero it out.
	HostsTotal.Reset()
	for status, count := range statusCounts {
		HostsTotal.WithLabelValues(status).Set(float64(count))
	}

	CapacityTotal.WithLabelValues("cpu_cores").Set(float64(totalCPU))
	CapacityTotal.WithLabelValues("ram_mb").Set(float64(totalRAM))
	CapacityTotal.WithLabelValues("disk_mb").Set(float64(totalDisk))
	CapacityAllocated.WithLabelValues("cpu_cores").Set(float64(usedCPU))
	CapacityAllocated.WithLabelValues("ram_mb").Set(float64(usedRAM))
	CapacityAllocated.WithLabelValues("disk_mb").Set(float64(usedDisk))
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.manager.ListNodes()
	if err != nil {
		return
	}

	nodeCounts := make(map[string]map[string]int)
	macs := 0

	for _, node := range nodes {
		chain := node.ChainID
		status := string(node.Status)
		if nodeCounts[chain] == nil {
			nodeCounts[chain] = make(map[string]int)
		}
		nodeCounts[chain][status]++
		if node.MACAddress != "" {
			macs++
		}
	}

	NodesTotal.Reset()
	for chain, statuses := range nodeCounts {
		for status, count := range statuses {
			NodesTotal.WithLabelValues(chain, status).Set(float64(count))
		}
	}
	MACAddressesInUse.Set(float64(macs))
}

func (c *Collector) collectDeploymentMetrics() {
	deployments, err := c.manager.ListDeployments()
	if err != nil {
		return
	}

	stateCounts := make(map[[2]string]int)
	for _, dep := range deployments {
		stateCounts[[2]string{string(dep.Kind), string(dep.State)}]++
	}

	DeploymentsTotal.Reset()
	for key, count := range stateCounts {
		DeploymentsTotal.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats != nil {
		if lastIndex, ok := stats["last_log_index"].(uint64); ok {
			RaftLogIndex.Set(float64(lastIndex))
		}
		if appliedIndex, ok := stats["applied_index"].(uint64); ok {
			RaftAppliedIndex.Set(float64(appliedIndex))
		}
	}
	if servers, err := c.manager.GetClusterServers(); err == nil {
		RaftPeers.Set(float64(len(servers)))
	}
}
