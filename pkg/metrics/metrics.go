package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rookery_hosts_total",
			Help: "Total number of hosts by connection status",
		},
		[]string{"status"},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rookery_nodes_total",
			Help: "Total number of nodes by chain and status",
		},
		[]string{"chain_id", "status"},
	)

	DeploymentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rookery_deployments_total",
			Help: "Active deployment attempts by kind and state",
		},
		[]string{"kind", "state"},
	)

	CapacityTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rookery_capacity_total",
			Help: "Fleet-wide host capacity by resource dimension",
		},
		[]string{"resource"},
	)

	CapacityAllocated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rookery_capacity_allocated",
			Help: "Fleet-wide reserved capacity by resource dimension",
		},
		[]string{"resource"},
	)

	MACAddressesInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rookery_mac_addresses_in_use",
			Help: "MAC addresses currently assigned to nodes",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rookery_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rookery_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rookery_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rookery_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// Placement metrics
	PlacementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rookery_placements_total",
			Help: "Total number of successful node placements",
		},
	)

	PlacementLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rookery_placement_latency_seconds",
			Help:    "Time taken to plan and commit a placement in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Deployment lifecycle metrics
	DeploymentRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rookery_deployment_retries_total",
			Help: "Total number of deployment attempts retried after a failure",
		},
	)

	DeploymentTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rookery_deployment_timeouts_total",
			Help: "Total number of deployment attempts escalated to timed_out",
		},
	)

	UpgradesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rookery_upgrades_scheduled_total",
			Help: "Total number of automatic upgrades scheduled",
		},
	)

	// Liveness sweep metrics
	LivenessSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rookery_liveness_sweep_duration_seconds",
			Help:    "Host liveness sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LivenessSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rookery_liveness_sweeps_total",
			Help: "Total number of host liveness sweeps",
		},
	)
)

func init() {
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(CapacityTotal)
	prometheus.MustRegister(CapacityAllocated)
	prometheus.MustRegister(MACAddressesInUse)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(PlacementsTotal)
	prometheus.MustRegister(PlacementLatency)
	prometheus.MustRegister(DeploymentRetriesTotal)
	prometheus.MustRegister(DeploymentTimeoutsTotal)
	prometheus.MustRegister(UpgradesScheduledTotal)
	prometheus.MustRegister(LivenessSweepDuration)
	prometheus.MustRegister(LivenessSweepsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
