/*
Package metrics provides Prometheus metrics, health checking, and the
observability HTTP endpoints for the control plane.

All metrics register against the default Prometheus registry at package init
and are exposed in text exposition format on /metrics. Fleet state gauges are
polled from the manager by the Collector; counters and histograms are driven
directly at their call sites.

# Metric Categories

	Fleet:      rookery_hosts_total{status}
	            rookery_nodes_total{chain_id,status}
	            rookery_deployments_total{kind,state}
	            rookery_capacity_total{resource}
	            rookery_capacity_allocated{resource}
	            rookery_mac_addresses_in_use

	Raft:       rookery_raft_is_leader
	            rookery_raft_peers_total
	            rookery_raft_log_index
	            rookery_raft_applied_index

	Placement:  rookery_placements_total
	            rookery_placement_latency_seconds

	Lifecycle:  rookery_deployment_retries_total
	            rookery_deployment_timeouts_total
	            rookery_upgrades_scheduled_total

	Liveness:   rookery_liveness_sweep_duration_seconds
	            rookery_liveness_sweeps_total

Capacity gauges sum over every registered host; the allocated series tracks
the reservation ledger, so allocated never exceeds total on any dimension.

# Collection

The Collector snapshots manager state every 15 seconds, collecting once
immediately on Start so gauges are live before the first tick. Gauge vectors
are reset before each snapshot; a status or chain that empties out reads zero
rather than holding its last value.

# Health

A process-wide component registry backs /healthz: components report in with
RegisterComponent/UpdateComponent and the endpoint degrades to 503 when any
registered component is unhealthy. Readiness on /readyz asks the cluster
directly instead: a raft leader must be known and the local store readable.
/livez answers 200 whenever the process is up.

# Usage

	collector := metrics.NewCollector(mgr)
	collector.Start()
	defer collector.Stop()

	srv := metrics.NewServer(mgr)
	go func() {
		if err := srv.Start(":9090"); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

Timed operations record latency through the shared Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlacementLatency)
*/
package metrics
