/*
Package reconciler watches host liveness.

Agents heartbeat on their status topic; the inbound listener records each
heartbeat on the host record. This package runs the other half: a periodic
pass, on the raft leader only, that flips hosts to offline once their agent
has been silent past the configured window.

Going offline is deliberately mild. The host keeps its nodes and its
reservations, because a silent agent usually means a dropped broker
connection, not a dead machine. The only immediate effect is that the
placement scheduler stops considering the host for new nodes. When the
agent reconnects and heartbeats again, the listener marks the host online
and placements resume.

# Usage

	rec := reconciler.NewReconciler(mgr, reconciler.Config{
		Interval:     30 * time.Second,
		OfflineAfter: 90 * time.Second,
	})
	rec.Start()
	defer rec.Stop()

Each transition to offline publishes a host.offline event on the manager's
broker.
*/
package reconciler
