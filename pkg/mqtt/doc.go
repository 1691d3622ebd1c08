// Package mqtt carries the control plane's traffic to and from host agents.
//
// # Topics
//
// Each host owns a topic triple under a fixed root:
//
//	hosts/<host-id>/commands   control plane -> agent   command envelopes
//	hosts/<host-id>/acks       agent -> control plane   command outcomes
//	hosts/<host-id>/status     agent -> control plane   liveness heartbeats
//
// The bridge publishes commands to the concrete per-host topic and consumes
// the two upstream channels through single-level wildcards (hosts/+/acks,
// hosts/+/status). Everything moves at QoS 1: commands carry IDs and acks are
// deduplicated downstream, so at-least-once is enough.
//
// # Inbound Handling
//
// Every member of the control plane stays subscribed, but handlers discard
// messages unless the local node is the raft leader. Leadership changes
// therefore need no broker choreography; the new leader simply stops
// discarding. The topic's host segment is authoritative for inbound traffic:
// an ack whose envelope names a different host is dropped, and an envelope
// without a host inherits the topic's.
//
// Acks feed the deployment tracker. Heartbeats flip the host online, advance
// its last-seen timestamp, and raise host.online on the first beat after an
// offline spell; the reconciler runs the opposite edge.
//
// # Usage
//
//	client := mqtt.NewClient(mqtt.Config{BrokerURL: "tcp://broker:1883"})
//	bridge := mqtt.NewBridge(client, mgr)
//	tracker := deploy.NewTracker(mgr, sched, bridge, deploy.Config{})
//	bridge.AttachTracker(tracker)
//	if err := bridge.Start(); err != nil {
//		...
//	}
//	defer bridge.Stop()
package mqtt
