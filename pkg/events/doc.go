/*
Package events provides an in-memory event broker for Rookery's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting fleet
events to interested subscribers. It supports asynchronous event delivery,
enabling loose coupling between control-plane components for state changes,
notifications, and monitoring.

# Architecture

Rookery's event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                  │          │
	│  │  - In-memory message bus                   │          │
	│  │  - Topic-agnostic (all events broadcast)   │          │
	│  │  - Non-blocking publish                    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                │          │
	│  │                                            │          │
	│  │  Publisher → Event Channel (buffer: 100)   │          │
	│  │       ↓                                    │          │
	│  │  Broadcast Loop                            │          │
	│  │       ↓                                    │          │
	│  │  Subscriber Channels (buffer: 50 each)     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                      │          │
	│  │                                            │          │
	│  │  Node Events:                              │          │
	│  │    - node.placed                           │          │
	│  │    - node.deleted                          │          │
	│  │                                            │          │
	│  │  Deployment Events:                        │          │
	│  │    - deployment.sent                       │          │
	│  │    - deployment.succeeded                  │          │
	│  │    - deployment.failed                     │          │
	│  │    - deployment.resent                     │          │
	│  │    - deployment.timed_out                  │          │
	│  │    - deployment.retried                    │          │
	│  │                                            │          │
	│  │  Upgrade Events:                           │          │
	│  │    - upgrade.scheduled                     │          │
	│  │                                            │          │
	│  │  Host Events:                              │          │
	│  │    - host.online, host.offline             │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

# Delivery Semantics

Publish never blocks the caller: events flow through a buffered channel into
the broadcast loop, and a subscriber whose buffer is full simply misses the
event. The broker is a telemetry surface, not a source of truth; components
that need reliable state read the store, never the event stream.

# Usage

Subscribe to fleet events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		fmt.Printf("[%s] %s node=%s host=%s\n",
			event.Timestamp.Format(time.RFC3339),
			event.Type, event.NodeID, event.HostID)
	}

Publish an event:

	broker.Publish(&events.Event{
		Type:   events.EventDeploymentSent,
		NodeID: node.ID,
		HostID: host.ID,
	})
*/
package events
