/*
Package deploy implements the deployment protocol between the control plane
and host agents.

The Tracker is the single entry point for everything that changes what runs
on a host: creating nodes, upgrading them, and deleting them. It turns those
intents into command envelopes on the outbound transport, settles the
acknowledgements agents send back, and recovers attempts that fail or go
silent. Every state transition commits through the replicated state machine,
so a restarted tracker picks up exactly where the last one stopped.

# Attempt State Machine

One attempt is tracked per node, keyed by (host, node):

	              dispatch                    ack(success)
	  ┌─────────┐ ──────────► ┌──────┐ ─────────────► ┌───────────┐
	  │ planned │             │ sent │                │ succeeded │
	  └─────────┘             └──────┘                └───────────┘
	                            │  │ │
	              ack(failure)  │  │ │ no ack, budget left
	          ┌─────────────────┘  │ └──────────────┐
	          ▼                    │                │ re-send
	     ┌────────┐                │                ▼ (same command)
	     │ failed │                │              ┌──────┐
	     └────────┘                │              │ sent │
	                               │              └──────┘
	               no ack, budget  │
	               exhausted       ▼         delete during flight
	                        ┌───────────┐     ┌──────────┐
	                        │ timed_out │     │ canceled │
	                        └───────────┘     └──────────┘

Transitions are conditional on the prior state inside a single storage
transaction, so two acknowledgements can never both win and a late or
duplicated ack falls out as stale.

# Dispatch Ordering

Moving planned to sent happens in three steps, in this order:

 1. Append the create_sent audit row. The attempt is on the record before
    anything leaves the control plane; the trail can never show a result
    without a preceding create_sent.
 2. Commit the sent transition with a fresh command id.
 3. Publish the command envelope.

A failed publish does not fail the attempt: the state is already sent, and
the sweep loop re-publishes the same command until an ack arrives or the
re-send budget runs out. Delivery is at-least-once by construction; agents
deduplicate on command id.

# Acknowledgements

HandleAck settles inbound acks against the state machine:

  - success: the attempt succeeds, a success_received row is appended, and
    for upgrades the node's version advances. The reservation stays with the
    node; it occupies its host until deleted.
  - failure: the attempt fails, the reservation flows back, and for create
    attempts the recovery ladder below runs. Failed upgrades are terminal:
    the node keeps its old version and its capacity, flagged for the
    operator.
  - anything stale (unknown node, wrong host, attempt already settled) is
    dropped with a diagnostic log line and appends nothing.

# Create Recovery

A failed create walks a bounded ladder, decided from the audit trail alone:

	failure on host ──► deploys on this host < 2 ──► retry same host
	                                   │
	                                   ▼
	                    hosts tried < 2 ──► place on a new host,
	                                   │    excluding those tried
	                                   ▼
	                            permanent failure

Before any decision the failed host receives a best-effort delete command
and the failure_received row is appended. If that append cannot commit,
recovery aborts: the trail drives the budget counting, and retrying without
the row risks an unbounded loop. Retries are fresh attempts with their own
create_sent row and command id; the node keeps its MAC address throughout.
Permanent failure leaves the node in the failed state with everything
released.

# Timeout Sweep

An independent loop (leader only) examines active attempts every sweep
interval:

  - planned attempts older than the ack window are re-dispatched; this
    covers a crash between placement and dispatch.
  - sent attempts older than the ack window are re-sent with the same
    command id, up to the re-send budget. Re-sends are not new attempts and
    append no audit row.
  - attempts over budget are escalated: timed_out, reservation released,
    node failed, cleanup command to the unresponsive host.

# Awaiting Outcomes

Dispatch never blocks on an acknowledgement. Callers that want the outcome
register on the (host, node) key:

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dep, err := tracker.Await(ctx, host.ID, node.ID)

Await resolves when the attempt on that host settles. A same-host retry
continues the key; a retry on another host resolves the old key with the
failed record.

# Usage

	tracker := deploy.NewTracker(mgr, sched, transport, deploy.Config{
		AckTimeout: 2 * time.Minute,
		MaxResends: 2,
	})
	tracker.Start()
	defer tracker.Stop()

	node, err := tracker.PlanAndDeploy(deploy.Request{
		OrgID:    "org-1",
		ChainID:  "mainnet",
		NodeType: "validator",
		Version:  "1.4.2",
	})

The transport is an interface with a single PublishCommand method; the mqtt
package provides the production implementation, and tests substitute an
in-memory fake.
*/
package deploy
