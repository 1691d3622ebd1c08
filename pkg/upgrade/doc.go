/*
Package upgrade selects nodes for automatic version upgrades.

Nodes opt in per node via their self-upgrade policy. The Selector scans the
fleet on a timer, compares each opted-in node against the published version
catalog for its (chain, node type) pair, and re-enters eligible nodes into
the deployment tracker as upgrade attempts. Upgrades ride the same
dispatch/ack protocol as creates on the node's current host, with no new
reservation.

# Eligibility

A node is scheduled for upgrade when all of the following hold:

  - self-upgrade is enabled on the node
  - the node is running (deploying and failed nodes are skipped)
  - no deployment attempt is in flight for it
  - it is in the configured scope group, when one is set
  - the catalog holds a version newer than the node's under the ordering
    below
  - the node's policy admits the jump: not_major requires the first version
    segment to stay the same

Scans run on the raft leader only; followers tick idle.

# Version Ordering

The catalog orders versions by splitting on "." and comparing segments as
text, with the longer sequence winning on an equal prefix. Textual segment
comparison means "9.0.1" orders above "10.0.0" and "1.9.0" above "1.10.0".
Published catalogs are built against this contract, so it must not be
replaced with a numeric comparison; operators publishing a new major line
pad or version accordingly.

# Usage

	sel := upgrade.NewSelector(mgr, tracker, upgrade.Config{
		Interval: 5 * time.Minute,
	})
	sel.Start()
	defer sel.Stop()

	// or one explicit pass:
	scheduled, err := sel.Scan()

Scan returns the ids of the nodes it scheduled, and publishes an
upgrade.scheduled event per node on the manager's broker.
*/
package upgrade
