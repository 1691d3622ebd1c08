/*
Package inventory implements the per-host capacity ledger math.

Reserve and Release mutate a host's HostResources while preserving the
invariant allocated <= total (and >= 0) in every dimension. Reserve is
all-or-nothing and checks capacity at commit time against the current
allocation. The functions are pure with respect to external state; the storage
layer runs them inside single-writer transactions so that concurrent
reservations against one host are linearizable, and the placement planner uses
Fits/Available read-only for feasibility filtering.
*/
package inventory
