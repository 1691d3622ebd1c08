package types

import "errors"

// Failure taxonomy of the control plane. Callers match with errors.Is;
// wrapping sites attach host and node context with fmt %w.
var (
	// ErrInsufficientCapacity: no feasible host (or the chosen host) can
	// satisfy the requested reservation. Recoverable by operator action,
	// never retried automatically.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrAddressSpaceExhausted: the MAC counter consumed the entire 24-bit
	// space under the configured prefix. Fatal until the space is expanded.
	ErrAddressSpaceExhausted = errors.New("mac address space exhausted")

	// ErrDeploymentTimeout: no acknowledgement within the wait window after
	// the bounded re-send budget.
	ErrDeploymentTimeout = errors.New("deployment timed out")

	// ErrDeploymentFailed: terminal failure of a deployment attempt after
	// the retry policy is exhausted.
	ErrDeploymentFailed = errors.New("deployment failed")

	// ErrStaleAck: an acknowledgement that no longer corresponds to an
	// in-flight attempt. Ignored apart from diagnostics.
	ErrStaleAck = errors.New("stale acknowledgement")
)

// Lookup and precondition errors.
var (
	ErrHostNotFound       = errors.New("host not found")
	ErrNodeNotFound       = errors.New("node not found")
	ErrNodeTypeNotFound   = errors.New("node type not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrHostNotEmpty rejects removing a host that still owns nodes.
	ErrHostNotEmpty = errors.New("host still has nodes")

	// ErrNodeTypeInUse rejects breaking changes to a node type referenced by
	// live nodes.
	ErrNodeTypeInUse = errors.New("node type referenced by existing nodes")
)
