package inventory

import (
	"fmt"

	"github.com/rookeryhq/rookery/pkg/types"
)

// Available returns the per-dimension headroom of a host ledger
func Available(res *types.HostResources) types.ResourceSpec {
	return types.ResourceSpec{
		CPUCores: res.CPUCores - res.CPUAllocated,
		RAMMB:    res.RAMMB - res.RAMAllocated,
		DiskMB:   res.DiskMB - res.DiskAllocated,
	}
}

// Fits reports whether the ledger has headroom for the request in every
// dimension (total - allocated >= required)
func Fits(res *types.HostResources, req types.ResourceSpec) bool {
	av := Available(res)
	return av.CPUCores >= req.CPUCores &&
		av.RAMMB >= req.RAMMB &&
		av.DiskMB >= req.DiskMB
}

// Reserve commits the full requested delta or nothing. The capacity check
// runs against the current allocation at call time, never speculatively.
// Serialization is the caller's responsibility: the storage layer invokes
// this inside a single-writer transaction.
func Reserve(res *types.HostResources, req types.ResourceSpec) error {
	if req.CPUCores < 0 || req.RAMMB < 0 || req.DiskMB < 0 {
		return fmt.Errorf("invalid reservation: negative request cpu=%d ram=%d disk=%d",
			req.CPUCores, req.RAMMB, req.DiskMB)
	}
	if !Fits(res, req) {
		av := Available(res)
		return fmt.Errorf("%w: requested cpu=%d ram=%d disk=%d, available cpu=%d ram=%d disk=%d",
			types.ErrInsufficientCapacity,
			req.CPUCores, req.RAMMB, req.DiskMB,
			av.CPUCores, av.RAMMB, av.DiskMB)
	}
	res.CPUAllocated += req.CPUCores
	res.RAMAllocated += req.RAMMB
	res.DiskAllocated += req.DiskMB
	return nil
}

// Release returns a previously reserved delta to the ledger. Callers release
// exactly once per successful reserve; a release that exceeds the current
// allocation indicates a double release and is rejected to keep the ledger
// non-negative.
func Release(res *types.HostResources, req types.ResourceSpec) error {
	if req.CPUCores < 0 || req.RAMMB < 0 || req.DiskMB < 0 {
		return fmt.Errorf("invalid release: negative request cpu=%d ram=%d disk=%d",
			req.CPUCores, req.RAMMB, req.DiskMB)
	}
	if res.CPUAllocated < req.CPUCores || res.RAMAllocated < req.RAMMB || res.DiskAllocated < req.DiskMB {
		return fmt.Errorf("release exceeds allocation: releasing cpu=%d ram=%d disk=%d, allocated cpu=%d ram=%d disk=%d",
			req.CPUCores, req.RAMMB, req.DiskMB,
			res.CPUAllocated, res.RAMAllocated, res.DiskAllocated)
	}
	res.CPUAllocated -= req.CPUCores
	res.RAMAllocated -= req.RAMMB
	res.DiskAllocated -= req.DiskMB
	return nil
}

// Valid reports the ledger invariant: 0 <= allocated <= total per dimension
func Valid(res *types.HostResources) bool {
	return res.CPUAllocated >= 0 && res.CPUAllocated <= res.CPUCores &&
		res.RAMAllocated >= 0 && res.RAMAllocated <= res.RAMMB &&
		res.DiskAllocated >= 0 && res.DiskAllocated <= res.DiskMB
}
