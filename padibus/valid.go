package padibus

import (
	"github.com/electronicvisions/grenade-sub004/coord"
)

// Valid returns true if allocs is a solution to reqs: one allocation per
// request and one driver list per shape, each of the requested size and
// contiguous if requested, and no driver used twice.
//
func Valid(allocs []Allocation, reqs []AllocationRequest) bool {
	if len(allocs) != len(reqs) {
		return false
	}
	var used [coord.SynapseDriverOnPADIBusSize]bool
	for i, r := range reqs {
		if len(allocs[i].Drivers) != len(r.Shapes) {
			return false
		}
		for j, s := range r.Shapes {
			ds := allocs[i].Drivers[j]
			var local [coord.SynapseDriverOnPADIBusSize]bool
			set := make([]coord.SynapseDriver, 0, len(ds))
			for _, d := range ds {
				if int(d.Driver) >= coord.SynapseDriverOnPADIBusSize || local[d.Driver] {
					return false
				}
				local[d.Driver] = true
				set = append(set, d.Driver)
			}
			if s.Contiguous && !IsContiguous(set) {
				return false
			}
			if s.Size != len(set) {
				return false
			}
			for _, d := range set {
				if used[d] {
					return false
				}
				used[d] = true
			}
		}
	}
	return true
}

// IsContiguous returns true if the distinct drivers ds form a run of
// consecutive indices. The empty set is contiguous.
//
func IsContiguous(ds []coord.SynapseDriver) bool {
	if len(ds) == 0 {
		return true
	}
	min, max := ds[0], ds[0]
	for _, d := range ds[1:] {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return int(max-min) == len(ds)-1
}
