package dls

import (
	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
	"github.com/pkg/errors"
)

// validSolution checks that allocs is a solution to reqs: each allocation
// carries one of the request's candidate labels and allocates all requested
// shapes on exactly the requested PADI buses. All members of a dependent
// label group carry the label at the same candidate index.
//
func validSolution(allocs []Allocation, reqs []AllocationRequest) error {
	if len(allocs) != len(reqs) {
		return errors.Errorf("solution size %d does not match requested allocation size %d", len(allocs), len(reqs))
	}
	chosen := make(map[DependentLabelGroup]int)
	for i := range allocs {
		a, r := &allocs[i], &reqs[i]
		index := -1
		for k, l := range r.Labels {
			if l == a.Label {
				index = k
				break
			}
		}
		if index < 0 {
			return errors.Errorf("%v present in solution %d is not present in corresponding requested allocation", a.Label, i)
		}
		if g := r.DependentLabelGroup; g != nil {
			if k, ok := chosen[*g]; ok && k != index {
				return errors.Errorf("%v present in solution %d is at candidate index %d, other members of dependent label group %d use index %d", a.Label, i, index, *g, k)
			}
			chosen[*g] = index
		}
		if len(a.Drivers) != len(r.Shapes) {
			return errors.Errorf("number of PADI buses in solution %d does not match requested allocation", i)
		}
		for p := range a.Drivers {
			if _, ok := r.Shapes[p]; !ok {
				return errors.Errorf("%v present in solution %d is not present in requested allocation", p, i)
			}
		}
		for p, shapes := range r.Shapes {
			ds := a.Drivers[p].Drivers
			if len(shapes) != len(ds) {
				return errors.Errorf("not all shapes requested are allocated for solution (%v: %d)", p, i)
			}
			for j, s := range shapes {
				if s.Size != len(ds[j]) {
					return errors.Errorf("shape of requested allocation (%v: %d, %d) is allocated in a different size", p, i, j)
				}
				if !s.Contiguous {
					continue
				}
				set := make(map[coord.SynapseDriver]bool, len(ds[j]))
				var drivers []coord.SynapseDriver
				for _, d := range ds[j] {
					if !set[d.Driver] {
						set[d.Driver] = true
						drivers = append(drivers, d.Driver)
					}
				}
				if !padibus.IsContiguous(drivers) {
					return errors.Errorf("shape of requested allocation (%v: %d, %d) is requested to be contiguous but is allocated non-contiguous", p, i, j)
				}
			}
		}
	}
	return nil
}
