package padibus

import (
	"github.com/electronicvisions/grenade-sub004/coord"
)

// canBePlacedIndividually checks that every shape of every request could be
// placed if the request were alone on the bus.
//
func canBePlacedIndividually(iso *isolated, reqs []AllocationRequest) bool {
	for i, r := range reqs {
		for _, s := range r.Shapes {
			if s.Size == 0 {
				continue
			}
			if s.Contiguous {
				run, last := 0, -2
				found := false
				for d := range iso {
					if _, ok := iso[d].find(i); !ok {
						continue
					}
					if last+1 != d {
						run = 0
					}
					last = d
					run++
					if run >= s.Size {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			} else {
				n := 0
				for d := range iso {
					if _, ok := iso[d].find(i); ok {
						n++
					}
				}
				if n < s.Size {
					return false
				}
			}
		}
	}
	return true
}

// allocateGreedy walks drivers in ascending order and hands them to the first
// request and shape still in need. With exclusiveFirst, a first pass only
// considers drivers serving a single request.
//
func allocateGreedy(reqs []AllocationRequest, iso *isolated, exclusiveFirst bool) []Allocation {
	allocs := make([]Allocation, len(reqs))
	for i := range allocs {
		allocs[i].Drivers = make([][]DriverMask, len(reqs[i].Shapes))
	}
	var used [coord.SynapseDriverOnPADIBusSize]bool

	pass := func(exclusive bool) {
		for i, r := range reqs {
			for j, s := range r.Shapes {
				for d := range iso {
					if len(allocs[i].Drivers[j]) == s.Size {
						break
					}
					if used[d] || len(iso[d]) == 0 {
						continue
					}
					if exclusive && len(iso[d]) != 1 {
						continue
					}
					c, ok := iso[d].find(i)
					if !ok {
						continue
					}
					allocs[i].Drivers[j] = append(allocs[i].Drivers[j], DriverMask{coord.SynapseDriver(d), c.mask})
					used[d] = true
				}
			}
		}
	}
	if exclusiveFirst {
		pass(true)
	}
	pass(false)
	return allocs
}
