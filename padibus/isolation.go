package padibus

import (
	"github.com/electronicvisions/grenade-sub004/coord"
)

// candidate is a request a driver can serve, with the first mask isolating
// the request's label on that driver.
type candidate struct {
	req  int
	mask coord.Mask
}

type candidates []candidate

// isolated lists per driver the requests it can serve in isolation. Drivers
// without candidates have an empty list.
type isolated [coord.SynapseDriverOnPADIBusSize]candidates

// isolatingMasks returns per request the masks under which its label differs
// from the label of every other request, in ascending mask order.
//
func isolatingMasks(reqs []AllocationRequest) [][]coord.Mask {
	masks := make([][]coord.Mask, len(reqs))
	for m := 0; m < coord.MaskSize; m++ {
		mask := coord.Mask(m)
		for i := range reqs {
			mi := mask & coord.Mask(reqs[i].Label)
			ok := true
			for j := range reqs {
				if j != i && mask&coord.Mask(reqs[j].Label) == mi {
					ok = false
					break
				}
			}
			if ok {
				masks[i] = append(masks[i], mask)
			}
		}
	}
	return masks
}

func canBeIsolated(masks [][]coord.Mask) bool {
	for _, m := range masks {
		if len(m) == 0 {
			return false
		}
	}
	return true
}

// isolatedDrivers returns for each available driver the requests it forwards
// under one of their isolating masks.
//
func (m *Manager) isolatedDrivers(masks [][]coord.Mask, reqs []AllocationRequest) *isolated {
	var iso isolated
	for d := range iso {
		if m.unavailable[d] {
			continue
		}
		for i, ms := range masks {
			for _, mask := range ms {
				if coord.Forwards(reqs[i].Label, mask, coord.SynapseDriver(d)) {
					iso[d] = append(iso[d], candidate{i, mask})
					break
				}
			}
		}
	}
	return &iso
}

func (c candidates) find(req int) (candidate, bool) {
	for _, x := range c {
		if x.req == req {
			return x, true
		}
	}
	return candidate{}, false
}
