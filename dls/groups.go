package dls

import (
	"sort"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
	"github.com/pkg/errors"
)

func checkHomogeneousGroups(reqs []AllocationRequest) error {
	sizes := make(map[DependentLabelGroup]int)
	for _, r := range reqs {
		if r.DependentLabelGroup == nil {
			continue
		}
		g := *r.DependentLabelGroup
		if n, ok := sizes[g]; ok && n != len(r.Labels) {
			return errors.Errorf("dependent label group %d is present in allocation requests with different numbers of possible labels", g)
		}
		sizes[g] = len(r.Labels)
	}
	return nil
}

// busSet is a set of PADI buses, bit i representing PADIBus(i).
type busSet uint8

func (s busSet) has(p coord.PADIBus) bool { return s&(1<<p) != 0 }

func (s busSet) buses() []coord.PADIBus {
	var ps []coord.PADIBus
	for p := coord.PADIBus(0); p < coord.PADIBusOnDLSSize; p++ {
		if s.has(p) {
			ps = append(ps, p)
		}
	}
	return ps
}

func (r *AllocationRequest) busSet() busSet {
	var s busSet
	for p := range r.Shapes {
		s |= 1 << p
	}
	return s
}

func lessBuses(a, b []coord.PADIBus) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// interdependentBuses partitions the PADI buses of the requests into
// collections whose label spaces must be explored together. A request with
// more than one candidate label links all of its buses. The members of a
// dependent label group link the buses of the whole group. The collections
// are returned in lexicographic order.
//
func interdependentBuses(reqs []AllocationRequest) [][]coord.PADIBus {
	grouped := make(map[DependentLabelGroup]busSet)
	for _, r := range reqs {
		if r.DependentLabelGroup != nil {
			grouped[*r.DependentLabelGroup] |= r.busSet()
		}
	}
	var sets []busSet
	for _, r := range reqs {
		own := r.busSet()
		if r.DependentLabelGroup != nil {
			own = grouped[*r.DependentLabelGroup]
		}
		if len(r.Labels) > 1 || r.DependentLabelGroup != nil {
			merged := own
			kept := sets[:0]
			for _, s := range sets {
				if s&own != 0 {
					merged |= s
				} else {
					kept = append(kept, s)
				}
			}
			sets = append(kept, merged)
			continue
		}
		for _, p := range r.Buses() {
			found := false
			for _, s := range sets {
				if s.has(p) {
					found = true
					break
				}
			}
			if !found {
				sets = append(sets, 1<<p)
			}
		}
	}
	groups := make([][]coord.PADIBus, len(sets))
	for i, s := range sets {
		groups[i] = s.buses()
	}
	sort.Slice(groups, func(i, j int) bool { return lessBuses(groups[i], groups[j]) })
	return groups
}

// busRequests are the PADI-bus level requests on a single bus, together with
// the index of the DLS level request each one stems from.
type busRequests struct {
	reqs  []padibus.AllocationRequest
	index []int
}

func requestsPerBus(reqs []AllocationRequest) [coord.PADIBusOnDLSSize]busRequests {
	var perBus [coord.PADIBusOnDLSSize]busRequests
	for p := range perBus {
		for i, r := range reqs {
			if shapes, ok := r.Shapes[coord.PADIBus(p)]; ok {
				perBus[p].reqs = append(perBus[p].reqs, padibus.AllocationRequest{Shapes: shapes})
				perBus[p].index = append(perBus[p].index, i)
			}
		}
	}
	return perBus
}

func touches(r *AllocationRequest, buses []coord.PADIBus) bool {
	for _, p := range buses {
		if _, ok := r.Shapes[p]; ok {
			return true
		}
	}
	return false
}

// independentRequests returns the indices of the requests without dependent
// label group which touch one of the buses.
//
func independentRequests(reqs []AllocationRequest, buses []coord.PADIBus) []int {
	var indep []int
	for i := range reqs {
		if reqs[i].DependentLabelGroup == nil && touches(&reqs[i], buses) {
			indep = append(indep, i)
		}
	}
	return indep
}

// uniqueDependentLabelGroups returns the sorted dependent label groups of the
// requests touching one of the buses.
//
func uniqueDependentLabelGroups(reqs []AllocationRequest, buses []coord.PADIBus) []DependentLabelGroup {
	seen := make(map[DependentLabelGroup]bool)
	var groups []DependentLabelGroup
	for i := range reqs {
		g := reqs[i].DependentLabelGroup
		if g != nil && !seen[*g] && touches(&reqs[i], buses) {
			seen[*g] = true
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// labelSpace returns the number of candidate labels of each independent
// request followed by the number of candidate labels of each dependent label
// group.
//
func labelSpace(indep []int, groups []DependentLabelGroup, reqs []AllocationRequest) []int {
	space := make([]int, 0, len(indep)+len(groups))
	for _, i := range indep {
		space = append(space, len(reqs[i].Labels))
	}
	for _, g := range groups {
		for i := range reqs {
			if reqs[i].DependentLabelGroup != nil && *reqs[i].DependentLabelGroup == g {
				space = append(space, len(reqs[i].Labels))
				break
			}
		}
	}
	return space
}

// labelSpaceIndex returns the dimension of the label space selecting the
// label of request i.
//
func labelSpaceIndex(indep []int, groups []DependentLabelGroup, reqs []AllocationRequest, i int) int {
	if g := reqs[i].DependentLabelGroup; g != nil {
		k := sort.Search(len(groups), func(k int) bool { return groups[k] >= *g })
		return len(indep) + k
	}
	for k, j := range indep {
		if j == i {
			return k
		}
	}
	return len(indep)
}

func chosenLabel(reqs []AllocationRequest, labels []int, indep []int, groups []DependentLabelGroup, i int) coord.Label {
	return reqs[i].Labels[labels[labelSpaceIndex(indep, groups, reqs, i)]]
}

// updateLabels sets the label of every request on the bus to the one
// selected by the label combination.
//
func (br *busRequests) updateLabels(reqs []AllocationRequest, labels []int, indep []int, groups []DependentLabelGroup) {
	for k, i := range br.index {
		br.reqs[k].Label = chosenLabel(reqs, labels, indep, groups, i)
	}
}

// appendUpdates records the allocations found on bus p for the label
// combination.
//
func (br *busRequests) appendUpdates(us []update, local []padibus.Allocation, p coord.PADIBus, reqs []AllocationRequest, labels []int, indep []int, groups []DependentLabelGroup) []update {
	for k, i := range br.index {
		us = append(us, update{
			req:   i,
			bus:   p,
			alloc: local[k],
			label: chosenLabel(reqs, labels, indep, groups, i),
		})
	}
	return us
}
