// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package dls allocates synapse drivers on all PADI buses of the chip.
//
// Requests span one or more PADI buses and come with a set of candidate
// labels. The Manager explores label combinations for each collection of
// interdependent PADI buses and delegates the allocation on a single bus to a
// padibus.Manager.
//
package dls

import (
	"fmt"
	"log"
	"math/bits"
	"sort"
	"strings"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/internal/multidim"
	"github.com/electronicvisions/grenade-sub004/padibus"
	"github.com/pkg/errors"
)

// DependentLabelGroup identifies requests whose label must be chosen jointly:
// all members of a group get the label at the same index of their candidate
// label lists.
//
type DependentLabelGroup uint

// Group returns a pointer to g, for use in AllocationRequest literals.
//
func Group(g DependentLabelGroup) *DependentLabelGroup {
	return &g
}

// AllocationRequest requests synapse drivers on one or more PADI buses. The
// chosen label is one of Labels and is the same on all buses.
//
type AllocationRequest struct {
	Shapes              map[coord.PADIBus][]padibus.Shape
	Labels              []coord.Label
	DependentLabelGroup *DependentLabelGroup
}

// Valid returns true if the request has candidate labels and shapes.
//
func (r *AllocationRequest) Valid() bool {
	return len(r.Labels) > 0 && len(r.Shapes) > 0
}

// Buses returns the PADI buses of the request in ascending order.
//
func (r *AllocationRequest) Buses() []coord.PADIBus {
	ps := make([]coord.PADIBus, 0, len(r.Shapes))
	for p := range r.Shapes {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ps
}

// Equal returns true if r and o have the same shapes, labels and dependent
// label group.
//
func (r *AllocationRequest) Equal(o *AllocationRequest) bool {
	if len(r.Shapes) != len(o.Shapes) || len(r.Labels) != len(o.Labels) {
		return false
	}
	for p, ss := range r.Shapes {
		other, ok := o.Shapes[p]
		if !ok || len(other) != len(ss) {
			return false
		}
		for i := range ss {
			if ss[i] != other[i] {
				return false
			}
		}
	}
	for i := range r.Labels {
		if r.Labels[i] != o.Labels[i] {
			return false
		}
	}
	switch {
	case r.DependentLabelGroup == nil:
		return o.DependentLabelGroup == nil
	case o.DependentLabelGroup == nil:
		return false
	}
	return *r.DependentLabelGroup == *o.DependentLabelGroup
}

func (r *AllocationRequest) String() string {
	var b strings.Builder
	b.WriteString("AllocationRequest(\n\tshapes:\n")
	for _, p := range r.Buses() {
		for _, s := range r.Shapes[p] {
			fmt.Fprintf(&b, "\t\t%v: %v\n", p, s)
		}
	}
	b.WriteString("\tlabels:\n")
	for _, l := range r.Labels {
		fmt.Fprintf(&b, "\t\t%v\n", l)
	}
	if r.DependentLabelGroup != nil {
		fmt.Fprintf(&b, "\tdependent_label_group: %d\n", *r.DependentLabelGroup)
	} else {
		b.WriteString("\tdependent_label_group: none\n")
	}
	b.WriteRune(')')
	return b.String()
}

// Allocation is the solution to an AllocationRequest: the chosen label and
// the allocated drivers on each requested PADI bus.
//
type Allocation struct {
	Drivers map[coord.PADIBus]padibus.Allocation
	Label   coord.Label
}

func (a *Allocation) String() string {
	ps := make([]coord.PADIBus, 0, len(a.Drivers))
	for p := range a.Drivers {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	var b strings.Builder
	b.WriteString("Allocation(\n\tsynapse_drivers:\n")
	for _, p := range ps {
		fmt.Fprintf(&b, "\t\t%v: %v\n", p, a.Drivers[p])
	}
	fmt.Fprintf(&b, "\tlabel: %v\n)", a.Label)
	return b.String()
}

// Manager allocates synapse drivers on all PADI buses.
//
type Manager struct {
	buses [coord.PADIBusOnDLSSize]*padibus.Manager

	// Workers is the number of goroutines solving collections of
	// interdependent PADI buses. Values less or equal to 1 solve them
	// sequentially. The result does not depend on the number of workers.
	Workers int

	// Logger receives debug output. Nil disables logging.
	Logger *log.Logger
}

// NewManager returns a manager which never allocates the given drivers. It
// panics if a driver is not on the chip.
//
func NewManager(unavailable ...coord.SynapseDriverOnDLS) *Manager {
	var perBus [coord.PADIBusOnDLSSize][]coord.SynapseDriver
	for _, d := range unavailable {
		if !d.Valid() {
			panic("dls: unavailable " + d.String() + " out of range")
		}
		p := d.PADIBus()
		perBus[p] = append(perBus[p], d.OnPADIBus())
	}
	m := &Manager{}
	for p := range m.buses {
		m.buses[p] = padibus.NewManager(perBus[p]...)
	}
	return m
}

// SetLogger sets the logger of the manager and of its PADI-bus managers.
//
func (m *Manager) SetLogger(l *log.Logger) {
	m.Logger = l
	for _, b := range m.buses {
		b.Logger = l
	}
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Printf("dls: "+format, args...)
	}
}

// Solve allocates synapse drivers to the requests. A nil timeout means no
// time limit on the label exploration of each collection of interdependent
// PADI buses.
//
// It returns false if no solution was found and an error if the requests are
// malformed: empty labels or shapes, or a dependent label group whose
// members have different numbers of candidate labels.
//
func (m *Manager) Solve(reqs []AllocationRequest, policy padibus.Policy, timeout *time.Duration) ([]Allocation, bool, error) {
	m.logf("trying to solve synapse driver allocation requests using %v", policy)

	for i := range reqs {
		if !reqs[i].Valid() {
			return nil, false, errors.Errorf("allocation request %d with empty labels or shapes not supported", i)
		}
	}
	if err := checkHomogeneousGroups(reqs); err != nil {
		return nil, false, err
	}

	groups := interdependentBuses(reqs)
	perBus := requestsPerBus(reqs)

	results := make([]groupResult, len(groups))
	solve := func(i int) bool {
		results[i] = m.solveGroup(groups[i], reqs, &perBus, policy, timeout)
		return results[i].ok
	}
	m.run(len(groups), solve)

	solution := make([]Allocation, len(reqs))
	for i, r := range results {
		if !r.ok {
			m.logf("found no solution for %v", groups[i])
			return nil, false, nil
		}
		for _, u := range r.updates {
			a := &solution[u.req]
			if a.Drivers == nil {
				a.Drivers = make(map[coord.PADIBus]padibus.Allocation, len(reqs[u.req].Shapes))
			}
			a.Drivers[u.bus] = u.alloc
			a.Label = u.label
		}
	}
	if err := validSolution(solution, reqs); err != nil {
		panic(errors.Wrap(err, "allocations are not a valid solution to requests"))
	}
	m.logf("found solution for %d requests", len(solution))
	return solution, true, nil
}

// run calls solve for all indices in [0, n), spreading them over the
// manager's workers. When run sequentially, it stops at the first failure.
//
func (m *Manager) run(n int, solve func(int) bool) {
	workers := m.Workers
	if workers <= 1 || n <= 1 {
		for i := 0; i < n && solve(i); i++ {
		}
		return
	}
	size := n / workers
	if size*workers < n {
		size++
	}
	done := make(chan struct{})
	count := 0
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		count++
		go worker(lo, hi, solve, done)
	}
	for ; count > 0; count-- {
		<-done
	}
}

func worker(lo, hi int, solve func(int) bool, done chan<- struct{}) {
	for i := lo; i < hi; i++ {
		solve(i)
	}
	done <- struct{}{}
}

// update is one PADI-bus allocation of a request within a partial solution.
type update struct {
	req   int
	bus   coord.PADIBus
	alloc padibus.Allocation
	label coord.Label
}

type groupResult struct {
	ok      bool
	updates []update
}

// solveGroup explores the label space of a collection of interdependent
// PADI buses until all of them can be solved with the same label
// combination.
//
func (m *Manager) solveGroup(buses []coord.PADIBus, reqs []AllocationRequest, perBus *[coord.PADIBusOnDLSSize]busRequests, policy padibus.Policy, timeout *time.Duration) groupResult {
	m.logf("trying to solve synapse driver allocation requests of interdependent %v", buses)

	groups := uniqueDependentLabelGroups(reqs, buses)
	indep := independentRequests(reqs, buses)
	space := labelSpace(indep, groups, reqs)
	total := multidim.Size(space)
	m.logf("label space to explore: %v (%d combinations)", space, total)

	var res groupResult
	explored := 0
	start := time.Now()
	for it := multidim.New(space); !it.Done(); it.Next() {
		if bits.OnesCount(uint(explored)) == 1 {
			m.logf("explored %d label combination(s)", explored)
		}
		if timeout != nil && time.Since(start) >= *timeout {
			break
		}
		labels := it.Value()
		res.updates = res.updates[:0]
		ok := true
		for _, p := range buses {
			br := &perBus[p]
			br.updateLabels(reqs, labels, indep, groups)
			local, solved := m.buses[p].Solve(br.reqs, policy)
			if !solved {
				ok = false
				break
			}
			res.updates = br.appendUpdates(res.updates, local, p, reqs, labels, indep, groups)
		}
		explored++
		if ok {
			res.ok = true
			break
		}
	}
	m.logf("explored %d / %d label combination(s) in %v", explored, total, time.Since(start))
	return res
}
