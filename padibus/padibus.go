// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package padibus allocates the synapse drivers of a single PADI bus to a set
// of requests, each identified by its event label.
//
// A synapse driver forwards an event if the event label and the driver's
// index are equal under the driver's compare mask. A driver can serve a
// request if there is a mask under which it forwards the request's label and
// no other request's label. Finding such masks and a conflict free assignment
// of drivers to requests is the job of a Manager.
//
package padibus

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
)

// Shape is a request for Size synapse drivers, which must have consecutive
// indices if Contiguous is set.
//
type Shape struct {
	Size       int
	Contiguous bool
}

func (s Shape) String() string {
	if s.Contiguous {
		return strconv.Itoa(s.Size) + "c"
	}
	return strconv.Itoa(s.Size)
}

// AllocationRequest requests synapse drivers for the given shapes, which shall
// forward events carrying Label exclusively.
//
type AllocationRequest struct {
	Shapes []Shape
	Label  coord.Label
}

// Size returns the total number of requested synapse drivers.
//
func (r AllocationRequest) Size() int {
	n := 0
	for _, s := range r.Shapes {
		n += s.Size
	}
	return n
}

// Equal returns true if r and o request the same shapes in the same order
// with the same label.
//
func (r AllocationRequest) Equal(o AllocationRequest) bool {
	if r.Label != o.Label || len(r.Shapes) != len(o.Shapes) {
		return false
	}
	for i := range r.Shapes {
		if r.Shapes[i] != o.Shapes[i] {
			return false
		}
	}
	return true
}

// IsSensitiveForShapeAllocationOrder returns true if permuting the shapes of
// r may change the outcome of an allocation: some shape is contiguous and not
// all shapes are equal.
//
func (r AllocationRequest) IsSensitiveForShapeAllocationOrder() bool {
	contiguous := false
	for _, s := range r.Shapes {
		contiguous = contiguous || s.Contiguous
	}
	if !contiguous {
		return false
	}
	for _, s := range r.Shapes[1:] {
		if s != r.Shapes[0] {
			return true
		}
	}
	return false
}

func (r AllocationRequest) String() string {
	var b strings.Builder
	b.WriteString("AllocationRequest(shapes: [")
	for i, s := range r.Shapes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.String())
	}
	b.WriteString("], label: ")
	b.WriteString(r.Label.String())
	b.WriteRune(')')
	return b.String()
}

// DriverMask is an allocated synapse driver together with the compare mask
// isolating the request's label on it.
//
type DriverMask struct {
	Driver coord.SynapseDriver
	Mask   coord.Mask
}

// Allocation holds the allocated synapse drivers of a request, one slice per
// requested shape, in the order of the request's shapes.
//
type Allocation struct {
	Drivers [][]DriverMask
}

func (a Allocation) String() string {
	var b strings.Builder
	b.WriteString("Allocation(")
	for i, ds := range a.Drivers {
		if i > 0 {
			b.WriteString("; ")
		}
		for j, d := range ds {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Itoa(int(d.Driver)))
			b.WriteRune('/')
			b.WriteString(d.Mask.String())
		}
	}
	b.WriteRune(')')
	return b.String()
}

// Policy selects the allocation algorithm. It is one of Greedy or Backtracking.
//
type Policy interface {
	String() string
	isPolicy()
}

// Greedy allocates drivers request by request, shape by shape, in ascending
// driver order. With ExclusiveFirst set, a first pass only uses drivers which
// can serve a single request.
//
// Greedy allocation is fast but may miss existing solutions.
//
type Greedy struct {
	ExclusiveFirst bool
}

// Backtracking searches the complete assignment space of drivers to the
// shapes of all requests, so that the order of shapes does not matter.
// A nil MaxDuration means no time limit.
//
type Backtracking struct {
	MaxDuration *time.Duration
}

// Limit returns a Backtracking policy with the given time limit.
//
func Limit(d time.Duration) Backtracking {
	return Backtracking{MaxDuration: &d}
}

func (Greedy) isPolicy()       {}
func (Backtracking) isPolicy() {}

func (p Greedy) String() string {
	return "Greedy(ExclusiveFirst: " + strconv.FormatBool(p.ExclusiveFirst) + ")"
}

func (p Backtracking) String() string {
	if p.MaxDuration == nil {
		return "Backtracking(MaxDuration: none)"
	}
	return "Backtracking(MaxDuration: " + p.MaxDuration.String() + ")"
}

// DefaultPolicy is the policy used when none is given.
//
var DefaultPolicy Policy = Greedy{ExclusiveFirst: true}

// IsSensitiveForShapeAllocationOrder returns true if the result of the policy
// depends on the order of requests and shapes.
//
func IsSensitiveForShapeAllocationOrder(p Policy) bool {
	switch p.(type) {
	case Greedy:
		return true
	case Backtracking:
		return false
	}
	panic("unknown allocation policy " + p.String())
}

// Manager allocates synapse drivers on a single PADI bus.
//
type Manager struct {
	unavailable [coord.SynapseDriverOnPADIBusSize]bool
	n           int

	// Logger receives debug output. Nil disables logging.
	Logger *log.Logger
}

// NewManager returns a manager which never allocates the given drivers. It
// panics if a driver is not on the PADI bus.
//
func NewManager(unavailable ...coord.SynapseDriver) *Manager {
	m := &Manager{}
	for _, d := range unavailable {
		if d >= coord.SynapseDriverOnPADIBusSize {
			panic("padibus: unavailable " + d.String() + " out of range")
		}
		if !m.unavailable[d] {
			m.unavailable[d] = true
			m.n++
		}
	}
	return m
}

// Unavailable returns the drivers excluded from allocation, in ascending order.
//
func (m *Manager) Unavailable() []coord.SynapseDriver {
	r := make([]coord.SynapseDriver, 0, m.n)
	for d, u := range m.unavailable {
		if u {
			r = append(r, coord.SynapseDriver(d))
		}
	}
	return r
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Printf("padibus: "+format, args...)
	}
}

// Solve allocates synapse drivers to the requests using the given policy. It
// returns false if no solution was found, because the requests cannot be
// fulfilled or because the policy failed to find an existing solution.
//
// On success, the returned allocations are in request order.
//
func (m *Manager) Solve(reqs []AllocationRequest, policy Policy) ([]Allocation, bool) {
	if !hasUniqueLabels(reqs) {
		m.logf("labels of requests are not unique")
		return nil, false
	}
	if len(reqs) == 0 {
		return []Allocation{}, true
	}
	if !m.fitsAvailableSize(reqs) {
		m.logf("requested size exceeds %d available synapse drivers", coord.SynapseDriverOnPADIBusSize-m.n)
		return nil, false
	}
	masks := isolatingMasks(reqs)
	if !canBeIsolated(masks) {
		m.logf("requests can not be isolated")
		return nil, false
	}
	isolated := m.isolatedDrivers(masks, reqs)
	if !canBePlacedIndividually(isolated, reqs) {
		m.logf("requests can not be placed individually")
		return nil, false
	}

	var allocs []Allocation
	switch p := policy.(type) {
	case Greedy:
		allocs = allocateGreedy(reqs, isolated, p.ExclusiveFirst)
	case Backtracking:
		allocs = allocateBacktracking(reqs, isolated, p.MaxDuration)
	default:
		panic("unknown allocation policy " + policy.String())
	}
	if !Valid(allocs, reqs) {
		m.logf("%v found no valid solution", policy)
		return nil, false
	}
	return allocs, true
}

func hasUniqueLabels(reqs []AllocationRequest) bool {
	var seen [256]bool
	for _, r := range reqs {
		if seen[r.Label] {
			return false
		}
		seen[r.Label] = true
	}
	return true
}

func (m *Manager) fitsAvailableSize(reqs []AllocationRequest) bool {
	n := 0
	for _, r := range reqs {
		n += r.Size()
	}
	return n <= coord.SynapseDriverOnPADIBusSize-m.n
}
