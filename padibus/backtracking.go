package padibus

import (
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
)

// checkInterval is the number of visited nodes between two checks of the
// elapsed time.
const checkInterval = 10000

const unassigned = -1

// bin collects the drivers of a request which end up in the same shapes.
// Every non-empty contiguous shape is a bin of its own, all non-contiguous
// shapes of a request share a single bin.
type bin struct {
	req        int
	shape      int // contiguous shape, or -1 for the shared bin
	size       int
	contiguous bool
	// twin is the previous bin of the request with the same size and
	// contiguity, or -1. A bin is only started after its twin.
	twin int
}

// node is a partial assignment: drivers below pos are decided, assign[d] is
// the bin driver d belongs to or unassigned.
type node struct {
	pos    int
	assign [coord.SynapseDriverOnPADIBusSize]int
}

func root() node {
	var n node
	for i := range n.assign {
		n.assign[i] = unassigned
	}
	return n
}

type backtracker struct {
	reqs []AllocationRequest
	iso  *isolated
	bins []bin
	// cand[d] lists the bins driver d can be assigned to.
	cand [coord.SynapseDriverOnPADIBusSize][]int
	size []int
	// open[p][i] is the number of candidate slots for request i at drivers >= p.
	open [coord.SynapseDriverOnPADIBusSize][]int

	drivers [][]int // scratch: assigned drivers per bin
	count   []int   // scratch: number of assigned drivers per request

	maxDuration *time.Duration
	start       time.Time
	iterations  int
	run         bool
	result      []Allocation
}

func allocateBacktracking(reqs []AllocationRequest, iso *isolated, maxDuration *time.Duration) []Allocation {
	b := &backtracker{
		reqs:        reqs,
		iso:         iso,
		size:        make([]int, len(reqs)),
		count:       make([]int, len(reqs)),
		maxDuration: maxDuration,
		start:       time.Now(),
		run:         true,
	}
	first := make([][]int, len(reqs))
	for i, r := range reqs {
		b.size[i] = r.Size()
		shared := bin{req: i, shape: -1, twin: -1}
		for j, s := range r.Shapes {
			if !s.Contiguous {
				shared.size += s.Size
				continue
			}
			if s.Size == 0 {
				continue
			}
			c := bin{req: i, shape: j, size: s.Size, contiguous: true, twin: -1}
			for k := len(first[i]) - 1; k >= 0; k-- {
				if o := b.bins[first[i][k]]; o.contiguous && o.size == c.size {
					c.twin = first[i][k]
					break
				}
			}
			first[i] = append(first[i], len(b.bins))
			b.bins = append(b.bins, c)
		}
		if shared.size > 0 {
			first[i] = append(first[i], len(b.bins))
			b.bins = append(b.bins, shared)
		}
	}
	b.drivers = make([][]int, len(b.bins))
	for k := range b.drivers {
		b.drivers[k] = make([]int, 0, coord.SynapseDriverOnPADIBusSize)
	}
	for d := range b.cand {
		for _, c := range iso[d] {
			b.cand[d] = append(b.cand[d], first[c.req]...)
		}
	}
	for p := range b.open {
		b.open[p] = make([]int, len(reqs))
		for d := p; d < coord.SynapseDriverOnPADIBusSize; d++ {
			for _, c := range iso[d] {
				b.open[p][c.req]++
			}
		}
	}
	b.search(root())
	return b.result
}

// search visits n and, unless n is rejected or accepted, all its children.
//
func (b *backtracker) search(n node) {
	if b.maxDuration != nil && b.iterations%checkInterval == 0 && time.Since(b.start) >= *b.maxDuration {
		b.run = false
	}
	b.iterations++
	if !b.run || b.reject(&n) {
		return
	}
	if b.accept(&n) {
		b.output(&n)
		return
	}
	c := n
	for ok := b.first(&c); ok && b.run; ok = b.next(&c) {
		b.search(c)
	}
}

func (b *backtracker) collect(n *node) {
	for k := range b.drivers {
		b.drivers[k] = b.drivers[k][:0]
	}
	for i := range b.count {
		b.count[i] = 0
	}
	for d := 0; d < n.pos; d++ {
		if k := n.assign[d]; k != unassigned {
			b.drivers[k] = append(b.drivers[k], d)
			b.count[b.bins[k].req]++
		}
	}
}

func (b *backtracker) reject(n *node) bool {
	b.collect(n)
	for k, ds := range b.drivers {
		bn := &b.bins[k]
		if len(ds) > bn.size {
			return true
		}
		if bn.twin >= 0 && len(ds) > 0 && len(b.drivers[bn.twin]) == 0 {
			return true
		}
		if !bn.contiguous || len(ds) == 0 {
			continue
		}
		last := ds[len(ds)-1]
		if last-ds[0] != len(ds)-1 {
			return true
		}
		// an unfinished run can no longer be extended
		if len(ds) < bn.size && last < n.pos-1 {
			return true
		}
	}
	if n.pos < coord.SynapseDriverOnPADIBusSize {
		open := b.open[n.pos]
		for i, c := range b.count {
			if b.size[i] > c+open[i] {
				return true
			}
		}
	}
	return false
}

func (b *backtracker) accept(n *node) bool {
	// drivers were collected by reject
	for k, ds := range b.drivers {
		if len(ds) != b.bins[k].size {
			return false
		}
	}
	return true
}

func (b *backtracker) output(n *node) {
	allocs := make([]Allocation, len(b.reqs))
	for i := range allocs {
		allocs[i].Drivers = make([][]DriverMask, len(b.reqs[i].Shapes))
	}
	at := func(r, d int) DriverMask {
		c, _ := b.iso[d].find(r)
		return DriverMask{coord.SynapseDriver(d), c.mask}
	}
	for k, ds := range b.drivers {
		bn := &b.bins[k]
		shapes := b.reqs[bn.req].Shapes
		if bn.contiguous {
			for _, d := range ds {
				allocs[bn.req].Drivers[bn.shape] = append(allocs[bn.req].Drivers[bn.shape], at(bn.req, d))
			}
			continue
		}
		j := 0
		for _, d := range ds {
			for shapes[j].Contiguous || len(allocs[bn.req].Drivers[j]) == shapes[j].Size {
				j++
			}
			allocs[bn.req].Drivers[j] = append(allocs[bn.req].Drivers[j], at(bn.req, d))
		}
	}
	b.result = allocs
	b.run = false
}

// first decides the next driver with candidates, assigning its first
// candidate bin.
//
func (b *backtracker) first(n *node) bool {
	for n.pos < coord.SynapseDriverOnPADIBusSize && len(b.cand[n.pos]) == 0 {
		n.pos++
	}
	if n.pos == coord.SynapseDriverOnPADIBusSize {
		return false
	}
	n.assign[n.pos] = b.cand[n.pos][0]
	n.pos++
	return true
}

// next moves the last decided driver to its next candidate bin, the last
// alternative being to leave the driver unassigned.
//
func (b *backtracker) next(n *node) bool {
	d := n.pos - 1
	cur := n.assign[d]
	if cur == unassigned {
		return false
	}
	cs := b.cand[d]
	for k, c := range cs {
		if c == cur {
			if k == len(cs)-1 {
				n.assign[d] = unassigned
			} else {
				n.assign[d] = cs[k+1]
			}
			break
		}
	}
	return true
}
