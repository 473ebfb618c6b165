// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package source partitions the event sources of a network into groups
// sharing a PADI bus label and translates each group into a synapse driver
// allocation request for the dls package.
//
// Three kinds of sources exist: neurons on the chip (internal), background
// spike generators (background) and off-chip sources arriving via the SPL1
// inputs (external). Sources of a group differ only in their synapse label,
// so a group holds at most coord.SynapseLabelSize sources.
//
package source

import (
	"fmt"
	"strings"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/dls"
	"github.com/electronicvisions/grenade-sub004/internal/multidim"
	"github.com/electronicvisions/grenade-sub004/padibus"
	"github.com/pkg/errors"
)

// OutDegree counts the connections from a source to each target neuron, per
// receptor type. The zero value has no connections.
//
type OutDegree [coord.ReceptorTypeCount]map[coord.AtomicNeuron]int

// Add adds k connections of receptor type r to neuron n.
//
func (d *OutDegree) Add(r coord.ReceptorType, n coord.AtomicNeuron, k int) {
	if d[r] == nil {
		d[r] = make(map[coord.AtomicNeuron]int)
	}
	d[r][n] += k
}

// Source is implemented by the three source kinds.
//
type Source interface {
	Degrees() OutDegree
}

// InternalSource is a neuron on the chip sending events.
//
type InternalSource struct {
	OutDegree OutDegree
	Neuron    coord.AtomicNeuron
}

// BackgroundSource is a background spike source feeding PADIBus.
//
type BackgroundSource struct {
	OutDegree OutDegree
	PADIBus   coord.PADIBus
}

// ExternalSource is an off-chip spike source.
//
type ExternalSource struct {
	OutDegree OutDegree
}

func (s InternalSource) Degrees() OutDegree   { return s.OutDegree }
func (s BackgroundSource) Degrees() OutDegree { return s.OutDegree }
func (s ExternalSource) Degrees() OutDegree   { return s.OutDegree }

// PADIBusOnBlock returns the bus on each PADI-bus block the neuron's event
// output is wired to.
//
func (s InternalSource) PADIBusOnBlock() coord.PADIBusOnBlock {
	return s.Neuron.EventOutput().OnBlock()
}

// BackendBlock returns the neuron backend block of the source neuron.
//
func (s InternalSource) BackendBlock() int {
	return s.Neuron.EventOutput().BackendBlock()
}

// NumSynapseDrivers returns the number of synapse drivers needed on each
// hemisphere to serve the selected sources with a single label.
//
// For each receptor type, the target neuron with the largest summed in-degree
// from the selected sources determines the number of synapse rows. Each
// driver drives two rows.
//
func NumSynapseDrivers[S Source](sources []S, filter []int) [coord.HemisphereOnDLSSize]int {
	var rows [coord.HemisphereOnDLSSize]int
	for r := 0; r < coord.ReceptorTypeCount; r++ {
		sum := make(map[coord.AtomicNeuron]int)
		for _, i := range filter {
			for n, k := range sources[i].Degrees()[r] {
				sum[n] += k
			}
		}
		var peak [coord.HemisphereOnDLSSize]int
		for n, k := range sum {
			if h := n.Hemisphere(); k > peak[h] {
				peak[h] = k
			}
		}
		for h := range rows {
			rows[h] += peak[h]
		}
	}
	var drivers [coord.HemisphereOnDLSSize]int
	for h, n := range rows {
		drivers[h] = (n + coord.SynapseRowOnSynapseDriverSize - 1) / coord.SynapseRowOnSynapseDriverSize
	}
	return drivers
}

// SplitLinear splits filter into consecutive chunks of coord.SynapseLabelSize
// sources. The last chunk may be shorter.
//
func SplitLinear(filter []int) [][]int {
	var split [][]int
	for lo := 0; lo < len(filter); lo += coord.SynapseLabelSize {
		hi := lo + coord.SynapseLabelSize
		if hi > len(filter) {
			hi = len(filter)
		}
		split = append(split, append([]int(nil), filter[lo:hi]...))
	}
	return split
}

// DistributeExternalSourcesLinear fills the synapse drivers left unused on
// each PADI bus with external sources, in source order, bus by bus. Sources
// not needing any driver on a hemisphere are not placed on its buses. It
// returns false if not all sources fit on a hemisphere.
//
func DistributeExternalSourcesLinear(sources []ExternalSource, used [coord.PADIBusOnDLSSize]int) ([coord.PADIBusOnDLSSize][][]int, bool) {
	var split [coord.PADIBusOnDLSSize][][]int
	for h := coord.Hemisphere(0); h < coord.HemisphereOnDLSSize; h++ {
		i := 0
		for b := coord.PADIBusOnBlock(0); b < coord.PADIBusOnPADIBusBlockSize; b++ {
			p := coord.NewPADIBus(b, h)
			unused := coord.SynapseDriverOnPADIBusSize - used[p]
			var filter []int
			for i < len(sources) && NumSynapseDrivers(sources, filter)[h] <= unused {
				if len(filter) == coord.SynapseLabelSize {
					unused -= NumSynapseDrivers(sources, filter)[h]
					split[p] = append(split[p], filter)
					filter = nil
				}
				if NumSynapseDrivers(sources, []int{i})[h] > 0 {
					filter = append(filter, i)
				}
				i++
			}
			for NumSynapseDrivers(sources, filter)[h] > unused {
				// resume after the last source kept
				i = filter[len(filter)-1]
				filter = filter[:len(filter)-1]
			}
			if len(filter) > 0 {
				split[p] = append(split[p], filter)
			}
		}
		if i != len(sources) {
			return split, false
		}
	}
	return split, true
}

// uniqueCombinations returns all n-tuples of distinct values in [0, 4), last
// position running fastest.
//
func uniqueCombinations(n int) [][]int {
	shape := make([]int, n)
	for i := range shape {
		shape[i] = coord.PADIBusOnPADIBusBlockSize
	}
	var r [][]int
	for it := multidim.New(shape); !it.Done(); it.Next() {
		v := it.Value()
		var seen [coord.PADIBusOnPADIBusBlockSize]bool
		unique := true
		for _, x := range v {
			if seen[x] {
				unique = false
				break
			}
			seen[x] = true
		}
		if unique {
			r = append(r, append([]int(nil), v...))
		}
	}
	return r
}

// internalRequests returns one request per chunk of internal sources on bus b
// of the given backend block. Each chunk requests drivers on bus b of both
// hemispheres. Its candidate labels share the two bits of b and the backend
// block bit and differ from the labels of the other chunks.
//
func internalRequests(filter [][]int, b coord.PADIBusOnBlock, block int, drivers *[coord.PADIBusOnDLSSize][]int) []dls.AllocationRequest {
	reqs := make([]dls.AllocationRequest, len(filter))
	for i := range filter {
		reqs[i].Shapes = make(map[coord.PADIBus][]padibus.Shape)
		for h := coord.Hemisphere(0); h < coord.HemisphereOnDLSSize; h++ {
			p := coord.NewPADIBus(b, h)
			reqs[i].Shapes[p] = []padibus.Shape{{Size: drivers[p][i]}}
		}
	}
	fixture := int(b)<<2 | block<<4
	for _, ls := range uniqueCombinations(len(filter)) {
		for i, l := range ls {
			reqs[i].Labels = append(reqs[i].Labels, coord.Label(fixture+l))
		}
	}
	return reqs
}

// backgroundRequests returns one request per chunk of background sources on
// PADI bus p. Chunks of one bus must get distinct labels; one, two or four
// chunks are supported.
//
func backgroundRequests(filter [][]int, p coord.PADIBus, drivers []int) ([]dls.AllocationRequest, error) {
	reqs := make([]dls.AllocationRequest, len(filter))
	for i := range filter {
		reqs[i].Shapes = map[coord.PADIBus][]padibus.Shape{p: {{Size: drivers[i]}}}
	}
	switch len(filter) {
	case 1:
		reqs[0].Labels = allLabels()
	case 2:
		for i := 0; i < coord.LabelSize/2; i++ {
			reqs[0].Labels = append(reqs[0].Labels, coord.Label(2*i), coord.Label(2*i+1))
			reqs[1].Labels = append(reqs[1].Labels, coord.Label(2*i+1), coord.Label(2*i))
		}
	case 4:
		combinations := uniqueCombinations(4)
		for i := 0; i < coord.LabelSize/4; i++ {
			for _, ls := range combinations {
				for j, l := range ls {
					reqs[j].Labels = append(reqs[j].Labels, coord.Label(l+4*i))
				}
			}
		}
	default:
		return nil, errors.Errorf("unexpected number of splits for background sources on %v: %d", p, len(filter))
	}
	return reqs, nil
}

// externalRequest returns the request of a chunk of external sources on PADI
// bus p. Any label will do.
//
func externalRequest(p coord.PADIBus, drivers int) dls.AllocationRequest {
	return dls.AllocationRequest{
		Shapes: map[coord.PADIBus][]padibus.Shape{p: {{Size: drivers}}},
		Labels: allLabels(),
	}
}

func allLabels() []coord.Label {
	ls := make([]coord.Label, coord.LabelSize)
	for i := range ls {
		ls[i] = coord.Label(i)
	}
	return ls
}

// Group is a set of sources sharing a label, identified by their index in
// the source list of their kind, together with the synapse driver request
// serving them.
//
type Group struct {
	Sources []int
	Request dls.AllocationRequest
}

// Valid returns an error if the sources of g are not unique, if there are
// too many for distinct synapse labels or if the request is not valid.
//
func (g *Group) Valid() error {
	seen := make(map[int]bool, len(g.Sources))
	for _, s := range g.Sources {
		if seen[s] {
			return errors.New("partitioned source group indices are not unique")
		}
		seen[s] = true
	}
	if len(g.Sources) > coord.SynapseLabelSize {
		return errors.Errorf("too many sources in group: %d", len(g.Sources))
	}
	if !g.Request.Valid() {
		return errors.New("synapse driver allocation request of group not valid")
	}
	return nil
}

func (g *Group) String() string {
	var b strings.Builder
	b.WriteString("Group(\n\t")
	for i, s := range g.Sources {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprint(&b, s)
	}
	b.WriteString("\n\t")
	b.WriteString(strings.Replace(g.Request.String(), "\n", "\n\t", -1))
	b.WriteString("\n)")
	return b.String()
}

// Partition is the result of a Manager: the groups of each source kind.
//
type Partition struct {
	Internal   []Group
	Background []Group
	External   []Group
}

// Valid returns the first error of any group.
//
func (p *Partition) Valid() error {
	for _, kind := range []struct {
		name   string
		groups []Group
	}{{"internal", p.Internal}, {"background", p.Background}, {"external", p.External}} {
		for i := range kind.groups {
			if err := kind.groups[i].Valid(); err != nil {
				return errors.Wrapf(err, "%s group %d", kind.name, i)
			}
		}
	}
	return nil
}

// Requests returns the allocation requests of all groups: internal, then
// background, then external.
//
func (p *Partition) Requests() []dls.AllocationRequest {
	var reqs []dls.AllocationRequest
	for _, gs := range [][]Group{p.Internal, p.Background, p.External} {
		for i := range gs {
			reqs = append(reqs, gs[i].Request)
		}
	}
	return reqs
}

func (p *Partition) String() string {
	var b strings.Builder
	b.WriteString("Partition(\n")
	for _, kind := range []struct {
		name   string
		groups []Group
	}{{"internal", p.Internal}, {"background", p.Background}, {"external", p.External}} {
		fmt.Fprintf(&b, "\t%s:\n", kind.name)
		for i := range kind.groups {
			b.WriteString("\t\t")
			b.WriteString(strings.Replace(kind.groups[i].String(), "\n", "\n\t\t", -1))
			b.WriteRune('\n')
		}
	}
	b.WriteRune(')')
	return b.String()
}
