package grenade

import (
	"sort"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/pkg/errors"
)

// HardwareConnection is a single hardware synapse realizing (part of) a
// connection of the network.
//
type HardwareConnection struct {
	Connection ConnectionDescriptor
	// Synapse numbers the hardware synapses of a connection with a weight
	// above coord.WeightMax.
	Synapse  int
	Source   SourceDescriptor
	Target   coord.AtomicNeuron
	Receptor coord.ReceptorType
}

// InternalConnection is a hardware synapse with an on-chip neuron source.
//
type InternalConnection struct {
	HardwareConnection
	SourceNeuron coord.AtomicNeuron
}

// PADIBus returns the bus carrying the source's events to the target.
//
func (c InternalConnection) PADIBus() coord.PADIBus {
	return coord.NewPADIBus(c.SourceNeuron.EventOutput().OnBlock(), c.Target.Hemisphere())
}

// BackgroundConnection is a hardware synapse with a background spike source.
//
type BackgroundConnection struct {
	HardwareConnection
	BackgroundSource coord.BackgroundSource
}

// PADIBus returns the bus fed by the background source.
//
func (c BackgroundConnection) PADIBus() coord.PADIBus { return c.BackgroundSource.PADIBus() }

// ExternalConnection is a hardware synapse with an off-chip source. It may
// use any PADI bus of the target hemisphere.
//
type ExternalConnection struct {
	HardwareConnection
}

// PADIBusConstraints are the sources and connections bound to a single PADI
// bus.
//
type PADIBusConstraints struct {
	NumBackgroundSources  int
	InternalConnections   []InternalConnection
	BackgroundConnections []BackgroundConnection
	// NeuronSources are the neurons with outgoing connections on the bus.
	NeuronSources []coord.AtomicNeuron
	// OnlyRecordedNeurons are recorded neurons whose event output feeds the
	// bus but which have no connection on it.
	OnlyRecordedNeurons []coord.AtomicNeuron
}

// RoutingConstraints are the resource requirements of a network derived
// from its connections. All hardware connections are computed once by
// NewRoutingConstraints.
//
type RoutingConstraints struct {
	net        *Network
	internal   []InternalConnection
	background []BackgroundConnection
	external   []ExternalConnection
}

// NewRoutingConstraints returns the constraints of net. net must not be
// modified while the constraints are in use.
//
func NewRoutingConstraints(net *Network) *RoutingConstraints {
	rc := &RoutingConstraints{net: net}
	for _, pd := range net.Projections() {
		p := net.mustProjection(pd)
		pre := net.mustPopulation(p.Pre)
		post := net.mustPopulation(p.Post).(*NeuronPopulation)
		for i, c := range p.Connections {
			hc := HardwareConnection{
				Connection: ConnectionDescriptor{pd, i},
				Source:     SourceDescriptor{p.Pre, c.IndexPre},
				Target:     post.Neurons[c.IndexPost],
				Receptor:   p.Receptor,
			}
			for k := 0; k < HardwareSynapses(c.Weight); k++ {
				hc.Synapse = k
				switch pre := pre.(type) {
				case *NeuronPopulation:
					rc.internal = append(rc.internal, InternalConnection{hc, pre.Neurons[c.IndexPre]})
				case *BackgroundPopulation:
					h := hc.Target.Hemisphere()
					bus := coord.NewPADIBus(pre.Coordinate[h], h)
					rc.background = append(rc.background, BackgroundConnection{hc, coord.NewBackgroundSource(bus)})
				case *ExternalPopulation:
					rc.external = append(rc.external, ExternalConnection{hc})
				}
			}
		}
	}
	return rc
}

// InternalConnections returns the hardware synapses with neuron sources.
//
func (rc *RoutingConstraints) InternalConnections() []InternalConnection { return rc.internal }

// BackgroundConnections returns the hardware synapses with background sources.
//
func (rc *RoutingConstraints) BackgroundConnections() []BackgroundConnection { return rc.background }

// ExternalConnections returns the hardware synapses with off-chip sources.
//
func (rc *RoutingConstraints) ExternalConnections() []ExternalConnection { return rc.external }

// Check returns an error if the network can not be routed regardless of the
// allocation: a neuron with more inputs than synapse rows, a neuron with
// more inputs on a single PADI bus than the bus has rows, or a PADI bus
// needing more rows than it drives.
//
func (rc *RoutingConstraints) Check() error {
	const rowsPerBus = coord.SynapseDriverOnPADIBusSize * coord.SynapseRowOnSynapseDriverSize
	for n, d := range rc.NeuronInDegree() {
		if d > coord.SynapseRowOnSynramSize {
			return errors.Errorf("%v has in-degree %d larger than the number of synapse rows (%d)", n, d, coord.SynapseRowOnSynramSize)
		}
	}
	for n, ds := range rc.NeuronInDegreePerPADIBus() {
		for b, d := range ds {
			if d > rowsPerBus {
				return errors.Errorf("%v has in-degree %d on PADI bus %d larger than the number of its synapse rows (%d)", n, d, b, rowsPerBus)
			}
		}
	}
	for p, n := range rc.NumSynapseRowsPerPADIBus() {
		if n > rowsPerBus {
			return errors.Errorf("%v requires %d synapse rows, only %d available", coord.PADIBus(p), n, rowsPerBus)
		}
	}
	return nil
}

func (rc *RoutingConstraints) each(f func(c *HardwareConnection, bus *coord.PADIBus)) {
	for i := range rc.internal {
		p := rc.internal[i].PADIBus()
		f(&rc.internal[i].HardwareConnection, &p)
	}
	for i := range rc.background {
		p := rc.background[i].PADIBus()
		f(&rc.background[i].HardwareConnection, &p)
	}
	for i := range rc.external {
		f(&rc.external[i].HardwareConnection, nil)
	}
}

// NeuronInDegree returns the number of hardware synapses targeting each
// neuron.
//
func (rc *RoutingConstraints) NeuronInDegree() map[coord.AtomicNeuron]int {
	m := make(map[coord.AtomicNeuron]int)
	rc.each(func(c *HardwareConnection, _ *coord.PADIBus) { m[c.Target]++ })
	return m
}

// NeuronInDegreePerPADIBus returns the number of hardware synapses with
// internal or background sources targeting each neuron, per bus of the
// neuron's hemisphere.
//
func (rc *RoutingConstraints) NeuronInDegreePerPADIBus() map[coord.AtomicNeuron][coord.PADIBusOnPADIBusBlockSize]int {
	m := make(map[coord.AtomicNeuron][coord.PADIBusOnPADIBusBlockSize]int)
	rc.each(func(c *HardwareConnection, p *coord.PADIBus) {
		if p == nil {
			return
		}
		d := m[c.Target]
		d[p.OnBlock()]++
		m[c.Target] = d
	})
	return m
}

// NeuronInDegreePerReceptorType returns the number of hardware synapses
// targeting each neuron per receptor type.
//
func (rc *RoutingConstraints) NeuronInDegreePerReceptorType() map[coord.AtomicNeuron][coord.ReceptorTypeCount]int {
	m := make(map[coord.AtomicNeuron][coord.ReceptorTypeCount]int)
	rc.each(func(c *HardwareConnection, _ *coord.PADIBus) {
		d := m[c.Target]
		d[c.Receptor]++
		m[c.Target] = d
	})
	return m
}

// NumSynapseRowsPerPADIBusPerReceptorType returns the number of synapse
// rows each bus needs for its internal and background sources: the largest
// in-degree of a neuron of the bus's hemisphere from that bus.
//
func (rc *RoutingConstraints) NumSynapseRowsPerPADIBusPerReceptorType() [coord.PADIBusOnDLSSize][coord.ReceptorTypeCount]int {
	in := make(map[coord.AtomicNeuron]*[coord.PADIBusOnPADIBusBlockSize][coord.ReceptorTypeCount]int)
	rc.each(func(c *HardwareConnection, p *coord.PADIBus) {
		if p == nil {
			return
		}
		d, ok := in[c.Target]
		if !ok {
			d = new([coord.PADIBusOnPADIBusBlockSize][coord.ReceptorTypeCount]int)
			in[c.Target] = d
		}
		d[p.OnBlock()][c.Receptor]++
	})
	var num [coord.PADIBusOnDLSSize][coord.ReceptorTypeCount]int
	for n, d := range in {
		for b := range d {
			p := coord.NewPADIBus(coord.PADIBusOnBlock(b), n.Hemisphere())
			for r, k := range d[b] {
				if k > num[p][r] {
					num[p][r] = k
				}
			}
		}
	}
	return num
}

// NumSynapseRowsPerPADIBus sums NumSynapseRowsPerPADIBusPerReceptorType over
// receptor types.
//
func (rc *RoutingConstraints) NumSynapseRowsPerPADIBus() [coord.PADIBusOnDLSSize]int {
	var num [coord.PADIBusOnDLSSize]int
	for p, rs := range rc.NumSynapseRowsPerPADIBusPerReceptorType() {
		for _, k := range rs {
			num[p] += k
		}
	}
	return num
}

func sortNeurons(ns []coord.AtomicNeuron) {
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
}

// NeuronsOnEventOutput returns the recorded neurons of each event output in
// ascending order.
//
func (rc *RoutingConstraints) NeuronsOnEventOutput() [coord.NeuronEventOutputOnDLSSize][]coord.AtomicNeuron {
	var r [coord.NeuronEventOutputOnDLSSize][]coord.AtomicNeuron
	for _, d := range rc.net.Populations() {
		p, ok := rc.net.mustPopulation(d).(*NeuronPopulation)
		if !ok {
			continue
		}
		for i, n := range p.Neurons {
			if p.Recorded(i) {
				r[n.EventOutput()] = append(r[n.EventOutput()], n)
			}
		}
	}
	for i := range r {
		sortNeurons(r[i])
	}
	return r
}

// NeitherRecordedNorSource returns the neurons which are neither recorded nor
// the source of a connection, in ascending order.
//
func (rc *RoutingConstraints) NeitherRecordedNorSource() []coord.AtomicNeuron {
	sources := make(map[coord.AtomicNeuron]bool)
	for _, c := range rc.internal {
		sources[c.SourceNeuron] = true
	}
	var r []coord.AtomicNeuron
	for _, d := range rc.net.Populations() {
		p, ok := rc.net.mustPopulation(d).(*NeuronPopulation)
		if !ok {
			continue
		}
		for i, n := range p.Neurons {
			if !p.Recorded(i) && !sources[n] {
				r = append(r, n)
			}
		}
	}
	sortNeurons(r)
	return r
}

// NeuronsOnPADIBus returns the source neurons of internal connections per
// bus, unique and in ascending order.
//
func (rc *RoutingConstraints) NeuronsOnPADIBus() [coord.PADIBusOnDLSSize][]coord.AtomicNeuron {
	var seen [coord.PADIBusOnDLSSize]map[coord.AtomicNeuron]bool
	var r [coord.PADIBusOnDLSSize][]coord.AtomicNeuron
	for _, c := range rc.internal {
		p := c.PADIBus()
		if seen[p] == nil {
			seen[p] = make(map[coord.AtomicNeuron]bool)
		}
		if !seen[p][c.SourceNeuron] {
			seen[p][c.SourceNeuron] = true
			r[p] = append(r[p], c.SourceNeuron)
		}
	}
	for i := range r {
		sortNeurons(r[i])
	}
	return r
}

// NumBackgroundSourcesOnPADIBus returns the number of background sources
// feeding each bus.
//
func (rc *RoutingConstraints) NumBackgroundSourcesOnPADIBus() [coord.PADIBusOnDLSSize]int {
	var r [coord.PADIBusOnDLSSize]int
	for _, d := range rc.net.Populations() {
		p, ok := rc.net.mustPopulation(d).(*BackgroundPopulation)
		if !ok {
			continue
		}
		for h, b := range p.Coordinate {
			r[coord.NewPADIBus(b, h)] = p.Sources
		}
	}
	return r
}

// NeuronEventOutputsOnPADIBus returns the event outputs of the internal
// connections of each bus, unique and in ascending order.
//
func (rc *RoutingConstraints) NeuronEventOutputsOnPADIBus() [coord.PADIBusOnDLSSize][]coord.NeuronEventOutput {
	var r [coord.PADIBusOnDLSSize][]coord.NeuronEventOutput
	for p, ns := range rc.NeuronsOnPADIBus() {
		seen := make(map[coord.NeuronEventOutput]bool)
		for _, n := range ns {
			if e := n.EventOutput(); !seen[e] {
				seen[e] = true
				r[p] = append(r[p], e)
			}
		}
		sort.Slice(r[p], func(i, j int) bool { return r[p][i] < r[p][j] })
	}
	return r
}

// PADIBusConstraints returns the constraints of each bus.
//
func (rc *RoutingConstraints) PADIBusConstraints() [coord.PADIBusOnDLSSize]PADIBusConstraints {
	var r [coord.PADIBusOnDLSSize]PADIBusConstraints
	background := rc.NumBackgroundSourcesOnPADIBus()
	neurons := rc.NeuronsOnPADIBus()
	recorded := rc.NeuronsOnEventOutput()
	for p := range r {
		bus := coord.PADIBus(p)
		c := &r[p]
		c.NumBackgroundSources = background[p]
		for _, ic := range rc.internal {
			if ic.PADIBus() == bus {
				c.InternalConnections = append(c.InternalConnections, ic)
			}
		}
		for _, bc := range rc.background {
			if bc.PADIBus() == bus {
				c.BackgroundConnections = append(c.BackgroundConnections, bc)
			}
		}
		c.NeuronSources = neurons[p]
		sources := make(map[coord.AtomicNeuron]bool, len(neurons[p]))
		for _, n := range neurons[p] {
			sources[n] = true
		}
		for block := 0; block < coord.NeuronBackendBlockSize; block++ {
			for _, n := range recorded[coord.NewNeuronEventOutput(bus.OnBlock(), block)] {
				if !sources[n] {
					c.OnlyRecordedNeurons = append(c.OnlyRecordedNeurons, n)
				}
			}
		}
		sortNeurons(c.OnlyRecordedNeurons)
	}
	return r
}
