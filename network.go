// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package grenade

import (
	"sort"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/internal/arena"
	"github.com/pkg/errors"
)

// PopulationDescriptor identifies a population of a Network. Descriptors stay
// valid when other populations are removed.
//
type PopulationDescriptor struct{ arena.Index }

// ProjectionDescriptor identifies a projection of a Network.
//
type ProjectionDescriptor struct{ arena.Index }

// PlasticityRuleDescriptor identifies a plasticity rule of a Network.
//
type PlasticityRuleDescriptor struct{ arena.Index }

// Population is one of *NeuronPopulation, *ExternalPopulation or
// *BackgroundPopulation.
//
type Population interface {
	// Size returns the number of neurons or spike sources.
	Size() int
	isPopulation()
}

// NeuronPopulation is a population of placed atomic neurons.
//
type NeuronPopulation struct {
	Neurons []coord.AtomicNeuron
	// RecordSpikes enables spike recording per neuron. It is either nil or
	// has the same length as Neurons.
	RecordSpikes []bool
}

// ExternalPopulation is a population of off-chip spike sources.
//
type ExternalPopulation struct {
	Sources int
}

// BackgroundConfig is the configuration of the background spike sources of a
// population. It does not influence routing.
//
type BackgroundConfig struct {
	Period       uint16 `json:"period" bson:"period"`
	Rate         uint8  `json:"rate" bson:"rate"`
	Seed         uint32 `json:"seed" bson:"seed"`
	EnableRandom bool   `json:"enable_random" bson:"enable_random"`
}

// BackgroundPopulation is a population of on-chip background spike sources.
// Coordinate selects, per hemisphere, the PADI bus the population feeds.
// Sources is at most 256: the sources share the 8 bit neuron label
// remainder of their background generator.
//
type BackgroundPopulation struct {
	Sources    int
	Coordinate map[coord.Hemisphere]coord.PADIBusOnBlock
	Config     BackgroundConfig
}

func (p *NeuronPopulation) Size() int     { return len(p.Neurons) }
func (p *ExternalPopulation) Size() int   { return p.Sources }
func (p *BackgroundPopulation) Size() int { return p.Sources }

func (*NeuronPopulation) isPopulation()     {}
func (*ExternalPopulation) isPopulation()   {}
func (*BackgroundPopulation) isPopulation() {}

// Recorded returns true if spikes of neuron i are recorded.
//
func (p *NeuronPopulation) Recorded(i int) bool {
	return i < len(p.RecordSpikes) && p.RecordSpikes[i]
}

// PopulationsEqual returns true if a and b are of the same kind and equal.
// Background populations are compared by size and coordinate only.
//
func PopulationsEqual(a, b Population) bool {
	switch a := a.(type) {
	case *NeuronPopulation:
		b, ok := b.(*NeuronPopulation)
		if !ok || len(a.Neurons) != len(b.Neurons) {
			return false
		}
		for i := range a.Neurons {
			if a.Neurons[i] != b.Neurons[i] || a.Recorded(i) != b.Recorded(i) {
				return false
			}
		}
		return true
	case *ExternalPopulation:
		b, ok := b.(*ExternalPopulation)
		return ok && a.Sources == b.Sources
	case *BackgroundPopulation:
		b, ok := b.(*BackgroundPopulation)
		if !ok || a.Sources != b.Sources || len(a.Coordinate) != len(b.Coordinate) {
			return false
		}
		for h, bus := range a.Coordinate {
			if o, ok := b.Coordinate[h]; !ok || o != bus {
				return false
			}
		}
		return true
	}
	panic(errors.Errorf("unknown population type %T", a))
}

// Connection connects source IndexPre of the presynaptic population to
// neuron IndexPost of the postsynaptic population. Weights above
// coord.WeightMax are realized by several hardware synapses.
//
type Connection struct {
	IndexPre  int
	IndexPost int
	Weight    int
}

// HardwareSynapses returns the number of hardware synapses realizing a
// connection with weight w.
//
func HardwareSynapses(w int) int {
	if w <= coord.WeightMax {
		return 1
	}
	return (w + coord.WeightMax - 1) / coord.WeightMax
}

// Projection is a set of connections between two populations.
//
type Projection struct {
	Receptor    coord.ReceptorType
	Pre         PopulationDescriptor
	Post        PopulationDescriptor
	Connections []Connection
}

// PlasticityRecording is nil (no recording), *RawRecording or
// *TimedRecording.
//
type PlasticityRecording interface {
	isPlasticityRecording()
}

// RawRecording records Size bytes of plasticity kernel memory.
//
type RawRecording struct {
	Size int
}

// Observable is a named value recorded by a plasticity kernel.
//
type Observable struct {
	Name string `json:"name" bson:"name"`
	// PerSynapse selects one value per synapse of the rule's projections
	// instead of a single value.
	PerSynapse bool `json:"per_synapse" bson:"per_synapse"`
	// ElementSize is the size of a single value in bytes.
	ElementSize int `json:"element_size" bson:"element_size"`
}

// TimedRecording records observables at each kernel invocation.
//
type TimedRecording struct {
	Observables []Observable
}

func (*RawRecording) isPlasticityRecording()   {}
func (*TimedRecording) isPlasticityRecording() {}

// RecordingsEqual returns true if a and b are both nil or of the same kind
// and equal.
//
func RecordingsEqual(a, b PlasticityRecording) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case *RawRecording:
		b, ok := b.(*RawRecording)
		return ok && a.Size == b.Size
	case *TimedRecording:
		b, ok := b.(*TimedRecording)
		if !ok || len(a.Observables) != len(b.Observables) {
			return false
		}
		for i := range a.Observables {
			if a.Observables[i] != b.Observables[i] {
				return false
			}
		}
		return true
	}
	panic(errors.Errorf("unknown plasticity recording type %T", a))
}

// PlasticityRule is a plasticity kernel acting on a set of projections.
//
type PlasticityRule struct {
	Projections []ProjectionDescriptor
	// RequiresOneSourcePerRowInOrder requests that each synapse row of the
	// rule's projections serve a single source, in order of the sources.
	RequiresOneSourcePerRowInOrder bool
	Recording                      PlasticityRecording
}

// MADCRecording records the membrane of a single neuron with the MADC.
//
type MADCRecording struct {
	Neuron coord.AtomicNeuron `json:"neuron" bson:"neuron"`
	Source string             `json:"source" bson:"source"`
}

// CADCRecording records neurons with the CADC.
//
type CADCRecording struct {
	Neurons []CADCNeuron `json:"neurons" bson:"neurons"`
}

// CADCNeuron is a neuron observable recorded by the CADC.
//
type CADCNeuron struct {
	Neuron coord.AtomicNeuron `json:"neuron" bson:"neuron"`
	Source string             `json:"source" bson:"source"`
}

// Equal returns true if both recordings are nil or record the same
// neurons in the same order.
//
func (r *CADCRecording) Equal(o *CADCRecording) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.Neurons) != len(o.Neurons) {
		return false
	}
	for i := range r.Neurons {
		if r.Neurons[i] != o.Neurons[i] {
			return false
		}
	}
	return true
}

// Network is a placed spiking network. The zero value is an empty network.
//
// Populations, projections and plasticity rules are held in arenas: removal
// never invalidates the descriptors of other elements.
//
type Network struct {
	populations     arena.Arena[Population]
	projections     arena.Arena[*Projection]
	plasticityRules arena.Arena[*PlasticityRule]

	MADC *MADCRecording
	CADC *CADCRecording
}

// AddPopulation adds p to the network. Neurons must be unique within the
// network and a PADI bus is fed by at most one background population.
//
func (n *Network) AddPopulation(p Population) (PopulationDescriptor, error) {
	if err := n.checkPopulation(p); err != nil {
		return PopulationDescriptor{}, err
	}
	return PopulationDescriptor{n.populations.Add(p)}, nil
}

func (n *Network) checkPopulation(p Population) error {
	switch p := p.(type) {
	case *NeuronPopulation:
		if p.RecordSpikes != nil && len(p.RecordSpikes) != len(p.Neurons) {
			return errors.New("spike recording flags and neurons differ in length")
		}
		seen := make(map[coord.AtomicNeuron]bool)
		for _, d := range n.Populations() {
			if np, ok := n.mustPopulation(d).(*NeuronPopulation); ok {
				for _, an := range np.Neurons {
					seen[an] = true
				}
			}
		}
		for _, an := range p.Neurons {
			if an >= coord.AtomicNeuronOnDLSSize {
				return errors.Errorf("invalid neuron %d", an)
			}
			if seen[an] {
				return errors.Errorf("%v already used", an)
			}
			seen[an] = true
		}
	case *ExternalPopulation:
		if p.Sources < 0 {
			return errors.New("negative population size")
		}
	case *BackgroundPopulation:
		if p.Sources <= 0 || p.Sources > 256 {
			return errors.Errorf("background population size %d not in [1, 256]", p.Sources)
		}
		if len(p.Coordinate) == 0 {
			return errors.New("background population without coordinate")
		}
		fed := make(map[coord.PADIBus]bool)
		for _, d := range n.Populations() {
			if bp, ok := n.mustPopulation(d).(*BackgroundPopulation); ok {
				for h, bus := range bp.Coordinate {
					fed[coord.NewPADIBus(bus, h)] = true
				}
			}
		}
		for h, bus := range p.Coordinate {
			if h >= coord.HemisphereOnDLSSize || bus >= coord.PADIBusOnPADIBusBlockSize {
				return errors.Errorf("invalid background coordinate (%v, %d)", h, bus)
			}
			if fed[coord.NewPADIBus(bus, h)] {
				return errors.Errorf("%v already fed by a background population", coord.NewPADIBus(bus, h))
			}
		}
	case nil:
		return errors.New("nil population")
	default:
		panic(errors.Errorf("unknown population type %T", p))
	}
	return nil
}

// Population returns the population d.
//
func (n *Network) Population(d PopulationDescriptor) (Population, bool) {
	return n.populations.Get(d.Index)
}

func (n *Network) mustPopulation(d PopulationDescriptor) Population {
	p, ok := n.populations.Get(d.Index)
	if !ok {
		panic(errors.Errorf("population %v not in network", d))
	}
	return p
}

// Populations returns the descriptors of all populations in ascending order.
//
func (n *Network) Populations() []PopulationDescriptor {
	is := n.populations.Indices()
	ds := make([]PopulationDescriptor, len(is))
	for i, x := range is {
		ds[i] = PopulationDescriptor{x}
	}
	return ds
}

// RemovePopulation removes d and all projections from or to it.
//
func (n *Network) RemovePopulation(d PopulationDescriptor) bool {
	if !n.populations.Contains(d.Index) {
		return false
	}
	for _, pd := range n.Projections() {
		p := n.mustProjection(pd)
		if p.Pre == d || p.Post == d {
			n.RemoveProjection(pd)
		}
	}
	return n.populations.Remove(d.Index)
}

// AddProjection adds p to the network. Its populations must exist, its
// target must be a neuron population, its connection indices must be in
// range and a background source population must feed the hemisphere of all
// of its targets.
//
func (n *Network) AddProjection(p *Projection) (ProjectionDescriptor, error) {
	if err := n.checkProjection(p); err != nil {
		return ProjectionDescriptor{}, err
	}
	return ProjectionDescriptor{n.projections.Add(p)}, nil
}

func (n *Network) checkProjection(p *Projection) error {
	if p.Receptor >= coord.ReceptorTypeCount {
		return errors.Errorf("invalid receptor type %d", p.Receptor)
	}
	pre, ok := n.Population(p.Pre)
	if !ok {
		return errors.Errorf("presynaptic population %v not in network", p.Pre)
	}
	post, ok := n.Population(p.Post)
	if !ok {
		return errors.Errorf("postsynaptic population %v not in network", p.Post)
	}
	target, ok := post.(*NeuronPopulation)
	if !ok {
		return errors.New("postsynaptic population is not a neuron population")
	}
	bg, _ := pre.(*BackgroundPopulation)
	for i, c := range p.Connections {
		if c.IndexPre < 0 || c.IndexPre >= pre.Size() {
			return errors.Errorf("connection %d: presynaptic index %d out of range", i, c.IndexPre)
		}
		if c.IndexPost < 0 || c.IndexPost >= post.Size() {
			return errors.Errorf("connection %d: postsynaptic index %d out of range", i, c.IndexPost)
		}
		if c.Weight < 0 {
			return errors.Errorf("connection %d: negative weight %d", i, c.Weight)
		}
		if bg != nil {
			if _, ok := bg.Coordinate[target.Neurons[c.IndexPost].Hemisphere()]; !ok {
				return errors.Errorf("connection %d: background population does not feed the %v hemisphere", i, target.Neurons[c.IndexPost].Hemisphere())
			}
		}
	}
	return nil
}

// Projection returns the projection d.
//
func (n *Network) Projection(d ProjectionDescriptor) (*Projection, bool) {
	return n.projections.Get(d.Index)
}

func (n *Network) mustProjection(d ProjectionDescriptor) *Projection {
	p, ok := n.projections.Get(d.Index)
	if !ok {
		panic(errors.Errorf("projection %v not in network", d))
	}
	return p
}

// Projections returns the descriptors of all projections in ascending order.
//
func (n *Network) Projections() []ProjectionDescriptor {
	is := n.projections.Indices()
	ds := make([]ProjectionDescriptor, len(is))
	for i, x := range is {
		ds[i] = ProjectionDescriptor{x}
	}
	return ds
}

// RemoveProjection removes d and its references in plasticity rules.
//
func (n *Network) RemoveProjection(d ProjectionDescriptor) bool {
	if !n.projections.Remove(d.Index) {
		return false
	}
	for _, rd := range n.PlasticityRules() {
		r := n.mustPlasticityRule(rd)
		kept := r.Projections[:0]
		for _, p := range r.Projections {
			if p != d {
				kept = append(kept, p)
			}
		}
		r.Projections = kept
	}
	return true
}

// AddPlasticityRule adds r to the network. Its projections must exist.
//
func (n *Network) AddPlasticityRule(r *PlasticityRule) (PlasticityRuleDescriptor, error) {
	if err := n.checkPlasticityRule(r); err != nil {
		return PlasticityRuleDescriptor{}, err
	}
	return PlasticityRuleDescriptor{n.plasticityRules.Add(r)}, nil
}

func (n *Network) checkPlasticityRule(r *PlasticityRule) error {
	for _, p := range r.Projections {
		if !n.projections.Contains(p.Index) {
			return errors.Errorf("projection %v not in network", p)
		}
	}
	return nil
}

// PlasticityRule returns the plasticity rule d.
//
func (n *Network) PlasticityRule(d PlasticityRuleDescriptor) (*PlasticityRule, bool) {
	return n.plasticityRules.Get(d.Index)
}

func (n *Network) mustPlasticityRule(d PlasticityRuleDescriptor) *PlasticityRule {
	r, ok := n.plasticityRules.Get(d.Index)
	if !ok {
		panic(errors.Errorf("plasticity rule %v not in network", d))
	}
	return r
}

// PlasticityRules returns the descriptors of all plasticity rules in
// ascending order.
//
func (n *Network) PlasticityRules() []PlasticityRuleDescriptor {
	is := n.plasticityRules.Indices()
	ds := make([]PlasticityRuleDescriptor, len(is))
	for i, x := range is {
		ds[i] = PlasticityRuleDescriptor{x}
	}
	return ds
}

// RemovePlasticityRule removes d.
//
func (n *Network) RemovePlasticityRule(d PlasticityRuleDescriptor) bool {
	return n.plasticityRules.Remove(d.Index)
}

// neuronIndex maps every placed neuron to its population and index.
//
func (n *Network) neuronIndex() map[coord.AtomicNeuron]SourceDescriptor {
	m := make(map[coord.AtomicNeuron]SourceDescriptor)
	for _, d := range n.Populations() {
		if p, ok := n.mustPopulation(d).(*NeuronPopulation); ok {
			for i, an := range p.Neurons {
				m[an] = SourceDescriptor{d, i}
			}
		}
	}
	return m
}

// SourceDescriptor identifies a single neuron or spike source of a
// population.
//
type SourceDescriptor struct {
	Population PopulationDescriptor
	Index      int
}

// Less orders descriptors by population, then index.
//
func (s SourceDescriptor) Less(o SourceDescriptor) bool {
	if s.Population != o.Population {
		return s.Population.Less(o.Population.Index)
	}
	return s.Index < o.Index
}

func sortSources(ss []SourceDescriptor) {
	sort.Slice(ss, func(i, j int) bool { return ss[i].Less(ss[j]) })
}

// ConnectionDescriptor identifies connection Index of a projection.
//
type ConnectionDescriptor struct {
	Projection ProjectionDescriptor
	Index      int
}

// restorePopulation inserts p at descriptor d. Populations must be restored
// before the projections referring to them.
//
func (n *Network) restorePopulation(d PopulationDescriptor, p Population) error {
	if err := n.checkPopulation(p); err != nil {
		return err
	}
	if !n.populations.Restore(d.Index, p) {
		return errors.Errorf("population descriptor %v not available", d)
	}
	return nil
}

func (n *Network) restoreProjection(d ProjectionDescriptor, p *Projection) error {
	if err := n.checkProjection(p); err != nil {
		return err
	}
	if !n.projections.Restore(d.Index, p) {
		return errors.Errorf("projection descriptor %v not available", d)
	}
	return nil
}

func (n *Network) restorePlasticityRule(d PlasticityRuleDescriptor, r *PlasticityRule) error {
	if err := n.checkPlasticityRule(r); err != nil {
		return err
	}
	if !n.plasticityRules.Restore(d.Index, r) {
		return errors.Errorf("plasticity rule descriptor %v not available", d)
	}
	return nil
}
