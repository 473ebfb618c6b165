package grenade

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/pkg/errors"
)

// PlacedConnection is a hardware synapse: its weight, the synapse label it
// matches and its location on the synapse array.
//
type PlacedConnection struct {
	Weight int
	Label  coord.SynapseLabel
	Row    coord.SynapseRowOnDLS
	// Column is the synapse on the row, equal to the target neuron column.
	Column int
}

// InternalLabel is the event label a neuron sends. Neurons which are
// neither recorded nor a source have no label.
//
type InternalLabel struct {
	Label coord.NeuronBackendAddressOut
	Valid bool
}

// TimingStatistics holds the duration of the routing steps.
//
type TimingStatistics struct {
	Routing time.Duration
}

// RoutingResult is the hardware configuration realizing a network.
//
type RoutingResult struct {
	// Connections holds, for each connection of each projection, the
	// hardware synapses realizing it.
	Connections map[ProjectionDescriptor][][]PlacedConnection

	InternalNeuronLabels map[PopulationDescriptor][]InternalLabel
	// ExternalSpikeLabels holds, per source, one label per PADI bus the
	// source is routed to. Sources without connections have none.
	ExternalSpikeLabels         map[PopulationDescriptor][][]coord.SpikeLabel
	BackgroundSpikeSourceLabels map[PopulationDescriptor]map[coord.Hemisphere]coord.NeuronLabel

	CrossbarNodes             map[coord.CrossbarNodeOnDLS]coord.CrossbarNode
	SynapseDriverCompareMasks map[coord.SynapseDriverOnDLS]coord.Mask
	SynapseRowModes           map[coord.SynapseRowOnDLS]coord.RowMode

	TimingStatistics TimingStatistics
}

func newRoutingResult() *RoutingResult {
	return &RoutingResult{
		Connections:                 make(map[ProjectionDescriptor][][]PlacedConnection),
		InternalNeuronLabels:        make(map[PopulationDescriptor][]InternalLabel),
		ExternalSpikeLabels:         make(map[PopulationDescriptor][][]coord.SpikeLabel),
		BackgroundSpikeSourceLabels: make(map[PopulationDescriptor]map[coord.Hemisphere]coord.NeuronLabel),
		CrossbarNodes:               make(map[coord.CrossbarNodeOnDLS]coord.CrossbarNode),
		SynapseDriverCompareMasks:   make(map[coord.SynapseDriverOnDLS]coord.Mask),
		SynapseRowModes:             make(map[coord.SynapseRowOnDLS]coord.RowMode),
	}
}

// ApplyWeights updates the weights of all placed connections from net. The
// topology of net must equal the routed one, as checked by RequiresRouting.
//
func (r *RoutingResult) ApplyWeights(net *Network) error {
	for _, pd := range net.Projections() {
		p := net.mustProjection(pd)
		placed, ok := r.Connections[pd]
		if !ok || len(placed) != len(p.Connections) {
			return errors.Errorf("projection %v not routed", pd)
		}
		for i, c := range p.Connections {
			ws, err := WeightSplit(c.Weight, len(placed[i]))
			if err != nil {
				return errors.Wrapf(err, "projection %v, connection %d", pd, i)
			}
			for k := range placed[i] {
				placed[i][k].Weight = ws[k]
			}
		}
	}
	return nil
}

// SynapseDriversPerPADIBus returns the number of configured synapse drivers
// on each PADI bus.
//
func (r *RoutingResult) SynapseDriversPerPADIBus() [coord.PADIBusOnDLSSize]int {
	var n [coord.PADIBusOnDLSSize]int
	for d := range r.SynapseDriverCompareMasks {
		n[d.PADIBus()]++
	}
	return n
}

func (r *RoutingResult) String() string {
	var b strings.Builder
	b.WriteString("RoutingResult(\n")

	pds := make([]ProjectionDescriptor, 0, len(r.Connections))
	for pd := range r.Connections {
		pds = append(pds, pd)
	}
	sort.Slice(pds, func(i, j int) bool { return pds[i].Less(pds[j].Index) })
	for _, pd := range pds {
		n := 0
		for _, cs := range r.Connections[pd] {
			n += len(cs)
		}
		fmt.Fprintf(&b, "\tprojection %v: %d connection(s) on %d synapse(s)\n", pd, len(r.Connections[pd]), n)
	}
	for p, n := range r.SynapseDriversPerPADIBus() {
		fmt.Fprintf(&b, "\t%v: %d synapse driver(s)\n", coord.PADIBus(p), n)
	}
	enabled := 0
	for _, c := range r.CrossbarNodes {
		if c.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(&b, "\tcrossbar: %d of %d configured node(s) enabled\n", enabled, len(r.CrossbarNodes))
	fmt.Fprintf(&b, "\trouting time: %v\n)", r.TimingStatistics.Routing)
	return b.String()
}
