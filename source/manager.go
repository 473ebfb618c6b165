package source

import (
	"log"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/dls"
	"github.com/pkg/errors"
)

// DisabledInternalRoutes lists, per neuron event output, the hemispheres
// whose PADI bus does not receive events from that output.
//
type DisabledInternalRoutes map[coord.NeuronEventOutput][]coord.Hemisphere

// Manager partitions sources into groups.
//
type Manager struct {
	disabled DisabledInternalRoutes

	// Logger receives debug output. Nil disables logging.
	Logger *log.Logger
}

// NewManager returns a manager honoring the given disabled internal routes.
//
func NewManager(disabled DisabledInternalRoutes) *Manager {
	return &Manager{disabled: disabled}
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Printf("source: "+format, args...)
	}
}

func sum(ns []int) int {
	s := 0
	for _, n := range ns {
		s += n
	}
	return s
}

// Solve partitions the sources. Internal sources are grouped by the PADI bus
// their event output feeds, background sources by their PADI bus, and
// external sources fill the synapse drivers left on each bus.
//
// It returns false if the sources need more synapse drivers than available.
// An error is returned if an internal source needs drivers behind a disabled
// route or if a bus carries an unsupported number of background source
// groups.
//
func (m *Manager) Solve(internal []InternalSource, background []BackgroundSource, external []ExternalSource) (*Partition, bool, error) {
	var (
		internalPerBus      [coord.NeuronBackendBlockSize][coord.PADIBusOnPADIBusBlockSize][]int
		internalSplit       [coord.NeuronBackendBlockSize][coord.PADIBusOnPADIBusBlockSize][][]int
		internalDrivers     [coord.NeuronBackendBlockSize][coord.PADIBusOnDLSSize][]int
		backgroundPerBus    [coord.PADIBusOnDLSSize][]int
		backgroundSplit     [coord.PADIBusOnDLSSize][][]int
		backgroundDrivers   [coord.PADIBusOnDLSSize][]int
		externalDrivers     [coord.PADIBusOnDLSSize][]int
		used                [coord.PADIBusOnDLSSize]int
		dependentLabelGroup dls.DependentLabelGroup
	)

	for i, s := range internal {
		internalPerBus[s.BackendBlock()][s.PADIBusOnBlock()] = append(internalPerBus[s.BackendBlock()][s.PADIBusOnBlock()], i)
	}
	for block := range internalPerBus {
		for b := range internalPerBus[block] {
			internalSplit[block][b] = SplitLinear(internalPerBus[block][b])
			m.logf("got %d internal sources in %d chunk(s) on (backend block %d, bus %d)",
				len(internalPerBus[block][b]), len(internalSplit[block][b]), block, b)
			for _, split := range internalSplit[block][b] {
				n := NumSynapseDrivers(internal, split)
				for h := coord.Hemisphere(0); h < coord.HemisphereOnDLSSize; h++ {
					p := coord.NewPADIBus(coord.PADIBusOnBlock(b), h)
					internalDrivers[block][p] = append(internalDrivers[block][p], n[h])
				}
			}
		}
	}

	for i, s := range background {
		backgroundPerBus[s.PADIBus] = append(backgroundPerBus[s.PADIBus], i)
	}
	for p := range backgroundPerBus {
		backgroundSplit[p] = SplitLinear(backgroundPerBus[p])
		for _, split := range backgroundSplit[p] {
			n := NumSynapseDrivers(background, split)
			backgroundDrivers[p] = append(backgroundDrivers[p], n[coord.PADIBus(p).Hemisphere()])
		}
		m.logf("got %d background sources in %d chunk(s) on %v requiring %d synapse drivers",
			len(backgroundPerBus[p]), len(backgroundSplit[p]), coord.PADIBus(p), sum(backgroundDrivers[p]))
	}

	for p := range used {
		for block := range internalDrivers {
			used[p] += sum(internalDrivers[block][p])
		}
		used[p] += sum(backgroundDrivers[p])
		if used[p] > coord.SynapseDriverOnPADIBusSize {
			m.logf("internal and background sources require %d synapse drivers on %v", used[p], coord.PADIBus(p))
			return nil, false, nil
		}
	}

	externalSplit, ok := DistributeExternalSourcesLinear(external, used)
	if !ok {
		m.logf("not all %d external sources could be distributed", len(external))
		return nil, false, nil
	}
	for p := range externalSplit {
		for _, split := range externalSplit[p] {
			n := NumSynapseDrivers(external, split)
			externalDrivers[p] = append(externalDrivers[p], n[coord.PADIBus(p).Hemisphere()])
		}
		m.logf("got %d external source chunk(s) on %v requiring %d synapse drivers",
			len(externalSplit[p]), coord.PADIBus(p), sum(externalDrivers[p]))
	}

	partition := &Partition{}

	// dependent label groups only need to be unique
	for b := coord.PADIBusOnBlock(0); b < coord.PADIBusOnPADIBusBlockSize; b++ {
		for block := 0; block < coord.NeuronBackendBlockSize; block++ {
			split := internalSplit[block][b]
			if len(split) == 0 {
				continue
			}
			reqs := internalRequests(split, b, block, &internalDrivers[block])
			out := coord.NewNeuronEventOutput(b, block)
			for i := range reqs {
				for _, h := range m.disabled[out] {
					p := coord.NewPADIBus(b, h)
					shapes, ok := reqs[i].Shapes[p]
					if !ok {
						continue
					}
					for _, s := range shapes {
						if s.Size != 0 {
							return nil, false, errors.Errorf("%v requires event transfer across disabled internal route to %v", out, p)
						}
					}
					delete(reqs[i].Shapes, p)
				}
				if len(reqs) > 1 {
					reqs[i].DependentLabelGroup = dls.Group(dependentLabelGroup)
				}
				partition.Internal = append(partition.Internal, Group{Sources: split[i], Request: reqs[i]})
			}
			if len(reqs) > 1 {
				dependentLabelGroup++
			}
		}
	}

	for p := range backgroundSplit {
		split := backgroundSplit[p]
		if len(split) == 0 {
			continue
		}
		reqs, err := backgroundRequests(split, coord.PADIBus(p), backgroundDrivers[p])
		if err != nil {
			return nil, false, err
		}
		for i := range reqs {
			if len(reqs) > 1 {
				reqs[i].DependentLabelGroup = dls.Group(dependentLabelGroup)
			}
			partition.Background = append(partition.Background, Group{Sources: split[i], Request: reqs[i]})
		}
		if len(reqs) > 1 {
			dependentLabelGroup++
		}
	}

	for p := range externalSplit {
		for i, split := range externalSplit[p] {
			partition.External = append(partition.External, Group{
				Sources: split,
				Request: externalRequest(coord.PADIBus(p), externalDrivers[p][i]),
			})
		}
	}

	if err := partition.Valid(); err != nil {
		panic(errors.Wrap(err, "constructed source partitioning is not valid"))
	}
	m.logf("constructed source partitioning: %v", partition)
	return partition, true, nil
}
