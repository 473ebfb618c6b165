// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package grenade

import (
	"log"
	"sort"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/dls"
	"github.com/electronicvisions/grenade-sub004/source"
	"github.com/pkg/errors"
)

// ErrUnsuccessfulRouting is the cause of errors returned by Route when no
// allocation of synapse drivers serving the network was found. Use
// errors.Cause to test for it.
//
var ErrUnsuccessfulRouting = errors.New("unsuccessful routing")

// placement is the location of a hardware connection on the synapse array.
//
type placement struct {
	row    coord.SynapseRowOnDLS
	column int
}

type placementKey struct {
	conn    ConnectionDescriptor
	synapse int
}

func keyOf(c *HardwareConnection) placementKey { return placementKey{c.Connection, c.Synapse} }

// labels are the spike labels of all sources.
//
type labels struct {
	internal   map[SourceDescriptor]coord.SpikeLabel
	background map[SourceDescriptor]map[coord.Hemisphere]coord.SpikeLabel
	external   map[SourceDescriptor]map[coord.PADIBus]coord.SpikeLabel
}

type router struct {
	net    *Network
	opts   *RoutingOptions
	logger *log.Logger
	rc     *RoutingConstraints
	buses  [coord.PADIBusOnDLSSize]PADIBusConstraints
	result *RoutingResult
}

func (r *router) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf("route: "+format, args...)
	}
}

// Route computes the hardware configuration realizing net. opts may be nil.
//
// The returned error has ErrUnsuccessfulRouting as its cause if the sources
// could not be distributed over the PADI buses or no synapse driver
// allocation was found. Other errors report networks exceeding the
// resources of the chip.
//
func Route(net *Network, opts *RoutingOptions) (*RoutingResult, error) {
	start := time.Now()
	r := &router{net: net, opts: opts}
	if opts != nil {
		r.logger = opts.Logger
	}
	r.logf("starting routing using %v", opts)
	if opts != nil {
		for _, d := range opts.UnavailableSynapseDrivers {
			if !d.Valid() {
				return nil, errors.Errorf("unavailable %v out of range", d)
			}
		}
	}

	r.rc = NewRoutingConstraints(net)
	if err := r.rc.Check(); err != nil {
		return nil, errors.Wrap(err, "network exceeds routing constraints")
	}
	r.buses = r.rc.PADIBusConstraints()
	r.result = newRoutingResult()

	disabled := r.routeInternalCrossbar()
	internal, internalDesc := r.internalSources()
	background, backgroundDesc := r.backgroundSources()
	external, externalDesc := r.externalSources()

	sm := source.NewManager(disabled)
	sm.Logger = r.logger
	partition, ok, err := sm.Solve(internal, background, external)
	if err != nil {
		return nil, errors.Wrap(err, "source partitioning")
	}
	if !ok {
		return nil, errors.Wrap(ErrUnsuccessfulRouting, "source distribution not successful: "+
			"internal and background sources need more synapse drivers than a PADI bus has "+
			"or external sources do not fit the remaining ones")
	}

	var timeout *time.Duration
	dm := dls.NewManager()
	if opts != nil {
		dm = dls.NewManager(opts.UnavailableSynapseDrivers...)
		dm.Workers = opts.Workers
		timeout = opts.Timeout
	}
	dm.SetLogger(r.logger)
	allocs, ok, err := dm.Solve(partition.Requests(), opts.policy(), timeout)
	if err != nil {
		return nil, errors.Wrap(err, "synapse driver allocation")
	}
	if !ok {
		return nil, errors.Wrap(ErrUnsuccessfulRouting, "synapse driver allocation not successful")
	}

	ls := labels{
		internal:   internalLabels(internalDesc, partition, allocs),
		background: backgroundLabels(backgroundDesc, background, partition, allocs),
		external:   externalLabels(externalDesc, partition, allocs),
	}
	r.applySourceLabels(&ls)

	placed := make(map[placementKey]placement)
	offset := 0
	placeGroups(r, partition.Internal, internalDesc, internal, allocs[offset:], placed)
	offset += len(partition.Internal)
	placeGroups(r, partition.Background, backgroundDesc, background, allocs[offset:], placed)
	offset += len(partition.Background)
	placeGroups(r, partition.External, externalDesc, external, allocs[offset:], placed)

	if err := r.applyConnections(placed, &ls); err != nil {
		return nil, err
	}

	r.applyCrossbarInternal()
	r.applyCrossbarToL2()
	r.applyCrossbarFromL2()
	r.applyCrossbarFromBackground()

	r.result.TimingStatistics.Routing = time.Since(start)
	r.logf("finished routing in %v", r.result.TimingStatistics.Routing)
	return r.result, nil
}

// routeInternalCrossbar disables the crossbar nodes from event outputs to
// PADI buses which carry no internal connection from that output, and drops
// the sources of such outputs from the bus constraints.
//
func (r *router) routeInternalCrossbar() source.DisabledInternalRoutes {
	disabled := make(source.DisabledInternalRoutes)
	outputs := r.rc.NeuronEventOutputsOnPADIBus()
	for p := range r.buses {
		bus := coord.PADIBus(p)
		c := &r.buses[p]
		var sources, recorded []coord.AtomicNeuron
		for block := 0; block < coord.NeuronBackendBlockSize; block++ {
			e := coord.NewNeuronEventOutput(bus.OnBlock(), block)
			used := false
			for _, o := range outputs[p] {
				used = used || o == e
			}
			if !used {
				r.result.CrossbarNodes[coord.CrossbarNodeOnDLS{Input: e.CrossbarInput(), Output: bus.CrossbarOutput()}] = coord.CrossbarDropAll
				disabled[e] = append(disabled[e], bus.Hemisphere())
				r.logf("disabled crossbar node for %v onto %v", e, bus)
				continue
			}
			for _, n := range c.NeuronSources {
				if n.EventOutput() == e {
					sources = append(sources, n)
				}
			}
			for _, n := range c.OnlyRecordedNeurons {
				if n.EventOutput() == e {
					recorded = append(recorded, n)
				}
			}
		}
		sortNeurons(sources)
		sortNeurons(recorded)
		c.NeuronSources = sources
		c.OnlyRecordedNeurons = recorded
	}
	return disabled
}

// internalSources returns all neurons present on a PADI bus, each once.
//
func (r *router) internalSources() ([]source.InternalSource, []SourceDescriptor) {
	var sources []source.InternalSource
	index := make(map[coord.AtomicNeuron]int)
	add := func(n coord.AtomicNeuron) {
		if _, ok := index[n]; !ok {
			index[n] = len(sources)
			sources = append(sources, source.InternalSource{Neuron: n})
		}
	}
	for p := range r.buses {
		c := &r.buses[p]
		for _, n := range c.NeuronSources {
			add(n)
		}
		for _, n := range c.OnlyRecordedNeurons {
			add(n)
		}
		for _, ic := range c.InternalConnections {
			i, ok := index[ic.SourceNeuron]
			if !ok {
				panic(errors.Errorf("source %v of internal connection on %v unknown", ic.SourceNeuron, coord.PADIBus(p)))
			}
			sources[i].OutDegree.Add(ic.Receptor, ic.Target, 1)
		}
	}
	neurons := r.net.neuronIndex()
	desc := make([]SourceDescriptor, len(sources))
	for i, s := range sources {
		desc[i] = neurons[s.Neuron]
	}
	r.logf("got %d internal sources", len(sources))
	return sources, desc
}

// backgroundSources returns all sources of background populations. They
// can not be filtered before reaching their bus and thus all act as
// sources.
//
func (r *router) backgroundSources() ([]source.BackgroundSource, []SourceDescriptor) {
	var (
		sources []source.BackgroundSource
		desc    []SourceDescriptor
	)
	for p := range r.buses {
		bus := coord.PADIBus(p)
		var pd PopulationDescriptor
		found := false
		for _, d := range r.net.Populations() {
			bp, ok := r.net.mustPopulation(d).(*BackgroundPopulation)
			if !ok {
				continue
			}
			if b, ok := bp.Coordinate[bus.Hemisphere()]; ok && coord.NewPADIBus(b, bus.Hemisphere()) == bus {
				pd, found = d, true
				break
			}
		}
		if !found {
			continue
		}
		c := &r.buses[p]
		local := make([]source.BackgroundSource, c.NumBackgroundSources)
		for i := range local {
			local[i].PADIBus = bus
			desc = append(desc, SourceDescriptor{pd, i})
		}
		for _, bc := range c.BackgroundConnections {
			local[bc.Source.Index].OutDegree.Add(bc.Receptor, bc.Target, 1)
		}
		sources = append(sources, local...)
	}
	r.logf("got %d background sources", len(sources))
	return sources, desc
}

// externalSources returns the external sources with at least one
// connection, ordered by descriptor.
//
func (r *router) externalSources() ([]source.ExternalSource, []SourceDescriptor) {
	index := make(map[SourceDescriptor]int)
	var desc []SourceDescriptor
	for _, c := range r.rc.ExternalConnections() {
		if _, ok := index[c.Source]; !ok {
			index[c.Source] = 0
			desc = append(desc, c.Source)
		}
	}
	sortSources(desc)
	for i, d := range desc {
		index[d] = i
	}
	sources := make([]source.ExternalSource, len(desc))
	for _, c := range r.rc.ExternalConnections() {
		sources[index[c.Source]].OutDegree.Add(c.Receptor, c.Target, 1)
	}
	r.logf("got %d external sources", len(sources))
	return sources, desc
}

// internalLabels combines the label of each group's allocation with the
// position of the source in the group as synapse label.
//
func internalLabels(desc []SourceDescriptor, p *source.Partition, allocs []dls.Allocation) map[SourceDescriptor]coord.SpikeLabel {
	m := make(map[SourceDescriptor]coord.SpikeLabel)
	for i, g := range p.Internal {
		for k, s := range g.Sources {
			m[desc[s]] = coord.SpikeLabel(0).WithRowSelect(allocs[i].Label).WithSynapseLabel(coord.SynapseLabel(k))
		}
	}
	return m
}

func backgroundLabels(desc []SourceDescriptor, sources []source.BackgroundSource, p *source.Partition, allocs []dls.Allocation) map[SourceDescriptor]map[coord.Hemisphere]coord.SpikeLabel {
	m := make(map[SourceDescriptor]map[coord.Hemisphere]coord.SpikeLabel)
	for i, g := range p.Background {
		label := allocs[len(p.Internal)+i].Label
		for k, s := range g.Sources {
			h := sources[s].PADIBus.Hemisphere()
			if m[desc[s]] == nil {
				m[desc[s]] = make(map[coord.Hemisphere]coord.SpikeLabel)
			}
			m[desc[s]][h] = coord.SpikeLabel(0).WithRowSelect(label).WithSynapseLabel(coord.SynapseLabel(k))
		}
	}
	return m
}

// externalLabels returns one label per allocated bus for each external
// source. Bit 13 selects the hemisphere in the crossbar and the SPL1
// address the bus on the block, see applyCrossbarFromL2.
//
func externalLabels(desc []SourceDescriptor, p *source.Partition, allocs []dls.Allocation) map[SourceDescriptor]map[coord.PADIBus]coord.SpikeLabel {
	m := make(map[SourceDescriptor]map[coord.PADIBus]coord.SpikeLabel)
	for i, g := range p.External {
		a := &allocs[len(p.Internal)+len(p.Background)+i]
		for k, s := range g.Sources {
			for bus := range a.Drivers {
				if m[desc[s]] == nil {
					m[desc[s]] = make(map[coord.PADIBus]coord.SpikeLabel)
				}
				m[desc[s]][bus] = coord.SpikeLabel(0).
					WithNeuronLabel(coord.NeuronLabel(bus.Hemisphere()) << 13).
					WithRowSelect(a.Label).
					WithSynapseLabel(coord.SynapseLabel(k)).
					WithSPL1(bus.OnBlock())
			}
		}
	}
	return m
}

// backgroundRootMask clears the label bits enumerating the sources of a
// background population of the given size.
//
func backgroundRootMask(size int) coord.SpikeLabel {
	switch {
	case size <= 64:
		return 0xffc0
	case size <= 128:
		return 0xff80
	}
	return 0xff00
}

func (r *router) applySourceLabels(ls *labels) {
	neither := make(map[coord.AtomicNeuron]bool)
	for _, n := range r.rc.NeitherRecordedNorSource() {
		neither[n] = true
	}
	var unset []SourceDescriptor
	used := make(map[coord.SpikeLabel]bool)
	for _, d := range r.net.Populations() {
		switch p := r.net.mustPopulation(d).(type) {
		case *NeuronPopulation:
			local := make([]InternalLabel, len(p.Neurons))
			for i, n := range p.Neurons {
				l, ok := ls.internal[SourceDescriptor{d, i}]
				if ok {
					local[i] = InternalLabel{l.BackendAddressOut(), true}
					used[l.WithEventOutput(n.EventOutput())] = true
				} else if !neither[n] {
					unset = append(unset, SourceDescriptor{d, i})
				}
			}
			r.result.InternalNeuronLabels[d] = local
		case *ExternalPopulation:
			local := make([][]coord.SpikeLabel, p.Sources)
			for i := range local {
				byBus := ls.external[SourceDescriptor{d, i}]
				buses := make([]coord.PADIBus, 0, len(byBus))
				for b := range byBus {
					buses = append(buses, b)
				}
				sort.Slice(buses, func(i, j int) bool { return buses[i] < buses[j] })
				for _, b := range buses {
					local[i] = append(local[i], byBus[b])
				}
			}
			r.result.ExternalSpikeLabels[d] = local
		case *BackgroundPopulation:
			mask := backgroundRootMask(p.Sources)
			roots := make(map[coord.Hemisphere]map[coord.SpikeLabel]bool)
			for i := 0; i < p.Sources; i++ {
				byHemisphere, ok := ls.background[SourceDescriptor{d, i}]
				if !ok {
					panic(errors.Errorf("label of background source (%v, %d) unknown", d, i))
				}
				for h, l := range byHemisphere {
					if roots[h] == nil {
						roots[h] = make(map[coord.SpikeLabel]bool)
					}
					roots[h][l&mask] = true
				}
			}
			local := make(map[coord.Hemisphere]coord.NeuronLabel)
			for h, rs := range roots {
				if len(rs) != 1 {
					panic(errors.Errorf("background population %v has %d root labels on %v", d, len(rs), h))
				}
				for l := range rs {
					local[h] = l.NeuronLabel()
				}
			}
			r.result.BackgroundSpikeSourceLabels[d] = local
		default:
			panic(errors.Errorf("unknown population type %T", p))
		}
	}

	// recorded neurons without a source label get unused labels of their
	// event output
	for _, sd := range unset {
		n := r.net.mustPopulation(sd.Population).(*NeuronPopulation).Neurons[sd.Index]
		base := coord.SpikeLabel(0).WithEventOutput(n.EventOutput())
		found := false
		for a := 0; a < coord.NeuronBackendAddressOutSize; a++ {
			l := base.WithBackendAddressOut(coord.NeuronBackendAddressOut(a))
			if !used[l] {
				used[l] = true
				r.result.InternalNeuronLabels[sd.Population][sd.Index] = InternalLabel{l.BackendAddressOut(), true}
				found = true
				break
			}
		}
		if !found {
			panic(errors.Errorf("no label for (%v, %d) found", sd.Population, sd.Index))
		}
	}
	r.logf("assigned labels to %d recorded neuron(s) without connections", len(unset))
}

// placeGroups places the connections of the sources of each group onto the
// synapse rows of the group's allocation. allocs[i] is the allocation of
// groups[i].
//
// Rows are filled per target neuron in order:
//
//	x   x     x
//	x   x x   x
//	x x x x x x
//
func placeGroups[S source.Source](r *router, groups []source.Group, desc []SourceDescriptor, sources []S, allocs []dls.Allocation, placed map[placementKey]placement) {
	for i, g := range groups {
		local := make(map[SourceDescriptor]bool, len(g.Sources))
		var in [coord.ReceptorTypeCount]map[coord.AtomicNeuron]int
		for _, s := range g.Sources {
			local[desc[s]] = true
			for rt, ds := range sources[s].Degrees() {
				for n, k := range ds {
					if in[rt] == nil {
						in[rt] = make(map[coord.AtomicNeuron]int)
					}
					in[rt][n] += k
				}
			}
		}
		var num [coord.ReceptorTypeCount][coord.HemisphereOnDLSSize]int
		for rt := range in {
			for n, k := range in[rt] {
				if h := n.Hemisphere(); k > num[rt][h] {
					num[rt][h] = k
				}
			}
		}

		a := &allocs[i]
		buses := make([]coord.PADIBus, 0, len(a.Drivers))
		for bus := range a.Drivers {
			buses = append(buses, bus)
		}
		sort.Slice(buses, func(i, j int) bool { return buses[i] < buses[j] })

		for _, bus := range buses {
			h := bus.Hemisphere()
			var rows []coord.SynapseRowOnDLS
			// only the first shape carries rows
			for _, dm := range a.Drivers[bus].Drivers[0] {
				d := coord.NewSynapseDriverOnDLS(dm.Driver, bus)
				rs := d.Rows()
				rows = append(rows, rs[:]...)
				r.result.SynapseDriverCompareMasks[d] = dm.Mask
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i].Less(rows[j]) })

			var byReceptor [coord.ReceptorTypeCount][]coord.SynapseRowOnDLS
			o := 0
			for rt := range byReceptor {
				n := num[rt][h]
				if o+n > len(rows) {
					panic(errors.Errorf("%v: %d synapse rows allocated, %d required", bus, len(rows), o+n))
				}
				byReceptor[rt] = rows[o : o+n]
				o += n
			}
			for rt, rs := range byReceptor {
				for _, row := range rs {
					r.result.SynapseRowModes[row] = coord.ReceptorType(rt).RowMode()
					if _, ok := r.result.SynapseRowModes[row.Sibling()]; !ok {
						r.result.SynapseRowModes[row.Sibling()] = coord.RowDisabled
					}
				}
			}

			var conns []*HardwareConnection
			accept := func(c *HardwareConnection) {
				if local[c.Source] && c.Target.Hemisphere() == h {
					conns = append(conns, c)
				}
			}
			bc := &r.buses[bus]
			for k := range bc.InternalConnections {
				accept(&bc.InternalConnections[k].HardwareConnection)
			}
			for k := range bc.BackgroundConnections {
				accept(&bc.BackgroundConnections[k].HardwareConnection)
			}
			for k := range r.rc.external {
				accept(&r.rc.external[k].HardwareConnection)
			}

			for rt, rs := range byReceptor {
				count := make(map[coord.AtomicNeuron]int)
				for _, c := range conns {
					if c.Receptor != coord.ReceptorType(rt) {
						continue
					}
					k := count[c.Target]
					if k >= len(rs) {
						panic(errors.Errorf("%v: no synapse row left for connection %v to %v", bus, c.Connection, c.Target))
					}
					if _, ok := placed[keyOf(c)]; !ok {
						placed[keyOf(c)] = placement{rs[k], c.Target.Column()}
					}
					count[c.Target]++
				}
			}
		}
	}
}

// applyConnections adds the placed hardware synapses of all connections to
// the result, labelled with the synapse label of their source on the row's
// PADI bus.
//
func (r *router) applyConnections(placed map[placementKey]placement, ls *labels) error {
	for _, pd := range r.net.Projections() {
		p := r.net.mustProjection(pd)
		local := make([][]PlacedConnection, len(p.Connections))
		for i, c := range p.Connections {
			n := HardwareSynapses(c.Weight)
			ws, err := WeightSplit(c.Weight, n)
			if err != nil {
				return errors.Wrapf(err, "projection %v, connection %d", pd, i)
			}
			sd := SourceDescriptor{p.Pre, c.IndexPre}
			for k := 0; k < n; k++ {
				pl, ok := placed[placementKey{ConnectionDescriptor{pd, i}, k}]
				if !ok {
					panic(errors.Errorf("connection %d of projection %v not placed", i, pd))
				}
				var label coord.SpikeLabel
				if l, ok := ls.internal[sd]; ok {
					label = l
				} else if l, ok := ls.background[sd]; ok {
					label = l[pl.row.Hemisphere]
				} else if l, ok := ls.external[sd]; ok {
					label = l[pl.row.Driver().PADIBus()]
				} else {
					panic(errors.Errorf("label of source (%v, %d) not found", sd.Population, sd.Index))
				}
				local[i] = append(local[i], PlacedConnection{
					Weight: ws[k],
					Label:  label.SynapseLabel(),
					Row:    pl.row,
					Column: pl.column,
				})
			}
		}
		r.result.Connections[pd] = local
	}
	return nil
}

func (r *router) setDefault(n coord.CrossbarNodeOnDLS, c coord.CrossbarNode) {
	if _, ok := r.result.CrossbarNodes[n]; !ok {
		r.result.CrossbarNodes[n] = c
	}
}

// applyCrossbarInternal enables the nodes from event outputs to PADI buses
// not disabled by routeInternalCrossbar.
//
func (r *router) applyCrossbarInternal() {
	for e := coord.NeuronEventOutput(0); e < coord.NeuronEventOutputOnDLSSize; e++ {
		for h := coord.Hemisphere(0); h < coord.HemisphereOnDLSSize; h++ {
			bus := coord.NewPADIBus(e.OnBlock(), h)
			r.setDefault(coord.CrossbarNodeOnDLS{Input: e.CrossbarInput(), Output: bus.CrossbarOutput()}, coord.CrossbarForward)
		}
	}
}

// applyCrossbarToL2 enables all event outputs to L2. Events are filtered on
// the host.
//
func (r *router) applyCrossbarToL2() {
	for e := coord.NeuronEventOutput(0); e < coord.NeuronEventOutputOnDLSSize; e++ {
		n := coord.CrossbarNodeOnDLS{Input: e.CrossbarInput(), Output: coord.CrossbarOutputL2(int(e.OnBlock()))}
		r.result.CrossbarNodes[n] = coord.CrossbarForward
	}
}

// applyCrossbarFromL2 connects SPL1 address a to bus a of both blocks only.
// Bit 13 of the neuron label selects the block.
//
func (r *router) applyCrossbarFromL2() {
	for a := coord.PADIBusOnBlock(0); a < coord.SPL1AddressSize; a++ {
		for p := coord.PADIBus(0); p < coord.PADIBusOnDLSSize; p++ {
			r.result.CrossbarNodes[coord.CrossbarNodeOnDLS{Input: coord.CrossbarInputSPL1(a), Output: p.CrossbarOutput()}] = coord.CrossbarDropAll
		}
	}
	for a := coord.PADIBusOnBlock(0); a < coord.SPL1AddressSize; a++ {
		for h := coord.Hemisphere(0); h < coord.HemisphereOnDLSSize; h++ {
			n := coord.CrossbarNodeOnDLS{Input: coord.CrossbarInputSPL1(a), Output: coord.NewPADIBus(a, h).CrossbarOutput()}
			r.result.CrossbarNodes[n] = coord.CrossbarNode{
				Enabled: true,
				Mask:    1 << 13,
				Target:  coord.NeuronLabel(h) << 13,
			}
		}
	}
}

// applyCrossbarFromBackground enables all background sources. Their events
// can not be filtered.
//
func (r *router) applyCrossbarFromBackground() {
	for p := coord.PADIBus(0); p < coord.PADIBusOnDLSSize; p++ {
		s := coord.NewBackgroundSource(p)
		r.result.CrossbarNodes[coord.CrossbarNodeOnDLS{Input: s.CrossbarInput(), Output: s.PADIBus().CrossbarOutput()}] = coord.CrossbarForward
	}
}
