package grenade

import (
	"sort"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/internal/arena"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// SnapshotFormat is the version of the snapshot layout. Snapshots are
// readable by any version with the same major version.
//
const SnapshotFormat = "v1.0.0"

// Ref is the serialized form of a descriptor. A zero Generation refers to
// the first generation, so hand written documents may give slots only.
//
type Ref struct {
	Slot       uint32 `json:"slot" bson:"slot"`
	Generation uint32 `json:"generation,omitempty" bson:"generation"`
}

func refOf(i arena.Index) Ref { return Ref{i.Slot, i.Generation} }

func (r Ref) index() arena.Index {
	if r.Generation == 0 {
		return arena.Index{Slot: r.Slot, Generation: 1}
	}
	return arena.Index{Slot: r.Slot, Generation: r.Generation}
}

// Population kinds of PopulationDoc.
//
const (
	KindNeuron     = "neuron"
	KindExternal   = "external"
	KindBackground = "background"
)

// Plasticity recording kinds of RecordingDoc.
//
const (
	KindRaw   = "raw"
	KindTimed = "timed"
)

// BusDoc is a PADI bus of a background population coordinate.
//
type BusDoc struct {
	Hemisphere int `json:"hemisphere" bson:"hemisphere"`
	Bus        int `json:"bus" bson:"bus"`
}

// PopulationDoc is the serialized form of a Population.
//
type PopulationDoc struct {
	Ref          `bson:",inline"`
	Kind         string            `json:"kind" bson:"kind"`
	Neurons      []int             `json:"neurons,omitempty" bson:"neurons,omitempty"`
	RecordSpikes []bool            `json:"record_spikes,omitempty" bson:"record_spikes,omitempty"`
	Size         int               `json:"size,omitempty" bson:"size,omitempty"`
	Coordinate   []BusDoc          `json:"coordinate,omitempty" bson:"coordinate,omitempty"`
	Config       *BackgroundConfig `json:"config,omitempty" bson:"config,omitempty"`
}

// ConnectionDoc is the serialized form of a Connection.
//
type ConnectionDoc struct {
	Pre    int `json:"pre" bson:"pre"`
	Post   int `json:"post" bson:"post"`
	Weight int `json:"weight" bson:"weight"`
}

// ProjectionDoc is the serialized form of a Projection.
//
type ProjectionDoc struct {
	Ref         `bson:",inline"`
	Receptor    string          `json:"receptor" bson:"receptor"`
	Pre         Ref             `json:"pre" bson:"pre"`
	Post        Ref             `json:"post" bson:"post"`
	Connections []ConnectionDoc `json:"connections" bson:"connections"`
}

// RecordingDoc is the serialized form of a PlasticityRecording.
//
type RecordingDoc struct {
	Kind        string       `json:"kind" bson:"kind"`
	Size        int          `json:"size,omitempty" bson:"size,omitempty"`
	Observables []Observable `json:"observables,omitempty" bson:"observables,omitempty"`
}

// PlasticityRuleDoc is the serialized form of a PlasticityRule.
//
type PlasticityRuleDoc struct {
	Ref                            `bson:",inline"`
	Projections                    []Ref         `json:"projections" bson:"projections"`
	RequiresOneSourcePerRowInOrder bool          `json:"requires_one_source_per_row_in_order" bson:"requires_one_source_per_row_in_order"`
	Recording                      *RecordingDoc `json:"recording,omitempty" bson:"recording,omitempty"`
}

// NetworkDoc is the serialized form of a Network.
//
type NetworkDoc struct {
	Populations     []PopulationDoc     `json:"populations" bson:"populations"`
	Projections     []ProjectionDoc     `json:"projections" bson:"projections"`
	PlasticityRules []PlasticityRuleDoc `json:"plasticity_rules,omitempty" bson:"plasticity_rules,omitempty"`
	MADC            *MADCRecording      `json:"madc,omitempty" bson:"madc,omitempty"`
	CADC            *CADCRecording      `json:"cadc,omitempty" bson:"cadc,omitempty"`
}

func parseReceptor(s string) (coord.ReceptorType, error) {
	for r := coord.ReceptorType(0); r < coord.ReceptorTypeCount; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, errors.Errorf("unknown receptor type %q", s)
}

// EncodeNetwork returns the serialized form of net.
//
func EncodeNetwork(net *Network) *NetworkDoc {
	doc := &NetworkDoc{MADC: net.MADC, CADC: net.CADC}
	for _, d := range net.Populations() {
		pd := PopulationDoc{Ref: refOf(d.Index)}
		switch p := net.mustPopulation(d).(type) {
		case *NeuronPopulation:
			pd.Kind = KindNeuron
			pd.Neurons = make([]int, len(p.Neurons))
			for i, n := range p.Neurons {
				pd.Neurons[i] = int(n)
			}
			pd.RecordSpikes = p.RecordSpikes
		case *ExternalPopulation:
			pd.Kind = KindExternal
			pd.Size = p.Sources
		case *BackgroundPopulation:
			pd.Kind = KindBackground
			pd.Size = p.Sources
			for h, b := range p.Coordinate {
				pd.Coordinate = append(pd.Coordinate, BusDoc{int(h), int(b)})
			}
			sort.Slice(pd.Coordinate, func(i, j int) bool { return pd.Coordinate[i].Hemisphere < pd.Coordinate[j].Hemisphere })
			cfg := p.Config
			pd.Config = &cfg
		}
		doc.Populations = append(doc.Populations, pd)
	}
	for _, d := range net.Projections() {
		p := net.mustProjection(d)
		pd := ProjectionDoc{
			Ref:         refOf(d.Index),
			Receptor:    p.Receptor.String(),
			Pre:         refOf(p.Pre.Index),
			Post:        refOf(p.Post.Index),
			Connections: make([]ConnectionDoc, len(p.Connections)),
		}
		for i, c := range p.Connections {
			pd.Connections[i] = ConnectionDoc{c.IndexPre, c.IndexPost, c.Weight}
		}
		doc.Projections = append(doc.Projections, pd)
	}
	for _, d := range net.PlasticityRules() {
		r := net.mustPlasticityRule(d)
		rd := PlasticityRuleDoc{Ref: refOf(d.Index), RequiresOneSourcePerRowInOrder: r.RequiresOneSourcePerRowInOrder}
		for _, p := range r.Projections {
			rd.Projections = append(rd.Projections, refOf(p.Index))
		}
		switch rec := r.Recording.(type) {
		case *RawRecording:
			rd.Recording = &RecordingDoc{Kind: KindRaw, Size: rec.Size}
		case *TimedRecording:
			rd.Recording = &RecordingDoc{Kind: KindTimed, Observables: rec.Observables}
		}
		doc.PlasticityRules = append(doc.PlasticityRules, rd)
	}
	return doc
}

// Decode returns the network described by doc. All elements are validated
// as by the Add methods of Network.
//
func (doc *NetworkDoc) Decode() (*Network, error) {
	net := &Network{MADC: doc.MADC, CADC: doc.CADC}
	for i, pd := range doc.Populations {
		var p Population
		switch pd.Kind {
		case KindNeuron:
			np := &NeuronPopulation{Neurons: make([]coord.AtomicNeuron, len(pd.Neurons)), RecordSpikes: pd.RecordSpikes}
			for k, n := range pd.Neurons {
				if n < 0 || n >= coord.AtomicNeuronOnDLSSize {
					return nil, errors.Errorf("population %d: invalid neuron %d", i, n)
				}
				np.Neurons[k] = coord.AtomicNeuron(n)
			}
			p = np
		case KindExternal:
			p = &ExternalPopulation{Sources: pd.Size}
		case KindBackground:
			bp := &BackgroundPopulation{Sources: pd.Size, Coordinate: make(map[coord.Hemisphere]coord.PADIBusOnBlock)}
			for _, b := range pd.Coordinate {
				if b.Hemisphere < 0 || b.Hemisphere >= coord.HemisphereOnDLSSize || b.Bus < 0 || b.Bus >= coord.PADIBusOnPADIBusBlockSize {
					return nil, errors.Errorf("population %d: invalid coordinate %+v", i, b)
				}
				bp.Coordinate[coord.Hemisphere(b.Hemisphere)] = coord.PADIBusOnBlock(b.Bus)
			}
			if pd.Config != nil {
				bp.Config = *pd.Config
			}
			p = bp
		default:
			return nil, errors.Errorf("population %d: unknown kind %q", i, pd.Kind)
		}
		if err := net.restorePopulation(PopulationDescriptor{pd.index()}, p); err != nil {
			return nil, errors.Wrapf(err, "population %d", i)
		}
	}
	for i, pd := range doc.Projections {
		r, err := parseReceptor(pd.Receptor)
		if err != nil {
			return nil, errors.Wrapf(err, "projection %d", i)
		}
		p := &Projection{
			Receptor:    r,
			Pre:         PopulationDescriptor{pd.Pre.index()},
			Post:        PopulationDescriptor{pd.Post.index()},
			Connections: make([]Connection, len(pd.Connections)),
		}
		for k, c := range pd.Connections {
			p.Connections[k] = Connection{c.Pre, c.Post, c.Weight}
		}
		if err := net.restoreProjection(ProjectionDescriptor{pd.index()}, p); err != nil {
			return nil, errors.Wrapf(err, "projection %d", i)
		}
	}
	for i, rd := range doc.PlasticityRules {
		r := &PlasticityRule{RequiresOneSourcePerRowInOrder: rd.RequiresOneSourcePerRowInOrder}
		for _, p := range rd.Projections {
			r.Projections = append(r.Projections, ProjectionDescriptor{p.index()})
		}
		if rec := rd.Recording; rec != nil {
			switch rec.Kind {
			case KindRaw:
				r.Recording = &RawRecording{Size: rec.Size}
			case KindTimed:
				r.Recording = &TimedRecording{Observables: rec.Observables}
			default:
				return nil, errors.Errorf("plasticity rule %d: unknown recording kind %q", i, rec.Kind)
			}
		}
		if err := net.restorePlasticityRule(PlasticityRuleDescriptor{rd.index()}, r); err != nil {
			return nil, errors.Wrapf(err, "plasticity rule %d", i)
		}
	}
	return net, nil
}

// PlacedConnectionDoc is the serialized form of a PlacedConnection.
//
type PlacedConnectionDoc struct {
	Weight     int `json:"weight" bson:"weight"`
	Label      int `json:"label" bson:"label"`
	Hemisphere int `json:"hemisphere" bson:"hemisphere"`
	Row        int `json:"row" bson:"row"`
	Column     int `json:"column" bson:"column"`
}

// ProjectionResultDoc holds the placed connections of a projection.
//
type ProjectionResultDoc struct {
	Projection  Ref                     `json:"projection" bson:"projection"`
	Connections [][]PlacedConnectionDoc `json:"connections" bson:"connections"`
}

// LabelsDoc holds the labels of a population. Internal neurons without a
// label have -1.
//
type LabelsDoc struct {
	Population Ref     `json:"population" bson:"population"`
	Labels     [][]int `json:"labels" bson:"labels"`
}

// CrossbarNodeDoc is a configured crossbar node.
//
type CrossbarNodeDoc struct {
	Input   int  `json:"input" bson:"input"`
	Output  int  `json:"output" bson:"output"`
	Enabled bool `json:"enabled" bson:"enabled"`
	Mask    int  `json:"mask" bson:"mask"`
	Target  int  `json:"target" bson:"target"`
}

// DriverDoc is a configured synapse driver.
//
type DriverDoc struct {
	Hemisphere int `json:"hemisphere" bson:"hemisphere"`
	Index      int `json:"index" bson:"index"`
	Mask       int `json:"mask" bson:"mask"`
}

// RowDoc is a configured synapse row.
//
type RowDoc struct {
	Hemisphere int `json:"hemisphere" bson:"hemisphere"`
	Row        int `json:"row" bson:"row"`
	Mode       int `json:"mode" bson:"mode"`
}

// ResultDoc is the serialized form of a RoutingResult.
//
type ResultDoc struct {
	Connections                 []ProjectionResultDoc `json:"connections" bson:"connections"`
	InternalNeuronLabels        []LabelsDoc           `json:"internal_neuron_labels" bson:"internal_neuron_labels"`
	ExternalSpikeLabels         []LabelsDoc           `json:"external_spike_labels" bson:"external_spike_labels"`
	BackgroundSpikeSourceLabels []LabelsDoc           `json:"background_spike_source_labels" bson:"background_spike_source_labels"`
	CrossbarNodes               []CrossbarNodeDoc     `json:"crossbar_nodes" bson:"crossbar_nodes"`
	SynapseDrivers              []DriverDoc           `json:"synapse_drivers" bson:"synapse_drivers"`
	SynapseRows                 []RowDoc              `json:"synapse_rows" bson:"synapse_rows"`
	RoutingTime                 time.Duration         `json:"routing_time" bson:"routing_time"`
}

func sortedPopulations[T any](m map[PopulationDescriptor]T) []PopulationDescriptor {
	ds := make([]PopulationDescriptor, 0, len(m))
	for d := range m {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i].Less(ds[j].Index) })
	return ds
}

// EncodeResult returns the serialized form of r. All lists are sorted.
//
func EncodeResult(r *RoutingResult) *ResultDoc {
	doc := &ResultDoc{RoutingTime: r.TimingStatistics.Routing}

	pds := make([]ProjectionDescriptor, 0, len(r.Connections))
	for d := range r.Connections {
		pds = append(pds, d)
	}
	sort.Slice(pds, func(i, j int) bool { return pds[i].Less(pds[j].Index) })
	for _, d := range pds {
		prd := ProjectionResultDoc{Projection: refOf(d.Index)}
		for _, cs := range r.Connections[d] {
			var local []PlacedConnectionDoc
			for _, c := range cs {
				local = append(local, PlacedConnectionDoc{c.Weight, int(c.Label), int(c.Row.Hemisphere), int(c.Row.Row), c.Column})
			}
			prd.Connections = append(prd.Connections, local)
		}
		doc.Connections = append(doc.Connections, prd)
	}

	for _, d := range sortedPopulations(r.InternalNeuronLabels) {
		ld := LabelsDoc{Population: refOf(d.Index)}
		for _, l := range r.InternalNeuronLabels[d] {
			v := -1
			if l.Valid {
				v = int(l.Label)
			}
			ld.Labels = append(ld.Labels, []int{v})
		}
		doc.InternalNeuronLabels = append(doc.InternalNeuronLabels, ld)
	}
	for _, d := range sortedPopulations(r.ExternalSpikeLabels) {
		ld := LabelsDoc{Population: refOf(d.Index)}
		for _, ls := range r.ExternalSpikeLabels[d] {
			vs := []int{}
			for _, l := range ls {
				vs = append(vs, int(l))
			}
			ld.Labels = append(ld.Labels, vs)
		}
		doc.ExternalSpikeLabels = append(doc.ExternalSpikeLabels, ld)
	}
	for _, d := range sortedPopulations(r.BackgroundSpikeSourceLabels) {
		ld := LabelsDoc{Population: refOf(d.Index)}
		for h := coord.Hemisphere(0); h < coord.HemisphereOnDLSSize; h++ {
			if l, ok := r.BackgroundSpikeSourceLabels[d][h]; ok {
				ld.Labels = append(ld.Labels, []int{int(h), int(l)})
			}
		}
		doc.BackgroundSpikeSourceLabels = append(doc.BackgroundSpikeSourceLabels, ld)
	}

	for n, c := range r.CrossbarNodes {
		doc.CrossbarNodes = append(doc.CrossbarNodes, CrossbarNodeDoc{int(n.Input), int(n.Output), c.Enabled, int(c.Mask), int(c.Target)})
	}
	sort.Slice(doc.CrossbarNodes, func(i, j int) bool {
		a, b := doc.CrossbarNodes[i], doc.CrossbarNodes[j]
		return a.Output < b.Output || a.Output == b.Output && a.Input < b.Input
	})
	for d, m := range r.SynapseDriverCompareMasks {
		doc.SynapseDrivers = append(doc.SynapseDrivers, DriverDoc{int(d.Hemisphere), int(d.Index), int(m)})
	}
	sort.Slice(doc.SynapseDrivers, func(i, j int) bool {
		a, b := doc.SynapseDrivers[i], doc.SynapseDrivers[j]
		return a.Hemisphere < b.Hemisphere || a.Hemisphere == b.Hemisphere && a.Index < b.Index
	})
	for row, m := range r.SynapseRowModes {
		doc.SynapseRows = append(doc.SynapseRows, RowDoc{int(row.Hemisphere), int(row.Row), int(m)})
	}
	sort.Slice(doc.SynapseRows, func(i, j int) bool {
		a, b := doc.SynapseRows[i], doc.SynapseRows[j]
		return a.Hemisphere < b.Hemisphere || a.Hemisphere == b.Hemisphere && a.Row < b.Row
	})
	return doc
}

// Decode returns the routing result described by doc.
//
func (doc *ResultDoc) Decode() (*RoutingResult, error) {
	r := newRoutingResult()
	r.TimingStatistics.Routing = doc.RoutingTime
	for _, prd := range doc.Connections {
		local := make([][]PlacedConnection, len(prd.Connections))
		for i, cs := range prd.Connections {
			for _, c := range cs {
				local[i] = append(local[i], PlacedConnection{
					Weight: c.Weight,
					Label:  coord.SynapseLabel(c.Label),
					Row:    coord.SynapseRowOnDLS{Hemisphere: coord.Hemisphere(c.Hemisphere), Row: uint16(c.Row)},
					Column: c.Column,
				})
			}
		}
		r.Connections[ProjectionDescriptor{prd.Projection.index()}] = local
	}
	for _, ld := range doc.InternalNeuronLabels {
		local := make([]InternalLabel, len(ld.Labels))
		for i, l := range ld.Labels {
			if len(l) != 1 {
				return nil, errors.Errorf("internal label of population %v malformed", ld.Population)
			}
			if l[0] >= 0 {
				local[i] = InternalLabel{coord.NeuronBackendAddressOut(l[0]), true}
			}
		}
		r.InternalNeuronLabels[PopulationDescriptor{ld.Population.index()}] = local
	}
	for _, ld := range doc.ExternalSpikeLabels {
		local := make([][]coord.SpikeLabel, len(ld.Labels))
		for i, ls := range ld.Labels {
			for _, l := range ls {
				local[i] = append(local[i], coord.SpikeLabel(l))
			}
		}
		r.ExternalSpikeLabels[PopulationDescriptor{ld.Population.index()}] = local
	}
	for _, ld := range doc.BackgroundSpikeSourceLabels {
		local := make(map[coord.Hemisphere]coord.NeuronLabel)
		for _, l := range ld.Labels {
			if len(l) != 2 {
				return nil, errors.Errorf("background label of population %v malformed", ld.Population)
			}
			local[coord.Hemisphere(l[0])] = coord.NeuronLabel(l[1])
		}
		r.BackgroundSpikeSourceLabels[PopulationDescriptor{ld.Population.index()}] = local
	}
	for _, c := range doc.CrossbarNodes {
		n := coord.CrossbarNodeOnDLS{Input: coord.CrossbarInput(c.Input), Output: coord.CrossbarOutput(c.Output)}
		r.CrossbarNodes[n] = coord.CrossbarNode{Enabled: c.Enabled, Mask: coord.NeuronLabel(c.Mask), Target: coord.NeuronLabel(c.Target)}
	}
	for _, d := range doc.SynapseDrivers {
		r.SynapseDriverCompareMasks[coord.SynapseDriverOnDLS{Hemisphere: coord.Hemisphere(d.Hemisphere), Index: uint8(d.Index)}] = coord.Mask(d.Mask)
	}
	for _, row := range doc.SynapseRows {
		r.SynapseRowModes[coord.SynapseRowOnDLS{Hemisphere: coord.Hemisphere(row.Hemisphere), Row: uint16(row.Row)}] = coord.RowMode(row.Mode)
	}
	return r, nil
}

// Snapshot is a named network together with its routing.
//
type Snapshot struct {
	Name    string      `json:"name" bson:"_id"`
	Format  string      `json:"format" bson:"format"`
	Network *NetworkDoc `json:"network" bson:"network"`
	Result  *ResultDoc  `json:"result,omitempty" bson:"result,omitempty"`
}

// NewSnapshot returns a snapshot of net and its routing r, which may be nil.
//
func NewSnapshot(name string, net *Network, r *RoutingResult) *Snapshot {
	s := &Snapshot{Name: name, Format: SnapshotFormat, Network: EncodeNetwork(net)}
	if r != nil {
		s.Result = EncodeResult(r)
	}
	return s
}

// CheckFormat returns an error if s was written with an incompatible
// layout.
//
func (s *Snapshot) CheckFormat() error {
	if !semver.IsValid(s.Format) {
		return errors.Errorf("snapshot %q: invalid format version %q", s.Name, s.Format)
	}
	if semver.Major(s.Format) != semver.Major(SnapshotFormat) {
		return errors.Errorf("snapshot %q: format %s not compatible with %s", s.Name, s.Format, SnapshotFormat)
	}
	return nil
}

// Decode returns the network and routing of s. The routing is nil if s has
// none.
//
func (s *Snapshot) Decode() (*Network, *RoutingResult, error) {
	if err := s.CheckFormat(); err != nil {
		return nil, nil, err
	}
	if s.Network == nil {
		return nil, nil, errors.Errorf("snapshot %q has no network", s.Name)
	}
	net, err := s.Network.Decode()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "snapshot %q", s.Name)
	}
	if s.Result == nil {
		return net, nil, nil
	}
	r, err := s.Result.Decode()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "snapshot %q", s.Name)
	}
	return net, r, nil
}
