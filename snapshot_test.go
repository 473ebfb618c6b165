package grenade_test

import (
	"encoding/json"
	"reflect"
	"testing"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/electronicvisions/grenade-sub004/coord"
)

func TestSnapshot_roundTrip(t *testing.T) {
	net := requiresNetwork(t)
	net.MADC = &grenade.MADCRecording{Neuron: 0, Source: "membrane"}
	p, _ := net.Population(net.Populations()[2])
	p.(*grenade.BackgroundPopulation).Config = grenade.BackgroundConfig{Period: 100, Rate: 3, Seed: 7, EnableRandom: true}
	r := route(t, net, nil)

	s := grenade.NewSnapshot("test", net, r)
	if s.Format != grenade.SnapshotFormat {
		t.Fatalf("unexpected format %q", s.Format)
	}
	// through JSON as written by the command line tool
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var s2 grenade.Snapshot
	if err = json.Unmarshal(b, &s2); err != nil {
		t.Fatal(err)
	}
	net2, r2, err := s2.Decode()
	if err != nil {
		trace(t, err)
		t.Fatal(err)
	}
	if grenade.RequiresRouting(net2, net, r) {
		t.Fatal("decoded network requires routing")
	}
	if !reflect.DeepEqual(grenade.EncodeNetwork(net2), s.Network) {
		t.Fatal("network changed by round trip")
	}
	if !reflect.DeepEqual(grenade.EncodeResult(r2), s.Result) {
		t.Fatal("routing result changed by round trip")
	}
	bp, _ := net2.Population(net.Populations()[2])
	if cfg := bp.(*grenade.BackgroundPopulation).Config; cfg != (grenade.BackgroundConfig{Period: 100, Rate: 3, Seed: 7, EnableRandom: true}) {
		t.Fatalf("unexpected background config %+v", cfg)
	}
	rule, ok := net2.PlasticityRule(net.PlasticityRules()[0])
	if !ok || !grenade.RecordingsEqual(rule.Recording, &grenade.RawRecording{Size: 4}) {
		t.Fatal("plasticity rule lost")
	}
}

func TestSnapshot_descriptors(t *testing.T) {
	net := new(grenade.Network)
	a := mustPopulation(t, net, neurons(0))
	b := mustPopulation(t, net, neurons(1))
	net.RemovePopulation(a)
	c := mustPopulation(t, net, neurons(2))
	pd := mustProjection(t, net, &grenade.Projection{Pre: c, Post: b,
		Connections: []grenade.Connection{{Weight: 1}}})

	net2, _, err := grenade.NewSnapshot("d", net, nil).Decode()
	if err != nil {
		trace(t, err)
		t.Fatal(err)
	}
	if _, ok := net2.Population(a); ok {
		t.Fatal("stale descriptor resolves after decoding")
	}
	for d, n := range map[grenade.PopulationDescriptor]coord.AtomicNeuron{b: 1, c: 2} {
		p, ok := net2.Population(d)
		if !ok || p.(*grenade.NeuronPopulation).Neurons[0] != n {
			t.Fatalf("population %v not restored", d)
		}
	}
	if p, ok := net2.Projection(pd); !ok || p.Pre != c || p.Post != b {
		t.Fatalf("projection %v not restored", pd)
	}
	d, err := net2.AddPopulation(neurons(3))
	if err != nil {
		t.Fatal(err)
	}
	if d == b || d == c {
		t.Fatalf("descriptor %v handed out twice", d)
	}
}

func TestSnapshot_format(t *testing.T) {
	data := []struct {
		format string
		ok     bool
	}{
		{grenade.SnapshotFormat, true},
		{"v1.3.0", true},
		{"v2.0.0", false},
		{"v0.9.0", false},
		{"bogus", false},
		{"", false},
	}
	for _, d := range data {
		s := grenade.NewSnapshot("f", new(grenade.Network), nil)
		s.Format = d.format
		if err := s.CheckFormat(); (err == nil) != d.ok {
			t.Errorf("format %q: expected ok %v, got error %v", d.format, d.ok, err)
		}
	}
}

func TestNetworkDoc_Decode_errors(t *testing.T) {
	data := []struct {
		name string
		doc  grenade.NetworkDoc
	}{
		{"kind", grenade.NetworkDoc{Populations: []grenade.PopulationDoc{{Kind: "bogus"}}}},
		{"neuron", grenade.NetworkDoc{Populations: []grenade.PopulationDoc{{Kind: grenade.KindNeuron, Neurons: []int{512}}}}},
		{"duplicate ref", grenade.NetworkDoc{Populations: []grenade.PopulationDoc{
			{Kind: grenade.KindExternal, Size: 1},
			{Kind: grenade.KindExternal, Size: 2},
		}}},
		{"receptor", grenade.NetworkDoc{
			Populations: []grenade.PopulationDoc{{Kind: grenade.KindNeuron, Neurons: []int{0}}},
			Projections: []grenade.ProjectionDoc{{Receptor: "modulatory"}},
		}},
		{"dangling projection", grenade.NetworkDoc{
			Populations: []grenade.PopulationDoc{{Kind: grenade.KindNeuron, Neurons: []int{0}}},
			Projections: []grenade.ProjectionDoc{{Receptor: "excitatory", Pre: grenade.Ref{Slot: 3}}},
		}},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			if _, err := d.doc.Decode(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
