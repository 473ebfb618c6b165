package grenade_test

import (
	"testing"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/pkg/errors"
)

func trace(t *testing.T, err error) {
	t.Helper()
	if err, ok := err.(interface {
		StackTrace() errors.StackTrace
	}); ok {
		for _, f := range err.StackTrace() {
			t.Logf("%+v ", f)
		}
	}
}

func neurons(cols ...int) *grenade.NeuronPopulation {
	p := &grenade.NeuronPopulation{}
	for _, c := range cols {
		p.Neurons = append(p.Neurons, coord.AtomicNeuron(c))
	}
	return p
}

func mustPopulation(t *testing.T, net *grenade.Network, p grenade.Population) grenade.PopulationDescriptor {
	t.Helper()
	d, err := net.AddPopulation(p)
	if err != nil {
		trace(t, err)
		t.Fatal(err)
	}
	return d
}

func mustProjection(t *testing.T, net *grenade.Network, p *grenade.Projection) grenade.ProjectionDescriptor {
	t.Helper()
	d, err := net.AddProjection(p)
	if err != nil {
		trace(t, err)
		t.Fatal(err)
	}
	return d
}

func TestNetwork_AddPopulation(t *testing.T) {
	net := new(grenade.Network)
	mustPopulation(t, net, neurons(0, 1, 2))
	mustPopulation(t, net, &grenade.BackgroundPopulation{Sources: 8, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: 1}})

	data := []struct {
		name string
		p    grenade.Population
	}{
		{"duplicate neuron", neurons(3, 2)},
		{"duplicate in population", neurons(5, 5)},
		{"invalid neuron", neurons(512)},
		{"record flags", &grenade.NeuronPopulation{Neurons: []coord.AtomicNeuron{7}, RecordSpikes: []bool{true, false}}},
		{"negative size", &grenade.ExternalPopulation{Sources: -1}},
		{"empty background", &grenade.BackgroundPopulation{Sources: 0, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: 0}}},
		{"large background", &grenade.BackgroundPopulation{Sources: 257, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: 0}}},
		{"no coordinate", &grenade.BackgroundPopulation{Sources: 1}},
		{"invalid coordinate", &grenade.BackgroundPopulation{Sources: 1, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Bottom: 4}}},
		{"bus fed twice", &grenade.BackgroundPopulation{Sources: 1, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: 1}}},
		{"nil", nil},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			if _, err := net.AddPopulation(d.p); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if n := len(net.Populations()); n != 2 {
		t.Fatalf("expected 2 populations, got %d", n)
	}
	mustPopulation(t, net, &grenade.BackgroundPopulation{Sources: 1, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: 2, coord.Bottom: 1}})
}

func TestNetwork_AddProjection(t *testing.T) {
	net := new(grenade.Network)
	top := mustPopulation(t, net, neurons(0, 1))
	bottom := mustPopulation(t, net, neurons(256, 257))
	ext := mustPopulation(t, net, &grenade.ExternalPopulation{Sources: 2})
	bg := mustPopulation(t, net, &grenade.BackgroundPopulation{Sources: 4, Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: 0}})

	c := []grenade.Connection{{IndexPre: 0, IndexPost: 1, Weight: 10}}
	data := []struct {
		name string
		p    grenade.Projection
	}{
		{"receptor", grenade.Projection{Receptor: coord.ReceptorTypeCount, Pre: ext, Post: top, Connections: c}},
		{"unknown pre", grenade.Projection{Pre: grenade.PopulationDescriptor{}, Post: top, Connections: c}},
		{"external post", grenade.Projection{Pre: top, Post: ext, Connections: c}},
		{"pre index", grenade.Projection{Pre: ext, Post: top, Connections: []grenade.Connection{{IndexPre: 2}}}},
		{"post index", grenade.Projection{Pre: ext, Post: top, Connections: []grenade.Connection{{IndexPost: -1}}}},
		{"negative weight", grenade.Projection{Pre: ext, Post: top, Connections: []grenade.Connection{{Weight: -1}}}},
		{"background hemisphere", grenade.Projection{Pre: bg, Post: bottom, Connections: c}},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			if _, err := net.AddProjection(&d.p); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	mustProjection(t, net, &grenade.Projection{Pre: bg, Post: top, Connections: c})
	mustProjection(t, net, &grenade.Projection{Receptor: coord.Inhibitory, Pre: top, Post: bottom, Connections: c})
	if n := len(net.Projections()); n != 2 {
		t.Fatalf("expected 2 projections, got %d", n)
	}
}

func TestNetwork_Remove(t *testing.T) {
	net := new(grenade.Network)
	a := mustPopulation(t, net, neurons(0, 1))
	b := mustPopulation(t, net, neurons(2, 3))
	ext := mustPopulation(t, net, &grenade.ExternalPopulation{Sources: 1})
	c := []grenade.Connection{{IndexPre: 0, IndexPost: 1, Weight: 1}}
	ab := mustProjection(t, net, &grenade.Projection{Pre: a, Post: b, Connections: c})
	eb := mustProjection(t, net, &grenade.Projection{Pre: ext, Post: b, Connections: c})
	rd, err := net.AddPlasticityRule(&grenade.PlasticityRule{Projections: []grenade.ProjectionDescriptor{ab, eb}})
	if err != nil {
		t.Fatal(err)
	}

	if !net.RemovePopulation(a) {
		t.Fatal("population not removed")
	}
	if net.RemovePopulation(a) {
		t.Fatal("population removed twice")
	}
	if _, ok := net.Projection(ab); ok {
		t.Fatal("projection from removed population still present")
	}
	if _, ok := net.Projection(eb); !ok {
		t.Fatal("unrelated projection removed")
	}
	r, ok := net.PlasticityRule(rd)
	if !ok {
		t.Fatal("plasticity rule removed")
	}
	if len(r.Projections) != 1 || r.Projections[0] != eb {
		t.Fatalf("expected rule projections [%v], got %v", eb, r.Projections)
	}

	// the freed slot is reused, the stale descriptor must not resolve
	a2 := mustPopulation(t, net, neurons(0))
	if a2 == a {
		t.Fatalf("descriptor %v reused", a)
	}
	if _, ok := net.Population(a); ok {
		t.Fatal("stale descriptor resolves")
	}
	if p, ok := net.Population(b); !ok || p.Size() != 2 {
		t.Fatal("descriptor of remaining population changed")
	}
	if _, err := net.AddProjection(&grenade.Projection{Pre: a, Post: b, Connections: c}); err == nil {
		t.Fatal("expected error for stale descriptor")
	}
	if !net.RemovePlasticityRule(rd) || net.RemovePlasticityRule(rd) {
		t.Fatal("plasticity rule removal")
	}
	if _, err := net.AddPlasticityRule(&grenade.PlasticityRule{Projections: []grenade.ProjectionDescriptor{ab}}); err == nil {
		t.Fatal("expected error for removed projection")
	}
}

func TestPopulationsEqual(t *testing.T) {
	bg := func(n int, bus coord.PADIBusOnBlock, seed uint32) *grenade.BackgroundPopulation {
		return &grenade.BackgroundPopulation{
			Sources:    n,
			Coordinate: map[coord.Hemisphere]coord.PADIBusOnBlock{coord.Top: bus},
			Config:     grenade.BackgroundConfig{Seed: seed},
		}
	}
	data := []struct {
		name string
		a, b grenade.Population
		want bool
	}{
		{"neurons", neurons(1, 2), neurons(1, 2), true},
		{"neuron order", neurons(1, 2), neurons(2, 1), false},
		{"recording", neurons(1), &grenade.NeuronPopulation{Neurons: []coord.AtomicNeuron{1}, RecordSpikes: []bool{true}}, false},
		{"no recording", neurons(1), &grenade.NeuronPopulation{Neurons: []coord.AtomicNeuron{1}, RecordSpikes: []bool{false}}, true},
		{"external", &grenade.ExternalPopulation{Sources: 3}, &grenade.ExternalPopulation{Sources: 3}, true},
		{"external size", &grenade.ExternalPopulation{Sources: 3}, &grenade.ExternalPopulation{Sources: 4}, false},
		{"kind", &grenade.ExternalPopulation{Sources: 1}, neurons(1), false},
		{"background config", bg(4, 1, 1), bg(4, 1, 2), true},
		{"background coordinate", bg(4, 1, 1), bg(4, 2, 1), false},
		{"background size", bg(4, 1, 1), bg(5, 1, 1), false},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			if got := grenade.PopulationsEqual(d.a, d.b); got != d.want {
				t.Fatalf("expected %v, got %v", d.want, got)
			}
		})
	}
}

func TestRecordingsEqual(t *testing.T) {
	obs := []grenade.Observable{{Name: "w", PerSynapse: true, ElementSize: 1}}
	data := []struct {
		a, b grenade.PlasticityRecording
		want bool
	}{
		{nil, nil, true},
		{nil, &grenade.RawRecording{Size: 1}, false},
		{&grenade.RawRecording{Size: 1}, &grenade.RawRecording{Size: 1}, true},
		{&grenade.RawRecording{Size: 1}, &grenade.RawRecording{Size: 2}, false},
		{&grenade.TimedRecording{Observables: obs}, &grenade.TimedRecording{Observables: obs}, true},
		{&grenade.TimedRecording{Observables: obs}, &grenade.TimedRecording{}, false},
		{&grenade.TimedRecording{}, &grenade.RawRecording{}, false},
	}
	for i, d := range data {
		if got := grenade.RecordingsEqual(d.a, d.b); got != d.want {
			t.Errorf("%d: expected %v, got %v", i, d.want, got)
		}
	}
}
