package source

import (
	"reflect"
	"testing"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/dls"
	"github.com/electronicvisions/grenade-sub004/padibus"
)

func TestSplitLinear(t *testing.T) {
	if s := SplitLinear(nil); len(s) != 0 {
		t.Fatalf("unexpected split %v", s)
	}
	var filter []int
	for i := 10; i < 123; i++ {
		filter = append(filter, i)
	}
	s := SplitLinear(filter)
	if len(s) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(s))
	}
	if !reflect.DeepEqual(s[0], filter[:64]) || !reflect.DeepEqual(s[1], filter[64:]) {
		t.Fatalf("unexpected split %v", s)
	}
}

func TestNumSynapseDrivers(t *testing.T) {
	sources := make([]InternalSource, 4)
	sources[0].OutDegree.Add(coord.Inhibitory, coord.NewAtomicNeuron(0, coord.Bottom), 17)
	sources[0].OutDegree.Add(coord.Excitatory, 3, 12)
	sources[1].OutDegree.Add(coord.Excitatory, 3, 10)
	sources[2].OutDegree.Add(coord.Excitatory, 5, 5)
	sources[3].OutDegree.Add(coord.Excitatory, 3, 100)

	n := NumSynapseDrivers(sources, []int{0, 1, 2})
	if want := [2]int{11, 9}; n != want {
		t.Fatalf("expected %v, got %v", want, n)
	}
	if n := NumSynapseDrivers(sources, nil); n != [2]int{} {
		t.Fatalf("expected no drivers for empty filter, got %v", n)
	}
}

func TestDistributeExternalSourcesLinear(t *testing.T) {
	sources := make([]ExternalSource, 68)
	for i := 0; i < 4; i++ {
		for n := coord.AtomicNeuron(0); n < coord.AtomicNeuronOnDLSSize; n++ {
			sources[i].OutDegree.Add(coord.Excitatory, n, 32)
		}
	}
	for i := 4; i < 68; i++ {
		sources[i].OutDegree.Add(coord.Excitatory, coord.AtomicNeuron(i), 1)
	}
	used := [coord.PADIBusOnDLSSize]int{16}

	split, ok := DistributeExternalSourcesLinear(sources, used)
	if !ok {
		t.Fatal("distribution failed")
	}
	var bus2 []int
	for i := 3; i < 67; i++ {
		bus2 = append(bus2, i)
	}
	want := [coord.PADIBusOnDLSSize][][]int{
		{{0}},
		{{1, 2}},
		{bus2, {67}},
		nil,
		{{0, 1}},
		{{2, 3}},
		nil,
		nil,
	}
	if !reflect.DeepEqual(split, want) {
		t.Fatalf("expected %v, got %v", want, split)
	}

	// a fully used hemisphere leaves no room
	for p := range used {
		used[p] = coord.SynapseDriverOnPADIBusSize
	}
	if _, ok := DistributeExternalSourcesLinear(sources, used); ok {
		t.Fatal("expected distribution to fail")
	}
}

// sources needing no driver on a hemisphere are skipped on its buses
func TestDistributeExternalSourcesLinear_skipped(t *testing.T) {
	sources := make([]ExternalSource, 3)
	sources[0].OutDegree.Add(coord.Excitatory, 0, 40)
	sources[1].OutDegree.Add(coord.Excitatory, coord.NewAtomicNeuron(0, coord.Bottom), 2)
	sources[2].OutDegree.Add(coord.Excitatory, 0, 40)

	split, ok := DistributeExternalSourcesLinear(sources, [coord.PADIBusOnDLSSize]int{})
	if !ok {
		t.Fatal("distribution failed")
	}
	want := [coord.PADIBusOnDLSSize][][]int{{{0}}, {{2}}, nil, nil, {{1}}, nil, nil, nil}
	if !reflect.DeepEqual(split, want) {
		t.Fatalf("expected %v, got %v", want, split)
	}
}

func TestInternalRequests(t *testing.T) {
	filter := make([][]int, 2)
	for i := 0; i < 64; i++ {
		filter[0] = append(filter[0], i)
	}
	for i := 0; i < 32; i++ {
		filter[1] = append(filter[1], i+64)
	}
	var drivers [coord.PADIBusOnDLSSize][]int
	drivers[2] = []int{12, 10}
	drivers[6] = []int{5, 1}

	reqs := internalRequests(filter, 2, 0, &drivers)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	wantShapes := []map[coord.PADIBus][]padibus.Shape{
		{2: {{Size: 12}}, 6: {{Size: 5}}},
		{2: {{Size: 10}}, 6: {{Size: 1}}},
	}
	wantLabels := [][]coord.Label{
		{8, 8, 8, 9, 9, 9, 10, 10, 10, 11, 11, 11},
		{9, 10, 11, 8, 10, 11, 8, 9, 11, 8, 9, 10},
	}
	for i := range reqs {
		if !reflect.DeepEqual(reqs[i].Shapes, wantShapes[i]) {
			t.Errorf("request %d: expected shapes %v, got %v", i, wantShapes[i], reqs[i].Shapes)
		}
		if !reflect.DeepEqual(reqs[i].Labels, wantLabels[i]) {
			t.Errorf("request %d: expected labels %v, got %v", i, wantLabels[i], reqs[i].Labels)
		}
		if reqs[i].DependentLabelGroup != nil {
			t.Errorf("request %d: unexpected dependent label group", i)
		}
	}

	// backend block 1 sets the label bit 4
	reqs = internalRequests(filter[:1], 3, 1, &[coord.PADIBusOnDLSSize][]int{3: {1}, 7: {1}})
	if want := []coord.Label{28, 29, 30, 31}; !reflect.DeepEqual(reqs[0].Labels, want) {
		t.Fatalf("expected labels %v, got %v", want, reqs[0].Labels)
	}
}

func TestBackgroundRequests(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		filter := make([][]int, n)
		drivers := make([]int, n)
		for i := range filter {
			filter[i] = []int{i}
			drivers[i] = 10 + i
		}
		reqs, err := backgroundRequests(filter, 2, drivers)
		if err != nil {
			t.Fatal(err)
		}
		if len(reqs) != n {
			t.Fatalf("%d splits: expected %d requests, got %d", n, n, len(reqs))
		}
		for i, r := range reqs {
			if want := map[coord.PADIBus][]padibus.Shape{2: {{Size: 10 + i}}}; !reflect.DeepEqual(r.Shapes, want) {
				t.Errorf("%d splits, request %d: expected shapes %v, got %v", n, i, want, r.Shapes)
			}
			if want := map[int]int{1: 32, 2: 32, 4: 192}[n]; len(r.Labels) != want {
				t.Errorf("%d splits, request %d: expected %d labels, got %d", n, i, want, len(r.Labels))
			}
		}
		// labels at the same index differ between splits
		for k := range reqs[0].Labels {
			seen := make(map[coord.Label]bool)
			for _, r := range reqs {
				if seen[r.Labels[k]] {
					t.Fatalf("%d splits: label %v used twice at index %d", n, r.Labels[k], k)
				}
				seen[r.Labels[k]] = true
			}
		}
	}
	if _, err := backgroundRequests(make([][]int, 3), 2, make([]int, 3)); err == nil {
		t.Fatal("expected error for 3 splits")
	}
}

func TestExternalRequest(t *testing.T) {
	r := externalRequest(2, 12)
	if want := map[coord.PADIBus][]padibus.Shape{2: {{Size: 12}}}; !reflect.DeepEqual(r.Shapes, want) {
		t.Fatalf("expected shapes %v, got %v", want, r.Shapes)
	}
	if len(r.Labels) != coord.LabelSize || r.DependentLabelGroup != nil {
		t.Fatalf("unexpected request %v", &r)
	}
}

func TestGroupValid(t *testing.T) {
	r := externalRequest(0, 1)
	many := make([]int, 65)
	for i := range many {
		many[i] = i
	}
	data := []struct {
		name  string
		group Group
		valid bool
	}{
		{"valid", Group{[]int{0, 1}, r}, true},
		{"duplicate", Group{[]int{0, 0}, r}, false},
		{"too_many", Group{many, r}, false},
		{"no_labels", Group{[]int{0}, dls.AllocationRequest{Shapes: r.Shapes}}, false},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			err := d.group.Valid()
			if (err == nil) != d.valid {
				t.Fatalf("expected valid %v, got %v", d.valid, err)
			}
		})
	}
}
