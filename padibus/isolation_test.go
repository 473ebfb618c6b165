package padibus

import (
	"reflect"
	"testing"

	"github.com/electronicvisions/grenade-sub004/coord"
)

func TestIsolatingMasks(t *testing.T) {
	reqs := []AllocationRequest{
		{Shapes: []Shape{{1, false}}, Label: 0b00001},
		{Shapes: []Shape{{1, false}}, Label: 0b00010},
		{Shapes: []Shape{{1, false}}, Label: 0b00110},
	}
	masks := isolatingMasks(reqs)
	var want [3][]coord.Mask
	for m := coord.Mask(0); m < coord.MaskSize; m++ {
		if m&0b00011 != 0 {
			want[0] = append(want[0], m)
		}
		if m&0b00100 != 0 && m&0b00011 != 0 {
			want[1] = append(want[1], m)
		}
		if m&0b00100 != 0 {
			want[2] = append(want[2], m)
		}
	}
	for i := range want {
		if !reflect.DeepEqual(masks[i], want[i]) {
			t.Errorf("request %d: expected masks %v, got %v", i, want[i], masks[i])
		}
	}
	if !canBeIsolated(masks) {
		t.Error("requests with distinct labels can not be isolated")
	}

	same := []AllocationRequest{{Label: 3}, {Label: 3}}
	masks = isolatingMasks(same)
	if len(masks[0]) != 0 || len(masks[1]) != 0 {
		t.Fatalf("identical labels have isolating masks %v", masks)
	}
	if canBeIsolated(masks) {
		t.Fatal("identical labels can be isolated")
	}
}

func TestIsolatedDrivers(t *testing.T) {
	reqs := []AllocationRequest{{Label: 1}, {Label: 2}}
	ms := []coord.Mask{0b11110, 0b11111, 0b11101}
	m := NewManager(0)
	iso := m.isolatedDrivers([][]coord.Mask{ms, ms}, reqs)

	n := 0
	for d := range iso {
		if len(iso[d]) > 0 {
			n++
		}
	}
	if n != 3 {
		t.Fatalf("expected 3 isolated drivers, got %d", n)
	}
	want := map[int]candidates{
		1: {{0, 0b11110}},
		2: {{1, 0b11110}},
		3: {{0, 0b11101}, {1, 0b11110}},
	}
	for d, w := range want {
		if !reflect.DeepEqual(iso[d], w) {
			t.Errorf("driver %d: expected %v, got %v", d, w, iso[d])
		}
	}
}

func TestCanBePlacedIndividually(t *testing.T) {
	with := func(ds ...int) *isolated {
		var iso isolated
		for _, d := range ds {
			iso[d] = candidates{{0, 0}}
		}
		return &iso
	}
	data := []struct {
		name  string
		shape Shape
		iso   *isolated
		want  bool
	}{
		{"sparse_ok", Shape{2, false}, with(0, 2), true},
		{"sparse_short", Shape{2, false}, with(0), false},
		{"contiguous_ok", Shape{2, true}, with(1, 2), true},
		{"contiguous_gap", Shape{2, true}, with(1, 3), false},
		{"contiguous_short", Shape{2, true}, with(1), false},
		{"contiguous_late_run", Shape{3, true}, with(0, 4, 5, 6), true},
		{"empty_shape", Shape{0, true}, with(), true},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			reqs := []AllocationRequest{{Shapes: []Shape{d.shape}}}
			if got := canBePlacedIndividually(d.iso, reqs); got != d.want {
				t.Fatalf("expected %v, got %v", d.want, got)
			}
		})
	}
}

func TestAlternatingDrivers(t *testing.T) {
	reqs := []AllocationRequest{
		{Shapes: []Shape{{2, true}}, Label: 0},
		{Shapes: []Shape{{1, false}}, Label: 1},
	}
	m := NewManager()
	iso := m.isolatedDrivers(isolatingMasks(reqs), reqs)
	// even drivers serve label 0, odd ones label 1: no two consecutive drivers
	// serve request 0.
	for d := range iso {
		if len(iso[d]) != 1 || iso[d][0].req != d%2 {
			t.Fatalf("driver %d: unexpected candidates %v", d, iso[d])
		}
	}
	if canBePlacedIndividually(iso, reqs) {
		t.Fatal("contiguous shape placed on alternating drivers")
	}
	if allocs := allocateBacktracking(reqs, iso, nil); allocs != nil {
		t.Fatalf("expected no allocation, got %v", allocs)
	}
}
