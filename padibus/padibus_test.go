package padibus_test

import (
	"bytes"
	"log"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
)

var policies = []padibus.Policy{
	padibus.Greedy{ExclusiveFirst: false},
	padibus.Greedy{ExclusiveFirst: true},
	padibus.Backtracking{},
}

func drivers(a padibus.Allocation, shape int) []coord.SynapseDriver {
	var ds []coord.SynapseDriver
	for _, d := range a.Drivers[shape] {
		ds = append(ds, d.Driver)
	}
	return ds
}

func TestSolve_single(t *testing.T) {
	reqs := []padibus.AllocationRequest{{Shapes: []padibus.Shape{{12, false}}, Label: 7}}
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			allocs, ok := padibus.NewManager().Solve(reqs, p)
			if !ok {
				t.Fatal("no solution")
			}
			if len(allocs) != 1 || len(allocs[0].Drivers) != 1 || len(allocs[0].Drivers[0]) != 12 {
				t.Fatalf("unexpected allocation %v", allocs)
			}
			for _, d := range allocs[0].Drivers[0] {
				if !coord.Forwards(7, d.Mask, d.Driver) {
					t.Errorf("driver %v does not forward label 7 under mask %v", d.Driver, d.Mask)
				}
			}
			if !padibus.Valid(allocs, reqs) {
				t.Fatal("invalid solution")
			}
		})
	}
}

func TestSolve_halves(t *testing.T) {
	reqs := []padibus.AllocationRequest{
		{Shapes: []padibus.Shape{{16, true}}, Label: 0},
		{Shapes: []padibus.Shape{{16, true}}, Label: 16},
	}
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			allocs, ok := padibus.NewManager().Solve(reqs, p)
			if !ok {
				t.Fatal("no solution")
			}
			for i, a := range allocs {
				ds := drivers(a, 0)
				if len(ds) != 16 {
					t.Fatalf("request %d: got %d drivers", i, len(ds))
				}
				for k, d := range ds {
					if int(d) != 16*i+k {
						t.Fatalf("request %d: expected drivers %d..%d, got %v", i, 16*i, 16*i+15, ds)
					}
				}
				for _, d := range a.Drivers[0] {
					if d.Mask != 16 {
						t.Errorf("driver %v: expected mask 0b10000, got %v", d.Driver, d.Mask)
					}
				}
			}
		})
	}
}

// Labels 1 and 2 share the drivers 0 and 3 modulo 4, while drivers 1 and 2
// modulo 4 serve a single label. Filling the bus requires the exclusive
// drivers to be used first.
func TestSolve_exclusiveFirst(t *testing.T) {
	reqs := []padibus.AllocationRequest{
		{Shapes: []padibus.Shape{{16, false}}, Label: 1},
		{Shapes: []padibus.Shape{{16, false}}, Label: 2},
	}
	data := []struct {
		p  padibus.Policy
		ok bool
	}{
		{padibus.Greedy{ExclusiveFirst: false}, false},
		{padibus.Greedy{ExclusiveFirst: true}, true},
		{padibus.Backtracking{}, true},
		{padibus.Limit(time.Minute), true},
	}
	for _, d := range data {
		t.Run(d.p.String(), func(t *testing.T) {
			allocs, ok := padibus.NewManager().Solve(reqs, d.p)
			if ok != d.ok {
				t.Fatalf("expected success %v, got %v", d.ok, ok)
			}
			if ok && !padibus.Valid(allocs, reqs) {
				t.Fatalf("invalid solution %v", allocs)
			}
		})
	}
}

func TestSolve_reject(t *testing.T) {
	data := []struct {
		name        string
		unavailable []coord.SynapseDriver
		reqs        []padibus.AllocationRequest
	}{
		{"same_label", nil, []padibus.AllocationRequest{
			{Shapes: []padibus.Shape{{1, false}}, Label: 3},
			{Shapes: []padibus.Shape{{1, false}}, Label: 3},
		}},
		{"capacity", []coord.SynapseDriver{0, 1, 2, 3}, []padibus.AllocationRequest{
			{Shapes: []padibus.Shape{{29, false}}, Label: 3},
		}},
		{"oversized", nil, []padibus.AllocationRequest{
			{Shapes: []padibus.Shape{{20, false}}, Label: 0},
			{Shapes: []padibus.Shape{{13, false}}, Label: 1},
		}},
		{"not_placeable", nil, []padibus.AllocationRequest{
			{Shapes: []padibus.Shape{{17, false}}, Label: 0},
			{Shapes: []padibus.Shape{{1, false}}, Label: 1},
		}},
		{"alternating", nil, []padibus.AllocationRequest{
			{Shapes: []padibus.Shape{{2, true}}, Label: 0},
			{Shapes: []padibus.Shape{{1, false}}, Label: 1},
		}},
	}
	for _, d := range data {
		for _, p := range policies {
			t.Run(d.name+"/"+p.String(), func(t *testing.T) {
				if allocs, ok := padibus.NewManager(d.unavailable...).Solve(d.reqs, p); ok {
					t.Fatalf("expected no solution, got %v", allocs)
				}
			})
		}
	}
}

func TestSolve_empty(t *testing.T) {
	for _, p := range policies {
		allocs, ok := padibus.NewManager().Solve(nil, p)
		if !ok || len(allocs) != 0 {
			t.Fatalf("%v: expected empty solution, got %v, %v", p, allocs, ok)
		}
	}
}

func TestSolve_unavailable(t *testing.T) {
	m := padibus.NewManager(0, 5, 5, 31)
	if u := m.Unavailable(); len(u) != 3 || u[0] != 0 || u[1] != 5 || u[2] != 31 {
		t.Fatalf("unexpected unavailable drivers %v", u)
	}
	reqs := []padibus.AllocationRequest{{Shapes: []padibus.Shape{{29, false}}, Label: 0}}
	for _, p := range policies {
		allocs, ok := m.Solve(reqs, p)
		if !ok {
			t.Fatalf("%v: no solution", p)
		}
		for _, d := range drivers(allocs[0], 0) {
			if d == 0 || d == 5 || d == 31 {
				t.Fatalf("%v: unavailable driver %v allocated", p, d)
			}
		}
	}
}

func TestNewManager_outOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	padibus.NewManager(coord.SynapseDriverOnPADIBusSize)
}

// A contiguous shape placed after a single driver shape in driver order.
func TestSolve_shapesOutOfOrder(t *testing.T) {
	var unavailable []coord.SynapseDriver
	unavailable = append(unavailable, 1)
	for d := coord.SynapseDriver(4); d < coord.SynapseDriverOnPADIBusSize; d++ {
		unavailable = append(unavailable, d)
	}
	m := padibus.NewManager(unavailable...)
	data := []struct {
		shapes []padibus.Shape
		want   [][]coord.SynapseDriver
	}{
		{[]padibus.Shape{{2, true}, {1, false}}, [][]coord.SynapseDriver{{2, 3}, {0}}},
		{[]padibus.Shape{{1, false}, {2, true}}, [][]coord.SynapseDriver{{0}, {2, 3}}},
		{[]padibus.Shape{{1, true}, {2, true}}, [][]coord.SynapseDriver{{0}, {2, 3}}},
		{[]padibus.Shape{{2, true}, {1, true}}, [][]coord.SynapseDriver{{2, 3}, {0}}},
	}
	for _, d := range data {
		reqs := []padibus.AllocationRequest{{Shapes: d.shapes, Label: 3}}
		allocs, ok := m.Solve(reqs, padibus.Backtracking{})
		if !ok {
			t.Fatalf("%v: no solution", reqs[0])
		}
		for j := range d.want {
			if got := drivers(allocs[0], j); !reflect.DeepEqual(got, d.want[j]) {
				t.Errorf("%v: shape %d: expected %v, got %v", reqs[0], j, d.want[j], got)
			}
		}
	}
	// no room for a second contiguous pair
	reqs := []padibus.AllocationRequest{{Shapes: []padibus.Shape{{2, true}, {2, true}}, Label: 3}}
	if allocs, ok := m.Solve(reqs, padibus.Backtracking{}); ok {
		t.Fatalf("expected no solution, got %v", allocs)
	}
}

func TestSolve_timeout(t *testing.T) {
	reqs := []padibus.AllocationRequest{
		{Shapes: []padibus.Shape{{8, false}}, Label: 1},
		{Shapes: []padibus.Shape{{8, false}}, Label: 2},
	}
	start := time.Now()
	allocs, ok := padibus.NewManager().Solve(reqs, padibus.Limit(0))
	if ok {
		t.Fatalf("expected no solution within 0s, got %v", allocs)
	}
	if e := time.Since(start); e > time.Second {
		t.Fatalf("backtracking with 0s limit took %v", e)
	}
}

func TestSolve_logging(t *testing.T) {
	var buf bytes.Buffer
	m := padibus.NewManager()
	m.Logger = log.New(&buf, "", 0)
	m.Solve([]padibus.AllocationRequest{{Label: 1}, {Label: 1}}, padibus.DefaultPolicy)
	if !strings.HasPrefix(buf.String(), "padibus: labels of requests are not unique") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}

func TestPolicy(t *testing.T) {
	if !padibus.IsSensitiveForShapeAllocationOrder(padibus.Greedy{}) {
		t.Error("greedy allocation is order sensitive")
	}
	if padibus.IsSensitiveForShapeAllocationOrder(padibus.Backtracking{}) {
		t.Error("backtracking is not order sensitive")
	}
	data := []struct {
		p    padibus.Policy
		want string
	}{
		{padibus.Greedy{ExclusiveFirst: true}, "Greedy(ExclusiveFirst: true)"},
		{padibus.Backtracking{}, "Backtracking(MaxDuration: none)"},
		{padibus.Limit(2 * time.Second), "Backtracking(MaxDuration: 2s)"},
	}
	for _, d := range data {
		if s := d.p.String(); s != d.want {
			t.Errorf("expected %q, got %q", d.want, s)
		}
	}
}

func TestAllocationRequest(t *testing.T) {
	r := padibus.AllocationRequest{Shapes: []padibus.Shape{{12, true}, {4, false}}, Label: 3}
	if r.Size() != 16 {
		t.Fatalf("expected size 16, got %d", r.Size())
	}
	if s := r.String(); s != "AllocationRequest(shapes: [12c, 4], label: Label(3))" {
		t.Fatalf("unexpected string %q", s)
	}
	o := r
	o.Shapes = []padibus.Shape{{4, false}, {12, true}}
	if r.Equal(o) {
		t.Fatal("shape order ignored")
	}
	if !r.Equal(padibus.AllocationRequest{Shapes: []padibus.Shape{{12, true}, {4, false}}, Label: 3}) {
		t.Fatal("equal requests differ")
	}
}

func TestValid(t *testing.T) {
	reqs := []padibus.AllocationRequest{
		{Shapes: []padibus.Shape{{2, true}}, Label: 0},
		{Shapes: []padibus.Shape{{1, false}}, Label: 1},
	}
	alloc := func(ds ...coord.SynapseDriver) padibus.Allocation {
		var a []padibus.DriverMask
		for _, d := range ds {
			a = append(a, padibus.DriverMask{Driver: d})
		}
		return padibus.Allocation{Drivers: [][]padibus.DriverMask{a}}
	}
	data := []struct {
		name   string
		allocs []padibus.Allocation
		want   bool
	}{
		{"ok", []padibus.Allocation{alloc(4, 5), alloc(0)}, true},
		{"missing", []padibus.Allocation{alloc(4, 5)}, false},
		{"gap", []padibus.Allocation{alloc(4, 6), alloc(0)}, false},
		{"size", []padibus.Allocation{alloc(4, 5), alloc(0, 1)}, false},
		{"overlap", []padibus.Allocation{alloc(4, 5), alloc(5)}, false},
		{"duplicate", []padibus.Allocation{alloc(4, 4), alloc(0)}, false},
		{"shapes", []padibus.Allocation{{}, alloc(0)}, false},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			if got := padibus.Valid(d.allocs, reqs); got != d.want {
				t.Fatalf("expected %v, got %v", d.want, got)
			}
		})
	}
}

func TestIsContiguous(t *testing.T) {
	if !padibus.IsContiguous(nil) || !padibus.IsContiguous([]coord.SynapseDriver{7, 5, 6}) {
		t.Fatal("contiguous drivers rejected")
	}
	if padibus.IsContiguous([]coord.SynapseDriver{1, 3}) {
		t.Fatal("non contiguous drivers accepted")
	}
}

type randomRequests []padibus.AllocationRequest

func (randomRequests) Generate(r *rand.Rand, size int) reflect.Value {
	n := 1 + r.Intn(4)
	labels := r.Perm(coord.LabelSize)[:n]
	reqs := make(randomRequests, n)
	for i := range reqs {
		reqs[i].Label = coord.Label(labels[i])
		for k := r.Intn(3); k >= 0; k-- {
			reqs[i].Shapes = append(reqs[i].Shapes, padibus.Shape{Size: 1 + r.Intn(4), Contiguous: r.Intn(2) == 0})
		}
	}
	return reflect.ValueOf(reqs)
}

// Any solution returned is valid.
func TestSolve_properties(t *testing.T) {
	m := padibus.NewManager()
	f := func(reqs randomRequests) bool {
		g, gok := m.Solve(reqs, padibus.DefaultPolicy)
		if gok && !padibus.Valid(g, reqs) {
			return false
		}
		b, bok := m.Solve(reqs, padibus.Limit(100*time.Millisecond))
		return !bok || padibus.Valid(b, reqs)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatal(err)
	}
}

func TestAllocationRequest_shapeOrder(t *testing.T) {
	data := []struct {
		shapes []padibus.Shape
		want   bool
	}{
		{nil, false},
		{[]padibus.Shape{{3, false}, {4, false}}, false},
		{[]padibus.Shape{{3, true}, {3, true}}, false},
		{[]padibus.Shape{{3, true}, {4, false}}, true},
	}
	for _, d := range data {
		r := padibus.AllocationRequest{Shapes: d.shapes}
		if got := r.IsSensitiveForShapeAllocationOrder(); got != d.want {
			t.Errorf("%v: expected %v, got %v", r, d.want, got)
		}
	}
}
