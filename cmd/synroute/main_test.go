package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	grenade "github.com/electronicvisions/grenade-sub004"
	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/electronicvisions/grenade-sub004/padibus"
)

func TestParsePolicy(t *testing.T) {
	data := []struct {
		name    string
		timeout time.Duration
		want    padibus.Policy
	}{
		{"greedy", 0, padibus.Greedy{ExclusiveFirst: true}},
		{"greedy-noexcl", time.Second, padibus.Greedy{}},
		{"backtracking", 0, padibus.Backtracking{}},
		{"backtracking", time.Second, padibus.Limit(time.Second)},
	}
	for _, d := range data {
		p, err := parsePolicy(d.name, d.timeout)
		if err != nil {
			t.Fatal(err)
		}
		if p.String() != d.want.String() {
			t.Errorf("%s: expected %v, got %v", d.name, d.want, p)
		}
	}
	if _, err := parsePolicy("random", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseUnavailable(t *testing.T) {
	ds, err := parseUnavailable("0..1", "127")
	if err != nil {
		t.Fatal(err)
	}
	want := []coord.SynapseDriverOnDLS{{Hemisphere: coord.Top, Index: 0}, {Hemisphere: coord.Top, Index: 1}, {Hemisphere: coord.Bottom, Index: 127}}
	if len(ds) != len(want) {
		t.Fatalf("expected %v, got %v", want, ds)
	}
	for i := range ds {
		if ds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ds)
		}
	}
	if _, err = parseUnavailable("128", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestPadiCmd(t *testing.T) {
	var b bytes.Buffer
	if err := padiCmd([]string{"-policy", "backtracking", "-unavailable", "0..3", "label=0 shapes=4c", "label=16 shapes=2"}, &b); err != nil {
		t.Fatal(err)
	}
	want := "AllocationRequest(shapes: [4c], label: Label(0)): " +
		"Allocation(4/Mask(0b10000), 5/Mask(0b10000), 6/Mask(0b10000), 7/Mask(0b10000))\n" +
		"AllocationRequest(shapes: [2], label: Label(16)): " +
		"Allocation(16/Mask(0b10000), 17/Mask(0b10000))\n"
	if b.String() != want {
		t.Fatalf("expected output\n%s\ngot\n%s", want, b.String())
	}
	// label 1 only reaches runs of three drivers next to drivers 0..3
	if err := padiCmd([]string{"-unavailable", "0..3", "label=1 shapes=4c", "label=2 shapes=2"}, &b); err == nil {
		t.Fatal("expected error")
	}
	if err := padiCmd([]string{"label=1 shapes=33"}, &b); err == nil {
		t.Fatal("expected error")
	}
}

func TestRouteCmd(t *testing.T) {
	dir := t.TempDir()
	doc := grenade.NetworkDoc{
		Populations: []grenade.PopulationDoc{
			{Ref: grenade.Ref{Slot: 0}, Kind: grenade.KindExternal, Size: 2},
			{Ref: grenade.Ref{Slot: 1}, Kind: grenade.KindNeuron, Neurons: []int{0, 257}},
		},
		Projections: []grenade.ProjectionDoc{{
			Ref:         grenade.Ref{Slot: 0},
			Receptor:    "excitatory",
			Pre:         grenade.Ref{Slot: 0},
			Post:        grenade.Ref{Slot: 1},
			Connections: []grenade.ConnectionDoc{{Pre: 0, Post: 0, Weight: 10}, {Pre: 1, Post: 1, Weight: 70}},
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(dir, "net.json")
	if err = os.WriteFile(in, b, 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "snapshot.json")

	var w bytes.Buffer
	args := []string{"-in", in, "-out", out, "-cache", "net", "-dir", dir}
	if err = routeCmd(args, &w); err != nil {
		t.Fatal(err)
	}
	if err = routeCmd(args, &w); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(w.String(), `routing reused from cache "net"`) {
		t.Fatalf("unexpected output %q", w.String())
	}
	if b, err = os.ReadFile(out); err != nil {
		t.Fatal(err)
	}
	var s grenade.Snapshot
	if err = json.Unmarshal(b, &s); err != nil {
		t.Fatal(err)
	}
	if _, r, err := s.Decode(); err != nil || r == nil {
		t.Fatalf("snapshot without routing: %v", err)
	}

	cache := t.TempDir()
	w.Reset()
	if err = cacheCmd([]string{"-dir", cache, "-list", out}, &w); err != nil {
		t.Fatal(err)
	}
	if w.String() != "net\n" {
		t.Fatalf("unexpected cache listing %q", w.String())
	}
	w.Reset()
	if err = cacheCmd([]string{"-dir", cache, "-drop", "-list"}, &w); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 0 {
		t.Fatalf("unexpected cache listing after drop %q", w.String())
	}
	if err = cacheCmd([]string{"-dir", cache, in}, &w); err == nil {
		t.Fatal("expected error importing a network as snapshot")
	}
}
