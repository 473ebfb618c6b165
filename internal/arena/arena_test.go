package arena_test

import (
	"reflect"
	"testing"

	"github.com/electronicvisions/grenade-sub004/internal/arena"
)

func TestArena(t *testing.T) {
	var a arena.Arena[string]
	x := a.Add("x")
	y := a.Add("y")
	z := a.Add("z")
	if a.Len() != 3 {
		t.Fatalf("expected 3 elements, got %d", a.Len())
	}
	if !a.Remove(y) {
		t.Fatal("remove failed")
	}
	if a.Remove(y) {
		t.Fatal("double remove succeeded")
	}
	if v, ok := a.Get(z); !ok || v != "z" {
		t.Fatalf("index of z not stable: %q, %v", v, ok)
	}
	w := a.Add("w")
	if w.Slot != y.Slot || w.Generation == y.Generation {
		t.Fatalf("expected reuse of slot %v with a new generation, got %v", y, w)
	}
	if _, ok := a.Get(y); ok {
		t.Fatal("stale index resolved")
	}
	if a.Set(y, "v") {
		t.Fatal("set through stale index")
	}
	if !reflect.DeepEqual(a.Indices(), []arena.Index{x, w, z}) {
		t.Fatalf("unexpected indices %v", a.Indices())
	}
	if a.Contains(arena.Index{}) {
		t.Fatal("zero index is live")
	}
}

func TestArena_cloneRestore(t *testing.T) {
	var a arena.Arena[int]
	i := a.Add(1)
	j := a.Add(2)
	a.Remove(i)
	c := a.Clone()
	c.Set(j, 3)
	if v, _ := a.Get(j); v != 2 {
		t.Fatal("clone shares storage")
	}

	var r arena.Arena[int]
	if !r.Restore(j, 2) {
		t.Fatal("restore failed")
	}
	if r.Restore(j, 2) {
		t.Fatal("restore over live slot succeeded")
	}
	if v, ok := r.Get(j); !ok || v != 2 || r.Len() != 1 {
		t.Fatalf("unexpected restored arena: %v, %v, %d", v, ok, r.Len())
	}
	// slot 0 was created free and is reused first
	if k := r.Add(5); k.Slot != 0 {
		t.Fatalf("expected slot 0, got %v", k)
	}
}
