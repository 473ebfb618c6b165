// Package arena implements slot storage addressed by generation-tagged
// indices.
//
// Removing an element frees its slot without moving other elements, so the
// indices of the remaining elements stay valid. A freed slot is reused by a
// later Add with an incremented generation: stale indices to it are detected
// instead of silently resolving to the new element.
//
package arena

import "strconv"

// Index addresses an element of an Arena. The zero Index is never valid.
//
type Index struct {
	Slot       uint32
	Generation uint32
}

func (i Index) String() string {
	return strconv.FormatUint(uint64(i.Slot), 10) + "@" + strconv.FormatUint(uint64(i.Generation), 10)
}

// Less orders indices by slot, then generation.
//
func (i Index) Less(o Index) bool {
	if i.Slot != o.Slot {
		return i.Slot < o.Slot
	}
	return i.Generation < o.Generation
}

type slot[T any] struct {
	v    T
	gen  uint32
	used bool
}

// Arena holds elements of type T. The zero value is an empty arena ready to
// use.
//
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

// Add stores v and returns its index.
//
func (a *Arena[T]) Add(v T) Index {
	a.n++
	if k := len(a.free); k > 0 {
		s := a.free[k-1]
		a.free = a.free[:k-1]
		a.slots[s].v = v
		a.slots[s].gen++
		a.slots[s].used = true
		return Index{s, a.slots[s].gen}
	}
	a.slots = append(a.slots, slot[T]{v: v, gen: 1, used: true})
	return Index{uint32(len(a.slots) - 1), 1}
}

func (a *Arena[T]) slot(i Index) *slot[T] {
	if int(i.Slot) >= len(a.slots) {
		return nil
	}
	s := &a.slots[i.Slot]
	if !s.used || s.gen != i.Generation {
		return nil
	}
	return s
}

// Contains returns true if i addresses a live element.
//
func (a *Arena[T]) Contains(i Index) bool { return a.slot(i) != nil }

// Get returns the element at i. The second return value is false if i is
// stale or was never returned by Add.
//
func (a *Arena[T]) Get(i Index) (T, bool) {
	if s := a.slot(i); s != nil {
		return s.v, true
	}
	var zero T
	return zero, false
}

// Set replaces the element at i. It returns false if i is not live.
//
func (a *Arena[T]) Set(i Index, v T) bool {
	s := a.slot(i)
	if s == nil {
		return false
	}
	s.v = v
	return true
}

// Remove frees the slot of i. It returns false if i is not live.
//
func (a *Arena[T]) Remove(i Index) bool {
	s := a.slot(i)
	if s == nil {
		return false
	}
	var zero T
	s.v = zero
	s.used = false
	a.free = append(a.free, i.Slot)
	a.n--
	return true
}

// Len returns the number of live elements.
//
func (a *Arena[T]) Len() int { return a.n }

// Indices returns the indices of all live elements in slot order.
//
func (a *Arena[T]) Indices() []Index {
	r := make([]Index, 0, a.n)
	for k := range a.slots {
		if a.slots[k].used {
			r = append(r, Index{uint32(k), a.slots[k].gen})
		}
	}
	return r
}

// Clone returns a copy of a. Elements are copied by assignment.
//
func (a *Arena[T]) Clone() Arena[T] {
	return Arena[T]{
		slots: append([]slot[T](nil), a.slots...),
		free:  append([]uint32(nil), a.free...),
		n:     a.n,
	}
}

// Restore inserts v at index i, growing the arena as needed. It is used to
// rebuild an arena from serialized indices and fails if the slot is live.
//
func (a *Arena[T]) Restore(i Index, v T) bool {
	if i.Generation == 0 {
		return false
	}
	for int(i.Slot) >= len(a.slots) {
		a.slots = append(a.slots, slot[T]{})
		a.free = append(a.free, uint32(len(a.slots)-1))
	}
	s := &a.slots[i.Slot]
	if s.used {
		return false
	}
	for k, f := range a.free {
		if f == i.Slot {
			a.free = append(a.free[:k], a.free[k+1:]...)
			break
		}
	}
	*s = slot[T]{v: v, gen: i.Generation, used: true}
	a.n++
	return true
}
