// Package multidim provides an iterator over all index combinations of a
// multi-dimensional shape, last dimension running fastest.
//
package multidim

// Iterator walks the Cartesian product of [0, shape[i]) for all dimensions i.
//
// The zero-dimensional shape has exactly one (empty) combination. A shape with
// any zero sized dimension has none.
//
type Iterator struct {
	shape []int
	cur   []int
	done  bool
}

// New returns an iterator positioned on the first combination.
//
func New(shape []int) *Iterator {
	it := &Iterator{
		shape: append([]int(nil), shape...),
		cur:   make([]int, len(shape)),
	}
	for _, s := range shape {
		if s <= 0 {
			it.done = true
		}
	}
	return it
}

// Done returns true once all combinations have been visited.
//
func (it *Iterator) Done() bool { return it.done }

// Value returns the current combination. The returned slice is only valid
// until the next call to Next.
//
func (it *Iterator) Value() []int { return it.cur }

// Next advances to the next combination.
//
func (it *Iterator) Next() {
	for i := len(it.cur) - 1; i >= 0; i-- {
		it.cur[i]++
		if it.cur[i] < it.shape[i] {
			return
		}
		it.cur[i] = 0
	}
	it.done = true
}

// Size returns the total number of combinations.
//
func Size(shape []int) int {
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return 0
		}
		n *= s
	}
	return n
}
