package grenade

import (
	"github.com/electronicvisions/grenade-sub004/coord"
	"github.com/pkg/errors"
)

// WeightSplit distributes weight w over n hardware synapses: as many
// synapses as possible get coord.WeightMax, the next one the remainder and
// all others zero.
//
// It returns an error if w is negative or does not fit n synapses.
//
func WeightSplit(w, n int) ([]int, error) {
	if w < 0 {
		return nil, errors.Errorf("negative weight %d", w)
	}
	if w > n*coord.WeightMax {
		return nil, errors.Errorf("weight %d does not fit %d hardware synapse(s)", w, n)
	}
	ws := make([]int, n)
	for i := range ws {
		d := w
		if d > coord.WeightMax {
			d = coord.WeightMax
		}
		ws[i] = d
		w -= d
	}
	return ws, nil
}
