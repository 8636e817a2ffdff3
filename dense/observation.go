package dense

import (
	"fmt"

	"github.com/n0madic/go-discrete-choice/model"
)

// Observation is an observed individual-period: its core state and its
// dense covariates in model column order.
type Observation struct {
	State      model.State
	Covariates []int
}

// MapObservation returns the sub-problem and core index an observation
// belongs to, as needed to read its value functions.
func (t *Table) MapObservation(o Observation) (Key, int32, error) {
	m := t.ss.Model()
	coords := o.State.Coords(make([]int, 0, m.CoordsLen()))
	if len(coords) != m.CoordsLen() {
		return 0, 0, fmt.Errorf("%w: state %v has %d coordinates, want %d", ErrUnknownState, o.State, len(coords), m.CoordsLen())
	}
	domain := m.Domain()
	for i, c := range coords {
		if c < 0 || c >= domain[i] {
			return 0, 0, fmt.Errorf("%w: state %v outside the model domain", ErrUnknownState, o.State)
		}
	}

	pos := t.ss.Indexer().Lookup(coords)
	if !pos.Valid() {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnknownState, o.State)
	}

	d, err := t.DenseIndex(o.Covariates)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnknownState, err)
	}
	return t.Key(pos.Key, d), pos.Index, nil
}

// MapObservations maps a batch of observations.
func (t *Table) MapObservations(obs []Observation) ([]Key, []int32, error) {
	keys := make([]Key, len(obs))
	indices := make([]int32, len(obs))
	for i, o := range obs {
		k, idx, err := t.MapObservation(o)
		if err != nil {
			return nil, nil, fmt.Errorf("observation %d: %w", i, err)
		}
		keys[i], indices[i] = k, idx
	}
	return keys, indices, nil
}
