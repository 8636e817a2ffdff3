package statespace

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/n0madic/go-discrete-choice/indexer"
	"github.com/n0madic/go-discrete-choice/model"
)

const snapshotVersion = 1

// Snapshot is the serializable form of a StateSpace. Workers in other
// processes load it instead of enumerating the space again.
type Snapshot struct {
	Version int             `gob:"version"`
	Domain  []int           `gob:"domain"`
	Periods int             `gob:"periods"`
	Groups  []GroupSnapshot `gob:"groups"`
}

// GroupSnapshot stores one core group with its states' coordinates
// flattened in core index order.
type GroupSnapshot struct {
	Key       int32   `gob:"key"`
	Period    int     `gob:"period"`
	ChoiceSet uint64  `gob:"choice_set"`
	Coords    []int32 `gob:"coords"`
}

// Save serializes the state space to gob format
func (ss *StateSpace) Save(w io.Writer) error {
	snap := Snapshot{
		Version: snapshotVersion,
		Domain:  ss.model.Domain(),
		Periods: len(ss.periods),
		Groups:  make([]GroupSnapshot, len(ss.groups)),
	}

	coords := make([]int, 0, ss.model.CoordsLen())
	for i, g := range ss.groups {
		gs := GroupSnapshot{
			Key:       g.Key,
			Period:    g.Period,
			ChoiceSet: uint64(g.ChoiceSet),
			Coords:    make([]int32, 0, len(g.States)*ss.model.CoordsLen()),
		}
		for _, s := range g.States {
			for _, c := range s.Coords(coords) {
				gs.Coords = append(gs.Coords, int32(c))
			}
		}
		snap.Groups[i] = gs
	}

	return gob.NewEncoder(w).Encode(snap)
}

// Load deserializes a state space saved for m and rebuilds its indexer.
func Load(r io.Reader, m *model.Model) (*StateSpace, error) {
	var snap Snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode state space: %w", err)
	}

	if snap.Version != snapshotVersion {
		return nil, errors.New("unsupported state space snapshot version")
	}
	if !slices.Equal(snap.Domain, m.Domain()) || snap.Periods != m.NPeriods() {
		return nil, errors.New("state space snapshot does not match the model")
	}

	ix, err := indexer.New(m.Domain())
	if err != nil {
		return nil, err
	}

	ss := &StateSpace{
		model:   m,
		indexer: ix,
		groups:  make([]CoreGroup, len(snap.Groups)),
		periods: make([][]int32, snap.Periods),
	}

	width := m.CoordsLen()
	coords := make([]int, width)
	for i, gs := range snap.Groups {
		if gs.Key != int32(i) || gs.Period < 0 || gs.Period >= snap.Periods || len(gs.Coords)%width != 0 {
			return nil, fmt.Errorf("invalid core group %d in snapshot", i)
		}
		g := CoreGroup{Key: gs.Key, Period: gs.Period, ChoiceSet: model.ChoiceSet(gs.ChoiceSet)}
		for off := 0; off < len(gs.Coords); off += width {
			for j := range coords {
				coords[j] = int(gs.Coords[off+j])
				if coords[j] < 0 || coords[j] >= snap.Domain[j] {
					return nil, fmt.Errorf("coordinate %d of core group %d outside domain", j, i)
				}
			}
			if coords[0] != g.Period {
				return nil, fmt.Errorf("state of core group %d is not in period %d", i, g.Period)
			}
			if _, inserted := ix.Insert(coords, g.Key); !inserted {
				return nil, fmt.Errorf("duplicate state %v in snapshot", coords)
			}
			g.States = append(g.States, m.StateFromCoords(coords))
		}
		ss.groups[i] = g
		ss.periods[g.Period] = append(ss.periods[g.Period], g.Key)
	}

	ix.Freeze()
	return ss, nil
}
