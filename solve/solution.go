package solve

import (
	"context"
	"fmt"

	"github.com/n0madic/go-discrete-choice/cache"
	"github.com/n0madic/go-discrete-choice/dense"
)

// Solution holds the expected values of every partition. It is read-only.
type Solution struct {
	RunID string
	Delta float64

	table *dense.Table
	emax  [][]float64
}

// Table returns the partition table the solution is indexed by.
func (s *Solution) Table() *dense.Table { return s.table }

// ExpectedValues returns the expected values of partition key in core
// index order. The slice must not be modified.
func (s *Solution) ExpectedValues(key dense.Key) []float64 { return s.emax[key] }

// ExpectedValue returns the expected value of one state.
func (s *Solution) ExpectedValue(key dense.Key, index int32) float64 { return s.emax[key][index] }

// Period returns the expected values of every partition of period t.
func (s *Solution) Period(t int) map[dense.Key][]float64 {
	keys := s.table.InPeriod(t)
	out := make(map[dense.Key][]float64, len(keys))
	for _, key := range keys {
		out[key] = s.emax[key]
	}
	return out
}

// ContinuationValues returns, for every admissible choice of the state at
// (key, index) in choice order, the expected value of its successor
// averaged over the dense transitions. They are zero in the last period and
// for solutions with a zero discount factor, where they are never needed.
func (s *Solution) ContinuationValues(key dense.Key, index int32) ([]float64, error) {
	p := s.table.Partition(key)
	ss := s.table.StateSpace()
	idx := p.ChoiceSet.Indices()
	out := make([]float64, len(idx))
	if s.Delta == 0 || p.Period == ss.NPeriods()-1 {
		return out, nil
	}

	st := ss.Group(p.CoreKey).States[index]
	c := newContinuations(s.table, s.emax)
	if err := c.fill(st.Coords(nil), p.DenseIndex, idx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes every partition to store.
func (s *Solution) Save(ctx context.Context, store cache.Store) error {
	for i, values := range s.emax {
		p := s.table.Partition(dense.Key(i))
		if err := store.Store(ctx, Topic, p.Complex, cache.NewFrame(Topic, values)); err != nil {
			return fmt.Errorf("save %s: %w", p.Complex.Name(Topic), err)
		}
	}
	return nil
}

// LoadSolution reads a persisted solution back. A missing partition is
// reported with an error matching cache.ErrNotFound.
func LoadSolution(ctx context.Context, store cache.Store, table *dense.Table, delta float64) (*Solution, error) {
	emax := make([][]float64, table.Len())
	for i := range emax {
		p := table.Partition(dense.Key(i))
		f, err := store.Load(ctx, Topic, p.Complex)
		if err != nil {
			return nil, err
		}
		values, ok := f.Column(Topic)
		if !ok || len(values) != p.NStates {
			return nil, fmt.Errorf("%w: %s has %d values, want %d",
				errSolutionMismatch, p.Complex.Name(Topic), len(values), p.NStates)
		}
		emax[i] = values
	}
	return &Solution{Delta: delta, table: table, emax: emax}, nil
}

var errSolutionMismatch = fmt.Errorf("%w: cached solution does not match the state space", ErrInconsistentStateSpace)
