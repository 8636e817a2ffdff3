package dense

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/n0madic/go-discrete-choice/model"
	"github.com/n0madic/go-discrete-choice/statespace"
)

// Key identifies one independently solvable sub-problem: a core key combined
// with a dense covariate combination.
type Key int32

// ErrUnknownState is returned when an observation maps to no state.
var ErrUnknownState = errors.New("observation does not map to a state")

// Partition describes one sub-problem.
type Partition struct {
	Key           Key
	CoreKey       int32
	DenseIndex    int
	Covariates    []int
	Period        int
	CoreChoiceSet model.ChoiceSet
	ChoiceSet     model.ChoiceSet // core choice set refined by dense restrictions
	Complex       model.ComplexIndex
	NStates       int
}

// Transition is a reachable dense index of the next period and its probability.
type Transition struct {
	DenseIndex int
	Prob       float64
}

// Table assigns dense keys to every combination of core key and dense
// covariates. It is immutable and safe for concurrent use.
type Table struct {
	ss          *statespace.StateSpace
	nDense      int
	radix       []int
	strides     []int
	covariates  [][]int
	transitions [][]Transition
	partitions  []Partition
	byPeriod    [][]Key
}

// NewTable enumerates the dense covariate domain of the state space's model
// and builds every partition.
func NewTable(ss *statespace.StateSpace) *Table {
	m := ss.Model()
	t := &Table{
		ss:       ss,
		nDense:   m.NDense(),
		radix:    m.DenseRadix(),
		byPeriod: make([][]Key, ss.NPeriods()),
	}

	// Mixed radix with the last column varying fastest.
	t.strides = make([]int, len(t.radix))
	stride := 1
	for i := len(t.radix) - 1; i >= 0; i-- {
		t.strides[i] = stride
		stride *= t.radix[i]
	}

	t.covariates = make([][]int, t.nDense)
	for d := range t.covariates {
		covs := make([]int, len(t.radix))
		rest := d
		for i := range covs {
			covs[i] = rest / t.strides[i]
			rest %= t.strides[i]
		}
		t.covariates[d] = covs
	}
	t.transitions = t.exogenousTransitions(m)

	groups := ss.Groups()
	t.partitions = make([]Partition, len(groups)*t.nDense)
	for _, g := range groups {
		for d := 0; d < t.nDense; d++ {
			key := t.Key(g.Key, d)
			var ci model.ComplexIndex
			if t.nDense > 1 {
				ci, _ = model.NewComplexIndex(g.Period, g.ChoiceSet, m.NChoices(), d)
			} else {
				ci, _ = model.NewComplexIndex(g.Period, g.ChoiceSet, m.NChoices())
			}
			t.partitions[key] = Partition{
				Key:           key,
				CoreKey:       g.Key,
				DenseIndex:    d,
				Covariates:    t.covariates[d],
				Period:        g.Period,
				CoreChoiceSet: g.ChoiceSet,
				ChoiceSet:     g.ChoiceSet.And(m.DenseChoiceSet(t.covariates[d])),
				Complex:       ci,
				NStates:       len(g.States),
			}
		}
	}
	for p := 0; p < ss.NPeriods(); p++ {
		for _, ck := range ss.KeysInPeriod(p) {
			for d := 0; d < t.nDense; d++ {
				t.byPeriod[p] = append(t.byPeriod[p], t.Key(ck, d))
			}
		}
	}

	return t
}

// exogenousTransitions computes, for every dense index, the distribution of
// next-period dense indices. Observables and types never change.
func (t *Table) exogenousTransitions(m *model.Model) [][]Transition {
	procs := m.ExogenousProcesses()
	offset := m.ExogenousOffset()
	out := make([][]Transition, t.nDense)

	for d, covs := range t.covariates {
		dist := []Transition{{DenseIndex: d, Prob: 1}}
		for j, p := range procs {
			col := offset + j
			row := p.Transition[covs[col]]
			var next []Transition
			for _, tr := range dist {
				base := tr.DenseIndex - covs[col]*t.strides[col]
				for level, prob := range row {
					if prob == 0 {
						continue
					}
					next = append(next, Transition{
						DenseIndex: base + level*t.strides[col],
						Prob:       tr.Prob * prob,
					})
				}
			}
			dist = next
		}
		out[d] = dist
	}
	return out
}

// StateSpace returns the underlying core state space.
func (t *Table) StateSpace() *statespace.StateSpace { return t.ss }

// Key returns the dense key of a core key and dense index.
func (t *Table) Key(coreKey int32, denseIndex int) Key {
	return Key(int(coreKey)*t.nDense + denseIndex)
}

// NDense returns the number of dense covariate combinations.
func (t *Table) NDense() int { return t.nDense }

// Len returns the number of partitions.
func (t *Table) Len() int { return len(t.partitions) }

// Partition returns the partition of key.
func (t *Table) Partition(key Key) *Partition { return &t.partitions[key] }

// Partitions returns all partitions indexed by key.
func (t *Table) Partitions() []Partition { return t.partitions }

// InPeriod returns the keys of period p ordered by core key and dense index.
func (t *Table) InPeriod(p int) []Key { return t.byPeriod[p] }

// Covariates returns the dense covariates of a dense index.
func (t *Table) Covariates(denseIndex int) []int { return t.covariates[denseIndex] }

// NextDense returns the dense indices reachable in the next period.
func (t *Table) NextDense(denseIndex int) []Transition { return t.transitions[denseIndex] }

// DenseIndex maps covariates to their dense index.
func (t *Table) DenseIndex(covariates []int) (int, error) {
	if len(covariates) != len(t.radix) {
		return 0, fmt.Errorf("got %d dense covariates, want %d", len(covariates), len(t.radix))
	}
	d := 0
	for i, c := range covariates {
		if c < 0 || c >= t.radix[i] {
			return 0, fmt.Errorf("dense covariate %d = %d outside [0, %d)", i, c, t.radix[i])
		}
		d += c * t.strides[i]
	}
	return d, nil
}

// Schedule distributes keys over at most workers bins so that the number of
// states per bin is balanced, assigning the largest partitions first to the
// least loaded bin.
func (t *Table) Schedule(keys []Key, workers int) [][]Key {
	if len(keys) == 0 {
		return nil
	}
	workers = max(1, min(workers, len(keys)))

	sorted := slices.Clone(keys)
	slices.SortStableFunc(sorted, func(a, b Key) int {
		return cmp.Compare(t.partitions[b].NStates, t.partitions[a].NStates)
	})

	bins := make([][]Key, workers)
	loads := make([]int, workers)
	for _, k := range sorted {
		i := 0
		for j := 1; j < workers; j++ {
			if loads[j] < loads[i] {
				i = j
			}
		}
		bins[i] = append(bins[i], k)
		loads[i] += max(1, t.partitions[k].NStates)
	}
	return bins
}

// Load returns the number of states in a bin.
func (t *Table) Load(bin []Key) int {
	n := 0
	for _, k := range bin {
		n += t.partitions[k].NStates
	}
	return n
}
