package solve

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-discrete-choice/dense"
	"github.com/n0madic/go-discrete-choice/statespace"
)

// expectedMax is the Monte-Carlo mean over the rows of shocks of the best
// value function among the choices idx. Column j of shocks and entry j of
// cont belong to idx[j]; wages and nonpecs are indexed by choice. Ties keep
// the first choice.
func expectedMax(shocks *mat.Dense, idx []int, wage []bool, wages, nonpecs, cont []float64, delta float64) float64 {
	if len(idx) == 0 {
		return 0
	}
	rows, _ := shocks.Dims()
	sum := 0.0
	for r := 0; r < rows; r++ {
		row := shocks.RawRowView(r)
		best := math.Inf(-1)
		for j, c := range idx {
			v := flowValue(wage[c], wages[c], row[j], nonpecs[c]) + delta*cont[j]
			if v > best {
				best = v
			}
		}
		sum += best
	}
	return sum / float64(rows)
}

// flowValue is the flow utility of one choice for one shock. Wage shocks
// are already exponentiated; other shocks enter additively.
func flowValue(hasWage bool, wage, shock, nonpec float64) float64 {
	if hasWage {
		return wage*shock + nonpec
	}
	return shock + nonpec
}

// continuations is the state of one worker computing continuation values.
// It is not safe for concurrent use.
type continuations struct {
	ss     *statespace.StateSpace
	table  *dense.Table
	emax   [][]float64
	coords []int
	next   []int
}

func newContinuations(table *dense.Table, emax [][]float64) *continuations {
	ss := table.StateSpace()
	n := ss.Model().CoordsLen()
	return &continuations{
		ss:     ss,
		table:  table,
		emax:   emax,
		coords: make([]int, 0, n),
		next:   make([]int, 0, n),
	}
}

// fill writes the continuation value of every choice in idx for state
// coordinates coords and dense index d into dst: the expected value of the
// successor, averaged over the next period's dense transitions.
func (c *continuations) fill(coords []int, d int, idx []int, dst []float64) error {
	m := c.ss.Model()
	ix := c.ss.Indexer()
	for j, choice := range idx {
		c.next = statespace.NextCoords(m, coords, choice, c.next)
		pos := ix.Lookup(c.next)
		if !pos.Valid() {
			return fmt.Errorf("%w: successor %v of %v under choice %d not indexed",
				ErrInconsistentStateSpace, c.next, coords, choice)
		}
		v := 0.0
		for _, tr := range c.table.NextDense(d) {
			v += tr.Prob * c.emax[c.table.Key(pos.Key, tr.DenseIndex)][pos.Index]
		}
		dst[j] = v
	}
	return nil
}
