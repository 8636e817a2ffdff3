package solve

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/n0madic/go-discrete-choice/dense"
	"github.com/n0madic/go-discrete-choice/model"
	"github.com/n0madic/go-discrete-choice/statespace"
)

// worker solves partitions sequentially with its own scratch buffers.
type worker struct {
	r        *run
	cont     *continuations
	wage     []bool
	nPeriods int

	wages   []float64
	nonpecs []float64
	cv      []float64
	coords  []int
}

func (r *run) newWorker() *worker {
	m := r.solver.ss.Model()
	return &worker{
		r:        r,
		cont:     newContinuations(r.solver.table, r.emax),
		wage:     m.WageMask(),
		nPeriods: m.NPeriods(),
		wages:    make([]float64, m.NChoices()),
		nonpecs:  make([]float64, m.NChoices()),
		cv:       make([]float64, m.NChoices()),
		coords:   make([]int, 0, m.CoordsLen()),
	}
}

// solve fills the expected values of partition key.
func (w *worker) solve(key dense.Key) error {
	start := time.Now()
	s := w.r.solver
	p := s.table.Partition(key)
	out := w.r.emax[key]
	defer func() {
		partitionDuration.Observe(time.Since(start).Seconds())
		statesTotal.Add(float64(p.NStates))
	}()

	if p.ChoiceSet.Empty() {
		clear(out)
		partitionsTotal.WithLabelValues("exact").Inc()
		return nil
	}

	idx := p.ChoiceSet.Indices()
	shocks := w.r.shocks[drawKey{period: p.Period, cs: p.ChoiceSet}]
	group := s.ss.Group(p.CoreKey)
	withCont := w.r.params.Delta > 0 && p.Period < w.nPeriods-1

	if pts := s.interpolationPoints; pts > 0 && p.NStates > pts && pts > 1+2*len(idx) {
		ok, err := w.interpolate(p, group, idx, shocks, withCont)
		if err != nil {
			return err
		}
		if ok {
			partitionsTotal.WithLabelValues("interpolated").Inc()
			return nil
		}
	}

	cv := w.cv[:len(idx)]
	for i, st := range group.States {
		if err := w.values(st, p, idx, withCont); err != nil {
			return err
		}
		out[i] = expectedMax(shocks, idx, w.wage, w.wages, w.nonpecs, cv, w.r.params.Delta)
	}
	partitionsTotal.WithLabelValues("exact").Inc()
	return nil
}

// values loads rewards and continuation values of one state into the
// worker buffers.
func (w *worker) values(st model.State, p *dense.Partition, idx []int, withCont bool) error {
	clear(w.wages)
	clear(w.nonpecs)
	w.r.params.Rewards(st, p.Covariates, w.wages, w.nonpecs)

	cv := w.cv[:len(idx)]
	if !withCont {
		clear(cv)
		return nil
	}
	w.coords = st.Coords(w.coords)
	return w.cont.fill(w.coords, p.DenseIndex, idx, cv)
}

// interpolate computes exact expected values on a seeded random subset of
// the partition and predicts the rest by regressing the gap between the
// expected maximum and the maximum at mean shocks on
// [1, maxE-v_j, sqrt(maxE-v_j)]. It reports false when the regression
// cannot be solved; out is then left for the exact path.
func (w *worker) interpolate(p *dense.Partition, group *statespace.CoreGroup, idx []int, shocks *mat.Dense, withCont bool) (bool, error) {
	s := w.r.solver
	delta := w.r.params.Delta
	n, k := p.NStates, len(idx)
	points := s.interpolationPoints
	out := w.r.emax[p.Key]
	cv := w.cv[:k]

	means := make([]float64, k)
	for j := range idx {
		means[j] = stat.Mean(mat.Col(nil, j, shocks), nil)
	}

	rng := rand.New(rand.NewSource(s.seed + int64(p.Key)))
	sampled := make([]bool, n)
	for _, i := range rng.Perm(n)[:points] {
		sampled[i] = true
	}

	regs := mat.NewDense(n, 1+2*k, nil)
	maxe := make([]float64, n)
	v := make([]float64, k)
	for i, st := range group.States {
		if err := w.values(st, p, idx, withCont); err != nil {
			return false, err
		}
		best := math.Inf(-1)
		for j, c := range idx {
			v[j] = flowValue(w.wage[c], w.wages[c], means[j], w.nonpecs[c]) + delta*cv[j]
			best = math.Max(best, v[j])
		}
		maxe[i] = best
		regs.Set(i, 0, 1)
		for j := range idx {
			gap := best - v[j]
			regs.Set(i, 1+j, gap)
			regs.Set(i, 1+k+j, math.Sqrt(gap))
		}
		if sampled[i] {
			out[i] = expectedMax(shocks, idx, w.wage, w.wages, w.nonpecs, cv, delta)
		}
	}

	x := mat.NewDense(points, 1+2*k, nil)
	y := make([]float64, 0, points)
	for i := range group.States {
		if sampled[i] {
			x.SetRow(len(y), regs.RawRowView(i))
			y = append(y, out[i]-maxe[i])
		}
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, mat.NewVecDense(points, y)); err != nil {
		w.r.logger.Debug("interpolation regression failed, solving exactly",
			"partition", p.Complex.Name(Topic), "error", err)
		return false, nil
	}

	var fitted mat.VecDense
	fitted.MulVec(regs, &beta)
	est := make([]float64, 0, points)
	predicted := make([]float64, n)
	for i := range group.States {
		f := fitted.AtVec(i)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false, nil
		}
		if sampled[i] {
			est = append(est, f)
			continue
		}
		predicted[i] = maxe[i] + math.Max(0, f)
	}
	for i := range group.States {
		if !sampled[i] {
			out[i] = predicted[i]
		}
	}

	r2 := stat.RSquaredFrom(est, y, nil)
	interpolationRSquared.Observe(r2)
	w.r.logger.Debug("partition interpolated",
		"partition", p.Complex.Name(Topic),
		"states", n,
		"points", points,
		"r_squared", r2)
	return true, nil
}
