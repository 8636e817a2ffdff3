// Package solve computes expected value functions of a dynamic discrete
// choice model by backward induction with Monte-Carlo integration.
package solve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-discrete-choice/cache"
	"github.com/n0madic/go-discrete-choice/dense"
	"github.com/n0madic/go-discrete-choice/draws"
	"github.com/n0madic/go-discrete-choice/model"
	"github.com/n0madic/go-discrete-choice/statespace"
)

// Topic is the cache topic of expected values.
const Topic = "emax"

// ErrInconsistentStateSpace is returned when a successor reached by the law
// of motion is missing from the state space.
var ErrInconsistentStateSpace = errors.New("inconsistent state space")

// RewardFunc fills per-choice wages and non-pecuniary rewards of a state
// with the given dense covariates. Both slices have one entry per choice.
// Wages of choices without wage are ignored.
//
// Workers call it concurrently, so it must be safe for concurrent use. The
// slices belong to the calling worker and are only valid during the call.
type RewardFunc func(s model.State, covariates []int, wages, nonpecs []float64)

// Params are the parameters of one solve.
type Params struct {
	Delta    float64
	ShockCov *mat.SymDense
	Rewards  RewardFunc
}

func (p Params) validate(nChoices int) error {
	if math.IsNaN(p.Delta) || math.IsInf(p.Delta, 0) || p.Delta < 0 {
		return &model.ConfigError{Field: "delta", Reason: fmt.Sprintf("%v must be finite and non-negative", p.Delta)}
	}
	if p.Rewards == nil {
		return &model.ConfigError{Field: "rewards", Reason: "must not be nil"}
	}
	if p.ShockCov == nil || p.ShockCov.SymmetricDim() != nChoices {
		return &model.ConfigError{Field: "shock covariance", Reason: fmt.Sprintf("must be %dx%d", nChoices, nChoices)}
	}
	return nil
}

// Solver solves a fixed state space for varying parameters. Base draws are
// generated once by New and reused by every Solve.
type Solver struct {
	ss    *statespace.StateSpace
	table *dense.Table

	nDraws              int
	seed                int64
	sequence            draws.Sequence
	interpolationPoints int
	workers             int
	store               cache.Store
	resume              bool
	logger              *slog.Logger

	base *draws.BaseDraws
}

// New validates the options and generates the base draws.
func New(table *dense.Table, opts ...Option) (*Solver, error) {
	defaults := model.DefaultOptions()
	s := &Solver{
		ss:                  table.StateSpace(),
		table:               table,
		nDraws:              defaults.SolutionDraws,
		seed:                defaults.SolutionSeed,
		sequence:            draws.Sequence(defaults.MonteCarloSequence),
		interpolationPoints: defaults.InterpolationPoints,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.workers < 0 {
		return nil, &model.ConfigError{Field: "workers", Reason: "must not be negative"}
	}
	if s.workers == 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	m := s.ss.Model()
	base, err := draws.Base(draws.Shape{Periods: m.NPeriods(), Draws: s.nDraws, Choices: m.NChoices()}, s.seed, s.sequence)
	if err != nil {
		return nil, err
	}
	s.base = base
	return s, nil
}

// Table returns the partition table the solver works on.
func (s *Solver) Table() *dense.Table { return s.table }

// Draws returns the base draws.
func (s *Solver) Draws() *draws.BaseDraws { return s.base }

type drawKey struct {
	period int
	cs     model.ChoiceSet
}

// Solve computes the expected value of every state of every partition.
// Periods are solved from the last to the first; partitions of one period
// run in parallel and the next period starts only when all of them are
// done. With a zero discount factor no continuation values are needed and
// all periods form a single stage.
//
// Without WithResume the store, if any, is cleared first. Entries are
// written once a whole period has been computed.
func (s *Solver) Solve(ctx context.Context, params Params) (*Solution, error) {
	m := s.ss.Model()
	if err := params.validate(m.NChoices()); err != nil {
		return nil, err
	}
	chol, err := draws.ShockCholesky(params.ShockCov)
	if err != nil {
		return nil, &model.ConfigError{Field: "shock covariance", Reason: err.Error()}
	}

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	start := time.Now()
	logger.Info("solve started",
		"periods", m.NPeriods(),
		"states", s.ss.NStates(),
		"partitions", s.table.Len(),
		"draws", s.nDraws,
		"delta", params.Delta,
		"workers", s.workers)

	if s.store != nil && !s.resume {
		if err := s.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear cache: %w", err)
		}
	}

	emax := make([][]float64, s.table.Len())
	for i := range emax {
		emax[i] = make([]float64, s.table.Partition(dense.Key(i)).NStates)
	}

	run := &run{
		solver: s,
		params: params,
		chol:   chol,
		emax:   emax,
		logger: logger,
	}

	// A recomputed period invalidates the cached periods before it unless
	// periods are independent.
	restoring := s.resume && s.store != nil
	var stages [][]int
	for t := m.NPeriods() - 1; t >= 0; t-- {
		if restoring {
			ok, err := run.loadPeriod(ctx, t)
			if err != nil {
				return nil, err
			}
			if ok {
				logger.Debug("period restored from cache", "period", t)
				continue
			}
			restoring = params.Delta == 0
		}
		if params.Delta == 0 && len(stages) > 0 {
			stages[0] = append(stages[0], t)
			continue
		}
		stages = append(stages, []int{t})
	}

	for _, periods := range stages {
		if err := run.stage(ctx, periods); err != nil {
			return nil, err
		}
	}

	logger.Info("solve finished", "duration", time.Since(start))
	return &Solution{RunID: runID, Delta: params.Delta, table: s.table, emax: emax}, nil
}

// run carries the state of one Solve.
type run struct {
	solver *Solver
	params Params
	chol   *mat.TriDense
	emax   [][]float64
	logger *slog.Logger
	shocks map[drawKey]*mat.Dense
}

// loadPeriod restores period t from the store. It reports false unless
// every partition of the period is present with the right length.
func (r *run) loadPeriod(ctx context.Context, t int) (bool, error) {
	table := r.solver.table
	keys := table.InPeriod(t)
	loaded := make([][]float64, len(keys))
	for i, key := range keys {
		p := table.Partition(key)
		f, err := r.solver.store.Load(ctx, Topic, p.Complex)
		if errors.Is(err, cache.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("resume period %d: %w", t, err)
		}
		values, ok := f.Column(Topic)
		if !ok || len(values) != p.NStates {
			return false, nil
		}
		loaded[i] = values
	}
	for i, key := range keys {
		copy(r.emax[key], loaded[i])
	}
	partitionsTotal.WithLabelValues("cached").Add(float64(len(keys)))
	return true, nil
}

// stage solves all partitions of the given periods in parallel and then
// persists them.
func (r *run) stage(ctx context.Context, periods []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.solver
	start := time.Now()

	var keys []dense.Key
	for _, t := range periods {
		keys = append(keys, s.table.InPeriod(t)...)
	}
	r.prepareShocks(keys)

	bins := s.table.Schedule(keys, s.workers)
	g, gctx := errgroup.WithContext(ctx)
	for _, bin := range bins {
		g.Go(func() error {
			w := r.newWorker()
			for _, key := range bin {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.solve(key); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.store != nil {
		for _, key := range keys {
			p := s.table.Partition(key)
			if err := s.store.Store(ctx, Topic, p.Complex, cache.NewFrame(Topic, r.emax[key])); err != nil {
				return fmt.Errorf("persist %s: %w", p.Complex.Name(Topic), err)
			}
		}
	}

	elapsed := time.Since(start)
	stageDuration.Observe(elapsed.Seconds())
	r.logger.Debug("stage solved",
		"periods", periods,
		"partitions", len(keys),
		"states", s.table.Load(keys),
		"bins", len(bins),
		"duration", elapsed)
	return nil
}

// prepareShocks transforms the base draws once for every (period, choice
// set) of keys. The map is read-only while workers run.
func (r *run) prepareShocks(keys []dense.Key) {
	s := r.solver
	wage := s.ss.Model().WageMask()
	r.shocks = make(map[drawKey]*mat.Dense)
	for _, key := range keys {
		p := s.table.Partition(key)
		dk := drawKey{period: p.Period, cs: p.ChoiceSet}
		if _, ok := r.shocks[dk]; ok || p.ChoiceSet.Empty() {
			continue
		}
		r.shocks[dk] = draws.Transform(s.base.Period(p.Period), r.chol, p.ChoiceSet, wage)
	}
}
