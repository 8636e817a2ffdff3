package solve

import (
	"log/slog"

	"github.com/n0madic/go-discrete-choice/cache"
	"github.com/n0madic/go-discrete-choice/draws"
	"github.com/n0madic/go-discrete-choice/model"
)

// Option configures a Solver.
type Option func(*Solver)

// WithOptions applies every numeric setting of opts. Cache settings are not
// applied here; open the store with cache.Open and pass it to WithStore.
func WithOptions(opts model.Options) Option {
	return func(s *Solver) {
		s.nDraws = opts.SolutionDraws
		s.seed = opts.SolutionSeed
		s.sequence = draws.Sequence(opts.MonteCarloSequence)
		s.interpolationPoints = opts.InterpolationPoints
		s.workers = opts.Workers
	}
}

// WithDraws sets the number of Monte-Carlo draws per period.
func WithDraws(n int) Option {
	return func(s *Solver) {
		s.nDraws = n
	}
}

// WithSeed sets the seed of the solution draws.
func WithSeed(seed int64) Option {
	return func(s *Solver) {
		s.seed = seed
	}
}

// WithSequence sets the draw sequence family.
func WithSequence(seq draws.Sequence) Option {
	return func(s *Solver) {
		s.sequence = seq
	}
}

// WithWorkers sets the number of parallel workers. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Solver) {
		s.workers = n
	}
}

// WithInterpolation enables interpolation of expected values for
// partitions with more than points states. Zero or less disables it.
func WithInterpolation(points int) Option {
	return func(s *Solver) {
		s.interpolationPoints = points
	}
}

// WithStore persists expected values of every solved period to store.
func WithStore(store cache.Store) Option {
	return func(s *Solver) {
		s.store = store
	}
}

// WithResume makes Solve reuse periods whose partitions are all present in
// the store instead of clearing it.
func WithResume(resume bool) Option {
	return func(s *Solver) {
		s.resume = resume
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}
