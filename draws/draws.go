package draws

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	randv2 "math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/n0madic/go-discrete-choice/model"
)

// Sequence names a family of base draws.
type Sequence string

const (
	Random Sequence = "random"
	Halton Sequence = "halton"
	Sobol  Sequence = "sobol"
)

var (
	// ErrUnknownSequence is returned for an unsupported sequence name.
	ErrUnknownSequence = fmt.Errorf("%w: unknown monte carlo sequence", model.ErrInvalidConfig)

	// ErrSequenceUnavailable is returned when a known sequence has no
	// generator linked into the build.
	ErrSequenceUnavailable = fmt.Errorf("%w: monte carlo sequence unavailable", model.ErrInvalidConfig)
)

// Shape is the size of a draw array.
type Shape struct {
	Periods int
	Draws   int
	Choices int
}

// BaseDraws holds standard normal draws, one Draws x Choices matrix per
// period. They are read-only after construction.
type BaseDraws struct {
	shape   Shape
	seed    int64
	seq     Sequence
	periods []*mat.Dense
}

// Base generates reproducible standard normal draws.
func Base(shape Shape, seed int64, seq Sequence) (*BaseDraws, error) {
	if shape.Periods <= 0 || shape.Draws <= 0 || shape.Choices <= 0 {
		return nil, &model.ConfigError{Field: "draw shape", Reason: fmt.Sprintf("%+v must be positive", shape)}
	}

	b := &BaseDraws{shape: shape, seed: seed, seq: seq, periods: make([]*mat.Dense, shape.Periods)}
	switch seq {
	case Random, "":
		b.seq = Random
		rng := rand.New(rand.NewSource(seed))
		for t := range b.periods {
			data := make([]float64, shape.Draws*shape.Choices)
			for i := range data {
				data[i] = rng.NormFloat64()
			}
			b.periods[t] = mat.NewDense(shape.Draws, shape.Choices, data)
		}
	case Halton:
		all := mat.NewDense(shape.Periods*shape.Draws, shape.Choices, nil)
		h := samplemv.Halton{
			Kind: samplemv.Owen,
			Q:    unitNormal{},
			Src:  randv2.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15),
		}
		h.Sample(all)
		for t := range b.periods {
			rows := all.Slice(t*shape.Draws, (t+1)*shape.Draws, 0, shape.Choices)
			b.periods[t] = mat.DenseCopyOf(rows)
		}
	case Sobol:
		return nil, fmt.Errorf("%w: %s", ErrSequenceUnavailable, seq)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSequence, seq)
	}
	return b, nil
}

// Shape returns the draw shape.
func (b *BaseDraws) Shape() Shape { return b.shape }

// Seed returns the seed the draws were generated with.
func (b *BaseDraws) Seed() int64 { return b.seed }

// Sequence returns the sequence family.
func (b *BaseDraws) Sequence() Sequence { return b.seq }

// Period returns the draws of period t. The matrix must not be modified.
func (b *BaseDraws) Period(t int) *mat.Dense { return b.periods[t] }

// unitNormal maps uniform points to standard normal quantiles.
type unitNormal struct{}

const quantileEps = 1e-12

func (unitNormal) Quantile(x, p []float64) []float64 {
	if x == nil {
		x = make([]float64, len(p))
	}
	for i, v := range p {
		x[i] = distuv.UnitNormal.Quantile(math.Min(math.Max(v, quantileEps), 1-quantileEps))
	}
	return x
}

// ShockCholesky returns the lower Cholesky factor of the shock covariance.
// A covariance that is not numerically positive definite is retried once
// with a small diagonal jitter.
func ShockCholesky(cov *mat.SymDense) (*mat.TriDense, error) {
	n := cov.SymmetricDim()
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); ok {
		L := mat.NewTriDense(n, mat.Lower, nil)
		chol.LTo(L)
		return L, nil
	}

	// Adaptive jitter
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	eps := 1e-8 * trace / float64(n)
	jittered := mat.NewSymDense(n, nil)
	jittered.CopySym(cov)
	for i := 0; i < n; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+eps)
	}
	if ok := chol.Factorize(jittered); ok {
		L := mat.NewTriDense(n, mat.Lower, nil)
		chol.LTo(L)
		return L, nil
	}
	return nil, errors.New("cholesky factorization of shock covariance failed even with jitter")
}

// Transform correlates the base draws of the choices in cs: the admissible
// columns of base are multiplied by the transposed admissible block of the
// Cholesky factor. Wage columns are exponentiated after clipping in log
// space. The result has one column per admissible choice in index order.
func Transform(base mat.Matrix, chol mat.Triangular, cs model.ChoiceSet, wage []bool) *mat.Dense {
	idx := cs.Indices()
	rows, _ := base.Dims()
	k := len(idx)
	if k == 0 {
		return nil
	}

	z := mat.NewDense(rows, k, nil)
	for j, c := range idx {
		for i := 0; i < rows; i++ {
			z.Set(i, j, base.At(i, c))
		}
	}
	l := mat.NewDense(k, k, nil)
	for i, ci := range idx {
		for j, cj := range idx[:i+1] {
			l.Set(i, j, chol.At(ci, cj))
		}
	}

	out := mat.NewDense(rows, k, nil)
	out.Mul(z, l.T())
	for j, c := range idx {
		exp := c < len(wage) && wage[c]
		for i := 0; i < rows; i++ {
			v := out.At(i, j)
			if exp {
				v = math.Exp(clip(v, model.MinLogFloat, model.MaxLogFloat))
			}
			out.Set(i, j, clip(v, model.MinFloat, model.MaxFloat))
		}
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
