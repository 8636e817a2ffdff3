package draws

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/n0madic/go-discrete-choice/model"
)

func TestBaseDeterminism(t *testing.T) {
	shape := Shape{Periods: 3, Draws: 50, Choices: 2}

	for _, seq := range []Sequence{Random, Halton} {
		t.Run(string(seq), func(t *testing.T) {
			a, err := Base(shape, 7, seq)
			require.NoError(t, err)
			b, err := Base(shape, 7, seq)
			require.NoError(t, err)
			c, err := Base(shape, 8, seq)
			require.NoError(t, err)

			for p := 0; p < shape.Periods; p++ {
				r, cols := a.Period(p).Dims()
				assert.Equal(t, shape.Draws, r)
				assert.Equal(t, shape.Choices, cols)
				assert.True(t, mat.Equal(a.Period(p), b.Period(p)))
				assert.False(t, mat.Equal(a.Period(p), c.Period(p)))
			}
			assert.False(t, mat.Equal(a.Period(0), a.Period(1)), "periods must not repeat")
		})
	}
}

func TestBaseIsStandardNormal(t *testing.T) {
	for _, seq := range []Sequence{Random, Halton} {
		t.Run(string(seq), func(t *testing.T) {
			b, err := Base(Shape{Periods: 1, Draws: 4000, Choices: 2}, 3, seq)
			require.NoError(t, err)
			col := mat.Col(nil, 0, b.Period(0))
			mean, std := stat.MeanStdDev(col, nil)
			assert.InDelta(t, 0, mean, 0.06)
			assert.InDelta(t, 1, std, 0.06)
			for _, v := range col {
				assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
			}
		})
	}
}

func TestBaseErrors(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		seq   Sequence
		want  error
	}{
		{name: "sobol", shape: Shape{1, 1, 1}, seq: Sobol, want: ErrSequenceUnavailable},
		{name: "unknown", shape: Shape{1, 1, 1}, seq: "latin", want: ErrUnknownSequence},
		{name: "empty shape", shape: Shape{0, 1, 1}, seq: Random, want: model.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Base(tt.shape, 1, tt.seq)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}
}

func TestShockCholesky(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{
		4, 1, 0,
		1, 2, 0.5,
		0, 0.5, 1,
	})
	L, err := ShockCholesky(cov)
	require.NoError(t, err)

	var got mat.Dense
	got.Mul(L, L.T())
	assert.True(t, mat.EqualApprox(&got, cov, 1e-12))

	// Rank deficient but PSD: succeeds through jitter.
	singular := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	_, err = ShockCholesky(singular)
	assert.NoError(t, err)

	indefinite := mat.NewSymDense(2, []float64{1, 3, 3, 1})
	_, err = ShockCholesky(indefinite)
	assert.Error(t, err)
}

func TestTransform(t *testing.T) {
	base := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		-1, 0, 1,
	})
	L := mat.NewTriDense(3, mat.Lower, []float64{
		1, 0, 0,
		0.5, 2, 0,
		0.1, 0.2, 3,
	})

	t.Run("full set without wages", func(t *testing.T) {
		out := Transform(base, L, model.FullChoiceSet(3), nil)
		want := mat.NewDense(2, 3, []float64{
			1, 0.5 + 4, 0.1 + 0.4 + 9,
			-1, -0.5, -0.1 + 3,
		})
		assert.True(t, mat.EqualApprox(out, want, 1e-12))
	})

	t.Run("subset uses the admissible block", func(t *testing.T) {
		cs := model.FullChoiceSet(3).Without(1)
		out := Transform(base, L, cs, nil)
		want := mat.NewDense(2, 2, []float64{
			1, 0.1 + 9,
			-1, -0.1 + 3,
		})
		assert.True(t, mat.EqualApprox(out, want, 1e-12))
	})

	t.Run("wage columns are exponentiated", func(t *testing.T) {
		out := Transform(base, L, model.FullChoiceSet(3), []bool{true, false, false})
		assert.InDelta(t, math.E, out.At(0, 0), 1e-12)
		assert.InDelta(t, 1/math.E, out.At(1, 0), 1e-12)
		assert.InDelta(t, 4.5, out.At(0, 1), 1e-12)
	})

	t.Run("overflow is clipped", func(t *testing.T) {
		huge := mat.NewDense(1, 1, []float64{1e6})
		one := mat.NewTriDense(1, mat.Lower, []float64{1})
		out := Transform(huge, one, model.FullChoiceSet(1), []bool{true})
		assert.Equal(t, math.Exp(model.MaxLogFloat), out.At(0, 0))
		assert.False(t, math.IsInf(out.At(0, 0), 0))

		tiny := mat.NewDense(1, 1, []float64{-1e6})
		out = Transform(tiny, one, model.FullChoiceSet(1), []bool{true})
		assert.Equal(t, math.Exp(model.MinLogFloat), out.At(0, 0))
	})

	t.Run("empty choice set", func(t *testing.T) {
		assert.Nil(t, Transform(base, L, 0, nil))
	})
}

func TestTransformDeterminism(t *testing.T) {
	b, err := Base(Shape{Periods: 2, Draws: 20, Choices: 3}, 11, Random)
	require.NoError(t, err)
	L, err := ShockCholesky(mat.NewSymDense(3, []float64{1, 0.2, 0, 0.2, 1, 0, 0, 0, 1}))
	require.NoError(t, err)

	cs := model.FullChoiceSet(3).Without(0)
	wage := []bool{true, true, false}
	assert.True(t, mat.Equal(Transform(b.Period(1), L, cs, wage), Transform(b.Period(1), L, cs, wage)))
}
