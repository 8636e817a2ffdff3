package draws

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/n0madic/go-discrete-choice/model"
)

func BenchmarkBaseRandom(b *testing.B) {
	shape := Shape{Periods: 40, Draws: 500, Choices: 5}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Base(shape, int64(i), Random); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBaseHalton(b *testing.B) {
	shape := Shape{Periods: 40, Draws: 500, Choices: 5}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Base(shape, int64(i), Halton); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTransform(b *testing.B) {
	base, err := Base(Shape{Periods: 1, Draws: 500, Choices: 5}, 1, Random)
	if err != nil {
		b.Fatal(err)
	}
	cov := mat.NewSymDense(5, nil)
	for i := 0; i < 5; i++ {
		cov.SetSym(i, i, 1)
	}
	L, err := ShockCholesky(cov)
	if err != nil {
		b.Fatal(err)
	}
	wage := []bool{true, true, false, false, false}
	cs := model.FullChoiceSet(5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Transform(base.Period(0), L, cs, wage)
	}
}
