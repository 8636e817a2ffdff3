package solve

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/n0madic/go-discrete-choice/model"
)

// BenchmarkSolve measures full backward induction across horizons and
// worker counts.
func BenchmarkSolve(b *testing.B) {
	for _, periods := range []int{10, 20} {
		for _, workers := range []int{1, 4} {
			b.Run(fmt.Sprintf("T%d_w%d", periods, workers), func(b *testing.B) {
				benchmarkSolve(b, periods, workers, -1)
			})
		}
	}
	b.Run("T20_interpolated", func(b *testing.B) {
		benchmarkSolve(b, 20, 4, 30)
	})
}

func benchmarkSolve(b *testing.B, periods, workers, points int) {
	spec := model.Spec{
		Choices: []model.Choice{
			{Name: "a", HasWage: true, HasExperience: true, MaxExperience: periods},
			{Name: "b", HasWage: true, HasExperience: true, MaxExperience: periods},
			{Name: "school", HasExperience: true, MaxExperience: 5},
			{Name: "home"},
		},
		NPeriods:       periods,
		NLaggedChoices: 1,
		NTypes:         2,
	}
	table := buildTable(b, spec)
	rewards := func(s model.State, covs []int, wages, nonpecs []float64) {
		ea, eb, ed := float64(s.Experience[0]), float64(s.Experience[1]), float64(s.Experience[2])
		wages[0] = math.Exp(1 + 0.05*ea + 0.05*ed + 0.2*float64(covs[0]))
		wages[1] = math.Exp(1.2 + 0.04*eb + 0.03*ed)
		if s.Lagged[0] != 2 {
			nonpecs[2] = -2
		}
		nonpecs[3] = 1
	}
	s, err := New(table, WithDraws(200), WithWorkers(workers), WithInterpolation(points))
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	params := Params{Delta: 0.95, ShockCov: diagCov(0.1, 0.1, 1, 1), Rewards: rewards}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := s.Solve(context.Background(), params); err != nil {
			b.Fatalf("Solve() error = %v", err)
		}
	}
}
