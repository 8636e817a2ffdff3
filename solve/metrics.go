package solve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// partitionsTotal counts partitions by how their values were obtained.
	// Labels: "exact", "interpolated", "cached"
	partitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcdp_solve_partitions_total",
		Help: "Partitions solved by method",
	}, []string{"method"})

	statesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcdp_solve_states_total",
		Help: "States whose expected value was computed",
	})

	partitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dcdp_solve_partition_duration_seconds",
		Help:    "Time to solve one partition",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	stageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dcdp_solve_stage_duration_seconds",
		Help:    "Time to solve one period stage",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	interpolationRSquared = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dcdp_solve_interpolation_r_squared",
		Help:    "R squared of the interpolation regression",
		Buckets: []float64{0.5, 0.8, 0.9, 0.95, 0.99, 0.999},
	})
)
