package model

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Overflow guards applied to exponentiated draws.
const (
	MaxFloat    = 1e200
	MinFloat    = -MaxFloat
	MaxLogFloat = 460.0
	MinLogFloat = -MaxLogFloat
)

// Options is the numeric configuration surface consumed by the solver.
type Options struct {
	SolutionDraws       int    `yaml:"solution_draws"`
	SolutionSeed        int64  `yaml:"solution_seed"`
	MonteCarloSequence  string `yaml:"monte_carlo_sequence"`
	InterpolationPoints int    `yaml:"interpolation_points"` // <= 0 disables interpolation
	Workers             int    `yaml:"workers"`              // 0 uses GOMAXPROCS
	CachePath           string `yaml:"cache_path"`
	CacheCompression    string `yaml:"cache_compression"`
	CacheBackend        string `yaml:"cache_backend"` // "file" or "badger"
}

// DefaultOptions returns the defaults used when a field is not configured.
func DefaultOptions() Options {
	return Options{
		SolutionDraws:       200,
		SolutionSeed:        3,
		MonteCarloSequence:  "random",
		InterpolationPoints: -1,
		CachePath:           ".dcdp-cache",
		CacheCompression:    "snappy",
		CacheBackend:        "file",
	}
}

// LoadOptions decodes YAML options on top of DefaultOptions and validates them.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the option ranges. Sequence and codec names are checked
// by the packages that implement them.
func (o Options) Validate() error {
	if o.SolutionDraws <= 0 {
		return &ConfigError{Field: "solution_draws", Reason: fmt.Sprintf("must be positive, got %d", o.SolutionDraws)}
	}
	if o.Workers < 0 {
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be non-negative, got %d", o.Workers)}
	}
	switch o.CacheBackend {
	case "", "file", "badger":
	default:
		return &ConfigError{Field: "cache_backend", Reason: fmt.Sprintf("unknown backend %q", o.CacheBackend)}
	}
	return nil
}

// Interpolate reports whether interpolation is enabled.
func (o Options) Interpolate() bool { return o.InterpolationPoints > 0 }
