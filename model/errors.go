package model

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is matched by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	// ErrNoInitialStates is returned when the initial conditions admit no state.
	ErrNoInitialStates = fmt.Errorf("%w: initial conditions admit no states", ErrInvalidConfig)

	// ErrUnsupportedComplexIndex is returned for complex indices that have
	// neither two nor three components.
	ErrUnsupportedComplexIndex = fmt.Errorf("%w: unsupported complex index", ErrInvalidConfig)
)

// ConfigError reports an invalid field of the model or options.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
