package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrPositionClosed is returned when a lifecycle change targets a position
// that is already closed.
var ErrPositionClosed = errors.New("position already closed")

// InvalidInputError reports malformed market or contract data. It is fatal
// to the single contract being priced, never to the run.
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s=%v: %s", e.Field, e.Value, e.Reason)
}

// VolatilityDegenerateWarning flags a contract priced with the volatility floor
// substituted for its own volatility. It is informational.
type VolatilityDegenerateWarning struct {
	Given float64
	Floor float64
}

func (w *VolatilityDegenerateWarning) Error() string {
	return fmt.Sprintf("volatility %v below floor %v, floor substituted", w.Given, w.Floor)
}

// SizingError aborts sizing for one opportunity that has no positive max loss.
type SizingError struct {
	Symbol  string
	MaxLoss float64
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("cannot size %s: max loss per contract %v is not positive", e.Symbol, e.MaxLoss)
}

// ConfigError reports structurally invalid run configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// ValidationError reports a record that cannot be stored.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}
