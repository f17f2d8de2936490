// Package errs defines the error-kind taxonomy used across the orchestrator:
// fatal, model-stop, model-continue, warning, and info, each always carrying
// the simulation time at which it occurred.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies how a failure should be handled by its caller.
type Kind int

const (
	// Info is a purely informational message; no error condition.
	Info Kind = iota
	// Warning is recoverable and does not interrupt the current operation.
	Warning
	// ModelContinue is logged and the current operation proceeds regardless.
	ModelContinue
	// ModelStop aborts the current simulation but leaves the engine usable
	// for a subsequent run.
	ModelStop
	// Fatal aborts the process.
	Fatal
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case ModelContinue:
		return "model-continue"
	case ModelStop:
		return "model-stop"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type produced throughout the orchestrator. It always
// carries the simulation time the failure occurred at (spec §7).
type Error struct {
	Kind    Kind
	SimTime float64
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s @ t=%.6f] %v", e.Kind, e.SimTime, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error of the given kind at the given simulation time.
func New(kind Kind, simTime float64, format string, args ...any) *Error {
	return &Error{Kind: kind, SimTime: simTime, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind and simulation time to an existing error.
func Wrap(kind Kind, simTime float64, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, SimTime: simTime, Err: err}
}

// IsStop reports whether err (or any error it wraps) is a ModelStop or Fatal
// error, i.e. it should abort the current simulation.
func IsStop(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == ModelStop || e.Kind == Fatal
}
