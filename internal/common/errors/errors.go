package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a scenario failure
type Kind string

const (
	KindNavigation       Kind = "navigation"
	KindSetupTimeout     Kind = "setup-timeout"
	KindInteraction      Kind = "interaction"
	KindVisualRegression Kind = "visual-regression"
	KindMissingBaseline  Kind = "missing-baseline"
	KindTimeout          Kind = "timeout"
)

// Phase is where in a scenario the failure happened
type Phase string

const (
	PhaseSetup Phase = "setup"
	PhaseTest  Phase = "test"
)

// Error is a scenario failure
type Error struct {
	Kind    Kind   `json:"kind"`
	Phase   Phase  `json:"phase"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failure (%s)", e.Kind, e.Phase)
	if e.Step != "" {
		msg += " at " + e.Step
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a failure with the given kind and message
func New(kind Kind, phase Phase, message string) *Error {
	return &Error{Kind: kind, Phase: phase, Message: message}
}

// Newf creates a failure with a formatted message
func Newf(kind Kind, phase Phase, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Phase: phase, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a failure around a cause
func Wrap(kind Kind, phase Phase, err error, message string) *Error {
	return &Error{Kind: kind, Phase: phase, Message: message, Err: err}
}

// WithStep records the step that failed and returns e
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// As extracts a *Error from err's chain
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
