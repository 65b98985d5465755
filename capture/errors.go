package capture

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition matches every *InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("capture: invalid transition")

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("capture: session closed")

// InvalidTransitionError is returned when an operation's guard does not
// hold. The session is left unchanged.
type InvalidTransitionError struct {
	Op   string
	From SaveState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("capture: cannot %s while %s", e.Op, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// AcquireError is returned by Start when the recorder could not be started.
// The session stays idle.
type AcquireError struct {
	Kind  string
	Cause error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("capture: acquire %s recorder: %v", e.Kind, e.Cause)
}

func (e *AcquireError) Unwrap() error { return e.Cause }
