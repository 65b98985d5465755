package connectivity

import (
	"errors"
	"fmt"
)

var errNoAction = errors.New("message has no action")

// ErrBadMessage is returned by Dispatch when the envelope cannot be used.
type ErrBadMessage struct {
	Err error
}

func (e *ErrBadMessage) Error() string {
	return fmt.Sprintf("connectivity: bad message: %v", e.Err)
}

func (e *ErrBadMessage) Unwrap() error { return e.Err }

// ErrActionNotFound is returned when Call targets an action with no route
// and no local handler.
type ErrActionNotFound struct {
	Action string
}

func (e *ErrActionNotFound) Error() string {
	return fmt.Sprintf("connectivity: unknown action: %s", e.Action)
}

// ErrActionDisabled is returned when the routes table disables an action.
type ErrActionDisabled struct {
	Action string
}

func (e *ErrActionDisabled) Error() string {
	return fmt.Sprintf("connectivity: action disabled: %s", e.Action)
}

// ErrNoFactory is reported during Reload when a route's strategy has no
// registered TransportFactory.
type ErrNoFactory struct {
	Action   string
	Strategy string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for strategy %q (action %s)", e.Strategy, e.Action)
}

// ErrRemoteStatus is returned by HTTP handlers when the peer answers with
// a non-2xx status.
type ErrRemoteStatus struct {
	Action string
	Status int
	Body   string
}

func (e *ErrRemoteStatus) Error() string {
	return fmt.Sprintf("connectivity: %s: remote status %d: %s", e.Action, e.Status, e.Body)
}
