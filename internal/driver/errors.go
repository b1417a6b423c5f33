package driver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped reports that a run was interrupted by a user stop request. It is
// a control-flow outcome, not a failure.
var ErrStopped = errors.New("run stopped by user")

// ErrRunInProgress is returned when a start request arrives while a run is
// already active. The active run is unaffected.
var ErrRunInProgress = errors.New("a run is already in progress")

// NotFoundError reports a row, control, dialog or option that could not be
// located within its wait budget. Recoverable via retry.
type NotFoundError struct {
	What      string
	Sought    string
	Available []string
}

func (e *NotFoundError) Error() string {
	msg := e.What + " not found"
	if e.Sought != "" {
		msg += fmt.Sprintf(" (sought %q)", e.Sought)
	}
	if len(e.Available) > 0 {
		msg += ", available: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// StateMismatchError reports a page state that contradicts the protocol's
// expectation, such as a disabled submit control or a dialog that refuses to
// close. Recoverable via retry, logged before each attempt.
type StateMismatchError struct {
	What   string
	Detail string
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("unexpected page state: %s %s", e.What, e.Detail)
}
