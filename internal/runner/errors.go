package runner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDropFailed matches a SQLExecutionError raised by a DROP statement
	ErrDropFailed = errors.New("drop failed")
	// ErrCreateFailed matches a SQLExecutionError raised while creating a
	// view, its indexes or its comment
	ErrCreateFailed = errors.New("create failed")
)

// SQLExecutionError is returned when the database rejects a statement
type SQLExecutionError struct {
	View      string
	Op        Op
	Statement string
	Err       error
}

func (e *SQLExecutionError) Error() string {
	return fmt.Sprintf("failed to %s view %s: %v", e.Op, e.View, e.Err)
}

func (e *SQLExecutionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDropFailed) and errors.Is(err, ErrCreateFailed)
// distinguish drop failures from create failures
func (e *SQLExecutionError) Is(target error) bool {
	switch target {
	case ErrDropFailed:
		return e.Op == OpDrop
	case ErrCreateFailed:
		return e.Op == OpCreate || e.Op == OpIndex || e.Op == OpComment
	}
	return false
}

// RecreateError summarises the failures of a best-effort run
type RecreateError struct {
	Failures []*SQLExecutionError
}

func (e *RecreateError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.View
	}
	msg := fmt.Sprintf("%d view(s) failed: %s", len(e.Failures), strings.Join(names, ", "))
	if len(e.Failures) > 0 {
		msg += "; first error: " + e.Failures[0].Error()
	}
	return msg
}

func (e *RecreateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// MissingTableError is returned when a view depends on an external table
// that does not exist
type MissingTableError struct {
	View  string
	Table string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("view %s depends on table %s, which does not exist", e.View, e.Table)
}
