package views

import (
	"fmt"
	"strings"
)

// DuplicateNameError is returned when a name is registered twice
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate view name: %s", e.Name)
}

// CycleError is returned when the dependency graph is not acyclic.
// Cycle starts and ends with the same view.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// UnresolvedReferenceError is returned when a view depends on a name
// that is neither registered nor declared as an external table
type UnresolvedReferenceError struct {
	View      string
	Reference string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("view %s depends on %s, which is not a registered view (declare it as {table: %s} if it is a table)",
		e.View, e.Reference, e.Reference)
}

// UnsupportedError is returned when a definition needs a feature the
// target database does not have
type UnsupportedError struct {
	View    string
	Feature string
	Dialect Dialect
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("view %s: %s not supported by %s", e.View, e.Feature, e.Dialect)
}
