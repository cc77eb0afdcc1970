package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled reports that the operator cancelled the run (e.g. no material
// selected). It aborts the pipeline without being a failure.
var ErrCancelled = errors.New("run cancelled by operator")

// StructuralError is returned when a record set lacks required columns.
type StructuralError struct {
	Label   string
	Missing []string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("missing required columns in %s: %s", e.Label, strings.Join(e.Missing, ", "))
}

// ValidationError carries every blocking row violation of a record set.
type ValidationError struct {
	Label      string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed validation with %d error(s):", e.Label, len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n - ")
		b.WriteString(v.Message)
	}
	return b.String()
}

// PositionConflict is one coordinate used more than once.
type PositionConflict struct {
	Coordinate Coordinate
	Rows       []int
}

// DuplicatePositionError lists every coordinate collision found in a scan,
// either inside one file or between an import file and the reference data.
type DuplicatePositionError struct {
	Label     string
	Internal  bool
	Conflicts []PositionConflict
}

func (e *DuplicatePositionError) Error() string {
	var b strings.Builder
	if e.Internal {
		fmt.Fprintf(&b, "duplicate positions found within %s:", e.Label)
		for _, c := range e.Conflicts {
			fmt.Fprintf(&b, "\n - Position %s found on rows %v", c.Coordinate, c.Rows)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %d duplicate position error(s):", e.Label, len(e.Conflicts))
	for _, c := range e.Conflicts {
		for _, row := range c.Rows {
			fmt.Fprintf(&b, "\n - Row %d: Position %s is already occupied in reference data.", row, c.Coordinate)
		}
	}
	return b.String()
}

// Identifier kinds named by IdentityConflictError.
const (
	IdentifierStudy = "study"
	IdentifierLab   = "lab"
)

// IdentityConflictError reports a study id or lab id bound inconsistently.
type IdentityConflictError struct {
	Kind     string
	ID       string
	Existing string
	Conflict string
}

func (e *IdentityConflictError) Error() string {
	if e.Kind == IdentifierLab {
		return fmt.Sprintf("lab ID %s is linked to multiple study IDs (%s, %s)", e.ID, e.Existing, e.Conflict)
	}
	return fmt.Sprintf("study ID %s has multiple lab IDs (%s, %s)", e.ID, e.Existing, e.Conflict)
}

// FormatError reports a field value that does not match its required pattern.
type FormatError struct {
	Row   int
	Field string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("row %d: invalid %s format '%s'", e.Row, e.Field, e.Value)
}

// MissingFieldError reports a blank field required for processing a row.
type MissingFieldError struct {
	Row   int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d: missing %s", e.Row, e.Field)
}

// UnknownMaterialError reports a material key without a grid definition.
type UnknownMaterialError struct {
	Material string
}

func (e *UnknownMaterialError) Error() string {
	return fmt.Sprintf("material '%s' has no defined storage rule", e.Material)
}

// TransportErrorKind classifies reference download failures.
type TransportErrorKind string

// Transport failure classes.
const (
	TransportTimeout    TransportErrorKind = "timeout"
	TransportConnection TransportErrorKind = "connection"
	TransportStatus     TransportErrorKind = "status"
	TransportPayload    TransportErrorKind = "payload"
)

// TransportError is returned by reference suppliers that reach a remote system.
type TransportError struct {
	Kind    TransportErrorKind
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reference transport %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("reference transport %s: %s", e.Kind, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }
