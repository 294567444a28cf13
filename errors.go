package complecs

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Sentinel errors. Every typed error below matches exactly one of them with
// errors.Is.
var (
	// ErrInvalidHandle is returned by storage operations given a handle whose
	// generation does not match the live slot or whose index is out of range.
	ErrInvalidHandle = errors.New("complecs: invalid handle")

	// ErrSchemaViolation is returned when a schema cannot be turned into a
	// World. It is always fatal to startup.
	ErrSchemaViolation = errors.New("complecs: schema violation")

	// ErrConsistencyFailure reports broken add/remove symmetry. A World that
	// produced it must not be used further.
	ErrConsistencyFailure = errors.New("complecs: consistency failure")

	// ErrTypeMismatch is returned when a value does not have the Go type of
	// the component kind it is stored under.
	ErrTypeMismatch = errors.New("complecs: type mismatch")

	// ErrUnknownKind is returned when a component, process or entity kind
	// name is not part of the World.
	ErrUnknownKind = errors.New("complecs: unknown kind")

	// ErrMissingValue is returned when an entity is added without an initial
	// value for one of its components.
	ErrMissingValue = errors.New("complecs: missing component value")
)

// HandleError describes a stale or never-issued handle.
type HandleError struct {
	Kind   string // storage label, empty for standalone storages
	Handle Handle
}

func (e *HandleError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("complecs: invalid handle %s", e.Handle)
	}
	return fmt.Sprintf("complecs: invalid handle %s in %s", e.Handle, e.Kind)
}

func (e *HandleError) Is(target error) bool {
	return target == ErrInvalidHandle
}

// Violation is one rule broken by a schema.
type Violation struct {
	Section string // "component", "process", "entity", "schedule" or "include"
	Name    string
	Reason  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %q: %s", v.Section, v.Name, v.Reason)
}

// SchemaError collects every violation found while validating a schema.
type SchemaError struct {
	Violations []Violation
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("complecs: schema violation")
	for i, v := range e.Violations {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(v.String())
	}
	return b.String()
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// ConsistencyError reports that an entity record could not release every
// handle it holds, or that a process row references a dead slot.
type ConsistencyError struct {
	Entity string // entity kind, or process name for run failures
	Op     string
	Cause  error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("complecs: consistency failure during %s of %s: %v", e.Op, e.Entity, e.Cause)
}

func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistencyFailure
}

func (e *ConsistencyError) Unwrap() error {
	return e.Cause
}

// TypeError reports a value of the wrong Go type for a component kind.
type TypeError struct {
	Kind string
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("complecs: component %q holds %v, got %v", e.Kind, e.Want, e.Got)
}

func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func unknownKind(section, name string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownKind, section, name)
}
