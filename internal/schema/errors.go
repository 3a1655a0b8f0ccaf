package schema

import (
	"fmt"
	"strings"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
)

// IntegrityKind categorizes attribute name clashes.
type IntegrityKind string

const (
	// ClassClash is a name declared twice by one class or by two classes
	// related by inheritance.
	ClassClash IntegrityKind = "CLASS_CLASH"

	// FlagsClash is a non-builtin attribute reusing the name of a builtin one.
	FlagsClash IntegrityKind = "FLAGS_CLASH"

	// MultipleInheritance is a name declared by two unrelated classes that
	// would both become visible from one class.
	MultipleInheritance IntegrityKind = "MULTIPLE_INHERITANCE"
)

// Conflict is one clashing pair of attribute declarations.
type Conflict struct {
	Kind      IntegrityKind
	Attribute string

	// Existing is the class declaring the attribute already in the graph.
	Existing string

	// Incoming is the class whose declaration would become visible.
	Incoming string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: attribute %s declared by %s and %s", c.Kind, c.Attribute, c.Existing, c.Incoming)
}

// ConflictReport is the outcome of a validation pass. An empty report means
// the mutation preserves name uniqueness.
type ConflictReport struct {
	Conflicts []Conflict
}

// Empty reports whether no conflict was found.
func (r ConflictReport) Empty() bool {
	return len(r.Conflicts) == 0
}

// Err converts a non-empty report to a SchemaIntegrityError.
func (r ConflictReport) Err() error {
	if r.Empty() {
		return nil
	}
	return &SchemaIntegrityError{Kind: r.Conflicts[0].Kind, Conflicts: r.Conflicts}
}

// SchemaIntegrityError reports attribute name clashes. Kind is the kind of
// the first conflict; Conflicts lists them all.
type SchemaIntegrityError struct {
	Kind      IntegrityKind
	Conflicts []Conflict
}

func (e *SchemaIntegrityError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "schema integrity violation: " + strings.Join(parts, "; ")
}

// IsSchemaIntegrity reports whether err is or wraps a SchemaIntegrityError.
func IsSchemaIntegrity(err error) bool {
	var se *SchemaIntegrityError
	return errors.As(err, &se)
}

// IntegrityKindOf returns the kind of a wrapped SchemaIntegrityError, or "".
func IntegrityKindOf(err error) IntegrityKind {
	var se *SchemaIntegrityError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// CircularDependencyError reports an inheritance edge that would close a cycle.
type CircularDependencyError struct {
	Child  string
	Parent string
}

func (e *CircularDependencyError) Error() string {
	if e.Child == e.Parent {
		return fmt.Sprintf("circular dependency: %s cannot be its own parent", e.Child)
	}
	return fmt.Sprintf("circular dependency: %s is already an ancestor of %s", e.Child, e.Parent)
}

// IsCircularDependency reports whether err is or wraps a CircularDependencyError.
func IsCircularDependency(err error) bool {
	var ce *CircularDependencyError
	return errors.As(err, &ce)
}

// UnknownAttributeError reports a lookup of an attribute not visible from a class.
type UnknownAttributeError struct {
	Class     string
	Attribute string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("class %s has no attribute %s", e.Class, e.Attribute)
}

// IsUnknownAttribute reports whether err is or wraps an UnknownAttributeError.
func IsUnknownAttribute(err error) bool {
	var ue *UnknownAttributeError
	return errors.As(err, &ue)
}

// IllegalStateError reports an operation the current schema state forbids,
// such as extending a FINAL class.
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsIllegalState reports whether err is or wraps an IllegalStateError.
func IsIllegalState(err error) bool {
	var ie *IllegalStateError
	return errors.As(err, &ie)
}

func illegalState(op, format string, args ...any) error {
	return &IllegalStateError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

func unknownClass(id ir.ClassID) error {
	return &errors.EntityDoesNotExistError{Kind: "resource class", Key: id.String()}
}
