// Package errors provides error handling for coral.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping, hints and details, and declares the error kinds that
// cross package boundaries (backend failures, missing entities, required
// values). Package-local error kinds live next to the code that raises them.
//
// Usage:
//
//	if err := tx.Commit(); err != nil {
//	    return errors.NewBackendError("commit", err)
//	}
//
//	if errors.IsBackendError(err) {
//	    // relational execution failed, the query itself was fine
//	}
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors raised by value handlers. Wrap them to add the offending
// literal or value; callers test with Is.
var (
	// ErrIllegalArgument indicates a literal that cannot be converted to the
	// native representation of an attribute type.
	ErrIllegalArgument = New("illegal argument")

	// ErrConstraintViolation indicates a value outside an attribute's domain.
	ErrConstraintViolation = New("constraint violation")
)

// BackendError reports a failure of the relational backend: execution
// errors, failed commits, or an inconsistent read where an identifier
// returned by a query no longer resolves.
type BackendError struct {
	// Op names the operation that failed (e.g. "execute query", "commit").
	Op string

	// Err is the underlying driver error, if any.
	Err error
}

// NewBackendError wraps err as a BackendError for operation op.
func NewBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend error: %s", e.Op)
	}
	return fmt.Sprintf("backend error: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err is or wraps a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return As(err, &be)
}

// EntityDoesNotExistError reports a lookup of an unknown entity by id or name.
type EntityDoesNotExistError struct {
	Kind string // "resource class", "attribute class", "resource", ...
	Key  string // the id or name that was looked up
}

func (e *EntityDoesNotExistError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.Key)
}

// IsEntityDoesNotExist reports whether err is or wraps an EntityDoesNotExistError.
func IsEntityDoesNotExist(err error) bool {
	var ee *EntityDoesNotExistError
	return As(err, &ee)
}

// ValueRequiredError is raised by the instance store when a REQUIRED
// attribute becomes visible to existing resources and no initial value
// was supplied for them.
type ValueRequiredError struct {
	Attribute string
	Class     string
	Instances int
}

func (e *ValueRequiredError) Error() string {
	return fmt.Sprintf("value required for attribute %s: %d existing instance(s) of %s",
		e.Attribute, e.Instances, e.Class)
}

// IsValueRequired reports whether err is or wraps a ValueRequiredError.
func IsValueRequired(err error) bool {
	var ve *ValueRequiredError
	return As(err, &ve)
}

// NameExistsError reports an attempt to register a name that is already taken.
type NameExistsError struct {
	Kind string
	Name string
}

func (e *NameExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// IsNameExists reports whether err is or wraps a NameExistsError.
func IsNameExists(err error) bool {
	var ne *NameExistsError
	return As(err, &ne)
}

// InvalidTypeError reports a native-type or handler reference that cannot
// be resolved or instantiated.
type InvalidTypeError struct {
	Ref    string
	Reason string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid type reference %q: %s", e.Ref, e.Reason)
}

// IsInvalidType reports whether err is or wraps an InvalidTypeError.
func IsInvalidType(err error) bool {
	var ie *InvalidTypeError
	return As(err, &ie)
}
