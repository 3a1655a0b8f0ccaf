package querysql

import (
	"fmt"

	"github.com/objectledge/coral/internal/errors"
)

// MalformedCode categorizes query compilation failures.
type MalformedCode string

const (
	// CodeSyntax indicates the statement text could not be parsed.
	CodeSyntax MalformedCode = "SYNTAX"

	// CodeInvalidStatement indicates a structurally invalid statement tree.
	CodeInvalidStatement MalformedCode = "INVALID_STATEMENT"

	// CodeUnknownClass indicates a FROM item naming no resource class.
	CodeUnknownClass MalformedCode = "UNKNOWN_CLASS"

	// CodeUnknownAttribute indicates a reference resolving to no attribute.
	CodeUnknownAttribute MalformedCode = "UNKNOWN_ATTRIBUTE"

	// CodeAmbiguous indicates a bare attribute name in a multi-column query.
	CodeAmbiguous MalformedCode = "AMBIGUOUS"

	// CodeSynthetic indicates a SYNTHETIC attribute in a filter or order clause.
	CodeSynthetic MalformedCode = "SYNTHETIC"

	// CodeUnsupportedComparison indicates a predicate the attribute's value
	// handler does not support.
	CodeUnsupportedComparison MalformedCode = "UNSUPPORTED_COMPARISON"

	// CodeTypeMismatch indicates two attributes of incompatible native types.
	CodeTypeMismatch MalformedCode = "TYPE_MISMATCH"

	// CodeClassReference indicates a misused FROM alias operand.
	CodeClassReference MalformedCode = "CLASS_REFERENCE"

	// CodeIllegalLiteral indicates a literal the value handler rejects.
	CodeIllegalLiteral MalformedCode = "ILLEGAL_LITERAL"

	// CodeDomainViolation indicates a literal outside the attribute's domain.
	CodeDomainViolation MalformedCode = "DOMAIN_VIOLATION"

	// CodeStorage indicates a class storage no join strategy handles.
	CodeStorage MalformedCode = "STORAGE"
)

// MalformedQueryError reports a statement that cannot be compiled. No SQL
// is produced for a malformed query.
type MalformedQueryError struct {
	// Code identifies the failure category.
	Code MalformedCode

	// Query is the statement text.
	Query string

	// Operand is the offending operand or name, if any.
	Operand string

	// Cause is a human-readable description.
	Cause string

	// Err is the underlying error (parse error, handler error), if any.
	Err error
}

func (e *MalformedQueryError) Error() string {
	msg := "malformed query: " + e.Cause
	if e.Operand != "" {
		msg += fmt.Sprintf(" (operand %q)", e.Operand)
	}
	return msg
}

func (e *MalformedQueryError) Unwrap() error {
	return e.Err
}

// IsMalformedQuery reports whether err is or wraps a MalformedQueryError.
func IsMalformedQuery(err error) bool {
	var me *MalformedQueryError
	return errors.As(err, &me)
}

// CodeOf returns the code of a MalformedQueryError in err's chain, or "".
func CodeOf(err error) MalformedCode {
	var me *MalformedQueryError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

func malformed(code MalformedCode, operand, format string, args ...any) *MalformedQueryError {
	return &MalformedQueryError{Code: code, Operand: operand, Cause: fmt.Sprintf(format, args...)}
}
