package rml

import (
	"fmt"
	"strings"

	"github.com/objectledge/coral/internal/errors"
)

// ErrMissingKeyword is returned when a statement does not start with
// FIND RESOURCE. Nothing after the missing keywords is parsed.
var ErrMissingKeyword = errors.New("statement must start with FIND RESOURCE")

// ParseError is a syntax error with the byte offset where it was detected.
type ParseError struct {
	Err         error    // Underlying sentinel, if any
	Message     string   // Human-readable message
	Offset      int      // 0-based byte offset in the statement
	Token       string   // Offending token text ("" at end of input)
	Suggestions []string // Possible fixes
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Token != "" {
		fmt.Fprintf(&b, " near %q", e.Token)
	} else {
		b.WriteString(" at end of statement")
	}
	fmt.Fprintf(&b, " (offset %d)", e.Offset)
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, ". Suggestions: %s", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
