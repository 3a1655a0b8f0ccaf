package attrtype

import (
	"github.com/objectledge/coral/internal/ir"
)

// ComparisonClass is the set of predicate families a value handler supports.
type ComparisonClass uint8

const (
	// Equality covers = and !=.
	Equality ComparisonClass = 1 << iota
	// Ordering covers <, <=, > and >=.
	Ordering
	// Approximation covers LIKE and ILIKE.
	Approximation
)

// Has reports whether all bits of c2 are set in c.
func (c ComparisonClass) Has(c2 ComparisonClass) bool {
	return c&c2 == c2
}

func (c ComparisonClass) String() string {
	switch c {
	case Equality:
		return "equality"
	case Ordering:
		return "ordering"
	case Approximation:
		return "approximation"
	}
	s := ""
	for _, one := range []ComparisonClass{Equality, Ordering, Approximation} {
		if c.Has(one) {
			if s != "" {
				s += "|"
			}
			s += one.String()
		}
	}
	return s
}

// Handler is the pluggable value handler of an attribute type. It converts
// external literals to native values, renders native values for the
// backend, reports which comparison classes are meaningful and checks
// domain constraints.
//
// Handlers are shared across goroutines and must support concurrent use.
type Handler interface {
	// Kind is the native representation of values of this type.
	Kind() ir.Kind

	// Convert turns an external literal into a native value.
	// Fails with errors.ErrIllegalArgument.
	Convert(literal string) (ir.Value, error)

	// Format renders a native value as an external literal accepted by Convert.
	Format(v ir.Value) string

	// SQLLiteral renders a native value as a backend literal.
	SQLLiteral(v ir.Value) (string, error)

	// Comparisons reports the supported comparison classes.
	Comparisons() ComparisonClass

	// ParseDomain validates a domain-constraint string.
	ParseDomain(domain string) error

	// CheckDomain validates a value against a domain constraint.
	// An empty domain accepts every value. Fails with errors.ErrConstraintViolation.
	CheckDomain(domain string, v ir.Value) error

	// ValueColumn is the column holding the value in the type's value table.
	ValueColumn() string

	// SQLType is the backend column type for values of this type.
	SQLType() string
}

// Factory instantiates a handler for a registered handler reference.
type Factory func(r *Registry) (Handler, error)

// RefChecker answers resource-class membership questions for reference
// domains. The instance store implements it.
type RefChecker interface {
	IsInstanceOf(id ir.ResourceID, className string) (bool, error)
}
