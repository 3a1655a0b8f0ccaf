package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists the structural problems of a statement.
//
// Structural validation knows nothing about the schema: it checks the
// shape of the tree (names present, aliases unique, connectives with
// enough terms). Type and reference checks belong to the compiler.
type ValidationResult struct {
	// Problems is empty for a well-formed statement.
	Problems []string
}

// OK reports whether no problems were found.
func (r ValidationResult) OK() bool {
	return len(r.Problems) == 0
}

// Err returns the problems joined into one error, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("invalid statement: %s", strings.Join(r.Problems, "; "))
}

// Validate checks the structure of a statement.
//
// Validate is a pure function with no side effects.
func Validate(s *Statement) ValidationResult {
	v := &validator{}
	if s == nil {
		v.add("nil statement")
		return ValidationResult{Problems: v.problems}
	}

	aliases := make(map[string]bool)
	for i, f := range s.From {
		if f.Class == "" {
			v.add("FROM item %d has no class", i+1)
		}
		if f.Alias == "" {
			continue
		}
		if strings.Contains(f.Alias, ".") {
			v.add("alias %q contains '.'", f.Alias)
		}
		if aliases[f.Alias] {
			v.add("duplicate alias %q", f.Alias)
		}
		aliases[f.Alias] = true
	}

	if s.Where != nil {
		v.expr(s.Where)
	}

	for i, o := range s.OrderBy {
		if o.Attribute == "" {
			v.add("ORDER BY item %d has no attribute", i+1)
		}
	}
	for i, name := range s.Select {
		if name == "" {
			v.add("SELECT item %d is empty", i+1)
		}
	}

	return ValidationResult{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) expr(e Expr) {
	switch x := e.(type) {
	case nil:
		v.add("missing expression")
	case *And:
		v.terms("AND", x.Terms)
	case *Or:
		v.terms("OR", x.Terms)
	case *Not:
		v.expr(x.Expr)
	case *Equality:
		v.predicate(x.Left, x.Right)
	case *Comparison:
		v.predicate(x.Left, x.Right)
	case *Approximation:
		v.predicate(x.Left, x.Right)
	case *Definedness:
		if x.Attribute == "" {
			v.add("DEFINED without attribute")
		}
	default:
		v.add("unknown expression type %T", e)
	}
}

func (v *validator) terms(op string, terms []Expr) {
	if len(terms) < 2 {
		v.add("%s with %d term(s)", op, len(terms))
	}
	for _, t := range terms {
		v.expr(t)
	}
}

func (v *validator) predicate(left string, right Operand) {
	if left == "" {
		v.add("predicate without left operand")
	}
	if right.Text == "" && !right.Quoted {
		v.add("predicate on %q without right operand", left)
	}
}
