package queryir

import (
	"fmt"
	"strings"
)

// Statement is a parsed FIND RESOURCE statement.
//
// Every clause is optional. An empty From means "any resource": the query
// has a single implicit column that is not bound to a class.
type Statement struct {
	From    []FromItem  // FROM class [AS alias], ...
	Where   Expr        // nil = no filter
	OrderBy []OrderSpec // ORDER BY attr [ASC|DESC], ...
	Select  []string    // SELECT name, ... (dotted alias.attribute or bare)
}

// FromItem is one FROM clause term.
type FromItem struct {
	Class string // resource class name
	Alias string // "" when no AS clause was given
}

// Name returns the alias, or the class name for unaliased items.
func (f FromItem) Name() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Class
}

// OrderSpec is one ORDER BY term.
type OrderSpec struct {
	Attribute  string
	Descending bool
}

// Expr is a boolean expression node of a WHERE clause.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// And is a conjunction. Terms has at least two entries.
type And struct {
	Terms []Expr
}

func (*And) exprNode() {}

// Or is a disjunction. Terms has at least two entries.
type Or struct {
	Terms []Expr
}

func (*Or) exprNode() {}

// Not negates its operand.
type Not struct {
	Expr Expr
}

func (*Not) exprNode() {}

// EqualityOp is = or !=.
type EqualityOp int

const (
	Eq EqualityOp = iota
	Ne
)

func (op EqualityOp) String() string {
	if op == Ne {
		return "!="
	}
	return "="
}

// Equality compares an attribute with an operand for (in)equality. The
// right side may name a FROM alias, in which case resource identities are
// compared.
type Equality struct {
	Left  string
	Op    EqualityOp
	Right Operand
}

func (*Equality) exprNode() {}

// ComparisonOp is one of the ordering operators.
type ComparisonOp int

const (
	Lt ComparisonOp = iota
	Le
	Gt
	Ge
)

func (op ComparisonOp) String() string {
	switch op {
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "<"
	}
}

// Comparison is an ordered comparison between an attribute and an operand.
type Comparison struct {
	Left  string
	Op    ComparisonOp
	Right Operand
}

func (*Comparison) exprNode() {}

// Approximation is a LIKE pattern match. CaseInsensitive selects ILIKE.
type Approximation struct {
	Left            string
	Right           Operand
	CaseInsensitive bool
}

func (*Approximation) exprNode() {}

// Definedness holds when the attribute has a value.
type Definedness struct {
	Attribute string
}

func (*Definedness) exprNode() {}

// Operand is the right-hand side of a predicate.
type Operand struct {
	Text   string
	Quoted bool // quoted operands are always literals
}

// Lit returns a quoted (literal-only) operand.
func Lit(text string) Operand { return Operand{Text: text, Quoted: true} }

// Ref returns an unquoted operand.
func Ref(text string) Operand { return Operand{Text: text} }

func (o Operand) String() string {
	if o.Quoted {
		return "'" + strings.ReplaceAll(o.Text, "'", "''") + "'"
	}
	return o.Text
}

// String renders the statement back to RML. Parsing the result yields an
// equal statement.
func (s *Statement) String() string {
	var b strings.Builder
	b.WriteString("FIND RESOURCE")
	if len(s.From) > 0 {
		b.WriteString(" FROM ")
		for i, f := range s.From {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Class)
			if f.Alias != "" {
				b.WriteString(" AS ")
				b.WriteString(f.Alias)
			}
		}
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(FormatExpr(s.Where))
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Attribute)
			if o.Descending {
				b.WriteString(" DESC")
			}
		}
	}
	if len(s.Select) > 0 {
		b.WriteString(" SELECT ")
		b.WriteString(strings.Join(s.Select, ", "))
	}
	return b.String()
}

// FormatExpr renders an expression in RML, parenthesizing only where
// precedence requires it.
func FormatExpr(e Expr) string {
	switch x := e.(type) {
	case *And:
		parts := make([]string, len(x.Terms))
		for i, t := range x.Terms {
			parts[i] = formatChild(t, true)
		}
		return strings.Join(parts, " AND ")
	case *Or:
		parts := make([]string, len(x.Terms))
		for i, t := range x.Terms {
			parts[i] = FormatExpr(t)
		}
		return strings.Join(parts, " OR ")
	case *Not:
		return "NOT " + formatChild(x.Expr, false)
	case *Equality:
		return x.Left + " " + x.Op.String() + " " + x.Right.String()
	case *Comparison:
		return x.Left + " " + x.Op.String() + " " + x.Right.String()
	case *Approximation:
		op := " LIKE "
		if x.CaseInsensitive {
			op = " ILIKE "
		}
		return x.Left + op + x.Right.String()
	case *Definedness:
		return "DEFINED " + x.Attribute
	case nil:
		return ""
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func formatChild(e Expr, underAnd bool) string {
	switch e.(type) {
	case *Or:
		return "(" + FormatExpr(e) + ")"
	case *And:
		if !underAnd {
			return "(" + FormatExpr(e) + ")"
		}
	}
	return FormatExpr(e)
}
