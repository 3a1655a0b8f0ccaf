// Package queryir provides the parsed form of an RML statement.
//
// RML is the declarative query language of coral:
//
//	FIND RESOURCE FROM first AS f, second AS s
//	WHERE f.a1 = s.a1 AND f.a2 = 7
//	ORDER BY f.a2 DESC
//	SELECT f.a1, s.a3
//
// The tree produced by the rml parser is consumed by the SQL compiler in
// querysql. It carries no schema information: whether an operand names an
// attribute, a FROM alias or a literal is decided by the compiler against
// the resource class graph.
//
// SEALED INTERFACES:
//
// Expr is a sealed interface using the marker method pattern. Only types in
// this package implement it, so compilers can switch over it exhaustively:
//
//	switch e := expr.(type) {
//	case *And:
//	case *Or:
//	case *Not:
//	case *Equality:
//	case *Comparison:
//	case *Approximation:
//	case *Definedness:
//	}
//
// OPERANDS:
//
// The left side of every predicate is a reference (attribute or
// alias.attribute). The right side is an Operand: quoted operands are always
// literals, unquoted ones are reference candidates that fall back to being
// literals when they resolve to nothing.
package queryir
