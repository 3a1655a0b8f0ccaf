package querysql

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/objectledge/coral/internal/ir"
)

// LowerFunc is the SQL function that case-folds text for ILIKE. Backends
// must register it with FoldCase as its implementation, so the column and
// the folded literal agree on every script, not only ASCII.
const LowerFunc = "coral_lower"

// FoldCase lower-cases s using Unicode rules.
func FoldCase(s string) string {
	// a Caser keeps state and must not be shared between goroutines
	return cases.Lower(language.Und).String(s)
}

type orderTerm struct {
	ref  operand
	desc bool
}

// emit assembles the statement:
//
//	SELECT r1.resource_id, ... FROM <column terms>
//	WHERE <membership> AND <glue> AND <where> ORDER BY <terms>, r1.resource_id, ...
//
// The resource_id tiebreakers make the row order deterministic.
func (cp *compilation) emit(where node, order []orderTerm) (string, error) {
	var b strings.Builder

	b.WriteString("SELECT ")
	for i, col := range cp.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.sqlAlias() + ".resource_id")
	}
	b.WriteString(" FROM ")
	b.WriteString(strings.Join(cp.from, ", "))

	var conds []string
	for _, col := range cp.columns {
		if col.Class != nil {
			conds = append(conds, cp.membership(col))
		}
	}
	conds = append(conds, cp.glue...)
	if where != nil {
		// the conjunction joining the parts is the WHERE tree's parent
		sql, err := cp.child(where, parentAnd)
		if err != nil {
			return "", err
		}
		conds = append(conds, sql)
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	b.WriteString(" ORDER BY ")
	for _, o := range order {
		v, err := cp.value(o.ref)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
		if o.desc {
			b.WriteString(" DESC")
		}
		b.WriteString(", ")
	}
	for i, col := range cp.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.sqlAlias() + ".resource_id")
	}
	return b.String(), nil
}

type parentKind int

const (
	parentAnd parentKind = iota
	parentOr
	parentNot
)

// child emits n as an operand of a parent node. OR is parenthesized under
// AND and NOT; NOT parenthesizes everything except DEFINED, which it turns
// into IS NULL.
func (cp *compilation) child(n node, parent parentKind) (string, error) {
	sql, err := cp.expr2sql(n)
	if err != nil {
		return "", err
	}
	switch n.(type) {
	case *orNode:
		if parent == parentAnd || parent == parentNot {
			return "(" + sql + ")", nil
		}
	case *andNode:
		if parent == parentNot {
			return "(" + sql + ")", nil
		}
	case *predNode, *notNode:
		if parent == parentNot {
			return "(" + sql + ")", nil
		}
	}
	return sql, nil
}

func (cp *compilation) expr2sql(n node) (string, error) {
	switch x := n.(type) {
	case *andNode:
		return cp.join2sql(x.terms, " AND ", parentAnd)

	case *orNode:
		return cp.join2sql(x.terms, " OR ", parentOr)

	case *notNode:
		if d, ok := x.x.(*definedNode); ok {
			v, err := cp.value(d.ref)
			if err != nil {
				return "", err
			}
			return v + " IS NULL", nil
		}
		sql, err := cp.child(x.x, parentNot)
		if err != nil {
			return "", err
		}
		return "NOT " + sql, nil

	case *definedNode:
		v, err := cp.value(x.ref)
		if err != nil {
			return "", err
		}
		return v + " IS NOT NULL", nil

	case *predNode:
		return cp.pred2sql(x)
	}
	return "", fmt.Errorf("unexpected node %T", n)
}

func (cp *compilation) join2sql(terms []node, sep string, parent parentKind) (string, error) {
	parts := make([]string, len(terms))
	for i, t := range terms {
		sql, err := cp.child(t, parent)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return strings.Join(parts, sep), nil
}

func (cp *compilation) pred2sql(p *predNode) (string, error) {
	left, err := cp.value(p.lhs)
	if err != nil {
		return "", err
	}

	var right string
	switch p.rhs.kind {
	case opAttribute:
		if right, err = cp.value(p.rhs); err != nil {
			return "", err
		}
		if p.fold {
			right = LowerFunc + "(" + right + ")"
		}
	case opClass:
		right = p.rhs.col.sqlAlias() + ".resource_id"
	default:
		v := p.rhs.value
		if s, ok := v.(ir.String); ok && p.fold {
			v = ir.String(FoldCase(string(s)))
		}
		if right, err = p.lhs.attr.Handler().SQLLiteral(v); err != nil {
			return "", malformed(CodeIllegalLiteral, p.rhs.text, "cannot encode literal: %v", err)
		}
	}

	if p.fold {
		left = LowerFunc + "(" + left + ")"
	}
	return left + " " + p.op + " " + right, nil
}

// value returns the SQL expression of an attribute operand.
func (cp *compilation) value(o operand) (string, error) {
	v, ok := cp.values[o.col][o.attr]
	if !ok {
		return "", fmt.Errorf("attribute %s is not joined for column %s", o.attr.Name(), o.col)
	}
	return v, nil
}
