// Package rml parses RML statement text into a queryir.Statement.
//
// Grammar (keywords are case-insensitive):
//
//	statement := FIND RESOURCE [FROM from {, from}] [WHERE expr]
//	             [ORDER BY order {, order}] [SELECT name {, name}]
//	from      := class [AS alias]
//	order     := name [ASC | DESC]
//	expr      := and {OR and}
//	and       := unary {AND unary}
//	unary     := NOT unary | ( expr ) | DEFINED name | name op operand
//	op        := = | != | <> | < | <= | > | >= | LIKE | ILIKE
//	operand   := 'string' | "string" | word
package rml

import (
	"strings"

	"github.com/objectledge/coral/internal/queryir"
)

var reserved = map[string]bool{
	"FIND": true, "RESOURCE": true, "FROM": true, "AS": true, "WHERE": true,
	"ORDER": true, "BY": true, "ASC": true, "DESC": true, "SELECT": true,
	"AND": true, "OR": true, "NOT": true, "DEFINED": true, "LIKE": true, "ILIKE": true,
}

// Parse parses one statement.
func Parse(text string) (*queryir.Statement, error) {
	p := &parser{lx: &lexer{src: text}}
	p.advance()
	return p.statement()
}

type parser struct {
	lx  *lexer
	tok token
}

func (p *parser) advance() {
	p.tok = p.lx.next()
}

func (p *parser) fail(msg string, suggestions ...string) *ParseError {
	return &ParseError{
		Message:     msg,
		Offset:      p.tok.offset,
		Token:       p.tok.text,
		Suggestions: suggestions,
	}
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokWord && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.fail("expected " + kw)
	}
	return nil
}

func (p *parser) accept(kind tokenKind) bool {
	if p.tok.kind == kind {
		p.advance()
		return true
	}
	return false
}

// name consumes a non-reserved word.
func (p *parser) name(what string) (string, error) {
	if p.tok.kind != tokWord || reserved[strings.ToUpper(p.tok.text)] {
		return "", p.fail("expected " + what)
	}
	n := p.tok.text
	p.advance()
	return n, nil
}

func (p *parser) statement() (*queryir.Statement, error) {
	if !p.acceptKeyword("FIND") || !p.acceptKeyword("RESOURCE") {
		e := p.fail("missing keyword", "FIND RESOURCE ...")
		e.Err = ErrMissingKeyword
		return nil, e
	}

	stmt := &queryir.Statement{}
	var err error

	if p.acceptKeyword("FROM") {
		if stmt.From, err = p.fromList(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("WHERE") {
		if stmt.Where, err = p.or(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if stmt.OrderBy, err = p.orderList(); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("SELECT") {
		if stmt.Select, err = p.nameList("attribute name"); err != nil {
			return nil, err
		}
	}

	if p.tok.kind != tokEOF {
		return nil, p.fail("unexpected token", "WHERE", "ORDER BY", "SELECT")
	}
	return stmt, nil
}

func (p *parser) fromList() ([]queryir.FromItem, error) {
	var items []queryir.FromItem
	for {
		class, err := p.name("resource class name")
		if err != nil {
			return nil, err
		}
		item := queryir.FromItem{Class: class}
		if p.acceptKeyword("AS") {
			if item.Alias, err = p.name("alias"); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
		if !p.accept(tokComma) {
			return items, nil
		}
	}
}

func (p *parser) orderList() ([]queryir.OrderSpec, error) {
	var specs []queryir.OrderSpec
	for {
		attr, err := p.name("attribute name")
		if err != nil {
			return nil, err
		}
		spec := queryir.OrderSpec{Attribute: attr}
		if p.acceptKeyword("DESC") {
			spec.Descending = true
		} else {
			p.acceptKeyword("ASC")
		}
		specs = append(specs, spec)
		if !p.accept(tokComma) {
			return specs, nil
		}
	}
}

func (p *parser) nameList(what string) ([]string, error) {
	var names []string
	for {
		n, err := p.name(what)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
		if !p.accept(tokComma) {
			return names, nil
		}
	}
}

func (p *parser) or() (queryir.Expr, error) {
	first, err := p.and()
	if err != nil {
		return nil, err
	}
	terms := []queryir.Expr{first}
	for p.acceptKeyword("OR") {
		next, err := p.and()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &queryir.Or{Terms: terms}, nil
}

func (p *parser) and() (queryir.Expr, error) {
	first, err := p.unary()
	if err != nil {
		return nil, err
	}
	terms := []queryir.Expr{first}
	for p.acceptKeyword("AND") {
		next, err := p.unary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &queryir.And{Terms: terms}, nil
}

func (p *parser) unary() (queryir.Expr, error) {
	switch {
	case p.acceptKeyword("NOT"):
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &queryir.Not{Expr: e}, nil
	case p.accept(tokLParen):
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen) {
			return nil, p.fail("expected )")
		}
		return e, nil
	case p.acceptKeyword("DEFINED"):
		attr, err := p.name("attribute name")
		if err != nil {
			return nil, err
		}
		return &queryir.Definedness{Attribute: attr}, nil
	}
	return p.predicate()
}

func (p *parser) predicate() (queryir.Expr, error) {
	left, err := p.name("attribute name")
	if err != nil {
		return nil, err
	}

	var build func(queryir.Operand) queryir.Expr
	switch {
	case p.tok.kind == tokOp:
		op := p.tok.text
		build = func(r queryir.Operand) queryir.Expr {
			switch op {
			case "=":
				return &queryir.Equality{Left: left, Op: queryir.Eq, Right: r}
			case "!=", "<>":
				return &queryir.Equality{Left: left, Op: queryir.Ne, Right: r}
			case "<":
				return &queryir.Comparison{Left: left, Op: queryir.Lt, Right: r}
			case "<=":
				return &queryir.Comparison{Left: left, Op: queryir.Le, Right: r}
			case ">":
				return &queryir.Comparison{Left: left, Op: queryir.Gt, Right: r}
			default:
				return &queryir.Comparison{Left: left, Op: queryir.Ge, Right: r}
			}
		}
	case p.isKeyword("LIKE"), p.isKeyword("ILIKE"):
		ci := p.isKeyword("ILIKE")
		build = func(r queryir.Operand) queryir.Expr {
			return &queryir.Approximation{Left: left, Right: r, CaseInsensitive: ci}
		}
	default:
		return nil, p.fail("expected operator", "=", "!=", "<", "<=", ">", ">=", "LIKE", "ILIKE")
	}
	p.advance()

	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return build(right), nil
}

func (p *parser) operand() (queryir.Operand, error) {
	switch p.tok.kind {
	case tokString:
		o := queryir.Lit(p.tok.text)
		p.advance()
		return o, nil
	case tokWord:
		if reserved[strings.ToUpper(p.tok.text)] {
			return queryir.Operand{}, p.fail("expected operand", "quote keywords used as values")
		}
		o := queryir.Ref(p.tok.text)
		p.advance()
		return o, nil
	case tokIllegal:
		return queryir.Operand{}, p.fail("unterminated string or illegal character")
	}
	return queryir.Operand{}, p.fail("expected operand")
}
