package rml

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokOp
	tokComma
	tokLParen
	tokRParen
	tokIllegal
)

type token struct {
	kind   tokenKind
	text   string // unescaped for strings
	offset int
}

// lexer produces tokens on demand so a statement with a bad prefix is
// rejected before the rest of it is scanned.
type lexer struct {
	src string
	pos int
}

func isWordRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '_', '.', '#', '-', ':', '+', '/':
		return true
	}
	return false
}

func (l *lexer) next() token {
	for l.pos < len(l.src) {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += w
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, offset: l.pos}
	}

	start := l.pos
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	switch {
	case r == ',':
		l.pos += w
		return token{kind: tokComma, text: ",", offset: start}
	case r == '(':
		l.pos += w
		return token{kind: tokLParen, text: "(", offset: start}
	case r == ')':
		l.pos += w
		return token{kind: tokRParen, text: ")", offset: start}
	case r == '\'' || r == '"':
		return l.quoted(r)
	case r == '=' || r == '<' || r == '>' || r == '!':
		return l.operator()
	case isWordRune(r):
		for l.pos < len(l.src) {
			r, w := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isWordRune(r) {
				break
			}
			l.pos += w
		}
		return token{kind: tokWord, text: l.src[start:l.pos], offset: start}
	}
	l.pos += w
	return token{kind: tokIllegal, text: string(r), offset: start}
}

// quoted scans a string literal. A doubled quote character stands for
// itself.
func (l *lexer) quoted(q rune) token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if rune(c) == q {
			if l.pos+1 < len(l.src) && rune(l.src[l.pos+1]) == q {
				b.WriteByte(c)
				l.pos += 2
				continue
			}
			l.pos++
			return token{kind: tokString, text: b.String(), offset: start}
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{kind: tokIllegal, text: l.src[start:], offset: start}
}

func (l *lexer) operator() token {
	start := l.pos
	two := ""
	if l.pos+2 <= len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "!=", "<>", "<=", ">=":
		l.pos += 2
		return token{kind: tokOp, text: two, offset: start}
	}
	c := l.src[l.pos]
	l.pos++
	if c == '!' {
		return token{kind: tokIllegal, text: "!", offset: start}
	}
	return token{kind: tokOp, text: string(c), offset: start}
}
