package rml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/queryir"
)

func TestParse_JoinScenario(t *testing.T) {
	stmt, err := Parse("FIND RESOURCE FROM first AS f, second AS s WHERE f.a1 = s.a1 AND f.a2 = 7")
	require.NoError(t, err)

	assert.Equal(t, []queryir.FromItem{{Class: "first", Alias: "f"}, {Class: "second", Alias: "s"}}, stmt.From)
	assert.Equal(t, &queryir.And{Terms: []queryir.Expr{
		&queryir.Equality{Left: "f.a1", Op: queryir.Eq, Right: queryir.Ref("s.a1")},
		&queryir.Equality{Left: "f.a2", Op: queryir.Eq, Right: queryir.Ref("7")},
	}}, stmt.Where)
	assert.Nil(t, stmt.OrderBy)
	assert.Nil(t, stmt.Select)
}

func TestParse_Bare(t *testing.T) {
	stmt, err := Parse("find resource")
	require.NoError(t, err)
	assert.Equal(t, &queryir.Statement{}, stmt)
}

func TestParse_AllClauses(t *testing.T) {
	stmt, err := Parse(`Find Resource from first where a1 ilike "fo%" order by a2 desc, name asc select a1, a2`)
	require.NoError(t, err)

	assert.Equal(t, []queryir.FromItem{{Class: "first"}}, stmt.From)
	assert.Equal(t, &queryir.Approximation{Left: "a1", Right: queryir.Lit("fo%"), CaseInsensitive: true}, stmt.Where)
	assert.Equal(t, []queryir.OrderSpec{{Attribute: "a2", Descending: true}, {Attribute: "name"}}, stmt.OrderBy)
	assert.Equal(t, []string{"a1", "a2"}, stmt.Select)
}

func TestParse_Operators(t *testing.T) {
	tests := []struct {
		where string
		want  queryir.Expr
	}{
		{"a = 1", &queryir.Equality{Left: "a", Op: queryir.Eq, Right: queryir.Ref("1")}},
		{"a != 1", &queryir.Equality{Left: "a", Op: queryir.Ne, Right: queryir.Ref("1")}},
		{"a <> 1", &queryir.Equality{Left: "a", Op: queryir.Ne, Right: queryir.Ref("1")}},
		{"a < 1", &queryir.Comparison{Left: "a", Op: queryir.Lt, Right: queryir.Ref("1")}},
		{"a <= 1", &queryir.Comparison{Left: "a", Op: queryir.Le, Right: queryir.Ref("1")}},
		{"a > -1", &queryir.Comparison{Left: "a", Op: queryir.Gt, Right: queryir.Ref("-1")}},
		{"a>=1", &queryir.Comparison{Left: "a", Op: queryir.Ge, Right: queryir.Ref("1")}},
		{"a LIKE 'x%'", &queryir.Approximation{Left: "a", Right: queryir.Lit("x%")}},
		{"DEFINED a", &queryir.Definedness{Attribute: "a"}},
		{"a = 'it''s'", &queryir.Equality{Left: "a", Right: queryir.Lit("it's")}},
		{"a = ''", &queryir.Equality{Left: "a", Right: queryir.Lit("")}},
		{"t < 2024-01-02T03:04:05Z", &queryir.Comparison{Left: "t", Op: queryir.Lt, Right: queryir.Ref("2024-01-02T03:04:05Z")}},
		{"r = #12", &queryir.Equality{Left: "r", Right: queryir.Ref("#12")}},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			stmt, err := Parse("FIND RESOURCE WHERE " + tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.Where)
		})
	}
}

func TestParse_Precedence(t *testing.T) {
	a := &queryir.Equality{Left: "a", Right: queryir.Ref("1")}
	b := &queryir.Equality{Left: "b", Right: queryir.Ref("2")}
	c := &queryir.Equality{Left: "c", Right: queryir.Ref("3")}

	tests := []struct {
		where string
		want  queryir.Expr
	}{
		{"a = 1 OR b = 2 AND c = 3", &queryir.Or{Terms: []queryir.Expr{a, &queryir.And{Terms: []queryir.Expr{b, c}}}}},
		{"(a = 1 OR b = 2) AND c = 3", &queryir.And{Terms: []queryir.Expr{&queryir.Or{Terms: []queryir.Expr{a, b}}, c}}},
		{"NOT a = 1 AND b = 2", &queryir.And{Terms: []queryir.Expr{&queryir.Not{Expr: a}, b}}},
		{"NOT (a = 1 AND b = 2)", &queryir.Not{Expr: &queryir.And{Terms: []queryir.Expr{a, b}}}},
		{"NOT NOT a = 1", &queryir.Not{Expr: &queryir.Not{Expr: a}}},
		{"((a = 1))", a},
	}
	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			stmt, err := Parse("FIND RESOURCE WHERE " + tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.Where)
		})
	}
}

func TestParse_MissingKeyword(t *testing.T) {
	for _, text := range []string{
		"",
		"FIND",
		"FIND RESOURCES",
		"SELECT * FROM first",
		// the rest of the statement is not even scanned
		"RESOURCE FIND 'unterminated",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingKeyword))
			assert.True(t, IsParseError(err))
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		text   string
		msg    string
		offset int
	}{
		{"FIND RESOURCE FROM", "expected resource class name", 18},
		{"FIND RESOURCE FROM first AS", "expected alias", 27},
		{"FIND RESOURCE FROM where", "expected resource class name", 19},
		{"FIND RESOURCE WHERE a", "expected operator", 21},
		{"FIND RESOURCE WHERE a = ", "expected operand", 24},
		{"FIND RESOURCE WHERE a = 'x", "unterminated string", 24},
		{"FIND RESOURCE WHERE (a = 1", "expected )", 26},
		{"FIND RESOURCE WHERE a = and", "expected operand", 24},
		{"FIND RESOURCE WHERE a ! 1", "expected operator", 22},
		{"FIND RESOURCE ORDER a", "expected BY", 20},
		{"FIND RESOURCE SELECT", "expected attribute name", 20},
		{"FIND RESOURCE FROM first garbage", "unexpected token", 25},
		{"FIND RESOURCE SELECT a WHERE a = 1", "unexpected token", 23},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Contains(t, pe.Error(), tt.msg)
			assert.Equal(t, tt.offset, pe.Offset)
			assert.False(t, errors.Is(err, ErrMissingKeyword))
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, text := range []string{
		"FIND RESOURCE",
		"FIND RESOURCE FROM first AS f, second AS s WHERE f.a1 = s.a1 AND f.a2 = 7",
		"FIND RESOURCE FROM first WHERE (a1 = 'x' OR a2 > 3) AND NOT DEFINED a3 ORDER BY a2 DESC SELECT a1",
		"FIND RESOURCE WHERE NOT (name LIKE 'a%' OR name ILIKE 'B%')",
	} {
		t.Run(text, func(t *testing.T) {
			stmt, err := Parse(text)
			require.NoError(t, err)
			assert.Equal(t, text, stmt.String())

			again, err := Parse(stmt.String())
			require.NoError(t, err)
			assert.Equal(t, stmt, again)
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Message: "expected operator", Offset: 3, Token: "x", Suggestions: []string{"=", "LIKE"}}
	assert.Equal(t, `expected operator near "x" (offset 3). Suggestions: =, LIKE`, err.Error())

	err = &ParseError{Message: "expected operand", Offset: 9}
	assert.Equal(t, "expected operand at end of statement (offset 9)", err.Error())
}
