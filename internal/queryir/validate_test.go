package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_WellFormed(t *testing.T) {
	stmt := &Statement{
		From: []FromItem{{Class: "first", Alias: "f"}, {Class: "second", Alias: "s"}},
		Where: &Or{Terms: []Expr{
			&Not{Expr: &Definedness{Attribute: "f.a1"}},
			&Comparison{Left: "s.a2", Op: Le, Right: Ref("7")},
		}},
		OrderBy: []OrderSpec{{Attribute: "f.a2"}},
		Select:  []string{"f.a1"},
	}

	result := Validate(stmt)

	assert.True(t, result.OK())
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_EmptyStatement(t *testing.T) {
	assert.True(t, Validate(&Statement{}).OK())
}

func TestValidate_Nil(t *testing.T) {
	result := Validate(nil)
	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], "nil statement")
}

func TestValidate_DuplicateAlias(t *testing.T) {
	stmt := &Statement{From: []FromItem{{Class: "first", Alias: "x"}, {Class: "second", Alias: "x"}}}

	result := Validate(stmt)

	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], `duplicate alias "x"`)
	assert.ErrorContains(t, result.Err(), "invalid statement")
}

func TestValidate_SameClassTwiceWithoutAlias(t *testing.T) {
	// Only explicit aliases must be unique.
	stmt := &Statement{From: []FromItem{{Class: "first"}, {Class: "first"}}}
	assert.True(t, Validate(stmt).OK())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	stmt := &Statement{
		From: []FromItem{{Alias: "a.b"}},
		Where: &And{Terms: []Expr{
			&Equality{Right: Lit("x")},
			&Or{Terms: []Expr{&Definedness{}}},
			nil,
		}},
		OrderBy: []OrderSpec{{}},
		Select:  []string{""},
	}

	result := Validate(stmt)

	assert.False(t, result.OK())
	assert.Len(t, result.Problems, 8)
	joined := result.Err().Error()
	for _, want := range []string{
		"FROM item 1 has no class",
		`alias "a.b" contains '.'`,
		"predicate without left operand",
		"OR with 1 term(s)",
		"DEFINED without attribute",
		"missing expression",
		"ORDER BY item 1 has no attribute",
		"SELECT item 1 is empty",
	} {
		assert.Contains(t, joined, want)
	}
}

func TestValidate_EmptyQuotedOperandIsAllowed(t *testing.T) {
	stmt := &Statement{Where: &Equality{Left: "name", Right: Lit("")}}
	assert.True(t, Validate(stmt).OK())

	stmt = &Statement{Where: &Equality{Left: "name", Right: Ref("")}}
	result := Validate(stmt)
	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], "without right operand")
}
