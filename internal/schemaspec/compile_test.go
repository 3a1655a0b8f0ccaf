package schemaspec

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileClass(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		class: article: {
			flags:   ["FINAL"]
			parents: ["document"]
			attributes: {
				title: {type: "string", flags: ["REQUIRED"], default: "untitled"}
				pages: {type: "integer", domain: "1..1000", default: 1}
				draft: {type: "boolean", default: true}
				body:  "text"
			}
			permissions: ["read", "write"]
		}
	`)
	require.NoError(t, v.Err())

	c, err := CompileClass(v.LookupPath(cue.ParsePath("class.article")))
	require.NoError(t, err)

	assert.Equal(t, "article", c.Name)
	assert.Equal(t, []string{"FINAL"}, c.Flags)
	assert.Equal(t, []string{"document"}, c.Parents)
	assert.Equal(t, []string{"read", "write"}, c.Permissions)
	require.Len(t, c.Attributes, 4)

	assert.Equal(t, AttributeSpec{Name: "title", Type: "string", Flags: []string{"REQUIRED"}, Default: "untitled"},
		withoutPos(c.Attributes[0]))
	assert.Equal(t, "1..1000", c.Attributes[1].Domain)
	assert.Equal(t, int64(1), c.Attributes[1].Default)
	assert.Equal(t, true, c.Attributes[2].Default)
	assert.Equal(t, AttributeSpec{Name: "body", Type: "text"}, withoutPos(c.Attributes[3]))
}

func TestCompileClassTabular(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`class: shelf: {handler: "tabular", table: "shelves"}`)
	require.NoError(t, v.Err())

	c, err := CompileClass(v.LookupPath(cue.ParsePath("class.shelf")))
	require.NoError(t, err)
	assert.Equal(t, "tabular", c.Handler)
	assert.Equal(t, "shelves", c.Table)
	assert.Empty(t, c.Attributes)
}

func TestCompileAttributeMissingType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`class: bad: attributes: a: {flags: ["REQUIRED"]}`)
	require.NoError(t, v.Err())

	_, err := CompileClass(v.LookupPath(cue.ParsePath("class.bad")))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "type", ce.Field)
	assert.Contains(t, err.Error(), "required")
}

func TestCompileRejectsFloatDefault(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`class: bad: attributes: a: {type: "integer", default: 1.5}`)
	require.NoError(t, v.Err())

	_, err := CompileClass(v.LookupPath(cue.ParsePath("class.bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestCompileAttributeClass(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		attribute_class: isbn: {native: "string", handler: "string", table: "isbns"}
		attribute_class: counter: {native: "int"}
	`)
	require.NoError(t, v.Err())

	spec, errs := Compile(v)
	require.Empty(t, errs)
	require.Len(t, spec.AttributeClasses, 2)
	assert.Equal(t, "isbns", spec.AttributeClasses[0].Table)
	// the handler defaults to the type's own name
	assert.Equal(t, "counter", spec.AttributeClasses[1].Handler)
}

func TestCompileCollectsErrors(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		attribute_class: broken: {handler: "string"}
		class: good: {}
		class: bad: {parents: "document"}
	`)
	require.NoError(t, v.Err())

	spec, errs := Compile(v)
	assert.Len(t, errs, 2)
	require.Len(t, spec.Classes, 1)
	assert.Equal(t, "good", spec.Classes[0].Name)
}

func TestCompileInvalidCUE(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`class: a: flags: ["X"] & ["Y"]`)

	_, errs := Compile(v)
	require.Len(t, errs, 1)
}

func TestLoadDir(t *testing.T) {
	spec, errs := LoadDir("testdata/library")
	require.Empty(t, errs)

	require.Len(t, spec.AttributeClasses, 1)
	assert.Equal(t, "isbn", spec.AttributeClasses[0].Name)

	var names []string
	for _, c := range spec.Classes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"document", "book", "shelf"}, names)
	assert.Contains(t, spec.Classes[0].Pos.Filename(), "schema.cue")
}

func TestLoadDirErrors(t *testing.T) {
	noPackage := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(noPackage, "bare.cue"), []byte(`class: note: {}`), 0644))

	tests := []struct {
		name    string
		dir     string
		code    string
		message string
	}{
		{"missing", "testdata/nope", ErrCodeNotFound, "not found"},
		{"file", "testdata/library/schema.cue", ErrCodeNotFound, "not a directory"},
		{"empty", t.TempDir(), ErrCodeNoFiles, "no CUE files"},
		{"no package clause", noPackage, ErrCodeLoadFailed, "must start with a package clause"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadDir(tt.dir)
			require.Len(t, errs, 1)
			var le *LoadError
			require.ErrorAs(t, errs[0], &le)
			assert.Equal(t, tt.code, le.Code)
			assert.Contains(t, le.Message, tt.message)
		})
	}
}

func TestLoadString(t *testing.T) {
	spec, errs := LoadString(`class: note: attributes: body: "text"`, "inline.cue")
	require.Empty(t, errs)
	require.Len(t, spec.Classes, 1)
	assert.Equal(t, "note", spec.Classes[0].Name)
	assert.Contains(t, spec.Classes[0].Pos.Filename(), "inline.cue")

	_, errs = LoadString(`class: note: {`, "broken.cue")
	require.Len(t, errs, 1)
	var le *LoadError
	require.ErrorAs(t, errs[0], &le)
	assert.Equal(t, ErrCodeBuildFailed, le.Code)
}

func withoutPos(a AttributeSpec) AttributeSpec {
	a.Pos = AttributeSpec{}.Pos
	return a
}
