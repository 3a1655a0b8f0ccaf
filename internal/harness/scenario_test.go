package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/join_two_classes.yaml")
	require.NoError(t, err)

	assert.Equal(t, "join_two_classes", s.Name)
	assert.Contains(t, s.Schema, "class: first")
	assert.Len(t, s.Resources, 6)
	assert.Equal(t, "f1", s.Resources[0].Name)
	assert.Equal(t, 7, s.Resources[0].Values["a2"])
	require.Len(t, s.Queries, 1)
	assert.Equal(t, [][]string{{"f1", "s1"}, {"f1", "s2"}}, s.Queries[0].Expect.Rows)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	s, err := LoadScenarioWithBasePath("testdata/scenarios/library.yaml", "testdata/scenarios")
	require.NoError(t, err)

	require.Len(t, s.SchemaFiles, 1)
	assert.Equal(t, filepath.Join("testdata", "schemas", "library.cue"), s.SchemaFiles[0])
	assert.Len(t, s.Changes, 3)
	assert.Equal(t, "cannot be FINAL", s.Changes[0].Error)
	require.NotNil(t, s.Queries[2].Expect.Count)
	assert.Equal(t, 2, *s.Queries[2].Expect.Count)
}

func TestLoadScenario_MissingSchemaFile(t *testing.T) {
	// relative to the working directory the file cannot be found
	_, err := LoadScenario("testdata/scenarios/library.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema file not found")
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: misspelled field
schema: "class: a: {}"
querys:
  - {name: q, query: FIND RESOURCE}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
	assert.Contains(t, err.Error(), "querys")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nschema: x\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: "name is required",
		},
		{
			name:    "name not an identifier",
			content: "name: a b\ndescription: d\nschema: x\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: "must be an identifier",
		},
		{
			name:    "missing description",
			content: "name: a\nschema: x\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: "description is required",
		},
		{
			name:    "missing schema",
			content: "name: a\ndescription: d\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: "schema or schema_files is required",
		},
		{
			name:    "no queries",
			content: "name: a\ndescription: d\nschema: x",
			wantErr: "queries list is required",
		},
		{
			name:    "resource without class",
			content: "name: a\ndescription: d\nschema: x\nresources: [{name: r}]\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: "resources[0]: class is required",
		},
		{
			name:    "parent created later",
			content: "name: a\ndescription: d\nschema: x\nresources: [{class: c, name: r, parent: p}, {class: c, name: p}]\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: `parent "p" is not created before`,
		},
		{
			name:    "empty change",
			content: "name: a\ndescription: d\nschema: x\nchanges: [{error: boom}]\nqueries: [{name: q, query: FIND RESOURCE}]",
			wantErr: "changes[0]: schema is required",
		},
		{
			name:    "duplicate query",
			content: "name: a\ndescription: d\nschema: x\nqueries: [{name: q, query: FIND RESOURCE}, {name: q, query: FIND RESOURCE}]",
			wantErr: `duplicate name "q"`,
		},
		{
			name:    "error with rows",
			content: "name: a\ndescription: d\nschema: x\nqueries: [{name: q, query: FIND RESOURCE, expect: {error: e, rows: [[a]]}}]",
			wantErr: "error excludes rows",
		},
		{
			name:    "count disagrees with rows",
			content: "name: a\ndescription: d\nschema: x\nqueries: [{name: q, query: FIND RESOURCE, expect: {count: 2, rows: [[a]]}}]",
			wantErr: "count 2 disagrees with 1 rows",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("scenarios", "testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "join_two_classes.yaml"),
		filepath.Join("testdata", "scenarios", "library.yaml"),
	}, files)

	files, err = FindScenarios("testdata/scenarios/library.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"testdata/scenarios/library.yaml"}, files)

	_, err = FindScenarios("missing", "testdata")
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, filepath.Join("testdata", "missing"), nf.ResolvedPath)
}
