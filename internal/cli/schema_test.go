package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectledge/coral/internal/schemaspec"
)

func TestSchemaApply(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--db", db, "schema", "apply", librarySchema)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema applied to "+db)
	assert.Contains(t, out, "1 attribute class(es), 3 class(es), 1 parent edge(s), 6 attribute(s), 2 permission(s) created")

	// a second apply finds everything in place
	out, err = execute(t, "--db", db, "--format", "json", "schema", "apply", librarySchema)
	require.NoError(t, err)
	var resp struct {
		Status string                 `json:"status"`
		Data   schemaspec.ApplyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, schemaspec.ApplyResult{}, resp.Data)
}

func TestSchemaApplyMissingDir(t *testing.T) {
	out, err := execute(t, "--db", tempDB(t), "schema", "apply", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestSchemaApplyInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.cue"), "package bad\n\nclass: book: parents: [\"nowhere\"]\n")

	out, err := execute(t, "--db", tempDB(t), "schema", "apply", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E202]")
}

func TestSchemaApplyRequiresPackageClause(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bare.cue"), `class: note: {}`)

	out, err := execute(t, "--db", tempDB(t), "schema", "apply", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
	assert.Contains(t, out, "package clause")
}

func TestSchemaShowList(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	out, err := execute(t, "--db", db, "schema", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "book : document")
	assert.Contains(t, out, "document [ABSTRACT]")
	assert.Contains(t, out, "4 class(es), fingerprint ")
}

func TestSchemaShowFingerprint(t *testing.T) {
	db := tempDB(t)

	show := func() SchemaInfo {
		out, err := execute(t, "--db", db, "--format", "json", "schema", "show")
		require.NoError(t, err)
		var resp struct {
			Data SchemaInfo `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		return resp.Data
	}

	empty := show()
	require.Len(t, empty.Classes, 1)
	assert.Equal(t, "node", empty.Classes[0].Name)
	assert.Len(t, empty.Fingerprint, 64)

	seedLibrary(t, db)
	seeded := show()
	assert.Len(t, seeded.Classes, 4)
	assert.NotEqual(t, empty.Fingerprint, seeded.Fingerprint)
	assert.Equal(t, seeded.Fingerprint, show().Fingerprint, "stable across runs")
}

func TestSchemaShowClass(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	out, err := execute(t, "--db", db, "schema", "show", "book")
	require.NoError(t, err)
	assert.Contains(t, out, "Class: book (#3)")
	assert.Contains(t, out, "Parents: document")
	assert.Contains(t, out, "title: string [REQUIRED] from document")
	assert.Contains(t, out, "pages: integer (1..5000) from document")
	assert.Contains(t, out, "isbn: isbn\n")
	assert.Contains(t, out, "Permissions: lend, read")
	assert.NotContains(t, out, "creation_time")

	out, err = execute(t, "--db", db, "schema", "show", "book", "--builtins")
	require.NoError(t, err)
	assert.Contains(t, out, "creation_time")
}

func TestSchemaShowClassJSON(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	out, err := execute(t, "--db", db, "--format", "json", "schema", "show", "shelf")
	require.NoError(t, err)

	var resp struct {
		Data ClassInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "shelf", resp.Data.Name)
	assert.Equal(t, "tabular", resp.Data.Handler)
	assert.Equal(t, "shelf", resp.Data.Table)
	require.Len(t, resp.Data.Attributes, 2)
	assert.Equal(t, AttributeInfo{Name: "book", Type: "resource", Domain: "book", DeclaredBy: "shelf"}, resp.Data.Attributes[1])
}

func TestSchemaShowUnknownClass(t *testing.T) {
	out, err := execute(t, "--db", tempDB(t), "schema", "show", "magazine")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E104]")
}
