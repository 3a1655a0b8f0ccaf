package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "compile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestCompileCommand(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	out, err := execute(t, "--db", db, "compile", "FIND RESOURCE FROM book WHERE pages > 100")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "SELECT r1.resource_id FROM coral_resource r1"), out)
	assert.Contains(t, out, "r1.resource_class_id = 3")
	assert.Contains(t, out, "> 100")
}

func TestCompileCommandVerbose(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	out, err := execute(t, "--db", db, "-v", "compile",
		"FIND RESOURCE FROM shelf AS s, book AS b WHERE s.book = b SELECT s.label, b.title")
	require.NoError(t, err)
	assert.Contains(t, out, "column 1: shelf AS s")
	assert.Contains(t, out, "column 2: book AS b")
	assert.Contains(t, out, "select: s.label")
	assert.Contains(t, out, "select: b.title")
}

func TestCompileCommandJSON(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	out, err := execute(t, "--db", db, "--format", "json", "compile",
		"FIND RESOURCE FROM book AS b WHERE b.title = 'x' SELECT b.title")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []ColumnInfo{{Position: 1, Name: "b", Class: "book"}}, resp.Data.Columns)
	assert.Equal(t, []string{"b.title"}, resp.Data.Select)
	assert.Contains(t, resp.Data.SQL, "'x'")
}

func TestCompileCommandOutputFile(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)
	target := filepath.Join(t.TempDir(), "query.sql")

	out, err := execute(t, "--db", db, "compile", "FIND RESOURCE FROM shelf", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Written to "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "SELECT r1.resource_id"))
}

func TestCompileCommandMalformed(t *testing.T) {
	db := tempDB(t)
	seedLibrary(t, db)

	tests := []struct {
		name  string
		query string
		kind  string
	}{
		{"syntax", "FIND RESOURCE FROM book WHERE pages =", "SYNTAX"},
		{"unknown class", "FIND RESOURCE FROM magazine", "UNKNOWN_CLASS"},
		{"domain", "FIND RESOURCE FROM book WHERE pages = 9000", "DOMAIN_VIOLATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "--db", db, "--format", "json", "compile", tt.query)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp struct {
				Status string `json:"status"`
				Error  struct {
					Code    string            `json:"code"`
					Details QueryErrorDetails `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, ErrCodeQuery, resp.Error.Code)
			assert.Equal(t, tt.kind, resp.Error.Details.Kind)
		})
	}
}
