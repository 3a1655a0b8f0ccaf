package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/schema"
	"github.com/objectledge/coral/internal/schemaspec"
	"github.com/objectledge/coral/internal/store"
)

const librarySchema = "testdata/schema"

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CORAL_DATABASE_PATH", "")
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// tempDB returns the path of a database in a fresh directory.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "coral.db")
}

// seedLibrary applies the library schema to the database at path and
// creates two books and a shelf holding one of them.
func seedLibrary(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	g, err := schema.Open(ctx, attrtype.NewRegistry(), st)
	require.NoError(t, err)

	spec, errs := schemaspec.LoadDir(librarySchema)
	require.Empty(t, errs)
	_, err = schemaspec.Apply(ctx, g, spec, nil)
	require.NoError(t, err)

	res := store.NewResources(st, g)
	defer res.Close()
	create := func(className, name string, values map[string]ir.Value) ir.ResourceID {
		class, err := g.ResourceClass(className)
		require.NoError(t, err)
		r, err := res.CreateResource(ctx, class, name, 0, values)
		require.NoError(t, err)
		return r.ID()
	}
	gopl := create("book", "gopl", map[string]ir.Value{
		"title": ir.String("The Go Programming Language"),
		"pages": ir.Int(380),
	})
	create("book", "tour", map[string]ir.Value{
		"title": ir.String("A Tour of Go"),
		"pages": ir.Int(190),
	})
	create("shelf", "top", map[string]ir.Value{
		"label": ir.String("Top"),
		"book":  ir.Ref(gopl),
	})
}

// copyTree copies the files below src into dst.
func copyTree(t *testing.T, src, dst string) {
	t.Helper()
	err := filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
	require.NoError(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
