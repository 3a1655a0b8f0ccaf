package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/event"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/schema"
	"github.com/objectledge/coral/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path,
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithClock(testutil.NewDeterministicClock()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// openGraph loads the schema persisted in s.
func openGraph(t *testing.T, s *Store, opts ...schema.Option) *schema.Graph {
	t.Helper()
	opts = append([]schema.Option{schema.WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	g, err := schema.Open(context.Background(), attrtype.NewRegistry(), s, opts...)
	require.NoError(t, err)
	return g
}

// testEnv is a store with a loaded graph and an instance store on top.
type testEnv struct {
	s   *Store
	g   *schema.Graph
	res *Resources
	hub *event.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := createTestStore(t)
	hub := event.NewHub(zaptest.NewLogger(t).Sugar())
	g := openGraph(t, s, schema.WithHub(hub))
	res := NewResources(s, g)
	t.Cleanup(res.Close)
	return &testEnv{s: s, g: g, res: res, hub: hub}
}

func mustClass(t *testing.T, g *schema.Graph, name, handler, table string) *schema.ResourceClass {
	t.Helper()
	c, err := g.CreateResourceClass(context.Background(), name, "", handler, table, 0)
	require.NoError(t, err)
	return c
}

func newAttr(t *testing.T, g *schema.Graph, name, typ, domain string, flags ir.AttributeFlags) *schema.AttributeDefinition {
	t.Helper()
	ac, err := g.Registry().AttributeClass(typ)
	require.NoError(t, err)
	a, err := schema.NewAttribute(name, ac, domain, flags)
	require.NoError(t, err)
	return a
}

func mustAttr(t *testing.T, g *schema.Graph, class *schema.ResourceClass, name, typ, domain string, flags ir.AttributeFlags) *schema.AttributeDefinition {
	t.Helper()
	a := newAttr(t, g, name, typ, domain, flags)
	require.NoError(t, g.AddAttribute(context.Background(), class, a, nil))
	return a
}

func mustCreate(t *testing.T, e *testEnv, class *schema.ResourceClass, name string, values map[string]ir.Value) *Resource {
	t.Helper()
	r, err := e.res.CreateResource(context.Background(), class, name, 0, values)
	require.NoError(t, err)
	return r
}

// firstSecond declares the classes of the join scenario:
//
//	first(a1 string, a2 integer)
//	second(a1 string, a2 integer, a3 resource<first>)
func firstSecond(t *testing.T, g *schema.Graph) (first, second *schema.ResourceClass) {
	t.Helper()
	first = mustClass(t, g, "first", "", "")
	mustAttr(t, g, first, "a1", "string", "", 0)
	mustAttr(t, g, first, "a2", "integer", "", 0)
	second = mustClass(t, g, "second", "", "")
	mustAttr(t, g, second, "a1", "string", "", 0)
	mustAttr(t, g, second, "a2", "integer", "", 0)
	mustAttr(t, g, second, "a3", "resource", "first", 0)
	return first, second
}

// getTableColumns returns the column names of a table.
func getTableColumns(t *testing.T, s *Store, table string) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	return cols
}

func tableExists(t *testing.T, s *Store, table string) bool {
	t.Helper()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}
