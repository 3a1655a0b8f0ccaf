package querysql

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/event"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/schema"
)

// newFixture builds the schema shared by the compiler tests. Ids are
// assigned in creation order by the memory backend:
//
//	first  (2)  a1 string (1), a2 integer (2), syn string SYNTHETIC (8),
//	            body text (9), flag boolean (10)
//	second (3)  a1 string (3), a2 integer (4), a3 resource->first (5),
//	            score integer 0..10 (11)
//	third  (4)  child of first
//	doc    (5)  tabular table "doc": title string (6), pages integer (7)
func newFixture(t *testing.T, hub *event.Hub) *schema.Graph {
	t.Helper()
	ctx := context.Background()
	opts := []schema.Option{schema.WithLogger(zaptest.NewLogger(t).Sugar())}
	if hub != nil {
		opts = append(opts, schema.WithHub(hub))
	}
	g, err := schema.Open(ctx, attrtype.NewRegistry(), schema.NewMemoryBackend(), opts...)
	require.NoError(t, err)

	first := mustClass(t, g, "first", "", "")
	mustAttr(t, g, first, "a1", "string", "", 0)
	mustAttr(t, g, first, "a2", "integer", "", 0)

	second := mustClass(t, g, "second", "", "")
	mustAttr(t, g, second, "a1", "string", "", 0)
	mustAttr(t, g, second, "a2", "integer", "", 0)
	mustAttr(t, g, second, "a3", "resource", "first", 0)

	third := mustClass(t, g, "third", "", "")
	require.NoError(t, g.AddParentClass(ctx, third, first, nil))

	doc := mustClass(t, g, "doc", schema.StorageTabular, "doc")
	mustAttr(t, g, doc, "title", "string", "", 0)
	mustAttr(t, g, doc, "pages", "integer", "", 0)

	mustAttr(t, g, first, "syn", "string", "", ir.AttrSynthetic)
	mustAttr(t, g, first, "body", "text", "", 0)
	mustAttr(t, g, first, "flag", "boolean", "", 0)
	mustAttr(t, g, second, "score", "integer", "0..10", 0)
	return g
}

func mustClass(t *testing.T, g *schema.Graph, name, handler, table string) *schema.ResourceClass {
	t.Helper()
	c, err := g.CreateResourceClass(context.Background(), name, "", handler, table, 0)
	require.NoError(t, err)
	return c
}

func mustAttr(t *testing.T, g *schema.Graph, class *schema.ResourceClass, name, typ, domain string, flags ir.AttributeFlags) *schema.AttributeDefinition {
	t.Helper()
	ac, err := g.Registry().AttributeClass(typ)
	require.NoError(t, err)
	a, err := schema.NewAttribute(name, ac, domain, flags)
	require.NoError(t, err)
	require.NoError(t, g.AddAttribute(context.Background(), class, a, nil))
	return a
}

func newTestCompiler(t *testing.T, g *schema.Graph, opts ...Option) *Compiler {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	return NewCompiler(g, opts...)
}

func assertGoldenSQL(t *testing.T, name string, cq *CompiledQuery) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(cq.SQL+"\n"))
}
