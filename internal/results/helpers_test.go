package results

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/schema"
)

// newTestGraph declares first{a1 string, a2 integer} and second{a1 string}.
func newTestGraph(t *testing.T) *schema.Graph {
	t.Helper()
	ctx := context.Background()
	g, err := schema.Open(ctx, attrtype.NewRegistry(), schema.NewMemoryBackend(),
		schema.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	for _, c := range []struct {
		class string
		attrs [][2]string
	}{
		{"first", [][2]string{{"a1", "string"}, {"a2", "integer"}}},
		{"second", [][2]string{{"a1", "string"}}},
	} {
		class, err := g.CreateResourceClass(ctx, c.class, "", "", "", 0)
		require.NoError(t, err)
		for _, a := range c.attrs {
			ac, err := g.Registry().AttributeClass(a[1])
			require.NoError(t, err)
			def, err := schema.NewAttribute(a[0], ac, "", 0)
			require.NoError(t, err)
			require.NoError(t, g.AddAttribute(ctx, class, def, nil))
		}
	}
	return g
}

func compile(t *testing.T, g *schema.Graph, query string) *querysql.CompiledQuery {
	t.Helper()
	cq, err := querysql.NewCompiler(g).CompileText(query)
	require.NoError(t, err)
	return cq
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeResource struct {
	id     ir.ResourceID
	name   string
	class  *schema.ResourceClass
	values map[string]ir.Value
}

func (r *fakeResource) ID() ir.ResourceID            { return r.id }
func (r *fakeResource) Name() string                 { return r.name }
func (r *fakeResource) Class() *schema.ResourceClass { return r.class }

func (r *fakeResource) Value(_ context.Context, a *schema.AttributeDefinition) (ir.Value, error) {
	if a.Name() == "name" {
		return ir.String(r.name), nil
	}
	if v, ok := r.values[a.Name()]; ok {
		return v, nil
	}
	return ir.Null{}, nil
}

type fakeResolver struct {
	resources map[ir.ResourceID]*fakeResource
	calls     int
}

func (f *fakeResolver) add(r *fakeResource) {
	if f.resources == nil {
		f.resources = make(map[ir.ResourceID]*fakeResource)
	}
	f.resources[r.id] = r
}

func (f *fakeResolver) Resource(_ context.Context, id ir.ResourceID) (Resource, error) {
	f.calls++
	r, ok := f.resources[id]
	if !ok {
		return nil, &errors.EntityDoesNotExistError{Kind: "resource", Key: id.String()}
	}
	return r, nil
}
