package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/ir"
)

// createTestGraph opens a graph on a fresh in-memory backend.
func createTestGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	return createTestGraphOn(t, NewMemoryBackend(), opts...)
}

func createTestGraphOn(t *testing.T, b Backend, opts ...Option) *Graph {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	g, err := Open(context.Background(), attrtype.NewRegistry(), b, opts...)
	require.NoError(t, err)
	return g
}

// mustClass creates a generic class with the given direct parents.
func mustClass(t *testing.T, g *Graph, name string, parents ...*ResourceClass) *ResourceClass {
	t.Helper()
	ctx := context.Background()
	c, err := g.CreateResourceClass(ctx, name, "", "", "", 0)
	require.NoError(t, err)
	for _, p := range parents {
		require.NoError(t, g.AddParentClass(ctx, c, p, nil))
	}
	return c
}

// mustAttr declares an attribute of the named type on class.
func mustAttr(t *testing.T, g *Graph, class *ResourceClass, name, typ string) *AttributeDefinition {
	t.Helper()
	a := newAttr(t, g, name, typ, "", 0)
	require.NoError(t, g.AddAttribute(context.Background(), class, a, nil))
	return a
}

func newAttr(t *testing.T, g *Graph, name, typ, domain string, flags ir.AttributeFlags) *AttributeDefinition {
	t.Helper()
	ac, err := g.Registry().AttributeClass(typ)
	require.NoError(t, err)
	a, err := NewAttribute(name, ac, domain, flags)
	require.NoError(t, err)
	return a
}

func names(classes []*ResourceClass) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = c.Name()
	}
	return out
}

func attrNames(attrs []*AttributeDefinition) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name()
	}
	return out
}

// faultyBackend injects failures into selected transaction steps.
type faultyBackend struct {
	*MemoryBackend
	failOn      string // "add attribute", "add inheritance", "commit", "begin"
	err         error
	rollbackErr error
}

func (b *faultyBackend) Begin(ctx context.Context) (Tx, error) {
	if b.failOn == "begin" {
		return nil, b.err
	}
	tx, err := b.MemoryBackend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, b: b}, nil
}

type faultyTx struct {
	Tx
	b *faultyBackend
}

func (t *faultyTx) AddAttribute(ctx context.Context, ch AttributeChange) (ir.AttrID, error) {
	if t.b.failOn == "add attribute" {
		return 0, t.b.err
	}
	return t.Tx.AddAttribute(ctx, ch)
}

func (t *faultyTx) AddInheritance(ctx context.Context, ch InheritanceChange) error {
	if t.b.failOn == "add inheritance" {
		return t.b.err
	}
	return t.Tx.AddInheritance(ctx, ch)
}

func (t *faultyTx) Commit() error {
	if t.b.failOn == "commit" {
		return t.b.err
	}
	return t.Tx.Commit()
}

func (t *faultyTx) Rollback() error {
	_ = t.Tx.Rollback()
	return t.b.rollbackErr
}
