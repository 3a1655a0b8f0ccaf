package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/objectledge/coral/internal/errors"
)

func TestAddAttribute_BackendFailureRestoresState(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	b := &faultyBackend{MemoryBackend: NewMemoryBackend()}
	g := createTestGraphOn(t, b, WithLogger(zap.New(core).Sugar()))
	c := mustClass(t, g, "c")
	gen := c.Generation()

	b.failOn = "add attribute"
	b.err = sql.ErrConnDone
	b.rollbackErr = sql.ErrTxDone

	a := newAttr(t, g, "a1", "string", "", 0)
	err := g.AddAttribute(context.Background(), c, a, nil)
	require.Error(t, err)
	assert.True(t, errors.IsBackendError(err))
	assert.True(t, errors.Is(err, sql.ErrConnDone), "the original error is returned")
	assert.False(t, errors.Is(err, sql.ErrTxDone))

	assert.False(t, c.HasAttribute("a1"))
	assert.Equal(t, gen, c.Generation())
	assert.Zero(t, a.DeclaringClassID(), "definition is detached again")

	entries := logs.FilterMessage("schema rollback failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "add attribute", entries[0].ContextMap()["op"])

	// The same definition can be attached once the backend recovers.
	b.failOn = ""
	require.NoError(t, g.AddAttribute(context.Background(), c, a, nil))
	assert.True(t, c.HasAttribute("a1"))
}

func TestAddAttribute_ValueRequiredIsNotWrappedAsBackendError(t *testing.T) {
	b := &faultyBackend{MemoryBackend: NewMemoryBackend()}
	g := createTestGraphOn(t, b)
	c := mustClass(t, g, "c")

	b.failOn = "add attribute"
	b.err = &errors.ValueRequiredError{Attribute: "a1", Class: "c", Instances: 3}

	err := g.AddAttribute(context.Background(), c, newAttr(t, g, "a1", "string", "", 0), nil)
	assert.True(t, errors.IsValueRequired(err))
	assert.False(t, errors.IsBackendError(err))
	assert.False(t, c.HasAttribute("a1"))
}

func TestAddParentClass_CommitFailureRestoresEdges(t *testing.T) {
	b := &faultyBackend{MemoryBackend: NewMemoryBackend()}
	g := createTestGraphOn(t, b)
	p := mustClass(t, g, "p")
	mustAttr(t, g, p, "a1", "string")
	c := mustClass(t, g, "c")

	b.failOn = "commit"
	b.err = sql.ErrConnDone
	err := g.AddParentClass(context.Background(), c, p, nil)
	assert.True(t, errors.IsBackendError(err))
	assert.Contains(t, err.Error(), "commit")

	assert.Empty(t, c.ParentClasses())
	assert.Empty(t, p.ChildClasses())
	assert.False(t, c.HasAttribute("a1"))

	snap, err := b.LoadSchema(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Inheritance)
}

func TestCreateResourceClass_BeginFailure(t *testing.T) {
	b := &faultyBackend{MemoryBackend: NewMemoryBackend()}
	g := createTestGraphOn(t, b)

	b.failOn = "begin"
	b.err = sql.ErrConnDone
	_, err := g.CreateResourceClass(context.Background(), "c", "", "", "", 0)
	assert.True(t, errors.IsBackendError(err))

	_, err = g.ResourceClass("c")
	assert.True(t, errors.IsEntityDoesNotExist(err))
}

func TestCreateAttributeClass_RollbackUnregisters(t *testing.T) {
	b := &faultyBackend{MemoryBackend: NewMemoryBackend()}
	g := createTestGraphOn(t, b)

	b.failOn = "commit"
	b.err = sql.ErrConnDone
	_, err := g.CreateAttributeClass(context.Background(), "email", "string", "string", "")
	assert.True(t, errors.IsBackendError(err))

	_, err = g.Registry().AttributeClass("email")
	assert.True(t, errors.IsEntityDoesNotExist(err))
}
