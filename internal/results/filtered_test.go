package results

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/schema"
)

func TestFiltered(t *testing.T) {
	g, qr, res := joinFixture(t)
	ctx := context.Background()

	f, err := NewFiltered(qr, []string{"f.a2", "s.a1", "f.name"}, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"f.a2", "s.a1", "f.name"}, f.Names())
	assert.Equal(t, 3, f.Width())
	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Attributes()[2].Has(ir.AttrBuiltin))
	assert.Same(t, qr, f.Results())
	assert.Equal(t, 0, res.calls)

	row, err := f.Row(0)
	require.NoError(t, err)
	values, err := row.Values(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.Int(1), ir.String("x"), ir.String("f10")}, values)

	row, err = f.Row(1)
	require.NoError(t, err)
	v, err := row.GetByName(ctx, "f.a2")
	require.NoError(t, err)
	assert.True(t, ir.IsNull(v))
	assert.Equal(t, 1, row.Row().Index())

	_, err = row.Get(ctx, 4)
	assert.True(t, IsIndexOutOfBounds(err))
	_, err = row.GetByName(ctx, "s.a2")
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))
	_, err = row.Single(ctx)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))

	_, err = f.Row(2)
	assert.True(t, IsIndexOutOfBounds(err))
	assert.Len(t, f.Rows(), 2)
}

func TestFilteredBareNameNeedsSingleColumn(t *testing.T) {
	g, qr, _ := joinFixture(t)

	_, err := NewFiltered(qr, []string{"a1"}, g)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))

	_, err = NewFiltered(qr, []string{"x.a1"}, g)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))

	_, err = NewFiltered(qr, []string{"s.a2"}, g)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))
}

func TestFilteredSingle(t *testing.T) {
	g, qr := singleColumnFixture(t)
	ctx := context.Background()

	f, err := NewFiltered(qr, []string{"a1"}, g)
	require.NoError(t, err)
	row, err := f.Row(0)
	require.NoError(t, err)
	v, err := row.Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.String("solo"), v)
}

func TestFilteredSchemaDisagreement(t *testing.T) {
	g, qr, _ := joinFixture(t)
	ctx := context.Background()

	second, err := g.ResourceClass("second")
	require.NoError(t, err)
	a1, err := second.Attribute("a1")
	require.NoError(t, err)
	require.NoError(t, g.DeleteAttribute(ctx, second, a1))
	require.NoError(t, g.DeleteResourceClass(ctx, second))

	_, err = NewFiltered(qr, []string{"s.a1"}, g)
	assert.True(t, schema.IsIllegalState(err))
}

func TestFilteredSelectAttributeDeleted(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	qr := executeSingle(t, g, "FIND RESOURCE FROM first SELECT a2")

	first, err := g.ResourceClass("first")
	require.NoError(t, err)
	a2, err := first.Attribute("a2")
	require.NoError(t, err)
	require.NoError(t, g.DeleteAttribute(ctx, first, a2))

	_, err = NewFiltered(qr, qr.Query().Select, g)
	assert.True(t, schema.IsIllegalState(err))

	// Names the compiler never saw are still the caller's mistake.
	_, err = NewFiltered(qr, []string{"zz"}, g)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))
}

func TestFilteredBareNameAliasedColumn(t *testing.T) {
	g := newTestGraph(t)
	qr := executeSingle(t, g, "FIND RESOURCE FROM first AS f")

	_, err := NewFiltered(qr, []string{"a1"}, g)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))

	f, err := NewFiltered(qr, []string{"f.a1"}, g)
	require.NoError(t, err)
	row, err := f.Row(0)
	require.NoError(t, err)
	v, err := row.GetByName(context.Background(), "f.a1")
	require.NoError(t, err)
	assert.Equal(t, ir.String("solo"), v)
}

// executeSingle runs a one-column query against a mock returning the
// resource "three" of class first.
func executeSingle(t *testing.T, g *schema.Graph, query string) *QueryResults {
	t.Helper()
	cq := compile(t, g, query)
	first, err := g.ResourceClass("first")
	require.NoError(t, err)
	res := &fakeResolver{}
	res.add(&fakeResource{id: 3, name: "three", class: first,
		values: map[string]ir.Value{"a1": ir.String("solo"), "a2": ir.Int(3)}})

	db, mock := newMock(t)
	mock.ExpectQuery(cq.SQL).WillReturnRows(sqlmock.NewRows([]string{"r1"}).AddRow(int64(3)))
	qr, err := Execute(context.Background(), db, cq, res)
	require.NoError(t, err)
	return qr
}

func singleColumnFixture(t *testing.T) (*schema.Graph, *QueryResults) {
	t.Helper()
	g := newTestGraph(t)
	cq := compile(t, g, "FIND RESOURCE FROM first")
	first, err := g.ResourceClass("first")
	require.NoError(t, err)
	res := &fakeResolver{}
	res.add(&fakeResource{id: 3, name: "three", class: first, values: map[string]ir.Value{"a1": ir.String("solo")}})

	db, mock := newMock(t)
	mock.ExpectQuery(cq.SQL).WillReturnRows(sqlmock.NewRows([]string{"r1"}).AddRow(int64(3)))
	qr, err := Execute(context.Background(), db, cq, res)
	require.NoError(t, err)
	return g, qr
}
