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

const joinQuery = "FIND RESOURCE FROM first AS f, second AS s WHERE f.a1 = s.a1"

// joinFixture executes the two-column join against a mock returning the
// rows (10, 20) and (11, 20).
func joinFixture(t *testing.T) (*schema.Graph, *QueryResults, *fakeResolver) {
	t.Helper()
	g := newTestGraph(t)
	cq := compile(t, g, joinQuery)
	first, err := g.ResourceClass("first")
	require.NoError(t, err)
	second, err := g.ResourceClass("second")
	require.NoError(t, err)

	res := &fakeResolver{}
	res.add(&fakeResource{id: 10, name: "f10", class: first, values: map[string]ir.Value{"a1": ir.String("x"), "a2": ir.Int(1)}})
	res.add(&fakeResource{id: 11, name: "f11", class: first, values: map[string]ir.Value{"a1": ir.String("x")}})
	res.add(&fakeResource{id: 20, name: "s20", class: second, values: map[string]ir.Value{"a1": ir.String("x")}})

	db, mock := newMock(t)
	mock.ExpectQuery(cq.SQL).WillReturnRows(
		sqlmock.NewRows([]string{"r1", "r2"}).
			AddRow(int64(10), int64(20)).
			AddRow(int64(11), int64(20)))

	qr, err := Execute(context.Background(), db, cq, res)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	return g, qr, res
}

func TestExecute(t *testing.T) {
	_, qr, res := joinFixture(t)
	ctx := context.Background()

	assert.Equal(t, 2, qr.Len())
	assert.Equal(t, 2, qr.Width())
	assert.Equal(t, joinQuery, qr.Query().Query)
	assert.Equal(t, 0, res.calls, "identifiers resolve lazily")

	row, err := qr.Row(1)
	require.NoError(t, err)
	assert.Equal(t, 1, row.Index())
	assert.Equal(t, []ir.ResourceID{11, 20}, row.IDs())

	id, err := row.ID(2)
	require.NoError(t, err)
	assert.Equal(t, ir.ResourceID(20), id)

	f, err := row.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "f11", f.Name())
	assert.Equal(t, "first", f.Class().Name())

	s, err := row.GetByName(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "s20", s.Name())

	// resolved once per slot
	_, err = row.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.calls)
}

func TestColumns(t *testing.T) {
	_, qr, _ := joinFixture(t)

	cols := qr.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "f", cols[0].Name())
	assert.Equal(t, "second", cols[1].Class.Name())

	i, err := qr.ColumnIndex("s")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = qr.ColumnIndex("second")
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument), "aliased columns are known by alias only")

	col, err := qr.Column(1)
	require.NoError(t, err)
	assert.Equal(t, "f", col.Alias)
}

func TestListAndIDs(t *testing.T) {
	_, qr, _ := joinFixture(t)
	ctx := context.Background()

	ids, err := qr.IDs(1)
	require.NoError(t, err)
	assert.Equal(t, []ir.ResourceID{10, 11}, ids)

	list, err := qr.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Same(t, list[0], list[1])

	rows := qr.Rows()
	assert.Len(t, rows, 2)
}

func TestIndexErrors(t *testing.T) {
	_, qr, _ := joinFixture(t)
	ctx := context.Background()

	_, err := qr.Row(2)
	assert.True(t, IsIndexOutOfBounds(err))
	assert.EqualError(t, err, "row index 2 out of bounds [0, 2)")

	_, err = qr.Row(-1)
	assert.True(t, IsIndexOutOfBounds(err))

	row, err := qr.Row(0)
	require.NoError(t, err)

	_, err = row.Get(ctx, 0)
	assert.True(t, IsIndexOutOfBounds(err))
	_, err = row.Get(ctx, 3)
	assert.EqualError(t, err, "column index 3 out of bounds [1, 2]")

	_, err = row.GetByName(ctx, "zz")
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))

	_, err = row.Single(ctx)
	assert.True(t, errors.Is(err, errors.ErrIllegalArgument))

	_, err = qr.List(ctx, 5)
	assert.True(t, IsIndexOutOfBounds(err))
	_, err = qr.Column(0)
	assert.True(t, IsIndexOutOfBounds(err))
}

func TestSingleColumn(t *testing.T) {
	g := newTestGraph(t)
	cq := compile(t, g, "FIND RESOURCE FROM first")
	first, err := g.ResourceClass("first")
	require.NoError(t, err)
	res := &fakeResolver{}
	res.add(&fakeResource{id: 7, name: "seven", class: first})

	db, mock := newMock(t)
	mock.ExpectQuery(cq.SQL).WillReturnRows(sqlmock.NewRows([]string{"r1"}).AddRow(int64(7)))

	ctx := context.Background()
	qr, err := Execute(ctx, db, cq, res)
	require.NoError(t, err)

	row, err := qr.Row(0)
	require.NoError(t, err)
	r, err := row.Single(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.ResourceID(7), r.ID())

	i, err := qr.ColumnIndex("first")
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestVanishedResourceIsBackendError(t *testing.T) {
	g := newTestGraph(t)
	cq := compile(t, g, "FIND RESOURCE FROM first")

	db, mock := newMock(t)
	mock.ExpectQuery(cq.SQL).WillReturnRows(sqlmock.NewRows([]string{"r1"}).AddRow(int64(99)))

	ctx := context.Background()
	qr, err := Execute(ctx, db, cq, &fakeResolver{})
	require.NoError(t, err)

	row, err := qr.Row(0)
	require.NoError(t, err)
	_, err = row.Get(ctx, 1)
	assert.True(t, errors.IsBackendError(err))
	assert.True(t, errors.IsEntityDoesNotExist(err))
}

func TestExecuteBackendFailures(t *testing.T) {
	g := newTestGraph(t)
	cq := compile(t, g, "FIND RESOURCE FROM first")
	ctx := context.Background()

	t.Run("query", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(cq.SQL).WillReturnError(errors.New("disk I/O error"))

		_, err := Execute(ctx, db, cq, &fakeResolver{})
		assert.True(t, errors.IsBackendError(err))
		assert.Contains(t, err.Error(), "disk I/O error")
	})

	t.Run("scan", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(cq.SQL).WillReturnRows(sqlmock.NewRows([]string{"r1"}).AddRow("not a number"))

		_, err := Execute(ctx, db, cq, &fakeResolver{})
		assert.True(t, errors.IsBackendError(err))
	})

	t.Run("rows", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(cq.SQL).WillReturnRows(
			sqlmock.NewRows([]string{"r1"}).AddRow(int64(1)).AddRow(int64(2)).RowError(1, errors.New("interrupted")))

		_, err := Execute(ctx, db, cq, &fakeResolver{})
		assert.True(t, errors.IsBackendError(err))
	})
}
