// Package results materializes the rows of an executed query.
//
// QueryResults holds every identifier tuple in memory and resolves
// identifiers to resources on first access. FilteredQueryResults projects
// a SELECT list of attribute values over an existing QueryResults.
package results

import (
	"context"
	"database/sql"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/schema"
)

// Querier runs a query. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Resource is a resolved resource instance.
type Resource interface {
	ID() ir.ResourceID
	Name() string
	Class() *schema.ResourceClass

	// Value returns the value of a, or ir.Null when it is not set.
	Value(ctx context.Context, a *schema.AttributeDefinition) (ir.Value, error)
}

// Resolver turns identifiers into resources. It returns an
// EntityDoesNotExistError for unknown identifiers.
type Resolver interface {
	Resource(ctx context.Context, id ir.ResourceID) (Resource, error)
}

// QueryResults is the result set of one query execution. It is not safe
// for concurrent use.
type QueryResults struct {
	query    *querysql.CompiledQuery
	byName   map[string]int
	rows     []*Row
	resolver Resolver
}

// Execute runs cq and reads the whole result set. Failures of the backend
// are reported as BackendError.
func Execute(ctx context.Context, q Querier, cq *querysql.CompiledQuery, r Resolver) (*QueryResults, error) {
	const op = "execute query"
	rows, err := q.QueryContext(ctx, cq.SQL)
	if err != nil {
		return nil, errors.NewBackendError(op, err)
	}
	defer rows.Close()

	qr := newResults(cq, r)
	width := len(cq.Columns)
	for rows.Next() {
		ids := make([]ir.ResourceID, width)
		dest := make([]any, width)
		for i := range ids {
			dest[i] = (*int64)(&ids[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.NewBackendError(op, err)
		}
		qr.rows = append(qr.rows, &Row{qr: qr, index: len(qr.rows), ids: ids, resolved: make([]Resource, width)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewBackendError(op, err)
	}
	return qr, nil
}

func newResults(cq *querysql.CompiledQuery, r Resolver) *QueryResults {
	qr := &QueryResults{query: cq, byName: make(map[string]int), resolver: r}
	classes := make(map[string]int)
	for _, col := range cq.Columns {
		if col.Alias == "" && col.Class != nil {
			classes[col.Class.Name()]++
		}
	}
	for _, col := range cq.Columns {
		if col.Alias != "" {
			qr.byName[col.Alias] = col.Position
		}
	}
	for _, col := range cq.Columns {
		if col.Alias != "" || col.Class == nil || classes[col.Class.Name()] != 1 {
			continue
		}
		if _, taken := qr.byName[col.Class.Name()]; !taken {
			qr.byName[col.Class.Name()] = col.Position
		}
	}
	return qr
}

// Query returns the executed query.
func (qr *QueryResults) Query() *querysql.CompiledQuery { return qr.query }

// Columns describes the result columns, in FROM order.
func (qr *QueryResults) Columns() []*querysql.ResultColumn { return qr.query.Columns }

// Width returns the number of columns.
func (qr *QueryResults) Width() int { return len(qr.query.Columns) }

// Len returns the number of rows.
func (qr *QueryResults) Len() int { return len(qr.rows) }

// ColumnIndex returns the 1-based position of the column named by an alias,
// or by the class name of an unaliased column.
func (qr *QueryResults) ColumnIndex(name string) (int, error) {
	if i, ok := qr.byName[name]; ok {
		return i, nil
	}
	return 0, errors.Wrapf(errors.ErrIllegalArgument, "no result column named %q", name)
}

// Column returns the column at 1-based position i.
func (qr *QueryResults) Column(i int) (*querysql.ResultColumn, error) {
	if err := columnIndex(i, qr.Width()); err != nil {
		return nil, err
	}
	return qr.query.Columns[i-1], nil
}

// Row returns row i, counting from 0.
func (qr *QueryResults) Row(i int) (*Row, error) {
	if err := rowIndex(i, len(qr.rows)); err != nil {
		return nil, err
	}
	return qr.rows[i], nil
}

// Rows returns every row.
func (qr *QueryResults) Rows() []*Row {
	return append([]*Row(nil), qr.rows...)
}

// IDs returns the identifiers of column col, one per row.
func (qr *QueryResults) IDs(col int) ([]ir.ResourceID, error) {
	if err := columnIndex(col, qr.Width()); err != nil {
		return nil, err
	}
	out := make([]ir.ResourceID, len(qr.rows))
	for i, r := range qr.rows {
		out[i] = r.ids[col-1]
	}
	return out, nil
}

// List resolves column col of every row.
func (qr *QueryResults) List(ctx context.Context, col int) ([]Resource, error) {
	if err := columnIndex(col, qr.Width()); err != nil {
		return nil, err
	}
	out := make([]Resource, len(qr.rows))
	for i, r := range qr.rows {
		res, err := r.Get(ctx, col)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

func (qr *QueryResults) resolve(ctx context.Context, id ir.ResourceID) (Resource, error) {
	res, err := qr.resolver.Resource(ctx, id)
	if err != nil {
		if errors.IsEntityDoesNotExist(err) {
			// the query returned it, so it vanished since
			return nil, errors.NewBackendError("resolve resource "+id.String(), err)
		}
		return nil, err
	}
	return res, nil
}

// Row is one identifier tuple.
type Row struct {
	qr       *QueryResults
	index    int
	ids      []ir.ResourceID
	resolved []Resource
}

// Index returns the 0-based position of the row.
func (r *Row) Index() int { return r.index }

// IDs returns the identifiers of the row in column order.
func (r *Row) IDs() []ir.ResourceID {
	return append([]ir.ResourceID(nil), r.ids...)
}

// ID returns the identifier in column col.
func (r *Row) ID(col int) (ir.ResourceID, error) {
	if err := columnIndex(col, len(r.ids)); err != nil {
		return 0, err
	}
	return r.ids[col-1], nil
}

// Get resolves the resource in column col.
func (r *Row) Get(ctx context.Context, col int) (Resource, error) {
	if err := columnIndex(col, len(r.ids)); err != nil {
		return nil, err
	}
	if res := r.resolved[col-1]; res != nil {
		return res, nil
	}
	res, err := r.qr.resolve(ctx, r.ids[col-1])
	if err != nil {
		return nil, err
	}
	r.resolved[col-1] = res
	return res, nil
}

// GetByName resolves the resource in the named column.
func (r *Row) GetByName(ctx context.Context, name string) (Resource, error) {
	col, err := r.qr.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, col)
}

// Single resolves the only resource of a single-column row.
func (r *Row) Single(ctx context.Context) (Resource, error) {
	if len(r.ids) != 1 {
		return nil, errors.Wrapf(errors.ErrIllegalArgument,
			"row has %d columns, an index is required", len(r.ids))
	}
	return r.Get(ctx, 1)
}
