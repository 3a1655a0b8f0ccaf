package results

import (
	"context"
	"strings"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/schema"
)

// projection is one resolved SELECT name.
type projection struct {
	name string
	col  int // 1-based
	attr *schema.AttributeDefinition
}

// FilteredQueryResults is a read-only view of a QueryResults that yields
// attribute values instead of resources.
type FilteredQueryResults struct {
	qr     *QueryResults
	proj   []projection
	byName map[string]int
}

// NewFiltered resolves selects against qr. Each name is alias.attribute,
// or a bare attribute when qr has a single unaliased column. Names are
// resolved once; values are fetched per row on access.
//
// A name whose column or attribute is unknown is an illegal argument. When
// the schema disagrees with what the compiler checked, either a column's
// class or a SELECT attribute having gone away, the error is an
// IllegalStateError.
func NewFiltered(qr *QueryResults, selects []string, s querysql.Schema) (*FilteredQueryResults, error) {
	const op = "filter results"
	f := &FilteredQueryResults{qr: qr, byName: make(map[string]int, len(selects))}
	checked := make(map[string]bool, len(qr.query.Select))
	for _, name := range qr.query.Select {
		checked[name] = true
	}
	for _, name := range selects {
		colName, attrName, dotted := strings.Cut(name, ".")
		col := 1
		if dotted {
			var err error
			if col, err = qr.ColumnIndex(colName); err != nil {
				return nil, err
			}
		} else {
			attrName = name
			if qr.Width() != 1 {
				return nil, errors.Wrapf(errors.ErrIllegalArgument,
					"%s must be qualified in a result with %d columns", name, qr.Width())
			}
			if alias := qr.query.Columns[0].Alias; alias != "" {
				return nil, errors.Wrapf(errors.ErrIllegalArgument,
					"%s must be qualified with alias %s", name, alias)
			}
		}

		rc := qr.query.Columns[col-1]
		class := rc.Class
		if class != nil {
			current, err := s.ResourceClassByID(class.ID())
			if err != nil || current != class {
				return nil, &schema.IllegalStateError{Op: op,
					Reason: "result column " + rc.String() + " refers to a class the schema no longer has"}
			}
		}
		attr, err := querysql.LookupAttribute(s.Node(), class, attrName)
		if err != nil {
			return nil, err
		}
		if attr == nil {
			if checked[name] {
				return nil, &schema.IllegalStateError{Op: op,
					Reason: "result column " + rc.String() + " no longer has attribute " + attrName}
			}
			return nil, errors.Wrapf(errors.ErrIllegalArgument, "%s: %s has no attribute %s", name, rc, attrName)
		}
		if _, dup := f.byName[name]; !dup {
			f.byName[name] = len(f.proj) + 1
		}
		f.proj = append(f.proj, projection{name: name, col: col, attr: attr})
	}
	return f, nil
}

// Results returns the underlying result set.
func (f *FilteredQueryResults) Results() *QueryResults { return f.qr }

// Names returns the projected names in SELECT order.
func (f *FilteredQueryResults) Names() []string {
	out := make([]string, len(f.proj))
	for i, p := range f.proj {
		out[i] = p.name
	}
	return out
}

// Attributes returns the attribute behind each projected name.
func (f *FilteredQueryResults) Attributes() []*schema.AttributeDefinition {
	out := make([]*schema.AttributeDefinition, len(f.proj))
	for i, p := range f.proj {
		out[i] = p.attr
	}
	return out
}

// Width returns the number of projected values per row.
func (f *FilteredQueryResults) Width() int { return len(f.proj) }

// Len returns the number of rows.
func (f *FilteredQueryResults) Len() int { return f.qr.Len() }

// Row returns row i, counting from 0.
func (f *FilteredQueryResults) Row(i int) (*FilteredRow, error) {
	row, err := f.qr.Row(i)
	if err != nil {
		return nil, err
	}
	return &FilteredRow{f: f, row: row}, nil
}

// Rows returns every row.
func (f *FilteredQueryResults) Rows() []*FilteredRow {
	out := make([]*FilteredRow, f.qr.Len())
	for i, row := range f.qr.rows {
		out[i] = &FilteredRow{f: f, row: row}
	}
	return out
}

// FilteredRow is one row of projected values.
type FilteredRow struct {
	f   *FilteredQueryResults
	row *Row
}

// Row returns the underlying identifier row.
func (r *FilteredRow) Row() *Row { return r.row }

// Get returns the value at 1-based position i of the SELECT list.
func (r *FilteredRow) Get(ctx context.Context, i int) (ir.Value, error) {
	if err := columnIndex(i, len(r.f.proj)); err != nil {
		return nil, err
	}
	p := r.f.proj[i-1]
	res, err := r.row.Get(ctx, p.col)
	if err != nil {
		return nil, err
	}
	return res.Value(ctx, p.attr)
}

// GetByName returns the value of a projected name.
func (r *FilteredRow) GetByName(ctx context.Context, name string) (ir.Value, error) {
	i, ok := r.f.byName[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrIllegalArgument, "%s is not selected", name)
	}
	return r.Get(ctx, i)
}

// Single returns the value of a one-name projection.
func (r *FilteredRow) Single(ctx context.Context) (ir.Value, error) {
	if len(r.f.proj) != 1 {
		return nil, errors.Wrapf(errors.ErrIllegalArgument,
			"projection has %d values, an index is required", len(r.f.proj))
	}
	return r.Get(ctx, 1)
}

// Values returns every projected value of the row.
func (r *FilteredRow) Values(ctx context.Context) ([]ir.Value, error) {
	out := make([]ir.Value, len(r.f.proj))
	for i := range r.f.proj {
		v, err := r.Get(ctx, i+1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
