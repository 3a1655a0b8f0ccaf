package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/results"
)

// QueryOutput is the result of the query command: one row of cells per
// result row. Without a SELECT list a cell names a resource; with one it
// holds a projected value.
type QueryOutput struct {
	Query   string     `json:"query"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Count   int        `json:"count"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <query>",
		Short: "Run an RML query",
		Long: `Run a FIND RESOURCE statement and print the matching resources.

Statements with a SELECT list print the selected attribute values instead
of the resources.

Examples:
  coral query "FIND RESOURCE FROM book ORDER BY name"
  coral query "FIND RESOURCE FROM book WHERE pages > 200 SELECT title, pages"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], cmd)
		},
	}
}

func runQuery(opts *RootOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	e, err := openEnv(ctx, opts)
	if err != nil {
		return dbError(formatter, err)
	}
	defer e.Close()

	qr, err := e.res.Query(ctx, query)
	if err != nil {
		return queryError(formatter, err)
	}
	formatter.VerboseLog("SQL: %s", qr.Query().SQL)

	var out *QueryOutput
	if sel := qr.Query().Select; len(sel) > 0 {
		filtered, err := results.NewFiltered(qr, sel, e.graph)
		if err != nil {
			return queryError(formatter, err)
		}
		out, err = filteredOutput(ctx, query, filtered)
		if err != nil {
			return queryError(formatter, err)
		}
	} else {
		out, err = resourceOutput(ctx, query, qr)
		if err != nil {
			return queryError(formatter, err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	writeTable(cmd.OutOrStdout(), out)
	return nil
}

func resourceOutput(ctx context.Context, query string, qr *results.QueryResults) (*QueryOutput, error) {
	out := &QueryOutput{Query: query, Rows: [][]string{}}
	for _, c := range qr.Columns() {
		out.Columns = append(out.Columns, c.String())
	}
	for _, row := range qr.Rows() {
		cells := make([]string, qr.Width())
		for i := range cells {
			r, err := row.Get(ctx, i+1)
			if err != nil {
				return nil, err
			}
			cells[i] = fmt.Sprintf("%s #%d", r.Name(), r.ID())
		}
		out.Rows = append(out.Rows, cells)
	}
	out.Count = len(out.Rows)
	return out, nil
}

func filteredOutput(ctx context.Context, query string, f *results.FilteredQueryResults) (*QueryOutput, error) {
	out := &QueryOutput{Query: query, Columns: f.Names(), Rows: [][]string{}}
	for _, row := range f.Rows() {
		values, err := row.Values(ctx)
		if err != nil {
			return nil, err
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		out.Rows = append(out.Rows, cells)
	}
	out.Count = len(out.Rows)
	return out, nil
}

// formatValue renders an attribute value for display. Unset values are
// empty and references show the target identifier.
func formatValue(v ir.Value) string {
	switch val := v.(type) {
	case nil, ir.Null:
		return ""
	case ir.String:
		return string(val)
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	case ir.Ref:
		return "#" + strconv.FormatInt(int64(val), 10)
	case ir.Time:
		return val.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// writeTable prints rows aligned under their column headers.
func writeTable(w io.Writer, out *QueryOutput) {
	widths := make([]int, len(out.Columns))
	for i, c := range out.Columns {
		widths[i] = len(c)
	}
	for _, row := range out.Rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(out.Columns)
	for _, row := range out.Rows {
		line(row)
	}
	fmt.Fprintf(w, "\n%d row(s)\n", out.Count)
}
