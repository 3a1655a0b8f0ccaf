package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/objectledge/coral/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // file receiving the SQL
}

// CompilationResult is the JSON form of a compiled query.
type CompilationResult struct {
	Query   string       `json:"query"`
	SQL     string       `json:"sql"`
	Columns []ColumnInfo `json:"columns"`
	Select  []string     `json:"select,omitempty"`
}

// ColumnInfo describes one result column of a compiled query.
type ColumnInfo struct {
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
	Class    string `json:"class,omitempty"`
}

// QueryErrorDetails is attached to malformed query errors.
type QueryErrorDetails struct {
	Kind    string `json:"kind"`
	Operand string `json:"operand,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query>",
		Short: "Compile an RML query to SQL",
		Long: `Compile a FIND RESOURCE statement against the database schema and
print the SQL it runs as, without executing it.

Examples:
  coral compile "FIND RESOURCE FROM book WHERE pages > 100"
  coral compile "FIND RESOURCE FROM shelf AS s, book AS b WHERE s.book = b" -o query.sql`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the SQL to a file")

	return cmd
}

func runCompile(opts *CompileOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	e, err := openEnv(cmd.Context(), opts.RootOptions)
	if err != nil {
		return dbError(formatter, err)
	}
	defer e.Close()

	cq, err := e.res.Compile(query)
	if err != nil {
		return queryError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d column(s)", len(cq.Columns))

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(cq.SQL+"\n"), 0644); err != nil {
			err = fmt.Errorf("failed to write output file: %w", err)
			return formatter.Error(withCode(ErrCodeWrite, ExitCommandError, "write failed", err), nil)
		}
	}

	result := compilationResult(cq)
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, cq.SQL)
	if opts.Verbose {
		fmt.Fprintln(w)
		for _, c := range result.Columns {
			fmt.Fprintf(w, "  column %d: %s", c.Position, c.Class)
			if c.Name != "" && c.Name != c.Class {
				fmt.Fprintf(w, " AS %s", c.Name)
			}
			fmt.Fprintln(w)
		}
		for _, s := range result.Select {
			fmt.Fprintf(w, "  select: %s\n", s)
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "✓ Written to %s\n", opts.Output)
	}
	return nil
}

func compilationResult(cq *querysql.CompiledQuery) CompilationResult {
	result := CompilationResult{
		Query:   cq.Query,
		SQL:     cq.SQL,
		Columns: make([]ColumnInfo, 0, len(cq.Columns)),
		Select:  cq.Select,
	}
	for _, c := range cq.Columns {
		info := ColumnInfo{Position: c.Position, Name: c.Name()}
		if c.Class != nil {
			info.Class = c.Class.Name()
		}
		result.Columns = append(result.Columns, info)
	}
	return result
}

// queryError reports a query that failed to compile or run. Anything but
// a malformed query counts as a database error.
func queryError(formatter *OutputFormatter, err error) error {
	if !querysql.IsMalformedQuery(err) {
		err = withCode(ErrCodeDatabase, ExitCommandError, "query failed", err)
	}
	return formatter.Error(err, nil)
}
