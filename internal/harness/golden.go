package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the query trace of a run as stable text: the statement,
// the generated SQL and the returned rows of every query.
func Snapshot(name string, trace []QueryTrace) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)
	for _, q := range trace {
		fmt.Fprintf(&b, "\n== %s\n", q.Name)
		fmt.Fprintf(&b, "query: %s\n", q.Query)
		if q.SQL != "" {
			fmt.Fprintf(&b, "sql: %s\n", q.SQL)
		}
		if q.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", q.Error)
			continue
		}
		fmt.Fprintf(&b, "rows: %d\n", len(q.Rows))
		for i, row := range q.Rows {
			fmt.Fprintf(&b, "  %s", strings.Join(row, " "))
			if i < len(q.Values) {
				fmt.Fprintf(&b, " | %s", strings.Join(q.Values[i], " | "))
			}
			b.WriteString("\n")
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its query trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result.Trace))
}
