package harness

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// validIdentifier matches scenario names, which become golden file names.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Expectation kinds.
const (
	ExpectRows        = "rows"
	ExpectCount       = "count"
	ExpectValues      = "values"
	ExpectSQLContains = "sql_contains"
	ExpectError       = "error"
)

// AssertionError is returned when an expectation fails.
// It includes the query and its SQL to help debug the failure.
type AssertionError struct {
	Type     string     // Expectation kind
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    QueryTrace // The query the expectation was checked against
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Trace.Name, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nQuery:\n  %s\n", e.Trace.Query)
	if e.Trace.SQL != "" {
		fmt.Fprintf(&buf, "  SQL: %s\n", e.Trace.SQL)
	}
	return buf.String()
}

// EvaluateExpect checks one executed query against its expectations and
// returns the failure messages. A query without expectations must succeed.
func EvaluateExpect(trace QueryTrace, e *QueryExpect) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if e == nil || e.Error == "" {
		if trace.Error != "" {
			add(&AssertionError{
				Type:     ExpectError,
				Expected: "success",
				Actual:   trace.Error,
				Trace:    trace,
			})
			return errs
		}
	}
	if e == nil {
		return errs
	}

	if e.Error != "" {
		add(assertError(trace, e.Error))
	}
	if e.Rows != nil {
		add(assertRows(trace, e.Rows))
	}
	if e.Count != nil {
		add(assertCount(trace, *e.Count))
	}
	if e.Values != nil {
		add(assertValues(trace, e.Values))
	}
	for _, s := range e.SQLContains {
		add(assertSQLContains(trace, s))
	}
	return errs
}

func assertError(trace QueryTrace, want string) error {
	if trace.Error == "" {
		return &AssertionError{
			Type:     ExpectError,
			Expected: fmt.Sprintf("error containing %q", want),
			Actual:   fmt.Sprintf("success with %d rows", len(trace.Rows)),
			Trace:    trace,
		}
	}
	if !strings.Contains(trace.Error, want) {
		return &AssertionError{
			Type:     ExpectError,
			Expected: fmt.Sprintf("error containing %q", want),
			Actual:   trace.Error,
			Trace:    trace,
		}
	}
	return nil
}

// assertRows compares resource names row by row. Order matters.
func assertRows(trace QueryTrace, want [][]string) error {
	got := trace.Rows
	if got == nil {
		got = [][]string{}
	}
	if !reflect.DeepEqual(normalize(want), got) {
		return &AssertionError{
			Type:     ExpectRows,
			Expected: formatRows(want),
			Actual:   formatRows(got),
			Trace:    trace,
		}
	}
	return nil
}

func assertCount(trace QueryTrace, want int) error {
	if len(trace.Rows) != want {
		return &AssertionError{
			Type:     ExpectCount,
			Expected: fmt.Sprintf("%d rows", want),
			Actual:   fmt.Sprintf("%d rows", len(trace.Rows)),
			Trace:    trace,
		}
	}
	return nil
}

func assertValues(trace QueryTrace, want [][]string) error {
	if trace.Values == nil {
		return &AssertionError{
			Type:     ExpectValues,
			Expected: formatRows(want),
			Actual:   "query has no SELECT list",
			Trace:    trace,
		}
	}
	if !reflect.DeepEqual(normalize(want), trace.Values) {
		return &AssertionError{
			Type:     ExpectValues,
			Expected: formatRows(want),
			Actual:   formatRows(trace.Values),
			Trace:    trace,
		}
	}
	return nil
}

func assertSQLContains(trace QueryTrace, want string) error {
	if !strings.Contains(trace.SQL, want) {
		return &AssertionError{
			Type:     ExpectSQLContains,
			Expected: fmt.Sprintf("SQL containing %q", want),
			Actual:   "not found",
			Trace:    trace,
		}
	}
	return nil
}

// normalize turns YAML's null rows into empty ones so [[]] and [~] agree.
func normalize(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		if r == nil {
			r = []string{}
		}
		out[i] = r
	}
	return out
}

func formatRows(rows [][]string) string {
	if len(rows) == 0 {
		return "no rows"
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = "[" + strings.Join(r, ", ") + "]"
	}
	return strings.Join(parts, " ")
}
