// Package harness runs coral conformance scenarios.
//
// A scenario declares a schema, creates resources in a fresh database and
// runs RML queries against them, checking the rows each query returns.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: join_on_shared_attribute
//	description: "Resources of two classes joined on a1"
//	schema: |
//	  class: first: attributes: {a1: "string", a2: "integer"}
//	  class: second: attributes: {a1: "string"}
//	schema_files:
//	  - ../schemas/library.cue
//	resources:
//	  - {class: first, name: f1, values: {a1: x, a2: 7}}
//	  - {class: second, name: s1, values: {a1: x}}
//	  - {class: second, name: s2, error: "unknown attribute"}
//	changes:
//	  - schema: 'class: first: flags: ["FINAL"]'
//	    error: "cannot be FINAL"
//	queries:
//	  - name: join
//	    query: FIND RESOURCE FROM first AS f, second AS s WHERE f.a1 = s.a1
//	    expect:
//	      rows: [[f1, s1]]
//	      sql_contains: ["LEFT JOIN"]
//
// Resource values are converted to the kind of the attribute they are
// assigned to. A string assigned to a resource attribute names a resource
// created earlier in the same scenario.
//
// # Query Expectations
//
//   - rows: resource names per row and column, in order
//   - count: number of rows
//   - values: formatted SELECT values per row, in order
//   - sql_contains: substrings of the generated SQL
//   - error: substring of the expected compile or execution error
//
// # Deterministic Output
//
// Every scenario runs in its own in-memory SQLite database with a
// deterministic clock, so the generated SQL and the row order are stable
// and can be compared with golden files.
package harness
