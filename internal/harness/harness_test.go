package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func runScenario(t *testing.T, s *Scenario) *Result {
	t.Helper()
	result, err := Run(context.Background(), s, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	return result
}

func TestRun_Library(t *testing.T) {
	s, err := LoadScenarioWithBasePath("testdata/scenarios/library.yaml", "testdata/scenarios")
	require.NoError(t, err)

	result := runScenario(t, s)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	require.Len(t, result.Trace, len(s.Queries))

	shelved := result.Trace[4]
	assert.Equal(t, "shelved", shelved.Name)
	assert.Contains(t, shelved.SQL, "shelf t1_")
	assert.Equal(t, [][]string{{"Top", "The Go Programming Language"}}, shelved.Values)

	unknown := result.Trace[7]
	assert.Empty(t, unknown.SQL)
	assert.NotEmpty(t, unknown.Error)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	count := 5
	s := &Scenario{
		Name:   "failing",
		Schema: `class: item: attributes: {label: "string", rank: "integer"}`,
		Resources: []ResourceStep{
			{Class: "item", Name: "one", Values: map[string]interface{}{"label": "a", "rank": 1}},
			{Class: "item", Name: "two", Values: map[string]interface{}{"label": "b", "rank": 2}},
			{Class: "item", Name: "three", Values: map[string]interface{}{"rank": "high"}, Error: "as int"},
			{Class: "item", Name: "four", Values: map[string]interface{}{"label": "d"}, Error: "no such thing"},
		},
		Changes: []ChangeStep{
			{Schema: `class: item: attributes: note: "string"`, Error: "should fail"},
		},
		Queries: []QueryStep{
			{Name: "ordered", Query: "FIND RESOURCE FROM item ORDER BY rank DESC", Expect: &QueryExpect{
				Rows: [][]string{{"one"}, {"two"}},
			}},
			{Name: "counted", Query: "FIND RESOURCE FROM item", Expect: &QueryExpect{Count: &count}},
			{Name: "broken", Query: "FIND RESOURCE FROM item WHERE"},
			{Name: "selected", Query: "FIND RESOURCE FROM item WHERE rank = 1 SELECT label", Expect: &QueryExpect{
				Values:      [][]string{{"a"}},
				SQLContains: []string{"coral_attribute_integer"},
			}},
		},
	}

	result := runScenario(t, s)
	assert.False(t, result.Pass)
	joined := strings.Join(result.Errors, "\n")

	assert.Contains(t, joined, `resources[3] four: expected error containing "no such thing", got success`)
	assert.Contains(t, joined, `changes[0]: expected error containing "should fail", got success`)
	assert.Contains(t, joined, "Assertion failed: ordered rows")
	assert.Contains(t, joined, "Expected: [one] [two]")
	assert.Contains(t, joined, "Actual: [two] [one] [four]")
	assert.Contains(t, joined, "Assertion failed: counted count")
	assert.Contains(t, joined, "Assertion failed: broken error")
	assert.NotContains(t, joined, "selected")
	assert.NotContains(t, joined, "resources[2]")
}

func TestRun_SetupFailures(t *testing.T) {
	tests := []struct {
		name    string
		s       *Scenario
		wantErr string
	}{
		{
			name:    "bad cue",
			s:       &Scenario{Name: "bad_cue", Schema: "class: {"},
			wantErr: "inline schema",
		},
		{
			name:    "invalid schema",
			s:       &Scenario{Name: "invalid", Schema: `class: a: parents: ["ghost"]`},
			wantErr: "unknown parent class",
		},
		{
			name: "unknown class without expected error",
			s: &Scenario{
				Name:      "unknown",
				Schema:    `class: a: {}`,
				Resources: []ResourceStep{{Class: "b", Name: "x"}},
			},
			wantErr: "resources[0]",
		},
		{
			name: "reference to unknown resource",
			s: &Scenario{
				Name:      "dangling",
				Schema:    `class: a: attributes: link: "resource"`,
				Resources: []ResourceStep{{Class: "a", Name: "x", Values: map[string]interface{}{"link": "y"}}},
			},
			wantErr: `unknown resource "y"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_ParentsAndReferences(t *testing.T) {
	s := &Scenario{
		Name:   "tree",
		Schema: `class: folder: attributes: {alias: {type: "resource", domain: "folder"}, made: "date"}`,
		Resources: []ResourceStep{
			{Class: "folder", Name: "root"},
			{Class: "folder", Name: "docs", Parent: "root", Values: map[string]interface{}{"made": "2024-02-03"}},
			{Class: "folder", Name: "link", Parent: "root", Values: map[string]interface{}{"alias": "docs"}},
		},
		Queries: []QueryStep{
			{Name: "aliases", Query: "FIND RESOURCE FROM folder WHERE DEFINED alias SELECT alias, parent", Expect: &QueryExpect{
				Rows:   [][]string{{"link"}},
				Values: [][]string{{"docs", "root"}},
			}},
			{Name: "dated", Query: "FIND RESOURCE FROM folder WHERE made > '2024-01-01' SELECT made", Expect: &QueryExpect{
				Values: [][]string{{"2024-02-03T00:00:00Z"}},
			}},
		},
	}

	result := runScenario(t, s)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}
