package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunWithGolden_JoinTwoClasses(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/join_two_classes.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestSnapshot_Format(t *testing.T) {
	trace := []QueryTrace{
		{
			Name:   "selected",
			Query:  "FIND RESOURCE FROM item SELECT label",
			SQL:    "SELECT r1.resource_id FROM coral_resource r1",
			Rows:   [][]string{{"one"}, {"two"}},
			Values: [][]string{{"a"}, {""}},
		},
		{
			Name:  "broken",
			Query: "FIND RESOURCE FROM",
			Error: "malformed query: unexpected end of statement",
		},
		{
			Name:  "empty",
			Query: "FIND RESOURCE FROM item WHERE label = 'z'",
			SQL:   "SELECT r1.resource_id FROM coral_resource r1 WHERE 0",
			Rows:  [][]string{},
		},
	}
	AssertGolden(t, "snapshot_format", &Result{Pass: true, Trace: trace})
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/join_two_classes.yaml")
	require.NoError(t, err)

	first := runScenario(t, s)
	second := runScenario(t, s)
	assert.Equal(t, Snapshot(s.Name, first.Trace), Snapshot(s.Name, second.Trace))
}
