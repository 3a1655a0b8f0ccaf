package schemaspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderNames(t *testing.T, classes []ClassSpec) []string {
	t.Helper()
	ordered, err := Order(classes)
	require.NoError(t, err)
	names := make([]string, len(ordered))
	for i, c := range ordered {
		names[i] = c.Name
	}
	return names
}

func TestOrderParentsFirst(t *testing.T) {
	classes := []ClassSpec{
		{Name: "article", Parents: []string{"document", "tagged"}},
		{Name: "document"},
		{Name: "tagged", Parents: []string{"node"}},
		{Name: "shelf"},
	}
	assert.Equal(t, []string{"document", "tagged", "article", "shelf"}, orderNames(t, classes))
}

func TestOrderKeepsDeclarationOrder(t *testing.T) {
	classes := []ClassSpec{{Name: "c"}, {Name: "a"}, {Name: "b"}}
	assert.Equal(t, []string{"c", "a", "b"}, orderNames(t, classes))
}

func TestOrderDiamond(t *testing.T) {
	classes := []ClassSpec{
		{Name: "d", Parents: []string{"b", "c"}},
		{Name: "b", Parents: []string{"a"}},
		{Name: "c", Parents: []string{"a"}},
		{Name: "a"},
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, orderNames(t, classes))
}

func TestOrderCycle(t *testing.T) {
	classes := []ClassSpec{
		{Name: "x"},
		{Name: "third", Parents: []string{"first"}},
		{Name: "first", Parents: []string{"third"}},
	}
	_, err := Order(classes)
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrInheritanceCycle, ve.Code)
	assert.Equal(t, "class.first.parents", ve.Field)
	assert.Contains(t, ve.Message, "third -> first -> third")
}

func TestOrderSelfParent(t *testing.T) {
	_, err := Order([]ClassSpec{{Name: "a", Parents: []string{"a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a -> a")
}
