package querysql

import (
	"fmt"
	"strings"

	"github.com/objectledge/coral/internal/schema"
)

// Join is the SQL a JoinStrategy contributes for one column and one
// declaring class.
type Join struct {
	// From is appended to the column's "coral_resource rN" FROM term.
	From string

	// Glue holds predicates ANDed into the WHERE clause.
	Glue []string

	// Values maps each attribute to the SQL expression of its value.
	Values map[*schema.AttributeDefinition]string
}

// JoinStrategy builds the joins that make attribute values visible to a
// query. Strategies are keyed by the storage handler of the class that
// declares the attributes.
type JoinStrategy interface {
	Join(col *ResultColumn, declaring *schema.ResourceClass, attrs []*schema.AttributeDefinition) (Join, error)
}

// GenericJoin joins values stored one row per (resource, attribute) in
// coral_generic_resource, with the value itself in the attribute type's
// table. Outer joins keep resources that lack a value, so DEFINED works.
type GenericJoin struct{}

func (GenericJoin) Join(col *ResultColumn, _ *schema.ResourceClass, attrs []*schema.AttributeDefinition) (Join, error) {
	r := col.sqlAlias()
	var b strings.Builder
	values := make(map[*schema.AttributeDefinition]string, len(attrs))
	for _, a := range attrs {
		k, _ := col.Ordinal(a)
		g := fmt.Sprintf("g%d_%d", col.Position, k)
		v := fmt.Sprintf("v%d_%d", col.Position, k)
		fmt.Fprintf(&b, " LEFT JOIN coral_generic_resource %s ON %s.resource_id = %s.resource_id AND %s.attribute_definition_id = %d",
			g, g, r, g, a.ID())
		fmt.Fprintf(&b, " LEFT JOIN %s %s ON %s.data_key = %s.data_key", a.Type().DBTable, v, v, g)
		values[a] = v + "." + a.Handler().ValueColumn()
	}
	return Join{From: b.String(), Values: values}, nil
}

// TabularJoin reads values from the declaring class's dedicated table, one
// row per resource and one column per attribute.
type TabularJoin struct{}

func (TabularJoin) Join(col *ResultColumn, declaring *schema.ResourceClass, attrs []*schema.AttributeDefinition) (Join, error) {
	table := declaring.Table()
	if table == "" {
		return Join{}, fmt.Errorf("class %s has no table", declaring.Name())
	}
	t := fmt.Sprintf("t%d_%d", col.Position, declaring.ID())
	values := make(map[*schema.AttributeDefinition]string, len(attrs))
	for _, a := range attrs {
		values[a] = t + "." + a.Name()
	}
	return Join{
		From:   fmt.Sprintf(", %s %s", table, t),
		Glue:   []string{fmt.Sprintf("%s.resource_id = %s.resource_id", t, col.sqlAlias())},
		Values: values,
	}, nil
}

func defaultStrategies() map[string]JoinStrategy {
	return map[string]JoinStrategy{
		schema.StorageGeneric: GenericJoin{},
		schema.StorageTabular: TabularJoin{},
	}
}
