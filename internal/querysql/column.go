package querysql

import (
	"strconv"

	"github.com/objectledge/coral/internal/schema"
)

// ResultColumn is one FROM clause term of a compiled query.
type ResultColumn struct {
	// Class is the bound resource class, nil for the implicit "any
	// resource" column of a query without FROM.
	Class *schema.ResourceClass

	// Alias is the AS name, "" when none was given.
	Alias string

	// Position is the 1-based position in the FROM list and in the SQL
	// select list.
	Position int

	attrs   []*schema.AttributeDefinition
	ordinal map[*schema.AttributeDefinition]int
}

func newColumn(class *schema.ResourceClass, alias string, pos int) *ResultColumn {
	return &ResultColumn{
		Class:    class,
		Alias:    alias,
		Position: pos,
		ordinal:  make(map[*schema.AttributeDefinition]int),
	}
}

// Name returns the alias, the class name for unaliased columns, or "" for
// the implicit column.
func (c *ResultColumn) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	if c.Class != nil {
		return c.Class.Name()
	}
	return ""
}

// Attributes returns the attributes the WHERE and ORDER BY clauses reference
// through this column, in order of first reference.
func (c *ResultColumn) Attributes() []*schema.AttributeDefinition {
	return append([]*schema.AttributeDefinition(nil), c.attrs...)
}

// Ordinal returns the 1-based column-local ordinal of a referenced attribute.
func (c *ResultColumn) Ordinal(a *schema.AttributeDefinition) (int, bool) {
	n, ok := c.ordinal[a]
	return n, ok
}

func (c *ResultColumn) add(a *schema.AttributeDefinition) int {
	if n, ok := c.ordinal[a]; ok {
		return n
	}
	c.attrs = append(c.attrs, a)
	c.ordinal[a] = len(c.attrs)
	return len(c.attrs)
}

// sqlAlias is the alias of the column's coral_resource row.
func (c *ResultColumn) sqlAlias() string {
	return "r" + strconv.Itoa(c.Position)
}

func (c *ResultColumn) String() string {
	if n := c.Name(); n != "" {
		return n
	}
	return "#" + strconv.Itoa(c.Position)
}
