package schema

import "github.com/objectledge/coral/internal/ir"

// AttributeIndexTable assigns stable dense indices to the non-builtin
// attributes of a resource class. Instances are immutable: Extend returns
// a new table and never renumbers existing entries, so readers holding an
// older table keep valid indices.
type AttributeIndexTable struct {
	index map[*AttributeDefinition]int
	attrs []*AttributeDefinition
}

// NewAttributeIndexTable numbers attrs in order, skipping builtins.
func NewAttributeIndexTable(attrs ...*AttributeDefinition) *AttributeIndexTable {
	return (&AttributeIndexTable{}).Extend(attrs...)
}

// Index returns the index of a, or false when a is builtin or not mapped.
func (t *AttributeIndexTable) Index(a *AttributeDefinition) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[a]
	return i, ok
}

// Len returns the number of mapped attributes.
func (t *AttributeIndexTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.attrs)
}

// Attributes returns the mapped attributes in index order.
func (t *AttributeIndexTable) Attributes() []*AttributeDefinition {
	if t == nil {
		return nil
	}
	return append([]*AttributeDefinition(nil), t.attrs...)
}

// Extend returns a table that additionally maps every attribute in attrs
// not already present. It returns t itself when nothing is added.
func (t *AttributeIndexTable) Extend(attrs ...*AttributeDefinition) *AttributeIndexTable {
	var fresh []*AttributeDefinition
	seen := make(map[*AttributeDefinition]bool)
	for _, a := range attrs {
		if a == nil || a.Has(ir.AttrBuiltin) || seen[a] {
			continue
		}
		if _, ok := t.Index(a); ok {
			continue
		}
		seen[a] = true
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 && t != nil && t.index != nil {
		return t
	}

	next := &AttributeIndexTable{
		index: make(map[*AttributeDefinition]int, t.Len()+len(fresh)),
		attrs: make([]*AttributeDefinition, 0, t.Len()+len(fresh)),
	}
	if t != nil {
		for a, i := range t.index {
			next.index[a] = i
		}
		next.attrs = append(next.attrs, t.attrs...)
	}
	for _, a := range fresh {
		next.index[a] = len(next.attrs)
		next.attrs = append(next.attrs, a)
	}
	return next
}
