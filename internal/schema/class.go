package schema

import (
	"sync"
	"sync/atomic"

	"github.com/objectledge/coral/internal/ir"
)

// Storage handlers a resource class may use for its attribute values.
const (
	// StorageGeneric keeps values in coral_generic_resource plus one value
	// table per attribute type.
	StorageGeneric = "generic"

	// StorageTabular keeps values in a dedicated table of the declaring
	// class, one column per attribute.
	StorageTabular = "tabular"
)

// NativeResource is the default native type of resource classes.
const NativeResource = "resource"

// classInfo is the descriptive part of a class. It is replaced as a whole
// on rename or flag changes.
type classInfo struct {
	name       string
	nativeType string
	handler    string
	table      string
	flags      ir.ClassFlags
}

// ResourceClass is a node of the inheritance graph. Its derived properties
// (transitive parents and children, the attribute map, the index table and
// effective permissions) are computed on demand from the graph's edge table
// and memoized until a committed mutation bumps the class's generation.
type ResourceClass struct {
	id ir.ClassID
	g  *Graph

	info atomic.Pointer[classInfo]

	gen    atomic.Uint64
	viewMu sync.Mutex
	cur    atomic.Pointer[classView]
}

// classView is an immutable snapshot of a class's derived properties.
type classView struct {
	gen uint64

	directParents  []*ResourceClass
	directChildren []*ResourceClass
	ancestors      []*ResourceClass
	descendants    []*ResourceClass
	ancestorIDs    map[ir.ClassID]bool
	descendantIDs  map[ir.ClassID]bool

	declared []*AttributeDefinition
	attrs    []*AttributeDefinition
	byName   map[string]*AttributeDefinition
	index    *AttributeIndexTable

	permissions []string
}

func (c *ResourceClass) ID() ir.ClassID       { return c.id }
func (c *ResourceClass) Name() string         { return c.info.Load().name }
func (c *ResourceClass) NativeType() string   { return c.info.Load().nativeType }
func (c *ResourceClass) Handler() string      { return c.info.Load().handler }
func (c *ResourceClass) Table() string        { return c.info.Load().table }
func (c *ResourceClass) Flags() ir.ClassFlags { return c.info.Load().flags }
func (c *ResourceClass) String() string       { return c.Name() }

// Record returns the persisted shape of the class.
func (c *ResourceClass) Record() ir.ResourceClassRecord {
	return c.info.Load().record(c.id)
}

func (i *classInfo) record(id ir.ClassID) ir.ResourceClassRecord {
	return ir.ResourceClassRecord{
		ID:         id,
		Name:       i.name,
		NativeType: i.nativeType,
		Handler:    i.handler,
		DBTable:    i.table,
		Flags:      i.flags,
	}
}

// Generation returns the class's current generation. It increases with
// every committed mutation that affects the class's derived properties.
func (c *ResourceClass) Generation() uint64 {
	return c.gen.Load()
}

// view returns the derived snapshot for the current generation, building
// it if needed. It must not be called while holding the graph lock.
func (c *ResourceClass) view() *classView {
	if v := c.cur.Load(); v != nil && v.gen == c.gen.Load() {
		return v
	}

	c.viewMu.Lock()
	defer c.viewMu.Unlock()

	c.g.mu.RLock()
	defer c.g.mu.RUnlock()

	gen := c.gen.Load()
	prev := c.cur.Load()
	if prev != nil && prev.gen == gen {
		return prev
	}
	v := c.g.buildView(c, gen, prev)
	c.cur.Store(v)
	return v
}

// DeclaredAttributes returns the attributes declared by the class itself.
func (c *ResourceClass) DeclaredAttributes() []*AttributeDefinition {
	return append([]*AttributeDefinition(nil), c.view().declared...)
}

// AllAttributes returns the declared and inherited attributes, declared
// first, then by ancestor in depth-first order.
func (c *ResourceClass) AllAttributes() []*AttributeDefinition {
	return append([]*AttributeDefinition(nil), c.view().attrs...)
}

// Attribute resolves name over the declared and inherited attributes.
func (c *ResourceClass) Attribute(name string) (*AttributeDefinition, error) {
	if a, ok := c.view().byName[name]; ok {
		return a, nil
	}
	return nil, &UnknownAttributeError{Class: c.Name(), Attribute: name}
}

// HasAttribute reports whether an attribute named name is visible.
func (c *ResourceClass) HasAttribute(name string) bool {
	_, ok := c.view().byName[name]
	return ok
}

// HasDefinition reports whether the exact definition a is visible.
func (c *ResourceClass) HasDefinition(a *AttributeDefinition) bool {
	return c.view().byName[a.Name()] == a
}

// IndexTable returns the attribute index table of the current snapshot.
func (c *ResourceClass) IndexTable() *AttributeIndexTable {
	return c.view().index
}

// DirectParents returns the classes this class directly inherits from.
func (c *ResourceClass) DirectParents() []*ResourceClass {
	return append([]*ResourceClass(nil), c.view().directParents...)
}

// DirectChildren returns the classes directly inheriting from this class.
func (c *ResourceClass) DirectChildren() []*ResourceClass {
	return append([]*ResourceClass(nil), c.view().directChildren...)
}

// ParentClasses returns all transitive ancestors.
func (c *ResourceClass) ParentClasses() []*ResourceClass {
	return append([]*ResourceClass(nil), c.view().ancestors...)
}

// ChildClasses returns all transitive descendants.
func (c *ResourceClass) ChildClasses() []*ResourceClass {
	return append([]*ResourceClass(nil), c.view().descendants...)
}

// IsParent reports whether c is a transitive ancestor of other.
func (c *ResourceClass) IsParent(other *ResourceClass) bool {
	return c.view().descendantIDs[other.id]
}

// IsA reports whether c is other or one of its descendants.
func (c *ResourceClass) IsA(other *ResourceClass) bool {
	return c == other || c.view().ancestorIDs[other.id]
}

// Inheritance returns the direct edges touching the class, parents first.
func (c *ResourceClass) Inheritance() []Inheritance {
	v := c.view()
	out := make([]Inheritance, 0, len(v.directParents)+len(v.directChildren))
	for _, p := range v.directParents {
		out = append(out, Inheritance{Parent: p.id, Child: c.id})
	}
	for _, ch := range v.directChildren {
		out = append(out, Inheritance{Parent: c.id, Child: ch.id})
	}
	return out
}

// EffectivePermissions returns the union of the permissions associated
// with the class and every ancestor, sorted.
func (c *ResourceClass) EffectivePermissions() []string {
	return append([]string(nil), c.view().permissions...)
}

// Inheritance is a directed parent/child edge. Two edges are equal when
// their ends are.
type Inheritance struct {
	Parent ir.ClassID
	Child  ir.ClassID
}

// Record returns the persisted shape of the edge.
func (e Inheritance) Record() ir.InheritanceRecord {
	return ir.InheritanceRecord{Parent: e.Parent, Child: e.Child}
}
