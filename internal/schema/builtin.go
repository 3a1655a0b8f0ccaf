package schema

import (
	"fmt"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/ir"
)

// NodeClass is the name of the built-in universal class every resource
// is an instance of.
const NodeClass = "node"

// NodeID is the reserved id of the node class. Backends seed it.
const NodeID ir.ClassID = 1

// BuiltinAttribute describes a fixed column of every resource.
type BuiltinAttribute struct {
	Name   string
	Type   string // attribute class name
	Column string // column of coral_resource
}

// BuiltinAttributes are declared by the node class. They are never stored
// through the generic attribute machinery.
var BuiltinAttributes = []BuiltinAttribute{
	{Name: "id", Type: "resource", Column: "resource_id"},
	{Name: "name", Type: "string", Column: "name"},
	{Name: "parent", Type: "resource", Column: "parent"},
	{Name: "owner", Type: "resource", Column: "owned_by"},
	{Name: "created_by", Type: "resource", Column: "created_by"},
	{Name: "creation_time", Type: "date", Column: "creation_time"},
	{Name: "modified_by", Type: "resource", Column: "modified_by"},
	{Name: "modification_time", Type: "date", Column: "modification_time"},
}

var builtinByName = func() map[string]BuiltinAttribute {
	m := make(map[string]BuiltinAttribute, len(BuiltinAttributes))
	for _, b := range BuiltinAttributes {
		m[b.Name] = b
	}
	return m
}()

func isBuiltinName(name string) bool {
	_, ok := builtinByName[name]
	return ok
}

// BuiltinColumn returns the coral_resource column of a builtin attribute.
func BuiltinColumn(name string) (string, bool) {
	b, ok := builtinByName[name]
	return b.Column, ok
}

// installNode creates the node class and its builtin attributes. Builtin
// attributes get negative ids since they have no persistent row.
func (g *Graph) installNode() {
	node := &ResourceClass{id: NodeID, g: g}
	node.info.Store(&classInfo{
		name:       NodeClass,
		nativeType: NativeResource,
		handler:    StorageGeneric,
		flags:      ir.ClassBuiltin | ir.ClassAbstract,
	})

	for i, b := range BuiltinAttributes {
		typ := g.builtinType(b.Type)
		a := &AttributeDefinition{name: b.Name, typ: typ, flags: ir.AttrBuiltin | ir.AttrReadOnly}
		a.id.Store(int64(-(i + 1)))
		a.declaring.Store(int64(NodeID))
		typ.MarkReferenced()
		g.declared[NodeID] = append(g.declared[NodeID], a)
	}

	g.classes[NodeID] = node
	g.byName[NodeClass] = node
	g.node = node
}

func (g *Graph) builtinType(name string) *attrtype.AttributeClass {
	if ac, err := g.registry.AttributeClass(name); err == nil {
		return ac
	}
	ac, err := g.registry.CreateAttributeClass(name, builtinNative[name], name, "")
	if err != nil {
		panic(fmt.Sprintf("schema: builtin attribute type %s: %v", name, err))
	}
	return ac
}

var builtinNative = map[string]string{
	"resource": "resource",
	"string":   "string",
	"date":     "time",
}
