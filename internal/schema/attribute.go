package schema

import (
	"sync/atomic"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
)

// AttributeDefinition is a typed, flagged slot declared by exactly one
// resource class. It is created standalone and gets its declaring class
// and persistent id when attached with Graph.AddAttribute.
type AttributeDefinition struct {
	name   string
	typ    *attrtype.AttributeClass
	domain string
	flags  ir.AttributeFlags

	id        atomic.Int64
	declaring atomic.Int64
}

// NewAttribute creates a detached attribute definition. The domain is
// validated by the type's value handler.
func NewAttribute(name string, typ *attrtype.AttributeClass, domain string, flags ir.AttributeFlags) (*AttributeDefinition, error) {
	if name == "" {
		return nil, errors.Wrap(errors.ErrIllegalArgument, "attribute name is empty")
	}
	if typ == nil {
		return nil, errors.Wrapf(errors.ErrIllegalArgument, "attribute %s has no type", name)
	}
	if err := typ.Handler.ParseDomain(domain); err != nil {
		return nil, errors.Wrapf(err, "attribute %s", name)
	}
	return &AttributeDefinition{name: name, typ: typ, domain: domain, flags: flags}, nil
}

func (a *AttributeDefinition) ID() ir.AttrID                  { return ir.AttrID(a.id.Load()) }
func (a *AttributeDefinition) Name() string                   { return a.name }
func (a *AttributeDefinition) Type() *attrtype.AttributeClass { return a.typ }
func (a *AttributeDefinition) Domain() string                 { return a.domain }
func (a *AttributeDefinition) Flags() ir.AttributeFlags       { return a.flags }
func (a *AttributeDefinition) Handler() attrtype.Handler      { return a.typ.Handler }
func (a *AttributeDefinition) Kind() ir.Kind                  { return a.typ.Kind() }
func (a *AttributeDefinition) DeclaringClassID() ir.ClassID   { return ir.ClassID(a.declaring.Load()) }
func (a *AttributeDefinition) Has(f ir.AttributeFlags) bool   { return a.flags.Has(f) }
func (a *AttributeDefinition) attached() bool                 { return a.declaring.Load() != 0 }
func (a *AttributeDefinition) String() string                 { return a.name }

// Record returns the persisted shape of the definition.
func (a *AttributeDefinition) Record() ir.AttributeRecord {
	return ir.AttributeRecord{
		ID:      a.ID(),
		Name:    a.name,
		TypeID:  a.typ.ID,
		ClassID: a.DeclaringClassID(),
		Domain:  a.domain,
		Flags:   a.flags,
	}
}

// CheckValue verifies that v has the attribute's native kind and lies in
// its domain.
func (a *AttributeDefinition) CheckValue(v ir.Value) error {
	if ir.IsNull(v) {
		return nil
	}
	if !ir.Assignable(a.Kind(), v.Kind()) {
		return errors.Wrapf(errors.ErrIllegalArgument, "attribute %s expects %s, got %s", a.name, a.Kind(), v.Kind())
	}
	return a.typ.Handler.CheckDomain(a.domain, v)
}
