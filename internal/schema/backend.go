package schema

import (
	"context"

	"github.com/objectledge/coral/internal/ir"
)

// Backend persists the schema. Every graph mutation runs in one Tx.
type Backend interface {
	Begin(ctx context.Context) (Tx, error)
	LoadSchema(ctx context.Context) (*ir.SchemaSnapshot, error)
}

// Tx is one backend transaction. Methods that create rows return the
// assigned id; attribute class ids are assigned by the registry instead.
// Rollback after a failed step must be safe to call.
type Tx interface {
	CreateAttributeClass(ctx context.Context, rec ir.AttributeClassRecord) error
	CreateResourceClass(ctx context.Context, rec ir.ResourceClassRecord) (ir.ClassID, error)
	UpdateResourceClass(ctx context.Context, rec ir.ResourceClassRecord) error
	DeleteResourceClass(ctx context.Context, rec ir.ResourceClassRecord) error

	// AddAttribute persists the definition and initializes its value on
	// existing instances of ch.Classes. It fails with ValueRequiredError
	// when the attribute is REQUIRED, instances exist and ch.Initial is nil.
	AddAttribute(ctx context.Context, ch AttributeChange) (ir.AttrID, error)

	// DeleteAttribute removes the definition and its values.
	DeleteAttribute(ctx context.Context, ch AttributeChange) error

	// AddInheritance persists the edge and initializes every attribute in
	// ch.Gained on the instances of the classes that now see it.
	AddInheritance(ctx context.Context, ch InheritanceChange) error

	// DeleteInheritance removes the edge and the values of every attribute
	// in ch.Lost on the classes that no longer see it.
	DeleteInheritance(ctx context.Context, ch InheritanceChange) error

	AddPermission(ctx context.Context, rec ir.PermissionRecord) error

	Commit() error
	Rollback() error
}

// AttributeChange describes an attribute becoming visible to, or hidden
// from, a set of classes.
type AttributeChange struct {
	Attribute ir.AttributeRecord
	Type      ir.AttributeClassRecord
	Declaring ir.ResourceClassRecord

	// SQLType and ValueColumn come from the attribute type's handler.
	SQLType     string
	ValueColumn string

	// Classes whose instances gain or lose the attribute.
	Classes []ir.ClassID

	// Initial is the value for existing instances, or nil.
	Initial ir.Value
}

// InheritanceChange describes an added or removed inheritance edge.
type InheritanceChange struct {
	Edge ir.InheritanceRecord

	// Gained lists attributes that become visible through the new edge,
	// each with the classes that gain it.
	Gained []AttributeChange

	// Lost lists attributes that stop being visible when the edge goes.
	Lost []AttributeChange
}
