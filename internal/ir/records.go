package ir

// NOTE: These are the persisted record shapes of the schema. They mirror the
// relational layout one row per entity and carry ids only, never pointers.

// AttributeClassRecord is one row of coral_attribute_class.
type AttributeClassRecord struct {
	ID         AttrClassID `json:"id"`
	Name       string      `json:"name"`
	NativeType string      `json:"native_type"`
	Handler    string      `json:"handler"`
	DBTable    string      `json:"db_table"`
}

// ResourceClassRecord is one row of coral_resource_class.
type ResourceClassRecord struct {
	ID         ClassID    `json:"id"`
	Name       string     `json:"name"`
	NativeType string     `json:"native_type"`
	Handler    string     `json:"handler"`
	DBTable    string     `json:"db_table,omitempty"`
	Flags      ClassFlags `json:"flags"`
}

// AttributeRecord is one row of coral_attribute_definition.
type AttributeRecord struct {
	ID      AttrID         `json:"id"`
	Name    string         `json:"name"`
	TypeID  AttrClassID    `json:"attribute_class_id"`
	ClassID ClassID        `json:"resource_class_id"`
	Domain  string         `json:"domain,omitempty"`
	Flags   AttributeFlags `json:"flags"`
}

// InheritanceRecord is one row of coral_resource_class_inheritance.
type InheritanceRecord struct {
	Parent ClassID `json:"parent"`
	Child  ClassID `json:"child"`
}

// PermissionRecord associates a permission name with a resource class.
type PermissionRecord struct {
	ClassID    ClassID `json:"resource_class_id"`
	Permission string  `json:"permission"`
}

// SchemaSnapshot is the complete persisted schema as read from a backend.
type SchemaSnapshot struct {
	AttributeClasses []AttributeClassRecord
	ResourceClasses  []ResourceClassRecord
	Attributes       []AttributeRecord
	Inheritance      []InheritanceRecord
	Permissions      []PermissionRecord
}
