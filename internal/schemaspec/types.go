package schemaspec

import "cuelang.org/go/cue/token"

// Spec is the content of a set of schema files.
type Spec struct {
	AttributeClasses []AttributeClassSpec `json:"attribute_classes,omitempty"`
	Classes          []ClassSpec          `json:"classes"`
}

// AttributeClassSpec declares an attribute type.
type AttributeClassSpec struct {
	Name    string    `json:"name"`
	Native  string    `json:"native"`
	Handler string    `json:"handler"`
	Table   string    `json:"table,omitempty"`
	Pos     token.Pos `json:"-"`
}

// ClassSpec declares a resource class.
type ClassSpec struct {
	Name        string          `json:"name"`
	Flags       []string        `json:"flags,omitempty"`
	Handler     string          `json:"handler,omitempty"`
	Table       string          `json:"table,omitempty"`
	Parents     []string        `json:"parents,omitempty"`
	Attributes  []AttributeSpec `json:"attributes,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	Pos         token.Pos       `json:"-"`
}

// AttributeSpec declares an attribute of a class. Default, when set, is a
// string, int64 or bool and becomes the initial value for existing
// instances.
type AttributeSpec struct {
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Flags   []string  `json:"flags,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Default any       `json:"default,omitempty"`
	Pos     token.Pos `json:"-"`
}
