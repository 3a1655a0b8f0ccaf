package schemaspec

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/schema"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidName      = "E201" // class, attribute or type name is not an identifier
	ErrUnknownParent    = "E202" // parent class is neither declared nor known
	ErrUnknownType      = "E203" // attribute type is neither declared nor known
	ErrInvalidFlag      = "E204" // unknown class or attribute flag
	ErrInheritanceCycle = "E205" // classes inherit from each other
	ErrInvalidHandler   = "E206" // storage handler is not generic or tabular
	ErrInvalidDefault   = "E207" // default does not fit the attribute type
	ErrDuplicateName    = "E208" // attribute declared twice on one class
	ErrInvalidNative    = "E209" // unknown native type of an attribute class
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks spec without touching a graph. known reports whether a
// class or attribute type already exists outside spec; nil means none do
// beyond the builtin attribute types. All errors are returned.
func Validate(spec *Spec, known Known) []ValidationError {
	if known == nil {
		known = builtinsOnly{}
	}
	var errs []ValidationError

	natives := make(map[string]ir.Kind)
	for _, ac := range spec.AttributeClasses {
		field := "attribute_class." + ac.Name
		if !identifier.MatchString(ac.Name) {
			errs = append(errs, ValidationError{Field: field, Code: ErrInvalidName, Line: ac.Pos.Line(),
				Message: fmt.Sprintf("%q is not a valid name", ac.Name)})
		}
		kind, ok := ir.ParseKind(ac.Native)
		if !ok {
			errs = append(errs, ValidationError{Field: field + ".native", Code: ErrInvalidNative, Line: ac.Pos.Line(),
				Message: fmt.Sprintf("unknown native type %q", ac.Native)})
			continue
		}
		natives[ac.Name] = kind
	}

	declared := make(map[string]bool, len(spec.Classes))
	for _, c := range spec.Classes {
		declared[c.Name] = true
	}

	for _, c := range spec.Classes {
		field := "class." + c.Name
		line := c.Pos.Line()
		if !identifier.MatchString(c.Name) {
			errs = append(errs, ValidationError{Field: field, Code: ErrInvalidName, Line: line,
				Message: fmt.Sprintf("%q is not a valid name", c.Name)})
		}
		if _, err := ir.ParseClassFlags(c.Flags); err != nil {
			errs = append(errs, ValidationError{Field: field + ".flags", Code: ErrInvalidFlag, Line: line,
				Message: err.Error()})
		}
		switch c.Handler {
		case "", schema.StorageGeneric, schema.StorageTabular:
		default:
			errs = append(errs, ValidationError{Field: field + ".handler", Code: ErrInvalidHandler, Line: line,
				Message: fmt.Sprintf("unknown storage handler %q", c.Handler)})
		}
		for _, p := range c.Parents {
			if !declared[p] && !known.Class(p) {
				errs = append(errs, ValidationError{Field: field + ".parents", Code: ErrUnknownParent, Line: line,
					Message: fmt.Sprintf("unknown parent class %q", p)})
			}
		}

		seen := make(map[string]bool, len(c.Attributes))
		for _, a := range c.Attributes {
			afield := field + ".attributes." + a.Name
			aline := a.Pos.Line()
			if !identifier.MatchString(a.Name) {
				errs = append(errs, ValidationError{Field: afield, Code: ErrInvalidName, Line: aline,
					Message: fmt.Sprintf("%q is not a valid name", a.Name)})
			}
			if seen[a.Name] {
				errs = append(errs, ValidationError{Field: afield, Code: ErrDuplicateName, Line: aline,
					Message: fmt.Sprintf("duplicate attribute %q", a.Name)})
			}
			seen[a.Name] = true
			if _, err := ir.ParseAttributeFlags(a.Flags); err != nil {
				errs = append(errs, ValidationError{Field: afield + ".flags", Code: ErrInvalidFlag, Line: aline,
					Message: err.Error()})
			}

			kind, ok := natives[a.Type]
			if !ok {
				kind, ok = known.Type(a.Type)
			}
			if !ok {
				errs = append(errs, ValidationError{Field: afield + ".type", Code: ErrUnknownType, Line: aline,
					Message: fmt.Sprintf("unknown attribute type %q", a.Type)})
				continue
			}
			if a.Default != nil {
				if _, err := ir.FromGo(kind, a.Default); err != nil {
					errs = append(errs, ValidationError{Field: afield + ".default", Code: ErrInvalidDefault, Line: aline,
						Message: err.Error()})
				}
			}
		}
	}

	if _, err := Order(spec.Classes); err != nil {
		if ve, ok := err.(ValidationError); ok {
			errs = append(errs, ve)
		}
	}
	return errs
}

// Known answers what exists outside a spec.
type Known interface {
	Class(name string) bool
	Type(name string) (ir.Kind, bool)
}

type builtinsOnly struct{}

func (builtinsOnly) Class(name string) bool { return name == schema.NodeClass }

var builtinRegistry = sync.OnceValue(attrtype.NewRegistry)

func (builtinsOnly) Type(name string) (ir.Kind, bool) {
	ac, err := builtinRegistry().AttributeClass(name)
	if err != nil {
		return ir.KindInvalid, false
	}
	return ac.Kind(), true
}

// GraphKnown answers from a schema graph.
type GraphKnown struct {
	G *schema.Graph
}

func (k GraphKnown) Class(name string) bool {
	_, err := k.G.ResourceClass(name)
	return err == nil
}

func (k GraphKnown) Type(name string) (ir.Kind, bool) {
	ac, err := k.G.Registry().AttributeClass(name)
	if err != nil {
		return ir.KindInvalid, false
	}
	return ac.Kind(), true
}
