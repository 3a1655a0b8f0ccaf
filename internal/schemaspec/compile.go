package schemaspec

import (
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile extracts the attribute classes and resource classes of v, the
// root value of a schema. It keeps going after a bad declaration and
// returns every error it met.
func Compile(v cue.Value) (*Spec, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	spec := &Spec{}
	var errs []error

	if acs := v.LookupPath(cue.ParsePath("attribute_class")); acs.Exists() {
		iter, err := acs.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				ac, err := CompileAttributeClass(iter.Value())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				spec.AttributeClasses = append(spec.AttributeClasses, *ac)
			}
		}
	}

	if classes := v.LookupPath(cue.ParsePath("class")); classes.Exists() {
		iter, err := classes.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
		} else {
			for iter.Next() {
				c, err := CompileClass(iter.Value())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				spec.Classes = append(spec.Classes, *c)
			}
		}
	}
	return spec, errs
}

// CompileAttributeClass parses one attribute_class entry. The native type
// is required; the handler defaults to the entry's name.
func CompileAttributeClass(v cue.Value) (*AttributeClassSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	ac := &AttributeClassSpec{Name: label(v), Pos: v.Pos()}

	var err error
	if ac.Native, err = requiredString(v, "native"); err != nil {
		return nil, err
	}
	if ac.Handler, err = optionalString(v, "handler"); err != nil {
		return nil, err
	}
	if ac.Handler == "" {
		ac.Handler = ac.Name
	}
	if ac.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	return ac, nil
}

// CompileClass parses one class entry.
func CompileClass(v cue.Value) (*ClassSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	c := &ClassSpec{Name: label(v), Pos: v.Pos()}

	var err error
	if c.Flags, err = stringList(v, "flags"); err != nil {
		return nil, err
	}
	if c.Handler, err = optionalString(v, "handler"); err != nil {
		return nil, err
	}
	if c.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	if c.Parents, err = stringList(v, "parents"); err != nil {
		return nil, err
	}
	if c.Permissions, err = stringList(v, "permissions"); err != nil {
		return nil, err
	}

	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if !attrs.Exists() {
		return c, nil
	}
	iter, err := attrs.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		a, err := compileAttribute(iter.Value())
		if err != nil {
			return nil, err
		}
		c.Attributes = append(c.Attributes, *a)
	}
	return c, nil
}

func compileAttribute(v cue.Value) (*AttributeSpec, error) {
	a := &AttributeSpec{Name: label(v), Pos: v.Pos()}

	// shorthand: title: "string"
	if s, err := v.String(); err == nil {
		a.Type = s
		return a, nil
	}

	var err error
	if a.Type, err = requiredString(v, "type"); err != nil {
		return nil, err
	}
	if a.Flags, err = stringList(v, "flags"); err != nil {
		return nil, err
	}
	if a.Domain, err = optionalString(v, "domain"); err != nil {
		return nil, err
	}
	if d := v.LookupPath(cue.ParsePath("default")); d.Exists() {
		if a.Default, err = scalar(d); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// scalar converts a concrete CUE scalar to string, int64 or bool.
func scalar(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "default",
			Message: "float values are not supported - use int instead",
			Pos:     v.Pos(),
		}
	}
	return nil, &CompileError{
		Field:   "default",
		Message: fmt.Sprintf("unsupported default of kind %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].String()
}

func requiredString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError is a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
