package schemaspec

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
	"github.com/objectledge/coral/internal/schema"
)

// ApplyResult counts what Apply created. Entities that already existed
// are skipped and not counted.
type ApplyResult struct {
	AttributeClasses int `json:"attribute_classes"`
	Classes          int `json:"classes"`
	Parents          int `json:"parents"`
	Attributes       int `json:"attributes"`
	Permissions      int `json:"permissions"`
}

// Apply creates the attribute classes, classes, inheritance edges,
// attributes and permissions of spec that g does not have yet. Classes
// are created parents first. Apply stops at the first graph error; what
// was applied before it stays applied.
func Apply(ctx context.Context, g *schema.Graph, spec *Spec, log *zap.SugaredLogger) (*ApplyResult, error) {
	log = logger.Or(log)
	if errs := Validate(spec, GraphKnown{G: g}); len(errs) > 0 {
		return nil, errs[0]
	}
	ordered, err := Order(spec.Classes)
	if err != nil {
		return nil, err
	}
	res := &ApplyResult{}

	for _, ac := range spec.AttributeClasses {
		if _, err := g.Registry().AttributeClass(ac.Name); err == nil {
			continue
		}
		if _, err := g.CreateAttributeClass(ctx, ac.Name, ac.Native, ac.Handler, ac.Table); err != nil {
			return res, errors.Wrapf(err, "attribute class %s", ac.Name)
		}
		res.AttributeClasses++
	}

	for _, cs := range ordered {
		class, err := g.ResourceClass(cs.Name)
		if errors.IsEntityDoesNotExist(err) {
			flags, _ := ir.ParseClassFlags(cs.Flags)
			class, err = g.CreateResourceClass(ctx, cs.Name, "", cs.Handler, cs.Table, flags)
			if err != nil {
				return res, errors.Wrapf(err, "class %s", cs.Name)
			}
			res.Classes++
		} else if err != nil {
			return res, err
		}
		if err := applyClass(ctx, g, class, cs, res); err != nil {
			return res, errors.Wrapf(err, "class %s", cs.Name)
		}
		log.Debugw("class applied", "class", cs.Name)
	}

	return res, nil
}

func applyClass(ctx context.Context, g *schema.Graph, class *schema.ResourceClass, cs ClassSpec, res *ApplyResult) error {
	for _, p := range cs.Parents {
		parent, err := g.ResourceClass(p)
		if err != nil {
			return err
		}
		if hasDirectParent(class, parent) {
			continue
		}
		if err := g.AddParentClass(ctx, class, parent, nil); err != nil {
			return err
		}
		res.Parents++
	}

	for _, as := range cs.Attributes {
		if existing, err := class.Attribute(as.Name); err == nil && existing.DeclaringClassID() == class.ID() {
			continue
		}
		typ, err := g.Registry().AttributeClass(as.Type)
		if err != nil {
			return err
		}
		flags, _ := ir.ParseAttributeFlags(as.Flags)
		a, err := schema.NewAttribute(as.Name, typ, as.Domain, flags)
		if err != nil {
			return err
		}
		var initial ir.Value
		if as.Default != nil {
			if initial, err = ir.FromGo(typ.Kind(), as.Default); err != nil {
				return fmt.Errorf("default of %s: %w", as.Name, err)
			}
		}
		if err := g.AddAttribute(ctx, class, a, initial); err != nil {
			return err
		}
		res.Attributes++
	}

	have := make(map[string]bool)
	for _, p := range class.EffectivePermissions() {
		have[p] = true
	}
	for _, p := range cs.Permissions {
		if have[p] {
			continue
		}
		if err := g.AddPermission(ctx, class, p); err != nil {
			return err
		}
		res.Permissions++
	}
	if want, _ := ir.ParseClassFlags(cs.Flags); class.Flags() != want {
		if err := g.SetClassFlags(ctx, class, want); err != nil {
			return err
		}
	}
	return nil
}

func hasDirectParent(class, parent *schema.ResourceClass) bool {
	for _, p := range class.DirectParents() {
		if p == parent {
			return true
		}
	}
	return false
}
