package schema

import (
	"context"
	"sort"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/event"
	"github.com/objectledge/coral/internal/ir"
)

// undoStack holds compensations for in-process changes staged before a
// backend commit. They run in reverse order.
type undoStack []func()

func (u *undoStack) push(f func()) { *u = append(*u, f) }

func (u *undoStack) run() {
	for i := len(*u) - 1; i >= 0; i-- {
		(*u)[i]()
	}
	*u = nil
}

// persist runs write in a backend transaction and commits it. On failure
// the staged changes are undone, the transaction is rolled back and the
// original error is returned; a failing rollback is only logged.
// Requires g.mu held for writing.
func (g *Graph) persist(ctx context.Context, op string, undo *undoStack, write func(Tx) error) error {
	tx, err := g.backend.Begin(ctx)
	if err != nil {
		undo.run()
		return errors.NewBackendError(op, err)
	}
	if err := write(tx); err != nil {
		g.rollback(op, tx, undo)
		return backendError(op, err)
	}
	if err := tx.Commit(); err != nil {
		g.rollback(op, tx, undo)
		return errors.NewBackendError(op+": commit", err)
	}
	return nil
}

func (g *Graph) rollback(op string, tx Tx, undo *undoStack) {
	undo.run()
	if err := tx.Rollback(); err != nil {
		g.log.Errorw("schema rollback failed", "op", op, "error", err)
	}
}

// backendError keeps typed errors raised by the store and wraps anything
// else as a BackendError.
func backendError(op string, err error) error {
	switch {
	case errors.IsValueRequired(err), errors.IsBackendError(err), errors.IsEntityDoesNotExist(err),
		errors.IsNameExists(err), IsIllegalState(err):
		return errors.Wrap(err, op)
	}
	return errors.NewBackendError(op, err)
}

// member fails unless c is a live class of g. Requires g.mu.
func (g *Graph) member(c *ResourceClass) error {
	if c == nil || g.classes[c.id] != c {
		if c == nil {
			return &errors.EntityDoesNotExistError{Kind: "resource class", Key: "<nil>"}
		}
		return unknownClass(c.id)
	}
	return nil
}

// CreateAttributeClass registers and persists a new attribute type.
// Fails with NameExists or InvalidType.
func (g *Graph) CreateAttributeClass(ctx context.Context, name, nativeType, handlerRef, table string) (*attrtype.AttributeClass, error) {
	const op = "create attribute class"
	ac, err := g.registry.NewAttributeClass(name, nativeType, handlerRef, table)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.registry.Register(ac); err != nil {
		return nil, err
	}
	var undo undoStack
	undo.push(func() { _ = g.registry.Unregister(ac) })
	err = g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.CreateAttributeClass(ctx, ac.Record())
	})
	if err != nil {
		return nil, err
	}
	g.log.Debugw("attribute class created", "name", name, "id", int64(ac.ID))
	return ac, nil
}

// CreateResourceClass creates and persists a class. An empty nativeType
// means NativeResource, an empty handler means StorageGeneric; tabular
// classes default their table to the class name.
func (g *Graph) CreateResourceClass(ctx context.Context, name, nativeType, handler, table string, flags ir.ClassFlags) (*ResourceClass, error) {
	const op = "create resource class"
	if name == "" {
		return nil, errors.Wrap(errors.ErrIllegalArgument, "resource class name is empty")
	}
	if flags.Has(ir.ClassBuiltin) {
		return nil, illegalState(op, "%s: the BUILTIN flag is reserved", name)
	}
	if nativeType == "" {
		nativeType = NativeResource
	}
	if nativeType != NativeResource {
		return nil, &errors.InvalidTypeError{Ref: nativeType, Reason: "unknown resource class native type"}
	}
	switch handler {
	case "":
		handler = StorageGeneric
	case StorageGeneric:
	case StorageTabular:
		if table == "" {
			table = name
		}
	default:
		return nil, &errors.InvalidTypeError{Ref: handler, Reason: "unknown resource class handler"}
	}
	info := &classInfo{name: name, nativeType: nativeType, handler: handler, table: table, flags: flags}

	g.mu.Lock()
	if _, taken := g.byName[name]; taken {
		g.mu.Unlock()
		return nil, &errors.NameExistsError{Kind: "resource class", Name: name}
	}
	var id ir.ClassID
	var undo undoStack
	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		var err error
		id, err = tx.CreateResourceClass(ctx, info.record(0))
		return err
	})
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	c := &ResourceClass{id: id, g: g}
	c.info.Store(info)
	g.classes[id] = c
	g.byName[name] = c
	g.mu.Unlock()

	g.log.Debugw("resource class created", "name", name, "id", int64(id), "handler", handler)
	g.publish(ctx, event.ClassCreated, name, []ir.ClassID{id})
	return c, nil
}

// AddAttribute declares a on class. initial, when non-nil, is assigned to
// every existing instance of class and its descendants.
//
// Fails with SchemaIntegrityError when the name is already visible from
// class or any descendant, IllegalState when a is already attached, and
// ValueRequired when a is REQUIRED, instances exist and initial is nil.
func (g *Graph) AddAttribute(ctx context.Context, class *ResourceClass, a *AttributeDefinition, initial ir.Value) error {
	const op = "add attribute"
	if !ir.IsNull(initial) {
		if err := a.CheckValue(initial); err != nil {
			return errors.Wrapf(err, "%s %s: initial value", op, a.Name())
		}
	}

	g.mu.Lock()
	if err := g.member(class); err != nil {
		g.mu.Unlock()
		return err
	}
	if a.attached() {
		g.mu.Unlock()
		return illegalState(op, "%s is already declared by %s", a.Name(), g.className(a.DeclaringClassID()))
	}
	if class.Flags().Has(ir.ClassBuiltin) {
		g.mu.Unlock()
		return illegalState(op, "builtin class %s cannot be extended", class.Name())
	}
	if err := checkAddAttribute(g, class.id, a).Err(); err != nil {
		g.mu.Unlock()
		return err
	}

	var undo undoStack
	prev := g.declared[class.id]
	g.declared[class.id] = append(append([]*AttributeDefinition(nil), prev...), a)
	a.declaring.Store(int64(class.id))
	undo.push(func() {
		g.declared[class.id] = prev
		a.declaring.Store(0)
		a.id.Store(0)
	})

	affected := subtree(g, class.id)
	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		ch := g.attributeChange(a, affected, initial)
		id, err := tx.AddAttribute(ctx, ch)
		if err != nil {
			return err
		}
		a.id.Store(int64(id))
		return nil
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	a.typ.MarkReferenced()
	g.bump(affected...)
	g.mu.Unlock()

	g.log.Debugw("attribute added", "class", class.Name(), "attribute", a.Name(), "id", int64(a.ID()))
	g.publish(ctx, event.AttributeAdded, a.Name(), affected)
	return nil
}

// DeleteAttribute detaches a from its declaring class and drops its values.
func (g *Graph) DeleteAttribute(ctx context.Context, class *ResourceClass, a *AttributeDefinition) error {
	const op = "delete attribute"
	g.mu.Lock()
	if err := g.member(class); err != nil {
		g.mu.Unlock()
		return err
	}
	if a.DeclaringClassID() != class.id {
		g.mu.Unlock()
		return illegalState(op, "%s is not declared by %s", a.Name(), class.Name())
	}
	if a.Has(ir.AttrBuiltin) {
		g.mu.Unlock()
		return illegalState(op, "builtin attribute %s cannot be deleted", a.Name())
	}

	affected := subtree(g, class.id)
	ch := g.attributeChange(a, affected, nil)

	var undo undoStack
	prev := g.declared[class.id]
	g.declared[class.id] = removeAttr(prev, a)
	undo.push(func() { g.declared[class.id] = prev })

	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.DeleteAttribute(ctx, ch)
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	a.declaring.Store(0)
	a.id.Store(0)
	g.bump(affected...)
	g.mu.Unlock()

	g.log.Debugw("attribute deleted", "class", class.Name(), "attribute", a.Name())
	g.publish(ctx, event.AttributeDeleted, a.Name(), affected)
	return nil
}

func removeAttr(attrs []*AttributeDefinition, a *AttributeDefinition) []*AttributeDefinition {
	out := make([]*AttributeDefinition, 0, len(attrs))
	for _, x := range attrs {
		if x != a {
			out = append(out, x)
		}
	}
	return out
}

// attributeChange describes a to the backend. Requires g.mu.
func (g *Graph) attributeChange(a *AttributeDefinition, classes []ir.ClassID, initial ir.Value) AttributeChange {
	ch := AttributeChange{
		Attribute:   a.Record(),
		Type:        a.typ.Record(),
		SQLType:     a.Handler().SQLType(),
		ValueColumn: a.Handler().ValueColumn(),
		Classes:     classes,
	}
	if decl, ok := g.classes[a.DeclaringClassID()]; ok {
		ch.Declaring = decl.Record()
	}
	if !ir.IsNull(initial) {
		ch.Initial = initial
	}
	return ch
}

// attributeChanges converts an attribute delta to backend changes, ordered
// by attribute id.
func (g *Graph) attributeChanges(delta map[*AttributeDefinition][]ir.ClassID, initial map[string]ir.Value) []AttributeChange {
	attrs := make([]*AttributeDefinition, 0, len(delta))
	for a := range delta {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].ID() < attrs[j].ID() })
	out := make([]AttributeChange, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, g.attributeChange(a, delta[a], initial[a.Name()]))
	}
	return out
}

// AddParentClass makes parent a direct parent of child. initial supplies
// values, by attribute name, for attributes child's instances inherit
// through the new edge.
//
// Fails with CircularDependency when child is parent or already one of its
// ancestors, IllegalState when parent is FINAL or the edge exists, and
// SchemaIntegrityError when the merged attribute sets clash anywhere in
// child's subtree.
func (g *Graph) AddParentClass(ctx context.Context, child, parent *ResourceClass, initial map[string]ir.Value) error {
	const op = "add parent class"
	for name, v := range initial {
		a, err := parent.Attribute(name)
		if err != nil {
			return err
		}
		if err := a.CheckValue(v); err != nil {
			return errors.Wrapf(err, "%s: initial value of %s", op, name)
		}
	}

	g.mu.Lock()
	if err := g.member(child); err != nil {
		g.mu.Unlock()
		return err
	}
	if err := g.member(parent); err != nil {
		g.mu.Unlock()
		return err
	}
	if err := g.checkAddParent(child, parent); err != nil {
		g.mu.Unlock()
		return err
	}

	edge := Inheritance{Parent: parent.id, Child: child.id}
	after := withEdge{tables: g, parent: parent.id, child: child.id}
	gained := g.attributeChanges(attributeDelta(g, after, child.id), initial)

	var undo undoStack
	prevParents, prevChildren := g.parents[child.id], g.children[parent.id]
	g.parents[child.id] = append(append([]ir.ClassID(nil), prevParents...), parent.id)
	g.children[parent.id] = append(append([]ir.ClassID(nil), prevChildren...), child.id)
	undo.push(func() {
		g.parents[child.id] = prevParents
		g.children[parent.id] = prevChildren
	})

	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.AddInheritance(ctx, InheritanceChange{Edge: edge.Record(), Gained: gained})
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	below := subtree(g, child.id)
	above := append([]ir.ClassID{parent.id}, ancestorsOf(g, parent.id)...)
	g.bump(below...)
	g.bump(above...)
	g.mu.Unlock()

	g.log.Debugw("parent class added", "child", child.Name(), "parent", parent.Name(), "gained", len(gained))
	g.publish(ctx, event.InheritanceAdded, parent.Name(), below)
	g.publish(ctx, event.InheritanceAdded, child.Name(), above)
	return nil
}

// checkAddParent runs the structural checks of AddParentClass. Requires g.mu.
func (g *Graph) checkAddParent(child, parent *ResourceClass) error {
	const op = "add parent class"
	if err := checkCycle(g, child.id, parent.id); err != nil {
		return err
	}
	if parent.Flags().Has(ir.ClassFinal) {
		return illegalState(op, "%s is FINAL and cannot have subclasses", parent.Name())
	}
	if child.Flags().Has(ir.ClassBuiltin) {
		return illegalState(op, "builtin class %s cannot have parents", child.Name())
	}
	for _, p := range g.parents[child.id] {
		if p == parent.id {
			return illegalState(op, "%s is already a parent of %s", parent.Name(), child.Name())
		}
	}
	return checkAddParent(g, child.id, parent.id).Err()
}

// DeleteParentClass removes the direct edge parent -> child. Values of
// attributes no longer visible are dropped by the backend.
func (g *Graph) DeleteParentClass(ctx context.Context, child, parent *ResourceClass) error {
	const op = "delete parent class"
	g.mu.Lock()
	if err := g.member(child); err != nil {
		g.mu.Unlock()
		return err
	}
	if err := g.member(parent); err != nil {
		g.mu.Unlock()
		return err
	}
	found := false
	for _, p := range g.parents[child.id] {
		found = found || p == parent.id
	}
	if !found {
		g.mu.Unlock()
		return illegalState(op, "%s is not a parent of %s", parent.Name(), child.Name())
	}

	edge := Inheritance{Parent: parent.id, Child: child.id}
	after := withoutEdge{tables: g, parent: parent.id, child: child.id}
	lost := g.attributeChanges(attributeDelta(after, g, child.id), nil)
	below := subtree(g, child.id)
	above := append([]ir.ClassID{parent.id}, ancestorsOf(g, parent.id)...)

	var undo undoStack
	prevParents, prevChildren := g.parents[child.id], g.children[parent.id]
	g.parents[child.id] = without(prevParents, parent.id)
	g.children[parent.id] = without(prevChildren, child.id)
	undo.push(func() {
		g.parents[child.id] = prevParents
		g.children[parent.id] = prevChildren
	})

	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.DeleteInheritance(ctx, InheritanceChange{Edge: edge.Record(), Lost: lost})
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	g.bump(below...)
	g.bump(above...)
	g.mu.Unlock()

	g.log.Debugw("parent class deleted", "child", child.Name(), "parent", parent.Name(), "lost", len(lost))
	g.publish(ctx, event.InheritanceDeleted, parent.Name(), below)
	g.publish(ctx, event.InheritanceDeleted, child.Name(), above)
	return nil
}

// AddPermission associates a permission name with class. Subclasses
// inherit it. Adding an existing association is a no-op.
func (g *Graph) AddPermission(ctx context.Context, class *ResourceClass, permission string) error {
	const op = "add permission"
	if permission == "" {
		return errors.Wrap(errors.ErrIllegalArgument, "permission name is empty")
	}
	g.mu.Lock()
	if err := g.member(class); err != nil {
		g.mu.Unlock()
		return err
	}
	for _, p := range g.perms[class.id] {
		if p == permission {
			g.mu.Unlock()
			return nil
		}
	}

	var undo undoStack
	prev := g.perms[class.id]
	g.perms[class.id] = append(append([]string(nil), prev...), permission)
	undo.push(func() { g.perms[class.id] = prev })

	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.AddPermission(ctx, ir.PermissionRecord{ClassID: class.id, Permission: permission})
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	affected := subtree(g, class.id)
	g.bump(affected...)
	g.mu.Unlock()

	g.publish(ctx, event.ClassChanged, permission, affected)
	return nil
}

// RenameResourceClass changes the name of class.
func (g *Graph) RenameResourceClass(ctx context.Context, class *ResourceClass, name string) error {
	const op = "rename resource class"
	g.mu.Lock()
	if err := g.member(class); err != nil {
		g.mu.Unlock()
		return err
	}
	old := class.info.Load()
	if old.flags.Has(ir.ClassBuiltin) {
		g.mu.Unlock()
		return illegalState(op, "builtin class %s cannot be renamed", old.name)
	}
	if old.name == name {
		g.mu.Unlock()
		return nil
	}
	if _, taken := g.byName[name]; taken {
		g.mu.Unlock()
		return &errors.NameExistsError{Kind: "resource class", Name: name}
	}
	next := *old
	next.name = name

	var undo undoStack
	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.UpdateResourceClass(ctx, next.record(class.id))
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	class.info.Store(&next)
	delete(g.byName, old.name)
	g.byName[name] = class
	g.bump(class.id)
	g.mu.Unlock()

	g.publish(ctx, event.ClassChanged, name, []ir.ClassID{class.id})
	return nil
}

// SetClassFlags replaces the flags of class. FINAL cannot be set on a
// class that already has subclasses; BUILTIN cannot be changed.
func (g *Graph) SetClassFlags(ctx context.Context, class *ResourceClass, flags ir.ClassFlags) error {
	const op = "set class flags"
	g.mu.Lock()
	if err := g.member(class); err != nil {
		g.mu.Unlock()
		return err
	}
	old := class.info.Load()
	if old.flags.Has(ir.ClassBuiltin) != flags.Has(ir.ClassBuiltin) {
		g.mu.Unlock()
		return illegalState(op, "the BUILTIN flag of %s cannot change", old.name)
	}
	if flags.Has(ir.ClassFinal) && len(g.children[class.id]) > 0 {
		g.mu.Unlock()
		return illegalState(op, "%s has subclasses and cannot be FINAL", old.name)
	}
	next := *old
	next.flags = flags

	var undo undoStack
	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		return tx.UpdateResourceClass(ctx, next.record(class.id))
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	class.info.Store(&next)
	g.bump(class.id)
	g.mu.Unlock()

	g.publish(ctx, event.ClassChanged, flags.String(), []ir.ClassID{class.id})
	return nil
}

// DeleteResourceClass removes a class that has no subclasses and declares
// no attributes. Its parent edges are removed with it. The backend refuses
// classes that still have instances.
func (g *Graph) DeleteResourceClass(ctx context.Context, class *ResourceClass) error {
	const op = "delete resource class"
	g.mu.Lock()
	if err := g.member(class); err != nil {
		g.mu.Unlock()
		return err
	}
	switch {
	case class.Flags().Has(ir.ClassBuiltin):
		g.mu.Unlock()
		return illegalState(op, "builtin class %s cannot be deleted", class.Name())
	case len(g.children[class.id]) > 0:
		g.mu.Unlock()
		return illegalState(op, "%s has subclasses", class.Name())
	case len(g.declared[class.id]) > 0:
		g.mu.Unlock()
		return illegalState(op, "%s declares attributes", class.Name())
	}

	parents := append([]ir.ClassID(nil), g.parents[class.id]...)
	var above []ir.ClassID
	for _, p := range parents {
		above = appendUnique(above, p)
		for _, a := range ancestorsOf(g, p) {
			above = appendUnique(above, a)
		}
	}

	var undo undoStack
	err := g.persist(ctx, op, &undo, func(tx Tx) error {
		for _, p := range parents {
			edge := ir.InheritanceRecord{Parent: p, Child: class.id}
			if err := tx.DeleteInheritance(ctx, InheritanceChange{Edge: edge}); err != nil {
				return err
			}
		}
		return tx.DeleteResourceClass(ctx, class.Record())
	})
	if err != nil {
		g.mu.Unlock()
		return err
	}
	for _, p := range parents {
		g.children[p] = without(g.children[p], class.id)
	}
	delete(g.parents, class.id)
	delete(g.perms, class.id)
	delete(g.declared, class.id)
	delete(g.classes, class.id)
	delete(g.byName, class.Name())
	class.gen.Add(1)
	g.bump(above...)
	g.mu.Unlock()

	g.publish(ctx, event.ClassDeleted, class.Name(), []ir.ClassID{class.id})
	g.publish(ctx, event.InheritanceDeleted, class.Name(), above)
	return nil
}
