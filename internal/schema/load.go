package schema

import (
	"context"
	"sort"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
)

// Load replaces the graph's contents with the schema persisted by the
// backend. Attribute types known to the registry but missing from the
// backend are persisted first, so builtin types exist on a fresh store.
// If the persisted schema is inconsistent the graph is left holding only
// the node class.
func (g *Graph) Load(ctx context.Context) error {
	const op = "load schema"
	snap, err := g.backend.LoadSchema(ctx)
	if err != nil {
		return backendError(op, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.syncAttributeClasses(ctx, snap.AttributeClasses); err != nil {
		return err
	}

	g.reset()
	if err := g.loadTables(snap); err != nil {
		g.reset()
		return err
	}
	for _, c := range g.classes {
		c.gen.Add(1)
	}
	g.log.Debugw("schema loaded",
		"attribute_classes", len(snap.AttributeClasses),
		"classes", len(g.classes),
		"attributes", len(snap.Attributes),
		"edges", len(snap.Inheritance))
	return nil
}

// loadTables fills the reset tables from snap. Requires g.mu.
func (g *Graph) loadTables(snap *ir.SchemaSnapshot) error {
	const op = "load schema"

	sort.Slice(snap.ResourceClasses, func(i, j int) bool { return snap.ResourceClasses[i].ID < snap.ResourceClasses[j].ID })
	for _, rec := range snap.ResourceClasses {
		if rec.ID == NodeID || rec.Name == NodeClass {
			continue
		}
		if _, dup := g.byName[rec.Name]; dup {
			return errors.NewBackendError(op, errors.Newf("duplicate resource class %s", rec.Name))
		}
		c := &ResourceClass{id: rec.ID, g: g}
		c.info.Store(&classInfo{
			name:       rec.Name,
			nativeType: rec.NativeType,
			handler:    rec.Handler,
			table:      rec.DBTable,
			flags:      rec.Flags,
		})
		g.classes[rec.ID] = c
		g.byName[rec.Name] = c
	}

	sort.Slice(snap.Attributes, func(i, j int) bool { return snap.Attributes[i].ID < snap.Attributes[j].ID })
	for _, rec := range snap.Attributes {
		if _, ok := g.classes[rec.ClassID]; !ok {
			return errors.NewBackendError(op, unknownClass(rec.ClassID))
		}
		typ, err := g.registry.AttributeClassByID(rec.TypeID)
		if err != nil {
			return errors.NewBackendError(op, err)
		}
		a := &AttributeDefinition{name: rec.Name, typ: typ, domain: rec.Domain, flags: rec.Flags}
		a.id.Store(int64(rec.ID))
		a.declaring.Store(int64(rec.ClassID))
		typ.MarkReferenced()
		g.declared[rec.ClassID] = append(g.declared[rec.ClassID], a)
	}

	for _, rec := range snap.Inheritance {
		_, okP := g.classes[rec.Parent]
		_, okC := g.classes[rec.Child]
		if !okP || !okC {
			return errors.NewBackendError(op, errors.Newf("dangling inheritance edge %d -> %d", rec.Parent, rec.Child))
		}
		if err := checkCycle(g, rec.Child, rec.Parent); err != nil {
			return errors.NewBackendError(op, err)
		}
		g.parents[rec.Child] = append(g.parents[rec.Child], rec.Parent)
		g.children[rec.Parent] = append(g.children[rec.Parent], rec.Child)
	}

	for _, rec := range snap.Permissions {
		g.perms[rec.ClassID] = append(g.perms[rec.ClassID], rec.Permission)
	}

	return nil
}

// syncAttributeClasses registers persisted attribute types the registry
// does not know yet and persists registry types the backend lacks.
// Requires g.mu.
func (g *Graph) syncAttributeClasses(ctx context.Context, recs []ir.AttributeClassRecord) error {
	const op = "load schema"
	persisted := make(map[string]bool, len(recs))
	for _, rec := range recs {
		persisted[rec.Name] = true
		if known, err := g.registry.AttributeClass(rec.Name); err == nil {
			if known.ID != rec.ID {
				return errors.NewBackendError(op, errors.Newf("attribute class %s has id %d, registry has %d", rec.Name, rec.ID, known.ID))
			}
			continue
		}
		ac, err := g.registry.NewAttributeClass(rec.Name, rec.NativeType, rec.Handler, rec.DBTable)
		if err != nil {
			return err
		}
		ac.ID = rec.ID
		if err := g.registry.Register(ac); err != nil {
			return err
		}
	}

	var missing []*attrtype.AttributeClass
	for _, ac := range g.registry.AttributeClasses() {
		if !persisted[ac.Name] {
			missing = append(missing, ac)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	var undo undoStack
	return g.persist(ctx, op, &undo, func(tx Tx) error {
		for _, ac := range missing {
			if err := tx.CreateAttributeClass(ctx, ac.Record()); err != nil {
				return err
			}
		}
		return nil
	})
}

// reset drops every class except node. Requires g.mu.
func (g *Graph) reset() {
	for id := range g.classes {
		if id != NodeID {
			delete(g.classes, id)
		}
	}
	for name := range g.byName {
		if name != NodeClass {
			delete(g.byName, name)
		}
	}
	builtins := g.declared[NodeID]
	g.declared = map[ir.ClassID][]*AttributeDefinition{NodeID: builtins}
	g.parents = make(map[ir.ClassID][]ir.ClassID)
	g.children = make(map[ir.ClassID][]ir.ClassID)
	g.perms = make(map[ir.ClassID][]string)
}

// Snapshot returns the schema in its persisted shape.
func (g *Graph) Snapshot() *ir.SchemaSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &ir.SchemaSnapshot{}
	for _, ac := range g.registry.AttributeClasses() {
		snap.AttributeClasses = append(snap.AttributeClasses, ac.Record())
	}
	ids := make([]ir.ClassID, 0, len(g.classes))
	for id := range g.classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		snap.ResourceClasses = append(snap.ResourceClasses, g.classes[id].Record())
		for _, a := range g.declared[id] {
			if !a.Has(ir.AttrBuiltin) {
				snap.Attributes = append(snap.Attributes, a.Record())
			}
		}
		for _, p := range g.parents[id] {
			snap.Inheritance = append(snap.Inheritance, ir.InheritanceRecord{Parent: p, Child: id})
		}
		for _, p := range g.perms[id] {
			snap.Permissions = append(snap.Permissions, ir.PermissionRecord{ClassID: id, Permission: p})
		}
	}
	return snap
}

// Fingerprint returns the content hash of the current schema. It changes
// whenever a class, attribute, inheritance edge or permission is added,
// altered or removed.
func (g *Graph) Fingerprint() (string, error) {
	return ir.Fingerprint(g.Snapshot())
}
