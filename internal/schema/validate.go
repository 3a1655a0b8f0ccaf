package schema

import (
	"github.com/objectledge/coral/internal/ir"
)

// tables is the read-only view of the graph's authoritative tables that
// validation works on. Graph implements it while its lock is held; tests
// and what-if checks can overlay it.
type tables interface {
	parentsOf(id ir.ClassID) []ir.ClassID
	childrenOf(id ir.ClassID) []ir.ClassID
	declaredOf(id ir.ClassID) []*AttributeDefinition
	className(id ir.ClassID) string
}

// withEdge overlays one extra inheritance edge on t.
type withEdge struct {
	tables
	parent, child ir.ClassID
}

func (w withEdge) parentsOf(id ir.ClassID) []ir.ClassID {
	ps := w.tables.parentsOf(id)
	if id == w.child {
		return append(append([]ir.ClassID(nil), ps...), w.parent)
	}
	return ps
}

func (w withEdge) childrenOf(id ir.ClassID) []ir.ClassID {
	cs := w.tables.childrenOf(id)
	if id == w.parent {
		return append(append([]ir.ClassID(nil), cs...), w.child)
	}
	return cs
}

// withoutEdge hides one inheritance edge of t.
type withoutEdge struct {
	tables
	parent, child ir.ClassID
}

func (w withoutEdge) parentsOf(id ir.ClassID) []ir.ClassID {
	if id == w.child {
		return without(w.tables.parentsOf(id), w.parent)
	}
	return w.tables.parentsOf(id)
}

func (w withoutEdge) childrenOf(id ir.ClassID) []ir.ClassID {
	if id == w.parent {
		return without(w.tables.childrenOf(id), w.child)
	}
	return w.tables.childrenOf(id)
}

func without(ids []ir.ClassID, x ir.ClassID) []ir.ClassID {
	out := make([]ir.ClassID, 0, len(ids))
	for _, id := range ids {
		if id != x {
			out = append(out, id)
		}
	}
	return out
}

// walk returns the classes reachable from id through next, depth first in
// edge order, excluding id itself.
func walk(id ir.ClassID, next func(ir.ClassID) []ir.ClassID) []ir.ClassID {
	var out []ir.ClassID
	seen := map[ir.ClassID]bool{id: true}
	var visit func(ir.ClassID)
	visit = func(cur ir.ClassID) {
		for _, n := range next(cur) {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
			visit(n)
		}
	}
	visit(id)
	return out
}

func ancestorsOf(t tables, id ir.ClassID) []ir.ClassID {
	return walk(id, t.parentsOf)
}

func descendantsOf(t tables, id ir.ClassID) []ir.ClassID {
	return walk(id, t.childrenOf)
}

// isAncestor reports whether a is a transitive parent of b.
func isAncestor(t tables, a, b ir.ClassID) bool {
	for _, id := range ancestorsOf(t, b) {
		if id == a {
			return true
		}
	}
	return false
}

// related reports whether a and b are the same class or one inherits from
// the other.
func related(t tables, a, b ir.ClassID) bool {
	return a == b || isAncestor(t, a, b) || isAncestor(t, b, a)
}

// visibleAttributes lists the attributes declared by id and its ancestors,
// declared first.
func visibleAttributes(t tables, id ir.ClassID) []*AttributeDefinition {
	out := append([]*AttributeDefinition(nil), t.declaredOf(id)...)
	for _, anc := range ancestorsOf(t, id) {
		out = append(out, t.declaredOf(anc)...)
	}
	return out
}

// subtree returns id followed by its descendants.
func subtree(t tables, id ir.ClassID) []ir.ClassID {
	return append([]ir.ClassID{id}, descendantsOf(t, id)...)
}

// classify names the kind of clash between two declarations of one name.
func classify(t tables, existing, incoming *AttributeDefinition, existingClass, incomingClass ir.ClassID) IntegrityKind {
	if existing.Has(ir.AttrBuiltin) != incoming.Has(ir.AttrBuiltin) || isBuiltinName(incoming.Name()) {
		return FlagsClash
	}
	if related(t, existingClass, incomingClass) {
		return ClassClash
	}
	return MultipleInheritance
}

// reportBuilder collects conflicts, skipping repeats of the same pair.
type reportBuilder struct {
	t    tables
	seen map[[2]*AttributeDefinition]bool
	r    ConflictReport
}

func newReportBuilder(t tables) *reportBuilder {
	return &reportBuilder{t: t, seen: make(map[[2]*AttributeDefinition]bool)}
}

func (b *reportBuilder) add(existing, incoming *AttributeDefinition, existingClass, incomingClass ir.ClassID) {
	key := [2]*AttributeDefinition{existing, incoming}
	if b.seen[key] || b.seen[[2]*AttributeDefinition{incoming, existing}] {
		return
	}
	b.seen[key] = true
	b.r.Conflicts = append(b.r.Conflicts, Conflict{
		Kind:      classify(b.t, existing, incoming, existingClass, incomingClass),
		Attribute: incoming.Name(),
		Existing:  b.t.className(existingClass),
		Incoming:  b.t.className(incomingClass),
	})
}

// checkAddAttribute validates declaring a on class. The new name must not
// be visible from class or from any of its descendants, and must not be a
// builtin name.
func checkAddAttribute(t tables, class ir.ClassID, a *AttributeDefinition) ConflictReport {
	b := newReportBuilder(t)
	if !a.Has(ir.AttrBuiltin) && isBuiltinName(a.Name()) {
		b.r.Conflicts = append(b.r.Conflicts, Conflict{
			Kind:      FlagsClash,
			Attribute: a.Name(),
			Existing:  NodeClass,
			Incoming:  t.className(class),
		})
	}
	for _, x := range subtree(t, class) {
		for _, existing := range visibleAttributes(t, x) {
			if existing.Name() == a.Name() && existing != a {
				b.add(existing, a, existing.DeclaringClassID(), class)
			}
		}
	}
	return b.r
}

// checkAddParent validates the edge parent -> child. Adding a parent can
// introduce clashes that are invisible from child alone: every class in
// the child's subtree must still see at most one definition per name once
// the parent's attributes become visible to it.
func checkAddParent(t tables, child, parent ir.ClassID) ConflictReport {
	after := withEdge{tables: t, parent: parent, child: child}
	b := newReportBuilder(after)
	incoming := visibleAttributes(t, parent)
	for _, x := range subtree(t, child) {
		current := make(map[string]*AttributeDefinition)
		for _, a := range visibleAttributes(t, x) {
			if _, ok := current[a.Name()]; !ok {
				current[a.Name()] = a
			}
		}
		for _, in := range incoming {
			if existing, ok := current[in.Name()]; ok && existing != in {
				b.add(existing, in, existing.DeclaringClassID(), in.DeclaringClassID())
			}
		}
	}
	return b.r
}

// checkCycle reports whether parent -> child would close a cycle.
func checkCycle(t tables, child, parent ir.ClassID) error {
	if child == parent || isAncestor(t, child, parent) {
		return &CircularDependencyError{Child: t.className(child), Parent: t.className(parent)}
	}
	return nil
}

// attributeDelta returns, for every class in the child's subtree, the
// attributes visible in after but not in before.
func attributeDelta(before, after tables, child ir.ClassID) map[*AttributeDefinition][]ir.ClassID {
	delta := make(map[*AttributeDefinition][]ir.ClassID)
	for _, x := range subtree(after, child) {
		had := make(map[*AttributeDefinition]bool)
		for _, a := range visibleAttributes(before, x) {
			had[a] = true
		}
		for _, a := range visibleAttributes(after, x) {
			if !had[a] && !a.Has(ir.AttrBuiltin) {
				delta[a] = appendUnique(delta[a], x)
			}
		}
	}
	return delta
}

func appendUnique(ids []ir.ClassID, id ir.ClassID) []ir.ClassID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
