package schema

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/event"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
)

// Graph is the resource class graph: an arena of classes keyed by id, the
// authoritative tables of inheritance edges, declared attributes and
// permissions, and the attribute type registry.
//
// All tables are guarded by mu. Mutations hold the write lock for the whole
// validate, persist and commit sequence, so readers building derived views
// never observe staged state. Derived views are kept per class and
// invalidated by bumping generations after a commit.
type Graph struct {
	mu sync.RWMutex

	classes  map[ir.ClassID]*ResourceClass
	byName   map[string]*ResourceClass
	parents  map[ir.ClassID][]ir.ClassID
	children map[ir.ClassID][]ir.ClassID
	declared map[ir.ClassID][]*AttributeDefinition
	perms    map[ir.ClassID][]string

	node     *ResourceClass
	registry *attrtype.Registry
	backend  Backend
	hub      *event.Hub
	log      *zap.SugaredLogger
}

// Option configures a Graph.
type Option func(*Graph)

// WithHub publishes committed changes to h.
func WithHub(h *event.Hub) Option {
	return func(g *Graph) { g.hub = h }
}

// WithLogger sets the logger used for rollback failures and diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(g *Graph) { g.log = l }
}

// New creates an empty graph holding only the built-in node class.
// Use Open to load a persisted schema.
func New(registry *attrtype.Registry, backend Backend, opts ...Option) *Graph {
	g := &Graph{
		classes:  make(map[ir.ClassID]*ResourceClass),
		byName:   make(map[string]*ResourceClass),
		parents:  make(map[ir.ClassID][]ir.ClassID),
		children: make(map[ir.ClassID][]ir.ClassID),
		declared: make(map[ir.ClassID][]*AttributeDefinition),
		perms:    make(map[ir.ClassID][]string),
		registry: registry,
		backend:  backend,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = logger.Or(g.log)
	g.installNode()
	return g
}

// Open creates a graph and loads the schema persisted by backend.
func Open(ctx context.Context, registry *attrtype.Registry, backend Backend, opts ...Option) (*Graph, error) {
	g := New(registry, backend, opts...)
	if err := g.Load(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Registry returns the attribute type registry.
func (g *Graph) Registry() *attrtype.Registry {
	return g.registry
}

// Hub returns the event hub, or nil.
func (g *Graph) Hub() *event.Hub {
	return g.hub
}

// Node returns the built-in universal class.
func (g *Graph) Node() *ResourceClass {
	return g.node
}

// ResourceClass returns the class named name.
func (g *Graph) ResourceClass(name string) (*ResourceClass, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.byName[name]
	if !ok {
		return nil, &errors.EntityDoesNotExistError{Kind: "resource class", Key: name}
	}
	return c, nil
}

// ResourceClassByID returns the class with the given id.
func (g *Graph) ResourceClassByID(id ir.ClassID) (*ResourceClass, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.classes[id]
	if !ok {
		return nil, unknownClass(id)
	}
	return c, nil
}

// ResourceClasses returns every class ordered by id.
func (g *Graph) ResourceClasses() []*ResourceClass {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*ResourceClass, 0, len(g.classes))
	for _, c := range g.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Attribute resolves name on class. It is a convenience for
// class.Attribute.
func (g *Graph) Attribute(class *ResourceClass, name string) (*AttributeDefinition, error) {
	return class.Attribute(name)
}

// The methods below read the authoritative tables and require g.mu.

func (g *Graph) parentsOf(id ir.ClassID) []ir.ClassID  { return g.parents[id] }
func (g *Graph) childrenOf(id ir.ClassID) []ir.ClassID { return g.children[id] }

func (g *Graph) declaredOf(id ir.ClassID) []*AttributeDefinition { return g.declared[id] }

func (g *Graph) className(id ir.ClassID) string {
	if c, ok := g.classes[id]; ok {
		return c.Name()
	}
	return id.String()
}

func (g *Graph) classOf(id ir.ClassID) *ResourceClass { return g.classes[id] }

func (g *Graph) resolve(ids []ir.ClassID) []*ResourceClass {
	out := make([]*ResourceClass, 0, len(ids))
	for _, id := range ids {
		if c, ok := g.classes[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// buildView derives the snapshot of c from the tables. Requires g.mu.
func (g *Graph) buildView(c *ResourceClass, gen uint64, prev *classView) *classView {
	ancestors := ancestorsOf(g, c.id)
	descendants := descendantsOf(g, c.id)

	v := &classView{
		gen:            gen,
		directParents:  g.resolve(g.parents[c.id]),
		directChildren: g.resolve(g.children[c.id]),
		ancestors:      g.resolve(ancestors),
		descendants:    g.resolve(descendants),
		ancestorIDs:    toSet(ancestors),
		descendantIDs:  toSet(descendants),
		declared:       append([]*AttributeDefinition(nil), g.declared[c.id]...),
		byName:         make(map[string]*AttributeDefinition),
	}

	for _, a := range visibleAttributes(g, c.id) {
		if _, dup := v.byName[a.Name()]; dup {
			continue
		}
		v.byName[a.Name()] = a
		v.attrs = append(v.attrs, a)
	}

	var prevIndex *AttributeIndexTable
	if prev != nil {
		prevIndex = prev.index
	}
	v.index = prevIndex.Extend(v.attrs...)

	permSet := make(map[string]bool)
	for _, id := range append([]ir.ClassID{c.id}, ancestors...) {
		for _, p := range g.perms[id] {
			permSet[p] = true
		}
	}
	for p := range permSet {
		v.permissions = append(v.permissions, p)
	}
	sort.Strings(v.permissions)
	return v
}

func toSet(ids []ir.ClassID) map[ir.ClassID]bool {
	s := make(map[ir.ClassID]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// bump advances the generation of every class in ids. Requires g.mu held
// for writing.
func (g *Graph) bump(ids ...ir.ClassID) {
	for _, id := range ids {
		if c, ok := g.classes[id]; ok {
			c.gen.Add(1)
		}
	}
}

// publish fires one event per class. It must be called without g.mu.
func (g *Graph) publish(ctx context.Context, kind event.Kind, subject string, ids []ir.ClassID) {
	if g.hub == nil {
		return
	}
	for _, id := range ids {
		g.hub.Fire(ctx, event.New(kind, id, subject))
	}
}
