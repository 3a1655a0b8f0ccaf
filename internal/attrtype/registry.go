// Package attrtype is the attribute type registry: it maps named attribute
// types to their native representation and the value handler responsible for
// conversion, domain checking, comparison support and column mapping.
package attrtype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
)

// AttributeClass is a named attribute type. Several attribute classes may
// share a handler and a value table.
type AttributeClass struct {
	ID         ir.AttrClassID
	Name       string
	NativeType string
	HandlerRef string
	DBTable    string
	Handler    Handler

	mu         sync.Mutex
	referenced bool
}

// Kind returns the native representation of values of this type.
func (c *AttributeClass) Kind() ir.Kind {
	return c.Handler.Kind()
}

// Record returns the persisted shape of the attribute class.
func (c *AttributeClass) Record() ir.AttributeClassRecord {
	return ir.AttributeClassRecord{
		ID:         c.ID,
		Name:       c.Name,
		NativeType: c.NativeType,
		Handler:    c.HandlerRef,
		DBTable:    c.DBTable,
	}
}

// MarkReferenced freezes the attribute class once an attribute uses it.
func (c *AttributeClass) MarkReferenced() {
	c.mu.Lock()
	c.referenced = true
	c.mu.Unlock()
}

// Referenced reports whether any attribute uses the class.
func (c *AttributeClass) Referenced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenced
}

func (c *AttributeClass) String() string {
	return c.Name
}

// Registry holds attribute classes and the handler factories they are built
// from. It is read-mostly and safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*AttributeClass
	byID      map[ir.AttrClassID]*AttributeClass
	factories map[string]Factory
	nextID    ir.AttrClassID
	checker   RefChecker
}

// NewEmptyRegistry creates a registry that knows the built-in handler
// factories but holds no attribute classes.
func NewEmptyRegistry() *Registry {
	r := &Registry{
		byName:    make(map[string]*AttributeClass),
		byID:      make(map[ir.AttrClassID]*AttributeClass),
		factories: make(map[string]Factory),
	}
	r.RegisterHandler(HandlerString, func(*Registry) (Handler, error) {
		return newStringHandler(Equality | Ordering | Approximation), nil
	})
	r.RegisterHandler(HandlerText, func(*Registry) (Handler, error) {
		return newStringHandler(Equality | Approximation), nil
	})
	r.RegisterHandler(HandlerInteger, func(*Registry) (Handler, error) { return integerHandler{}, nil })
	r.RegisterHandler(HandlerBoolean, func(*Registry) (Handler, error) { return booleanHandler{}, nil })
	r.RegisterHandler(HandlerDate, func(*Registry) (Handler, error) { return dateHandler{}, nil })
	r.RegisterHandler(HandlerResource, func(reg *Registry) (Handler, error) {
		return &resourceHandler{registry: reg}, nil
	})
	return r
}

// builtinTypes are the attribute classes every registry starts with.
var builtinTypes = []struct {
	name, native, handler string
}{
	{"string", "string", HandlerString},
	{"text", "string", HandlerText},
	{"integer", "int", HandlerInteger},
	{"boolean", "bool", HandlerBoolean},
	{"date", "time", HandlerDate},
	{"resource", "resource", HandlerResource},
}

// BuiltinTypes returns the names of the attribute classes created by NewRegistry.
func BuiltinTypes() []string {
	names := make([]string, len(builtinTypes))
	for i, bt := range builtinTypes {
		names[i] = bt.name
	}
	return names
}

// NewRegistry creates a registry pre-populated with the built-in attribute
// classes, each backed by its own coral_attribute_<name> table.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, bt := range builtinTypes {
		if _, err := r.CreateAttributeClass(bt.name, bt.native, bt.handler, "coral_attribute_"+bt.name); err != nil {
			panic(fmt.Sprintf("attrtype: builtin %s: %v", bt.name, err))
		}
	}
	return r
}

// RegisterHandler makes a handler reference resolvable.
func (r *Registry) RegisterHandler(ref string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[ref] = f
}

// SetRefChecker installs the checker used by reference domains.
func (r *Registry) SetRefChecker(c RefChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checker = c
}

// RefChecker returns the installed reference checker, or nil.
func (r *Registry) RefChecker() RefChecker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checker
}

// NewAttributeClass resolves the references of a new attribute class
// without registering it. Fails with NameExists or InvalidType.
func (r *Registry) NewAttributeClass(name, nativeType, handlerRef, table string) (*AttributeClass, error) {
	r.mu.RLock()
	_, taken := r.byName[name]
	factory, known := r.factories[handlerRef]
	r.mu.RUnlock()

	if taken {
		return nil, &errors.NameExistsError{Kind: "attribute class", Name: name}
	}
	kind, ok := ir.ParseKind(nativeType)
	if !ok {
		return nil, &errors.InvalidTypeError{Ref: nativeType, Reason: "unknown native type"}
	}
	if !known {
		return nil, &errors.InvalidTypeError{Ref: handlerRef, Reason: "unknown value handler"}
	}
	handler, err := factory(r)
	if err != nil {
		return nil, &errors.InvalidTypeError{Ref: handlerRef, Reason: err.Error()}
	}
	if handler.Kind() != kind {
		return nil, &errors.InvalidTypeError{
			Ref:    handlerRef,
			Reason: fmt.Sprintf("handler produces %s values, native type is %s", handler.Kind(), kind),
		}
	}
	if table == "" {
		table = "coral_attribute_" + name
	}
	return &AttributeClass{
		Name:       name,
		NativeType: nativeType,
		HandlerRef: handlerRef,
		DBTable:    table,
		Handler:    handler,
	}, nil
}

// Register adds a resolved attribute class. A zero ID is assigned from the
// registry's sequence.
func (r *Registry) Register(c *AttributeClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[c.Name]; taken {
		return &errors.NameExistsError{Kind: "attribute class", Name: c.Name}
	}
	if c.ID == 0 {
		r.nextID++
		c.ID = r.nextID
	} else if c.ID > r.nextID {
		r.nextID = c.ID
	}
	if _, taken := r.byID[c.ID]; taken {
		return &errors.NameExistsError{Kind: "attribute class id", Name: c.ID.String()}
	}
	r.byName[c.Name] = c
	r.byID[c.ID] = c
	return nil
}

// Unregister removes an attribute class that is not referenced by any
// attribute.
func (r *Registry) Unregister(c *AttributeClass) error {
	if c.Referenced() {
		return errors.Newf("attribute class %s is in use", c.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, c.Name)
	delete(r.byID, c.ID)
	return nil
}

// CreateAttributeClass resolves and registers a new attribute class.
func (r *Registry) CreateAttributeClass(name, nativeType, handlerRef, table string) (*AttributeClass, error) {
	c, err := r.NewAttributeClass(name, nativeType, handlerRef, table)
	if err != nil {
		return nil, err
	}
	if err := r.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AttributeClass returns the attribute class with the given name.
func (r *Registry) AttributeClass(name string) (*AttributeClass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, &errors.EntityDoesNotExistError{Kind: "attribute class", Key: name}
	}
	return c, nil
}

// AttributeClassByID returns the attribute class with the given id.
func (r *Registry) AttributeClassByID(id ir.AttrClassID) (*AttributeClass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, &errors.EntityDoesNotExistError{Kind: "attribute class", Key: id.String()}
	}
	return c, nil
}

// AttributeClasses returns all registered attribute classes ordered by id.
func (r *Registry) AttributeClasses() []*AttributeClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*AttributeClass, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
