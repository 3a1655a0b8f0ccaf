package schema

import (
	"context"
	"sync"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
)

// MemoryBackend keeps the persisted schema in memory. It holds no
// resource instances, so value initialization is a no-op. It is used for
// compile-only tooling and tests.
type MemoryBackend struct {
	mu        sync.Mutex
	snap      ir.SchemaSnapshot
	nextClass ir.ClassID
	nextAttr  ir.AttrID
}

// NewMemoryBackend creates an empty backend with the node class seeded.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snap: ir.SchemaSnapshot{
			ResourceClasses: []ir.ResourceClassRecord{{
				ID: NodeID, Name: NodeClass, NativeType: NativeResource, Handler: StorageGeneric,
				Flags: ir.ClassBuiltin | ir.ClassAbstract,
			}},
		},
		nextClass: NodeID,
	}
}

func (m *MemoryBackend) LoadSchema(context.Context) (*ir.SchemaSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := cloneSnapshot(&m.snap)
	return &snap, nil
}

// Begin starts a transaction working on a copy of the schema. Commit
// replaces the backend's schema with the copy.
func (m *MemoryBackend) Begin(context.Context) (Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memoryTx{m: m, snap: cloneSnapshot(&m.snap)}, nil
}

func cloneSnapshot(s *ir.SchemaSnapshot) ir.SchemaSnapshot {
	return ir.SchemaSnapshot{
		AttributeClasses: append([]ir.AttributeClassRecord(nil), s.AttributeClasses...),
		ResourceClasses:  append([]ir.ResourceClassRecord(nil), s.ResourceClasses...),
		Attributes:       append([]ir.AttributeRecord(nil), s.Attributes...),
		Inheritance:      append([]ir.InheritanceRecord(nil), s.Inheritance...),
		Permissions:      append([]ir.PermissionRecord(nil), s.Permissions...),
	}
}

type memoryTx struct {
	m    *MemoryBackend
	snap ir.SchemaSnapshot
	done bool
}

var errTxDone = errors.New("transaction already finished")

func (t *memoryTx) CreateAttributeClass(_ context.Context, rec ir.AttributeClassRecord) error {
	t.snap.AttributeClasses = append(t.snap.AttributeClasses, rec)
	return nil
}

func (t *memoryTx) CreateResourceClass(_ context.Context, rec ir.ResourceClassRecord) (ir.ClassID, error) {
	t.m.mu.Lock()
	t.m.nextClass++
	rec.ID = t.m.nextClass
	t.m.mu.Unlock()
	t.snap.ResourceClasses = append(t.snap.ResourceClasses, rec)
	return rec.ID, nil
}

func (t *memoryTx) UpdateResourceClass(_ context.Context, rec ir.ResourceClassRecord) error {
	for i := range t.snap.ResourceClasses {
		if t.snap.ResourceClasses[i].ID == rec.ID {
			t.snap.ResourceClasses[i] = rec
			return nil
		}
	}
	return unknownClass(rec.ID)
}

func (t *memoryTx) DeleteResourceClass(_ context.Context, rec ir.ResourceClassRecord) error {
	out := t.snap.ResourceClasses[:0:0]
	for _, r := range t.snap.ResourceClasses {
		if r.ID != rec.ID {
			out = append(out, r)
		}
	}
	t.snap.ResourceClasses = out
	perms := t.snap.Permissions[:0:0]
	for _, p := range t.snap.Permissions {
		if p.ClassID != rec.ID {
			perms = append(perms, p)
		}
	}
	t.snap.Permissions = perms
	return nil
}

func (t *memoryTx) AddAttribute(_ context.Context, ch AttributeChange) (ir.AttrID, error) {
	t.m.mu.Lock()
	t.m.nextAttr++
	id := t.m.nextAttr
	t.m.mu.Unlock()
	rec := ch.Attribute
	rec.ID = id
	t.snap.Attributes = append(t.snap.Attributes, rec)
	return id, nil
}

func (t *memoryTx) DeleteAttribute(_ context.Context, ch AttributeChange) error {
	out := t.snap.Attributes[:0:0]
	for _, a := range t.snap.Attributes {
		if a.ID != ch.Attribute.ID {
			out = append(out, a)
		}
	}
	t.snap.Attributes = out
	return nil
}

func (t *memoryTx) AddInheritance(_ context.Context, ch InheritanceChange) error {
	t.snap.Inheritance = append(t.snap.Inheritance, ch.Edge)
	return nil
}

func (t *memoryTx) DeleteInheritance(_ context.Context, ch InheritanceChange) error {
	out := t.snap.Inheritance[:0:0]
	for _, e := range t.snap.Inheritance {
		if e != ch.Edge {
			out = append(out, e)
		}
	}
	t.snap.Inheritance = out
	return nil
}

func (t *memoryTx) AddPermission(_ context.Context, rec ir.PermissionRecord) error {
	t.snap.Permissions = append(t.snap.Permissions, rec)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.snap = t.snap
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	return nil
}
