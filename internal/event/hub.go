// Package event dispatches schema change notifications.
//
// Listeners register for one resource class or for every class. Fire
// delivers synchronously, in registration order, to a copy of the listener
// list taken at the time of the call, so listeners may register or
// unregister while being notified.
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
)

// Kind distinguishes schema change events.
type Kind int

const (
	// ClassCreated is fired after a resource class is created.
	ClassCreated Kind = iota + 1
	// ClassChanged is fired after a rename, flag or permission change.
	ClassChanged
	// ClassDeleted is fired after a resource class is deleted.
	ClassDeleted
	// AttributeAdded is fired for the declaring class and every descendant.
	AttributeAdded
	// AttributeDeleted is fired for the declaring class and every descendant.
	AttributeDeleted
	// InheritanceAdded is fired for both ends of the edge and every class
	// whose ancestry or descendancy changed.
	InheritanceAdded
	// InheritanceDeleted mirrors InheritanceAdded.
	InheritanceDeleted
)

var kindNames = map[Kind]string{
	ClassCreated:       "class_created",
	ClassChanged:       "class_changed",
	ClassDeleted:       "class_deleted",
	AttributeAdded:     "attribute_added",
	AttributeDeleted:   "attribute_deleted",
	InheritanceAdded:   "inheritance_added",
	InheritanceDeleted: "inheritance_deleted",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event describes one committed schema change as seen by one class.
type Event struct {
	ID    uuid.UUID
	Kind  Kind
	Class ir.ClassID

	// Subject names the attribute or the other end of the inheritance edge,
	// when there is one.
	Subject string
}

// New creates an event with a fresh id.
func New(kind Kind, class ir.ClassID, subject string) Event {
	return Event{ID: uuid.New(), Kind: kind, Class: class, Subject: subject}
}

// Listener receives events.
type Listener interface {
	OnEvent(ctx context.Context, e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event)

func (f ListenerFunc) OnEvent(ctx context.Context, e Event) { f(ctx, e) }

type registration struct {
	id       uint64
	listener Listener
}

// Hub is a synchronous event dispatcher. The zero value is not usable;
// create hubs with NewHub.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[ir.ClassID][]registration
	all    []registration
	log    *zap.SugaredLogger
}

// NewHub creates a hub logging listener failures to log (nil uses the
// package logger).
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		byID: make(map[ir.ClassID][]registration),
		log:  logger.Or(log),
	}
}

// Register subscribes l to events of one class. The returned function
// removes the subscription.
func (h *Hub) Register(class ir.ClassID, l Listener) (unregister func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.byID[class] = append(h.byID[class], registration{id: id, listener: l})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.byID[class] = remove(h.byID[class], id)
		if len(h.byID[class]) == 0 {
			delete(h.byID, class)
		}
	}
}

// RegisterAll subscribes l to events of every class.
func (h *Hub) RegisterAll(l Listener) (unregister func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.all = append(h.all, registration{id: id, listener: l})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.all = remove(h.all, id)
	}
}

func remove(regs []registration, id uint64) []registration {
	out := regs[:0:0]
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// Listeners returns the number of registrations that would receive an
// event for class.
func (h *Hub) Listeners(class ir.ClassID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byID[class]) + len(h.all)
}

// Fire delivers e to the class listeners, then to the global ones. A
// panicking listener is logged and skipped.
func (h *Hub) Fire(ctx context.Context, e Event) {
	h.mu.Lock()
	targets := make([]registration, 0, len(h.byID[e.Class])+len(h.all))
	targets = append(targets, h.byID[e.Class]...)
	targets = append(targets, h.all...)
	h.mu.Unlock()

	for _, r := range targets {
		h.deliver(ctx, r.listener, e)
	}
}

func (h *Hub) deliver(ctx context.Context, l Listener, e Event) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Errorw("event listener panicked",
				"event", e.ID.String(),
				"kind", e.Kind.String(),
				"class", int64(e.Class),
				"panic", fmt.Sprint(p))
		}
	}()
	l.OnEvent(ctx, e)
}
