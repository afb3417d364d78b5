package worklet

import (
	"slices"
	"sync"
	"sync/atomic"
)

// AnyEmitter registers a handler for an event coming from any emitter.
const AnyEmitter = -1

type eventHandler struct {
	id      uint64
	emitter int
	fn      *HostFunctionHandler
}

func (h eventHandler) accepts(emitter int) bool {
	return h.emitter == AnyEmitter || h.emitter == emitter
}

// EventHandlerRegistry maps event names to the worklets that handle them.
// Handlers of one event are kept in registration order.
//
// Ids are reserved with NextID on any goroutine, so the registering side can
// return an id right away while the registration itself is still queued.
type EventHandlerRegistry struct {
	nextID atomic.Uint64

	mu     sync.RWMutex
	byName map[string][]eventHandler
	names  map[uint64]string
}

// NewEventHandlerRegistry creates an empty registry.
func NewEventHandlerRegistry() *EventHandlerRegistry {
	return &EventHandlerRegistry{
		byName: make(map[string][]eventHandler),
		names:  make(map[uint64]string),
	}
}

// NextID reserves a registration id. Ids start at 1 and are never reused.
func (r *EventHandlerRegistry) NextID() uint64 {
	return r.nextID.Add(1)
}

// Register adds fn as a handler of eventName under id. emitter limits it to
// events from one emitter; AnyEmitter accepts all. It reports false if id is
// already registered.
func (r *EventHandlerRegistry) Register(id uint64, eventName string, emitter int, fn *HostFunctionHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[id]; ok {
		return false
	}
	r.names[id] = eventName
	r.byName[eventName] = append(r.byName[eventName], eventHandler{id: id, emitter: emitter, fn: fn})
	return true
}

// Unregister removes the handler registered under id. It reports whether
// there was one.
func (r *EventHandlerRegistry) Unregister(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.names[id]
	if !ok {
		return false
	}
	delete(r.names, id)

	rest := slices.DeleteFunc(r.byName[name], func(h eventHandler) bool { return h.id == id })
	if len(rest) == 0 {
		delete(r.byName, name)
	} else {
		r.byName[name] = rest
	}
	return true
}

// IsAnyHandlerWaitingForEvent reports whether an event called eventName from
// emitter would reach at least one handler.
func (r *EventHandlerRegistry) IsAnyHandlerWaitingForEvent(eventName string, emitter int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(r.byName[eventName], func(h eventHandler) bool { return h.accepts(emitter) })
}

// Handlers returns the handlers for eventName from emitter, oldest first.
func (r *EventHandlerRegistry) Handlers(eventName string, emitter int) []*HostFunctionHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*HostFunctionHandler
	for _, h := range r.byName[eventName] {
		if h.accepts(emitter) {
			out = append(out, h.fn)
		}
	}
	return out
}

// Len returns the number of registered handlers.
func (r *EventHandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Clear drops every handler. Reserved ids stay used.
func (r *EventHandlerRegistry) Clear() {
	r.mu.Lock()
	clear(r.byName)
	clear(r.names)
	r.mu.Unlock()
}
