package worklet

import (
	"maps"
	"slices"
	"sync"
)

// RemoteRegistry maps names to functions captured from the JS runtime with
// makeRemote, so that worklets can call back into it with runOnJS.
type RemoteRegistry struct {
	mu  sync.RWMutex
	fns map[string]*HostFunctionHandler
}

// NewRemoteRegistry creates an empty registry.
func NewRemoteRegistry() *RemoteRegistry {
	return &RemoteRegistry{fns: make(map[string]*HostFunctionHandler)}
}

// Register stores h under its name. It reports whether an earlier function
// with the same name was replaced.
func (r *RemoteRegistry) Register(h *HostFunctionHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.fns[h.Name()]
	r.fns[h.Name()] = h
	return replaced
}

// Lookup returns the function registered under name.
func (r *RemoteRegistry) Lookup(name string) (*HostFunctionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.fns[name]
	return h, ok
}

// Names returns the registered names in sorted order.
func (r *RemoteRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.fns))
}

// Clear drops every reference.
func (r *RemoteRegistry) Clear() {
	r.mu.Lock()
	clear(r.fns)
	r.mu.Unlock()
}
