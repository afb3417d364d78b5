package worklet

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"
)

// SharedValues holds values readable and writable from both runtimes.
// Values are stored as exported Go data and copied on the way in and out, so
// neither runtime ever holds a live reference into the other's data.
type SharedValues struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSharedValues creates an empty registry.
func NewSharedValues() *SharedValues {
	return &SharedValues{values: make(map[string]any)}
}

// Make stores v under key unless key already exists. It returns the value now
// held under key and whether it was created.
func (s *SharedValues) Make(key string, v any) (any, bool, error) {
	if err := checkShareable(v); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.values[key]; ok {
		return cloneShareable(cur), false, nil
	}
	s.values[key] = cloneShareable(v)
	return cloneShareable(v), true, nil
}

// Get returns a copy of the value under key.
func (s *SharedValues) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	return cloneShareable(v), true
}

// Set stores v under key, replacing any existing value.
func (s *SharedValues) Set(key string, v any) error {
	if err := checkShareable(v); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = cloneShareable(v)
	s.mu.Unlock()
	return nil
}

// Keys returns the registered keys in sorted order.
func (s *SharedValues) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Clear removes every value.
func (s *SharedValues) Clear() {
	s.mu.Lock()
	clear(s.values)
	s.mu.Unlock()
}

// checkShareable accepts the plain data shapes goja exports: primitives,
// strings, dates, and maps and slices of those. goja keeps reference cycles
// when exporting, so a value that contains itself is rejected.
func checkShareable(v any) error {
	return checkShareableOn(v, make(map[uintptr]struct{}))
}

// path holds the maps and slices between the root and v.
func checkShareableOn(v any, path map[uintptr]struct{}) error {
	switch t := v.(type) {
	case nil, bool, string, int64, float64, int, time.Time:
		return nil
	case map[string]any:
		leave, err := enterShareable(path, t)
		if err != nil {
			return err
		}
		defer leave()
		for k, e := range t {
			if err := checkShareableOn(e, path); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	case []any:
		leave, err := enterShareable(path, t)
		if err != nil {
			return err
		}
		defer leave()
		for i, e := range t {
			if err := checkShareableOn(e, path); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrIncompatibleValue, v)
	}
}

func enterShareable(path map[uintptr]struct{}, container any) (func(), error) {
	p := reflect.ValueOf(container).Pointer()
	if _, onPath := path[p]; onPath {
		return nil, fmt.Errorf("%w: value contains itself", ErrIncompatibleValue)
	}
	path[p] = struct{}{}
	return func() { delete(path, p) }, nil
}

// cloneShareable deep-copies a value that passed checkShareable.
func cloneShareable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneShareable(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneShareable(e)
		}
		return out
	default:
		return v
	}
}
