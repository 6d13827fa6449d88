package queue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry hands out named queues so loops declared separately can share them.
type Registry[T any] struct {
	mu     sync.RWMutex
	queues map[string]*Queue[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{queues: map[string]*Queue[T]{}}
}

// Declare creates the named queue; declaring the same name twice is an error.
func (r *Registry[T]) Declare(name string, capacity int) (*Queue[T], error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("queue: name required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.queues[name]; dup {
		return nil, fmt.Errorf("queue: duplicate %q", name)
	}
	q := New[T](name, capacity)
	r.queues[name] = q
	return q, nil
}

// Get returns the named queue, creating it with DefaultCapacity on first use.
func (r *Registry[T]) Get(name string) *Queue[T] {
	r.mu.RLock()
	q, ok := r.queues[name]
	r.mu.RUnlock()
	if ok {
		return q
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok = r.queues[name]; ok {
		return q
	}
	q = New[T](name, DefaultCapacity)
	r.queues[name] = q
	return q
}

// Lookup returns the named queue without creating it.
func (r *Registry[T]) Lookup(name string) (*Queue[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	return q, ok
}

func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.queues))
	for n := range r.queues {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
