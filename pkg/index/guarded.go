// Package index holds the shared lookup structures over live entities.
// Every structure has one lock and callers only get scoped access to it.
package index

import "sync"

// Guarded is a value reachable only through a scoped critical section.
type Guarded[T any] struct {
	mu sync.Mutex
	v  T
}

func NewGuarded[T any](v T) *Guarded[T] { return &Guarded[T]{v: v} }

// With runs fn with the lock held. The pointer must not escape fn.
func (g *Guarded[T]) With(fn func(v *T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.v)
}

// Read runs fn with the lock held and returns its result.
func Read[T, R any](g *Guarded[T], fn func(v *T) R) R {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.v)
}
