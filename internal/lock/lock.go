// Package lock provides scoped mutual exclusion over record classes.
//
// A Coordinator runs a function while holding every named class. Two
// implementations exist: Mutex for backends with in-place mutation, and Null
// for append-only backends where there is nothing to serialize.
package lock

import (
	"context"
	"slices"
	"sync"
)

// Coordinator acquires exclusive scope over classes for the duration of fn.
//
// Implementations release on every exit path, including when fn returns an
// error or panics. Naming the same class twice, or locking a class the
// calling scope already holds, must not deadlock.
type Coordinator interface {
	Lock(ctx context.Context, classes []string, fn func(ctx context.Context) error) error
}

// Null is the Coordinator of append-only backends. It calls fn directly.
type Null struct{}

// Lock implements Coordinator.
func (Null) Lock(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type heldKey struct{}

// held returns the classes the calling scope holds on m.
func held(ctx context.Context, m *Mutex) map[string]bool {
	if scopes, ok := ctx.Value(heldKey{}).(map[*Mutex]map[string]bool); ok {
		return scopes[m]
	}
	return nil
}

// withHeld returns a context recording that the scope holds classes on m in
// addition to what it held before.
func withHeld(ctx context.Context, m *Mutex, classes []string) context.Context {
	prev, _ := ctx.Value(heldKey{}).(map[*Mutex]map[string]bool)
	next := make(map[*Mutex]map[string]bool, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}

	set := make(map[string]bool, len(prev[m])+len(classes))
	for c := range prev[m] {
		set[c] = true
	}
	for _, c := range classes {
		set[c] = true
	}
	next[m] = set
	return context.WithValue(ctx, heldKey{}, next)
}

// Mutex is an in-process Coordinator with one mutex per class.
//
// Classes are acquired in sorted order so that overlapping scopes never
// deadlock against each other. Re-entrancy is tracked through the context
// passed to fn: nested Lock calls made with that context skip the classes
// already held.
type Mutex struct {
	mu      sync.Mutex
	classes map[string]*sync.Mutex
}

// NewMutex creates an empty Mutex coordinator.
func NewMutex() *Mutex {
	return &Mutex{classes: make(map[string]*sync.Mutex)}
}

func (m *Mutex) class(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.classes[name]
	if !ok {
		l = &sync.Mutex{}
		m.classes[name] = l
	}
	return l
}

// Lock implements Coordinator.
func (m *Mutex) Lock(ctx context.Context, classes []string, fn func(ctx context.Context) error) error {
	already := held(ctx, m)

	names := slices.Clone(classes)
	slices.Sort(names)
	names = slices.Compact(names)
	names = slices.DeleteFunc(names, func(c string) bool { return already[c] })

	if len(names) == 0 {
		return fn(ctx)
	}

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.class(names[j]).Unlock()
			}
			return err
		}
		m.class(name).Lock()
	}
	defer func() {
		for i := len(names) - 1; i >= 0; i-- {
			m.class(names[i]).Unlock()
		}
	}()

	return fn(withHeld(ctx, m, names))
}
