package record

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownClass is returned when a class name is not registered.
var ErrUnknownClass = errors.New("unknown class")

// Registry holds the declared classes of one schema.
//
// A Registry is immutable after NewRegistry returns and safe for concurrent
// use.
type Registry struct {
	classes map[string]*Class
	byKey   map[string]*Class
	names   []string
}

// NewRegistry validates classes, resolves association targets and returns
// the registry. Class names and storage keys must be unique.
func NewRegistry(classes ...*Class) (*Registry, error) {
	r := &Registry{
		classes: make(map[string]*Class, len(classes)),
		byKey:   make(map[string]*Class, len(classes)),
	}

	for _, c := range classes {
		c.finalize()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.classes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate class %q", c.Name)
		}
		if other, dup := r.byKey[c.Key]; dup {
			return nil, fmt.Errorf("classes %s and %s share storage key %q", other.Name, c.Name, c.Key)
		}
		r.classes[c.Name] = c
		r.byKey[c.Key] = c
		r.names = append(r.names, c.Name)
	}
	sort.Strings(r.names)

	for _, name := range r.names {
		c := r.classes[name]
		for _, assoc := range c.Associations {
			target, ok := r.classes[assoc.Class]
			if !ok {
				return nil, fmt.Errorf("class %s: association %q targets %w %q", c.Name, assoc.Name, ErrUnknownClass, assoc.Class)
			}
			if assoc.Kind == HasSortedSet && target.Score == "" {
				return nil, fmt.Errorf("class %s: has_sorted_set %q needs a score attribute on %s", c.Name, assoc.Name, target.Name)
			}
			if assoc.Inverse == "" {
				if assoc.Kind == HasSortedSet {
					return nil, fmt.Errorf("class %s: has_sorted_set %q needs an inverse belongs_to", c.Name, assoc.Name)
				}
				continue
			}
			inv, ok := target.Association(assoc.Inverse)
			if !ok {
				return nil, fmt.Errorf("class %s: association %q names missing inverse %s.%s", c.Name, assoc.Name, target.Name, assoc.Inverse)
			}
			if inv.Class != c.Name {
				return nil, fmt.Errorf("class %s: inverse %s.%s targets %s", c.Name, target.Name, assoc.Inverse, inv.Class)
			}
			if assoc.Collection() == inv.Collection() {
				return nil, fmt.Errorf("class %s: association %q and inverse %s.%s must pair a collection with belongs_to", c.Name, assoc.Name, target.Name, assoc.Inverse)
			}
		}
	}

	return r, nil
}

// Class returns the class registered under name.
func (r *Registry) Class(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// ClassByKey returns the class whose storage namespace is key.
func (r *Registry) ClassByKey(key string) (*Class, bool) {
	c, ok := r.byKey[key]
	return c, ok
}

// Lookup is Class with a wrapped ErrUnknownClass on miss.
func (r *Registry) Lookup(name string) (*Class, error) {
	c, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownClass, name)
	}
	return c, nil
}

// Classes returns every class sorted by name.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.classes[name])
	}
	return out
}

// Inverse returns the association on the target class pairing with assoc of
// c. Inverses may be declared on either side.
func (r *Registry) Inverse(c *Class, assoc Association) (Association, bool) {
	target, ok := r.classes[assoc.Class]
	if !ok {
		return Association{}, false
	}
	if assoc.Inverse != "" {
		return target.Association(assoc.Inverse)
	}
	for _, other := range target.Associations {
		if other.Class == c.Name && other.Inverse == assoc.Name {
			return other, true
		}
	}
	return Association{}, false
}

// Referrers returns, for every class, the collection associations that hold
// ids of c.
func (r *Registry) Referrers(c *Class) map[*Class][]Association {
	out := make(map[*Class][]Association)
	for _, name := range r.names {
		owner := r.classes[name]
		for _, assoc := range owner.Associations {
			if assoc.Collection() && assoc.Class == c.Name {
				out[owner] = append(out[owner], assoc)
			}
		}
	}
	return out
}

// Target returns the class an association of c points to.
func (r *Registry) Target(c *Class, assoc string) (*Class, Association, error) {
	a, ok := c.Association(assoc)
	if !ok {
		return nil, Association{}, fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, c.Name, assoc)
	}
	target, err := r.Lookup(a.Class)
	if err != nil {
		return nil, Association{}, err
	}
	return target, a, nil
}

// DestroyScope returns the sorted names of every class a cascading destroy
// of c may touch: c, the classes reachable through its associations and
// the classes whose collections can hold any of them. It is closed under
// itself, so a destroy nested inside the scope never needs another class.
func (r *Registry) DestroyScope(c *Class) []string {
	seen := map[string]bool{c.Name: true}
	queue := []*Class{c}
	visit := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if next, ok := r.classes[name]; ok {
			queue = append(queue, next)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, assoc := range cur.Associations {
			visit(assoc.Class)
		}
		for owner := range r.Referrers(cur) {
			visit(owner.Name)
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
