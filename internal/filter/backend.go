package filter

import (
	"context"
	"fmt"

	"github.com/roach88/zermelo/internal/lock"
	"github.com/roach88/zermelo/internal/record"
)

// Query is the immutable snapshot of a chain handed to a Resolver.
type Query struct {
	Class *record.Class
	Scope *record.Key
	Steps []Step
}

// Sort returns the last sort step, which orders the result.
func (q Query) Sort() (SortStep, bool) {
	for i := len(q.Steps) - 1; i >= 0; i-- {
		if s, ok := q.Steps[i].(SortStep); ok {
			return s, true
		}
	}
	return SortStep{}, false
}

// With returns a copy of q with step appended.
func (q Query) With(step Step) Query {
	steps := make([]Step, 0, len(q.Steps)+1)
	steps = append(steps, q.Steps...)
	q.Steps = append(steps, step)
	return q
}

// Validate checks that every attribute the steps name is declared on the
// class and that ranges are well formed.
func (q Query) Validate() error {
	if q.Class == nil {
		return fmt.Errorf("query has no class")
	}
	check := func(name string) error {
		if name == record.IDAttribute {
			return nil
		}
		if _, ok := q.Class.Attribute(name); !ok {
			return fmt.Errorf("%w: %s.%s", record.ErrUnknownAttribute, q.Class.Name, name)
		}
		return nil
	}
	for _, step := range q.Steps {
		switch s := step.(type) {
		case SortStep:
			if err := check(s.Attr); err != nil {
				return err
			}
		case SetStep:
			for _, p := range s.Predicates {
				if err := check(p.Attr); err != nil {
					return err
				}
			}
		case RangeStep:
			if err := s.Range.Validate(); err != nil {
				return err
			}
			for _, p := range s.Predicates {
				if err := check(p.Attr); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Resolver turns a Query into ids or a count using a backend's native
// capabilities.
type Resolver interface {
	// IDs returns the resolved ids, ordered when the query sorts.
	IDs(ctx context.Context, q Query) ([]string, error)

	// Count returns the cardinality of the resolved set.
	Count(ctx context.Context, q Query) (int, error)

	// Exists reports whether id is in the resolved set.
	Exists(ctx context.Context, q Query, id string) (bool, error)
}

// RecordStore is the record layer a chain loads from and destroys through.
type RecordStore interface {
	// Load returns the record, or nil and no error when it does not exist.
	Load(ctx context.Context, class *record.Class, id string) (*record.Record, error)

	// Destroy removes the record, cascading to its associations.
	Destroy(ctx context.Context, rec *record.Record) error
}

// Backend is everything a Chain needs from one backend family.
type Backend interface {
	Resolver
	RecordStore
	Locker() lock.Coordinator
	Registry() *record.Registry
}
