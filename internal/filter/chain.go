package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/zermelo/internal/record"
)

// Chain is a lazily resolved filter over one record class.
//
// Chaining methods append a step and return the same chain. Nothing touches
// the backend until a terminal method runs; terminal methods may be called
// repeatedly and re-resolve each time. A Chain is not safe for concurrent
// use.
type Chain struct {
	backend Backend
	class   *record.Class
	scope   *record.Key
	steps   []Step
	err     error
}

// New starts an unscoped chain over every record of class.
func New(backend Backend, class *record.Class) *Chain {
	return &Chain{backend: backend, class: class}
}

// Scoped starts a chain over the members of scope, typically the id
// collection of one record's association.
func Scoped(backend Backend, class *record.Class, scope record.Key) *Chain {
	return &Chain{backend: backend, class: class, scope: &scope}
}

// Class returns the class of the records the chain yields.
func (c *Chain) Class() *record.Class { return c.class }

// Err returns the first builder error, if any.
func (c *Chain) Err() error { return c.err }

// Query returns a snapshot of the chain for a resolver.
func (c *Chain) Query() Query {
	steps := make([]Step, len(c.steps))
	copy(steps, c.steps)
	return Query{Class: c.class, Scope: c.scope, Steps: steps}
}

func (c *Chain) recordBuilderError(err error) *Chain {
	if c.err == nil {
		c.err = fmt.Errorf("filter %s: %w", c.class.Name, err)
	}
	return c
}

func (c *Chain) appendStep(s Step) *Chain {
	if c.err != nil {
		return c
	}
	c.steps = append(c.steps, s)
	return c
}

// Sort orders the result by attr. The last sort step wins.
func (c *Chain) Sort(attr string, order Order) *Chain {
	if order == "" {
		order = Asc
	}
	if order != Asc && order != Desc {
		return c.recordBuilderError(fmt.Errorf("unknown sort order %q", order))
	}
	if attr != record.IDAttribute {
		if _, ok := c.class.Attribute(attr); !ok {
			return c.recordBuilderError(fmt.Errorf("%w: %s", record.ErrUnknownAttribute, attr))
		}
	}
	return c.appendStep(SortStep{Attr: attr, Order: order})
}

// Intersect keeps the records matching every pair in attrs.
func (c *Chain) Intersect(attrs Attrs) *Chain { return c.set(OpIntersect, attrs) }

// Union adds the records of the chain's base that match every pair in attrs.
func (c *Chain) Union(attrs Attrs) *Chain { return c.set(OpUnion, attrs) }

// Diff removes the records matching every pair in attrs.
func (c *Chain) Diff(attrs Attrs) *Chain { return c.set(OpDiff, attrs) }

func (c *Chain) set(op Op, attrs Attrs) *Chain {
	if c.err != nil {
		return c
	}
	if len(attrs) == 0 {
		return c.recordBuilderError(fmt.Errorf("%s needs at least one attribute", op))
	}
	preds, err := convertAttrs(c.class, attrs)
	if err != nil {
		return c.recordBuilderError(err)
	}
	return c.appendStep(SetStep{Op: op, Predicates: preds})
}

// IntersectRange keeps the members of the range source inside r that match
// attrs.
func (c *Chain) IntersectRange(r Range, attrs Attrs) *Chain { return c.ranged(OpIntersect, r, attrs) }

// UnionRange adds the members of the range source inside r that match attrs.
func (c *Chain) UnionRange(r Range, attrs Attrs) *Chain { return c.ranged(OpUnion, r, attrs) }

// DiffRange removes the members of the range source inside r that match
// attrs.
func (c *Chain) DiffRange(r Range, attrs Attrs) *Chain { return c.ranged(OpDiff, r, attrs) }

func (c *Chain) ranged(op Op, r Range, attrs Attrs) *Chain {
	if c.err != nil {
		return c
	}
	if err := r.Validate(); err != nil {
		return c.recordBuilderError(err)
	}
	if c.scope == nil || c.scope.Shape != record.ShapeSortedSet {
		if c.class.Score == "" {
			return c.recordBuilderError(fmt.Errorf("%s_range: class has no score attribute", op))
		}
	}
	preds, err := convertAttrs(c.class, attrs)
	if err != nil {
		return c.recordBuilderError(err)
	}
	return c.appendStep(RangeStep{Op: op, Range: r, Predicates: preds})
}

// lock runs fn under the class lock. When always is false and the chain has
// no steps, the lock is skipped.
func (c *Chain) lock(ctx context.Context, always bool, fn func(ctx context.Context) error) error {
	if !always && len(c.steps) == 0 {
		return fn(ctx)
	}
	return c.backend.Locker().Lock(ctx, []string{c.class.Name}, fn)
}

// Exists reports whether id is in the resolved set.
func (c *Chain) Exists(ctx context.Context, id string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	var ok bool
	err := c.lock(ctx, false, func(ctx context.Context) error {
		var err error
		ok, err = c.exists(ctx, id)
		return err
	})
	return ok, err
}

func (c *Chain) exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return c.backend.Exists(ctx, c.Query(), id)
}

// IDs returns the resolved ids; ordered only if the chain sorts.
func (c *Chain) IDs(ctx context.Context) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	var ids []string
	err := c.lock(ctx, false, func(ctx context.Context) error {
		var err error
		ids, err = c.backend.IDs(ctx, c.Query())
		return err
	})
	return ids, err
}

// Count returns the size of the resolved set without loading records.
func (c *Chain) Count(ctx context.Context) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	var n int
	err := c.lock(ctx, false, func(ctx context.Context) error {
		var err error
		n, err = c.backend.Count(ctx, c.Query())
		return err
	})
	return n, err
}

// Empty reports whether the resolved set has no members.
func (c *Chain) Empty(ctx context.Context) (bool, error) {
	n, err := c.Count(ctx)
	return n == 0, err
}

// FindByID loads id if it is in the resolved set. It returns nil and no
// error when it is not.
func (c *Chain) FindByID(ctx context.Context, id string) (*record.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	var rec *record.Record
	err := c.lock(ctx, true, func(ctx context.Context) error {
		var err error
		rec, err = c.findByID(ctx, id)
		return err
	})
	return rec, err
}

func (c *Chain) findByID(ctx context.Context, id string) (*record.Record, error) {
	ok, err := c.exists(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return c.backend.Load(ctx, c.class, id)
}

// MustFindByID is FindByID returning a *record.RecordNotFoundError when id is
// not in the resolved set.
func (c *Chain) MustFindByID(ctx context.Context, id string) (*record.Record, error) {
	rec, err := c.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &record.RecordNotFoundError{Class: c.class.Name, ID: id}
	}
	return rec, nil
}

// FindByIDs loads each id. The result is aligned with ids and holds nil for
// every id not in the resolved set.
func (c *Chain) FindByIDs(ctx context.Context, ids ...string) ([]*record.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]*record.Record, len(ids))
	err := c.lock(ctx, true, func(ctx context.Context) error {
		for i, id := range ids {
			rec, err := c.findByID(ctx, id)
			if err != nil {
				return err
			}
			out[i] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MustFindByIDs is FindByIDs returning a *record.RecordsNotFoundError that
// carries exactly the missing ids when any is missing.
func (c *Chain) MustFindByIDs(ctx context.Context, ids ...string) ([]*record.Record, error) {
	recs, err := c.FindByIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}
	var missing []string
	for i, rec := range recs {
		if rec == nil {
			missing = append(missing, ids[i])
		}
	}
	if len(missing) > 0 {
		return nil, &record.RecordsNotFoundError{Class: c.class.Name, IDs: missing}
	}
	return recs, nil
}

// All loads every record in the resolved set, in result order.
func (c *Chain) All(ctx context.Context) ([]*record.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	var recs []*record.Record
	err := c.lock(ctx, true, func(ctx context.Context) error {
		var err error
		recs, err = c.all(ctx)
		return err
	})
	return recs, err
}

func (c *Chain) all(ctx context.Context) ([]*record.Record, error) {
	ids, err := c.backend.IDs(ctx, c.Query())
	if err != nil {
		return nil, err
	}
	recs := make([]*record.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := c.backend.Load(ctx, c.class, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// ErrStop can be returned by an Each callback to end iteration early without
// an error.
var ErrStop = errors.New("stop iteration")

// Each loads the matching records one at a time and calls fn for each.
func (c *Chain) Each(ctx context.Context, fn func(*record.Record) error) error {
	if c.err != nil {
		return c.err
	}
	err := c.lock(ctx, true, func(ctx context.Context) error {
		ids, err := c.backend.IDs(ctx, c.Query())
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := c.backend.Load(ctx, c.class, id)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// Collect maps every matching record through fn.
func Collect[T any](ctx context.Context, c *Chain, fn func(*record.Record) (T, error)) ([]T, error) {
	var out []T
	err := c.Each(ctx, func(rec *record.Record) error {
		v, err := fn(rec)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Select returns the loaded records for which keep is true. The predicate
// runs in memory after loading.
func (c *Chain) Select(ctx context.Context, keep func(*record.Record) bool) ([]*record.Record, error) {
	recs, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindAll is Select.
func (c *Chain) FindAll(ctx context.Context, keep func(*record.Record) bool) ([]*record.Record, error) {
	return c.Select(ctx, keep)
}

// Reject returns the loaded records for which drop is false.
func (c *Chain) Reject(ctx context.Context, drop func(*record.Record) bool) ([]*record.Record, error) {
	return c.Select(ctx, func(rec *record.Record) bool { return !drop(rec) })
}

// DestroyAll loads and destroys every matching record and returns how many
// were destroyed. It holds the whole destroy scope of the class, so the
// backend's own destroy locks are taken re-entrantly.
func (c *Chain) DestroyAll(ctx context.Context) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	classes := c.backend.Registry().DestroyScope(c.class)

	n := 0
	err := c.backend.Locker().Lock(ctx, classes, func(ctx context.Context) error {
		recs, err := c.all(ctx)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := c.backend.Destroy(ctx, rec); err != nil {
				return fmt.Errorf("destroy %s %s: %w", c.class.Name, rec.ID(), err)
			}
			n++
		}
		return nil
	})
	return n, err
}
