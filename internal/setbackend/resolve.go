package setbackend

import (
	"context"
	"fmt"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// resolution tracks the temp keys created while resolving one query.
type resolution struct {
	b     *Backend
	q     filter.Query
	base  string
	temps []string
}

func (r *resolution) temp() string {
	k := record.TempKey()
	r.temps = append(r.temps, k)
	return k
}

func (r *resolution) cleanup() {
	if len(r.temps) > 0 {
		r.b.store.Del(r.temps...)
	}
}

// baseKey is the key the working set starts from.
func baseKey(q filter.Query) record.Key {
	if q.Scope != nil {
		return *q.Scope
	}
	return record.IDsKey(q.Class.Key)
}

// resolve applies every step and returns the name of the working set.
func (r *resolution) resolve() (string, error) {
	base := baseKey(r.q)
	r.base = base.String()
	if base.Shape == record.ShapeSortedSet {
		ids, err := r.b.members(base)
		if err != nil {
			return "", err
		}
		r.base = r.temp()
		if len(ids) > 0 {
			if _, err := r.b.store.SAdd(r.base, ids...); err != nil {
				return "", err
			}
		}
	}

	work := r.temp()
	if _, err := r.b.store.SInterStore(work, r.base); err != nil {
		return "", err
	}

	for i, step := range r.q.Steps {
		var err error
		switch s := step.(type) {
		case filter.SortStep:
			continue
		case filter.SetStep:
			err = r.setStep(work, s)
		case filter.RangeStep:
			err = r.rangeStep(work, s)
		default:
			err = fmt.Errorf("unsupported step %T", step)
		}
		if err != nil {
			return "", fmt.Errorf("step %d %s: %w", i, step, err)
		}
	}
	return work, nil
}

// predicateKeys returns the set names whose intersection matches preds.
// A predicate that cannot match through an index contributes a key that
// is never written, which reads as the empty set.
func (r *resolution) predicateKeys(preds []filter.Predicate) ([]string, error) {
	keys := make([]string, 0, len(preds))
	for _, p := range preds {
		switch {
		case !filter.Indexed(r.q.Class, p):
			keys = append(keys, r.temp())
		case p.Attr == record.IDAttribute:
			k := r.temp()
			if _, err := r.b.store.SAdd(k, value.Encode(p.Value)); err != nil {
				return nil, err
			}
			keys = append(keys, k)
		default:
			k, _ := r.b.index(r.q.Class, p.Attr).For(p.Value).Key()
			keys = append(keys, k.String())
		}
	}
	return keys, nil
}

func (r *resolution) setStep(work string, s filter.SetStep) error {
	keys, err := r.predicateKeys(s.Predicates)
	if err != nil {
		return err
	}
	return r.apply(s.Op, work, keys)
}

func (r *resolution) rangeStep(work string, s filter.RangeStep) error {
	source := record.ScoresKey(r.q.Class.Key)
	if r.q.Scope != nil && r.q.Scope.Shape == record.ShapeSortedSet {
		source = *r.q.Scope
	}

	desc := s.Range.Order == filter.Desc
	var members []string
	var err error
	if s.Range.Scored {
		members, err = r.b.store.ZRangeByScore(source.String(), s.Range.Min, s.Range.Max, desc)
	} else {
		members, err = r.b.store.ZRangeByRank(source.String(), s.Range.Start, s.Range.Finish, desc)
	}
	if err != nil {
		return err
	}

	ranged := r.temp()
	if len(members) > 0 {
		if _, err := r.b.store.SAdd(ranged, members...); err != nil {
			return err
		}
	}

	keys, err := r.predicateKeys(s.Predicates)
	if err != nil {
		return err
	}
	return r.apply(s.Op, work, append([]string{ranged}, keys...))
}

// apply combines work with the intersection of operands in place.
func (r *resolution) apply(op filter.Op, work string, operands []string) error {
	store := r.b.store
	var err error
	switch op {
	case filter.OpIntersect:
		_, err = store.SInterStore(work, append([]string{work}, operands...)...)
	case filter.OpUnion:
		cand := r.temp()
		if _, err = store.SInterStore(cand, append([]string{r.base}, operands...)...); err == nil {
			_, err = store.SUnionStore(work, work, cand)
		}
	case filter.OpDiff:
		if len(operands) == 1 {
			_, err = store.SDiffStore(work, work, operands[0])
			break
		}
		cand := r.temp()
		if _, err = store.SInterStore(cand, operands...); err == nil {
			_, err = store.SDiffStore(work, work, cand)
		}
	default:
		err = fmt.Errorf("unknown operation %q", op)
	}
	return err
}

// IDs implements filter.Resolver.
func (b *Backend) IDs(ctx context.Context, q filter.Query) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var ids []string
	if len(q.Steps) == 0 {
		var err error
		if ids, err = b.members(baseKey(q)); err != nil {
			return nil, err
		}
	} else {
		r := &resolution{b: b, q: q}
		defer r.cleanup()
		work, err := r.resolve()
		if err != nil {
			return nil, err
		}
		if ids, err = b.store.SMembers(work); err != nil {
			return nil, err
		}
	}

	if s, ok := q.Sort(); ok {
		if err := filter.OrderIDs(ids, s, b.attrLookup(q.Class, s.Attr)); err != nil {
			return nil, err
		}
	}

	b.logger.DebugContext(ctx, "resolved ids", "class", q.Class.Name, "steps", len(q.Steps), "ids", len(ids))
	return ids, nil
}

// Count implements filter.Resolver.
func (b *Backend) Count(ctx context.Context, q filter.Query) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	var n int
	var err error
	if len(q.Steps) == 0 {
		base := baseKey(q)
		if base.Shape == record.ShapeSortedSet {
			n, err = b.store.ZCard(base.String())
		} else {
			n, err = b.store.SCard(base.String())
		}
	} else {
		r := &resolution{b: b, q: q}
		defer r.cleanup()
		var work string
		if work, err = r.resolve(); err == nil {
			n, err = b.store.SCard(work)
		}
	}
	if err != nil {
		return 0, err
	}

	b.logger.DebugContext(ctx, "resolved count", "class", q.Class.Name, "steps", len(q.Steps), "count", n)
	return n, nil
}

// Exists implements filter.Resolver.
func (b *Backend) Exists(_ context.Context, q filter.Query, id string) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}
	if len(q.Steps) == 0 {
		base := baseKey(q)
		if base.Shape == record.ShapeSortedSet {
			_, ok, err := b.store.ZScore(base.String(), id)
			return ok, err
		}
		return b.store.SIsMember(base.String(), id)
	}

	r := &resolution{b: b, q: q}
	defer r.cleanup()
	work, err := r.resolve()
	if err != nil {
		return false, err
	}
	return b.store.SIsMember(work, id)
}

// attrLookup reads one attribute of stored records for sorting.
func (b *Backend) attrLookup(class *record.Class, attr string) func(id string) (value.Value, error) {
	decl, _ := class.Attribute(attr)
	return func(id string) (value.Value, error) {
		raw, ok, err := b.store.HGet(record.AttrsKey(class.Key, id).String(), attr)
		if err != nil || !ok {
			return value.Null{}, err
		}
		return value.Parse(decl.Type, raw)
	}
}
