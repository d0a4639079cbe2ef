package seriesbackend

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/queryir"
	"github.com/roach88/zermelo/internal/querysql"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/series"
	"github.com/roach88/zermelo/internal/value"
)

// plan is a synthesized query. When empty is set the scope resolved to no
// ids and the query need not run.
type plan struct {
	sel   queryir.Select
	empty bool
}

func (b *Backend) plan(ctx context.Context, q filter.Query, proj queryir.Projection) (plan, error) {
	if err := q.Validate(); err != nil {
		return plan{}, err
	}
	class := q.Class
	sel := queryir.Select{From: class.Key, Projection: proj}

	var scope queryir.Predicate = queryir.True{}
	sortedScope := false
	if q.Scope != nil {
		p, ok, err := b.scopePredicate(ctx, *q.Scope)
		if err != nil {
			return plan{}, err
		}
		if !ok {
			sel.Filter = queryir.False{}
			return plan{sel: sel, empty: true}, nil
		}
		scope = p
		if q.Scope.Shape == record.ShapeSortedSet && class.Score != "" {
			// sorted memberships only hold scored records
			scope = queryir.AndOf(scope, queryir.NotNull{Field: class.Score})
			sortedScope = true
		}
	}

	var w queryir.Predicate = queryir.True{}
	for i, step := range q.Steps {
		var cand queryir.Predicate
		var op filter.Op
		switch s := step.(type) {
		case filter.SortStep:
			continue
		case filter.SetStep:
			op, cand = s.Op, predicates(class, s.Predicates)
		case filter.RangeStep:
			rp, err := rangePredicate(class, s.Range, scope, sortedScope)
			if err != nil {
				return plan{}, fmt.Errorf("step %d %s: %w", i, step, err)
			}
			op, cand = s.Op, queryir.AndOf(rp, predicates(class, s.Predicates))
		default:
			return plan{}, fmt.Errorf("step %d: unsupported step %T", i, step)
		}

		switch op {
		case filter.OpIntersect:
			w = queryir.AndOf(w, cand)
		case filter.OpUnion:
			w = queryir.OrOf(w, cand)
		case filter.OpDiff:
			w = queryir.AndNot(w, cand)
		default:
			return plan{}, fmt.Errorf("step %d: unknown operation %q", i, op)
		}
	}

	sel.Filter = queryir.AndOf(scope, w)
	if proj == queryir.ProjectIDs {
		if s, ok := q.Sort(); ok {
			sel.Order = &queryir.Order{Field: s.Attr, Desc: s.Order == filter.Desc}
		} else if sortedScope {
			// a sorted membership reads in score order
			sel.Order = &queryir.Order{Field: class.Score}
		}
	}
	return plan{sel: sel}, nil
}

// predicates conjoins one step's attribute predicates. A predicate that
// cannot match through an index never matches.
func predicates(class *record.Class, preds []filter.Predicate) queryir.Predicate {
	var out queryir.Predicate = queryir.True{}
	for _, p := range preds {
		if !filter.Indexed(class, p) {
			return queryir.False{}
		}
		out = queryir.AndOf(out, queryir.Equals{Field: p.Attr, Value: p.Value})
	}
	return out
}

// rangePredicate selects the members of the range source inside r. The
// source is the sorted scope when there is one, else every scored record
// of the class.
func rangePredicate(class *record.Class, r filter.Range, scope queryir.Predicate, sortedScope bool) (queryir.Predicate, error) {
	if class.Score == "" {
		return nil, fmt.Errorf("class %s has no score attribute", class.Name)
	}
	if r.Scored {
		return queryir.Between{Field: class.Score, Min: r.Min, Max: r.Max}, nil
	}

	rank := queryir.RankWithin{Field: class.Score, Start: r.Start, Limit: -1, Desc: r.Order == filter.Desc}
	if !r.Open() {
		rank.Limit = r.Finish - r.Start + 1
	}
	if sortedScope {
		rank.Filter = scope
	}
	return rank, nil
}

// scopePredicate reads the owner's id list with a one-row lookup. ok is
// false when the owner's measurement, its field or its live point is
// missing, which resolves to no ids.
func (b *Backend) scopePredicate(ctx context.Context, key record.Key) (queryir.Predicate, bool, error) {
	if key.ID == "" {
		return nil, false, fmt.Errorf("scope %s has no owner id", key)
	}
	lookup := queryir.Select{
		From:       key.Class,
		Projection: queryir.ProjectFields,
		Fields:     []string{key.Name},
		Filter:     queryir.Equals{Field: series.ColumnSeries, Value: value.NewString(series.Key(key.Class, key.ID))},
		Limit:      1,
	}
	text, err := b.compile(ctx, lookup)
	if err != nil {
		return nil, false, err
	}

	res, err := b.store.Query(ctx, text)
	if series.IsFieldNotFound(err) || errors.Is(err, series.ErrNoColumns) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scope lookup %s: %w", key, err)
	}
	if len(res.Series) == 0 || len(res.Series[0].Values) == 0 {
		return nil, false, nil
	}

	ids, err := decodeList(res.Series[0].Values[0][0])
	if err != nil {
		return nil, false, fmt.Errorf("scope %s: %w", key, err)
	}
	if len(ids) == 0 {
		return queryir.False{}, true, nil
	}
	if len(ids) > b.maxScopeIDs {
		return nil, false, fmt.Errorf("%w: %s holds %d ids, limit %d", ErrScopeTooLarge, key, len(ids), b.maxScopeIDs)
	}

	or := queryir.Or{Predicates: make([]queryir.Predicate, len(ids))}
	for i, id := range ids {
		or.Predicates[i] = queryir.Equals{Field: record.IDAttribute, Value: value.NewString(id)}
	}
	return or, true, nil
}

func (b *Backend) compile(ctx context.Context, sel queryir.Select) (string, error) {
	if res := queryir.Validate(sel); !res.IsPortable {
		b.logger.DebugContext(ctx, "query not portable", "from", sel.From, "warnings", res.Warnings)
	}
	text, err := querysql.Compile(sel)
	if err != nil {
		return "", fmt.Errorf("compile query on %s: %w", sel.From, err)
	}
	return text, nil
}

// run executes a main query. A measurement that was never written has no
// columns to look up and yields an empty result.
func (b *Backend) run(ctx context.Context, p plan) (series.Result, error) {
	if p.empty {
		return series.Result{}, nil
	}
	text, err := b.compile(ctx, p.sel)
	if err != nil {
		return series.Result{}, err
	}
	b.logger.DebugContext(ctx, "synthesized query", "sql", text)

	res, err := b.store.Query(ctx, text)
	if errors.Is(err, series.ErrNoColumns) {
		return series.Result{}, nil
	}
	return res, err
}

// Explain returns the SQL a chain query resolves to. A scope is looked up
// first, so Explain reads the store.
func (b *Backend) Explain(ctx context.Context, q filter.Query, proj queryir.Projection) (string, error) {
	p, err := b.plan(ctx, q, proj)
	if err != nil {
		return "", err
	}
	return b.compile(ctx, p.sel)
}

func idPattern(class *record.Class) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(class.Key) + "/(.+)$")
}

// IDs implements filter.Resolver.
func (b *Backend) IDs(ctx context.Context, q filter.Query) ([]string, error) {
	p, err := b.plan(ctx, q, queryir.ProjectIDs)
	if err != nil {
		return nil, err
	}
	res, err := b.run(ctx, p)
	if err != nil {
		return nil, err
	}

	pattern := idPattern(q.Class)
	var ids []string
	for _, s := range res.Series {
		if m := pattern.FindStringSubmatch(s.Key); m != nil {
			ids = append(ids, m[1])
		}
	}
	return ids, nil
}

// Count implements filter.Resolver.
func (b *Backend) Count(ctx context.Context, q filter.Query) (int, error) {
	p, err := b.plan(ctx, q, queryir.ProjectCount)
	if err != nil {
		return 0, err
	}
	res, err := b.run(ctx, p)
	if err != nil {
		return 0, err
	}

	pattern := idPattern(q.Class)
	n := 0
	for _, s := range res.Series {
		if !pattern.MatchString(s.Key) {
			continue
		}
		for _, row := range s.Values {
			c, ok := row[0].(int64)
			if !ok {
				return 0, fmt.Errorf("count for %s is %T", s.Key, row[0])
			}
			n += int(c)
		}
	}
	return n, nil
}

// Exists implements filter.Resolver as a count of the query narrowed to id.
func (b *Backend) Exists(ctx context.Context, q filter.Query, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	byID := filter.SetStep{
		Op:         filter.OpIntersect,
		Predicates: []filter.Predicate{{Attr: record.IDAttribute, Value: value.NewString(id)}},
	}
	n, err := b.Count(ctx, q.With(byID))
	return n > 0, err
}
