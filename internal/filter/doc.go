// Package filter implements the backend-neutral filter chain.
//
// A Chain accumulates Steps against one record class, optionally scoped by an
// association key, and resolves them only when a terminal method runs:
//
//	ids, err := filter.New(backend, example).
//	    Intersect(filter.Attrs{"active": true}).
//	    Union(filter.Attrs{"name": "John"}).
//	    IDs(ctx)
//
// Resolution is delegated to the backend's Resolver. Every resolver applies
// the same set semantics, left to right, starting from the base set (the
// scope's members, or every id of the class):
//
//	intersect  W ∩ (base ∩ ⋂ preds)
//	union      W ∪ (base ∩ ⋂ preds)
//	diff       W − ⋂ preds
//
// Range steps compute their candidate set from the range source (the scope
// when it is a sorted set, otherwise the class score set) bounded by rank or
// score, narrowed by their predicates, and combine it with W the same way.
// Sort steps only order the final result; the last one wins.
//
// Builder errors (invalid ranges, values that cannot be converted to the
// attribute type, unknown attributes) are recorded on the chain and returned
// by the first terminal method called.
package filter
