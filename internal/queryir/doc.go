// Package queryir provides the abstract query representation the series
// backend builds from a filter chain before compiling it to SQL.
//
// ARCHITECTURE:
//
//	[filter.Query] → [Query IR] → [querysql] → [series store]
//
// A Select reads the latest non-tombstoned point of every series in one
// measurement and projects either the ids, a per-series count, or named
// fields. Its Filter is a predicate tree:
//
//	Equals       field = literal
//	Between      min <= field <= max
//	NotNull      field IS NOT NULL
//	RankWithin   id within a rank window of the score order
//	And, Or, Not boolean connectives
//	True, False  constants
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backend compilers can
// switch over them exhaustively.
//
// NULL SEMANTICS:
//
// A predicate over a NULL field is false, and Not of such a predicate is
// true: Not means "not matched", which is what set difference needs.
// Compilers must preserve this even where the target language has three
// valued logic.
package queryir
