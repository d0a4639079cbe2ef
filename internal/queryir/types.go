package queryir

import "github.com/roach88/zermelo/internal/value"

// Query is a sealed interface over query nodes.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate is a sealed interface over filter conditions.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Projection selects what a Select returns per series.
type Projection string

const (
	// ProjectIDs returns each matching id.
	ProjectIDs Projection = "ids"

	// ProjectCount returns a count per series; the total is their sum.
	ProjectCount Projection = "count"

	// ProjectFields returns the fields named in Select.Fields.
	ProjectFields Projection = "fields"
)

// Select reads the latest point of each series of a measurement.
//
// Semantics:
//
//	SELECT series, <projection> FROM <from>
//	WHERE <latest point> AND NOT <tombstone> AND <filter>
//	ORDER BY <order>, id LIMIT <limit>
//
// A nil Filter matches every series. Limit 0 means no limit.
type Select struct {
	From       string
	Projection Projection
	Fields     []string
	Filter     Predicate
	Order      *Order
	Limit      int
}

func (Select) queryNode() {}

// Order sorts a Select. Ties break by ascending id. NULLs sort first
// ascending and last descending.
type Order struct {
	Field string
	Desc  bool
}

// Equals matches field = Value. Value must be a string, symbol or bool,
// except on the id field, which takes its string form.
type Equals struct {
	Field string
	Value value.Value
}

// Between matches Min <= field <= Max.
type Between struct {
	Field string
	Min   float64
	Max   float64
}

// NotNull matches series whose field is set.
type NotNull struct {
	Field string
}

// RankWithin matches the ids ranked Start through Start+Limit-1 when the
// series matching Filter that have a Field value are ordered by Field, ties
// by id. Limit < 0 runs through the last rank. Desc ranks from the highest
// value and breaks ties by descending id.
type RankWithin struct {
	Field  string
	Start  int
	Limit  int
	Desc   bool
	Filter Predicate
}

// And matches when every predicate matches. An empty And is True.
type And struct {
	Predicates []Predicate
}

// Or matches when any predicate matches. An empty Or is False.
type Or struct {
	Predicates []Predicate
}

// Not matches when Predicate does not.
type Not struct {
	Predicate Predicate
}

// True matches everything.
type True struct{}

// False matches nothing.
type False struct{}

func (Equals) predicateNode()     {}
func (Between) predicateNode()    {}
func (NotNull) predicateNode()    {}
func (RankWithin) predicateNode() {}
func (And) predicateNode()        {}
func (Or) predicateNode()         {}
func (Not) predicateNode()        {}
func (True) predicateNode()       {}
func (False) predicateNode()      {}

// AndOf conjoins p and q, folding constants.
func AndOf(p, q Predicate) Predicate {
	switch {
	case isTrue(p):
		return q
	case isTrue(q):
		return p
	case isFalse(p) || isFalse(q):
		return False{}
	}
	return And{Predicates: []Predicate{p, q}}
}

// OrOf disjoins p and q, folding constants.
func OrOf(p, q Predicate) Predicate {
	switch {
	case isTrue(p) || isTrue(q):
		return True{}
	case isFalse(p):
		return q
	case isFalse(q):
		return p
	}
	return Or{Predicates: []Predicate{p, q}}
}

// AndNot removes q's matches from p, folding constants.
func AndNot(p, q Predicate) Predicate {
	switch {
	case isFalse(q):
		return p
	case isTrue(q):
		return False{}
	}
	return AndOf(p, Not{Predicate: q})
}

func isTrue(p Predicate) bool {
	if p == nil {
		return true
	}
	_, ok := p.(True)
	return ok
}

func isFalse(p Predicate) bool {
	_, ok := p.(False)
	return ok
}
