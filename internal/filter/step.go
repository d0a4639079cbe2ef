package filter

import (
	"fmt"
	"sort"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// Op is the set-algebra operation of a step.
type Op string

const (
	OpIntersect Op = "intersect"
	OpUnion     Op = "union"
	OpDiff      Op = "diff"
)

// ParseOp parses an operation name.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpIntersect, OpUnion, OpDiff:
		return op, nil
	default:
		return "", fmt.Errorf("unknown step operation %q", s)
	}
}

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseOrder parses a sort direction; empty means Asc.
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case "":
		return Asc, nil
	case Asc, Desc:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Attrs maps attribute names to required values. Several pairs in one step
// form a conjunction. The reserved name "id" matches the record id.
type Attrs map[string]any

// Predicate is one converted attribute requirement of a step.
type Predicate struct {
	Attr  string
	Value value.Value
}

// Step is one immutable filter operation. The concrete types are SortStep,
// SetStep and RangeStep.
type Step interface {
	step()
	fmt.Stringer
}

// SortStep orders the final result by Attr.
type SortStep struct {
	Attr  string
	Order Order
}

// SetStep combines the working set with the records matching every
// predicate.
type SetStep struct {
	Op         Op
	Predicates []Predicate
}

// RangeStep combines the working set with the members of the range source
// inside Range that also match every predicate.
type RangeStep struct {
	Op         Op
	Range      Range
	Predicates []Predicate
}

func (SortStep) step()  {}
func (SetStep) step()   {}
func (RangeStep) step() {}

func (s SortStep) String() string {
	return fmt.Sprintf("sort(%s %s)", s.Attr, s.Order)
}

func (s SetStep) String() string {
	return fmt.Sprintf("%s(%s)", s.Op, formatPredicates(s.Predicates))
}

func (s RangeStep) String() string {
	if len(s.Predicates) == 0 {
		return fmt.Sprintf("%s_range(%s)", s.Op, s.Range)
	}
	return fmt.Sprintf("%s_range(%s; %s)", s.Op, s.Range, formatPredicates(s.Predicates))
}

func formatPredicates(preds []Predicate) string {
	out := ""
	for i, p := range preds {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%q", p.Attr, value.Encode(p.Value))
	}
	return out
}

// convertAttrs turns caller attrs into predicates sorted by attribute name,
// coercing each value to the declared attribute type.
func convertAttrs(class *record.Class, attrs Attrs) ([]Predicate, error) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	preds := make([]Predicate, 0, len(names))
	for _, name := range names {
		v, err := value.FromAny(attrs[name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", class.Name, name, err)
		}

		if name == record.IDAttribute {
			if value.IsNull(v) {
				return nil, fmt.Errorf("%s.id: %w", class.Name, record.ErrInvalidID)
			}
			preds = append(preds, Predicate{Attr: name, Value: value.NewString(value.Encode(v))})
			continue
		}

		attr, ok := class.Attribute(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", record.ErrUnknownAttribute, class.Name, name)
		}
		cv, err := value.Coerce(attr.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", class.Name, name, err)
		}
		preds = append(preds, Predicate{Attr: name, Value: cv})
	}
	return preds, nil
}

// Indexed reports whether p can match through a secondary index. Predicates
// on the id always can; others need an indexed attribute of an indexable
// type and an indexable value.
func Indexed(class *record.Class, p Predicate) bool {
	if p.Attr == record.IDAttribute {
		return true
	}
	attr, ok := class.Attribute(p.Attr)
	if !ok || !attr.Indexed || !value.IndexableType(attr.Type) {
		return false
	}
	return value.Indexable(p.Value)
}
