package queryir

import (
	"fmt"
	"regexp"

	"github.com/roach88/zermelo/internal/value"
)

// ValidationResult contains portability analysis of a query.
//
// A portable query uses only safe identifiers and constructs whose meaning
// does not depend on the target engine.
type ValidationResult struct {
	// IsPortable indicates the query raised no warnings.
	IsPortable bool

	// Warnings lists the problems found, in traversal order.
	Warnings []string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a query for constructs that are legal but suspicious:
//  1. Empty Or - always false, usually a construction bug
//  2. Float equality - exact comparison of floats is engine dependent
//  3. Unsafe identifiers - names outside [A-Za-z_][A-Za-z0-9_]*
//  4. Empty field projections and negative limits
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validateQuery(query)

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) ident(kind, name string) {
	if !identPattern.MatchString(name) {
		v.addWarning("Unsafe %s name %q - identifiers should match %s", kind, name, identPattern)
	}
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addWarning("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	default:
		v.addWarning("Unknown query type: %T - portability cannot be verified", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.ident("measurement", sel.From)

	switch sel.Projection {
	case ProjectIDs, ProjectCount:
	case ProjectFields:
		if len(sel.Fields) == 0 {
			v.addWarning("Field projection with no fields")
		}
		for _, f := range sel.Fields {
			v.ident("field", f)
		}
	default:
		v.addWarning("Unknown projection %q", sel.Projection)
	}

	if sel.Order != nil {
		v.ident("field", sel.Order.Field)
	}
	if sel.Limit < 0 {
		v.addWarning("Negative limit %d", sel.Limit)
	}

	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Equals:
		v.ident("field", pred.Field)
		if _, isFloat := pred.Value.(value.Float); isFloat {
			v.addWarning("Field '%s' compared to a float - exact float equality is not portable", pred.Field)
		}
		if value.IsNull(pred.Value) {
			v.addWarning("Field '%s' compared to NULL - use NotNull", pred.Field)
		}
	case Between:
		v.ident("field", pred.Field)
	case NotNull:
		v.ident("field", pred.Field)
	case RankWithin:
		v.ident("field", pred.Field)
		if pred.Start < 0 {
			v.addWarning("RankWithin on '%s' starts at negative rank %d", pred.Field, pred.Start)
		}
		v.validatePredicate(pred.Filter)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		if len(pred.Predicates) == 0 {
			v.addWarning("Empty Or - matches nothing, use False")
		}
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	case True, False:
	default:
		v.addWarning("Unknown predicate type: %T - portability cannot be verified", p)
	}
}
