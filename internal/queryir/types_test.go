package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/zermelo/internal/value"
)

func TestSelect_ImplementsQuery(t *testing.T) {
	var q Query = Select{From: "example", Projection: ProjectIDs}

	// Sealed interface - can type switch exhaustively
	switch q.(type) {
	case Select:
		// Expected
	default:
		t.Fatal("unexpected type")
	}
}

func TestPredicates_ImplementPredicate(t *testing.T) {
	preds := []Predicate{
		Equals{Field: "name", Value: value.NewString("Jane")},
		Between{Field: "rank", Min: 1, Max: 2},
		NotNull{Field: "rank"},
		RankWithin{Field: "rank", Limit: -1},
		And{},
		Or{},
		Not{Predicate: True{}},
		True{},
		False{},
	}
	assert.Len(t, preds, 9)
}

func TestConstantFolding(t *testing.T) {
	jane := Equals{Field: "name", Value: value.NewString("Jane")}
	fred := Equals{Field: "name", Value: value.NewString("Fred")}

	tests := []struct {
		name string
		got  Predicate
		want Predicate
	}{
		{"and true left", AndOf(True{}, jane), jane},
		{"and true right", AndOf(jane, True{}), jane},
		{"and nil", AndOf(nil, jane), jane},
		{"and false", AndOf(jane, False{}), False{}},
		{"and", AndOf(jane, fred), And{Predicates: []Predicate{jane, fred}}},
		{"or true", OrOf(jane, True{}), True{}},
		{"or false", OrOf(False{}, jane), jane},
		{"or", OrOf(jane, fred), Or{Predicates: []Predicate{jane, fred}}},
		{"and not false", AndNot(jane, False{}), jane},
		{"and not true", AndNot(jane, True{}), False{}},
		{"and not", AndNot(True{}, fred), Not{Predicate: fred}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
