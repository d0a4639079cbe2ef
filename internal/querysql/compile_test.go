package querysql

import (
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zermelo/internal/queryir"
	"github.com/roach88/zermelo/internal/value"
)

func eq(field string, v value.Value) queryir.Equals {
	return queryir.Equals{Field: field, Value: v}
}

func TestCompile_Golden(t *testing.T) {
	active := eq("active", value.Bool(true))
	john := eq("name", value.NewString("John"))
	fred := eq("name", value.NewString("Fred"))
	scope := queryir.Or{Predicates: []queryir.Predicate{
		eq("id", value.NewString("2")),
		eq("id", value.NewString("3")),
	}}

	tests := []struct {
		name  string
		query queryir.Select
	}{
		{
			name:  "ids_all",
			query: queryir.Select{From: "example", Projection: queryir.ProjectIDs},
		},
		{
			name: "count_union",
			query: queryir.Select{
				From:       "example",
				Projection: queryir.ProjectCount,
				Filter:     queryir.OrOf(queryir.AndOf(queryir.True{}, active), john),
			},
		},
		{
			name: "ids_diff_sorted",
			query: queryir.Select{
				From:       "example",
				Projection: queryir.ProjectIDs,
				Filter:     queryir.AndNot(active, fred),
				Order:      &queryir.Order{Field: "name", Desc: true},
			},
		},
		{
			name: "scope_lookup",
			query: queryir.Select{
				From:       "example",
				Projection: queryir.ProjectFields,
				Fields:     []string{"children_ids"},
				Filter:     eq("series", value.NewString("example/1")),
				Limit:      1,
			},
		},
		{
			name: "rank_within_scope",
			query: queryir.Select{
				From:       "child",
				Projection: queryir.ProjectIDs,
				Filter: queryir.AndOf(scope, queryir.RankWithin{
					Field:  "position",
					Start:  0,
					Limit:  2,
					Filter: scope,
				}),
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := Compile(tt.query)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(sql))
		})
	}
}

func TestCompile_Predicates(t *testing.T) {
	tests := []struct {
		name string
		pred queryir.Predicate
		want string
	}{
		{"false", queryir.False{}, "1 = 0"},
		{"empty and", queryir.And{}, "1 = 1"},
		{"empty or", queryir.Or{}, "1 = 0"},
		{"numeric id unquoted", eq("id", value.NewString("8")), `"id" = 8`},
		{"zero padded id quoted", eq("id", value.NewString("08")), `"id" = '08'`},
		{"text id quoted", eq("id", value.NewString("abc")), `"id" = 'abc'`},
		{"symbol", eq("colour", value.NewSymbol("red")), `"colour" = 'red'`},
		{"quote doubled", eq("name", value.NewString("O'Brien")), `"name" = 'O''Brien'`},
		{"backslash kept", eq("name", value.NewString(`a\b`)), `"name" = 'a\b'`},
		{"between", queryir.Between{Field: "rank", Min: 1.5, Max: 3}, `"rank" BETWEEN 1.5 AND 3`},
		{"between unbounded", queryir.Between{Field: "rank", Min: math.Inf(-1), Max: math.Inf(1)}, `"rank" BETWEEN -9e999 AND 9e999`},
		{"not null", queryir.NotNull{Field: "rank"}, `"rank" IS NOT NULL`},
		{"nested", queryir.OrOf(queryir.AndOf(eq("a", value.Bool(true)), eq("b", value.Bool(false))), eq("c", value.Bool(true))),
			`(("a" = 'true') AND ("b" = 'false')) OR ("c" = 'true')`},
		{"quoted identifier", queryir.NotNull{Field: `we"ird`}, `"we""ird" IS NOT NULL`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &compiler{from: "example"}
			got, err := c.predicate(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_RankWithinDescOpen(t *testing.T) {
	c := &compiler{from: "example"}
	got, err := c.predicate(queryir.RankWithin{Field: "rank", Start: 1, Limit: -1, Desc: true})
	require.NoError(t, err)
	assert.Equal(t,
		`"id" IN (SELECT "id" FROM "example" WHERE "seq" IN (SELECT MAX("seq") FROM "example" GROUP BY "series") AND "_deleted" = 0 AND "rank" IS NOT NULL ORDER BY "rank" DESC, "id" DESC LIMIT -1 OFFSET 1)`,
		got)
}

func TestCompile_OrderByID(t *testing.T) {
	sql, err := Compile(queryir.Select{
		From:       "example",
		Projection: queryir.ProjectIDs,
		Order:      &queryir.Order{Field: "id", Desc: true},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `ORDER BY "id" DESC`)
	assert.NotContains(t, sql, `"id" DESC, "id"`)
}

func TestCompile_BackslashLiteral(t *testing.T) {
	// SQLite string literals have no escape character, so backslashes pass
	// through and only single quotes are doubled
	sql, err := Compile(queryir.Select{
		From:       "example",
		Projection: queryir.ProjectIDs,
		Filter:     eq("name", value.NewString(`C:\toys\o'clock\`)),
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `AND ("name" = 'C:\toys\o''clock\')`)
	assert.NotContains(t, sql, `\\`)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query queryir.Query
		want  string
	}{
		{"nil", nil, "nil query"},
		{"no measurement", queryir.Select{Projection: queryir.ProjectIDs}, "needs a measurement"},
		{"no projection", queryir.Select{From: "example"}, "unknown projection"},
		{"no fields", queryir.Select{From: "example", Projection: queryir.ProjectFields}, "at least one field"},
		{"negative limit", queryir.Select{From: "example", Projection: queryir.ProjectIDs, Limit: -1}, "negative limit"},
		{"list literal", queryir.Select{From: "example", Projection: queryir.ProjectIDs,
			Filter: eq("name", value.List{"a"})}, "cannot compare"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.query)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `'Jane'`, QuoteString("Jane"))
	assert.Equal(t, `'it''s'`, QuoteString("it's"))
	assert.Equal(t, `''''`, QuoteString("'"))
	assert.Equal(t, `''`, QuoteString(""))
	assert.Equal(t, `'a\b\'`, QuoteString(`a\b\`))
}
