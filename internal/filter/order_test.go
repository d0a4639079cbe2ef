package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zermelo/internal/value"
)

func TestOrderIDs(t *testing.T) {
	vals := map[string]value.Value{
		"1": value.Int(10),
		"2": value.Int(2),
		"3": value.Null{},
		"4": value.Int(2),
	}
	lookup := func(id string) (value.Value, error) { return vals[id], nil }

	ids := []string{"1", "2", "3", "4"}
	require.NoError(t, OrderIDs(ids, SortStep{Attr: "rank", Order: Asc}, lookup))
	assert.Equal(t, []string{"3", "2", "4", "1"}, ids)

	require.NoError(t, OrderIDs(ids, SortStep{Attr: "rank", Order: Desc}, lookup))
	assert.Equal(t, []string{"1", "2", "4", "3"}, ids)
}

func TestOrderIDsByID(t *testing.T) {
	ids := []string{"b", "c", "a"}
	require.NoError(t, OrderIDs(ids, SortStep{Attr: "id", Order: Asc}, nil))
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, OrderIDs(ids, SortStep{Attr: "id", Order: Desc}, nil))
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}
