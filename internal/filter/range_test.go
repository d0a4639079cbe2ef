package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeValidate(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		ok   bool
	}{
		{"rank", ByRank(0, 3), true},
		{"open rank", ByRank(2, -1), true},
		{"single", ByRank(1, 1), true},
		{"negative start", ByRank(-1, 3), false},
		{"finish before start", ByRank(3, 1), false},
		{"score", ByScore(-2.5, 4), true},
		{"point score", ByScore(1, 1), true},
		{"inverted score", ByScore(4, 1), false},
		{"nan", ByScore(math.NaN(), 1), false},
		{"desc", ByRank(0, 1).Desc(), true},
		{"bad order", Range{Order: "up"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRangeContains(t *testing.T) {
	r := ByRank(1, 2)
	assert.False(t, r.Contains(0, 0))
	assert.True(t, r.Contains(1, 0))
	assert.True(t, r.Contains(2, 0))
	assert.False(t, r.Contains(3, 0))

	open := ByRank(1, -1)
	assert.True(t, open.Open())
	assert.True(t, open.Contains(100, 0))

	s := ByScore(1.5, 3)
	assert.False(t, s.Open())
	assert.True(t, s.Contains(0, 1.5))
	assert.True(t, s.Contains(99, 3))
	assert.False(t, s.Contains(0, 3.01))
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "rank 0..end", ByRank(0, -1).String())
	assert.Equal(t, "rank 1..4 desc", ByRank(1, 4).Desc().String())
	assert.Equal(t, "score 0.5..10", ByScore(0.5, 10).String())
}

func TestParseOpOrder(t *testing.T) {
	op, err := ParseOp("union")
	assert.NoError(t, err)
	assert.Equal(t, OpUnion, op)
	_, err = ParseOp("xor")
	assert.Error(t, err)

	o, err := ParseOrder("")
	assert.NoError(t, err)
	assert.Equal(t, Asc, o)
	o, err = ParseOrder("desc")
	assert.NoError(t, err)
	assert.Equal(t, Desc, o)
	_, err = ParseOrder("down")
	assert.Error(t, err)
}
