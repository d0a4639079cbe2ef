package setstore

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *Store { return New(Options{}) }

func TestSetBasics(t *testing.T) {
	s := newStore()

	n, err := s.SAdd("a", "1", "2", "3", "2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := s.SIsMember("a", "2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SIsMember("a", "9")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = s.SRem("a", "2", "9")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err := s.SMembers("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, members)

	card, err := s.SCard("a")
	require.NoError(t, err)
	assert.Equal(t, 2, card)
}

func TestMissingKeyIsEmpty(t *testing.T) {
	s := newStore()

	members, err := s.SMembers("nope")
	require.NoError(t, err)
	assert.Empty(t, members)

	n, err := s.SCard("nope")
	require.NoError(t, err)
	assert.Zero(t, n)

	ranked, err := s.ZRangeByRank("nope", 0, -1, false)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	h, err := s.HGetAll("nope")
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.False(t, s.Exists("nope"))
	assert.Equal(t, TypeNone, s.Type("nope"))
}

func TestEmptySetIsDeleted(t *testing.T) {
	s := newStore()
	_, err := s.SAdd("a", "1")
	require.NoError(t, err)
	_, err = s.SRem("a", "1")
	require.NoError(t, err)
	assert.False(t, s.Exists("a"))
}

func TestWrongType(t *testing.T) {
	s := newStore()
	_, err := s.SAdd("set", "1")
	require.NoError(t, err)
	_, err = s.ZAdd("zset", 1, "1")
	require.NoError(t, err)
	require.NoError(t, s.HSet("hash", map[string]string{"f": "v"}))

	_, err = s.ZAdd("set", 1, "x")
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = s.SAdd("zset", "x")
	assert.ErrorIs(t, err, ErrWrongType)
	assert.ErrorIs(t, s.HSet("set", map[string]string{"f": "v"}), ErrWrongType)
	_, err = s.SInterStore("tmp", "set", "hash")
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = s.SUnionStore("zset", "set")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestSMove(t *testing.T) {
	s := newStore()
	_, err := s.SAdd("from", "1", "2")
	require.NoError(t, err)

	moved, err := s.SMove("from", "to", "1")
	require.NoError(t, err)
	assert.True(t, moved)

	from, _ := s.SMembers("from")
	to, _ := s.SMembers("to")
	assert.Equal(t, []string{"2"}, from)
	assert.Equal(t, []string{"1"}, to)

	moved, err = s.SMove("from", "to", "7")
	require.NoError(t, err)
	assert.False(t, moved)
	to, _ = s.SMembers("to")
	assert.Equal(t, []string{"1"}, to)
}

func TestSetAlgebra(t *testing.T) {
	s := newStore()
	_, _ = s.SAdd("active", "1", "3")
	_, _ = s.SAdd("john", "2")
	_, _ = s.SAdd("fred", "3")
	_, _ = s.SAdd("all", "1", "2", "3")

	n, err := s.SInterStore("w", "all", "active")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SUnionStore("w", "w", "john")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.SDiffStore("w", "w", "fred")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	w, _ := s.SMembers("w")
	assert.Equal(t, []string{"1", "2"}, w)

	n, err = s.SInterStore("w", "w", "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, s.Exists("w"))

	// operands are not modified
	active, _ := s.SMembers("active")
	assert.Equal(t, []string{"1", "3"}, active)
}

func TestSortedSet(t *testing.T) {
	s := newStore()
	for member, score := range map[string]float64{"a": 3, "b": 1, "c": 2, "d": 2} {
		added, err := s.ZAdd("z", score, member)
		require.NoError(t, err)
		assert.True(t, added)
	}

	added, err := s.ZAdd("z", 5, "a")
	require.NoError(t, err)
	assert.False(t, added)

	score, ok, err := s.ZScore("z", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5.0, score)

	all, err := s.ZRangeByRank("z", 0, -1, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "a"}, all)

	top, err := s.ZRangeByRank("z", 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, top)

	mid, err := s.ZRangeByRank("z", 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, mid)

	past, err := s.ZRangeByRank("z", 9, 12, false)
	require.NoError(t, err)
	assert.Empty(t, past)

	scored, err := s.ZRangeByScore("z", 2, 5, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "a"}, scored)

	n, err := s.ZRem("z", "c", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	card, _ := s.ZCard("z")
	assert.Equal(t, 3, card)

	members, err := s.ZMembers("z")
	require.NoError(t, err)
	assert.Equal(t, []ZMember{{"b", 1}, {"d", 2}, {"a", 5}}, members)
}

func TestZRangeByScoreBounds(t *testing.T) {
	s := newStore()
	for member, score := range map[string]float64{"neg": -2, "zero": 0, "one": 1, "tie1": 3, "tie2": 3, "big": 10} {
		_, err := s.ZAdd("z", score, member)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		min, max float64
		reverse  bool
		want     []string
	}{
		{"zero_min", 0, 3, false, []string{"zero", "one", "tie1", "tie2"}},
		{"zero_min_reverse", 0, 3, true, []string{"tie2", "tie1", "one", "zero"}},
		{"negative", -5, 0, false, []string{"neg", "zero"}},
		{"zero_max_reverse", -5, 0, true, []string{"zero", "neg"}},
		{"single_score", 3, 3, false, []string{"tie1", "tie2"}},
		{"open", math.Inf(-1), math.Inf(1), false, []string{"neg", "zero", "one", "tie1", "tie2", "big"}},
		{"between_scores", 4, 9, false, nil},
		{"above_all", 11, 20, false, nil},
		{"inverted", 5, 1, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ZRangeByScore("z", tt.min, tt.max, tt.reverse)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ranked, err := s.ZRangeByRank("z", 1, 3, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"tie2", "tie1", "one"}, ranked)
}

func TestHash(t *testing.T) {
	s := newStore()
	require.NoError(t, s.HSet("h", map[string]string{"name": "Jane", "active": "true"}))
	require.NoError(t, s.HSet("h", map[string]string{"name": "Janet"}))

	v, ok, err := s.HGet("h", "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Janet", v)

	all, err := s.HGetAll("h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Janet", "active": "true"}, all)

	all["name"] = "mutated"
	v, _, _ = s.HGet("h", "name")
	assert.Equal(t, "Janet", v, "HGetAll returns a copy")

	n, err := s.HDel("h", "name", "active")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, s.Exists("h"))
}

func TestKeysAndDel(t *testing.T) {
	s := newStore()
	_, _ = s.SAdd("example:ids", "1")
	_, _ = s.ZAdd("example:by_score", 1, "1")
	_ = s.HSet("example:1:attrs", map[string]string{"a": "b"})
	_, _ = s.SAdd("child:ids", "1")

	assert.Equal(t, []string{"example:1:attrs", "example:by_score", "example:ids"}, s.Keys("example:"))
	assert.Equal(t, 2, s.Del("example:ids", "example:1:attrs", "missing"))
	assert.Equal(t, []string{"example:by_score"}, s.Keys("example:"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newStore()
	_, _ = s.SAdd("example:ids", "1", "2", "3")
	_, _ = s.SAdd("example:by_active:true", "1", "3")
	_, _ = s.ZAdd("example:by_score", 2.5, "1")
	_, _ = s.ZAdd("example:by_score", -1, "2")
	_ = s.HSet("example:1:attrs", map[string]string{"name": "Jane Doe"})

	var buf bytes.Buffer
	require.NoError(t, s.WriteSnapshot(&buf))

	loaded := newStore()
	_, _ = loaded.SAdd("stale", "x")
	require.NoError(t, loaded.ReadSnapshot(&buf))

	assert.False(t, loaded.Exists("stale"))
	assert.Equal(t, s.Keys(""), loaded.Keys(""))

	ids, _ := loaded.SMembers("example:ids")
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	ranked, _ := loaded.ZRangeByRank("example:by_score", 0, -1, false)
	assert.Equal(t, []string{"2", "1"}, ranked)
	name, _, _ := loaded.HGet("example:1:attrs", "name")
	assert.Equal(t, "Jane Doe", name)

	// interning still works after a load
	_, err := loaded.SAdd("example:ids", "4")
	require.NoError(t, err)
	ids, _ = loaded.SMembers("example:ids")
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	err := newStore().ReadSnapshot(bytes.NewReader([]byte("not zstd")))
	assert.Error(t, err)
}

func TestSaveOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.snap")

	empty, err := OpenFile(path, Options{})
	require.NoError(t, err)
	assert.Empty(t, empty.Keys(""))

	_, _ = empty.SAdd("example:ids", "8")
	require.NoError(t, empty.SaveFile(path))

	reopened, err := OpenFile(path, Options{})
	require.NoError(t, err)
	ok, err := reopened.SIsMember("example:ids", "8")
	require.NoError(t, err)
	assert.True(t, ok)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".setstore-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp file is renamed away")
}
