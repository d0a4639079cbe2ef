package index

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// memStore models index sets as plain maps and records every call.
type memStore struct {
	sets  map[record.Key]map[string]bool
	calls []string
}

func newMemStore() *memStore {
	return &memStore{sets: map[record.Key]map[string]bool{}}
}

func (m *memStore) Add(k record.Key, id string) error {
	m.calls = append(m.calls, "add "+k.String()+" "+id)
	if m.sets[k] == nil {
		m.sets[k] = map[string]bool{}
	}
	m.sets[k][id] = true
	return nil
}

func (m *memStore) Delete(k record.Key, id string) error {
	m.calls = append(m.calls, "delete "+k.String()+" "+id)
	delete(m.sets[k], id)
	return nil
}

func (m *memStore) Move(from, to record.Key, id string) error {
	m.calls = append(m.calls, "move "+from.String()+" "+to.String()+" "+id)
	delete(m.sets[from], id)
	if m.sets[to] == nil {
		m.sets[to] = map[string]bool{}
	}
	m.sets[to][id] = true
	return nil
}

func (m *memStore) members(k record.Key) []string {
	var out []string
	for id := range m.sets[k] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want string
		ok   bool
	}{
		{"plain", value.String("Jane"), "Jane", true},
		{"space", value.String("Jane Doe"), "Jane%20Doe", true},
		{"colon", value.String("a:b"), "a%3Ab", true},
		{"both", value.Symbol("x: y"), "x%3A%20y", true},
		{"true", value.Bool(true), "true", true},
		{"false", value.Bool(false), "false", true},
		{"int", value.Int(3), "", false},
		{"float", value.Float(1.5), "", false},
		{"null", value.Null{}, "", false},
		{"list", value.List{"1"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Escape(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntryKey(t *testing.T) {
	ix := New(newMemStore(), "example", "name")

	k, ok := ix.For(value.String("Jane Doe")).Key()
	require.True(t, ok)
	assert.Equal(t, record.IndexKey("example", "name", "Jane%20Doe"), k)
	assert.Equal(t, "example:by_name:Jane%20Doe", k.String())

	_, ok = ix.For(value.Int(4)).Key()
	assert.False(t, ok)
}

func TestAddDeleteID(t *testing.T) {
	store := newMemStore()
	ix := New(store, "example", "active")
	k, _ := ix.For(value.Bool(true)).Key()

	require.NoError(t, ix.For(value.Bool(true)).AddID("1"))
	require.NoError(t, ix.For(value.Bool(true)).AddID("3"))
	assert.Equal(t, []string{"1", "3"}, store.members(k))

	require.NoError(t, ix.For(value.Bool(true)).DeleteID("1"))
	assert.Equal(t, []string{"3"}, store.members(k))
}

func TestNonIndexableIsNoop(t *testing.T) {
	store := newMemStore()
	ix := New(store, "example", "rank")

	e := ix.For(value.Int(7))
	require.NoError(t, e.AddID("1"))
	require.NoError(t, e.DeleteID("1"))
	require.NoError(t, e.MoveID("1", ix.For(value.Float(2))))
	assert.Empty(t, store.calls)
}

func TestMoveID(t *testing.T) {
	store := newMemStore()
	ix := New(store, "example", "name")
	jane, _ := ix.For(value.String("Jane")).Key()
	john, _ := ix.For(value.String("John")).Key()

	require.NoError(t, ix.For(value.String("Jane")).AddID("1"))
	require.NoError(t, ix.For(value.String("Jane")).MoveID("1", ix.For(value.String("John"))))
	assert.Empty(t, store.members(jane))
	assert.Equal(t, []string{"1"}, store.members(john))
	assert.Equal(t, "move example:by_name:Jane example:by_name:John 1", store.calls[len(store.calls)-1])

	// same value: nothing to do
	n := len(store.calls)
	require.NoError(t, ix.For(value.String("John")).MoveID("1", ix.For(value.String("John"))))
	assert.Len(t, store.calls, n)
}

func TestMoveIDDegrades(t *testing.T) {
	store := newMemStore()
	ix := New(store, "example", "name")
	jane, _ := ix.For(value.String("Jane")).Key()

	require.NoError(t, ix.For(value.Null{}).MoveID("1", ix.For(value.String("Jane"))))
	assert.Equal(t, []string{"1"}, store.members(jane))
	assert.Equal(t, "add example:by_name:Jane 1", store.calls[len(store.calls)-1])

	require.NoError(t, ix.For(value.String("Jane")).MoveID("1", ix.For(value.Null{})))
	assert.Empty(t, store.members(jane))
	assert.Equal(t, "delete example:by_name:Jane 1", store.calls[len(store.calls)-1])
}

func TestMoveEquivalentToDeleteThenAdd(t *testing.T) {
	a, b := newMemStore(), newMemStore()
	ixA, ixB := New(a, "example", "name"), New(b, "example", "name")

	require.NoError(t, ixA.For(value.String("x")).AddID("1"))
	require.NoError(t, ixA.For(value.String("x")).MoveID("1", ixA.For(value.String("y"))))

	require.NoError(t, ixB.For(value.String("x")).AddID("1"))
	require.NoError(t, ixB.For(value.String("x")).DeleteID("1"))
	require.NoError(t, ixB.For(value.String("y")).AddID("1"))

	for _, v := range []string{"x", "y"} {
		ka, _ := ixA.For(value.String(v)).Key()
		kb, _ := ixB.For(value.String(v)).Key()
		assert.Equal(t, b.members(kb), a.members(ka), v)
	}
}

func TestConcurrentKeyDerivation(t *testing.T) {
	ix := New(newMemStore(), "example", "name")
	want, _ := ix.For(value.String("Jane")).Key()
	ix.Reset()

	var wg sync.WaitGroup
	keys := make([]record.Key, 32)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], _ = ix.For(value.String("Jane")).Key()
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, want, k)
	}
}
