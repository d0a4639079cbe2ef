// Package index maintains per-attribute secondary indexes: for one indexable
// attribute of one class, the backend set holding the ids of the records
// that currently carry each value.
//
// Only strings, symbols and booleans are indexable. For every other value an
// Entry has no key and its mutations are silent no-ops; a predicate on such a
// value matches nothing through the index.
//
// The Index caches the value token to Key mapping. The cache is derived data
// and may be dropped or rebuilt at any time; concurrent callers deriving the
// key for the same value always get the same Key.
package index

import (
	"strings"
	"sync"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// Store is the membership mutation contract a backend provides for index
// sets. Move must relocate id without a window where it is absent from both
// sets.
type Store interface {
	Add(key record.Key, id string) error
	Delete(key record.Key, id string) error
	Move(from, to record.Key, id string) error
}

var escaper = strings.NewReplacer(" ", "%20", ":", "%3A")

// Escape returns the key token for v, or false if v is not indexable.
// Spaces and colons are replaced so the token can never introduce a key
// delimiter.
func Escape(v value.Value) (string, bool) {
	if !value.Indexable(v) {
		return "", false
	}
	return escaper.Replace(value.Encode(v)), true
}

// Index is the secondary index of one attribute of one class.
type Index struct {
	store    Store
	classKey string
	attr     string

	mu    sync.Mutex
	cache map[string]record.Key
}

// New creates the index of attr on the class stored under classKey.
func New(store Store, classKey, attr string) *Index {
	return &Index{
		store:    store,
		classKey: classKey,
		attr:     attr,
		cache:    make(map[string]record.Key),
	}
}

// Attribute returns the indexed attribute name.
func (ix *Index) Attribute() string { return ix.attr }

// For binds the index to the value v.
func (ix *Index) For(v value.Value) Entry {
	return Entry{index: ix, value: v}
}

// Reset drops the token cache.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	clear(ix.cache)
}

func (ix *Index) keyFor(v value.Value) (record.Key, bool) {
	token, ok := Escape(v)
	if !ok {
		return record.Key{}, false
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if k, ok := ix.cache[token]; ok {
		return k, true
	}
	k := record.IndexKey(ix.classKey, ix.attr, token)
	ix.cache[token] = k
	return k, true
}

// Entry is an Index bound to one attribute value.
type Entry struct {
	index *Index
	value value.Value
}

// Value returns the bound value.
func (e Entry) Value() value.Value { return e.value }

// Key returns the set key for the bound value. The second result is false
// when the value is not indexable, which means "no index entry", not an
// error.
func (e Entry) Key() (record.Key, bool) {
	return e.index.keyFor(e.value)
}

// AddID adds id to the set of the bound value.
func (e Entry) AddID(id string) error {
	k, ok := e.Key()
	if !ok {
		return nil
	}
	return e.index.store.Add(k, id)
}

// DeleteID removes id from the set of the bound value.
func (e Entry) DeleteID(id string) error {
	k, ok := e.Key()
	if !ok {
		return nil
	}
	return e.index.store.Delete(k, id)
}

// MoveID relocates id from this entry's set to the set of to. When only one
// side is indexable the move degrades to the matching add or delete.
func (e Entry) MoveID(id string, to Entry) error {
	from, fromOK := e.Key()
	dest, destOK := to.Key()
	switch {
	case fromOK && destOK:
		if from == dest {
			return nil
		}
		return e.index.store.Move(from, dest, id)
	case fromOK:
		return e.index.store.Delete(from, id)
	case destOK:
		return to.index.store.Add(dest, id)
	default:
		return nil
	}
}
