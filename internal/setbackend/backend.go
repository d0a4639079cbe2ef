// Package setbackend stores records in a setstore.Store and resolves filter
// chains with native set algebra.
//
// Storage layout per class (key names come from the record package):
//
//	<class>:ids                  set of every persisted id
//	<class>:by_score             sorted set of ids scored by the score attribute
//	<class>:by_<attr>:<token>    set of ids whose indexed attr has that value
//	<class>:<id>:attrs           hash of the record's encoded attributes
//	<class>:<id>:<assoc>_ids     set or sorted set of associated ids
//
// Each filter step is one SInterStore, SUnionStore or SDiffStore against a
// temp working set; range steps read the sorted source with ZRangeByRank or
// ZRangeByScore first. Temp keys are removed on every exit path.
package setbackend

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/index"
	"github.com/roach88/zermelo/internal/lock"
	"github.com/roach88/zermelo/internal/logging"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/setstore"
)

// Options configures a Backend.
type Options struct {
	Logger *slog.Logger

	// IDs assigns ids to records saved without one. Defaults to UUIDv7.
	IDs record.IDGenerator
}

// Backend is the set-native filter.Backend.
type Backend struct {
	store    *setstore.Store
	registry *record.Registry
	locker   *lock.Mutex
	ids      record.IDGenerator
	logger   *slog.Logger

	mu      sync.Mutex
	indexes map[string]*index.Index
}

var (
	_ filter.Backend = (*Backend)(nil)
	_ index.Store    = (*Backend)(nil)
)

// New creates a backend over store for the classes of registry.
func New(store *setstore.Store, registry *record.Registry, opts Options) *Backend {
	ids := opts.IDs
	if ids == nil {
		ids = record.UUIDv7Generator{}
	}
	return &Backend{
		store:    store,
		registry: registry,
		locker:   lock.NewMutex(),
		ids:      ids,
		logger:   logging.Component(opts.Logger, "setbackend"),
		indexes:  make(map[string]*index.Index),
	}
}

// Store returns the underlying set store.
func (b *Backend) Store() *setstore.Store { return b.store }

// Locker implements filter.Backend.
func (b *Backend) Locker() lock.Coordinator { return b.locker }

// Registry implements filter.Backend.
func (b *Backend) Registry() *record.Registry { return b.registry }

// Filter starts an unscoped chain over class.
func (b *Backend) Filter(class *record.Class) *filter.Chain {
	return filter.New(b, class)
}

// index returns the secondary index of attr on class.
func (b *Backend) index(class *record.Class, attr string) *index.Index {
	name := class.Key + ":" + attr
	b.mu.Lock()
	defer b.mu.Unlock()
	ix, ok := b.indexes[name]
	if !ok {
		ix = index.New(b, class.Key, attr)
		b.indexes[name] = ix
	}
	return ix
}

// Add implements index.Store.
func (b *Backend) Add(key record.Key, id string) error {
	_, err := b.store.SAdd(key.String(), id)
	return err
}

// Delete implements index.Store.
func (b *Backend) Delete(key record.Key, id string) error {
	_, err := b.store.SRem(key.String(), id)
	return err
}

// Move implements index.Store. An id missing from the source set is added
// to the destination, which is the same final state as delete then add.
func (b *Backend) Move(from, to record.Key, id string) error {
	moved, err := b.store.SMove(from.String(), to.String(), id)
	if err != nil {
		return err
	}
	if !moved {
		return b.Add(to, id)
	}
	return nil
}

// members returns the ids held at key, whatever its shape.
func (b *Backend) members(key record.Key) ([]string, error) {
	if key.Shape == record.ShapeSortedSet {
		zms, err := b.store.ZMembers(key.String())
		if err != nil {
			return nil, err
		}
		out := make([]string, len(zms))
		for i, zm := range zms {
			out[i] = zm.Member
		}
		return out, nil
	}
	return b.store.SMembers(key.String())
}

func (b *Backend) lookupClass(name string) (*record.Class, error) {
	c, err := b.registry.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("setbackend: %w", err)
	}
	return c, nil
}
