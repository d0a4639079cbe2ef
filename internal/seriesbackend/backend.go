// Package seriesbackend stores records as points in a series.Store and
// resolves filter chains by synthesizing one SQL query per resolution.
//
// A record of class C with id I is the series "<C.Key>/<I>". Saving writes
// a new point holding every declared attribute; destroying writes a
// tombstone. Collection associations live on the owner as a JSON list field
// "<assoc>_ids".
//
// Resolution folds the steps left to right into one predicate, starting
// from an always-true working predicate W:
//
//	intersect  (W) AND (p)
//	union      (W) OR (p)
//	diff       (W) AND NOT (p)
//
// A scoped chain first reads the owner's id list with a one-row lookup and
// ANDs a disjunction of id equalities onto the result.
package seriesbackend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/lock"
	"github.com/roach88/zermelo/internal/logging"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/series"
)

// DefaultMaxScopeIDs bounds the id list a scoped chain may expand into a
// single query.
const DefaultMaxScopeIDs = 10000

// ErrScopeTooLarge is returned when a scoping association holds more ids
// than Options.MaxScopeIDs.
var ErrScopeTooLarge = errors.New("scope too large")

// Options configures a Backend.
type Options struct {
	Logger *slog.Logger

	// IDs assigns ids to records saved without one. Defaults to UUIDv7.
	IDs record.IDGenerator

	// MaxScopeIDs defaults to DefaultMaxScopeIDs.
	MaxScopeIDs int
}

// Backend is the query-synthesis filter.Backend.
type Backend struct {
	store       *series.Store
	registry    *record.Registry
	ids         record.IDGenerator
	maxScopeIDs int
	logger      *slog.Logger
}

var _ filter.Backend = (*Backend)(nil)

// New creates a backend over store for the classes of registry.
func New(store *series.Store, registry *record.Registry, opts Options) *Backend {
	ids := opts.IDs
	if ids == nil {
		ids = record.UUIDv7Generator{}
	}
	maxIDs := opts.MaxScopeIDs
	if maxIDs <= 0 {
		maxIDs = DefaultMaxScopeIDs
	}
	return &Backend{
		store:       store,
		registry:    registry,
		ids:         ids,
		maxScopeIDs: maxIDs,
		logger:      logging.Component(opts.Logger, "seriesbackend"),
	}
}

// Store returns the underlying series store.
func (b *Backend) Store() *series.Store { return b.store }

// Locker implements filter.Backend. Points are append-only; the id list
// rewrites of Save and HasMany go through series.Store.Update, which
// serializes them per owner series.
func (b *Backend) Locker() lock.Coordinator { return lock.Null{} }

// Registry implements filter.Backend.
func (b *Backend) Registry() *record.Registry { return b.registry }

// Filter starts an unscoped chain over class.
func (b *Backend) Filter(class *record.Class) *filter.Chain {
	return filter.New(b, class)
}

func (b *Backend) lookupClass(name string) (*record.Class, error) {
	c, err := b.registry.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("seriesbackend: %w", err)
	}
	return c, nil
}

func seriesKey(class *record.Class, id string) string {
	return series.Key(class.Key, id)
}
