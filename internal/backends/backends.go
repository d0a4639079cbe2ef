// Package backends opens either backend family behind one handle, so the
// harness and the CLI can drive both the same way.
package backends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/queryir"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/series"
	"github.com/roach88/zermelo/internal/seriesbackend"
	"github.com/roach88/zermelo/internal/setbackend"
	"github.com/roach88/zermelo/internal/setstore"
)

// Kind names a backend family.
type Kind string

const (
	// Sets is the set-native backend over an in-process set store.
	Sets Kind = "sets"

	// Series is the query-synthesis backend over a SQLite series store.
	Series Kind = "series"
)

// Kinds lists every backend family.
var Kinds = []Kind{Sets, Series}

// ErrExplainUnsupported is returned by Explain on backends that do not
// synthesize queries.
var ErrExplainUnsupported = errors.New("backend does not synthesize queries")

// ParseKind parses a backend name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want sets or series)", s)
}

// Collection is a collection association of one record.
type Collection interface {
	Add(ctx context.Context, children ...*record.Record) error
	Remove(ctx context.Context, children ...*record.Record) error
	IDs(ctx context.Context) ([]string, error)
	Filter() *filter.Chain
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger

	// IDs assigns ids to records saved without one.
	IDs record.IDGenerator

	// Clock stamps series points.
	Clock series.Clock

	// MaxScopeIDs bounds scope expansion on the series backend.
	MaxScopeIDs int
}

// Handle is an open backend.
type Handle struct {
	Kind    Kind
	Backend filter.Backend

	save    func(context.Context, *record.Record) error
	hasMany func(*record.Record, string) (Collection, error)
	explain func(context.Context, filter.Query) (string, error)
	close   func() error

	mu    sync.Mutex
	dirty bool
}

// Open opens a backend of kind over path. An empty path opens a fresh
// in-memory store. A sets store at path is loaded from its snapshot and
// written back on Close when records were saved.
func Open(kind Kind, path string, registry *record.Registry, opts Options) (*Handle, error) {
	switch kind {
	case Sets:
		return openSets(path, registry, opts)
	case Series:
		return openSeries(path, registry, opts)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

func openSets(path string, registry *record.Registry, opts Options) (*Handle, error) {
	storeOpts := setstore.Options{Logger: opts.Logger}
	store := setstore.New(storeOpts)
	if path != "" {
		var err error
		if store, err = setstore.OpenFile(path, storeOpts); err != nil {
			return nil, fmt.Errorf("open set store: %w", err)
		}
	}
	b := setbackend.New(store, registry, setbackend.Options{Logger: opts.Logger, IDs: opts.IDs})

	h := &Handle{
		Kind:    Sets,
		Backend: b,
		save:    b.Save,
		hasMany: func(rec *record.Record, name string) (Collection, error) {
			c, err := b.HasMany(rec, name)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
	h.close = func() error {
		if path == "" || !h.isDirty() {
			return nil
		}
		if err := store.SaveFile(path); err != nil {
			return fmt.Errorf("save set store: %w", err)
		}
		return nil
	}
	return h, nil
}

func openSeries(path string, registry *record.Registry, opts Options) (*Handle, error) {
	if path == "" {
		path = ":memory:"
	}
	store, err := series.Open(path, series.Options{Logger: opts.Logger, Clock: opts.Clock})
	if err != nil {
		return nil, fmt.Errorf("open series store: %w", err)
	}
	b := seriesbackend.New(store, registry, seriesbackend.Options{
		Logger:      opts.Logger,
		IDs:         opts.IDs,
		MaxScopeIDs: opts.MaxScopeIDs,
	})

	return &Handle{
		Kind:    Series,
		Backend: b,
		save:    b.Save,
		hasMany: func(rec *record.Record, name string) (Collection, error) {
			c, err := b.HasMany(rec, name)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		explain: func(ctx context.Context, q filter.Query) (string, error) {
			return b.Explain(ctx, q, queryir.ProjectIDs)
		},
		close: store.Close,
	}, nil
}

func (h *Handle) isDirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

func (h *Handle) markDirty() {
	h.mu.Lock()
	h.dirty = true
	h.mu.Unlock()
}

// Registry returns the classes the backend stores.
func (h *Handle) Registry() *record.Registry { return h.Backend.Registry() }

// Filter starts an unscoped chain over class.
func (h *Handle) Filter(class *record.Class) *filter.Chain {
	return filter.New(h.Backend, class)
}

// Save writes rec.
func (h *Handle) Save(ctx context.Context, rec *record.Record) error {
	h.markDirty()
	return h.save(ctx, rec)
}

// Load returns the stored record, or nil when it does not exist.
func (h *Handle) Load(ctx context.Context, class *record.Class, id string) (*record.Record, error) {
	return h.Backend.Load(ctx, class, id)
}

// HasMany returns the collection association name of rec. Adding to or
// removing from it saves the children through this handle's backend.
func (h *Handle) HasMany(rec *record.Record, name string) (Collection, error) {
	h.markDirty()
	return h.hasMany(rec, name)
}

// Explain returns the SQL a chain query resolves to.
func (h *Handle) Explain(ctx context.Context, q filter.Query) (string, error) {
	if h.explain == nil {
		return "", fmt.Errorf("%s: %w", h.Kind, ErrExplainUnsupported)
	}
	return h.explain(ctx, q)
}

// Close releases the store.
func (h *Handle) Close() error {
	return h.close()
}
