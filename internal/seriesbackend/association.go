package seriesbackend

import (
	"context"
	"fmt"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// HasMany is the collection association of one persisted record, stored as
// an id list field on the owner's points.
type HasMany struct {
	b       *Backend
	owner   *record.Record
	assoc   record.Association
	target  *record.Class
	inverse record.Association
	linked  bool
}

// HasMany returns the collection association name of rec.
func (b *Backend) HasMany(rec *record.Record, name string) (*HasMany, error) {
	target, assoc, err := b.registry.Target(rec.Class(), name)
	if err != nil {
		return nil, err
	}
	if !assoc.Collection() {
		return nil, fmt.Errorf("%w: %s.%s is %s, not a collection", record.ErrUnknownAssociation, rec.Class().Name, name, assoc.Kind)
	}
	inv, linked := b.registry.Inverse(rec.Class(), assoc)
	return &HasMany{b: b, owner: rec, assoc: assoc, target: target, inverse: inv, linked: linked}, nil
}

// Key returns the scoping key of the collection.
func (h *HasMany) Key() record.Key {
	return record.AssociationKey(h.owner.Class().Key, h.owner.ID(), h.assoc.Name, h.assoc.Shape())
}

// Filter starts a chain scoped to the collection.
func (h *HasMany) Filter() *filter.Chain {
	return filter.Scoped(h.b, h.target, h.Key())
}

// IDs returns the ids in the collection.
func (h *HasMany) IDs(ctx context.Context) ([]string, error) {
	return h.Filter().IDs(ctx)
}

// Add puts children into the collection, saving each child.
func (h *HasMany) Add(ctx context.Context, children ...*record.Record) error {
	if !h.owner.Persisted() {
		return fmt.Errorf("%s %q: %w", h.owner.Class().Name, h.owner.ID(), record.ErrNotPersisted)
	}
	field := record.AssociationField(h.assoc.Name)
	for _, child := range children {
		if err := h.checkTarget(child); err != nil {
			return err
		}
		if h.linked {
			if err := child.Set(h.inverse.ForeignKey(), h.owner.ID()); err != nil {
				return err
			}
		}
		if err := h.b.Save(ctx, child); err != nil {
			return err
		}
		if !h.linked {
			if err := h.b.updateList(ctx, h.owner.Class(), h.owner.ID(), field, addID(child.ID())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove takes children out of the collection. Linked children are detached
// by clearing their foreign key; children of another parent are left alone.
func (h *HasMany) Remove(ctx context.Context, children ...*record.Record) error {
	field := record.AssociationField(h.assoc.Name)
	for _, child := range children {
		if err := h.checkTarget(child); err != nil {
			return err
		}
		if !h.linked {
			if err := h.b.updateList(ctx, h.owner.Class(), h.owner.ID(), field, removeID(child.ID())); err != nil {
				return err
			}
			continue
		}
		fk := h.inverse.ForeignKey()
		if parent := child.Get(fk); !value.IsNull(parent) && value.Encode(parent) != h.owner.ID() {
			continue
		}
		if err := child.Set(fk, nil); err != nil {
			return err
		}
		if err := h.b.Save(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (h *HasMany) checkTarget(child *record.Record) error {
	if child.Class() != h.target {
		return fmt.Errorf("%s.%s holds %s records, got %s", h.owner.Class().Name, h.assoc.Name, h.target.Name, child.Class().Name)
	}
	return nil
}
