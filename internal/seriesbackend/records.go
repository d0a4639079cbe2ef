package seriesbackend

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/zermelo/internal/queryir"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/series"
	"github.com/roach88/zermelo/internal/value"
)

// listField reports whether name is the id list field of one of class's
// collection associations.
func listField(class *record.Class, name string) bool {
	for _, assoc := range class.Associations {
		if assoc.Collection() && record.AssociationField(assoc.Name) == name {
			return true
		}
	}
	return false
}

// Save appends a point holding every declared attribute of rec. Association
// lists carry over from the previous point, and the id lists of the records
// it belongs to follow its foreign keys.
func (b *Backend) Save(ctx context.Context, rec *record.Record) error {
	class := rec.Class()
	if rec.ID() == "" {
		if err := rec.SetID(b.ids.Generate()); err != nil {
			return err
		}
	}
	id := rec.ID()
	if err := record.ValidateID(id); err != nil {
		return err
	}

	var (
		prev   series.Fields
		exists bool
	)
	err := b.store.Update(ctx, seriesKey(class, id), func(latest series.Fields, live bool) (series.Fields, bool, error) {
		prev, exists = latest, live
		fields := series.Fields{}
		for name, v := range latest {
			if listField(class, name) {
				fields[name] = v
			}
		}
		for _, attr := range class.Attributes {
			fields[attr.Name] = encode(rec.Get(attr.Name))
		}
		return fields, true, nil
	})
	if err != nil {
		return err
	}

	for _, assoc := range class.Associations {
		if assoc.Kind != record.BelongsTo {
			continue
		}
		if err := b.syncParent(ctx, rec, assoc, prev[assoc.ForeignKey()]); err != nil {
			return err
		}
	}
	rec.MarkPersisted()

	b.logger.DebugContext(ctx, "saved", "class", class.Name, "id", id, "created", !exists)
	return nil
}

// syncParent moves the record between the id lists of its old and new
// parent.
func (b *Backend) syncParent(ctx context.Context, rec *record.Record, assoc record.Association, oldRaw any) error {
	inv, ok := b.registry.Inverse(rec.Class(), assoc)
	if !ok {
		return nil
	}
	parent, err := b.lookupClass(assoc.Class)
	if err != nil {
		return err
	}

	field := record.AssociationField(inv.Name)
	oldParent, _ := oldRaw.(string)
	newParent := value.Encode(rec.Get(assoc.ForeignKey()))
	id := rec.ID()

	if oldParent != "" && oldParent != newParent {
		if err := b.updateList(ctx, parent, oldParent, field, removeID(id)); err != nil {
			return err
		}
	}
	if newParent == "" {
		return nil
	}
	return b.updateList(ctx, parent, newParent, field, addID(id))
}

func addID(id string) func([]string) ([]string, bool) {
	return func(ids []string) ([]string, bool) {
		if slices.Contains(ids, id) {
			return ids, false
		}
		return append(ids, id), true
	}
}

func removeID(id string) func([]string) ([]string, bool) {
	return func(ids []string) ([]string, bool) {
		i := slices.Index(ids, id)
		if i < 0 {
			return ids, false
		}
		return slices.Delete(ids, i, i+1), true
	}
}

// updateList rewrites one id list field of a live owner with a new point.
// Owners without a live point are left alone.
func (b *Backend) updateList(ctx context.Context, owner *record.Class, ownerID, field string, fn func([]string) ([]string, bool)) error {
	return b.store.Update(ctx, seriesKey(owner, ownerID), func(fields series.Fields, live bool) (series.Fields, bool, error) {
		if !live {
			return nil, false, nil
		}
		ids, err := decodeList(fields[field])
		if err != nil {
			return nil, false, fmt.Errorf("%s %s: %w", owner.Name, field, err)
		}
		next, changed := fn(ids)
		if !changed {
			return nil, false, nil
		}
		if next == nil {
			next = []string{}
		}
		fields[field] = next
		return fields, true, nil
	})
}

// Load implements filter.RecordStore.
func (b *Backend) Load(ctx context.Context, class *record.Class, id string) (*record.Record, error) {
	fields, ok, err := b.store.Latest(ctx, seriesKey(class, id))
	if err != nil || !ok {
		return nil, err
	}
	stored, err := decodeFields(class, fields)
	if err != nil {
		return nil, err
	}
	return record.Load(class, id, stored)
}

// Refresh reloads rec from its latest point, discarding unsaved changes.
func (b *Backend) Refresh(ctx context.Context, rec *record.Record) error {
	fields, ok, err := b.store.Latest(ctx, seriesKey(rec.Class(), rec.ID()))
	if err != nil {
		return err
	}
	if !ok {
		return &record.RecordNotFoundError{Class: rec.Class().Name, ID: rec.ID()}
	}
	stored, err := decodeFields(rec.Class(), fields)
	if err != nil {
		return err
	}
	return rec.Reload(stored)
}

// Destroy implements filter.RecordStore. It tombstones the record after
// destroying dependent children, detaching the others and dropping the
// record from every id list holding it.
func (b *Backend) Destroy(ctx context.Context, rec *record.Record) error {
	class, id := rec.Class(), rec.ID()
	key := seriesKey(class, id)
	prev, exists, err := b.store.Latest(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		rec.MarkDestroyed()
		return nil
	}

	for _, assoc := range class.Associations {
		if !assoc.Collection() {
			continue
		}
		childIDs, err := decodeList(prev[record.AssociationField(assoc.Name)])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", class.Name, assoc.Name, err)
		}
		if err := b.releaseChildren(ctx, class, assoc, childIDs); err != nil {
			return err
		}
	}

	for owner, assocs := range b.registry.Referrers(class) {
		for _, assoc := range assocs {
			field := record.AssociationField(assoc.Name)
			holders, err := b.holders(ctx, owner, field, id)
			if err != nil {
				return err
			}
			for _, oid := range holders {
				if err := b.updateList(ctx, owner, oid, field, removeID(id)); err != nil {
					return err
				}
			}
		}
	}

	if err := b.store.Tombstone(ctx, key); err != nil {
		return err
	}
	rec.MarkDestroyed()

	b.logger.DebugContext(ctx, "destroyed", "class", class.Name, "id", id)
	return nil
}

func (b *Backend) releaseChildren(ctx context.Context, class *record.Class, assoc record.Association, childIDs []string) error {
	target, err := b.lookupClass(assoc.Class)
	if err != nil {
		return err
	}
	inv, hasInverse := b.registry.Inverse(class, assoc)

	for _, cid := range childIDs {
		child, err := b.Load(ctx, target, cid)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		switch {
		case assoc.Dependent:
			err = b.Destroy(ctx, child)
		case hasInverse:
			if err = child.Set(inv.ForeignKey(), nil); err == nil {
				err = b.Save(ctx, child)
			}
		}
		if err != nil {
			return fmt.Errorf("%s.%s child %s: %w", class.Name, assoc.Name, cid, err)
		}
	}
	return nil
}

// holders returns the ids of live owner records whose list field holds id.
func (b *Backend) holders(ctx context.Context, owner *record.Class, field, id string) ([]string, error) {
	text, err := b.compile(ctx, queryir.Select{
		From:       owner.Key,
		Projection: queryir.ProjectFields,
		Fields:     []string{field},
		Filter:     queryir.NotNull{Field: field},
	})
	if err != nil {
		return nil, err
	}
	res, err := b.store.Query(ctx, text)
	if series.IsFieldNotFound(err) || errors.Is(err, series.ErrNoColumns) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pattern := idPattern(owner)
	var out []string
	for _, s := range res.Series {
		m := pattern.FindStringSubmatch(s.Key)
		if m == nil || len(s.Values) == 0 {
			continue
		}
		ids, err := decodeList(s.Values[0][0])
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", owner.Name, field, err)
		}
		if slices.Contains(ids, id) {
			out = append(out, m[1])
		}
	}
	return out, nil
}
