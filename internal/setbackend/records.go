package setbackend

import (
	"context"
	"fmt"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// saveScope is the lock scope of saving a record of class: the class and
// every class it belongs to, whose association sets a save may update.
func (b *Backend) saveScope(class *record.Class) []string {
	classes := []string{class.Name}
	for _, assoc := range class.Associations {
		if assoc.Kind == record.BelongsTo {
			classes = append(classes, assoc.Class)
		}
	}
	return classes
}

// destroyScope is the lock scope of a cascading destroy.
func (b *Backend) destroyScope(class *record.Class) []string {
	return b.registry.DestroyScope(class)
}

// storedValues reads and decodes the attribute hash of id.
func (b *Backend) storedValues(class *record.Class, id string) (map[string]value.Value, error) {
	raw, err := b.store.HGetAll(record.AttrsKey(class.Key, id).String())
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(raw))
	for name, s := range raw {
		attr, ok := class.Attribute(name)
		if !ok {
			continue
		}
		v, err := value.Parse(attr.Type, s)
		if err != nil {
			return nil, fmt.Errorf("%s %s: attribute %s: %w", class.Name, id, name, err)
		}
		out[name] = v
	}
	return out, nil
}

func (b *Backend) persisted(class *record.Class, id string) (bool, error) {
	return b.store.SIsMember(record.IDsKey(class.Key).String(), id)
}

// Save creates or updates rec, maintaining its indexes, its score and the
// association sets of the records it belongs to.
func (b *Backend) Save(ctx context.Context, rec *record.Record) error {
	return b.locker.Lock(ctx, b.saveScope(rec.Class()), func(ctx context.Context) error {
		return b.save(ctx, rec)
	})
}

func (b *Backend) save(ctx context.Context, rec *record.Record) error {
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

	exists, err := b.persisted(class, id)
	if err != nil {
		return err
	}
	stored := map[string]value.Value{}
	if exists {
		if stored, err = b.storedValues(class, id); err != nil {
			return err
		}
	}
	prev := func(name string) value.Value {
		if v, ok := stored[name]; ok {
			return v
		}
		return value.Null{}
	}

	for _, attr := range class.IndexedAttributes() {
		ix := b.index(class, attr.Name)
		cur := rec.Get(attr.Name)
		if !exists {
			err = ix.For(cur).AddID(id)
		} else if old := prev(attr.Name); value.Compare(old, cur) != 0 {
			err = ix.For(old).MoveID(id, ix.For(cur))
		}
		if err != nil {
			return fmt.Errorf("index %s.%s: %w", class.Name, attr.Name, err)
		}
	}

	attrsKey := record.AttrsKey(class.Key, id).String()
	set := make(map[string]string, len(class.Attributes))
	var unset []string
	for _, attr := range class.Attributes {
		v := rec.Get(attr.Name)
		if value.IsNull(v) {
			unset = append(unset, attr.Name)
			continue
		}
		set[attr.Name] = value.Encode(v)
	}
	if err := b.store.HSet(attrsKey, set); err != nil {
		return err
	}
	if _, err := b.store.HDel(attrsKey, unset...); err != nil {
		return err
	}

	score, scored := b.score(rec)
	if class.Score != "" {
		scoresKey := record.ScoresKey(class.Key).String()
		if scored {
			_, err = b.store.ZAdd(scoresKey, score, id)
		} else {
			_, err = b.store.ZRem(scoresKey, id)
		}
		if err != nil {
			return err
		}
	}

	for _, assoc := range class.Associations {
		if assoc.Kind != record.BelongsTo {
			continue
		}
		if err := b.syncParent(rec, assoc, prev(assoc.ForeignKey()), score, scored); err != nil {
			return err
		}
	}

	if _, err := b.store.SAdd(record.IDsKey(class.Key).String(), id); err != nil {
		return err
	}
	rec.MarkPersisted()

	b.logger.DebugContext(ctx, "saved", "class", class.Name, "id", id, "created", !exists)
	return nil
}

func (b *Backend) score(rec *record.Record) (float64, bool) {
	if rec.Class().Score == "" {
		return 0, false
	}
	return value.Score(rec.Get(rec.Class().Score))
}

// syncParent keeps the parent's inverse collection in step with the
// record's belongs_to foreign key.
func (b *Backend) syncParent(rec *record.Record, assoc record.Association, oldParent value.Value, score float64, scored bool) error {
	inv, ok := b.registry.Inverse(rec.Class(), assoc)
	if !ok {
		return nil
	}
	parent, err := b.lookupClass(assoc.Class)
	if err != nil {
		return err
	}

	id := rec.ID()
	newParent := rec.Get(assoc.ForeignKey())
	if !value.IsNull(oldParent) && value.Compare(oldParent, newParent) != 0 {
		key := record.AssociationKey(parent.Key, value.Encode(oldParent), inv.Name, inv.Shape())
		if err := b.removeMember(key, id); err != nil {
			return err
		}
	}
	if value.IsNull(newParent) {
		return nil
	}

	key := record.AssociationKey(parent.Key, value.Encode(newParent), inv.Name, inv.Shape())
	if key.Shape != record.ShapeSortedSet {
		_, err := b.store.SAdd(key.String(), id)
		return err
	}
	// members of a sorted association need a score
	if !scored {
		return b.removeMember(key, id)
	}
	_, err = b.store.ZAdd(key.String(), score, id)
	return err
}

func (b *Backend) removeMember(key record.Key, id string) error {
	var err error
	if key.Shape == record.ShapeSortedSet {
		_, err = b.store.ZRem(key.String(), id)
	} else {
		_, err = b.store.SRem(key.String(), id)
	}
	return err
}

// Load implements filter.RecordStore.
func (b *Backend) Load(_ context.Context, class *record.Class, id string) (*record.Record, error) {
	ok, err := b.persisted(class, id)
	if err != nil || !ok {
		return nil, err
	}
	stored, err := b.storedValues(class, id)
	if err != nil {
		return nil, err
	}
	return record.Load(class, id, stored)
}

// Refresh reloads rec from the store, discarding unsaved changes.
func (b *Backend) Refresh(_ context.Context, rec *record.Record) error {
	ok, err := b.persisted(rec.Class(), rec.ID())
	if err != nil {
		return err
	}
	if !ok {
		return &record.RecordNotFoundError{Class: rec.Class().Name, ID: rec.ID()}
	}
	stored, err := b.storedValues(rec.Class(), rec.ID())
	if err != nil {
		return err
	}
	return rec.Reload(stored)
}

// Destroy implements filter.RecordStore. Dependent children are destroyed;
// other children are detached. The record is removed from every index and
// from every association set holding it.
func (b *Backend) Destroy(ctx context.Context, rec *record.Record) error {
	return b.locker.Lock(ctx, b.destroyScope(rec.Class()), func(ctx context.Context) error {
		return b.destroy(ctx, rec)
	})
}

func (b *Backend) destroy(ctx context.Context, rec *record.Record) error {
	class, id := rec.Class(), rec.ID()
	exists, err := b.persisted(class, id)
	if err != nil {
		return err
	}
	if !exists {
		rec.MarkDestroyed()
		return nil
	}
	stored, err := b.storedValues(class, id)
	if err != nil {
		return err
	}

	for _, assoc := range class.Associations {
		if !assoc.Collection() {
			continue
		}
		if err := b.releaseChildren(ctx, class, id, assoc); err != nil {
			return err
		}
	}

	for owner, assocs := range b.registry.Referrers(class) {
		for _, name := range b.store.Keys(owner.Key + ":") {
			k, ok := record.ParseKey(name)
			if !ok || k.ID == "" {
				continue
			}
			for _, assoc := range assocs {
				if k.Name != record.AssociationField(assoc.Name) {
					continue
				}
				k.Shape = assoc.Shape()
				if err := b.removeMember(k, id); err != nil {
					return err
				}
			}
		}
	}

	for _, attr := range class.IndexedAttributes() {
		old, ok := stored[attr.Name]
		if !ok {
			old = value.Null{}
		}
		if err := b.index(class, attr.Name).For(old).DeleteID(id); err != nil {
			return err
		}
	}
	if class.Score != "" {
		if _, err := b.store.ZRem(record.ScoresKey(class.Key).String(), id); err != nil {
			return err
		}
	}
	b.store.Del(record.AttrsKey(class.Key, id).String())
	if _, err := b.store.SRem(record.IDsKey(class.Key).String(), id); err != nil {
		return err
	}
	rec.MarkDestroyed()

	b.logger.DebugContext(ctx, "destroyed", "class", class.Name, "id", id)
	return nil
}

// releaseChildren destroys or detaches the members of one collection of a
// record being destroyed, then drops the collection.
func (b *Backend) releaseChildren(ctx context.Context, class *record.Class, id string, assoc record.Association) error {
	key := record.AssociationKey(class.Key, id, assoc.Name, assoc.Shape())
	childIDs, err := b.members(key)
	if err != nil {
		return err
	}
	b.store.Del(key.String())

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
			err = b.destroy(ctx, child)
		case hasInverse:
			if err = child.Set(inv.ForeignKey(), nil); err == nil {
				err = b.save(ctx, child)
			}
		}
		if err != nil {
			return fmt.Errorf("%s.%s child %s: %w", class.Name, assoc.Name, cid, err)
		}
	}
	return nil
}
