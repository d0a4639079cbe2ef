package record

import (
	"fmt"
	"maps"
	"sort"

	"github.com/roach88/zermelo/internal/value"
)

// Change is the before/after pair of one dirty attribute.
type Change struct {
	From value.Value
	To   value.Value
}

// Record is one typed instance of a Class.
//
// A Record keeps the values it was loaded or last saved with, so callers can
// ask which attributes changed since. Records are not safe for concurrent
// mutation.
type Record struct {
	class     *Class
	id        string
	attrs     map[string]value.Value
	saved     map[string]value.Value
	persisted bool
}

// New returns an unsaved record. An empty id is assigned by the backend on
// first save.
func New(class *Class, id string) *Record {
	return &Record{
		class: class,
		id:    id,
		attrs: make(map[string]value.Value, len(class.Attributes)),
		saved: map[string]value.Value{},
	}
}

// Load builds a persisted record from stored attribute values. Attributes the
// class no longer declares are dropped and values are coerced to their
// declared types.
func Load(class *Class, id string, stored map[string]value.Value) (*Record, error) {
	r := New(class, id)
	if err := r.Reload(stored); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces every attribute with the stored values and marks the
// record persisted, discarding unsaved changes.
func (r *Record) Reload(stored map[string]value.Value) error {
	attrs := make(map[string]value.Value, len(stored))
	for name, v := range stored {
		attr, ok := r.class.Attribute(name)
		if !ok {
			continue
		}
		cv, err := value.Coerce(attr.Type, v)
		if err != nil {
			return fmt.Errorf("load %s %s: attribute %s: %w", r.class.Name, r.id, name, err)
		}
		if !value.IsNull(cv) {
			attrs[name] = cv
		}
	}
	r.attrs = attrs
	r.MarkPersisted()
	return nil
}

// Class returns the record's class.
func (r *Record) Class() *Class { return r.class }

// ID returns the record id; empty until assigned.
func (r *Record) ID() string { return r.id }

// SetID assigns the id of an unsaved record.
func (r *Record) SetID(id string) error {
	if r.persisted {
		return fmt.Errorf("%s %s: cannot change the id of a persisted record", r.class.Name, r.id)
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	r.id = id
	return nil
}

// Get returns the current value of name, Null when unset or undeclared.
func (r *Record) Get(name string) value.Value {
	if v, ok := r.attrs[name]; ok {
		return v
	}
	return value.Null{}
}

// Set assigns name after converting v to the declared attribute type.
// Passing nil clears the attribute.
func (r *Record) Set(name string, v any) error {
	attr, ok := r.class.Attribute(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, r.class.Name, name)
	}
	val, err := value.FromAny(v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", r.class.Name, name, err)
	}
	cv, err := value.Coerce(attr.Type, val)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", r.class.Name, name, err)
	}
	if value.IsNull(cv) {
		delete(r.attrs, name)
		return nil
	}
	r.attrs[name] = cv
	return nil
}

// SetAll assigns every pair in attrs, in key order, stopping at the first
// error.
func (r *Record) SetAll(attrs map[string]any) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Set(name, attrs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Attributes returns a copy of the set attribute values.
func (r *Record) Attributes() map[string]value.Value {
	return maps.Clone(r.attrs)
}

// Saved returns the value name held when the record was last persisted.
func (r *Record) Saved(name string) value.Value {
	if v, ok := r.saved[name]; ok {
		return v
	}
	return value.Null{}
}

// Changed returns the sorted names of attributes whose value differs from the
// persisted snapshot.
func (r *Record) Changed() []string {
	var out []string
	for _, a := range r.class.Attributes {
		if value.Compare(r.Get(a.Name), r.Saved(a.Name)) != 0 {
			out = append(out, a.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Changes maps every changed attribute to its persisted and current value.
func (r *Record) Changes() map[string]Change {
	changed := r.Changed()
	out := make(map[string]Change, len(changed))
	for _, name := range changed {
		out[name] = Change{From: r.Saved(name), To: r.Get(name)}
	}
	return out
}

// Persisted reports whether the record has been saved or loaded.
func (r *Record) Persisted() bool { return r.persisted }

// MarkPersisted snapshots the current values as the persisted state,
// clearing the dirty set.
func (r *Record) MarkPersisted() {
	r.saved = maps.Clone(r.attrs)
	r.persisted = true
}

// MarkDestroyed clears the persisted flag after the backend removed the
// record. The current values are kept.
func (r *Record) MarkDestroyed() {
	r.saved = map[string]value.Value{}
	r.persisted = false
}
