package record

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/zermelo/internal/value"
)

// IDAttribute is the reserved predicate name matching a record's own id.
const IDAttribute = "id"

// Attribute declares one typed record attribute.
type Attribute struct {
	Name    string
	Type    value.Type
	Indexed bool
}

// AssociationKind identifies how an association stores its members.
type AssociationKind string

const (
	// HasMany keeps child ids in an unordered set on the parent.
	HasMany AssociationKind = "has_many"

	// HasSortedSet keeps child ids in a sorted set scored by the child
	// class's score attribute.
	HasSortedSet AssociationKind = "has_sorted_set"

	// BelongsTo stores the parent id in an implicit "<name>_id" attribute.
	BelongsTo AssociationKind = "belongs_to"
)

// Association declares a relation from one class to another.
//
// Inverse names the association on the target class pointing back (optional).
// Dependent is meaningful on has_many/has_sorted_set only: destroying the
// parent destroys the children instead of detaching them.
type Association struct {
	Name      string
	Kind      AssociationKind
	Class     string
	Inverse   string
	Dependent bool
}

// Shape returns the storage shape of the association's id collection.
func (a Association) Shape() Shape {
	switch a.Kind {
	case HasSortedSet:
		return ShapeSortedSet
	case BelongsTo:
		return ShapeScalar
	default:
		return ShapeSet
	}
}

// Collection reports whether the association holds many ids.
func (a Association) Collection() bool {
	return a.Kind == HasMany || a.Kind == HasSortedSet
}

// ForeignKey returns the attribute holding a belongs_to parent id.
func (a Association) ForeignKey() string {
	return a.Name + "_id"
}

// Class declares a record type.
//
// Key is the storage namespace shared by every key of the class; it defaults
// to the snake_case form of Name. Score names the numeric attribute scoring
// the class sorted set used by range steps; it may be empty.
type Class struct {
	Name         string
	Key          string
	Attributes   []Attribute
	Score        string
	Associations []Association
}

// Attribute returns the declared attribute called name.
func (c *Class) Attribute(name string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Association returns the declared association called name.
func (c *Class) Association(name string) (Association, bool) {
	for _, a := range c.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return Association{}, false
}

// IndexedAttributes returns the attributes maintained in secondary indexes.
// Attributes of non-indexable types are never returned, even when declared
// indexed.
func (c *Class) IndexedAttributes() []Attribute {
	var out []Attribute
	for _, a := range c.Attributes {
		if a.Indexed && value.IndexableType(a.Type) {
			out = append(out, a)
		}
	}
	return out
}

// finalize fills defaults and adds the implicit foreign key attribute of
// every belongs_to association. It is idempotent.
func (c *Class) finalize() {
	if c.Key == "" {
		c.Key = DefaultKey(c.Name)
	}
	for _, assoc := range c.Associations {
		if assoc.Kind != BelongsTo {
			continue
		}
		if _, ok := c.Attribute(assoc.ForeignKey()); ok {
			continue
		}
		c.Attributes = append(c.Attributes, Attribute{
			Name:    assoc.ForeignKey(),
			Type:    value.TypeString,
			Indexed: true,
		})
	}
}

// Validate checks the class declaration in isolation. Association targets
// are resolved by the Registry.
func (c *Class) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("class name is required")
	}
	if strings.ContainsAny(c.Key, ": ") {
		return fmt.Errorf("class %s: key %q must not contain spaces or colons", c.Name, c.Key)
	}

	seen := make(map[string]bool, len(c.Attributes))
	for _, a := range c.Attributes {
		switch {
		case a.Name == "":
			return fmt.Errorf("class %s: attribute name is required", c.Name)
		case a.Name == IDAttribute:
			return fmt.Errorf("class %s: attribute %q is reserved", c.Name, a.Name)
		case seen[a.Name]:
			return fmt.Errorf("class %s: duplicate attribute %q", c.Name, a.Name)
		case !value.IsValidType(a.Type):
			return fmt.Errorf("class %s: attribute %q has unknown type %q", c.Name, a.Name, a.Type)
		}
		seen[a.Name] = true
	}

	if c.Score != "" {
		a, ok := c.Attribute(c.Score)
		if !ok {
			return fmt.Errorf("class %s: score attribute %q is not declared", c.Name, c.Score)
		}
		if !value.Numeric(a.Type) {
			return fmt.Errorf("class %s: score attribute %q must be int or float, got %s", c.Name, c.Score, a.Type)
		}
	}

	names := make(map[string]bool, len(c.Associations))
	for _, assoc := range c.Associations {
		switch {
		case assoc.Name == "":
			return fmt.Errorf("class %s: association name is required", c.Name)
		case names[assoc.Name]:
			return fmt.Errorf("class %s: duplicate association %q", c.Name, assoc.Name)
		case assoc.Class == "":
			return fmt.Errorf("class %s: association %q needs a target class", c.Name, assoc.Name)
		}
		switch assoc.Kind {
		case HasMany, HasSortedSet, BelongsTo:
		default:
			return fmt.Errorf("class %s: association %q has unknown kind %q", c.Name, assoc.Name, assoc.Kind)
		}
		if assoc.Kind == BelongsTo && assoc.Dependent {
			return fmt.Errorf("class %s: belongs_to %q cannot be dependent", c.Name, assoc.Name)
		}
		names[assoc.Name] = true
	}

	return nil
}

// DefaultKey derives a storage namespace from a class name:
// "InfluxDBExample" becomes "influx_db_example".
func DefaultKey(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
