package record

import "strings"

// Kind is the role a key plays in the backend.
type Kind string

const (
	KindAttribute   Kind = "attribute"
	KindIndex       Kind = "index"
	KindAssociation Kind = "association"
)

// Shape is the storage structure behind a key.
type Shape string

const (
	ShapeScalar    Shape = "scalar"
	ShapeSet       Shape = "set"
	ShapeSortedSet Shape = "sorted_set"
	ShapeList      Shape = "list"
	ShapeHash      Shape = "hash"
)

// Key describes one backend storage location.
//
// Class is the owning class's storage key, ID is the owning record's id (empty
// for class-level keys), Name is the location name within the owner.
type Key struct {
	Class string
	ID    string
	Name  string
	Kind  Kind
	Shape Shape
}

// NewKey creates a class-level key.
func NewKey(class, name string, kind Kind, shape Shape) Key {
	return Key{Class: class, Name: name, Kind: kind, Shape: shape}
}

// NewRecordKey creates a key owned by a single record.
func NewRecordKey(class, id, name string, kind Kind, shape Shape) Key {
	return Key{Class: class, ID: id, Name: name, Kind: kind, Shape: shape}
}

// String renders the storage name of the key.
func (k Key) String() string {
	if k.ID == "" {
		return k.Class + ":" + k.Name
	}
	return k.Class + ":" + k.ID + ":" + k.Name
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// IndexKey returns the key of the set holding ids of classKey records whose
// attr currently has the value encoded by token. The token must already be
// escaped (see index.Escape).
func IndexKey(classKey, attr, token string) Key {
	return NewKey(classKey, "by_"+attr+":"+token, KindIndex, ShapeSet)
}

// IDsKey returns the key of the set of every persisted id of a class.
func IDsKey(classKey string) Key {
	return NewKey(classKey, "ids", KindAttribute, ShapeSet)
}

// ScoresKey returns the key of the sorted set of class ids scored by the
// class score attribute.
func ScoresKey(classKey string) Key {
	return NewKey(classKey, "by_score", KindIndex, ShapeSortedSet)
}

// AttrsKey returns the key of the hash holding a record's attributes.
func AttrsKey(classKey, id string) Key {
	return NewRecordKey(classKey, id, "attrs", KindAttribute, ShapeHash)
}

// AssociationKey returns the key of the id collection behind a record's
// association. The key name doubles as the field name holding the id list in
// column-oriented backends.
func AssociationKey(classKey, id, assoc string, shape Shape) Key {
	return NewRecordKey(classKey, id, AssociationField(assoc), KindAssociation, shape)
}

// AssociationField returns the field name holding an association's ids.
func AssociationField(assoc string) string {
	return assoc + "_ids"
}

// ParseKey parses a rendered key name back into its class, id and name parts.
// Kind and shape are not recoverable from the name and are left empty.
func ParseKey(s string) (Key, bool) {
	parts := strings.SplitN(s, ":", 3)
	switch len(parts) {
	case 2:
		return Key{Class: parts[0], Name: parts[1]}, parts[0] != "" && parts[1] != ""
	case 3:
		// index names contain a colon of their own: by_<attr>:<token>
		if strings.HasPrefix(parts[1], "by_") {
			return Key{Class: parts[0], Name: parts[1] + ":" + parts[2]}, true
		}
		return Key{Class: parts[0], ID: parts[1], Name: parts[2]}, parts[0] != "" && parts[2] != ""
	default:
		return Key{}, false
	}
}
