// Package record provides the backend-neutral record model: storage keys,
// class declarations, the class registry, typed records with dirty tracking,
// and the not-found errors raised by filter terminals.
//
// # Keys
//
// A Key is an opaque descriptor of a backend storage location. Keys are plain
// comparable values; two keys are equal iff every field matches. The pure
// constructors (IndexKey, IDsKey, ScoresKey, AttrsKey, AssociationKey) are
// the only place key names are spelled, so no backend interpolates key names
// on its own.
//
// Rendered names follow the set store convention:
//
//	<class>:<name>        class-level keys (ids, by_score, by_<attr>:<token>)
//	<class>:<id>:<name>   record-level keys (attrs, <assoc>_ids)
//
// # Classes
//
// A Class declares a record type: its storage namespace, typed attributes
// (some of them indexed), an optional score attribute used as the range
// dimension, and associations to other classes. Classes are grouped in a
// Registry, which resolves association targets and computes the transitive
// set of associated classes used for cascade lock scope.
package record
