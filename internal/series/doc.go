// Package series provides a schema-less, append-only, columnar point store
// on SQLite.
//
// Each measurement is one table. A point belongs to a series named
// "<measurement>/<id>" and carries any set of fields; the first write of a
// field adds a column for it. Points are never updated or deleted: an update
// is a newer point, and a delete is a tombstone point. Readers select the
// latest point of each series.
//
// # Tables
//
//	seq       INTEGER PRIMARY KEY AUTOINCREMENT   write order
//	series    TEXT    "<measurement>/<id>"
//	id        TEXT    the series id suffix
//	time      INTEGER write time, unix nanoseconds
//	_deleted  INTEGER 1 for tombstones
//	<field>   untyped column, one per field ever written
//
// Field columns carry no declared type, so SQLite stores each value with the
// storage class it was written with. Booleans are written as 'true'/'false'
// text, lists as JSON text and times as unix nanoseconds.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - One open connection: SQLite has a single writer
package series
