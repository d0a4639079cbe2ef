// Package setstore is an in-process, Redis-shaped data structure store.
//
// It owns four kinds of keys:
//
//   - sets: roaring bitmaps over interned member ids
//   - sorted sets: members ordered by (score, member)
//   - hashes: field to string value maps
//
// A missing key behaves as an empty structure of whatever kind the command
// expects. Using a key with a command of another kind fails with
// ErrWrongType. Structures that become empty are deleted.
//
// Every command runs under the store mutex, so each one is atomic with
// respect to every other; SMove in particular never exposes a state where the
// member is absent from both sets.
//
// Snapshots serialize the whole store as msgpack inside a zstd stream.
package setstore
