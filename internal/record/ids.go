package record

import (
	"github.com/google/uuid"
)

// IDGenerator assigns ids to records saved without one.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 record ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids of records
// created later sort after earlier ones.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// TempKey returns a fresh key name for a scratch structure. Temp keys live in
// their own "tmp" namespace and never collide with class keys.
func TempKey() string {
	return "tmp:" + uuid.NewString()
}
