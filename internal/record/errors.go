package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAttribute is returned when a predicate, sort step or
	// assignment names an attribute the class does not declare.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrUnknownAssociation is returned for an undeclared association name.
	ErrUnknownAssociation = errors.New("unknown association")

	// ErrInvalidID is returned for ids that cannot be stored: empty ids and
	// ids containing key delimiters.
	ErrInvalidID = errors.New("invalid record id")

	// ErrNotPersisted is returned when an association is changed through an
	// owner that has not been saved.
	ErrNotPersisted = errors.New("record not persisted")
)

// RecordNotFoundError reports a single id missing from a resolved set.
type RecordNotFoundError struct {
	Class string
	ID    string
}

// Error implements the error interface.
func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s id=%s", e.Class, e.ID)
}

// RecordsNotFoundError reports the ids of a batch lookup that were missing.
// IDs holds exactly the missing ids, in request order.
type RecordsNotFoundError struct {
	Class string
	IDs   []string
}

// Error implements the error interface.
func (e *RecordsNotFoundError) Error() string {
	return fmt.Sprintf("records not found: %s ids=[%s]", e.Class, strings.Join(e.IDs, ", "))
}

// IsNotFound reports whether err is a RecordNotFoundError or a
// RecordsNotFoundError. Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var one *RecordNotFoundError
	if errors.As(err, &one) {
		return true
	}
	var many *RecordsNotFoundError
	return errors.As(err, &many)
}

// ValidateID checks that id can be embedded in key names.
func ValidateID(id string) error {
	if id == "" || strings.ContainsAny(id, ": /") {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}
