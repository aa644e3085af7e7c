package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Store operations. Callers check them with
// errors.Is.
var (
	// ErrNotFound indicates the referenced conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrConstraint indicates a write referenced a missing conversation,
	// e.g. appending a message to an id that was never created or was
	// already deleted.
	ErrConstraint = errors.New("constraint violation")

	// ErrUnavailable indicates the underlying database is unreachable or
	// corrupted. The original driver error is carried in the message.
	ErrUnavailable = errors.New("storage unavailable")
)

// classify maps driver-level failures onto the store's error taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isConstraint(err):
		return ErrConstraint
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// isConstraint reports whether err is a SQLite foreign-key violation, the
// only constraint the taxonomy names (a write referencing a missing
// conversation). The glebarez driver surfaces it as a plain error carrying
// the SQLite message, so matching on the message is the only option short
// of depending on driver internals. Other constraint classes (UNIQUE, NOT
// NULL) deliberately fall through to ErrUnavailable.
func isConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
