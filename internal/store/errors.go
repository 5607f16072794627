// internal/store/errors.go
package store

import (
	"errors"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// IsConstraintViolation reports whether err is a SQLite constraint failure
// (unique, foreign key, not-null). These indicate a pipeline logic error
// rather than bad input, so callers treat them as fatal.
func IsConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
}
