// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidRepoFormat is returned when a filter entry is not in 'organization/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'organization/name'", e.Repo)
}

// ErrMissingField is returned when a manifest lacks one of its required keys.
type ErrMissingField struct {
	Field string
	Path  string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("manifest %s: missing required field %q", e.Path, e.Field)
}
