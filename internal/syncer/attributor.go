// internal/syncer/attributor.go
package syncer

import "strings"

// Attributor decides which module a changed file path belongs to. The
// attribution loop filters its answers against the modules actually present
// in the repository, so an Attributor only proposes candidates.
type Attributor interface {
	// ModuleFor returns the candidate module name for a repository-relative
	// file path, or false when the path carries no module information.
	ModuleFor(path string) (string, bool)
}

// PathPrefixAttributor attributes a file to its first path segment: a commit
// touching "sale_extra/models/sale.py" touched module "sale_extra". This is
// the historical heuristic; files at the repository root match nothing.
type PathPrefixAttributor struct{}

func (PathPrefixAttributor) ModuleFor(path string) (string, bool) {
	head, _, found := strings.Cut(path, "/")
	if !found || head == "" {
		return "", false
	}
	return head, true
}
