// internal/model/models.go
package model

import "time"

// Repository is a tracked source repository, identified by (organization, name).
type Repository struct {
	ID           int64
	Organization string
	Name         string
}

// Module is an installable addon living in its own top-level directory of a
// repository. Identified by (repository, name) where name is the directory name.
type Module struct {
	ID                int64
	RepositoryID      int64
	Name              string
	Title             string
	Author            string
	Depends           []string
	Maintainers       []string
	DevelopmentStatus string
	Summary           string
	Description       string
}

// Commit is a single commit of a repository, identified by (repository, hash).
// Date keeps the author timestamp; the subject is the first message line only.
type Commit struct {
	ID           int64
	RepositoryID int64
	Hash         string
	Date         time.Time
	AuthorName   string
	AuthorEmail  string
	Subject      string
}

// ModuleCommit links a commit to one module it touched. Both sides belong to
// the same repository; the pair is unique.
type ModuleCommit struct {
	CommitID int64
	ModuleID int64
}

// ModuleMeta is the manifest-derived metadata of one module as it appears in
// the snapshot artifacts.
type ModuleMeta struct {
	Title             string   `json:"name"`
	Author            string   `json:"author"`
	Depends           []string `json:"depends"`
	Maintainers       []string `json:"maintainers"`
	DevelopmentStatus string   `json:"development_status,omitempty"`
	Summary           string   `json:"summary,omitempty"`
	Description       string   `json:"description,omitempty"`
}

// RepoResult is what processing a single repository yields: the modules that
// survived extraction, keyed by directory name, plus ingestion counters.
type RepoResult struct {
	Organization string
	Repository   string
	Modules      map[string]ModuleMeta
	NewCommits   int
	Links        int
}

// RunResult is the aggregate of a full batch run, merged repository by
// repository: organization -> repository -> module name -> metadata.
type RunResult struct {
	Modules    map[string]map[string]map[string]ModuleMeta
	NewCommits int
	Links      int
}

// NewRunResult returns an empty aggregate ready for merging.
func NewRunResult() *RunResult {
	return &RunResult{Modules: make(map[string]map[string]map[string]ModuleMeta)}
}

// Merge folds one repository's result into the aggregate. The last write for
// a given (organization, repository) wins, matching the per-run overwrite
// semantics of module metadata.
func (r *RunResult) Merge(res *RepoResult) {
	if res == nil {
		return
	}
	org, ok := r.Modules[res.Organization]
	if !ok {
		org = make(map[string]map[string]ModuleMeta)
		r.Modules[res.Organization] = org
	}
	org[res.Repository] = res.Modules
	r.NewCommits += res.NewCommits
	r.Links += res.Links
}
