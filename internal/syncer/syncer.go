// internal/syncer/syncer.go
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	custom_errors "addons-catalog/internal/errors"
	"addons-catalog/internal/git"
	"addons-catalog/internal/manifest"
	"addons-catalog/internal/model"
	"addons-catalog/internal/store"
)

// RepoTarget is one configured repository to process this run.
type RepoTarget struct {
	Organization string
	Name         string
	Version      string
}

// Syncer drives the ingestion pipeline: working-copy sync, manifest
// extraction and commit attribution, one repository at a time.
type Syncer struct {
	store      *store.Store
	gitClient  *git.Client
	extractor  *manifest.Extractor
	logger     *slog.Logger
	cloneDir   string
	targets    []RepoTarget
	attributor Attributor
}

// New creates a new Syncer instance with the default path-prefix attributor.
func New(st *store.Store, gitClient *git.Client, extractor *manifest.Extractor, logger *slog.Logger, cloneDir string, targets []RepoTarget) *Syncer {
	return &Syncer{
		store:      st,
		gitClient:  gitClient,
		extractor:  extractor,
		logger:     logger,
		cloneDir:   cloneDir,
		targets:    targets,
		attributor: PathPrefixAttributor{},
	}
}

// Run processes every configured repository sequentially. Each repository is
// handled in its own store transaction so a crash mid-batch loses at most the
// repository in progress. A repository that fails to sync or scan is logged
// and skipped; a store constraint violation is a logic error and aborts the
// run. The returned aggregate holds every repository that completed.
func (s *Syncer) Run(ctx context.Context) (*model.RunResult, error) {
	result := model.NewRunResult()
	for _, target := range s.targets {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var res *model.RepoResult
		err := s.store.WithTx(ctx, func(q *store.Queries) error {
			var err error
			res, err = s.syncRepo(ctx, q, target)
			return err
		})
		if err != nil {
			if store.IsConstraintViolation(err) {
				return result, fmt.Errorf("constraint violation on %s/%s: %w", target.Organization, target.Name, err)
			}
			s.logger.Error("Failed to process repository",
				"org", target.Organization, "repo", target.Name, "error", err)
			continue
		}
		result.Merge(res)
	}
	return result, nil
}

// syncRepo handles the full pipeline for a single repository inside one
// transaction.
func (s *Syncer) syncRepo(ctx context.Context, q *store.Queries, target RepoTarget) (*model.RepoResult, error) {
	logger := s.logger.With("org", target.Organization, "repo", target.Name)
	logger.Info("Syncing repository", "version", target.Version)

	path, err := s.gitClient.Sync(ctx, s.cloneDir, target.Organization, target.Name, target.Version)
	if err != nil {
		return nil, err
	}

	modules, err := s.extractor.ScanRepository(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Extracted modules", "count", len(modules))

	repo, err := q.UpsertRepository(ctx, target.Organization, target.Name)
	if err != nil {
		return nil, err
	}

	// Module ids must exist before any association row references them.
	moduleIDs := make(map[string]int64, len(modules))
	for _, name := range sortedKeys(modules) {
		meta := modules[name]
		id, err := q.UpsertModule(ctx, model.Module{
			RepositoryID:      repo.ID,
			Name:              name,
			Title:             meta.Title,
			Author:            meta.Author,
			Depends:           meta.Depends,
			Maintainers:       meta.Maintainers,
			DevelopmentStatus: meta.DevelopmentStatus,
			Summary:           meta.Summary,
			Description:       meta.Description,
		})
		if err != nil {
			return nil, err
		}
		moduleIDs[name] = id
	}

	res := &model.RepoResult{
		Organization: target.Organization,
		Repository:   target.Name,
		Modules:      modules,
	}

	last, err := q.LatestCommitHash(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	commits, err := s.gitClient.CommitsSince(path, last)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		logger.Info("No new commits found")
		return res, nil
	}
	logger.Info("Analyzing commits", "count", len(commits))

	for _, commit := range commits {
		commitID, err := q.UpsertCommit(ctx, model.Commit{
			RepositoryID: repo.ID,
			Hash:         commit.Hash,
			Date:         commit.When,
			AuthorName:   commit.AuthorName,
			AuthorEmail:  commit.AuthorEmail,
			Subject:      commit.Subject,
		})
		if err != nil {
			return nil, err
		}
		res.NewCommits++

		for _, name := range touchedModuleNames(s.attributor, commit.Files, moduleIDs) {
			inserted, err := q.LinkModuleCommit(ctx, commitID, moduleIDs[name])
			if err != nil {
				return nil, err
			}
			if inserted {
				res.Links++
			}
		}
	}
	logger.Info("Repository processed", "new_commits", res.NewCommits, "links", res.Links)
	return res, nil
}

// touchedModuleNames resolves a commit's file paths to the known modules
// they belong to, deduplicated, in deterministic order.
func touchedModuleNames(a Attributor, files []string, known map[string]int64) []string {
	seen := make(map[string]bool)
	for _, file := range files {
		name, ok := a.ModuleFor(file)
		if !ok {
			continue
		}
		if _, isModule := known[name]; !isModule {
			continue
		}
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildTargets expands the organization→repositories mapping into the run's
// target list, in deterministic order. only, when non-empty, is a
// comma-separated list of "organization/name" pairs restricting the run.
func BuildTargets(orgs map[string][]string, version, only string) ([]RepoTarget, error) {
	allowed, err := parseFilter(only)
	if err != nil {
		return nil, err
	}

	orgNames := make([]string, 0, len(orgs))
	for org := range orgs {
		orgNames = append(orgNames, org)
	}
	sort.Strings(orgNames)

	var targets []RepoTarget
	for _, org := range orgNames {
		for _, repo := range orgs[org] {
			if allowed != nil && !allowed[org+"/"+repo] {
				continue
			}
			targets = append(targets, RepoTarget{Organization: org, Name: repo, Version: version})
		}
	}
	return targets, nil
}

// parseFilter returns nil when no restriction was requested.
func parseFilter(only string) (map[string]bool, error) {
	if strings.TrimSpace(only) == "" {
		return nil, nil
	}
	allowed := make(map[string]bool)
	for _, entry := range strings.Split(only, ",") {
		entry = strings.TrimSpace(entry)
		parts := strings.Split(entry, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &custom_errors.ErrInvalidRepoFormat{Repo: entry}
		}
		allowed[entry] = true
	}
	return allowed, nil
}

func sortedKeys(m map[string]model.ModuleMeta) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
