// internal/syncer/syncer_test.go
package syncer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "addons-catalog/internal/errors"
	"addons-catalog/internal/git"
	"addons-catalog/internal/manifest"
	"addons-catalog/internal/store"
)

const testVersion = "17.0"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	syncer   *Syncer
	store    *store.Store
	srcRoot  string
	worktree *gogit.Worktree
	srcPath  string
}

// newFixture builds a source repository under srcRoot/acme/addons on branch
// 17.0 (initial commit included) and a Syncer wired to a fresh store.
func newFixture(t *testing.T, initial map[string]string, initialMsg string) *fixture {
	t.Helper()
	srcRoot := t.TempDir()
	srcPath := filepath.Join(srcRoot, "acme", "addons")
	require.NoError(t, os.MkdirAll(srcPath, 0o755))
	repo, err := gogit.PlainInit(srcPath, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	f := &fixture{srcRoot: srcRoot, worktree: worktree, srcPath: srcPath}
	f.commit(t, initial, initialMsg)
	require.NoError(t, worktree.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(testVersion),
		Create: true,
	}))

	logger := testLogger()
	st, err := store.Open(filepath.Join(t.TempDir(), "catalog-test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())

	targets := []RepoTarget{{Organization: "acme", Name: "addons", Version: testVersion}}
	f.store = st
	f.syncer = New(st, git.NewClient(srcRoot, "", logger), manifest.NewExtractor(logger), logger, t.TempDir(), targets)
	return f
}

func (f *fixture) commit(t *testing.T, files map[string]string, message string) string {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(f.srcPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := f.worktree.Add(name)
		require.NoError(t, err)
	}
	hash, err := f.worktree.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

const manifestA = `{'name': 'Module A', 'author': 'Acme', 'depends': []}`
const manifestB = `{'name': 'Module B', 'author': 'Acme', 'installable': False}`

// Scenario from the attribution contract: modules a (installable) and b
// (installable: False), three commits — the first touching a, the second b,
// the third a plus an untracked path c.
func TestRunAttributesCommitsToModules(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a/__manifest__.py": manifestA,
		"a/README":          "module a",
	}, "add module a")
	f.commit(t, map[string]string{
		"b/__manifest__.py": manifestB,
		"b/x.py":            "pass",
	}, "add module b")
	f.commit(t, map[string]string{
		"a/__manifest__.py": manifestA + " # touched",
		"c/unrelated.txt":   "c",
	}, "update a, add c")

	ctx := context.Background()
	result, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	// Only the installable module appears, in the store and in the result.
	require.Contains(t, result.Modules, "acme")
	require.Contains(t, result.Modules["acme"], "addons")
	modules := result.Modules["acme"]["addons"]
	require.Len(t, modules, 1)
	assert.Equal(t, "Module A", modules["a"].Title)

	repo, err := f.store.GetRepositoryByOrgAndName(ctx, "acme", "addons")
	require.NoError(t, err)

	stored, err := f.store.ListModules(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].Name)

	// Every commit persists, even ones touching no known module.
	commits, err := f.store.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "add module a", commits[0].Subject)
	assert.Equal(t, "update a, add c", commits[2].Subject)

	// Exactly two associations, both to module a: commits 1 and 3. Commit 2
	// touched only the non-installable b; path c matches no module.
	links, err := f.store.ListModuleCommits(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, link := range links {
		assert.Equal(t, stored[0].ID, link.ModuleID)
	}
	assert.Equal(t, []int64{commits[0].ID, commits[2].ID}, []int64{links[0].CommitID, links[1].CommitID})
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, map[string]string{"a/__manifest__.py": manifestA}, "add module a")

	ctx := context.Background()
	_, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	repo, err := f.store.GetRepositoryByOrgAndName(ctx, "acme", "addons")
	require.NoError(t, err)
	firstCommits, err := f.store.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	firstModules, err := f.store.ListModules(ctx, repo.ID)
	require.NoError(t, err)

	// Second run against an unchanged remote: no new rows, no changed ids.
	second, err := f.syncer.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.NewCommits)

	secondCommits, err := f.store.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	secondModules, err := f.store.ListModules(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, firstCommits, secondCommits)
	assert.Equal(t, firstModules, secondModules)

	links, err := f.store.ListModuleCommits(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestRunResumesFromLastStoredCommit(t *testing.T) {
	f := newFixture(t, map[string]string{"a/__manifest__.py": manifestA}, "add module a")

	ctx := context.Background()
	_, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	// One new upstream commit between runs.
	f.commit(t, map[string]string{"a/models.py": "x = 1"}, "extend a")

	result, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	repo, err := f.store.GetRepositoryByOrgAndName(ctx, "acme", "addons")
	require.NoError(t, err)
	commits, err := f.store.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "extend a", commits[1].Subject)

	links, err := f.store.ListModuleCommits(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	// The second run only walked the one new commit.
	assert.Equal(t, 1, result.NewCommits)
}

func TestRunSkipsFailingRepository(t *testing.T) {
	f := newFixture(t, map[string]string{"a/__manifest__.py": manifestA}, "add module a")

	// A second target whose source repository does not exist: it must be
	// skipped without aborting the batch.
	f.syncer.targets = append([]RepoTarget{
		{Organization: "acme", Name: "missing", Version: testVersion},
	}, f.syncer.targets...)

	ctx := context.Background()
	result, err := f.syncer.Run(ctx)
	require.NoError(t, err)

	assert.Contains(t, result.Modules["acme"], "addons")
	assert.NotContains(t, result.Modules["acme"], "missing")
}

func TestBuildTargets(t *testing.T) {
	orgs := map[string][]string{
		"beta": {"tools"},
		"acme": {"addons", "extras"},
	}

	t.Run("expands all in deterministic order", func(t *testing.T) {
		targets, err := BuildTargets(orgs, "17.0", "")
		require.NoError(t, err)
		assert.Equal(t, []RepoTarget{
			{Organization: "acme", Name: "addons", Version: "17.0"},
			{Organization: "acme", Name: "extras", Version: "17.0"},
			{Organization: "beta", Name: "tools", Version: "17.0"},
		}, targets)
	})

	t.Run("filter restricts the run", func(t *testing.T) {
		targets, err := BuildTargets(orgs, "17.0", "acme/extras, beta/tools")
		require.NoError(t, err)
		assert.Equal(t, []RepoTarget{
			{Organization: "acme", Name: "extras", Version: "17.0"},
			{Organization: "beta", Name: "tools", Version: "17.0"},
		}, targets)
	})

	t.Run("rejects malformed filter entries", func(t *testing.T) {
		_, err := BuildTargets(orgs, "17.0", "not-a-pair")
		var invalid *custom_errors.ErrInvalidRepoFormat
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "not-a-pair", invalid.Repo)
	})
}

func TestPathPrefixAttributor(t *testing.T) {
	a := PathPrefixAttributor{}

	name, ok := a.ModuleFor("sale_extra/models/sale.py")
	require.True(t, ok)
	assert.Equal(t, "sale_extra", name)

	_, ok = a.ModuleFor("README.md")
	assert.False(t, ok, "root files belong to no module")
}
