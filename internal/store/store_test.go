// internal/store/store_test.go
package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"addons-catalog/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "catalog-test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Migrate())
}

func TestUpsertRepository(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertRepository(ctx, "acme", "addons")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	// Re-seen repository keeps its id.
	second, err := s.UpsertRepository(ctx, "acme", "addons")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := s.UpsertRepository(ctx, "acme", "other")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestUpsertModuleLastWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo, err := s.UpsertRepository(ctx, "acme", "addons")
	require.NoError(t, err)

	mod := model.Module{
		RepositoryID: repo.ID,
		Name:         "sale_extra",
		Title:        "Sale Extra",
		Author:       "Example, Inc.",
		Depends:      []string{"sale", "stock"},
		Maintainers:  []string{"alice", "bob"},
		Summary:      "v1",
	}
	firstID, err := s.UpsertModule(ctx, mod)
	require.NoError(t, err)

	mod.Title = "Sale Extra Renamed"
	mod.Depends = []string{"sale"}
	mod.Summary = "v2"
	secondID, err := s.UpsertModule(ctx, mod)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	modules, err := s.ListModules(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "Sale Extra Renamed", modules[0].Title)
	assert.Equal(t, []string{"sale"}, modules[0].Depends)
	assert.Equal(t, []string{"alice", "bob"}, modules[0].Maintainers)
	assert.Equal(t, "v2", modules[0].Summary)
}

func TestListRoundTripsEmptyLists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo, err := s.UpsertRepository(ctx, "acme", "addons")
	require.NoError(t, err)

	_, err = s.UpsertModule(ctx, model.Module{
		RepositoryID: repo.ID, Name: "bare", Title: "Bare", Author: "A",
		Depends: []string{}, Maintainers: []string{},
	})
	require.NoError(t, err)

	modules, err := s.ListModules(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Empty(t, modules[0].Depends)
	assert.Empty(t, modules[0].Maintainers)
}

func TestUpsertCommitAndLatestHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo, err := s.UpsertRepository(ctx, "acme", "addons")
	require.NoError(t, err)

	hash, err := s.LatestCommitHash(ctx, repo.ID)
	require.NoError(t, err)
	assert.Empty(t, hash, "no commits stored yet")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// The second commit carries an older date on purpose: resumption is by
	// insertion sequence, never by date.
	firstID, err := s.UpsertCommit(ctx, model.Commit{
		RepositoryID: repo.ID, Hash: "aaa", Date: base,
		AuthorName: "Tester", AuthorEmail: "t@example.com", Subject: "first",
	})
	require.NoError(t, err)
	_, err = s.UpsertCommit(ctx, model.Commit{
		RepositoryID: repo.ID, Hash: "bbb", Date: base.Add(-time.Hour),
		AuthorName: "Tester", AuthorEmail: "t@example.com", Subject: "second",
	})
	require.NoError(t, err)

	hash, err = s.LatestCommitHash(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "bbb", hash)

	// Re-upserting an earlier commit must not duplicate it or disturb the
	// insertion sequence.
	againID, err := s.UpsertCommit(ctx, model.Commit{
		RepositoryID: repo.ID, Hash: "aaa", Date: base,
		AuthorName: "Tester", AuthorEmail: "t@example.com", Subject: "first",
	})
	require.NoError(t, err)
	assert.Equal(t, firstID, againID)

	hash, err = s.LatestCommitHash(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "bbb", hash)

	commits, err := s.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "aaa", commits[0].Hash)
	assert.Equal(t, base, commits[0].Date)
}

func TestLinkModuleCommitSkipsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo, err := s.UpsertRepository(ctx, "acme", "addons")
	require.NoError(t, err)
	modID, err := s.UpsertModule(ctx, model.Module{RepositoryID: repo.ID, Name: "a", Title: "A", Author: "X"})
	require.NoError(t, err)
	commitID, err := s.UpsertCommit(ctx, model.Commit{
		RepositoryID: repo.ID, Hash: "ccc", Date: time.Now().UTC().Truncate(time.Second),
		AuthorName: "Tester", AuthorEmail: "t@example.com", Subject: "touch a",
	})
	require.NoError(t, err)

	inserted, err := s.LinkModuleCommit(ctx, commitID, modID)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.LinkModuleCommit(ctx, commitID, modID)
	require.NoError(t, err)
	assert.False(t, inserted)

	links, err := s.ListModuleCommits(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestLinkModuleCommitEnforcesReferences(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LinkModuleCommit(context.Background(), 9999, 9999)
	require.Error(t, err, "association rows without parents must be rejected")
	assert.True(t, IsConstraintViolation(err))
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(q *Queries) error {
		_, err := q.UpsertRepository(ctx, "acme", "committed")
		return err
	})
	require.NoError(t, err)

	failure := assert.AnError
	err = s.WithTx(ctx, func(q *Queries) error {
		if _, err := q.UpsertRepository(ctx, "acme", "rolled-back"); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	_, err = s.GetRepositoryByOrgAndName(ctx, "acme", "committed")
	assert.NoError(t, err)
	_, err = s.GetRepositoryByOrgAndName(ctx, "acme", "rolled-back")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
