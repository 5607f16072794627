// cmd/service/integration_test.go
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunEndToEnd drives the whole pipeline through run(): a local source
// repository stands in for the remote, and the store, working copies and
// snapshots all land in temp directories.
func TestRunEndToEnd(t *testing.T) {
	srcRoot := t.TempDir()
	srcPath := filepath.Join(srcRoot, "acme", "addons")
	require.NoError(t, os.MkdirAll(srcPath, 0o755))

	repo, err := gogit.PlainInit(srcPath, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	writeFile := func(name, content string) {
		full := filepath.Join(srcPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := worktree.Add(name)
		require.NoError(t, err)
	}
	commit := func(msg string) {
		_, err := worktree.Commit(msg, &gogit.CommitOptions{
			Author: &object.Signature{Name: "Tester", Email: "t@example.com", When: time.Now()},
		})
		require.NoError(t, err)
	}

	writeFile("sale_extra/__manifest__.py", `{'name': 'Sale Extra', 'author': 'Acme', 'depends': ['sale']}`)
	commit("add sale_extra")
	require.NoError(t, worktree.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("17.0"),
		Create: true,
	}))

	reposFile := filepath.Join(t.TempDir(), "repos.yaml")
	require.NoError(t, os.WriteFile(reposFile, []byte("acme:\n  - addons\n"), 0o644))

	dataDir := t.TempDir()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("CLONE_DIR", t.TempDir())
	t.Setenv("SNAPSHOT_DIR", dataDir)
	t.Setenv("REPOS_FILE", reposFile)
	t.Setenv("GIT_BASE_URL", srcRoot)
	t.Setenv("VERSION", "17.0")
	t.Setenv("CLEAN", "true")

	require.NoError(t, run())

	// Store file per version label.
	assert.FileExists(t, filepath.Join(dataDir, "catalog-17.0.db"))

	// Full metadata snapshot.
	raw, err := os.ReadFile(filepath.Join(dataDir, "modules-17.0.json"))
	require.NoError(t, err)
	var full map[string]map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &full))
	assert.Contains(t, full["acme"]["addons"], "sale_extra")

	// Module-name listing snapshot mirrors the full snapshot's keys.
	raw, err = os.ReadFile(filepath.Join(dataDir, "module-names-17.0.json"))
	require.NoError(t, err)
	var names map[string]map[string][]string
	require.NoError(t, json.Unmarshal(raw, &names))
	assert.Equal(t, []string{"sale_extra"}, names["acme"]["addons"])
}
