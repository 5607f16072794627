// internal/store/queries.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"addons-catalog/internal/model"
)

// listDelimiter joins dependency and maintainer names into a single column.
// Manifest entries never contain commas, so the round trip is lossless.
const listDelimiter = ","

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the same query set runs
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles all store operations over a DB or transaction handle.
type Queries struct {
	db DBTX
}

// New binds a query set to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// UpsertRepository inserts the repository identified by (organization, name)
// or leaves the existing row in place, returning its id either way.
func (q *Queries) UpsertRepository(ctx context.Context, organization, name string) (model.Repository, error) {
	repo := model.Repository{Organization: organization, Name: name}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO repositories (organization, name) VALUES (?, ?)
		ON CONFLICT (organization, name) DO UPDATE SET name = excluded.name
		RETURNING id`,
		organization, name).Scan(&repo.ID)
	if err != nil {
		return model.Repository{}, fmt.Errorf("upsert repository %s/%s: %w", organization, name, err)
	}
	return repo, nil
}

// UpsertModule writes a module's latest manifest metadata, overwriting any
// previous run's values (last-write-wins), and returns the row id.
func (q *Queries) UpsertModule(ctx context.Context, m model.Module) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO modules (repository_id, name, title, author, depends, maintainers,
		                     development_status, summary, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repository_id, name) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			depends = excluded.depends,
			maintainers = excluded.maintainers,
			development_status = excluded.development_status,
			summary = excluded.summary,
			description = excluded.description
		RETURNING id`,
		m.RepositoryID, m.Name, m.Title, m.Author,
		joinList(m.Depends), joinList(m.Maintainers),
		toNullString(m.DevelopmentStatus), toNullString(m.Summary), toNullString(m.Description)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert module %s: %w", m.Name, err)
	}
	return id, nil
}

// UpsertCommit stores one commit, recomputing the same fields on conflict,
// and returns the row id.
func (q *Queries) UpsertCommit(ctx context.Context, c model.Commit) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO commits (repository_id, hash, commit_date, author_name, author_email, subject)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (repository_id, hash) DO UPDATE SET
			commit_date = excluded.commit_date,
			author_name = excluded.author_name,
			author_email = excluded.author_email,
			subject = excluded.subject
		RETURNING id`,
		c.RepositoryID, c.Hash, c.Date.Format(time.RFC3339),
		c.AuthorName, c.AuthorEmail, c.Subject).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert commit %s: %w", c.Hash, err)
	}
	return id, nil
}

// LatestCommitHash returns the hash of the most recently inserted commit for
// the repository, by insertion sequence rather than commit date (dates are
// not monotonic across merged or rewritten history). Empty when none stored.
func (q *Queries) LatestCommitHash(ctx context.Context, repositoryID int64) (string, error) {
	var hash string
	err := q.db.QueryRowContext(ctx, `
		SELECT hash FROM commits WHERE repository_id = ? ORDER BY id DESC LIMIT 1`,
		repositoryID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest commit hash: %w", err)
	}
	return hash, nil
}

// LinkModuleCommit records that a commit touched a module. Duplicates are
// skipped; the return value reports whether a new row was written.
func (q *Queries) LinkModuleCommit(ctx context.Context, commitID, moduleID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO module_commits (commit_id, module_id) VALUES (?, ?)
		ON CONFLICT (commit_id, module_id) DO NOTHING`,
		commitID, moduleID)
	if err != nil {
		return false, fmt.Errorf("link module %d to commit %d: %w", moduleID, commitID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetRepositoryByOrgAndName looks a repository up by its identifying pair.
// sql.ErrNoRows passes through for the caller to detect absence.
func (q *Queries) GetRepositoryByOrgAndName(ctx context.Context, organization, name string) (model.Repository, error) {
	repo := model.Repository{Organization: organization, Name: name}
	err := q.db.QueryRowContext(ctx, `
		SELECT id FROM repositories WHERE organization = ? AND name = ?`,
		organization, name).Scan(&repo.ID)
	if err != nil {
		return model.Repository{}, err
	}
	return repo, nil
}

// ListModules returns a repository's modules ordered by name.
func (q *Queries) ListModules(ctx context.Context, repositoryID int64) ([]model.Module, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, repository_id, name, title, author, depends, maintainers,
		       development_status, summary, description
		FROM modules WHERE repository_id = ? ORDER BY name`,
		repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []model.Module
	for rows.Next() {
		var m model.Module
		var depends, maintainers string
		var status, summary, description sql.NullString
		err := rows.Scan(&m.ID, &m.RepositoryID, &m.Name, &m.Title, &m.Author,
			&depends, &maintainers, &status, &summary, &description)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		m.Depends = splitList(depends)
		m.Maintainers = splitList(maintainers)
		m.DevelopmentStatus = status.String
		m.Summary = summary.String
		m.Description = description.String
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// ListCommits returns a repository's commits in insertion order.
func (q *Queries) ListCommits(ctx context.Context, repositoryID int64) ([]model.Commit, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, repository_id, hash, commit_date, author_name, author_email, subject
		FROM commits WHERE repository_id = ? ORDER BY id`,
		repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		var date string
		err := rows.Scan(&c.ID, &c.RepositoryID, &c.Hash, &date, &c.AuthorName, &c.AuthorEmail, &c.Subject)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		c.Date, err = time.Parse(time.RFC3339, date)
		if err != nil {
			return nil, fmt.Errorf("parse commit date %q: %w", date, err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// ListModuleCommits returns all association rows for a repository's commits.
func (q *Queries) ListModuleCommits(ctx context.Context, repositoryID int64) ([]model.ModuleCommit, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT mc.commit_id, mc.module_id
		FROM module_commits mc
		JOIN commits c ON c.id = mc.commit_id
		WHERE c.repository_id = ?
		ORDER BY mc.commit_id, mc.module_id`,
		repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list module commits: %w", err)
	}
	defer rows.Close()

	var links []model.ModuleCommit
	for rows.Next() {
		var link model.ModuleCommit
		if err := rows.Scan(&link.CommitID, &link.ModuleID); err != nil {
			return nil, fmt.Errorf("scan module commit: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func joinList(items []string) string {
	return strings.Join(items, listDelimiter)
}

func splitList(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, listDelimiter)
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
