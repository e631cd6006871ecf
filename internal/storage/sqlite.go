package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitcredit/internal/models"
)

// SQLiteStore implements storage using SQLite (the local default)
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL lets `status` read while `analyze` writes
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		commit_count INTEGER NOT NULL,
		verified_count INTEGER NOT NULL,
		outstanding_count INTEGER NOT NULL,
		total_verified_loc INTEGER NOT NULL,
		identity_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outstanding_commits (
		run_id TEXT NOT NULL,
		sha TEXT NOT NULL,
		parent_shas TEXT,
		author_name TEXT,
		author_email TEXT,
		committer_name TEXT,
		committer_email TEXT,
		committed_at DATETIME,
		summary TEXT,
		reason TEXT NOT NULL,
		key_id TEXT,
		PRIMARY KEY (run_id, sha),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_repository ON runs(repository, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its outstanding commits
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.RunSummary, outstanding []*models.OutstandingCommit) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs
		(id, repository, started_at, finished_at, commit_count, verified_count,
		 outstanding_count, total_verified_loc, identity_count)
		VALUES (:id, :repository, :started_at, :finished_at, :commit_count, :verified_count,
		 :outstanding_count, :total_verified_loc, :identity_count)
	`, run)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO outstanding_commits
		(run_id, sha, parent_shas, author_name, author_email, committer_name,
		 committer_email, committed_at, summary, reason, key_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, oc := range outstanding {
		r := toRow(run.ID, oc)
		_, err := tx.ExecContext(ctx, query,
			r.RunID, r.SHA, strings.Join(oc.ParentSHAs, " "), r.AuthorName, r.AuthorEmail,
			r.CommitterName, r.CommitterEmail, r.CommittedAt, r.Summary, r.Reason, r.KeyID)
		if err != nil {
			return fmt.Errorf("save outstanding commit %s: %w", oc.SHA, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the latest runs, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, repository string, limit int) ([]*models.RunSummary, error) {
	var runs []*models.RunSummary

	query := `SELECT * FROM runs`
	args := []interface{}{}

	if repository != "" {
		query += ` WHERE repository = ?`
		args = append(args, repository)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns a single run
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	var run models.RunSummary
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// GetOutstanding returns the outstanding commits of a run ordered by sha
func (s *SQLiteStore) GetOutstanding(ctx context.Context, runID string) ([]*models.OutstandingCommit, error) {
	var rows []struct {
		outstandingRow
		ParentSHAs sql.NullString `db:"parent_shas"`
	}

	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, sha, parent_shas, author_name, author_email, committer_name,
		       committer_email, committed_at, summary, reason, key_id
		FROM outstanding_commits WHERE run_id = ? ORDER BY sha
	`, runID)
	if err != nil {
		return nil, err
	}

	commits := make([]*models.OutstandingCommit, 0, len(rows))
	for _, r := range rows {
		commits = append(commits, r.toModel(strings.Fields(r.ParentSHAs.String)))
	}
	return commits, nil
}
