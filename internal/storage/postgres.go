package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitcredit/internal/models"
)

// PostgresStore implements storage using PostgreSQL, for teams sharing one
// run history.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		commit_count INTEGER NOT NULL,
		verified_count INTEGER NOT NULL,
		outstanding_count INTEGER NOT NULL,
		total_verified_loc BIGINT NOT NULL,
		identity_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outstanding_commits (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		sha TEXT NOT NULL,
		parent_shas TEXT[] NOT NULL DEFAULT '{}',
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		committer_name TEXT NOT NULL DEFAULT '',
		committer_email TEXT NOT NULL DEFAULT '',
		committed_at TIMESTAMPTZ,
		summary TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		key_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, sha)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_repository ON runs(repository, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its outstanding commits
func (s *PostgresStore) SaveRun(ctx context.Context, run *models.RunSummary, outstanding []*models.OutstandingCommit) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, repository, started_at, finished_at, commit_count,
			verified_count, outstanding_count, total_verified_loc, identity_count)
		VALUES (:id, :repository, :started_at, :finished_at, :commit_count,
			:verified_count, :outstanding_count, :total_verified_loc, :identity_count)
	`, run)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	query := `
		INSERT INTO outstanding_commits (run_id, sha, parent_shas, author_name, author_email,
			committer_name, committer_email, committed_at, summary, reason, key_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, sha) DO UPDATE SET
			reason = EXCLUDED.reason,
			key_id = EXCLUDED.key_id
	`
	for _, oc := range outstanding {
		r := toRow(run.ID, oc)
		parents := oc.ParentSHAs
		if parents == nil {
			parents = []string{}
		}
		_, err := tx.ExecContext(ctx, query,
			r.RunID, r.SHA, pq.Array(parents), r.AuthorName, r.AuthorEmail,
			r.CommitterName, r.CommitterEmail, r.CommittedAt, r.Summary, r.Reason, r.KeyID)
		if err != nil {
			return fmt.Errorf("save outstanding commit %s: %w", oc.SHA, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"outstanding": len(outstanding),
	}).Debug("Run recorded in postgres")
	return nil
}

// ListRuns returns the latest runs, newest first
func (s *PostgresStore) ListRuns(ctx context.Context, repository string, limit int) ([]*models.RunSummary, error) {
	var runs []*models.RunSummary
	var err error

	if repository != "" {
		err = s.db.SelectContext(ctx, &runs,
			`SELECT * FROM runs WHERE repository = $1 ORDER BY started_at DESC LIMIT $2`, repository, limit)
	} else {
		err = s.db.SelectContext(ctx, &runs,
			`SELECT * FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	var run models.RunSummary
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// GetOutstanding returns the outstanding commits of a run ordered by sha
func (s *PostgresStore) GetOutstanding(ctx context.Context, runID string) ([]*models.OutstandingCommit, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT run_id, sha, array_to_string(parent_shas, ' '), author_name, author_email,
		       committer_name, committer_email, committed_at, summary, reason, key_id
		FROM outstanding_commits WHERE run_id = $1 ORDER BY sha
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get outstanding commits: %w", err)
	}
	defer rows.Close()

	var commits []*models.OutstandingCommit
	for rows.Next() {
		var r outstandingRow
		var parents string
		var committedAt sql.NullTime
		if err := rows.Scan(&r.RunID, &r.SHA, &parents, &r.AuthorName, &r.AuthorEmail,
			&r.CommitterName, &r.CommitterEmail, &committedAt, &r.Summary, &r.Reason, &r.KeyID); err != nil {
			return nil, fmt.Errorf("scan outstanding commit: %w", err)
		}
		r.CommittedAt = committedAt.Time
		commits = append(commits, r.toModel(strings.Fields(parents)))
	}
	return commits, rows.Err()
}
