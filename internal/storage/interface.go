package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitcredit/internal/config"
	"github.com/rohankatakam/gitcredit/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrDisabled = errors.New("run history storage is disabled")
)

// Store records analysis runs and their outstanding commits
type Store interface {
	// SaveRun inserts the run and its outstanding commits in one transaction
	SaveRun(ctx context.Context, run *models.RunSummary, outstanding []*models.OutstandingCommit) error

	// ListRuns returns the latest runs, newest first. An empty repository
	// lists runs for every repository.
	ListRuns(ctx context.Context, repository string, limit int) ([]*models.RunSummary, error)

	// GetRun returns ErrNotFound for unknown ids
	GetRun(ctx context.Context, id string) (*models.RunSummary, error)

	// GetOutstanding returns the outstanding commits recorded for a run
	GetOutstanding(ctx context.Context, runID string) ([]*models.OutstandingCommit, error)

	Close() error
}

// New opens the store selected by cfg.Type. It returns ErrDisabled for
// type "none".
func New(cfg config.StorageConfig, logger *logrus.Logger) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "none", "":
		return nil, ErrDisabled
	case "sqlite":
		return NewSQLiteStore(cfg.LocalPath, logger)
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// outstandingRow is the flat database shape of an outstanding commit
type outstandingRow struct {
	RunID          string    `db:"run_id"`
	SHA            string    `db:"sha"`
	AuthorName     string    `db:"author_name"`
	AuthorEmail    string    `db:"author_email"`
	CommitterName  string    `db:"committer_name"`
	CommitterEmail string    `db:"committer_email"`
	CommittedAt    time.Time `db:"committed_at"`
	Summary        string    `db:"summary"`
	Reason         string    `db:"reason"`
	KeyID          string    `db:"key_id"`
}

func toRow(runID string, oc *models.OutstandingCommit) outstandingRow {
	return outstandingRow{
		RunID:          runID,
		SHA:            oc.SHA,
		AuthorName:     oc.AuthorName,
		AuthorEmail:    oc.AuthorEmail,
		CommitterName:  oc.CommitterName,
		CommitterEmail: oc.CommitterEmail,
		CommittedAt:    oc.CommittedAt.UTC(),
		Summary:        oc.Summary,
		Reason:         string(oc.Reason),
		KeyID:          oc.KeyID,
	}
}

func (r outstandingRow) toModel(parents []string) *models.OutstandingCommit {
	return &models.OutstandingCommit{
		CommitRecord: models.CommitRecord{
			SHA:            r.SHA,
			ParentSHAs:     parents,
			AuthorName:     r.AuthorName,
			AuthorEmail:    r.AuthorEmail,
			CommitterName:  r.CommitterName,
			CommitterEmail: r.CommitterEmail,
			CommittedAt:    r.CommittedAt.UTC(),
			Summary:        r.Summary,
		},
		Reason: models.OutstandingReason(r.Reason),
		KeyID:  r.KeyID,
	}
}
