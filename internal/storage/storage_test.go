package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitcredit/internal/config"
	"github.com/rohankatakam/gitcredit/internal/logging"
	"github.com/rohankatakam/gitcredit/internal/models"
)

func sampleRun(repo string, startedAt time.Time) *models.RunSummary {
	return &models.RunSummary{
		ID:               uuid.New().String(),
		Repository:       repo,
		StartedAt:        startedAt,
		FinishedAt:       startedAt.Add(3 * time.Second),
		CommitCount:      5,
		VerifiedCount:    3,
		OutstandingCount: 2,
		TotalVerifiedLOC: 100,
		IdentityCount:    1,
	}
}

func sampleOutstanding(at time.Time) []*models.OutstandingCommit {
	return []*models.OutstandingCommit{
		{
			CommitRecord: models.CommitRecord{SHA: "bbb", ParentSHAs: []string{"aaa", "ccc"}, AuthorName: "B", AuthorEmail: "b@x.com", CommittedAt: at, Summary: "Merge"},
			Reason:       models.ReasonEmailMismatch,
			KeyID:        "K2",
		},
		{
			CommitRecord: models.CommitRecord{SHA: "aaa", AuthorName: "A", AuthorEmail: "a@x.com", CommittedAt: at},
			Reason:       models.ReasonNoSignature,
		},
	}
}

// exerciseStore runs the same scenario against any backend
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	older := sampleRun("repo-a", base)
	newer := sampleRun("repo-a", base.Add(time.Hour))
	other := sampleRun("repo-b", base.Add(2*time.Hour))

	require.NoError(t, store.SaveRun(ctx, older, nil))
	require.NoError(t, store.SaveRun(ctx, newer, sampleOutstanding(base)))
	require.NoError(t, store.SaveRun(ctx, other, nil))

	runs, err := store.ListRuns(ctx, "repo-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
	assert.Equal(t, int64(100), runs[0].TotalVerifiedLOC)

	all, err := store.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other.ID, all[0].ID)

	got, err := store.GetRun(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OutstandingCount)
	assert.True(t, got.StartedAt.Equal(newer.StartedAt))

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	outstanding, err := store.GetOutstanding(ctx, newer.ID)
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.Equal(t, "aaa", outstanding[0].SHA)
	assert.Empty(t, outstanding[0].ParentSHAs)
	assert.Equal(t, models.ReasonNoSignature, outstanding[0].Reason)
	assert.Equal(t, []string{"aaa", "ccc"}, outstanding[1].ParentSHAs)
	assert.Equal(t, "K2", outstanding[1].KeyID)
	assert.True(t, outstanding[1].CommittedAt.Equal(base))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "runs.db"), logging.Discard())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("GITCREDIT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GITCREDIT_TEST_POSTGRES_DSN not set")
	}

	store, err := NewPostgresStore(dsn, logging.Discard())
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestNew_Disabled(t *testing.T) {
	store, err := New(config.StorageConfig{Type: "none"}, logging.Discard())
	assert.Nil(t, store)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(config.StorageConfig{Type: "mongo"}, logging.Discard())
	assert.Error(t, err)
}
