package ingestion

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitcredit/internal/aggregate"
	"github.com/rohankatakam/gitcredit/internal/config"
	"github.com/rohankatakam/gitcredit/internal/contrib"
	"github.com/rohankatakam/gitcredit/internal/git"
	"github.com/rohankatakam/gitcredit/internal/keyserver"
	"github.com/rohankatakam/gitcredit/internal/ledger"
	"github.com/rohankatakam/gitcredit/internal/models"
	"github.com/rohankatakam/gitcredit/internal/signature"
	"github.com/rohankatakam/gitcredit/internal/storage"
)

// Enricher attaches external account handles to verified identities.
// *github.Client implements it.
type Enricher interface {
	EnrichIdentities(ctx context.Context, identities map[string]*models.Identity) int
}

// Orchestrator coordinates one analysis run end to end
type Orchestrator struct {
	config   *config.Config
	ledger   *ledger.Store
	store    storage.Store
	enricher Enricher
	keyStore keyserver.KeyStore
	logger   *logrus.Logger
}

// NewOrchestrator creates a new orchestrator. store, enricher and keyStore
// are optional.
func NewOrchestrator(
	cfg *config.Config,
	store storage.Store,
	enricher Enricher,
	keyStore keyserver.KeyStore,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		ledger:   ledger.NewStore(cfg.Ledger.Path, logger),
		store:    store,
		enricher: enricher,
		keyStore: keyStore,
		logger:   logger,
	}
}

// AnalysisResult contains the results of an analysis run
type AnalysisResult struct {
	RunID            string
	Repository       string
	RepoPath         string
	CommitCount      int
	VerifiedCount    int
	TotalVerifiedLOC int64
	IdentityCount    int
	Enriched         int
	Outstanding      []*models.OutstandingCommit
	Contributors     []models.Contributor
	Duration         time.Duration
}

// Analyze syncs the repository at location, walks and verifies its history,
// persists the raw ledger, then derives and writes the contributor ledger.
// Nothing is written unless the walk completes.
func (o *Orchestrator) Analyze(ctx context.Context, location string) (*AnalysisResult, error) {
	startTime := time.Now()
	o.logger.WithField("location", location).Info("Starting contribution analysis")

	// Phase 1: Working copy
	repo, err := git.Sync(ctx, location, o.config.Repository.CacheDir, o.logger)
	if err != nil {
		return nil, err
	}

	// Phase 2: Verify and accumulate
	client := keyserver.NewClient(o.config.Keyserver.URL, o.config.Keyserver.Timeout, o.config.Keyserver.RateLimit, o.logger)
	reconciler := keyserver.NewReconciler(client, o.keyStore, o.logger)
	accumulator := contrib.NewAccumulator(
		repo,
		signature.NewGPGReportExtractor(repo),
		reconciler,
		contrib.Options{
			Workers: o.config.Analysis.Workers,
			Filter:  git.ExtensionFilter(o.config.Analysis.Extensions),
		},
		o.logger,
	)

	acc, err := accumulator.Accumulate(ctx)
	if err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	result := &AnalysisResult{
		RunID:            uuid.New().String(),
		Repository:       location,
		RepoPath:         repo.Path(),
		CommitCount:      acc.CommitCount,
		VerifiedCount:    acc.VerifiedCount,
		TotalVerifiedLOC: acc.TotalVerifiedLOC,
		IdentityCount:    len(acc.Identities),
		Outstanding:      SortOutstanding(acc.Outstanding),
	}

	// Phase 3: External account handles
	if o.enricher != nil && len(acc.Identities) > 0 {
		result.Enriched = o.enricher.EnrichIdentities(ctx, acc.Identities)
	}

	// Phase 4: Persist raw ledger
	raw := models.NewLedger()
	raw.Repository = location
	raw.GeneratedAt = time.Now().UTC()
	raw.TotalVerifiedLOC = acc.TotalVerifiedLOC
	raw.Identities = acc.Identities
	raw.OutstandingCommits = acc.Outstanding
	if err := o.ledger.Save(raw); err != nil {
		return nil, err
	}

	// Phase 5: Aggregate from what was persisted
	contributors, err := o.Contributors()
	if err != nil {
		return nil, err
	}
	result.Contributors = contributors

	if path := o.config.Ledger.ContributorsPath; path != "" {
		format := ledger.FormatForPath(path, o.config.Ledger.Format)
		if err := ledger.WriteContributors(path, format, contributors); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(startTime)

	// Phase 6: Run history
	o.recordRun(ctx, result, startTime)

	o.logger.WithFields(logrus.Fields{
		"duration":     result.Duration.String(),
		"commits":      result.CommitCount,
		"verified":     result.VerifiedCount,
		"outstanding":  len(result.Outstanding),
		"contributors": len(result.Contributors),
	}).Info("Contribution analysis completed")

	return result, nil
}

// Contributors reloads the raw ledger and aggregates it
func (o *Orchestrator) Contributors() ([]models.Contributor, error) {
	raw, err := o.ledger.Load()
	if err != nil {
		return nil, err
	}
	return aggregate.Aggregate(raw.Identities), nil
}

// Ledger loads the persisted raw ledger
func (o *Orchestrator) Ledger() (*models.Ledger, error) {
	return o.ledger.Load()
}

func (o *Orchestrator) recordRun(ctx context.Context, result *AnalysisResult, startedAt time.Time) {
	if o.store == nil {
		return
	}

	run := &models.RunSummary{
		ID:               result.RunID,
		Repository:       result.Repository,
		StartedAt:        startedAt.UTC(),
		FinishedAt:       startedAt.Add(result.Duration).UTC(),
		CommitCount:      result.CommitCount,
		VerifiedCount:    result.VerifiedCount,
		OutstandingCount: len(result.Outstanding),
		TotalVerifiedLOC: result.TotalVerifiedLOC,
		IdentityCount:    result.IdentityCount,
	}

	if err := o.store.SaveRun(ctx, run, result.Outstanding); err != nil {
		o.logger.WithError(err).Warn("Failed to record run history")
	}
}

// SortOutstanding orders outstanding commits newest first, then by sha
func SortOutstanding(outstanding map[string]*models.OutstandingCommit) []*models.OutstandingCommit {
	list := make([]*models.OutstandingCommit, 0, len(outstanding))
	for _, oc := range outstanding {
		list = append(list, oc)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CommittedAt.Equal(list[j].CommittedAt) {
			return list[i].CommittedAt.After(list[j].CommittedAt)
		}
		return list[i].SHA < list[j].SHA
	})
	return list
}

// IsNoLedger reports whether err means no prior ledger is available
func IsNoLedger(err error) bool {
	return stderrors.Is(err, ledger.ErrNoLedger)
}
