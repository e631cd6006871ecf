// Package contrib walks a repository's history once, verifies each commit's
// signature against its keyserver record and accumulates verified line
// counts into per-identity contribution shares.
package contrib

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/gitcredit/internal/errors"
	"github.com/rohankatakam/gitcredit/internal/git"
	"github.com/rohankatakam/gitcredit/internal/models"
	"github.com/rohankatakam/gitcredit/internal/signature"
)

// percentEpsilon is the allowed deviation of the percentage sum from 100
const percentEpsilon = 1e-6

// CommitSource provides the history and per-commit line deltas.
// *git.Repository implements it.
type CommitSource interface {
	Commits(ctx context.Context) ([]models.CommitRecord, error)
	DiffStat(ctx context.Context, commit models.CommitRecord, filter git.ExtensionFilter) (int64, error)
}

// Reconciler checks a key's registered emails against observed ones.
// *keyserver.Reconciler implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, keyID string, observed []string) (bool, error)
}

// Options tunes the walk
type Options struct {
	Workers int
	Filter  git.ExtensionFilter
}

// Result is the outcome of one complete walk
type Result struct {
	Identities       map[string]*models.Identity
	Outstanding      map[string]*models.OutstandingCommit
	TotalVerifiedLOC int64
	CommitCount      int
	VerifiedCount    int
}

// Accumulator classifies commits and folds verified deltas into identities
type Accumulator struct {
	source     CommitSource
	extractor  signature.Extractor
	reconciler Reconciler
	opts       Options
	logger     *logrus.Logger
	newID      func() string
}

// NewAccumulator wires the collaborators for a single run
func NewAccumulator(source CommitSource, extractor signature.Extractor, reconciler Reconciler, opts Options, logger *logrus.Logger) *Accumulator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Accumulator{
		source:     source,
		extractor:  extractor,
		reconciler: reconciler,
		opts:       opts,
		logger:     logger,
		newID:      func() string { return uuid.New().String() },
	}
}

// verdict is the immutable per-commit result produced by a worker
type verdict struct {
	commit      models.CommitRecord
	verified    bool
	keyID       string
	delta       int64
	outstanding *models.OutstandingCommit
}

// Accumulate visits every commit reachable from HEAD exactly once.
// Verification runs concurrently; the fold into identities is sequential.
func (a *Accumulator) Accumulate(ctx context.Context) (*Result, error) {
	start := time.Now()

	commits, err := a.source.Commits(ctx)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"commits": len(commits),
		"workers": a.opts.Workers,
	}).Info("Verifying commit signatures")

	verdicts := make([]verdict, len(commits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, commit := range commits {
		i, commit := i, commit
		g.Go(func() error {
			v, err := a.classify(gctx, commit)
			if errors.IsFatal(err) {
				return err
			}
			if err != nil {
				a.logger.WithFields(logrus.Fields(errors.FieldsOf(err))).WithError(err).Warn("Commit left outstanding")
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := a.fold(verdicts)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"commits":      result.CommitCount,
		"verified":     result.VerifiedCount,
		"outstanding":  len(result.Outstanding),
		"identities":   len(result.Identities),
		"verified_loc": result.TotalVerifiedLOC,
		"duration":     time.Since(start),
	}).Info("Contribution accumulation complete")

	return result, nil
}

// classify runs extraction, reconciliation and, for verified commits, the
// diff. A parse error comes back alongside its outstanding verdict; any
// other error stops the run.
func (a *Accumulator) classify(ctx context.Context, commit models.CommitRecord) (verdict, error) {
	log := a.logger.WithField("sha", commit.SHA)

	record, err := a.extractor.Extract(ctx, commit.SHA)
	switch {
	case stderrors.Is(err, signature.ErrNoSignature):
		log.Trace("Commit is unsigned")
		return outstanding(commit, models.ReasonNoSignature, "", ""), nil
	case stderrors.Is(err, signature.ErrMalformedReport):
		var malformed *signature.MalformedError
		report := ""
		if stderrors.As(err, &malformed) {
			report = malformed.Report
		}
		return outstanding(commit, models.ReasonMalformedSignature, "", report),
			errors.ParseError(err, "malformed signature report").
				WithField("sha", commit.SHA).
				WithField("report", report)
	case err != nil:
		return verdict{}, errors.Wrap(err, errors.KindTransport, "failed to read signature report").
			WithField("sha", commit.SHA)
	}

	log.WithFields(logrus.Fields{
		"key_id": record.KeyID,
		"emails": record.ObservedEmails,
	}).Trace("Signature found")

	matched, err := a.reconciler.Reconcile(ctx, record.KeyID, record.ObservedEmails)
	if err != nil {
		if ctx.Err() != nil {
			return verdict{}, ctx.Err()
		}
		log.WithError(err).WithField("key_id", record.KeyID).Info("Key lookup failed, commit left outstanding")
		return outstanding(commit, models.ReasonKeyLookupFailed, record.KeyID, ""), nil
	}
	if !matched {
		log.WithField("key_id", record.KeyID).Debug("Signature emails do not match key")
		return outstanding(commit, models.ReasonEmailMismatch, record.KeyID, ""), nil
	}

	delta, err := a.source.DiffStat(ctx, commit, a.opts.Filter)
	if err != nil {
		return verdict{}, errors.Wrap(err, errors.KindTransport, "failed to compute commit diff").
			WithField("sha", commit.SHA)
	}

	return verdict{commit: commit, verified: true, keyID: record.KeyID, delta: delta}, nil
}

func outstanding(commit models.CommitRecord, reason models.OutstandingReason, keyID, report string) verdict {
	return verdict{
		commit: commit,
		outstanding: &models.OutstandingCommit{
			CommitRecord:    commit,
			Reason:          reason,
			KeyID:           keyID,
			SignatureReport: report,
		},
	}
}

// fold reduces verdicts in history order, then normalizes raw line counts
// into percentages.
func (a *Accumulator) fold(verdicts []verdict) (*Result, error) {
	result := &Result{
		Identities:  make(map[string]*models.Identity),
		Outstanding: make(map[string]*models.OutstandingCommit),
		CommitCount: len(verdicts),
	}
	raw := make(map[string]int64)

	for _, v := range verdicts {
		if !v.verified {
			result.Outstanding[v.commit.SHA] = v.outstanding
			continue
		}
		result.VerifiedCount++

		key := strings.ToLower(strings.TrimSpace(v.commit.AuthorEmail))
		identity, ok := result.Identities[key]
		if !ok {
			keyID := v.keyID
			identity = &models.Identity{
				ID:       a.newID(),
				Email:    key,
				Name:     v.commit.AuthorName,
				PGPKeyID: &keyID,
				Verified: true,
			}
			result.Identities[key] = identity
		}

		raw[key] += v.delta
		result.TotalVerifiedLOC += v.delta

		if ts := v.commit.CommittedAt.Unix(); ts > identity.LastUsedTimestamp {
			identity.LastUsedTimestamp = ts
		}
	}

	if err := Normalize(result.Identities, raw, result.TotalVerifiedLOC); err != nil {
		return nil, err
	}
	return result, nil
}

// Normalize turns raw per-identity line counts into percentages of total.
// With a zero total every identity gets 0%. A sum that drifts from 100 is
// a consistency violation.
func Normalize(identities map[string]*models.Identity, raw map[string]int64, total int64) error {
	if total <= 0 {
		for _, identity := range identities {
			identity.ContributionPercentage = 0
		}
		return nil
	}

	sum := 0.0
	for key, identity := range identities {
		identity.ContributionPercentage = float64(raw[key]) / float64(total) * 100
		if identity.Verified {
			sum += identity.ContributionPercentage
		}
	}

	if math.Abs(sum-100) > percentEpsilon {
		return errors.ConsistencyErrorf("contribution percentages sum to %.9f, expected 100", sum).
			WithField("total_verified_loc", total)
	}
	return nil
}
