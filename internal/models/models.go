package models

import (
	"time"
)

// LedgerVersion is bumped whenever the persisted layout of Ledger or
// CommitRecord changes incompatibly.
const LedgerVersion = 1

// CommitRecord is a single commit as reported by the repository adapter.
// ParentSHAs is empty only for a root commit.
type CommitRecord struct {
	SHA            string    `json:"sha" yaml:"sha"`
	ParentSHAs     []string  `json:"parentShas" yaml:"parentShas"`
	AuthorName     string    `json:"authorName" yaml:"authorName"`
	AuthorEmail    string    `json:"authorEmail" yaml:"authorEmail"`
	CommitterName  string    `json:"committerName,omitempty" yaml:"committerName,omitempty"`
	CommitterEmail string    `json:"committerEmail,omitempty" yaml:"committerEmail,omitempty"`
	CommittedAt    time.Time `json:"committedAt" yaml:"committedAt"`
	Summary        string    `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// IsRoot reports whether the commit has no parents.
func (c CommitRecord) IsRoot() bool {
	return len(c.ParentSHAs) == 0
}

// SignatureRecord is the parsed signature report of a signed commit
type SignatureRecord struct {
	CommitSHA      string   `json:"commitSha"`
	SignedAt       string   `json:"signedAt"`
	KeyAlgorithm   string   `json:"keyAlgorithm"`
	KeyID          string   `json:"keyId"`
	Author         string   `json:"author,omitempty"`
	ObservedEmails []string `json:"observedEmails"`
}

// OutstandingReason explains why a commit was excluded from accounting
type OutstandingReason string

const (
	ReasonNoSignature        OutstandingReason = "no_signature"
	ReasonMalformedSignature OutstandingReason = "malformed_signature"
	ReasonEmailMismatch      OutstandingReason = "email_mismatch"
	ReasonKeyLookupFailed    OutstandingReason = "key_lookup_failed"
)

// OutstandingCommit is a commit that failed verification. It is kept for
// audit only and never contributes to any identity's totals.
type OutstandingCommit struct {
	CommitRecord    `yaml:",inline"`
	Reason          OutstandingReason `json:"reason" yaml:"reason"`
	KeyID           string            `json:"keyId,omitempty" yaml:"keyId,omitempty"`
	SignatureReport string            `json:"signatureReport,omitempty" yaml:"signatureReport,omitempty"`
}

// Identity is one verified author email and its contribution share.
// Email is the lower-cased canonical key.
type Identity struct {
	ID                     string  `json:"id"`
	Email                  string  `json:"email"`
	Name                   string  `json:"name"`
	PGPKeyID               *string `json:"pgpKeyId"`
	GitHubUsername         *string `json:"githubUsername"`
	Verified               bool    `json:"verified"`
	ContributionPercentage float64 `json:"contributionPercentage"`
	LastUsedTimestamp      int64   `json:"lastUsedTimestamp"`
}

// KeyID returns the PGP key id or "" when absent.
func (i *Identity) KeyID() string {
	if i.PGPKeyID == nil {
		return ""
	}
	return *i.PGPKeyID
}

// Username returns the GitHub username or "" when absent.
func (i *Identity) Username() string {
	if i.GitHubUsername == nil {
		return ""
	}
	return *i.GitHubUsername
}

// Ledger is the raw identity dataset persisted by the ledger store.
type Ledger struct {
	Version            int                           `json:"version"`
	Repository         string                        `json:"repository,omitempty"`
	GeneratedAt        time.Time                     `json:"generatedAt"`
	TotalVerifiedLOC   int64                         `json:"totalVerifiedLoc"`
	Identities         map[string]*Identity          `json:"identities"`
	OutstandingCommits map[string]*OutstandingCommit `json:"outstandingCommits"`
}

// NewLedger returns an empty ledger with initialized maps.
func NewLedger() *Ledger {
	return &Ledger{
		Version:            LedgerVersion,
		Identities:         make(map[string]*Identity),
		OutstandingCommits: make(map[string]*OutstandingCommit),
	}
}

// RankTier is a discrete label derived from a contribution percentage
type RankTier string

const (
	RankNewbie         RankTier = "Newbie"
	RankAmateur        RankTier = "Amateur"
	RankContributor    RankTier = "Contributor"
	RankCoMaintainer   RankTier = "Co-Maintainer"
	RankMaintainer     RankTier = "Maintainer"
	RankLeadMaintainer RankTier = "Lead Maintainer"
)

// Contributor is a canonical person formed by merging identities that share
// a PGP key id or GitHub username. It is always derived, never persisted as
// a source of truth.
type Contributor struct {
	CanonicalKey                string   `json:"-" yaml:"-"`
	Name                        string   `json:"name" yaml:"name"`
	Emails                      []string `json:"emails" yaml:"emails"`
	TotalContributionPercentage float64  `json:"-" yaml:"-"`
	Rank                        RankTier `json:"rank" yaml:"rank"`
	LastUsedTimestamp           int64    `json:"lastUsedTimestamp" yaml:"lastUsedTimestamp"`
}

// RunSummary describes a single analysis run.
type RunSummary struct {
	ID               string    `json:"id" db:"id"`
	Repository       string    `json:"repository" db:"repository"`
	StartedAt        time.Time `json:"startedAt" db:"started_at"`
	FinishedAt       time.Time `json:"finishedAt" db:"finished_at"`
	CommitCount      int       `json:"commitCount" db:"commit_count"`
	VerifiedCount    int       `json:"verifiedCount" db:"verified_count"`
	OutstandingCount int       `json:"outstandingCount" db:"outstanding_count"`
	TotalVerifiedLOC int64     `json:"totalVerifiedLoc" db:"total_verified_loc"`
	IdentityCount    int       `json:"identityCount" db:"identity_count"`
}
