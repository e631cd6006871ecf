// Package signature turns a commit's signature verification report into a
// structured SignatureRecord.
package signature

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rohankatakam/gitcredit/internal/models"
)

var (
	// ErrNoSignature means the report has no signature-made marker. This is
	// the common case and routes the commit to outstanding, not to an error.
	ErrNoSignature = errors.New("commit has no signature")

	// ErrMalformedReport means a signature marker is present but the key
	// identifier or the Author header could not be located.
	ErrMalformedReport = errors.New("malformed signature report")
)

// Extractor produces a SignatureRecord for a commit. Implementations return
// ErrNoSignature or ErrMalformedReport (possibly wrapped) for commits that
// cannot be attributed.
type Extractor interface {
	Extract(ctx context.Context, commitSHA string) (*models.SignatureRecord, error)
}

// ReportSource returns the textual signature report for a commit.
// *git.Repository implements it.
type ReportSource interface {
	SignatureReport(ctx context.Context, sha string) (string, error)
}

// MalformedError carries the raw report of an unparseable signature block
// so that it can be retained for audit.
type MalformedError struct {
	CommitSHA string
	Report    string
}

func (e *MalformedError) Error() string {
	return "malformed signature report for commit " + e.CommitSHA
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedReport
}

// gpg writes its lines at column 0 between the commit line and the Author
// header. git indents the commit message, so patterns are anchored there and
// only the header block is searched for them.
var (
	signatureMadeRe = regexp.MustCompile(`(?m)^gpg: Signature made `)
	signatureRe     = regexp.MustCompile(`(?m)^gpg: Signature made (.*)\r?\n^gpg:[ \t]+using (.*) key ([0-9A-Za-z]+)`)
	// gpg 1.x prints date, algorithm and short key id on a single line
	legacySignatureRe = regexp.MustCompile(`(?m)^gpg: Signature made (.*) using (\S+) key ID ([0-9A-Fa-f]+)`)
	authorRe          = regexp.MustCompile(`(?m)^Author:\s+(.*)$`)
	emailRe           = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)
)

// GPGReportExtractor parses the gpg output that `git log --show-signature`
// interleaves with the commit header.
type GPGReportExtractor struct {
	source ReportSource
}

// NewGPGReportExtractor creates an extractor reading reports from source
func NewGPGReportExtractor(source ReportSource) *GPGReportExtractor {
	return &GPGReportExtractor{source: source}
}

// Extract fetches and parses the signature report of commitSHA
func (e *GPGReportExtractor) Extract(ctx context.Context, commitSHA string) (*models.SignatureRecord, error) {
	report, err := e.source.SignatureReport(ctx, commitSHA)
	if err != nil {
		return nil, err
	}
	return ParseReport(commitSHA, report)
}

// ParseReport parses a signature report. Every angle-bracketed address in
// the report is collected, so co-author trailers count as asserted emails
// alongside the primary author.
func ParseReport(commitSHA, report string) (*models.SignatureRecord, error) {
	header := report
	author := authorRe.FindStringSubmatchIndex(report)
	if author != nil {
		header = report[:author[0]]
	}

	if !signatureMadeRe.MatchString(header) {
		return nil, ErrNoSignature
	}
	// A signature without an Author header cannot be tied to anyone
	if author == nil {
		return nil, &MalformedError{CommitSHA: commitSHA, Report: report}
	}

	match := signatureRe.FindStringSubmatch(header)
	if match == nil {
		match = legacySignatureRe.FindStringSubmatch(header)
	}
	if match == nil {
		return nil, &MalformedError{CommitSHA: commitSHA, Report: report}
	}

	record := &models.SignatureRecord{
		CommitSHA:    commitSHA,
		SignedAt:     strings.TrimSpace(match[1]),
		KeyAlgorithm: strings.TrimSpace(match[2]),
		KeyID:        strings.TrimSpace(match[3]),
		Author:       strings.TrimSpace(report[author[2]:author[3]]),
	}

	seen := make(map[string]bool)
	for _, m := range emailRe.FindAllStringSubmatch(report, -1) {
		email := strings.TrimSpace(m[1])
		if seen[email] {
			continue
		}
		seen[email] = true
		record.ObservedEmails = append(record.ObservedEmails, email)
	}

	return record, nil
}
