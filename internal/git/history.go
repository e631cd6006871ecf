package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/gitcredit/internal/models"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// logFormat yields one record per commit:
// SHA, parents, author name, author email, committer name, committer email,
// committer timestamp (unix), subject.
var logFormat = strings.Join([]string{"%H", "%P", "%an", "%ae", "%cn", "%ce", "%ct", "%s"}, "%x1f") + "%x1e"

// Commits returns every commit reachable from HEAD, newest first. A
// repository without commits yields an empty slice.
func (r *Repository) Commits(ctx context.Context) ([]models.CommitRecord, error) {
	head, err := r.HeadSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if head == "" {
		return nil, nil
	}

	output, err := r.run(ctx, "log", "--format="+logFormat, head)
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	return parseLogOutput(output)
}

// parseLogOutput parses the raw git log output into commit records
func parseLogOutput(output string) ([]models.CommitRecord, error) {
	var commits []models.CommitRecord
	seen := make(map[string]bool)

	for _, record := range strings.Split(output, recordSep) {
		record = strings.Trim(record, "\n")
		if record == "" {
			continue
		}

		fields := strings.Split(record, fieldSep)
		if len(fields) != 8 {
			return nil, fmt.Errorf("malformed git log record (%d fields): %q", len(fields), record)
		}

		sha := fields[0]
		if seen[sha] {
			continue
		}
		seen[sha] = true

		unix, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid commit timestamp %q for %s: %w", fields[6], sha, err)
		}

		commits = append(commits, models.CommitRecord{
			SHA:            sha,
			ParentSHAs:     strings.Fields(fields[1]),
			AuthorName:     fields[2],
			AuthorEmail:    fields[3],
			CommitterName:  fields[4],
			CommitterEmail: fields[5],
			CommittedAt:    time.Unix(unix, 0).UTC(),
			Summary:        fields[7],
		})
	}

	return commits, nil
}

// SignatureReport returns the human-readable output of
// `git log --show-signature -1 <sha>`, which interleaves gpg's verification
// messages with the commit header and message. .mailmap is not applied so
// the Author header carries the same raw address as CommitRecord.AuthorEmail.
func (r *Repository) SignatureReport(ctx context.Context, sha string) (string, error) {
	output, err := r.run(ctx, "log", "--no-mailmap", "--pretty=medium", "--show-signature", "-1", sha)
	if err != nil {
		return "", fmt.Errorf("git log --show-signature failed for %s: %w", sha, err)
	}
	return output, nil
}
