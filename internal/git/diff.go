package git

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/rohankatakam/gitcredit/internal/models"
)

// ExtensionFilter restricts line counting to files with the given
// extensions. A nil or empty filter accepts every file.
type ExtensionFilter []string

// Accepts reports whether a file path passes the filter
func (f ExtensionFilter) Accepts(filePath string) bool {
	if len(f) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(filePath))
	for _, want := range f {
		if strings.ToLower(want) == ext {
			return true
		}
	}
	return false
}

// FileStat is one row of numeric diff output
type FileStat struct {
	Path      string
	Additions int64
	Deletions int64
	Binary    bool
}

// DiffStat returns the commit's line-count delta: added plus deleted lines
// against its first parent, or against the empty tree for a root commit.
// Binary files contribute zero.
func (r *Repository) DiffStat(ctx context.Context, commit models.CommitRecord, filter ExtensionFilter) (int64, error) {
	var args []string
	if commit.IsRoot() {
		args = []string{"diff-tree", "--root", "-r", "--no-commit-id", "--numstat", "--no-renames", commit.SHA}
	} else {
		args = []string{"diff", "--numstat", "--no-renames", commit.ParentSHAs[0], commit.SHA}
	}

	output, err := r.run(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("numstat failed for %s: %w", commit.SHA, err)
	}

	stats, err := parseNumstat(output)
	if err != nil {
		return 0, fmt.Errorf("numstat for %s: %w", commit.SHA, err)
	}

	return SumStats(stats, filter), nil
}

// SumStats adds up additions and deletions of files accepted by filter
func SumStats(stats []FileStat, filter ExtensionFilter) int64 {
	var total int64
	for _, s := range stats {
		if s.Binary || !filter.Accepts(s.Path) {
			continue
		}
		total += s.Additions + s.Deletions
	}
	return total
}

// parseNumstat parses `<added>\t<deleted>\t<path>` rows. Binary files are
// reported by git as "-\t-\t<path>".
func parseNumstat(output string) ([]FileStat, error) {
	var stats []FileStat

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed numstat line %q", line)
		}

		filePath := strings.Trim(parts[2], `"`)
		if parts[0] == "-" || parts[1] == "-" {
			stats = append(stats, FileStat{Path: filePath, Binary: true})
			continue
		}

		additions, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed numstat additions in %q: %w", line, err)
		}
		deletions, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed numstat deletions in %q: %w", line, err)
		}

		stats = append(stats, FileStat{
			Path:      filePath,
			Additions: additions,
			Deletions: deletions,
		})
	}

	return stats, nil
}
