package git

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitcredit/internal/errors"
)

// Sync obtains an up-to-date working copy for location.
//
// A location that is already a local working tree is used in place.
// Anything else is treated as a remote URL: the working copy lives at
// <cacheDir>/<hash(url)>, cloned with full history when absent and
// fast-forwarded when present, or reset when upstream history was rewritten.
// Any failure is a critical transport error since there is nothing to
// analyze without a repository.
func Sync(ctx context.Context, location, cacheDir string, logger *logrus.Logger) (*Repository, error) {
	if location == "" {
		return nil, errors.ConfigError("repository location is empty")
	}

	if isWorkTree(ctx, location) {
		logger.WithField("path", location).Info("Using local repository in place")
		return Open(ctx, location, logger)
	}

	repoPath := filepath.Join(cacheDir, RepoHash(location))

	if _, err := os.Stat(repoPath); err == nil {
		if isWorkTree(ctx, repoPath) {
			logger.WithField("path", repoPath).Info("Repository already exists. Pulling latest changes...")
			if err := gitIn(ctx, repoPath, "fetch", "--prune", "origin"); err != nil {
				return nil, errors.TransportErrorf(err, "git fetch failed for %s", location)
			}
			if err := gitIn(ctx, repoPath, "merge", "--ff-only", "@{upstream}"); err != nil {
				// Upstream was force-pushed; the rewritten history replaces ours
				logger.WithField("path", repoPath).Warn("Upstream history was rewritten, resetting working copy")
				if err := gitIn(ctx, repoPath, "reset", "--hard", "@{upstream}"); err != nil {
					return nil, errors.TransportErrorf(err, "git reset failed for %s", location)
				}
			}
			return Open(ctx, repoPath, logger)
		}
		// Invalid leftover, remove and re-clone
		os.RemoveAll(repoPath)
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to create cache directory %s", cacheDir)
	}

	logger.WithFields(logrus.Fields{
		"url":  location,
		"path": repoPath,
	}).Info("Cloning repository...")
	if err := clone(ctx, location, repoPath); err != nil {
		os.RemoveAll(repoPath)
		return nil, errors.TransportErrorf(err, "git clone failed for %s", location)
	}

	return Open(ctx, repoPath, logger)
}

func clone(ctx context.Context, url, repoPath string) error {
	// Full history is required: every commit is attributed
	cmd := exec.CommandContext(ctx, "git", "clone", "--no-recurse-submodules", url, repoPath)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func gitIn(ctx context.Context, repoPath string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// RepoHash creates a stable directory name from a repository URL
func RepoHash(url string) string {
	url = strings.TrimSpace(url)
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")

	h := sha256.New()
	h.Write([]byte(url))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
