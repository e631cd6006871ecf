package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Repository is a local working copy that the analysis reads from.
// Every operation shells out to git and is read-only.
type Repository struct {
	path   string
	logger *logrus.Logger
}

// Open returns a Repository for an existing local working tree.
func Open(ctx context.Context, path string, logger *logrus.Logger) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}
	if !isWorkTree(ctx, abs) {
		return nil, fmt.Errorf("not a git repository: %s", abs)
	}
	return &Repository{path: abs, logger: logger}, nil
}

// Path returns the absolute path of the working copy
func (r *Repository) Path() string {
	return r.path
}

// HeadSHA returns the SHA of HEAD, or "" for a repository without commits.
func (r *Repository) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		// --quiet exits 1 with no output when HEAD is unborn
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RemoteURL returns the URL of the 'origin' remote
func (r *Repository) RemoteURL(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// run executes git in the working copy and returns stdout.
func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			r.logger.WithFields(logrus.Fields{
				"args":   strings.Join(args, " "),
				"stderr": strings.TrimSpace(string(exitErr.Stderr)),
			}).Debug("git command failed")
		}
		return "", err
	}
	return string(output), nil
}

func isWorkTree(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = path
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}
