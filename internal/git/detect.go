package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RepoRoot returns the top-level directory of the working tree containing dir
func RepoRoot(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}

	root := strings.TrimSpace(string(output))
	if root == "" {
		return "", fmt.Errorf("git reported an empty repository root for %s", dir)
	}
	return root, nil
}
