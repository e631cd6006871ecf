package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitcredit/internal/logging"
	"github.com/rohankatakam/gitcredit/internal/signature"
)

// initTestRepo creates a repository in a temp directory. Tests are skipped
// when git is not installed.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q")
	gitCmd(t, dir, "config", "user.email", "Test@Example.com")
	gitCmd(t, dir, "config", "user.name", "Test User")
	gitCmd(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1", "HOME="+dir)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRepository_EmptyHistory(t *testing.T) {
	dir := initTestRepo(t)
	ctx := context.Background()

	repo, err := Open(ctx, dir, logging.Discard())
	require.NoError(t, err)

	commits, err := repo.Commits(ctx)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestRepository_CommitsAndDiffStat(t *testing.T) {
	dir := initTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "main.py", "a\nb\nc\n")
	writeFile(t, dir, "notes.txt", "x\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "Initial commit")

	writeFile(t, dir, "main.py", "a\nB\nc\nd\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "Edit main")

	repo, err := Open(ctx, dir, logging.Discard())
	require.NoError(t, err)

	commits, err := repo.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	latest, root := commits[0], commits[1]
	assert.Equal(t, "Edit main", latest.Summary)
	assert.Equal(t, "Test@Example.com", latest.AuthorEmail)
	assert.True(t, root.IsRoot())
	assert.Equal(t, []string{root.SHA}, latest.ParentSHAs)

	// Root commit is diffed against the empty tree: 3 + 1 added lines
	rootLOC, err := repo.DiffStat(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rootLOC)

	// b -> B is one deletion and one addition, plus an added line
	delta, err := repo.DiffStat(ctx, latest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), delta)

	pyOnly, err := repo.DiffStat(ctx, root, ExtensionFilter{".py"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), pyOnly)
}

func TestRepository_SignatureReportUnsigned(t *testing.T) {
	dir := initTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "a.txt", "a\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "Unsigned")
	sha := gitCmd(t, dir, "rev-parse", "HEAD")

	repo, err := Open(ctx, dir, logging.Discard())
	require.NoError(t, err)

	report, err := repo.SignatureReport(ctx, sha)
	require.NoError(t, err)
	assert.Contains(t, report, "Author: Test User <Test@Example.com>")
	assert.NotContains(t, report, "Signature made")
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), logging.Discard())
	assert.Error(t, err)
}

func TestSync_LocalPathUsedInPlace(t *testing.T) {
	dir := initTestRepo(t)
	cacheDir := t.TempDir()

	repo, err := Sync(context.Background(), dir, cacheDir, logging.Discard())
	require.NoError(t, err)

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(repo.Path())
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSync_CloneThenPull(t *testing.T) {
	origin := initTestRepo(t)
	writeFile(t, origin, "a.txt", "a\n")
	gitCmd(t, origin, "add", ".")
	gitCmd(t, origin, "commit", "-q", "-m", "first")

	cacheDir := t.TempDir()
	ctx := context.Background()
	url := "file://" + origin

	repo, err := Sync(ctx, url, cacheDir, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, RepoHash(url)), repo.Path())

	commits, err := repo.Commits(ctx)
	require.NoError(t, err)
	assert.Len(t, commits, 1)

	writeFile(t, origin, "b.txt", "b\n")
	gitCmd(t, origin, "add", ".")
	gitCmd(t, origin, "commit", "-q", "-m", "second")

	repo, err = Sync(ctx, url, cacheDir, logging.Discard())
	require.NoError(t, err)
	commits, err = repo.Commits(ctx)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestSync_UnreachableRemoteIsFatal(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	_, err := Sync(context.Background(), "file:///nonexistent/repo.git", t.TempDir(), logging.Discard())
	require.Error(t, err)
}

func TestRepoHash(t *testing.T) {
	assert.Equal(t, RepoHash("https://github.com/a/b"), RepoHash("https://github.com/a/b.git"))
	assert.Equal(t, RepoHash("https://github.com/a/b"), RepoHash("https://github.com/a/b/"))
	assert.NotEqual(t, RepoHash("https://github.com/a/b"), RepoHash("https://github.com/a/c"))
	assert.Len(t, RepoHash("x"), 16)
}

func TestRepoRoot(t *testing.T) {
	dir := initTestRepo(t)
	sub := filepath.Join(dir, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0755))

	root, err := RepoRoot(context.Background(), sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = RepoRoot(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestSync_UpstreamRewriteResets(t *testing.T) {
	origin := initTestRepo(t)
	writeFile(t, origin, "a.txt", "a\n")
	gitCmd(t, origin, "add", ".")
	gitCmd(t, origin, "commit", "-q", "-m", "first")
	writeFile(t, origin, "b.txt", "b\n")
	gitCmd(t, origin, "add", ".")
	gitCmd(t, origin, "commit", "-q", "-m", "second")

	cacheDir := t.TempDir()
	ctx := context.Background()
	url := "file://" + origin

	_, err := Sync(ctx, url, cacheDir, logging.Discard())
	require.NoError(t, err)

	// Rewrite history: drop "second" and commit something else on top
	gitCmd(t, origin, "reset", "-q", "--hard", "HEAD~1")
	writeFile(t, origin, "c.txt", "c\n")
	gitCmd(t, origin, "add", ".")
	gitCmd(t, origin, "commit", "-q", "-m", "rewritten")
	want := gitCmd(t, origin, "rev-parse", "HEAD")

	repo, err := Sync(ctx, url, cacheDir, logging.Discard())
	require.NoError(t, err)

	head, err := repo.HeadSHA(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, head)

	commits, err := repo.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "rewritten", commits[0].Summary)
}

func TestRepository_SignatureReportIgnoresMailmap(t *testing.T) {
	dir := initTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, ".mailmap", "Canonical <canonical@example.com> <Test@Example.com>\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "Add mailmap")
	sha := gitCmd(t, dir, "rev-parse", "HEAD")

	repo, err := Open(ctx, dir, logging.Discard())
	require.NoError(t, err)

	commits, err := repo.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 1)

	report, err := repo.SignatureReport(ctx, sha)
	require.NoError(t, err)
	assert.Contains(t, report, "<"+commits[0].AuthorEmail+">")
	assert.NotContains(t, report, "canonical@example.com")
}

func TestRepository_SignatureTextInMessageIsNotASignature(t *testing.T) {
	dir := initTestRepo(t)
	ctx := context.Background()

	writeFile(t, dir, "a.txt", "a\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "Innocent change",
		"-m", "gpg: Signature made Sat 14 Sep 2024 10:00:00 AM UTC using DSA key ID 71567BD2")
	sha := gitCmd(t, dir, "rev-parse", "HEAD")

	repo, err := Open(ctx, dir, logging.Discard())
	require.NoError(t, err)

	_, err = signature.NewGPGReportExtractor(repo).Extract(ctx, sha)
	assert.ErrorIs(t, err, signature.ErrNoSignature)
}
