package git

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logRecord(fields ...string) string {
	return strings.Join(fields, fieldSep) + recordSep + "\n"
}

func TestParseLogOutput(t *testing.T) {
	output := logRecord("bbb222", "aaa111", "Jane Smith", "Jane@Example.com", "Jane Smith", "jane@example.com", "1726480200", "Add caching") +
		logRecord("aaa111", "", "John Doe", "john@example.com", "John Doe", "john@example.com", "1726394400", "Initial commit")

	commits, err := parseLogOutput(output)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "bbb222", commits[0].SHA)
	assert.Equal(t, []string{"aaa111"}, commits[0].ParentSHAs)
	assert.Equal(t, "Jane@Example.com", commits[0].AuthorEmail)
	assert.Equal(t, time.Unix(1726480200, 0).UTC(), commits[0].CommittedAt)
	assert.Equal(t, "Add caching", commits[0].Summary)
	assert.False(t, commits[0].IsRoot())

	assert.Empty(t, commits[1].ParentSHAs)
	assert.True(t, commits[1].IsRoot())
}

func TestParseLogOutput_MergeCommitParents(t *testing.T) {
	output := logRecord("ccc333", "aaa111 bbb222", "A", "a@x.com", "A", "a@x.com", "1700000000", "Merge branch 'feature'")

	commits, err := parseLogOutput(output)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, []string{"aaa111", "bbb222"}, commits[0].ParentSHAs)
}

func TestParseLogOutput_Empty(t *testing.T) {
	commits, err := parseLogOutput("")
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestParseLogOutput_Malformed(t *testing.T) {
	_, err := parseLogOutput("abc" + fieldSep + "def" + recordSep)
	assert.Error(t, err)

	_, err = parseLogOutput(logRecord("aaa111", "", "A", "a@x.com", "A", "a@x.com", "yesterday", "x"))
	assert.Error(t, err)
}
