package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFilesYieldsEmptySets(t *testing.T) {
	l := New(t.TempDir())

	succeeded, failed, err := l.Load("202509A")
	require.NoError(t, err)
	assert.Empty(t, succeeded)
	assert.Empty(t, failed)
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	l := New(t.TempDir())

	require.NoError(t, l.AppendSucceeded("202509A", []string{"S001", "S002"}))
	require.NoError(t, l.AppendSucceeded("202509A", []string{"S003"}))
	require.NoError(t, l.AppendFailed("202509A", []string{"S004"}))

	succeeded, failed, err := l.Load("202509A")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"S001": true, "S002": true, "S003": true}, succeeded)
	assert.Equal(t, map[string]bool{"S004": true}, failed)
}

func TestAppendIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	require.NoError(t, l.AppendSucceeded("202509A", []string{"S001"}))
	require.NoError(t, l.AppendSucceeded("202509A", []string{"S002"}))

	data, err := os.ReadFile(filepath.Join(dir, "202509A_succeeded.txt"))
	require.NoError(t, err)
	assert.Equal(t, "S001\nS002\n", string(data))
}

func TestDuplicateKeysCollapseOnLoad(t *testing.T) {
	l := New(t.TempDir())

	// A key promoted from failed to succeeded across runs appears in both
	// files; Load reports it in both sets and the downloader's delta logic
	// decides what that means.
	require.NoError(t, l.AppendFailed("202509B", []string{"S001"}))
	require.NoError(t, l.AppendSucceeded("202509B", []string{"S001", "S001"}))

	succeeded, failed, err := l.Load("202509B")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"S001": true}, succeeded)
	assert.Equal(t, map[string]bool{"S001": true}, failed)
}

func TestPeriodsAreIsolated(t *testing.T) {
	l := New(t.TempDir())

	require.NoError(t, l.AppendSucceeded("202509A", []string{"S001"}))

	succeeded, _, err := l.Load("202509B")
	require.NoError(t, err)
	assert.Empty(t, succeeded)
}

func TestClearRemovesBothFiles(t *testing.T) {
	l := New(t.TempDir())

	require.NoError(t, l.AppendSucceeded("202509A", []string{"S001"}))
	require.NoError(t, l.AppendFailed("202509A", []string{"S002"}))
	require.NoError(t, l.Clear("202509A"))

	succeeded, failed, err := l.Load("202509A")
	require.NoError(t, err)
	assert.Empty(t, succeeded)
	assert.Empty(t, failed)

	// Clearing an already-clean period is fine.
	require.NoError(t, l.Clear("202509A"))
}
