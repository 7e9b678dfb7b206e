package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/merchpipe/pkg/pipeline/adapter/storage/config"
)

func newTestAdapter(t *testing.T) (string, *localAdapter) {
	t.Helper()
	dir := t.TempDir()
	a, err := NewAdapter(storageConfig.StorageConfig{BaseDir: dir, BucketName: "artifacts"}, "test")
	require.NoError(t, err)
	return dir, a.(*localAdapter)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	_, a := newTestAdapter(t)
	ctx := context.Background()

	err := a.Upload(ctx, "", "202509A/sales.csv", strings.NewReader("store,amount\nS001,42\n"), "text/csv")
	require.NoError(t, err)

	r, err := a.Download(ctx, "", "202509A/sales.csv")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "store,amount\nS001,42\n", string(data))
}

func TestListObjectsFiltersByPrefix(t *testing.T) {
	_, a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Upload(ctx, "", "202509A/sales.csv", strings.NewReader("x"), "text/csv"))
	require.NoError(t, a.Upload(ctx, "", "202509A/spu.csv", strings.NewReader("x"), "text/csv"))
	require.NoError(t, a.Upload(ctx, "", "202509B/sales.csv", strings.NewReader("x"), "text/csv"))

	var names []string
	err := a.ListObjects(ctx, "", "202509A/", func(objectName string) error {
		names = append(names, objectName)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"202509A/sales.csv", "202509A/spu.csv"}, names)
}

func TestDeleteObjectIgnoresMissing(t *testing.T) {
	_, a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Upload(ctx, "", "doomed.csv", strings.NewReader("x"), "text/csv"))
	require.NoError(t, a.DeleteObject(ctx, "", "doomed.csv"))
	// Second delete hits a missing file and is still fine.
	require.NoError(t, a.DeleteObject(ctx, "", "doomed.csv"))
}

func TestResolvePathRejectsEscape(t *testing.T) {
	_, a := newTestAdapter(t)
	_, err := a.resolvePath("", "../../etc/passwd")
	assert.Error(t, err)
}

func TestNewAdapterCreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "base")
	_, err := NewAdapter(storageConfig.StorageConfig{BaseDir: dir}, "test")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewAdapterRequiresBaseDir(t *testing.T) {
	_, err := NewAdapter(storageConfig.StorageConfig{}, "test")
	assert.Error(t, err)
}
