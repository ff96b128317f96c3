package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesSnapshot", func(t *testing.T) {
		uri, err := store.PutObject(ctx, "reef/abc.html", "text/html", strings.NewReader("<html>reef</html>"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, "reef/abc.html"), uri)

		got, err := store.Get("reef/abc.html")
		require.NoError(t, err)
		assert.Equal(t, "<html>reef</html>", string(got))
	})

	t.Run("SameHashKeepsFirstWrite", func(t *testing.T) {
		_, err := store.PutObject(ctx, "reef/same.html", "text/html", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "reef/same.html", "text/html", strings.NewReader("second"))
		require.NoError(t, err)

		got, err := store.Get("reef/same.html")
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, " ", "text/html", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../outside.html", "text/html", strings.NewReader("data"))
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "outside.html"))
	})

	t.Run("NoTempFilesLeft", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(dir, "reef"))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".snapshot-"), e.Name())
		}
	})
}
