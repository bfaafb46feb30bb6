package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anri-helpdesk/helpdesk/internal/config"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "abc_123.pdf", want: "abc_123.pdf"},
		{key: "/tmp/abc.pdf", want: "tmp/abc.pdf"},
		{key: `tmp\abc.pdf`, want: "tmp/abc.pdf"},
		{key: "", wantErr: true},
		{key: "../etc/passwd", wantErr: true},
		{key: "tmp//x", wantErr: true},
		{key: "tmp/./x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilesystemBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFilesystemBackend(dir)
	require.NoError(t, err)

	t.Run("put and open", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "tmp/a.txt", strings.NewReader("hello"), 5, "text/plain"))

		rc, err := b.Open(ctx, "tmp/a.txt")
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))

		_, err = os.Stat(filepath.Join(dir, "tmp", "a.txt"))
		assert.NoError(t, err)
	})

	t.Run("copy keeps source", func(t *testing.T) {
		require.NoError(t, b.Copy(ctx, "tmp/a.txt", "final.txt"))

		ok, err := b.Exists(ctx, "tmp/a.txt")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = b.Exists(ctx, "final.txt")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("copy missing source", func(t *testing.T) {
		err := b.Copy(ctx, "tmp/missing.txt", "x.txt")
		assert.ErrorIs(t, err, ErrNotExist)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, b.Delete(ctx, "final.txt"))
		require.NoError(t, b.Delete(ctx, "final.txt"))
		ok, err := b.Exists(ctx, "final.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		err := b.Put(ctx, "../escape.txt", strings.NewReader("x"), 1, "")
		assert.Error(t, err)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, b.HealthCheck(ctx))
		info := b.GetInfo()
		assert.Equal(t, "fs", info.Type)
		assert.Equal(t, dir, info.Location)
	})
}

func TestStorageFactory(t *testing.T) {
	f := NewStorageFactory()
	assert.Equal(t, []string{"fs", "s3"}, f.List())

	b, err := f.Create(config.StorageConfig{Type: "FS", Local: config.LocalStorageConfig{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &FilesystemBackend{}, b)

	_, err = f.Create(config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = f.Create(config.StorageConfig{Type: "s3"})
	assert.Error(t, err, "s3 without endpoint must fail")
}
