package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemBackend stores objects as files below basePath.
type FilesystemBackend struct {
	basePath string
}

// NewFilesystemBackend creates a new filesystem storage backend
func NewFilesystemBackend(basePath string) (*FilesystemBackend, error) {
	if basePath == "" {
		return nil, fmt.Errorf("storage.local.path is empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &FilesystemBackend{basePath: basePath}, nil
}

func (f *FilesystemBackend) path(key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.basePath, filepath.FromSlash(clean)), nil
}

// Put writes to a temp file in the target directory and renames it into place.
func (f *FilesystemBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func (f *FilesystemBackend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	return file, err
}

func (f *FilesystemBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := f.Open(ctx, srcKey)
	if err != nil {
		return err
	}
	defer src.Close()
	return f.Put(ctx, dstKey, src, -1, "")
}

func (f *FilesystemBackend) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if the file is present
func (f *FilesystemBackend) Exists(_ context.Context, key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetInfo returns filesystem backend information
func (f *FilesystemBackend) GetInfo() *BackendInfo {
	return &BackendInfo{Name: "Filesystem", Type: "fs", Location: f.basePath}
}

// HealthCheck verifies the base path is writable
func (f *FilesystemBackend) HealthCheck(_ context.Context) error {
	tmp, err := os.CreateTemp(f.basePath, ".health-*")
	if err != nil {
		return fmt.Errorf("base path not writable: %w", err)
	}
	tmp.Close()
	return os.Remove(tmp.Name())
}
