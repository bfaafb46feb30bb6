package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/anri-helpdesk/helpdesk/internal/config"
)

// ErrNotExist is returned when a key has no object.
var ErrNotExist = errors.New("object does not exist")

// Backend stores attachment files by key. Keys use forward slashes.
type Backend interface {
	// Put writes the content of r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns the object content.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Copy duplicates srcKey to dstKey. The source is left in place.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// GetInfo returns backend information
	GetInfo() *BackendInfo

	// HealthCheck verifies backend is operational
	HealthCheck(ctx context.Context) error
}

// BackendInfo provides information about a storage backend
type BackendInfo struct {
	Name     string
	Type     string
	Location string
}

// Factory creates storage backends based on configuration
type Factory interface {
	// Create instantiates a storage backend
	Create(cfg config.StorageConfig) (Backend, error)

	// Register adds a new backend type
	Register(backendType string, constructor BackendConstructor)

	// List returns available backend types
	List() []string
}

// BackendConstructor creates a new backend instance
type BackendConstructor func(cfg config.StorageConfig) (Backend, error)

// StorageFactory implements the Factory interface
type StorageFactory struct {
	constructors map[string]BackendConstructor
}

// NewStorageFactory creates a factory with the fs and s3 backends registered.
func NewStorageFactory() *StorageFactory {
	f := &StorageFactory{constructors: make(map[string]BackendConstructor)}
	f.Register("fs", func(cfg config.StorageConfig) (Backend, error) {
		return NewFilesystemBackend(cfg.Local.Path)
	})
	f.Register("s3", func(cfg config.StorageConfig) (Backend, error) {
		return NewS3Backend(S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
		})
	})
	return f
}

// Create instantiates the backend named by cfg.Type
func (f *StorageFactory) Create(cfg config.StorageConfig) (Backend, error) {
	constructor, exists := f.constructors[strings.ToLower(cfg.Type)]
	if !exists {
		return nil, fmt.Errorf("unknown storage backend type: %s", cfg.Type)
	}
	return constructor(cfg)
}

// Register adds a new backend type
func (f *StorageFactory) Register(backendType string, constructor BackendConstructor) {
	f.constructors[strings.ToLower(backendType)] = constructor
}

// List returns available backend types
func (f *StorageFactory) List() []string {
	types := make([]string, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CleanKey rejects keys that are empty, absolute or climb out of the root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", fmt.Errorf("empty storage key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("invalid storage key %q", key)
		}
	}
	return key, nil
}
