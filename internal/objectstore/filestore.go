// Package objectstore abstracts durable artifact storage. The service only
// needs one operation: persist bytes under a key and get back a public URL.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists a byte blob under a key and returns a public retrieval URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// FileStore persists artifacts onto the local filesystem and builds public
// URLs from a configured prefix. It stands in for an object storage service
// in development and single-node deployments.
type FileStore struct {
	basePath  string
	urlPrefix string
}

var _ Store = (*FileStore)(nil)

// NewFileStore initializes a FileStore rooted at basePath. Returned URLs are
// urlPrefix + "/" + key.
func NewFileStore(basePath, urlPrefix string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("objectstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: ensure base path: %w", err)
	}
	return &FileStore{
		basePath:  basePath,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// Put writes the blob at the given relative key and returns its public URL.
// Keys are cleaned to prevent directory traversal. The content type is not
// persisted by this backend; it is part of the interface for backends that
// need it.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write file: %w", err)
	}
	return s.urlPrefix + "/" + cleanKey, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("objectstore: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("objectstore: invalid key")
	}
	return cleaned, nil
}
