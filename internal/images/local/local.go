// Package local implements the local filesystem image host. Intended for
// development and single-node deployments only; multiple instances would need
// a shared filesystem. Display URLs point at the API's own file-serving
// route, so "signed" URLs from this backend carry no signature and never
// expire.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/campusface/campusface/internal/config"
	"github.com/campusface/campusface/internal/images"
)

func init() {
	images.Register("local", func(cfg *config.Config) (images.Host, error) {
		return New(&cfg.Images.Local, cfg.Server.BaseURL)
	})
}

// LocalHost implements the Host interface on the local filesystem
type LocalHost struct {
	basePath string
	baseURL  string
}

// New creates a local filesystem image host
func New(cfg *config.LocalImagesConfig, serverBaseURL string) (*LocalHost, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}

	return &LocalHost{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimRight(serverBaseURL, "/"),
	}, nil
}

// fullPath resolves key inside basePath, rejecting traversal outside it
func (h *LocalHost) fullPath(key string) (string, error) {
	if !fs.ValidPath(key) {
		return "", fmt.Errorf("invalid image key: %s", key)
	}
	return filepath.Join(h.basePath, filepath.FromSlash(key)), nil
}

// Upload writes the photo to disk
func (h *LocalHost) Upload(ctx context.Context, key string, data []byte) error {
	path, err := h.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// Delete removes the photo from disk. A missing file is not an error.
func (h *LocalHost) Delete(ctx context.Context, key string) error {
	path, err := h.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete image: %w", err)
	}

	// Best effort removal of empty parent directories
	dir := filepath.Dir(path)
	for dir != h.basePath {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// SignedURL returns a URL served by the API's local file route
func (h *LocalHost) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := h.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("image not found: %s", key)
	}
	return fmt.Sprintf("%s/api/v1/images/%s", h.baseURL, key), nil
}

// Exists checks whether the photo is on disk
func (h *LocalHost) Exists(ctx context.Context, key string) (bool, error) {
	path, err := h.fullPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat image: %w", err)
	}
	return true, nil
}

// Open returns the on-disk path for the serving route. Returns an error for
// keys that escape the base path.
func (h *LocalHost) Open(key string) (string, error) {
	return h.fullPath(key)
}
