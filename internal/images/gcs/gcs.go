// Package gcs implements the Google Cloud Storage image host. Display URLs
// are time-limited signed URLs generated via the GCS signing API; photo bytes
// never transit the API. Supports Application Default Credentials and service
// account key files.
package gcs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/campusface/campusface/internal/config"
	"github.com/campusface/campusface/internal/images"
)

func init() {
	images.Register("gcs", func(cfg *config.Config) (images.Host, error) {
		return New(&cfg.Images.GCS)
	})
}

// GCSHost implements the Host interface for Google Cloud Storage
type GCSHost struct {
	client *storage.Client
	bucket string
}

// New creates a Google Cloud Storage image host. With no credentials file
// configured, the client uses Application Default Credentials (environment
// variable, GCE/GKE metadata service, or gcloud auth).
func New(cfg *config.GCSImagesConfig) (*GCSHost, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	ctx := context.Background()
	var opts []option.ClientOption

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSHost{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Close closes the GCS client
func (h *GCSHost) Close() error {
	return h.client.Close()
}

// Upload stores a photo in GCS
func (h *GCSHost) Upload(ctx context.Context, key string, data []byte) error {
	writer := h.client.Bucket(h.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = "image/jpeg"

	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Delete removes a photo. A missing object is not an error.
func (h *GCSHost) Delete(ctx context.Context, key string) error {
	if err := h.client.Bucket(h.bucket).Object(key).Delete(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// SignedURL returns a V4 signed URL for the photo.
// Requires the service account to hold iam.serviceAccountTokenCreator or for
// ADC to have signBlob permissions.
func (h *GCSHost) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := h.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("image not found: %s", key)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}

	url, err := h.client.Bucket(h.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

// Exists checks whether an object is stored under key
func (h *GCSHost) Exists(ctx context.Context, key string) (bool, error) {
	_, err := h.client.Bucket(h.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
