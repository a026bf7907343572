// Package images defines the Host interface and factory for face-photo
// storage backends.
//
// New backends are added by implementing the Host interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    images.Register("myhost", func(cfg *config.Config) (Host, error) {
//	        return NewMyHost(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
// Adding a new backend requires no changes to the factory or main package,
// only a blank import in cmd/server/main.go.
package images

import (
	"context"
	"fmt"
	"time"

	"github.com/campusface/campusface/internal/config"
)

// Host stores face photos and renders time-limited display URLs for them.
// Keys are opaque object names like "faces/<uuid>.jpg"; callers own key
// generation so a photo's database reference and its stored object never
// disagree.
type Host interface {
	// Upload stores a normalized JPEG under key, overwriting any
	// existing object
	Upload(ctx context.Context, key string, data []byte) error

	// Delete removes the object. Deleting a missing object is not an error:
	// rejection cleanup must be retryable.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a display URL for the photo valid for ttl.
	// Clients fetch the bytes directly from the host, never through the API.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}

// Factory function type for creating image hosts
type FactoryFunc func(*config.Config) (Host, error)

var factories = make(map[string]FactoryFunc)

// Register registers an image host factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// New creates an image host based on configuration
func New(cfg *config.Config) (Host, error) {
	factory, ok := factories[cfg.Images.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported images backend: %s (must be 'local', 'azure', 's3', or 'gcs')", cfg.Images.Backend)
	}

	return factory(cfg)
}
