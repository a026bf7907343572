// processor.go normalizes uploaded face photos before they reach a host
// backend: decode, sanity-check dimensions, re-encode as baseline JPEG.
// Re-encoding strips metadata and guarantees every stored object is a real
// image regardless of what the client sent.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Accepted upload formats; decoding is dispatched by sniffed magic
	// bytes, not the client's content type.
	_ "image/gif"
	_ "image/png"
)

// ErrInvalidImage is returned when an upload cannot be decoded as an image
// or falls outside the accepted dimensions.
var ErrInvalidImage = errors.New("invalid image")

const (
	jpegQuality = 85

	// A face crop smaller than this cannot be matched reliably.
	minDimension = 64
	maxDimension = 8192
)

// NormalizePhoto decodes an uploaded photo and re-encodes it as JPEG.
// Decode failures and out-of-range dimensions return ErrInvalidImage.
func NormalizePhoto(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < minDimension || h < minDimension {
		return nil, fmt.Errorf("%w: %dx%d below minimum %dpx", ErrInvalidImage, w, h, minDimension)
	}
	if w > maxDimension || h > maxDimension {
		return nil, fmt.Errorf("%w: %dx%d above maximum %dpx", ErrInvalidImage, w, h, maxDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}
	return buf.Bytes(), nil
}
