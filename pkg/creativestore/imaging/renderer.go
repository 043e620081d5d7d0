// Package imaging renders previews of stored creative images: composite crop
// reproduction, scaling, and re-encoding, bounded by a memory admission
// limiter.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// Renderer serves image previews from the permanent content store.
type Renderer struct {
	content creativestore.VersionedBlobStore
	limiter *Limiter
	crop    CropConfig
	logger  zerolog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLimiter sets the memory admission limiter. The default carries
// DefaultMemoryBudget.
func WithLimiter(limiter *Limiter) Option {
	return func(r *Renderer) { r.limiter = limiter }
}

// WithCropConfig tunes the composite crop background inference.
func WithCropConfig(config CropConfig) Option {
	return func(r *Renderer) { r.crop = config }
}

// WithLogger sets the logger handle.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Renderer) { r.logger = logger }
}

// NewRenderer creates a renderer reading raw bytes from the given content
// store.
func NewRenderer(content creativestore.VersionedBlobStore, options ...Option) *Renderer {
	r := &Renderer{
		content: content,
		limiter: NewLimiter(0),
		logger:  zerolog.Nop(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Preview renders the element's image at exactly width x height. Composite
// elements have their crop area applied before scaling; the output is always
// PNG. Rejections from the memory limiter surface as ErrMemoryLimited and
// are safe to retry.
func (r *Renderer) Preview(ctx context.Context, value creativestore.ImageElementValue, width, height int) ([]byte, string, error) {
	if width <= 0 || height <= 0 {
		return nil, "", &creativestore.ArgumentError{Name: "size", Reason: "width and height must be positive"}
	}

	data, _, err := r.content.Get(ctx, value.RawKey(), "")
	if err != nil {
		return nil, "", err
	}

	// Size the admission on the decoded working set, known from the header
	// before the expensive full decode runs.
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	working := int64(config.Width)*int64(config.Height)*4 + int64(len(data))
	if err := r.limiter.Admit(working); err != nil {
		return nil, "", err
	}
	defer r.limiter.Release(working)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	if composite, ok := value.(*creativestore.CompositeBitmapImageValue); ok && composite.CropArea != nil {
		img = Crop(img, *composite.CropArea, r.crop)
	}

	// Exact box, non-uniform stretch allowed.
	scaled := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, "", fmt.Errorf("failed to encode preview: %w", err)
	}

	r.logger.Debug().Str("key", value.RawKey()).Int("width", width).Int("height", height).
		Msg("preview rendered")
	return buf.Bytes(), "image/png", nil
}

// Raw returns the stored bytes unmodified along with their content type.
func (r *Renderer) Raw(ctx context.Context, value creativestore.ImageElementValue) ([]byte, string, error) {
	data, meta, err := r.content.Get(ctx, value.RawKey(), "")
	if err != nil {
		return nil, "", err
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
