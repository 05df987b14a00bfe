// Package texture streams photo textures for graph nodes.
//
// Textures live in two independent write-once tiers keyed by image URL: a
// low-resolution tier of small thumbnails decoded for every visible node,
// and a high-resolution tier filled one request at a time by a
// priority-ordered load queue. Whenever a texture is not available yet, the
// shared placeholder stands in.
package texture

import (
	"image"
	"image/color"
)

// Tier identifies the resolution level of a handle.
type Tier int

const (
	// TierPlaceholder is the shared fallback texture.
	TierPlaceholder Tier = iota
	// TierLow is a downsampled thumbnail.
	TierLow
	// TierHigh is the full-resolution image.
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierHigh:
		return "high"
	default:
		return "placeholder"
	}
}

// Handle is a decoded texture. Handles are immutable and shared; callers
// compare them by pointer.
type Handle struct {
	URL   string
	Tier  Tier
	Image image.Image
}

// IsPlaceholder reports whether h is the shared placeholder.
func (h *Handle) IsPlaceholder() bool {
	return h == nil || h.Tier == TierPlaceholder
}

// Size returns the pixel dimensions of the texture.
func (h *Handle) Size() (w, ht int) {
	if h == nil || h.Image == nil {
		return 0, 0
	}
	b := h.Image.Bounds()
	return b.Dx(), b.Dy()
}

var placeholder = newPlaceholder()

func newPlaceholder() *Handle {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0x55, G: 0x55, B: 0x5f, A: 0xff})
	return &Handle{Tier: TierPlaceholder, Image: img}
}

// Placeholder returns the shared fallback handle.
func Placeholder() *Handle {
	return placeholder
}
