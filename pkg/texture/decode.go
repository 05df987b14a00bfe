package texture

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/vanderheijden86/photocluster/pkg/metrics"
)

// DefaultLowResSize is the edge length of low-resolution thumbnails.
const DefaultLowResSize = 64

var errEmptyImage = errors.New("image has no pixels")

// Decode decodes JPEG, PNG, GIF, WebP, BMP or TIFF data.
func Decode(data []byte) (image.Image, error) {
	defer metrics.Timer(metrics.TextureDecode)()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, errEmptyImage
	}
	return img, nil
}

// Downsample scales src onto a size x size canvas.
func Downsample(src image.Image, size int) *image.RGBA {
	defer metrics.Timer(metrics.LowResDownscale)()

	if size <= 0 {
		size = DefaultLowResSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
