package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// PNG encodes a w x h image filled with c.
func PNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Red is a convenient fixture colour.
var Red = color.RGBA{R: 0xff, A: 0xff}

// Blue is a second fixture colour.
var Blue = color.RGBA{B: 0xff, A: 0xff}
