// Package imaging holds the grayscale working grid and the preprocessing
// variants the decode cascade runs over. Transforms never mutate their
// input; every step allocates a fresh grid.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	// Register the containers badge photos actually arrive in.
	_ "image/jpeg"
	_ "image/png"
)

// FromBytes decodes a PNG/JPEG buffer into the grayscale working base.
func FromBytes(data []byte) (*image.Gray, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return Grayscale(src), nil
}

// Grayscale collapses any pixel grid (color or gray) to a zero-origin
// grayscale copy.
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}

func newGray(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
