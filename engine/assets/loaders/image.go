package loaders

import (
	"image"

	"golang.org/x/image/draw"
)

// Image is a tightly packed RGBA8 image, rows top to bottom.
type Image struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// toImage converts src to RGBA8. When width and height are non-zero the
// image is resampled to that size.
func toImage(name string, src image.Image, width, height uint32) *Image {
	b := src.Bounds()
	if width == 0 || height == 0 {
		width, height = uint32(b.Dx()), uint32(b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	if int(width) == b.Dx() && int(height) == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return &Image{
		Name:   name,
		Width:  width,
		Height: height,
		Pixels: dst.Pix,
	}
}

// FromRGBA wraps an in-memory image.
func FromRGBA(name string, img *image.RGBA) *Image {
	return toImage(name, img, 0, 0)
}
