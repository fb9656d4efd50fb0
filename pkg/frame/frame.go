package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	ErrInvalidSize = errors.New("invalid frame size")
)

// Frame is one captured raster image stored as a flat row-major pixel
// sequence. Index i maps to x = i % Width, y = i / Width. A Frame must not be
// modified once it has been handed to a consumer.
type Frame struct {
	Width  int
	Height int
	Pix    []Pixel
}

// New checks that len(pix) == width*height and wraps pix without copying.
func New(width, height int, pix []Pixel) (*Frame, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrInvalidSize, len(pix), width, height)
	}

	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// Blank returns a frame filled with c.
func Blank(width, height int, c Pixel) *Frame {
	pix := make([]Pixel, width*height)
	for i := range pix {
		pix[i] = c
	}

	return &Frame{Width: width, Height: height, Pix: pix}
}

func (f *Frame) Len() int {
	return len(f.Pix)
}

// Index returns the position of (x, y) in Pix.
func (f *Frame) Index(x, y int) int {
	return y*f.Width + x
}

// Pixel returns the pixel at (x, y), or Black when out of bounds.
func (f *Frame) Pixel(x, y int) Pixel {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return Black
	}

	return f.Pix[f.Index(x, y)]
}

func (f *Frame) SameShape(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && len(f.Pix) == len(o.Pix)
}

// Frame implements image.Image so it can be handed to encoders directly.

func (f *Frame) ColorModel() color.Model { return color.RGBAModel }

func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

func (f *Frame) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(f.Bounds())) {
		return color.RGBA{}
	}
	r, g, b := f.Pix[f.Index(x, y)].RGB()

	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}
