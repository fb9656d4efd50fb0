package frame

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/bmp"
)

// FromRGB24 packs a raw RGB24 buffer as delivered by V4L2. Rows may be padded;
// the stride is derived from the buffer length like the driver reports it.
func FromRGB24(data []byte, width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	stride := len(data) / height
	if stride < width*3 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d rgb24", ErrInvalidSize, len(data), width, height)
	}

	pix := make([]Pixel, width*height)
	for y := 0; y < height; y++ {
		in := y * stride
		out := y * width
		for x := 0; x < width; x++ {
			pix[out+x] = NewPixel(data[in], data[in+1], data[in+2])
			in += 3
		}
	}

	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// RGB24 flattens the frame back to tightly packed RGB24 bytes.
func (f *Frame) RGB24() []byte {
	out := make([]byte, 0, len(f.Pix)*3)
	for _, p := range f.Pix {
		out = append(out, p.R(), p.G(), p.B())
	}

	return out
}

// FromImage converts any image.Image, dropping alpha.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	pix := make([]Pixel, 0, width*height)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := rgba.PixOffset(b.Min.X, y)
			for x := 0; x < width; x++ {
				s := rgba.Pix[off : off+3 : off+3]
				pix = append(pix, NewPixel(s[0], s[1], s[2]))
				off += 4
			}
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				pix = append(pix, NewPixel(uint8(r>>8), uint8(g>>8), uint8(bl>>8)))
			}
		}
	}

	return &Frame{Width: width, Height: height, Pix: pix}
}

// Decode reads any registered image format into a Frame.
func Decode(r io.Reader) (*Frame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	return FromImage(img), nil
}

// FromBMP decodes the 24-bit bitmap buffers produced by the still port.
func FromBMP(data []byte) (*Frame, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode bmp: %w", err)
	}

	return FromImage(img), nil
}
