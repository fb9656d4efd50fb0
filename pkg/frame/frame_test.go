package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/bmp"
)

func TestPixelChannels(t *testing.T) {
	p := Pixel(0x12AB34)
	if p.R() != 0x12 || p.G() != 0xAB || p.B() != 0x34 {
		t.Fatalf("unexpected channels %02X %02X %02X", p.R(), p.G(), p.B())
	}
	if NewPixel(0x12, 0xAB, 0x34) != p {
		t.Fatalf("NewPixel mismatch: %s", NewPixel(0x12, 0xAB, 0x34))
	}
	if got := Pixel(0xFF000001).B(); got != 1 {
		t.Fatalf("high bits leaked into blue: %d", got)
	}
	if p.String() != "#12AB34" {
		t.Fatalf("unexpected string %s", p.String())
	}
}

func TestNew(t *testing.T) {
	if _, err := New(2, 2, make([]Pixel, 3)); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	if _, err := New(-1, 0, nil); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	f, err := New(0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 0 {
		t.Fatalf("expected empty frame, got %d", f.Len())
	}
}

func TestRowMajor(t *testing.T) {
	f, err := New(3, 2, []Pixel{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Pixel(1, 1); got != 4 {
		t.Fatalf("expected 4 at (1,1), got %d", got)
	}
	if got := f.Pixel(3, 0); got != Black {
		t.Fatalf("out of bounds should be black, got %d", got)
	}
	if f.Bounds() != image.Rect(0, 0, 3, 2) {
		t.Fatalf("unexpected bounds %v", f.Bounds())
	}
}

func TestFromRGB24(t *testing.T) {
	// 2x2 with one byte of row padding
	data := []byte{
		1, 2, 3, 4, 5, 6, 0,
		7, 8, 9, 10, 11, 12, 0,
	}
	f, err := FromRGB24(data, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Pixel{0x010203, 0x040506, 0x070809, 0x0A0B0C}
	if diff := cmp.Diff(want, f.Pix); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, f.RGB24()); diff != "" {
		t.Fatalf("rgb24 mismatch (-want +got):\n%s", diff)
	}

	if _, err := FromRGB24(data[:5], 2, 2); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestImageRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(3, 2, color.RGBA{G: 10, B: 20, A: 255})

	f := FromImage(src)
	if f.Width != 4 || f.Height != 3 {
		t.Fatalf("unexpected size %dx%d", f.Width, f.Height)
	}
	if f.Pixel(0, 0) != 0xFF0000 || f.Pixel(3, 2) != 0x000A14 {
		t.Fatalf("unexpected pixels %s %s", f.Pixel(0, 0), f.Pixel(3, 2))
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, f); err != nil {
		t.Fatal(err)
	}
	back, err := FromBMP(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(f.Pix, back.Pix); diff != "" {
		t.Fatalf("bmp round trip mismatch (-want +got):\n%s", diff)
	}
}
