package difference

import (
	"picam-motion/pkg/frame"
)

const (
	MinTolerance = 0
	MaxTolerance = 255
)

// Delta holds absolute per-channel differences between two pixels.
type Delta struct {
	R, G, B uint8
}

func PixelDelta(a, b frame.Pixel) Delta {
	return Delta{
		R: absDiff(a.R(), b.R()),
		G: absDiff(a.G(), b.G()),
		B: absDiff(a.B(), b.B()),
	}
}

// Exceeds reports whether any channel is strictly above tolerance.
func (d Delta) Exceeds(tolerance int) bool {
	return int(d.R) > tolerance || int(d.G) > tolerance || int(d.B) > tolerance
}

func (d Delta) Max() uint8 {
	return max(d.R, d.G, d.B)
}

// Pixel packs the delta back into a pixel value.
func (d Delta) Pixel() frame.Pixel {
	return frame.NewPixel(d.R, d.G, d.B)
}

// Result is the outcome of comparing two frames. Mask[i] is true when pixel i
// differs; Quantity is the aggregated motion quantity.
type Result struct {
	Mask     []bool
	Quantity int64
}

// Differing counts the true entries of Mask regardless of the aggregator used.
func (r *Result) Differing() int {
	n := 0
	for _, m := range r.Mask {
		if m {
			n++
		}
	}
	return n
}

// Difference compares two packed RGB sequences with the default count
// aggregation.
func Difference(a, b []frame.Pixel, tolerance int) (*Result, error) {
	d, err := New(tolerance)
	if err != nil {
		return nil, err
	}
	return d.Compare(a, b)
}

// Frames compares two frames, additionally requiring equal dimensions.
func Frames(a, b *frame.Frame, tolerance int) (*Result, error) {
	d, err := New(tolerance)
	if err != nil {
		return nil, err
	}
	return d.CompareFrames(a, b)
}

// Image returns the per-pixel difference image: each pixel carries the
// absolute channel deltas, and pixels that exceed tolerance are saturated to
// white.
func Image(a, b []frame.Pixel, tolerance int) ([]frame.Pixel, error) {
	if err := ValidateTolerance(tolerance); err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, &ShapeMismatchError{LenA: len(a), LenB: len(b)}
	}

	out := make([]frame.Pixel, len(a))
	for i := range a {
		d := PixelDelta(a[i], b[i])
		if d.Exceeds(tolerance) {
			out[i] = frame.White
		} else {
			out[i] = d.Pixel()
		}
	}
	return out, nil
}

// ImageFrame is Image over whole frames.
func ImageFrame(a, b *frame.Frame, tolerance int) (*frame.Frame, error) {
	if err := checkFrames(a, b); err != nil {
		return nil, err
	}
	pix, err := Image(a.Pix, b.Pix, tolerance)
	if err != nil {
		return nil, err
	}
	return &frame.Frame{Width: a.Width, Height: a.Height, Pix: pix}, nil
}

func checkFrames(a, b *frame.Frame) error {
	if a == nil || b == nil {
		return ErrNilFrame
	}
	if !a.SameShape(b) {
		return &ShapeMismatchError{
			LenA: a.Len(), LenB: b.Len(),
			Frames: true,
			WidthA: a.Width, HeightA: a.Height,
			WidthB: b.Width, HeightB: b.Height,
		}
	}
	return nil
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
