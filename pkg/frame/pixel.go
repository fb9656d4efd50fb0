package frame

import "fmt"

// Pixel is a packed 24-bit RGB value: bits 16-23 red, 8-15 green, 0-7 blue.
// Bits above 23 are ignored by the accessors.
type Pixel uint32

const (
	Black Pixel = 0x000000
	White Pixel = 0xFFFFFF
)

func NewPixel(r, g, b uint8) Pixel {
	return Pixel(r)<<16 | Pixel(g)<<8 | Pixel(b)
}

func (p Pixel) R() uint8 { return uint8(p >> 16) }

func (p Pixel) G() uint8 { return uint8(p >> 8) }

func (p Pixel) B() uint8 { return uint8(p) }

// RGB returns the three channels in order.
func (p Pixel) RGB() (r, g, b uint8) {
	return p.R(), p.G(), p.B()
}

func (p Pixel) String() string {
	return fmt.Sprintf("#%06X", uint32(p)&0xFFFFFF)
}
