package image

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"os"

	"picam-motion/pkg/frame"
)

const DefaultQuality = 90

func RGBToRGBA(in, out []byte, width, height int) {
	outStride := width * 4
	inStride := len(in) / height

	for i := 0; i < height; i++ {
		oIndex := i * outStride
		iIndex := i * inStride
		for j := 0; j < width; j++ {
			out[oIndex] = in[iIndex]
			out[oIndex+1] = in[iIndex+1]
			out[oIndex+2] = in[iIndex+2]
			out[oIndex+3] = 0xFF

			oIndex += 4
			iIndex += 3
		}
	}
}

func DecodeRGB(data []byte, width, height int) image.Image {
	i := image.NewRGBA(image.Rect(0, 0, width, height))
	RGBToRGBA(data, i.Pix, width, height)

	return i
}

// ClampQuality maps any requested quality into the range jpeg accepts.
func ClampQuality(quality int) int {
	return min(max(quality, 1), 100)
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: ClampQuality(quality)})
}

// FrameToJPEG encodes a captured frame.
func FrameToJPEG(f *frame.Frame, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJPEG(f, &buf, quality); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func EncodeJPEGFile(img image.Image, file string, quality int) error {
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0660)
	if err != nil {
		return err
	}
	defer f.Close()

	return EncodeJPEG(img, f, quality)
}

// LoadFrame decodes an image file into a frame.
func LoadFrame(file string) (*frame.Frame, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return frame.Decode(f)
}
