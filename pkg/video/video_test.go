package video

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func jpegFrame(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 0xFF
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	b, err := NewBuilder(path, 16, 16, 10)
	if err != nil {
		t.Fatal(err)
	}

	frames := make(chan []byte, 3)
	frames <- jpegFrame(t, color.RGBA{R: 0xFF})
	frames <- nil
	frames <- jpegFrame(t, color.RGBA{G: 0xFF})
	close(frames)

	if err := b.Record(context.Background(), frames, time.Minute); err != nil {
		t.Fatal(err)
	}
	if b.GetCnt() != 2 {
		t.Fatalf("expected 2 frames, got %d", b.GetCnt())
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("empty video file")
	}
}

func TestRecordDuration(t *testing.T) {
	b, err := NewBuilder(filepath.Join(t.TempDir(), "out.avi"), 16, 16, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Record(context.Background(), make(chan []byte), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if b.GetCnt() != 0 {
		t.Fatalf("expected no frames, got %d", b.GetCnt())
	}
}

func TestNewBuilderInvalid(t *testing.T) {
	if _, err := NewBuilder(filepath.Join(t.TempDir(), "x.avi"), 0, 16, 10); err == nil {
		t.Fatal("expected error")
	}
}
