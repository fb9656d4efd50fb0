package video

import (
	"context"
	"errors"
	"time"

	"github.com/icza/mjpeg"
)

// Builder writes JPEG frames into an MJPEG AVI container.
type Builder struct {
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, errors.New("video: width, height and fps must be positive")
	}
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

func (b *Builder) Add(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

// Record adds frames from the channel until duration elapses, ctx is done or
// the channel is closed.
func (b *Builder) Record(ctx context.Context, frames <-chan []byte, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				if b.cnt == 0 {
					return errors.New("video: stream closed before any frame")
				}
				return nil
			}
			if err := b.Add(f); err != nil {
				return err
			}
		}
	}
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) GetCnt() int {
	return b.cnt
}
